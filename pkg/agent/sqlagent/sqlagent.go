// Package sqlagent is the relational-database specialized agent (§4.E).
// Unlike the REST and SOAP agents, it is allowed a bounded retry: when a
// chosen tool reports a schema mismatch (typical of an ad-hoc query whose
// result shape wasn't known ahead of time), the agent retries at most twice
// with refined arguments before giving up.
package sqlagent

import (
	"context"

	"github.com/queryflowhq/queryflow/pkg/agentexec"
	"github.com/queryflowhq/queryflow/pkg/errs"
	"github.com/queryflowhq/queryflow/pkg/llm"
	"github.com/queryflowhq/queryflow/pkg/registry"
	"github.com/queryflowhq/queryflow/pkg/state"
	"github.com/queryflowhq/queryflow/pkg/tool"
)

// maxSchemaMismatchRetries bounds the SQL agent's only agent-initiated
// retry, per §4.E's "MAY retry at most twice" note.
const maxSchemaMismatchRetries = 2

// Agent executes steps against RELATIONAL_DB tools.
type Agent struct {
	executor *agentexec.Executor
}

// New builds a SQL agent bound to reg and llmProvider.
func New(reg *registry.ToolRegistry, llmProvider llm.Provider) *Agent {
	return &Agent{executor: &agentexec.Executor{
		Registry: reg,
		LLM:      llmProvider,
		Class:    tool.ClassRelationalDB,
		Type:     state.SQLAgent,
	}}
}

// Execute runs step against the SQL tool catalogue, retrying on a
// schema-mismatch result up to maxSchemaMismatchRetries times. Each retry
// clears the step's parameter hints so the next attempt re-derives
// arguments from the query text rather than repeating the binding that
// produced the mismatch.
func (a *Agent) Execute(ctx context.Context, step *state.Step, query string) state.AgentResult {
	attemptStep := step
	var result state.AgentResult

	for attempt := 0; attempt <= maxSchemaMismatchRetries; attempt++ {
		result = a.executor.Execute(ctx, attemptStep, query)
		if result.OK || result.Error != errs.KindSchemaMismatch {
			return result
		}
		if attempt == maxSchemaMismatchRetries {
			break
		}
		refined := *attemptStep
		refined.ParameterHints = nil
		attemptStep = &refined
	}

	return result
}
