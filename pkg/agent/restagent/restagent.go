// Package restagent is the REST specialized agent (§4.E). Retries are the
// tool's concern, not the agent's: an HTTP-class failure is simply
// surfaced as UPSTREAM_ERROR and returned, never retried here.
package restagent

import (
	"context"

	"github.com/queryflowhq/queryflow/pkg/agentexec"
	"github.com/queryflowhq/queryflow/pkg/llm"
	"github.com/queryflowhq/queryflow/pkg/registry"
	"github.com/queryflowhq/queryflow/pkg/state"
	"github.com/queryflowhq/queryflow/pkg/tool"
)

// Agent executes steps against REST_API tools.
type Agent struct {
	executor *agentexec.Executor
}

// New builds a REST agent bound to reg and llmProvider.
func New(reg *registry.ToolRegistry, llmProvider llm.Provider) *Agent {
	return &Agent{executor: &agentexec.Executor{
		Registry: reg,
		LLM:      llmProvider,
		Class:    tool.ClassRESTAPI,
		Type:     state.RESTAgent,
	}}
}

// Execute runs step against the REST tool catalogue.
func (a *Agent) Execute(ctx context.Context, step *state.Step, query string) state.AgentResult {
	return a.executor.Execute(ctx, step, query)
}
