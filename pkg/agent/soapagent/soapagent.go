// Package soapagent is the SOAP specialized agent (§4.E). The operation
// name is part of tool identity here: each registered tool is already bound
// to one SOAP operation, so this agent never dispatches an operation name
// dynamically — choosing a tool IS choosing the operation.
package soapagent

import (
	"context"

	"github.com/queryflowhq/queryflow/pkg/agentexec"
	"github.com/queryflowhq/queryflow/pkg/llm"
	"github.com/queryflowhq/queryflow/pkg/registry"
	"github.com/queryflowhq/queryflow/pkg/state"
	"github.com/queryflowhq/queryflow/pkg/tool"
)

// Agent executes steps against SOAP_API tools.
type Agent struct {
	executor *agentexec.Executor
}

// New builds a SOAP agent bound to reg and llmProvider.
func New(reg *registry.ToolRegistry, llmProvider llm.Provider) *Agent {
	return &Agent{executor: &agentexec.Executor{
		Registry: reg,
		LLM:      llmProvider,
		Class:    tool.ClassSOAPAPI,
		Type:     state.SOAPAgent,
	}}
}

// Execute runs step against the SOAP tool catalogue.
func (a *Agent) Execute(ctx context.Context, step *state.Step, query string) state.AgentResult {
	return a.executor.Execute(ctx, step, query)
}
