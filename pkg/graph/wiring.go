package graph

import (
	"context"
	"fmt"

	"github.com/queryflowhq/queryflow/pkg/agent/restagent"
	"github.com/queryflowhq/queryflow/pkg/agent/soapagent"
	"github.com/queryflowhq/queryflow/pkg/agent/sqlagent"
	"github.com/queryflowhq/queryflow/pkg/consolidator"
	"github.com/queryflowhq/queryflow/pkg/orchestration"
	"github.com/queryflowhq/queryflow/pkg/state"
)

// Build assembles the domain's compiled graph (§4.I): SUPERVISOR as entry
// point, one node per specialized agent, CONSOLIDATOR, and the conditional
// edges the Router decides. This is the only place the five node
// implementations are wired together; everything they depend on
// (Supervisor, the three agents, the Consolidator) is built by the caller
// and passed in, so this package never constructs an LLM provider, a
// registry, or a config on its own.
func Build(
	sup *orchestration.Supervisor,
	sqlAgent *sqlagent.Agent,
	restAgent *restagent.Agent,
	soapAgent *soapagent.Agent,
	cons *consolidator.Consolidator,
	opts Options,
) (*Compiled, string, error) {
	g := NewStateGraph()

	supervisorNode := string(orchestration.NodeSupervisor)
	sqlNode := string(orchestration.NodeSQLAgent)
	restNode := string(orchestration.NodeRESTAgent)
	soapNode := string(orchestration.NodeSOAPAgent)
	consolidatorNode := string(orchestration.NodeConsolidator)

	g.AddNode(supervisorNode, func(ctx context.Context, st *state.AgentState) error {
		sup.Tick(ctx, st)
		return nil
	})
	g.AddNode(sqlNode, agentNode(state.SQLAgent, sqlAgent.Execute))
	g.AddNode(restNode, agentNode(state.RESTAgent, restAgent.Execute))
	g.AddNode(soapNode, agentNode(state.SOAPAgent, soapAgent.Execute))
	g.AddNode(consolidatorNode, func(ctx context.Context, st *state.AgentState) error {
		text := cons.Consolidate(ctx, st)
		st.SetFinal(text)
		st.SetNextAgent(state.NextEnd)
		st.SetShouldContinue(false)
		return nil
	})

	policy := orchestration.UnknownNodePolicy(opts.UnknownNodePolicy)
	if policy == "" {
		policy = orchestration.PolicyEnd
	}
	route := func(st *state.AgentState) NodeName { return string(orchestration.Route(st, policy)) }
	g.AddConditionalEdge(supervisorNode, route)
	g.AddConditionalEdge(sqlNode, route)
	g.AddConditionalEdge(restNode, route)
	g.AddConditionalEdge(soapNode, route)
	g.AddEdge(consolidatorNode, End)

	g.SetEntryPoint(supervisorNode)

	compiled, err := g.Compile(opts)
	return compiled, consolidatorNode, err
}

// agentExecuteFunc matches the three specialized agents' Execute signature.
type agentExecuteFunc func(ctx context.Context, step *state.Step, query string) state.AgentResult

// agentNode wraps one specialized agent's Execute into a NodeFunc: run the
// current step, append its result, then let orchestration.AfterAgent decide
// whether the next node is the Supervisor or a terminal node.
func agentNode(agentType state.AgentType, execute agentExecuteFunc) NodeFunc {
	return func(ctx context.Context, st *state.AgentState) error {
		step := st.CurrentStep()
		if step == nil {
			return fmt.Errorf("%s node reached with no current step", agentType)
		}
		result := execute(ctx, step, st.Query())
		st.AppendResult(result)
		orchestration.AfterAgent(st)
		return nil
	}
}
