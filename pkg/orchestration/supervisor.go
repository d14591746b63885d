// Package orchestration holds the Supervisor Node and Router (§4.F, §4.G):
// the two pieces of the compiled graph that decide, on every tick, which
// specialized agent (if any) runs next. Neither node talks to a tool or an
// LLM completion directly — the Supervisor only ever reads and writes
// state.AgentState, and the Router is a pure function of it.
package orchestration

import (
	"context"
	"strconv"

	"github.com/queryflowhq/queryflow/pkg/errs"
	"github.com/queryflowhq/queryflow/pkg/planner"
	"github.com/queryflowhq/queryflow/pkg/state"
)

// NodeName identifies a node in the compiled graph, as returned by Route.
type NodeName string

const (
	NodeSupervisor  NodeName = "supervisor"
	NodeSQLAgent    NodeName = "sql_agent"
	NodeRESTAgent   NodeName = "rest_agent"
	NodeSOAPAgent   NodeName = "soap_agent"
	NodeConsolidator NodeName = "consolidator"
	NodeEnd         NodeName = "end"
)

// Supervisor owns plan creation and per-tick step dispatch decisions. It is
// the only writer of state.next_agent and state.current_step_index besides
// the agents themselves (which only ever append a result).
type Supervisor struct {
	Planner *planner.Planner
}

// New builds a Supervisor backed by p.
func New(p *planner.Planner) *Supervisor {
	return &Supervisor{Planner: p}
}

// Tick runs one Supervisor pass over st, per §4.F:
//
//  1. If st has no plan yet, create one. An empty plan (no steps at all, the
//     one failure mode the Planner can't paper over) ends the run with
//     EMPTY_PLAN recorded.
//  2. If the step cursor has run past the end of the plan, route to the
//     Consolidator if the plan calls for it, otherwise end the run.
//  3. Otherwise inspect the current step. If any of its dependencies have
//     not produced an OK result yet, the step cannot run: it is marked
//     FAILED, DEPENDENCY_UNMET is recorded, and the cursor advances without
//     dispatching an agent. Otherwise the step's agent type becomes the
//     next node to run.
//
// Tick never invokes a tool, and its only call out of st is the Planner on
// the first tick, which may consult an LLM.
func (sup *Supervisor) Tick(ctx context.Context, st *state.AgentState) {
	if st.Plan() == nil {
		sup.createPlan(ctx, st)
		return
	}

	step := st.CurrentStep()
	if step == nil {
		sup.routeToTerminal(st)
		return
	}

	if unmet, depStep := firstUnmetDependency(st, step); unmet {
		step.Status = state.StepFailed
		st.RecordError(step.StepNumber, errs.KindDependencyUnmet, dependencyUnmetMessage(depStep))
		st.Advance()
		sup.Tick(ctx, st)
		return
	}

	st.SetNextAgent(nodeAgentFor(step.AgentType))
	st.SetShouldContinue(true)
}

// AfterAgent runs once an Agent node has appended its result for the current
// step (§4.G "from any Agent"): it advances the step cursor past the
// just-completed step and decides whether the next node is the Supervisor
// (more steps remain and the run hasn't been halted) or a terminal node.
// Keeping this decision here, rather than inline in the agent node wrapper,
// is what lets Router stay a single function reading only next_agent: every
// node — Supervisor or Agent — leaves next_agent pointing at the node that
// should run next.
func AfterAgent(st *state.AgentState) {
	st.Advance()

	if st.CurrentStep() != nil && st.ShouldContinue() {
		st.SetNextAgent(state.NextSupervisor)
		return
	}

	if st.Plan() != nil && st.Plan().RequiresConsolidation {
		st.SetNextAgent(state.NextConsolidate)
		return
	}

	st.SetShouldContinue(false)
	st.SetNextAgent(state.NextEnd)
}

func (sup *Supervisor) createPlan(ctx context.Context, st *state.AgentState) {
	plan, err := sup.Planner.Plan(ctx, st.Query(), st.Context())
	if err != nil {
		st.RecordError(0, errs.KindPlan, err.Error())
	}
	st.SetPlan(plan)

	if plan == nil || len(plan.Steps) == 0 {
		st.RecordError(0, errs.KindEmptyPlan, "planner produced no steps")
		st.SetFinal(emptyPlanAnswer(st.Query()))
		st.SetShouldContinue(false)
		st.SetNextAgent(state.NextEnd)
		return
	}

	sup.Tick(ctx, st)
}

// emptyPlanAnswer is the deterministic response text for the EMPTY_PLAN
// path (§8 Boundary Scenario #10): the run ends without ever reaching the
// Consolidator, so the Supervisor itself must still leave
// state.final_response set to a non-empty string.
func emptyPlanAnswer(query string) string {
	return "I couldn't find a data source able to answer \"" + query + "\". Try rephrasing the question or narrowing it to a specific system."
}

func (sup *Supervisor) routeToTerminal(st *state.AgentState) {
	if st.Plan().RequiresConsolidation {
		st.SetNextAgent(state.NextConsolidate)
		return
	}
	st.SetShouldContinue(false)
	st.SetNextAgent(state.NextEnd)
}

// firstUnmetDependency reports whether step has a DependsOn entry with no OK
// result recorded yet, and the unmet step number for the error message.
func firstUnmetDependency(st *state.AgentState, step *state.Step) (bool, int) {
	for _, dep := range step.DependsOn {
		if _, ok := st.ResultFor(dep); !ok {
			return true, dep
		}
	}
	return false, 0
}

func dependencyUnmetMessage(depStep int) string {
	return "step depends on step " + strconv.Itoa(depStep) + ", which has not produced a result"
}

func nodeAgentFor(a state.AgentType) state.NextAgent {
	return state.NextAgent(a)
}
