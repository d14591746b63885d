package state

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/queryflowhq/queryflow/pkg/errs"
	"github.com/queryflowhq/queryflow/pkg/tool"
)

func examplePlan() *Plan {
	return &Plan{
		PlanID: "p1",
		Query:  "show open alerts",
		Steps: []*Step{
			{StepNumber: 1, AgentType: RESTAgent, DataSourceClass: tool.ClassRESTAPI, Status: StepPending},
			{StepNumber: 2, AgentType: SQLAgent, DataSourceClass: tool.ClassRelationalDB, DependsOn: []int{1}, Status: StepPending},
		},
		RequiresConsolidation: true,
		EstimatedComplexity:   ComplexityLow,
	}
}

func TestAgentState_NewCopiesContextDefensively(t *testing.T) {
	callerCtx := map[string]any{"user": "alice"}
	s := New(context.Background(), "q", callerCtx)
	callerCtx["user"] = "mutated"
	assert.Equal(t, "alice", s.Context()["user"])
}

func TestAgentState_AdvanceIsMonotone(t *testing.T) {
	s := New(context.Background(), "q", nil)
	s.SetPlan(examplePlan())
	assert.Equal(t, 0, s.CurrentStepIndex())
	s.Advance()
	assert.Equal(t, 1, s.CurrentStepIndex())
	s.Advance()
	assert.Equal(t, 2, s.CurrentStepIndex())
}

func TestAgentState_CurrentStepNilPastEndOfPlan(t *testing.T) {
	s := New(context.Background(), "q", nil)
	s.SetPlan(examplePlan())
	s.Advance()
	s.Advance()
	assert.Nil(t, s.CurrentStep())
}

func TestAgentState_AppendResultGrowsSequenceAndMarksStepStatus(t *testing.T) {
	s := New(context.Background(), "q", nil)
	s.SetPlan(examplePlan())

	s.AppendResult(AgentResult{StepNumber: 1, AgentType: RESTAgent, ToolName: "list_alerts", OK: true, Rows: []map[string]any{{"alert_id": "A1"}}})
	require.Len(t, s.RESTResults(), 1)
	assert.Equal(t, StepDone, s.Plan().StepAt(1).Status)

	s.AppendResult(AgentResult{StepNumber: 2, AgentType: SQLAgent, ToolName: "alerts_by_user", OK: false, Error: errs.KindUpstreamError})
	require.Len(t, s.SQLResults(), 1)
	assert.Equal(t, StepFailed, s.Plan().StepAt(2).Status)

	// Sequences only grow.
	assert.Len(t, s.RESTResults(), 1)
	assert.Len(t, s.SQLResults(), 1)
	assert.Empty(t, s.SOAPResults())
}

func TestAgentState_ResultForRequiresOK(t *testing.T) {
	s := New(context.Background(), "q", nil)
	s.SetPlan(examplePlan())
	s.AppendResult(AgentResult{StepNumber: 1, AgentType: RESTAgent, ToolName: "t", OK: false})

	_, ok := s.ResultFor(1)
	assert.False(t, ok, "a failed result must not satisfy a dependency")

	s.AppendResult(AgentResult{StepNumber: 1, AgentType: RESTAgent, ToolName: "t", OK: true})
	_, ok = s.ResultFor(1)
	assert.True(t, ok)
}

func TestAgentState_FinalResponseUnsetUntilConsolidatorRuns(t *testing.T) {
	s := New(context.Background(), "q", nil)
	_, ok := s.FinalResponse()
	assert.False(t, ok)

	s.SetFinal("both alerts: A1, A2")
	text, ok := s.FinalResponse()
	require.True(t, ok)
	assert.Equal(t, "both alerts: A1, A2", text)
}

func TestAgentState_ShouldContinueStopsFurtherExecutionSemantically(t *testing.T) {
	s := New(context.Background(), "q", nil)
	assert.True(t, s.ShouldContinue())
	s.SetShouldContinue(false)
	assert.False(t, s.ShouldContinue())
}

func TestAgentState_RecordErrorAppendsWithoutAbortingRun(t *testing.T) {
	s := New(context.Background(), "q", nil)
	s.RecordError(2, errs.KindDependencyUnmet, "step 1 did not complete")
	require.Len(t, s.Errors(), 1)
	assert.Equal(t, errs.KindDependencyUnmet, s.Errors()[0].Kind)
	assert.True(t, s.ShouldContinue(), "recording an error must not itself halt the run")
}

func TestAgentState_DependsOnFormsDAGOverSteps(t *testing.T) {
	// Property 3 (§8): depends_on graphs must be acyclic; this asserts the
	// fixture plan used across this file satisfies it.
	p := examplePlan()
	for _, step := range p.Steps {
		for _, dep := range step.DependsOn {
			assert.Less(t, dep, step.StepNumber, "a step must not depend on itself or a later step")
		}
	}
}
