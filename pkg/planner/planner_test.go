package planner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/queryflowhq/queryflow/pkg/llm"
	"github.com/queryflowhq/queryflow/pkg/registry"
	"github.com/queryflowhq/queryflow/pkg/state"
	"github.com/queryflowhq/queryflow/pkg/tool"
)

func restDescriptor(name, desc string) *tool.Descriptor {
	return &tool.Descriptor{
		Name:            name,
		Description:     desc,
		DataSourceClass: tool.ClassRESTAPI,
		Invoke: func(ctx context.Context, args map[string]any) (*tool.Result, error) {
			return &tool.Result{}, nil
		},
	}
}

// stubProvider returns a fixed completion or an error, simulating an
// unparseable / unavailable LLM for the heuristic-fallback tests.
type stubProvider struct {
	text string
	err  error
}

func (s *stubProvider) Generate(ctx context.Context, messages []llm.Message, tools []llm.ToolDefinition) (*llm.Completion, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &llm.Completion{Text: s.text}, nil
}
func (s *stubProvider) ModelName() string { return "stub" }
func (s *stubProvider) MaxTokens() int    { return 1024 }

func newRegistryWithRESTTool(t *testing.T, name, desc string) *registry.ToolRegistry {
	t.Helper()
	reg, err := registry.NewToolRegistry(nil)
	require.NoError(t, err)
	require.NoError(t, reg.Register(restDescriptor(name, desc)))
	return reg
}

func TestPlanner_EmptyCatalogueReturnsError(t *testing.T) {
	reg, err := registry.NewToolRegistry(nil)
	require.NoError(t, err)
	p := New(nil, reg)

	plan, err := p.Plan(context.Background(), "show me alerts", nil)
	require.Error(t, err)
	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ErrEmptyCatalogue, perr.Code)
	assert.Empty(t, plan.Steps)
}

func TestPlanner_HeuristicFallbackOnUnparseableLLMResponse(t *testing.T) {
	// Scenario S6 (§8): LLM gateway stub returns unparseable text.
	reg := newRegistryWithRESTTool(t, "list_alerts", "list open alerts by status for the monitoring system")
	p := New(&stubProvider{text: "not json at all"}, reg)

	plan, err := p.Plan(context.Background(), "Show me all open alerts", nil)
	require.NoError(t, err)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, state.RESTAgent, plan.Steps[0].AgentType)
}

func TestPlanner_HeuristicFallbackOnNilLLM(t *testing.T) {
	reg := newRegistryWithRESTTool(t, "list_alerts", "list open alerts by status")
	p := New(nil, reg)

	plan, err := p.Plan(context.Background(), "Show me all open alerts", nil)
	require.NoError(t, err)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, tool.ClassRESTAPI, plan.Steps[0].DataSourceClass)
}

func TestPlanner_LLMDrivenMultiStepPlan(t *testing.T) {
	reg, err := registry.NewToolRegistry(nil)
	require.NoError(t, err)
	require.NoError(t, reg.Register(&tool.Descriptor{
		Name: "list_users", Description: "list users by department", DataSourceClass: tool.ClassRESTAPI,
		Invoke: func(ctx context.Context, args map[string]any) (*tool.Result, error) { return &tool.Result{}, nil },
	}))
	require.NoError(t, reg.Register(&tool.Descriptor{
		Name: "alerts_by_user", Description: "sql query joining alerts to a user id", DataSourceClass: tool.ClassRelationalDB,
		Invoke: func(ctx context.Context, args map[string]any) (*tool.Result, error) { return &tool.Result{}, nil },
	}))

	provider := &stubProvider{text: `{
		"intent": "read",
		"entities": ["ENGINEERING01"],
		"required_sources": ["REST_API", "RELATIONAL_DB"],
		"requires_consolidation": true,
		"estimated_complexity": "med",
		"notes": {}
	}`}
	p := New(provider, reg)

	plan, err := p.Plan(context.Background(), "High severity alerts for Engineering users", nil)
	require.NoError(t, err)
	require.Len(t, plan.Steps, 2)
	assert.True(t, plan.RequiresConsolidation)
	assert.Equal(t, state.ComplexityMedium, plan.EstimatedComplexity)
	assert.Equal(t, []int{1}, plan.Steps[1].DependsOn)
}

func TestPlanner_InvokesOnPlanStepOncePerGeneratedStep(t *testing.T) {
	reg, err := registry.NewToolRegistry(nil)
	require.NoError(t, err)
	require.NoError(t, reg.Register(restDescriptor("list_users", "list users by department")))
	require.NoError(t, reg.Register(&tool.Descriptor{
		Name: "alerts_by_user", Description: "sql query joining alerts to a user id", DataSourceClass: tool.ClassRelationalDB,
		Invoke: func(ctx context.Context, args map[string]any) (*tool.Result, error) { return &tool.Result{}, nil },
	}))

	provider := &stubProvider{text: `{
		"intent": "read",
		"entities": ["ENGINEERING01"],
		"required_sources": ["REST_API", "RELATIONAL_DB"],
		"requires_consolidation": true,
		"estimated_complexity": "med",
		"notes": {}
	}`}
	p := New(provider, reg)

	var seen []string
	p.OnPlanStep = func(agentType string) { seen = append(seen, agentType) }

	plan, err := p.Plan(context.Background(), "High severity alerts for Engineering users", nil)
	require.NoError(t, err)
	require.Len(t, seen, len(plan.Steps))
}

func TestValidateDAG_RejectsForwardReference(t *testing.T) {
	steps := []*state.Step{
		{StepNumber: 1, DependsOn: []int{2}},
		{StepNumber: 2},
	}
	err := validateDAG(steps)
	require.Error(t, err)
}

func TestValidateDAG_RejectsSelfReference(t *testing.T) {
	steps := []*state.Step{
		{StepNumber: 1, DependsOn: []int{1}},
	}
	err := validateDAG(steps)
	require.Error(t, err)
}

func TestValidateDAG_RejectsCycle(t *testing.T) {
	steps := []*state.Step{
		{StepNumber: 1, DependsOn: []int{2}},
		{StepNumber: 2, DependsOn: []int{1}},
	}
	// Note: this construction is artificial (real generateSteps never
	// produces a backward-pointing forward reference like step 1 -> 2), but
	// detectCycle must still reject it defensively.
	err := detectCycle(steps)
	require.Error(t, err)
}

func TestPlanner_DAGRejectionFallsBackToSingleHighestRankedStep(t *testing.T) {
	reg := newRegistryWithRESTTool(t, "list_alerts", "list open alerts")
	// Force a cyclic document by hand-building a plan bypassing Plan(); this
	// test exercises singleStepFallback directly since generateSteps itself
	// never emits a cycle from well-formed analysisDocs.
	p := New(nil, reg)
	catalogue := reg.List()
	fallback := p.singleStepFallback(context.Background(), "show alerts", catalogue, nil)
	require.Len(t, fallback.Steps, 1)
	assert.False(t, fallback.RequiresConsolidation)
	assert.Equal(t, "list_alerts", catalogue[0].Name)
}
