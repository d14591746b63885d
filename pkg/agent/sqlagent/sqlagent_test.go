package sqlagent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/queryflowhq/queryflow/pkg/errs"
	"github.com/queryflowhq/queryflow/pkg/registry"
	"github.com/queryflowhq/queryflow/pkg/state"
	"github.com/queryflowhq/queryflow/pkg/tool"
)

func TestSQLAgent_RetriesTwiceThenGivesUpOnPersistentSchemaMismatch(t *testing.T) {
	calls := 0
	reg, err := registry.NewToolRegistry(nil)
	require.NoError(t, err)
	require.NoError(t, reg.Register(&tool.Descriptor{
		Name:            "ad_hoc_query",
		Description:     "ad hoc sql query tool",
		DataSourceClass: tool.ClassRelationalDB,
		Invoke: func(ctx context.Context, args map[string]any) (*tool.Result, error) {
			calls++
			return nil, &tool.Error{Code: tool.ErrSchemaMismatch, Message: "unexpected column"}
		},
	}))

	a := New(reg, nil)
	step := &state.Step{StepNumber: 1, Description: "ad hoc query", ParameterHints: map[string]any{"q": "select *"}}

	result := a.Execute(context.Background(), step, "run an ad hoc query")
	assert.False(t, result.OK)
	assert.Equal(t, errs.KindSchemaMismatch, result.Error)
	assert.Equal(t, 3, calls, "one initial attempt plus two retries")
}

func TestSQLAgent_SucceedsOnSecondRetry(t *testing.T) {
	calls := 0
	reg, err := registry.NewToolRegistry(nil)
	require.NoError(t, err)
	require.NoError(t, reg.Register(&tool.Descriptor{
		Name:            "ad_hoc_query",
		Description:     "ad hoc sql query tool",
		DataSourceClass: tool.ClassRelationalDB,
		Invoke: func(ctx context.Context, args map[string]any) (*tool.Result, error) {
			calls++
			if calls < 3 {
				return nil, &tool.Error{Code: tool.ErrSchemaMismatch, Message: "unexpected column"}
			}
			return &tool.Result{Rows: []map[string]any{{"alert_id": "A9"}}}, nil
		},
	}))

	a := New(reg, nil)
	step := &state.Step{StepNumber: 1, Description: "ad hoc query"}

	result := a.Execute(context.Background(), step, "run an ad hoc query")
	require.True(t, result.OK)
	assert.Equal(t, 3, calls)
}

func TestSQLAgent_DoesNotRetryNonSchemaMismatchErrors(t *testing.T) {
	calls := 0
	reg, err := registry.NewToolRegistry(nil)
	require.NoError(t, err)
	require.NoError(t, reg.Register(&tool.Descriptor{
		Name:            "ad_hoc_query",
		Description:     "ad hoc sql query tool",
		DataSourceClass: tool.ClassRelationalDB,
		Invoke: func(ctx context.Context, args map[string]any) (*tool.Result, error) {
			calls++
			return nil, &tool.Error{Code: tool.ErrUpstream, Message: "connection refused"}
		},
	}))

	a := New(reg, nil)
	step := &state.Step{StepNumber: 1, Description: "ad hoc query"}

	result := a.Execute(context.Background(), step, "run an ad hoc query")
	assert.False(t, result.OK)
	assert.Equal(t, 1, calls, "only SCHEMA_MISMATCH failures are retried by the SQL agent")
}
