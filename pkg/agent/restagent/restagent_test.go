package restagent

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

func TestRESTAgent_ExecutesAgainstRegisteredRESTTool(t *testing.T) {
	reg, err := registry.NewToolRegistry(nil)
	require.NoError(t, err)
	require.NoError(t, reg.Register(&tool.Descriptor{
		Name:            "get_order",
		Description:     "fetch an order by id from the orders REST API",
		DataSourceClass: tool.ClassRESTAPI,
		ParameterSchema: []tool.Parameter{{Name: "order_id", Kind: tool.ParamPath, SemanticType: tool.TypeString}},
		Invoke: func(ctx context.Context, args map[string]any) (*tool.Result, error) {
			return &tool.Result{Rows: []map[string]any{{"order_id": args["order_id"]}}}, nil
		},
	}))

	a := New(reg, nil)
	step := &state.Step{StepNumber: 1, Description: "fetch order", ParameterHints: map[string]any{"order_id": "ORD123456"}}

	result := a.Execute(context.Background(), step, "get order ORD123456")
	require.True(t, result.OK)
	assert.Equal(t, state.RESTAgent, result.AgentType)
	assert.Equal(t, "ORD123456", result.Rows[0]["order_id"])
}

func TestRESTAgent_DoesNotRetryUpstreamFailures(t *testing.T) {
	calls := 0
	reg, err := registry.NewToolRegistry(nil)
	require.NoError(t, err)
	require.NoError(t, reg.Register(&tool.Descriptor{
		Name:            "get_order",
		Description:     "fetch an order by id from the orders REST API",
		DataSourceClass: tool.ClassRESTAPI,
		Invoke: func(ctx context.Context, args map[string]any) (*tool.Result, error) {
			calls++
			return nil, &tool.Error{Code: tool.ErrUpstream, Message: "503"}
		},
	}))

	a := New(reg, nil)
	step := &state.Step{StepNumber: 1, Description: "fetch order"}

	result := a.Execute(context.Background(), step, "get order")
	assert.False(t, result.OK)
	assert.Equal(t, errs.KindUpstreamError, result.Error)
	assert.Equal(t, 1, calls)
}
