package resttool

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/queryflowhq/queryflow/pkg/tool"
)

func lookupEndpoint() Endpoint {
	return Endpoint{
		Name:         "lookup_ticket",
		Description:  "look up a ticket by id",
		Method:       http.MethodGet,
		PathTemplate: "/tickets/{ticket_id}",
		ParameterSchema: []tool.Parameter{
			{Name: "ticket_id", Kind: tool.ParamPath, SemanticType: tool.TypeString, Required: true},
			{Name: "verbose", Kind: tool.ParamQuery, SemanticType: tool.TypeBool},
		},
		Capabilities: []tool.Capability{tool.CapLookupByID},
	}
}

func TestTool_InvokeSubstitutesPathAndQueryThenDecodesObjectIntoSingleRow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tickets/T42", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("verbose"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ticket_id":"T42","status":"open"}`))
	}))
	defer srv.Close()

	tl := New(srv.URL, srv.Client(), nil)
	d := tl.Descriptor(lookupEndpoint())

	result, err := d.Invoke(context.Background(), map[string]any{"ticket_id": "T42", "verbose": true})
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "T42", result.Rows[0]["ticket_id"])
}

func TestTool_InvokeDecodesJSONArrayIntoRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"ticket_id":"T1"},{"ticket_id":"T2"}]`))
	}))
	defer srv.Close()

	tl := New(srv.URL, srv.Client(), nil)
	d := tl.Descriptor(lookupEndpoint())

	result, err := d.Invoke(context.Background(), map[string]any{"ticket_id": "T1"})
	require.NoError(t, err)
	assert.Len(t, result.Rows, 2)
}

func TestTool_InvokeMissingRequiredParameterReturnsBadRequest(t *testing.T) {
	tl := New("http://example.invalid", nil, nil)
	d := tl.Descriptor(lookupEndpoint())

	_, err := d.Invoke(context.Background(), map[string]any{})
	var toolErr *tool.Error
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, tool.ErrBadRequest, toolErr.Code)
}

func TestTool_InvokeMapsStatusCodesToErrorCodes(t *testing.T) {
	cases := []struct {
		status int
		want   tool.ErrorCode
	}{
		{http.StatusUnauthorized, tool.ErrUnauthorized},
		{http.StatusNotFound, tool.ErrNotFound},
		{http.StatusRequestTimeout, tool.ErrTimeout},
		{http.StatusBadRequest, tool.ErrBadRequest},
		{http.StatusInternalServerError, tool.ErrUpstream},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))

		tl := New(srv.URL, srv.Client(), nil)
		d := tl.Descriptor(lookupEndpoint())
		_, err := d.Invoke(context.Background(), map[string]any{"ticket_id": "T1"})
		srv.Close()

		var toolErr *tool.Error
		require.ErrorAs(t, err, &toolErr)
		assert.Equal(t, tc.want, toolErr.Code)
	}
}

func TestTool_InvokeSendsCustomHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	tl := New(srv.URL, srv.Client(), map[string]string{"Authorization": "Bearer secret"})
	d := tl.Descriptor(lookupEndpoint())

	_, err := d.Invoke(context.Background(), map[string]any{"ticket_id": "T1"})
	require.NoError(t, err)
}
