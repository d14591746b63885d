package soaptool

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/queryflowhq/queryflow/pkg/tool"
)

func getPolicyOperation() Operation {
	return Operation{
		Name:          "get_policy",
		Description:   "look up an insurance policy by number",
		SOAPAction:    "urn:getPolicy",
		BodyTemplate:  `<getPolicy><policyNumber>{{.policy_number}}</policyNumber></getPolicy>`,
		ResultElement: "getPolicyResponse",
		ParameterSchema: []tool.Parameter{
			{Name: "policy_number", Kind: tool.ParamBody, SemanticType: tool.TypeString, Required: true},
		},
		Capabilities: []tool.Capability{tool.CapLookupByID},
	}
}

func TestTool_InvokeRendersEnvelopeAndDecodesResultElement(t *testing.T) {
	var receivedBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "urn:getPolicy", r.Header.Get("SOAPAction"))
		data, _ := io.ReadAll(r.Body)
		receivedBody = string(data)
		w.Header().Set("Content-Type", "text/xml")
		w.Write([]byte(`<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">` +
			`<soap:Body><getPolicyResponse><status>active</status><policyNumber>P1</policyNumber></getPolicyResponse></soap:Body></soap:Envelope>`))
	}))
	defer srv.Close()

	tl := New(srv.URL, srv.Client())
	d := tl.Descriptor(getPolicyOperation())

	result, err := d.Invoke(context.Background(), map[string]any{"policy_number": "P1"})
	require.NoError(t, err)
	require.Contains(t, receivedBody, "<policyNumber>P1</policyNumber>")
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "active", result.Rows[0]["status"])
	assert.Equal(t, "P1", result.Rows[0]["policyNumber"])
}

func TestTool_InvokeFaultResponseReturnsUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">` +
			`<soap:Body><soap:Fault><faultcode>soap:Server</faultcode><faultstring>policy not found</faultstring></soap:Fault></soap:Body></soap:Envelope>`))
	}))
	defer srv.Close()

	tl := New(srv.URL, srv.Client())
	d := tl.Descriptor(getPolicyOperation())

	_, err := d.Invoke(context.Background(), map[string]any{"policy_number": "P404"})
	var toolErr *tool.Error
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, tool.ErrUpstream, toolErr.Code)
	assert.Equal(t, "policy not found", toolErr.Message)
}

func TestTool_InvokeMissingRequiredParameterReturnsBadRequest(t *testing.T) {
	tl := New("http://example.invalid", nil)
	d := tl.Descriptor(getPolicyOperation())

	_, err := d.Invoke(context.Background(), map[string]any{})
	var toolErr *tool.Error
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, tool.ErrBadRequest, toolErr.Code)
}
