// Package resttool is a reference REST_API tool adapter: it turns a
// tool.Descriptor bound to a URL template and HTTP method into a
// net/http request, decoding a JSON response into tool.Result.
package resttool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/queryflowhq/queryflow/pkg/tool"
)

// Endpoint pairs an HTTP method and URL template with the tool.Descriptor
// fields describing it. PathTemplate uses Go's "{name}" placeholder
// convention, substituted from ParamPath arguments.
type Endpoint struct {
	Name            string
	Description     string
	Keywords        []string
	Method          string
	PathTemplate    string
	ParameterSchema []tool.Parameter
	Capabilities    []tool.Capability
	Priority        int
}

// Tool issues requests against one REST API's base URL.
type Tool struct {
	baseURL string
	client  *http.Client
	headers map[string]string
}

// New builds a Tool rooted at baseURL (no trailing slash required) using
// client, or http.DefaultClient if client is nil. headers are sent on
// every request (e.g. a bearer token), and may be nil.
func New(baseURL string, client *http.Client, headers map[string]string) *Tool {
	if client == nil {
		client = http.DefaultClient
	}
	return &Tool{baseURL: strings.TrimSuffix(baseURL, "/"), client: client, headers: headers}
}

// Descriptor builds a tool.Descriptor for e, bound to t.invoke.
func (t *Tool) Descriptor(e Endpoint) *tool.Descriptor {
	return &tool.Descriptor{
		Name:            e.Name,
		Description:     e.Description,
		Keywords:        e.Keywords,
		DataSourceClass: tool.ClassRESTAPI,
		ParameterSchema: e.ParameterSchema,
		Capabilities:    e.Capabilities,
		Priority:        e.Priority,
		Invoke:          t.invoke(e),
	}
}

func (t *Tool) invoke(e Endpoint) tool.InvokeFunc {
	return func(ctx context.Context, args map[string]any) (*tool.Result, error) {
		path, query, body, err := bindParameters(e, args)
		if err != nil {
			return nil, err
		}

		reqURL := t.baseURL + path
		if len(query) > 0 {
			reqURL += "?" + query.Encode()
		}

		var bodyReader io.Reader
		if body != nil {
			payload, err := json.Marshal(body)
			if err != nil {
				return nil, &tool.Error{Code: tool.ErrBadRequest, Message: "failed to encode request body", Cause: err}
			}
			bodyReader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, e.Method, reqURL, bodyReader)
		if err != nil {
			return nil, &tool.Error{Code: tool.ErrBadRequest, Message: "failed to build request", Cause: err}
		}
		if bodyReader != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")
		for k, v := range t.headers {
			req.Header.Set(k, v)
		}

		resp, err := t.client.Do(req)
		if err != nil {
			return nil, &tool.Error{Code: tool.ErrUpstream, Message: "request failed", Cause: err}
		}
		defer resp.Body.Close()

		return decodeResponse(resp, e.Name)
	}
}

// bindParameters splits args into path substitutions, query parameters, and
// a JSON request body, by each parameter's Kind.
func bindParameters(e Endpoint, args map[string]any) (path string, query url.Values, body map[string]any, err error) {
	path = e.PathTemplate
	query = url.Values{}

	for _, p := range e.ParameterSchema {
		v, ok := args[p.Name]
		if !ok {
			if p.Required {
				return "", nil, nil, &tool.Error{Code: tool.ErrBadRequest, Message: fmt.Sprintf("missing required parameter %q", p.Name)}
			}
			if p.Default == nil {
				continue
			}
			v = p.Default
		}

		switch p.Kind {
		case tool.ParamPath:
			path = strings.ReplaceAll(path, "{"+p.Name+"}", fmt.Sprintf("%v", v))
		case tool.ParamQuery:
			query.Set(p.Name, fmt.Sprintf("%v", v))
		case tool.ParamBody:
			if body == nil {
				body = make(map[string]any)
			}
			body[p.Name] = v
		case tool.ParamHeader, tool.ParamPositional:
			// headers are set once for the whole tool via New; positional
			// parameters don't apply to a path/query/body-shaped request.
		}
	}
	return path, query, body, nil
}

// decodeResponse classifies resp's status code and decodes a JSON array or
// object body into tool.Result.
func decodeResponse(resp *http.Response, sourceTag string) (*tool.Result, error) {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &tool.Error{Code: tool.ErrUpstream, Message: "failed to read response body", Cause: err}
	}

	if code := classifyStatus(resp.StatusCode); code != "" {
		return nil, &tool.Error{Code: code, Message: fmt.Sprintf("upstream returned %d", resp.StatusCode)}
	}

	if len(data) == 0 {
		return &tool.Result{SourceTag: sourceTag}, nil
	}

	var rows []map[string]any
	if err := json.Unmarshal(data, &rows); err == nil {
		return &tool.Result{Rows: rows, SourceTag: sourceTag}, nil
	}

	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &tool.Error{Code: tool.ErrSchemaMismatch, Message: "response body is not valid JSON", Cause: err}
	}
	if obj, ok := raw.(map[string]any); ok {
		return &tool.Result{Rows: []map[string]any{obj}, Raw: raw, SourceTag: sourceTag}, nil
	}
	return &tool.Result{Raw: raw, SourceTag: sourceTag}, nil
}

func classifyStatus(status int) tool.ErrorCode {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return tool.ErrUnauthorized
	case status == http.StatusNotFound:
		return tool.ErrNotFound
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return tool.ErrTimeout
	case status >= 400 && status < 500:
		return tool.ErrBadRequest
	case status >= 500:
		return tool.ErrUpstream
	default:
		return ""
	}
}
