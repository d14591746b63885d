// Package soaptool is a reference SOAP_API tool adapter: it posts an
// envelope built from a text/template body template to a SOAP endpoint
// over net/http and decodes the XML response with encoding/xml.
package soaptool

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"text/template"

	"github.com/queryflowhq/queryflow/pkg/tool"
)

// Operation pairs a SOAPAction and envelope body template with the
// tool.Descriptor fields describing it. BodyTemplate is a text/template
// string executed against the bound arguments map. ResultElement names the
// response element whose child elements become the result row's fields.
type Operation struct {
	Name            string
	Description     string
	Keywords        []string
	SOAPAction      string
	BodyTemplate    string
	ResultElement   string
	ParameterSchema []tool.Parameter
	Capabilities    []tool.Capability
	Priority        int
}

// Tool posts SOAP envelopes to one endpoint URL.
type Tool struct {
	endpoint string
	client   *http.Client
}

// New builds a Tool posting to endpoint using client, or
// http.DefaultClient if client is nil.
func New(endpoint string, client *http.Client) *Tool {
	if client == nil {
		client = http.DefaultClient
	}
	return &Tool{endpoint: endpoint, client: client}
}

// Descriptor builds a tool.Descriptor for op, bound to t.invoke. Panics if
// op.BodyTemplate fails to parse, since that is a startup-time
// configuration error, not a per-request one.
func (t *Tool) Descriptor(op Operation) *tool.Descriptor {
	tmpl := template.Must(template.New(op.Name).Parse(op.BodyTemplate))
	return &tool.Descriptor{
		Name:            op.Name,
		Description:     op.Description,
		Keywords:        op.Keywords,
		DataSourceClass: tool.ClassSOAPAPI,
		ParameterSchema: op.ParameterSchema,
		Capabilities:    op.Capabilities,
		Priority:        op.Priority,
		Invoke:          t.invoke(op, tmpl),
	}
}

func (t *Tool) invoke(op Operation, tmpl *template.Template) tool.InvokeFunc {
	return func(ctx context.Context, args map[string]any) (*tool.Result, error) {
		bound := make(map[string]any, len(op.ParameterSchema))
		for _, p := range op.ParameterSchema {
			v, ok := args[p.Name]
			if !ok {
				if p.Required {
					return nil, &tool.Error{Code: tool.ErrBadRequest, Message: fmt.Sprintf("missing required parameter %q", p.Name)}
				}
				v = p.Default
			}
			bound[p.Name] = v
		}

		var envelope bytes.Buffer
		envelope.WriteString(`<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/"><soap:Body>`)
		if err := tmpl.Execute(&envelope, bound); err != nil {
			return nil, &tool.Error{Code: tool.ErrBadRequest, Message: "failed to render request envelope", Cause: err}
		}
		envelope.WriteString(`</soap:Body></soap:Envelope>`)

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(envelope.Bytes()))
		if err != nil {
			return nil, &tool.Error{Code: tool.ErrBadRequest, Message: "failed to build request", Cause: err}
		}
		req.Header.Set("Content-Type", "text/xml; charset=utf-8")
		if op.SOAPAction != "" {
			req.Header.Set("SOAPAction", op.SOAPAction)
		}

		resp, err := t.client.Do(req)
		if err != nil {
			return nil, &tool.Error{Code: tool.ErrUpstream, Message: "request failed", Cause: err}
		}
		defer resp.Body.Close()

		return decodeResponse(resp, op)
	}
}

// soapFault mirrors a SOAP 1.1 fault body, enough to surface a fault
// string as an error rather than an empty success result.
type soapFault struct {
	XMLName xml.Name `xml:"Envelope"`
	Body    struct {
		Fault struct {
			FaultCode   string `xml:"faultcode"`
			FaultString string `xml:"faultstring"`
		} `xml:"Fault"`
	} `xml:"Body"`
}

func decodeResponse(resp *http.Response, op Operation) (*tool.Result, error) {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &tool.Error{Code: tool.ErrUpstream, Message: "failed to read response body", Cause: err}
	}

	if resp.StatusCode >= 400 {
		var fault soapFault
		if xml.Unmarshal(data, &fault) == nil && fault.Body.Fault.FaultString != "" {
			return nil, &tool.Error{Code: tool.ErrUpstream, Message: fault.Body.Fault.FaultString}
		}
		return nil, &tool.Error{Code: tool.ErrUpstream, Message: fmt.Sprintf("upstream returned %d", resp.StatusCode)}
	}

	row := make(map[string]any)
	decoder := xml.NewDecoder(bytes.NewReader(data))
	inResult := false
	var textBuf bytes.Buffer
	var currentField string

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &tool.Error{Code: tool.ErrSchemaMismatch, Message: "response is not valid XML", Cause: err}
		}

		switch el := tok.(type) {
		case xml.StartElement:
			if el.Name.Local == op.ResultElement {
				inResult = true
				continue
			}
			if inResult {
				currentField = el.Name.Local
				textBuf.Reset()
			}
		case xml.CharData:
			if inResult && currentField != "" {
				textBuf.Write(el)
			}
		case xml.EndElement:
			if el.Name.Local == op.ResultElement {
				inResult = false
				continue
			}
			if inResult && el.Name.Local == currentField {
				row[currentField] = textBuf.String()
				currentField = ""
			}
		}
	}

	if len(row) == 0 {
		return &tool.Result{SourceTag: op.Name}, nil
	}
	return &tool.Result{Rows: []map[string]any{row}, SourceTag: op.Name}, nil
}
