package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// GenericHTTPProvider targets a self-hosted or otherwise OpenAI-incompatible
// chat endpoint whose response shape is not known in advance. Unlike the
// named-provider adapters, it decodes the response body into a bare
// map[string]any and runs it through ExtractText, so it tolerates any of the
// shapes that function recognizes without needing a dedicated adapter.
type GenericHTTPProvider struct {
	endpoint    string
	model       string
	maxTokens   int
	temperature float64
	httpClient  *http.Client
	headers     map[string]string
}

// NewGenericHTTPProvider builds a provider that POSTs a minimal chat payload
// to endpoint and normalizes whatever JSON shape comes back.
func NewGenericHTTPProvider(endpoint, model string, maxTokens int, temperature float64, headers map[string]string) *GenericHTTPProvider {
	return &GenericHTTPProvider{
		endpoint:    endpoint,
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
		httpClient:  &http.Client{},
		headers:     headers,
	}
}

func (p *GenericHTTPProvider) ModelName() string { return p.model }
func (p *GenericHTTPProvider) MaxTokens() int    { return p.maxTokens }

func (p *GenericHTTPProvider) Generate(ctx context.Context, messages []Message, tools []ToolDefinition) (*Completion, error) {
	payload := map[string]any{
		"model":       p.model,
		"messages":    messages,
		"max_tokens":  p.maxTokens,
		"temperature": p.temperature,
	}
	if len(tools) > 0 {
		payload["tools"] = tools
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range p.headers {
		req.Header.Set(k, v)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call endpoint: %w", err)
	}
	defer resp.Body.Close()

	var decoded any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("endpoint returned status %d: %s", resp.StatusCode, ExtractText(decoded))
	}

	return &Completion{Text: ExtractText(decoded)}, nil
}
