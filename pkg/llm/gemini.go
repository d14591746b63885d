package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiProvider implements Provider against Google's Gemini API.
type GeminiProvider struct {
	client      *genai.Client
	model       string
	maxTokens   int
	temperature float64
}

// NewGeminiProvider builds a provider bound to apiKey and model.
func NewGeminiProvider(ctx context.Context, apiKey, model string, maxTokens int, temperature float64) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiProvider{client: client, model: model, maxTokens: maxTokens, temperature: temperature}, nil
}

func (p *GeminiProvider) ModelName() string { return p.model }
func (p *GeminiProvider) MaxTokens() int    { return p.maxTokens }

// Generate sends messages and tools to Gemini and normalizes the result.
func (p *GeminiProvider) Generate(ctx context.Context, messages []Message, tools []ToolDefinition) (*Completion, error) {
	contents := toGeminiContents(messages)

	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(p.temperature)),
		MaxOutputTokens: int32(p.maxTokens),
	}
	if len(tools) > 0 {
		config.Tools = []*genai.Tool{toGeminiTool(tools)}
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini generate content: %w", err)
	}

	completion := &Completion{Text: resp.Text()}
	if resp.UsageMetadata != nil {
		completion.TokensUsed = int(resp.UsageMetadata.TotalTokenCount)
	}
	for _, call := range resp.FunctionCalls() {
		completion.ToolCalls = append(completion.ToolCalls, ToolCall{
			Name:      call.Name,
			Arguments: call.Args,
		})
	}
	return completion, nil
}

func toGeminiContents(messages []Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		role := genai.RoleUser
		if m.Role == "assistant" || m.Role == "model" {
			role = genai.RoleModel
		}
		out = append(out, genai.NewContentFromText(m.Content, role))
	}
	return out
}

func toGeminiTool(tools []ToolDefinition) *genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  schemaFromMap(t.Parameters),
		})
	}
	return &genai.Tool{FunctionDeclarations: decls}
}

func schemaFromMap(m map[string]any) *genai.Schema {
	if m == nil {
		return nil
	}
	schema := &genai.Schema{Type: genai.TypeObject}
	props, _ := m["properties"].(map[string]any)
	if len(props) > 0 {
		schema.Properties = make(map[string]*genai.Schema, len(props))
		for name := range props {
			schema.Properties[name] = &genai.Schema{Type: genai.TypeString}
		}
	}
	if required, ok := m["required"].([]string); ok {
		schema.Required = required
	}
	return schema
}
