// Package llm is the gateway between the orchestration core and concrete
// model providers (§4.B). Agents and the planner never see a provider SDK
// type directly; they only ever see Message, ToolDefinition, and Completion.
package llm

import (
	"context"
)

// Message is the universal chat message shape passed to every provider.
type Message struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
	Name       string
}

// ToolDefinition describes one callable tool offered to the model for
// function/tool calling.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
	RawArgs   string
}

// Completion is the gateway's normalized response, identical in shape no
// matter which provider produced it.
type Completion struct {
	Text       string
	ToolCalls  []ToolCall
	TokensUsed int
}

// Provider is implemented by each concrete model backend. Generate must
// return promptly once ctx is cancelled.
type Provider interface {
	Generate(ctx context.Context, messages []Message, tools []ToolDefinition) (*Completion, error)
	ModelName() string
	MaxTokens() int
}

// Gateway wraps a Provider with token accounting shared by every caller
// (planner, agents, consolidator).
type Gateway struct {
	provider Provider
	counter  *TokenCounter
}

// NewGateway builds a Gateway around provider. counter may be nil, in which
// case CountTokens falls back to a whitespace-based estimate.
func NewGateway(provider Provider, counter *TokenCounter) *Gateway {
	return &Gateway{provider: provider, counter: counter}
}

// Generate delegates to the underlying provider.
func (g *Gateway) Generate(ctx context.Context, messages []Message, tools []ToolDefinition) (*Completion, error) {
	return g.provider.Generate(ctx, messages, tools)
}

// ModelName delegates to the underlying provider.
func (g *Gateway) ModelName() string { return g.provider.ModelName() }

// CountTokens estimates the token cost of text using the configured
// tokenizer, or a whitespace-split heuristic if none was configured.
func (g *Gateway) CountTokens(text string) int {
	if g.counter == nil {
		return estimateTokens(text)
	}
	return g.counter.Count(text)
}
