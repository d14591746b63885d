package agentexec

import (
	"context"
	"encoding/json"
	"time"

	"github.com/queryflowhq/queryflow/pkg/errs"
	"github.com/queryflowhq/queryflow/pkg/llm"
	"github.com/queryflowhq/queryflow/pkg/registry"
	"github.com/queryflowhq/queryflow/pkg/state"
	"github.com/queryflowhq/queryflow/pkg/tool"
)

const topK = 5

// Executor runs the common five-step contract of §4.E against one
// DataSourceClass.
type Executor struct {
	Registry *registry.ToolRegistry
	LLM      llm.Provider
	Class    tool.DataSourceClass
	Type     state.AgentType
}

// Execute implements `execute(step, state_snapshot) -> AgentResult`. It
// never returns an error: every failure mode is folded into a not-ok
// AgentResult so the workflow can proceed (§4.E step 5).
func (e *Executor) Execute(ctx context.Context, step *state.Step, query string) state.AgentResult {
	start := time.Now()
	fail := func(kind errs.Kind, toolName string) state.AgentResult {
		return state.AgentResult{
			StepNumber: step.StepNumber,
			AgentType:  e.Type,
			ToolName:   toolName,
			OK:         false,
			Error:      kind,
			LatencyMS:  time.Since(start).Milliseconds(),
		}
	}

	candidates, err := e.Registry.TopK(ctx, step.Description+" "+query, e.Class, topK)
	if err != nil || len(candidates) == 0 {
		return fail(errs.KindToolNotFound, "")
	}

	chosen, args := e.chooseToolAndArgs(ctx, step, query, candidates)

	result, callErr := chosen.Call(ctx, args)
	if callErr != nil {
		return fail(classifyToolError(callErr), chosen.Name)
	}

	return state.AgentResult{
		StepNumber: step.StepNumber,
		AgentType:  e.Type,
		ToolName:   chosen.Name,
		OK:         true,
		Rows:       normalizeRows(result),
		LatencyMS:  time.Since(start).Milliseconds(),
	}
}

// chooseToolAndArgs implements §4.E step 2: offer the candidates to the LLM
// as tools, let it pick exactly one and emit bound arguments; if the model
// declines or is unavailable, fall back to the top-ranked candidate with
// arguments bound from parameter_hints and query extraction.
func (e *Executor) chooseToolAndArgs(ctx context.Context, step *state.Step, query string, candidates []registry.Ranked) (*tool.Descriptor, map[string]any) {
	top := candidates[0].Descriptor

	if e.LLM == nil {
		args, _ := BindArguments(top.ParameterSchema, nil, step.ParameterHints, query)
		return top, args
	}

	defs := make([]llm.ToolDefinition, 0, len(candidates))
	byName := make(map[string]*tool.Descriptor, len(candidates))
	for _, c := range candidates {
		defs = append(defs, llm.ToolDefinition{
			Name:        c.Descriptor.Name,
			Description: c.Descriptor.Description,
			Parameters:  schemaToJSONSchema(c.Descriptor.ParameterSchema),
		})
		byName[c.Descriptor.Name] = c.Descriptor
	}

	prompt := "Choose exactly one tool to answer: " + step.Description + " (" + query + ")"
	completion, err := e.LLM.Generate(ctx, []llm.Message{{Role: "user", Content: prompt}}, defs)
	if err != nil || completion == nil || len(completion.ToolCalls) == 0 {
		args, _ := BindArguments(top.ParameterSchema, nil, step.ParameterHints, query)
		return top, args
	}

	call := completion.ToolCalls[0]
	descriptor, ok := byName[call.Name]
	if !ok {
		descriptor = top
	}
	args, _ := BindArguments(descriptor.ParameterSchema, call.Arguments, step.ParameterHints, query)
	return descriptor, args
}

func schemaToJSONSchema(params []tool.Parameter) map[string]any {
	properties := make(map[string]any, len(params))
	var required []string
	for _, p := range params {
		properties[p.Name] = map[string]any{
			"type":        jsonTypeFor(p.SemanticType),
			"description": p.Description,
		}
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

func jsonTypeFor(t tool.SemanticType) string {
	switch t {
	case tool.TypeInt:
		return "integer"
	case tool.TypeDecimal:
		return "number"
	case tool.TypeBool:
		return "boolean"
	case tool.TypeObject:
		return "object"
	default:
		return "string"
	}
}

// normalizeRows implements §4.E step 4: normalize the tool's return into
// string-keyed records. When Rows is empty but Raw holds structured data,
// attempt to coerce it into the same shape rather than dropping it.
func normalizeRows(result *tool.Result) []map[string]any {
	if len(result.Rows) > 0 {
		return result.Rows
	}
	if result.Raw == nil {
		return nil
	}
	switch v := result.Raw.(type) {
	case map[string]any:
		return []map[string]any{v}
	case []map[string]any:
		return v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil
		}
		var decoded map[string]any
		if err := json.Unmarshal(b, &decoded); err == nil {
			return []map[string]any{decoded}
		}
		var decodedSlice []map[string]any
		if err := json.Unmarshal(b, &decodedSlice); err == nil {
			return decodedSlice
		}
		return nil
	}
}

func classifyToolError(err error) errs.Kind {
	if terr, ok := err.(*tool.Error); ok {
		return terr.Code.ToErrKind()
	}
	return errs.KindUpstreamError
}
