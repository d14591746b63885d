// Package agentexec holds the contract shared by every specialized agent
// (§4.E): ask the registry for candidates, let the model choose a tool via
// tool-calling, bind arguments, invoke, and normalize the result into an
// AgentResult. The sqlagent/restagent/soapagent packages each wrap Executor
// with only the agent-specific notes §4.E calls out.
package agentexec

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/queryflowhq/queryflow/pkg/tool"
)

// BindArguments maps a loosely-typed argument set onto a tool's parameter
// schema, filling gaps from hints and then from simple extraction over the
// query text, and coercing values to each parameter's semantic type (§4.E
// step 2: "bind arguments to that tool's parameter schema"). Coercion uses
// mapstructure's weakly-typed decode hooks.
func BindArguments(schema []tool.Parameter, modelArgs map[string]any, hints map[string]any, query string) (map[string]any, error) {
	raw := make(map[string]any, len(schema))
	for _, p := range schema {
		if v, ok := modelArgs[p.Name]; ok {
			raw[p.Name] = v
			continue
		}
		if hints != nil {
			if v, ok := hints[p.Name]; ok {
				raw[p.Name] = v
				continue
			}
		}
		if v, ok := extractFromQuery(p, query); ok {
			raw[p.Name] = v
			continue
		}
		if p.Default != nil {
			raw[p.Name] = p.Default
		}
	}

	structType := structTypeForSchema(schema)
	target := reflect.New(structType)

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target.Interface(),
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, err
	}

	return structToBoundArgs(target.Elem(), schema), nil
}

// structTypeForSchema builds a struct type with one exported field per
// parameter, tagged so mapstructure targets it by the parameter's original
// name. Building the struct dynamically lets a single mapstructure decode
// pass perform every parameter's type coercion at once.
func structTypeForSchema(schema []tool.Parameter) reflect.Type {
	fields := make([]reflect.StructField, 0, len(schema))
	for i, p := range schema {
		fields = append(fields, reflect.StructField{
			Name: fieldName(i),
			Type: goTypeForSemanticType(p.SemanticType),
			Tag:  reflect.StructTag(`mapstructure:"` + p.Name + `"`),
		})
	}
	return reflect.StructOf(fields)
}

func fieldName(i int) string {
	return "F" + itoa(i)
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	digits := []byte{}
	for i > 0 {
		digits = append([]byte{byte('0' + i%10)}, digits...)
		i /= 10
	}
	return string(digits)
}

func goTypeForSemanticType(t tool.SemanticType) reflect.Type {
	switch t {
	case tool.TypeInt:
		return reflect.TypeOf(int64(0))
	case tool.TypeDecimal:
		return reflect.TypeOf(float64(0))
	case tool.TypeBool:
		return reflect.TypeOf(false)
	default: // string, date, object all pass through as strings/any
		return reflect.TypeOf("")
	}
}

func structToBoundArgs(v reflect.Value, schema []tool.Parameter) map[string]any {
	bound := make(map[string]any, len(schema))
	for i, p := range schema {
		field := v.Field(i)
		if field.Kind() == reflect.String && field.String() == "" {
			continue
		}
		bound[p.Name] = field.Interface()
	}
	return bound
}

var (
	idPattern     = regexp.MustCompile(`[A-Z0-9_]{6,}`)
	datePattern   = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
	statusPattern = regexp.MustCompile(`(?i)\b(open|closed|pending|active|resolved|failed)\b`)
)

// extractFromQuery implements the "simple extraction from state.query" of
// §4.E step 2: regexes for IDs, dates, and status words, scoped to the
// parameter's semantic type and name.
func extractFromQuery(p tool.Parameter, query string) (string, bool) {
	name := strings.ToLower(p.Name)
	switch {
	case strings.Contains(name, "id"):
		if m := idPattern.FindString(query); m != "" {
			return m, true
		}
	case p.SemanticType == tool.TypeDate || strings.Contains(name, "date"):
		if m := datePattern.FindString(query); m != "" {
			return m, true
		}
	case strings.Contains(name, "status"):
		if m := statusPattern.FindString(query); m != "" {
			return strings.ToLower(m), true
		}
	}
	return "", false
}
