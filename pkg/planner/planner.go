// Package planner turns a user query into a dependency-ordered Plan of
// Steps (§4.D). The LLM-driven Analyze step is always attempted first; any
// failure to reach or parse a usable response falls through to a
// deterministic keyword heuristic rather than surfacing an error to the
// caller, following the "never block the run on the model" approach the
// teacher's goal-extraction code already takes.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/queryflowhq/queryflow/pkg/llm"
	"github.com/queryflowhq/queryflow/pkg/registry"
	"github.com/queryflowhq/queryflow/pkg/state"
	"github.com/queryflowhq/queryflow/pkg/tool"
)

// Error is returned only for the one failure mode the heuristic path cannot
// paper over: an empty tool catalogue.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Code + ": " + e.Message }

const (
	ErrLLMUnavailable = "LLM_UNAVAILABLE"
	ErrParseFailed    = "PARSE_FAILED"
	ErrEmptyCatalogue = "EMPTY_CATALOGUE"
)

// analysisDoc is the JSON document requested from the LLM in step 1, and
// produced by the heuristic fallback in step 1b under the same shape.
type analysisDoc struct {
	Intent                string            `json:"intent"`
	Entities              []string          `json:"entities"`
	RequiredSources       []string          `json:"required_sources"`
	RequiresConsolidation bool              `json:"requires_consolidation"`
	EstimatedComplexity   string            `json:"estimated_complexity"`
	Notes                 map[string]string `json:"notes"`
}

// Planner produces Plans from queries, backed by an LLM provider and a tool
// catalogue.
type Planner struct {
	llm      llm.Provider
	registry *registry.ToolRegistry

	// OnPlanStep, if set, is called once per step a Plan call produces,
	// with the step's agent type. It exists so a caller can feed ambient
	// metrics without this package depending on a metrics library.
	OnPlanStep func(agentType string)
}

// New builds a Planner. llmProvider may be nil, in which case Analyze always
// takes the heuristic path.
func New(llmProvider llm.Provider, reg *registry.ToolRegistry) *Planner {
	return &Planner{llm: llmProvider, registry: reg}
}

// Plan runs the full algorithm of §4.D and returns a validated Plan.
func (p *Planner) Plan(ctx context.Context, query string, callerContext map[string]any) (*state.Plan, error) {
	catalogue := p.registry.List()
	if len(catalogue) == 0 {
		return &state.Plan{PlanID: uuid.NewString(), Query: query, Steps: nil}, &Error{Code: ErrEmptyCatalogue, Message: "tool registry is empty"}
	}

	doc := p.analyze(ctx, query, callerContext, catalogue)

	steps := generateSteps(doc, catalogue)
	if p.OnPlanStep != nil {
		for _, step := range steps {
			p.OnPlanStep(string(step.AgentType))
		}
	}
	requiresConsolidation := len(steps) > 1 || doc.RequiresConsolidation

	plan := &state.Plan{
		PlanID:                uuid.NewString(),
		Query:                 query,
		Steps:                 steps,
		RequiresConsolidation: requiresConsolidation,
		EstimatedComplexity:   complexityFromString(doc.EstimatedComplexity),
		Notes:                 doc.Notes,
	}

	if err := validateDAG(plan.Steps); err != nil {
		return p.singleStepFallback(ctx, query, catalogue, doc.Notes), nil
	}

	return plan, nil
}

// analyze performs step 1 (LLM) and falls through to step 1b (heuristic) on
// any failure to obtain a parseable document.
func (p *Planner) analyze(ctx context.Context, query string, callerContext map[string]any, catalogue []*tool.Descriptor) analysisDoc {
	if p.llm == nil {
		return heuristicAnalyze(query, catalogue)
	}

	prompt := buildAnalysisPrompt(query, callerContext, catalogue)
	completion, err := p.llm.Generate(ctx, []llm.Message{{Role: "user", Content: prompt}}, nil)
	if err != nil {
		return heuristicAnalyze(query, catalogue)
	}

	var doc analysisDoc
	if err := json.Unmarshal([]byte(extractJSONObject(completion.Text)), &doc); err != nil {
		return heuristicAnalyze(query, catalogue)
	}
	if len(doc.RequiredSources) == 0 {
		return heuristicAnalyze(query, catalogue)
	}
	return doc
}

// extractJSONObject trims any leading/trailing prose around a JSON object,
// so a model that wraps its answer in markdown fences or a sentence still
// parses.
func extractJSONObject(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end < start {
		return text
	}
	return text[start : end+1]
}

func buildAnalysisPrompt(query string, callerContext map[string]any, catalogue []*tool.Descriptor) string {
	var b strings.Builder
	b.WriteString("You are the planning stage of a multi-agent query engine. ")
	b.WriteString("Decompose the user's request into the data sources required to answer it.\n\n")
	fmt.Fprintf(&b, "User query: %s\n\n", query)
	if len(callerContext) > 0 {
		ctxJSON, _ := json.Marshal(callerContext)
		fmt.Fprintf(&b, "Context: %s\n\n", string(ctxJSON))
	}
	b.WriteString("Available tools:\n")
	for _, d := range catalogue {
		fmt.Fprintf(&b, "- %s (%s): %s\n", d.Name, d.DataSourceClass, d.Description)
	}
	b.WriteString("\nRespond with a single JSON object with fields: ")
	b.WriteString(`intent, entities (array of string), required_sources (array of one of RELATIONAL_DB/REST_API/SOAP_API), requires_consolidation (bool), estimated_complexity (low/med/high), notes (object). `)
	b.WriteString("No prose outside the JSON object.")
	return b.String()
}

var idTokenPattern = regexp.MustCompile(`[A-Z0-9_]{6,}`)

// heuristicAnalyze implements §4.D step 1b: a deterministic keyword-based
// substitute for the LLM analysis document.
func heuristicAnalyze(query string, catalogue []*tool.Descriptor) analysisDoc {
	lower := strings.ToLower(query)

	intent := "lookup"
	for _, kw := range []string{"list", "show", "find", "search"} {
		if strings.Contains(lower, kw) {
			intent = "read"
			break
		}
	}

	var entities []string
	if ids := idTokenPattern.FindAllString(query, -1); len(ids) > 0 {
		entities = ids
	}

	classesPresent := map[tool.DataSourceClass]bool{}
	for _, d := range catalogue {
		if descriptorMatchesQuery(d, lower) {
			classesPresent[d.DataSourceClass] = true
		}
	}
	// No descriptor scored a keyword hit: fall back to every class that
	// exists in the catalogue at all.
	if len(classesPresent) == 0 {
		for _, d := range catalogue {
			classesPresent[d.DataSourceClass] = true
		}
	}

	var sources []string
	for _, c := range []tool.DataSourceClass{tool.ClassRelationalDB, tool.ClassRESTAPI, tool.ClassSOAPAPI} {
		if classesPresent[c] {
			sources = append(sources, string(c))
		}
	}

	return analysisDoc{
		Intent:                intent,
		Entities:              entities,
		RequiredSources:       sources,
		RequiresConsolidation: len(sources) > 1,
		EstimatedComplexity:   "low",
	}
}

// descriptorMatchesQuery is a coarse token-overlap check used only to decide
// which data-source classes the heuristic path should include; it is
// intentionally simpler than registry.Rank's Jaccard scoring since this
// runs without any registry query round-trip.
func descriptorMatchesQuery(d *tool.Descriptor, lowerQuery string) bool {
	for _, word := range strings.Fields(strings.ToLower(d.SearchText())) {
		word = strings.Trim(word, ".,()")
		if len(word) > 3 && strings.Contains(lowerQuery, word) {
			return true
		}
	}
	return false
}

func complexityFromString(s string) state.Complexity {
	switch s {
	case "med", "medium":
		return state.ComplexityMedium
	case "high":
		return state.ComplexityHigh
	default:
		return state.ComplexityLow
	}
}

// generateSteps implements §4.D step 2: one Step per required source, with
// later steps depending on earlier ones that share an identifier entity.
func generateSteps(doc analysisDoc, catalogue []*tool.Descriptor) []*state.Step {
	steps := make([]*state.Step, 0, len(doc.RequiredSources))
	for i, src := range doc.RequiredSources {
		class := tool.DataSourceClass(src)
		agentType := agentTypeForClass(class)
		if agentType == "" {
			continue
		}
		step := &state.Step{
			StepNumber:      i + 1,
			Description:     doc.Intent,
			AgentType:       agentType,
			DataSourceClass: class,
			Status:          state.StepPending,
			ParameterHints:  entityHints(doc.Entities),
		}
		// When more than one source shares an identifier-bearing entity,
		// later steps depend on the first step — a later step consuming the
		// same entity the first step is expected to resolve.
		if i > 0 && len(doc.Entities) > 0 {
			step.DependsOn = []int{1}
		}
		steps = append(steps, step)
	}
	return steps
}

func entityHints(entities []string) map[string]any {
	if len(entities) == 0 {
		return nil
	}
	hints := make(map[string]any, 1)
	hints["entities"] = entities
	return hints
}

func agentTypeForClass(c tool.DataSourceClass) state.AgentType {
	switch c {
	case tool.ClassRelationalDB:
		return state.SQLAgent
	case tool.ClassRESTAPI:
		return state.RESTAgent
	case tool.ClassSOAPAPI:
		return state.SOAPAgent
	default:
		return ""
	}
}

// validateDAG implements §4.D step 4: reject plans whose depends_on graph
// has a cycle or a forward reference (property 3, §8).
func validateDAG(steps []*state.Step) error {
	byNumber := make(map[int]*state.Step, len(steps))
	for _, s := range steps {
		byNumber[s.StepNumber] = s
	}
	for _, s := range steps {
		for _, dep := range s.DependsOn {
			if dep >= s.StepNumber {
				return fmt.Errorf("step %d has a forward or self reference to step %d", s.StepNumber, dep)
			}
			if _, ok := byNumber[dep]; !ok {
				return fmt.Errorf("step %d depends on unknown step %d", s.StepNumber, dep)
			}
		}
	}
	return detectCycle(steps)
}

func detectCycle(steps []*state.Step) error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[int]int, len(steps))
	byNumber := make(map[int]*state.Step, len(steps))
	for _, s := range steps {
		byNumber[s.StepNumber] = s
		color[s.StepNumber] = white
	}

	var visit func(n int) error
	visit = func(n int) error {
		color[n] = gray
		for _, dep := range byNumber[n].DependsOn {
			switch color[dep] {
			case gray:
				return fmt.Errorf("cycle detected through step %d", dep)
			case white:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		color[n] = black
		return nil
	}

	for _, s := range steps {
		if color[s.StepNumber] == white {
			if err := visit(s.StepNumber); err != nil {
				return err
			}
		}
	}
	return nil
}

// singleStepFallback implements the rejection path of §4.D step 4: a
// single-step plan using the highest-ranked tool in the whole catalogue.
func (p *Planner) singleStepFallback(ctx context.Context, query string, catalogue []*tool.Descriptor, notes map[string]string) *state.Plan {
	best := catalogue[0]
	if ranked, err := p.registry.Rank(ctx, query, ""); err == nil && len(ranked) > 0 {
		best = ranked[0].Descriptor
	}

	step := &state.Step{
		StepNumber:      1,
		Description:     query,
		AgentType:       agentTypeForClass(best.DataSourceClass),
		DataSourceClass: best.DataSourceClass,
		Status:          state.StepPending,
	}

	return &state.Plan{
		PlanID:                uuid.NewString(),
		Query:                 query,
		Steps:                 []*state.Step{step},
		RequiresConsolidation: false,
		EstimatedComplexity:   state.ComplexityLow,
		Notes:                 notes,
	}
}
