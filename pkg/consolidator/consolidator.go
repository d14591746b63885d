// Package consolidator implements the terminal Consolidator Node (§4.H):
// it joins or concatenates the heterogeneous result sequences accumulated
// across a run and formats a final, user-facing answer, either through the
// LLM Gateway or — when the model is unavailable or the merged set is too
// large to hand to it — a deterministic fallback.
package consolidator

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/queryflowhq/queryflow/pkg/llm"
	"github.com/queryflowhq/queryflow/pkg/state"
)

// defaultLLMRowCap is consolidator.llm_row_cap's default (§6): merged sets
// larger than this always use the deterministic fallback, regardless of
// LLM availability.
const defaultLLMRowCap = 500

// Consolidator merges and formats a run's accumulated results.
type Consolidator struct {
	LLM      llm.Provider
	LLMRowCap int
}

// New builds a Consolidator. llmProvider may be nil, in which case every
// run uses the deterministic fallback.
func New(llmProvider llm.Provider) *Consolidator {
	return &Consolidator{LLM: llmProvider, LLMRowCap: defaultLLMRowCap}
}

// Consolidate implements §4.H and returns the final response text. It
// never errors: merging itself cannot fail, and when LLM formatting fails
// the concatenated (unjoined) rows go through the deterministic formatter.
func (c *Consolidator) Consolidate(ctx context.Context, st *state.AgentState) string {
	results := nonEmptyResults(st.AllResults())
	plan := st.Plan()
	hint := formatHint(plan)
	note := partialFailureNote(st.Errors())

	if plan != nil && !plan.RequiresConsolidation && len(results) == 1 && len(results[0].Rows) == 1 {
		return deterministicFormat(results[0].Rows, hint) + note
	}

	merged, strategy := c.merge(results)

	rowCap := c.rowCap()
	if c.LLM == nil || len(merged) > rowCap {
		return deterministicFormat(merged, hint) + note
	}

	text, err := c.formatViaLLM(ctx, st.Query(), merged, strategy, hint)
	if err != nil {
		return deterministicFormat(concatFallback(results), hint) + note
	}
	return text
}

// partialFailureNote implements §7's propagation policy for the
// deterministic fallback path: the LLM path gets a prose instruction to
// mention partial results (prompt.go), but the deterministic formatters
// never see st.Errors(), so without this the note would only ever appear
// when the LLM happens to honor the instruction. Empty when the run had no
// recorded errors, so a clean run's answer is untouched.
func partialFailureNote(errors []state.ErrorEntry) string {
	if len(errors) == 0 {
		return ""
	}
	steps := make([]string, 0, len(errors))
	for _, e := range errors {
		if e.StepNumber > 0 {
			steps = append(steps, strconv.Itoa(e.StepNumber))
		}
	}
	if len(steps) == 0 {
		return "\n\n_Note: this answer may be incomplete due to a partial failure._"
	}
	return fmt.Sprintf("\n\n_Note: this answer may be incomplete; step(s) %s did not complete successfully._",
		strings.Join(steps, ", "))
}

func (c *Consolidator) rowCap() int {
	if c.LLMRowCap > 0 {
		return c.LLMRowCap
	}
	return defaultLLMRowCap
}

func nonEmptyResults(results []state.AgentResult) []state.AgentResult {
	out := make([]state.AgentResult, 0, len(results))
	for _, r := range results {
		if r.OK && len(r.Rows) > 0 {
			out = append(out, r)
		}
	}
	return out
}

func formatHint(plan *state.Plan) string {
	if plan == nil || plan.Notes == nil {
		return ""
	}
	return plan.Notes["format"]
}

// merge implements §4.H steps 1-5: detect a join column shared by every
// source's rows and join on it, or concat with provenance; then dedupe on
// the full row.
func (c *Consolidator) merge(results []state.AgentResult) ([]map[string]any, string) {
	inputs := make([]mergeInput, 0, len(results))
	for _, r := range results {
		inputs = append(inputs, mergeInput{sourceTag: sourceTag(r), rows: r.Rows})
	}

	if joinColumn := detectJoinColumn(inputs); joinColumn != "" {
		return dedupe(joinMerge(inputs, joinColumn)), "join:" + joinColumn
	}

	return dedupe(concatMerge(inputs)), "concat"
}

func concatFallback(results []state.AgentResult) []map[string]any {
	inputs := make([]mergeInput, 0, len(results))
	for _, r := range results {
		inputs = append(inputs, mergeInput{sourceTag: sourceTag(r), rows: r.Rows})
	}
	return dedupe(concatMerge(inputs))
}

// sourceTag is the tool that produced r's rows, per §3's ToolResult.source_tag.
func sourceTag(r state.AgentResult) string {
	if r.ToolName != "" {
		return r.ToolName
	}
	return string(r.AgentType) + "#" + strconv.Itoa(r.StepNumber)
}

func (c *Consolidator) formatViaLLM(ctx context.Context, query string, rows []map[string]any, strategy, hint string) (string, error) {
	prompt := buildFormatPrompt(query, rows, strategy, hint)
	completion, err := c.LLM.Generate(ctx, []llm.Message{{Role: "user", Content: prompt}}, nil)
	if err != nil {
		return "", err
	}
	if completion == nil || completion.Text == "" {
		return "", fmt.Errorf("consolidator: empty LLM completion")
	}
	return completion.Text, nil
}
