package consolidator

import (
	"encoding/json"
	"fmt"
	"strings"
)

// buildFormatPrompt implements §4.H step 6: ask the LLM to produce a
// user-facing answer given the original query, the merged rows, and the
// merge strategy that produced them.
func buildFormatPrompt(query string, rows []map[string]any, strategy, hint string) string {
	encoded, err := json.Marshal(rows)
	if err != nil {
		encoded = []byte("[]")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "User asked: %q\n", query)
	fmt.Fprintf(&b, "Merge strategy used: %s\n", strategy)
	if hint != "" {
		fmt.Fprintf(&b, "Requested output format: %s\n", hint)
	}
	b.WriteString("Merged result rows (JSON):\n")
	b.Write(encoded)
	b.WriteString("\n\nWrite a clear, direct answer to the user's question using these rows. " +
		"Do not restate the raw JSON. If some of the planned steps failed, mention a partial result.")
	return b.String()
}
