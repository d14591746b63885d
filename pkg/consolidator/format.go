package consolidator

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// deterministicFormat implements §4.H step 7: the LLM-free fallback, used
// when the LLM is unavailable or the merged set exceeds the configured row
// cap. An explicit "format" hint in plan.notes overrides the row-count
// based choice.
func deterministicFormat(rows []map[string]any, hint string) string {
	switch hint {
	case "text":
		return textFormat(rows)
	case "json":
		return jsonLikeFormat(rows)
	case "table", "markdown":
		return markdownTable(rows)
	case "summary":
		return summaryFormat(rows)
	}

	switch {
	case len(rows) == 0:
		return "No results were found for this query."
	case len(rows) == 1:
		return textFormat(rows)
	case len(rows) <= 20:
		return markdownTable(rows)
	default:
		return summaryFormat(rows)
	}
}

func textFormat(rows []map[string]any) string {
	if len(rows) == 0 {
		return "No results were found for this query."
	}
	var b strings.Builder
	for _, name := range sortedFields(rows) {
		b.WriteString(name)
		b.WriteString(": ")
		b.WriteString(stringify(rows[0][name]))
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

func markdownTable(rows []map[string]any) string {
	if len(rows) == 0 {
		return "No results were found for this query."
	}
	fields := sortedFields(rows)

	var b strings.Builder
	b.WriteString("| ")
	b.WriteString(strings.Join(fields, " | "))
	b.WriteString(" |\n|")
	for range fields {
		b.WriteString(" --- |")
	}
	b.WriteByte('\n')

	for _, row := range rows {
		b.WriteString("| ")
		vals := make([]string, len(fields))
		for i, f := range fields {
			vals[i] = stringify(row[f])
		}
		b.WriteString(strings.Join(vals, " | "))
		b.WriteString(" |\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func summaryFormat(rows []map[string]any) string {
	counts := map[string]int{}
	fieldSet := map[string]bool{}
	for _, row := range rows {
		for k := range row {
			fieldSet[k] = true
		}
		switch src := row["_source"].(type) {
		case string:
			counts[src]++
		default:
			if sources, ok := row["_sources"].([]string); ok {
				for _, s := range sources {
					counts[s]++
				}
			} else {
				counts["unknown"]++
			}
		}
	}

	fields := make([]string, 0, len(fieldSet))
	for f := range fieldSet {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var b strings.Builder
	fmt.Fprintf(&b, "%d rows across %d field(s): %s.\n", len(rows), len(fields), strings.Join(fields, ", "))
	if len(counts) > 0 {
		names := make([]string, 0, len(counts))
		for name := range counts {
			names = append(names, name)
		}
		sort.Strings(names)
		b.WriteString("By source: ")
		parts := make([]string, len(names))
		for i, name := range names {
			parts[i] = name + "=" + strconv.Itoa(counts[name])
		}
		b.WriteString(strings.Join(parts, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}

func jsonLikeFormat(rows []map[string]any) string {
	b, err := json.Marshal(rows)
	if err != nil {
		return summaryFormat(rows)
	}
	return string(b)
}

func sortedFields(rows []map[string]any) []string {
	set := map[string]bool{}
	for _, row := range rows {
		for k := range row {
			set[k] = true
		}
	}
	fields := make([]string, 0, len(set))
	for f := range set {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

func stringify(v any) string {
	if v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case []string:
		return strings.Join(t, ",")
	default:
		return fmt.Sprintf("%v", t)
	}
}
