package consolidator

import (
	"sort"
	"strings"
)

// mergeInput is one AgentResult's rows, tagged with the tool name that
// produced them (§3's source_tag).
type mergeInput struct {
	sourceTag string
	rows      []map[string]any
}

// idLikeColumn implements §4.H step 2's precise definition of an ID-like
// column name.
func idLikeColumn(name string) bool {
	lower := strings.ToLower(name)
	if lower == "id" {
		return true
	}
	for _, suffix := range []string{"_id", "_key", "_no", "_number"} {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return strings.Contains(lower, "uuid") || strings.Contains(lower, "guid")
}

// detectJoinColumn returns the lexicographically-first ID-like column name
// present in every input's first row, or "" if no such column exists (in
// which case the caller falls back to concat-with-provenance).
func detectJoinColumn(inputs []mergeInput) string {
	if len(inputs) == 0 {
		return ""
	}

	var shared []string
	for name := range inputs[0].firstRow() {
		if !idLikeColumn(name) {
			continue
		}
		inAll := true
		for _, in := range inputs[1:] {
			if _, ok := in.firstRow()[name]; !ok {
				inAll = false
				break
			}
		}
		if inAll {
			shared = append(shared, name)
		}
	}
	if len(shared) == 0 {
		return ""
	}
	sort.Strings(shared)
	return shared[0]
}

func (in mergeInput) firstRow() map[string]any {
	if len(in.rows) == 0 {
		return nil
	}
	return in.rows[0]
}

// joinMerge implements §4.H step 3: bucket rows by joinColumn's value, merge
// within a bucket by keyed union (first source wins on a shared field;
// later sources' values for the same field are kept under
// "<field>__<source_tag>"), and record every contributing source_tag in
// "_sources".
func joinMerge(inputs []mergeInput, joinColumn string) []map[string]any {
	type bucket struct {
		merged  map[string]any
		sources []string
	}
	order := make([]any, 0)
	buckets := make(map[any]*bucket)

	for _, in := range inputs {
		for _, row := range in.rows {
			key, ok := row[joinColumn]
			if !ok {
				continue
			}
			b, ok := buckets[key]
			if !ok {
				b = &bucket{merged: map[string]any{}}
				buckets[key] = b
				order = append(order, key)
			}
			mergeRowInto(b.merged, row, in.sourceTag)
			b.sources = appendUnique(b.sources, in.sourceTag)
		}
	}

	out := make([]map[string]any, 0, len(order))
	for _, key := range order {
		b := buckets[key]
		b.merged["_sources"] = b.sources
		out = append(out, b.merged)
	}
	return out
}

// mergeRowInto implements §4.H step 3's "first source wins on a shared
// field" rule precisely: a later source only loses to an earlier one that
// actually has a non-null value for the field. If the earlier value was
// nil, the later source's value wins outright instead of being shunted to
// "<field>__<source_tag>".
func mergeRowInto(merged map[string]any, row map[string]any, sourceTag string) {
	for field, value := range row {
		existing, present := merged[field]
		if !present || existing == nil {
			merged[field] = value
			continue
		}
		if existing == value {
			continue
		}
		merged[field+"__"+sourceTag] = value
	}
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

// concatMerge implements §4.H step 4: the disjoint union of every input's
// rows, each tagged with its source_tag under "_source".
func concatMerge(inputs []mergeInput) []map[string]any {
	out := make([]map[string]any, 0)
	for _, in := range inputs {
		for _, row := range in.rows {
			tagged := make(map[string]any, len(row)+1)
			for k, v := range row {
				tagged[k] = v
			}
			tagged["_source"] = in.sourceTag
			out = append(out, tagged)
		}
	}
	return out
}

// dedupe implements §4.H step 5: drop rows whose full key/value set has
// already been seen, preserving first occurrence.
func dedupe(rows []map[string]any) []map[string]any {
	seen := make(map[string]bool, len(rows))
	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		key := rowKey(row)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, row)
	}
	return out
}

func rowKey(row map[string]any) string {
	names := make([]string, 0, len(row))
	for k := range row {
		names = append(names, k)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, k := range names {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(toComparable(row[k]))
		b.WriteByte('\x1f')
	}
	return b.String()
}

func toComparable(v any) string {
	switch t := v.(type) {
	case []string:
		return strings.Join(t, ",")
	default:
		return stringify(v)
	}
}
