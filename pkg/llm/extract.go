package llm

import "encoding/json"

// extractors is the ordered list §4.B requires: a response is checked
// against each shape in turn, and the first one that matches wins. New
// providers are supported by appending to this slice, never by branching on
// a provider name anywhere else in the gateway.
var extractors = []func(any) (string, bool){
	extractContentBlocks,
	extractChoicesMessage,
	extractTopLevelContentString,
	extractMessageContent,
	extractTopLevelText,
}

// ExtractText normalizes a decoded provider response body into a single
// text string. Providers disagree on where the assistant's text lives, so
// this tries a fixed, ordered sequence of shapes rather than type-switching
// on a provider name — a response that happens to match an earlier shape
// always wins, even from a provider that isn't otherwise recognized (§4.B).
//
//  1. Anthropic-style content blocks: {"content": [{"type":"text","text":"..."}]}
//  2. OpenAI-style choices: {"choices": [{"message": {"content": "..."}}]}
//  3. top-level content string: {"content": "..."}
//  4. nested message content: {"message": {"content": "..."}}
//  5. top-level text string: {"text": "..."}
//  6. fallback: the whole decoded body, JSON-serialized
func ExtractText(raw any) string {
	for _, extract := range extractors {
		if s, ok := extract(raw); ok {
			return s
		}
	}
	return serializeWhole(raw)
}

func asMap(raw any) (map[string]any, bool) {
	m, ok := raw.(map[string]any)
	return m, ok
}

// extractContentBlocks handles {"content": [{"type":"text","text":"..."}]},
// concatenating every text block in order.
func extractContentBlocks(raw any) (string, bool) {
	m, ok := asMap(raw)
	if !ok {
		return "", false
	}
	blocks, ok := m["content"].([]any)
	if !ok || len(blocks) == 0 {
		return "", false
	}
	var out string
	found := false
	for _, b := range blocks {
		bm, ok := b.(map[string]any)
		if !ok {
			continue
		}
		if t, _ := bm["type"].(string); t != "" && t != "text" {
			continue
		}
		if text, ok := bm["text"].(string); ok {
			out += text
			found = true
		}
	}
	return out, found
}

// extractChoicesMessage handles {"choices": [{"message": {"content": "..."}}]}.
func extractChoicesMessage(raw any) (string, bool) {
	m, ok := asMap(raw)
	if !ok {
		return "", false
	}
	choices, ok := m["choices"].([]any)
	if !ok || len(choices) == 0 {
		return "", false
	}
	first, ok := choices[0].(map[string]any)
	if !ok {
		return "", false
	}
	msg, ok := first["message"].(map[string]any)
	if !ok {
		return "", false
	}
	text, ok := msg["content"].(string)
	if !ok || text == "" {
		return "", false
	}
	return text, true
}

// extractTopLevelContentString handles {"content": "..."}.
func extractTopLevelContentString(raw any) (string, bool) {
	m, ok := asMap(raw)
	if !ok {
		return "", false
	}
	text, ok := m["content"].(string)
	if !ok || text == "" {
		return "", false
	}
	return text, true
}

// extractMessageContent handles {"message": {"content": "..."}}.
func extractMessageContent(raw any) (string, bool) {
	m, ok := asMap(raw)
	if !ok {
		return "", false
	}
	msg, ok := m["message"].(map[string]any)
	if !ok {
		return "", false
	}
	text, ok := msg["content"].(string)
	if !ok || text == "" {
		return "", false
	}
	return text, true
}

// extractTopLevelText handles {"text": "..."}.
func extractTopLevelText(raw any) (string, bool) {
	m, ok := asMap(raw)
	if !ok {
		return "", false
	}
	text, ok := m["text"].(string)
	if !ok || text == "" {
		return "", false
	}
	return text, true
}

// serializeWhole is the last-resort step: no recognized shape matched, so
// the caller gets the entire decoded body as JSON rather than an empty
// string.
func serializeWhole(raw any) string {
	b, err := json.Marshal(raw)
	if err != nil {
		return ""
	}
	return string(b)
}

func estimateTokens(text string) int {
	count := 0
	inWord := false
	for _, r := range text {
		if r == ' ' || r == '\n' || r == '\t' {
			inWord = false
			continue
		}
		if !inWord {
			count++
			inWord = true
		}
	}
	return count
}
