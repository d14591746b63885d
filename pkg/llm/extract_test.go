package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, raw string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(raw), &v))
	return v
}

func TestExtractText_ContentBlocks(t *testing.T) {
	raw := decode(t, `{"content": [{"type": "text", "text": "hello "}, {"type": "text", "text": "world"}]}`)
	assert.Equal(t, "hello world", ExtractText(raw))
}

func TestExtractText_ContentBlocksSkipsNonText(t *testing.T) {
	raw := decode(t, `{"content": [{"type": "tool_use", "id": "1"}, {"type": "text", "text": "answer"}]}`)
	assert.Equal(t, "answer", ExtractText(raw))
}

func TestExtractText_ChoicesMessage(t *testing.T) {
	raw := decode(t, `{"choices": [{"message": {"content": "an openai style reply"}}]}`)
	assert.Equal(t, "an openai style reply", ExtractText(raw))
}

func TestExtractText_TopLevelContentString(t *testing.T) {
	raw := decode(t, `{"content": "plain string content"}`)
	assert.Equal(t, "plain string content", ExtractText(raw))
}

func TestExtractText_MessageContent(t *testing.T) {
	raw := decode(t, `{"message": {"content": "nested reply"}}`)
	assert.Equal(t, "nested reply", ExtractText(raw))
}

func TestExtractText_TopLevelText(t *testing.T) {
	raw := decode(t, `{"text": "bare text field"}`)
	assert.Equal(t, "bare text field", ExtractText(raw))
}

func TestExtractText_FallbackSerializesWholeBody(t *testing.T) {
	raw := decode(t, `{"unexpected_shape": {"foo": 1}}`)
	assert.JSONEq(t, `{"unexpected_shape": {"foo": 1}}`, ExtractText(raw))
}

func TestExtractText_OrderPrefersEarlierShapeWhenMultipleMatch(t *testing.T) {
	// Both content-blocks and choices/message shapes are present; the
	// earlier step in the order wins.
	raw := decode(t, `{
		"content": [{"type": "text", "text": "from content blocks"}],
		"choices": [{"message": {"content": "from choices"}}]
	}`)
	assert.Equal(t, "from content blocks", ExtractText(raw))
}

func TestExtractText_EmptyContentArrayFallsThrough(t *testing.T) {
	raw := decode(t, `{"content": [], "text": "fallback text field"}`)
	assert.Equal(t, "fallback text field", ExtractText(raw))
}
