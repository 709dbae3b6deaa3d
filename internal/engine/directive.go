package engine

import (
	"encoding/json"
	"strings"
)

// toolDirective is the inline tool-call convention: the model answers with
// a single JSON object instead of speech.
type toolDirective struct {
	Tool string          `json:"tool"`
	Args json.RawMessage `json:"args"`
}

// parseToolDirective extracts a tool call from model output. Returns false
// when the output is ordinary speech.
func parseToolDirective(output string) (toolDirective, bool) {
	trimmed := strings.TrimSpace(output)
	if !strings.HasPrefix(trimmed, "{") || !strings.HasSuffix(trimmed, "}") {
		return toolDirective{}, false
	}
	var d toolDirective
	if err := json.Unmarshal([]byte(trimmed), &d); err != nil || d.Tool == "" {
		return toolDirective{}, false
	}
	return d, true
}

// estimateTokens approximates token usage from text length. Streaming
// responses do not carry usage counts, and four characters per token is
// close enough for cost accounting.
func estimateTokens(text string) int {
	n := len(text) / 4
	if n == 0 && text != "" {
		n = 1
	}
	return n
}
