package openai

import (
	"encoding/json"
	"io"
	"strings"
)

// decodeModelJSON decodes structured model output, tolerating prose or code
// fences around the JSON object.
func decodeModelJSON(outputText string, v any) error {
	s := strings.TrimSpace(outputText)
	if s == "" {
		return io.ErrUnexpectedEOF
	}

	if err := json.Unmarshal([]byte(s), v); err == nil {
		return nil
	}

	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start != -1 && end == -1 {
		// Opening brace without a closing one means the output was truncated.
		return io.ErrUnexpectedEOF
	}
	if start == -1 || end == -1 || end <= start {
		return io.ErrUnexpectedEOF
	}
	return json.Unmarshal([]byte(s[start:end+1]), v)
}
