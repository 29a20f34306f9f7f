package llm

import (
	"encoding/json"
	"strings"

	"github.com/BaSui01/pathfinder/types"
)

// StripCodeFences removes a leading ```lang line and a trailing ``` fence.
func StripCodeFences(raw string) string {
	cleaned := strings.TrimSpace(raw)
	if strings.HasPrefix(cleaned, "```") {
		if idx := strings.Index(cleaned, "\n"); idx >= 0 {
			cleaned = cleaned[idx+1:]
		} else {
			cleaned = strings.TrimPrefix(cleaned, "```")
		}
	}
	cleaned = strings.TrimSpace(cleaned)
	if strings.HasSuffix(cleaned, "```") {
		cleaned = strings.TrimSuffix(cleaned, "```")
	}
	return strings.TrimSpace(cleaned)
}

// DecodeJSON parses generator output into T after stripping code fences.
func DecodeJSON[T any](raw string) (T, error) {
	var out T
	cleaned := StripCodeFences(raw)
	if cleaned == "" {
		return out, types.NewError(types.ErrMalformedOutput, "empty model output")
	}
	if err := json.Unmarshal([]byte(cleaned), &out); err != nil {
		var zero T
		return zero, types.NewError(types.ErrMalformedOutput, "model output is not valid JSON").WithCause(err)
	}
	return out, nil
}
