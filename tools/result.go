package tools

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

const (
	// MaxResultChars caps a stringified tool result before it reaches the model.
	MaxResultChars = 10000
	// TruncationSuffix marks a capped result.
	TruncationSuffix = "... [truncated]"
)

// Stringify renders a tool result the way it is shown to the model.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case json.RawMessage:
		return string(val)
	case fmt.Stringer:
		return val.String()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// Truncate keeps the first limit characters of s and appends TruncationSuffix
// when s is longer than limit.
func Truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit]) + TruncationSuffix
}
