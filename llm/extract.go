// ABOUTME: Tolerant JSON extraction from raw model output
// ABOUTME: Strips markdown fences and locates the first balanced object or array
package llm

import (
	"fmt"
	"strings"
)

// ParseError means a model's output could not be read as the expected JSON.
// Batches record it per item and move on.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse llm output: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ExtractJSON returns the first balanced JSON object or array inside raw
// model output, tolerating markdown code fences and surrounding prose.
func ExtractJSON(raw string) (string, error) {
	text := stripFences(raw)

	start := strings.IndexAny(text, "{[")
	if start == -1 {
		return "", fmt.Errorf("no JSON object or array found")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return text[start : i+1], nil
			}
		}
	}

	return "", fmt.Errorf("unbalanced JSON starting at offset %d", start)
}

// stripFences removes a surrounding markdown code fence when present,
// including a language tag like ```json.
func stripFences(raw string) string {
	text := strings.TrimSpace(raw)

	open := strings.Index(text, "```")
	if open == -1 {
		return text
	}

	// Drop the fence line itself.
	rest := text[open+3:]
	if newline := strings.IndexByte(rest, '\n'); newline != -1 {
		rest = rest[newline+1:]
	}

	if end := strings.Index(rest, "```"); end != -1 {
		return strings.TrimSpace(rest[:end])
	}
	return strings.TrimSpace(rest)
}
