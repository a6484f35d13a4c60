package advisor

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// fencePattern matches a markdown code block with an optional language tag.
var fencePattern = regexp.MustCompile("(?s)```(\\w*)\\s*\\n(.+?)\\n```")

// extractJSON pulls a JSON document out of an LLM reply that may be wrapped
// in prose or markdown fences. Fenced blocks win; otherwise the first
// balanced object or array in the text is taken.
func extractJSON(response string) (string, error) {
	for _, match := range fencePattern.FindAllStringSubmatch(response, -1) {
		lang := strings.ToLower(match[1])
		if lang != "" && lang != "json" {
			continue
		}
		content := strings.TrimSpace(match[2])
		if isValidJSON(content) {
			return content, nil
		}
	}
	if doc, ok := firstBalanced(response); ok {
		return doc, nil
	}
	return "", fmt.Errorf("no JSON document found in LLM response")
}

func firstBalanced(s string) (string, bool) {
	start := -1
	var open, close byte
	for i := 0; i < len(s); i++ {
		if s[i] == '{' || s[i] == '[' {
			start = i
			open = s[i]
			if open == '{' {
				close = '}'
			} else {
				close = ']'
			}
			break
		}
	}
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			if c == '\\' {
				i++
			} else if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				candidate := s[start : i+1]
				if isValidJSON(candidate) {
					return candidate, true
				}
				return "", false
			}
		}
	}
	return "", false
}

func isValidJSON(s string) bool {
	return json.Valid([]byte(s))
}
