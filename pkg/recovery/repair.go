package recovery

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	fencePattern    = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(.*?)\\s*```")
	barewordPattern = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)(\s*:)`)
	trailingComma   = regexp.MustCompile(`,(\s*[}\]])`)
)

// RepairJSON applies best-effort fixes to model output that should have been JSON.
// It reports false when the result is still not valid JSON.
func RepairJSON(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if json.Valid([]byte(s)) {
		return s, true
	}

	steps := []func(string) string{
		stripFences,
		trimToJSON,
		quoteBarewords,
		dropTrailingCommas,
		balance,
		dropTrailingCommas,
	}
	for _, step := range steps {
		s = step(s)
		if json.Valid([]byte(s)) {
			return s, true
		}
	}
	return s, false
}

func stripFences(s string) string {
	if m := fencePattern.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	// An unterminated fence from a truncated reply.
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			s = s[i+1:]
		}
	}
	return strings.TrimSpace(s)
}

// trimToJSON drops prose before the first bracket and after the last one
func trimToJSON(s string) string {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}
	s = s[start:]
	if end := strings.LastIndexAny(s, "}]"); end >= 0 && balanced(s[:end+1]) {
		return s[:end+1]
	}
	return s
}

func quoteBarewords(s string) string {
	return outsideStrings(s, func(span string) string {
		return barewordPattern.ReplaceAllString(span, `$1"$2"$3`)
	})
}

func dropTrailingCommas(s string) string {
	return outsideStrings(s, func(span string) string {
		return trailingComma.ReplaceAllString(span, "$1")
	})
}

// outsideStrings rewrites the spans of s between string literals with fn.
// String literals, including an unterminated one, are copied unchanged.
func outsideStrings(s string, fn func(string) string) string {
	var (
		b        strings.Builder
		start    int
		inString bool
		escaped  bool
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
				b.WriteString(s[start : i+1])
				start = i + 1
			}
			continue
		}
		if c == '"' {
			b.WriteString(fn(s[start:i]))
			start = i
			inString = true
		}
	}
	if inString {
		b.WriteString(s[start:])
	} else {
		b.WriteString(fn(s[start:]))
	}
	return b.String()
}

// balance closes an unterminated string and any brackets left open
func balance(s string) string {
	var (
		stack    []byte
		inString bool
		escaped  bool
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 && stack[len(stack)-1] == c {
				stack = stack[:len(stack)-1]
			}
		}
	}

	var b strings.Builder
	b.WriteString(strings.TrimRight(s, " \t\r\n"))
	if inString {
		b.WriteByte('"')
	}
	for i := len(stack) - 1; i >= 0; i-- {
		b.WriteByte(stack[i])
	}
	return b.String()
}

func balanced(s string) bool {
	return balance(s) == strings.TrimRight(s, " \t\r\n")
}
