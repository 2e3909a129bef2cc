package analysis

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	// "value"\n"key": -> "value",\n"key":
	missingCommaAfterString = regexp.MustCompile(`(")\s*\n\s*("[\w][^"]*"\s*:)`)
	// 12\n"key": -> 12,\n"key":
	missingCommaAfterLiteral = regexp.MustCompile(`(\d|true|false|null)\s*\n\s*("[\w][^"]*"\s*:)`)
	// }\n{ and ]\n" -> },{ and ],"
	missingCommaAfterClose = regexp.MustCompile(`([}\]])(\s*\n\s*)([{"])`)
)

// extractJSON strips markdown fences and any prose before the first '{'.
func extractJSON(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```JSON")
		s = strings.TrimPrefix(s, "```")
	}
	if i := strings.LastIndex(s, "```"); i >= 0 && strings.TrimSpace(s[i+3:]) == "" {
		s = s[:i]
	}
	s = strings.TrimSpace(s)

	idx := strings.IndexByte(s, '{')
	if idx < 0 {
		return "", fmt.Errorf("no JSON object in response")
	}
	return s[idx:], nil
}

// decodeFirst decodes the first JSON value of s into v, ignoring trailing text.
func decodeFirst(s string, v interface{}) error {
	return json.NewDecoder(strings.NewReader(s)).Decode(v)
}

// repairJSON rewrites the syntax errors models commonly make.
func repairJSON(s string) string {
	s = convertSingleQuotes(s)
	s = escapeControlChars(s)
	s = missingCommaAfterString.ReplaceAllString(s, `$1, $2`)
	s = missingCommaAfterLiteral.ReplaceAllString(s, `$1, $2`)
	s = missingCommaAfterClose.ReplaceAllString(s, `$1,$2$3`)
	s = closeTruncated(s)
	s = dropTrailingCommas(s)
	return s
}

// convertSingleQuotes rewrites 'single quoted' literals outside of double
// quoted strings as JSON strings. An unterminated literal is left open for
// closeTruncated.
func convertSingleQuotes(s string) string {
	if !strings.Contains(s, "'") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 8)

	inString, escaped := false, false
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
			b.WriteByte(c)
			continue
		}

		switch c {
		case '"':
			inString = true
			b.WriteByte(c)
		case '\'':
			b.WriteByte('"')
			closed := false
			for i++; i < len(s); i++ {
				c = s[i]
				if c == '\\' && i+1 < len(s) {
					i++
					if s[i] != '\'' {
						b.WriteByte('\\')
					}
					b.WriteByte(s[i])
					continue
				}
				if c == '\'' {
					closed = true
					break
				}
				if c == '"' {
					b.WriteString(`\"`)
					continue
				}
				b.WriteByte(c)
			}
			if closed {
				b.WriteByte('"')
			}
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// dropTrailingCommas removes commas directly before a closing bracket,
// leaving string contents untouched.
func dropTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inString, escaped := false, false
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
			b.WriteByte(c)
			continue
		}
		if c == '"' {
			inString = true
		}
		if c == ',' {
			j := i + 1
			for j < len(s) && (s[j] == ' ' || s[j] == '\t' || s[j] == '\n' || s[j] == '\r') {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

// escapeControlChars escapes raw control characters inside string literals.
func escapeControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString && c < 0x20:
			switch c {
			case '\n':
				b.WriteString(`\n`)
			case '\r':
				b.WriteString(`\r`)
			case '\t':
				b.WriteString(`\t`)
			default:
				fmt.Fprintf(&b, `\u%04x`, c)
			}
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// closeTruncated completes a document cut off mid-stream: it closes an open
// string, drops a dangling separator, and closes open containers in order.
func closeTruncated(s string) string {
	var stack []byte
	inString, escaped := false, false
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
		case '{', '[':
			stack = append(stack, c)
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}

	if !inString && len(stack) == 0 {
		return s
	}

	var b strings.Builder
	b.WriteString(s)
	if inString {
		if escaped {
			// complete the dangling escape so the closing quote survives
			b.WriteByte('\\')
		}
		b.WriteByte('"')
	}

	out := strings.TrimRight(b.String(), " \t\r\n")
	switch {
	case strings.HasSuffix(out, ","):
		out = strings.TrimSuffix(out, ",")
	case strings.HasSuffix(out, ":"):
		out += " null"
	case len(stack) > 0 && stack[len(stack)-1] == '{' && strings.HasSuffix(out, `"`) && danglingKey(out):
		out += ": null"
	}

	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			out += "}"
		} else {
			out += "]"
		}
	}
	return out
}

// danglingKey reports whether the final string literal of s is an object
// key with no value, as in `{"a": 1, "b"`.
func danglingKey(s string) bool {
	end := len(s) - 1
	start := -1
	for i := end - 1; i >= 0; i-- {
		if s[i] == '"' && (i == 0 || s[i-1] != '\\') {
			start = i
			break
		}
	}
	if start < 0 {
		return false
	}
	before := strings.TrimRight(s[:start], " \t\r\n")
	return strings.HasSuffix(before, "{") || strings.HasSuffix(before, ",")
}
