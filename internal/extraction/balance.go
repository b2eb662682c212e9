package extraction

import (
	"encoding/json"
	"strings"
)

// balance closes whatever a truncated span left open: an unterminated string,
// a dangling key or separator, and any unmatched '[' or '{'. Brackets inside
// string literals are ignored.
func balance(span string) string {
	var (
		stack    []byte
		inString bool
		escaped  bool
	)
	for i := 0; i < len(span); i++ {
		c := span[i]
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
			if len(stack) > 0 && stack[len(stack)-1] == opener(c) {
				stack = stack[:len(stack)-1]
			}
		}
	}

	out := span
	if inString {
		if escaped {
			out = out[:len(out)-1]
		}
		out += `"`
	}

	var top byte
	if len(stack) > 0 {
		top = stack[len(stack)-1]
	}
	out = trimDangling(out, top)

	var sb strings.Builder
	sb.WriteString(out)
	for i := len(stack) - 1; i >= 0; i-- {
		sb.WriteByte(closer(stack[i]))
	}
	return sb.String()
}

// objectEnd returns the index of the '}' closing the object that opens at
// s[0], or -1 when it never closes. It tracks strings the same way balance
// does.
func objectEnd(s string) int {
	var (
		depth    int
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
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				if c == '}' {
					return i
				}
				return -1
			}
		}
	}
	return -1
}

func opener(c byte) byte {
	if c == '}' {
		return '{'
	}
	return '['
}

func closer(c byte) byte {
	if c == '{' {
		return '}'
	}
	return ']'
}

// trimDangling removes an incomplete trailing member so closers can be
// appended: a trailing separator, a key with no value, a key with no colon, or
// a partial literal such as `tru` or `12.`. top is the innermost open
// container ('{', '[' or 0).
func trimDangling(s string, top byte) string {
	for {
		s = strings.TrimRight(s, " \t\r\n")
		if s == "" || top == 0 {
			return s
		}
		last := s[len(s)-1]

		switch {
		case last == ',':
			s = s[:len(s)-1]
			continue

		case last == ':':
			// "key": with no value; drop the key too.
			s = strings.TrimRight(s[:len(s)-1], " \t\r\n")
			if start := stringStart(s); start >= 0 {
				s = s[:start]
				continue
			}
			return s

		case last == '"' && top == '{':
			start := stringStart(s)
			if start < 0 {
				return s
			}
			prev := strings.TrimRight(s[:start], " \t\r\n")
			if prev != "" && (prev[len(prev)-1] == ',' || prev[len(prev)-1] == '{') {
				// A string in key position with no colon after it.
				s = prev
				continue
			}
			return s

		case isLiteralByte(last):
			start := len(s)
			for start > 0 && isLiteralByte(s[start-1]) {
				start--
			}
			token := s[start:]
			if isCompleteLiteral(token) {
				return s
			}
			s = s[:start]
			if top == '{' {
				// The partial literal was a value; drop its key as well.
				trimmed := strings.TrimRight(s, " \t\r\n")
				if strings.HasSuffix(trimmed, ":") {
					s = trimmed
				}
			}
			continue

		default:
			return s
		}
	}
}

// stringStart returns the index of the opening quote of the string literal
// that ends at the last byte of s, or -1.
func stringStart(s string) int {
	if s == "" || s[len(s)-1] != '"' {
		return -1
	}
	for i := len(s) - 2; i >= 0; i-- {
		if s[i] != '"' {
			continue
		}
		backslashes := 0
		for j := i - 1; j >= 0 && s[j] == '\\'; j-- {
			backslashes++
		}
		if backslashes%2 == 0 {
			return i
		}
	}
	return -1
}

func isLiteralByte(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '.' || c == '-' || c == '+'
}

func isCompleteLiteral(token string) bool {
	switch token {
	case "true", "false", "null":
		return true
	}
	var n json.Number
	return json.Unmarshal([]byte(token), &n) == nil
}
