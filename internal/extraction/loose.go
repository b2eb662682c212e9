package extraction

import "strings"

// normalizeLoose rewrites JavaScript-style object syntax into JSON: single
// quoted keys and values become double quoted, and trailing commas before a
// closing bracket are dropped. Apostrophes inside double-quoted strings are
// left alone.
func normalizeLoose(s string) string {
	var (
		sb       strings.Builder
		inDouble bool
		inSingle bool
		escaped  bool
	)
	sb.Grow(len(s))

	for i := 0; i < len(s); i++ {
		c := s[i]

		if inDouble {
			sb.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inDouble = false
			}
			continue
		}

		if inSingle {
			switch {
			case escaped:
				escaped = false
				if c == '\'' {
					sb.WriteByte('\'')
				} else {
					sb.WriteByte('\\')
					sb.WriteByte(c)
				}
			case c == '\\':
				escaped = true
			case c == '\'':
				inSingle = false
				sb.WriteByte('"')
			case c == '"':
				sb.WriteString(`\"`)
			default:
				sb.WriteByte(c)
			}
			continue
		}

		switch c {
		case '"':
			inDouble = true
			sb.WriteByte(c)
		case '\'':
			inSingle = true
			sb.WriteByte('"')
		case ',':
			j := i + 1
			for j < len(s) && isSpace(s[j]) {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
			sb.WriteByte(c)
		default:
			sb.WriteByte(c)
		}
	}

	if inSingle {
		sb.WriteByte('"')
	}
	return sb.String()
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
