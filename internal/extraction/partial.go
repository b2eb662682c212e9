package extraction

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// record is one entry of the schema's records field.
type record struct {
	ID   string
	Text string
}

// applyPartial pulls the schema's free-text field and records straight out of
// the raw text with field-scoped patterns, bypassing full-document parsing.
func applyPartial(in Input) ([]byte, bool, error) {
	s := in.Schema
	if s.TextField == "" && s.RecordsField == "" {
		return nil, false, errors.New("schema names no recoverable fields")
	}

	doc := []byte("{}")
	var err error

	if s.TextField != "" {
		text, ok := findStringField(in.Raw, s.TextField)
		if !ok || strings.TrimSpace(text) == "" {
			return nil, false, fmt.Errorf("field %q not found in raw text", s.TextField)
		}
		doc, err = sjson.SetBytes(doc, escapePath(s.TextField), text)
		if err != nil {
			return nil, false, err
		}
	}

	if s.RecordsField != "" {
		records := findRecords(in.Raw, s)
		if len(records) > 0 {
			doc, err = setRecords(doc, s, records)
			if err != nil {
				return nil, false, err
			}
		}
	}

	for _, field := range s.Fields {
		if field.Name == s.TextField || field.Name == s.RecordsField || field.Type != TypeStringList {
			continue
		}
		if values := findStringList(in.Raw, field.Name); len(values) > 0 {
			doc, err = sjson.SetBytes(doc, escapePath(field.Name), values)
			if err != nil {
				return nil, false, err
			}
		}
	}

	return ensureRecords(doc, s)
}

// stringValuePattern matches a JSON string body, tolerating truncation.
const stringValuePattern = `"((?:[^"\\]|\\.)*)("?)`

func fieldPattern(name string) *regexp.Regexp {
	return regexp.MustCompile(`"` + regexp.QuoteMeta(name) + `"\s*:\s*` + stringValuePattern)
}

// findStringField returns the decoded value of the first "name": "..." pair in
// raw. An unterminated value (truncated response) runs to the end of raw.
func findStringField(raw, name string) (string, bool) {
	m := fieldPattern(name).FindStringSubmatch(raw)
	if m == nil {
		return "", false
	}
	return decodeJSONString(m[1]), true
}

func findRecords(raw string, s Schema) []record {
	start := regexp.MustCompile(`"` + regexp.QuoteMeta(s.RecordsField) + `"\s*:\s*\[`).FindStringIndex(raw)
	if start == nil {
		return nil
	}
	body := raw[start[1]:]

	idPattern := regexp.MustCompile(`"` + regexp.QuoteMeta(s.RecordIDField) + `"\s*:\s*(?:"((?:[^"\\]|\\.)*)"|(-?\d+))`)
	textPattern := fieldPattern(s.RecordTextField)

	var out []record
	seen := make(map[string]bool)
	for _, chunk := range splitObjects(body) {
		idMatch := idPattern.FindStringSubmatch(chunk)
		if idMatch == nil {
			continue
		}
		id := decodeJSONString(idMatch[1])
		if id == "" {
			id = idMatch[2]
		}
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		textMatch := textPattern.FindStringSubmatch(chunk)
		if textMatch == nil {
			continue
		}
		text := strings.TrimSpace(decodeJSONString(textMatch[1]))
		if text == "" {
			continue
		}
		seen[id] = true
		out = append(out, record{ID: id, Text: text})
	}
	return out
}

// splitObjects cuts the body of an array into top-level object chunks. The
// last chunk may be unterminated.
func splitObjects(body string) []string {
	var (
		chunks   []string
		depth    int
		start    = -1
		inString bool
		escaped  bool
	)
	for i := 0; i < len(body); i++ {
		c := body[i]
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
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && start >= 0 {
					chunks = append(chunks, body[start:i+1])
					start = -1
				}
			}
		case ']':
			if depth == 0 {
				return chunks
			}
		}
	}
	if start >= 0 {
		chunks = append(chunks, body[start:])
	}
	return chunks
}

func findStringList(raw, name string) []string {
	loc := regexp.MustCompile(`"` + regexp.QuoteMeta(name) + `"\s*:\s*\[([^\]]*)`).FindStringSubmatch(raw)
	if loc == nil {
		return nil
	}
	var out []string
	for _, m := range regexp.MustCompile(`"((?:[^"\\]|\\.)*)"`).FindAllStringSubmatch(loc[1], -1) {
		if v := strings.TrimSpace(decodeJSONString(m[1])); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// decodeJSONString decodes the body of a JSON string literal, tolerating a
// dangling escape left by truncation.
func decodeJSONString(body string) string {
	if body == "" {
		return ""
	}
	trimmed := body
	trailing := 0
	for i := len(trimmed) - 1; i >= 0 && trimmed[i] == '\\'; i-- {
		trailing++
	}
	if trailing%2 == 1 {
		trimmed = trimmed[:len(trimmed)-1]
	}
	var out string
	if err := json.Unmarshal([]byte(`"`+trimmed+`"`), &out); err == nil {
		return out
	}
	r := strings.NewReplacer(`\"`, `"`, `\n`, "\n", `\t`, "\t", `\\`, `\`)
	return r.Replace(trimmed)
}

// ensureRecords makes sure the schema's records field holds one well-formed
// record per known identifier. Valid model-authored records are kept as they
// are; anything missing is filled with a placeholder built only from the
// caller's own identifiers, and the second return value reports that.
func ensureRecords(doc []byte, s Schema) ([]byte, bool, error) {
	if s.RecordsField == "" || len(s.KnownRecordIDs) == 0 {
		return doc, false, nil
	}

	existing := gjson.GetBytes(doc, escapePath(s.RecordsField))
	var records []record
	seen := make(map[string]bool)
	malformed := existing.Exists() && !existing.IsArray()
	if existing.IsArray() {
		for _, item := range existing.Array() {
			if !item.IsObject() {
				malformed = true
				continue
			}
			id := strings.TrimSpace(item.Get(escapePath(s.RecordIDField)).String())
			text := strings.TrimSpace(item.Get(escapePath(s.RecordTextField)).String())
			if id == "" || text == "" || seen[id] {
				malformed = true
				continue
			}
			seen[id] = true
			records = append(records, record{ID: id, Text: text})
		}
	}

	synthesized := false
	for _, id := range s.KnownRecordIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		records = append(records, record{ID: id, Text: s.placeholderText()})
		synthesized = true
	}

	if !synthesized && !malformed {
		return doc, false, nil
	}

	out, err := setRecords(doc, s, records)
	if err != nil {
		return nil, false, err
	}
	return out, synthesized, nil
}

func setRecords(doc []byte, s Schema, records []record) ([]byte, error) {
	items := make([]map[string]string, 0, len(records))
	for _, r := range records {
		items = append(items, map[string]string{
			s.RecordIDField:   r.ID,
			s.RecordTextField: r.Text,
		})
	}
	return sjson.SetBytes(doc, escapePath(s.RecordsField), items)
}
