package extraction

import (
	"fmt"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/xeipuuv/gojsonschema"
)

// FieldType is a type hint for a schema field. It drives both the prompt
// contract and the JSON Schema used for post-parse validation.
type FieldType string

const (
	TypeString     FieldType = "string"
	TypeNumber     FieldType = "number"
	TypeBool       FieldType = "boolean"
	TypeObject     FieldType = "object"
	TypeStringList FieldType = "[]string"
	TypeObjectList FieldType = "[]object"
)

// Field defines a single field in the extraction output.
type Field struct {
	Name        string    // JSON field name
	Type        FieldType // Type hint
	Description string    // Description for the model
	Required    bool      // Whether this field must be present
	Items       []Field   // Record fields when Type is TypeObjectList
}

// Schema describes the structure the extractor must recover. Besides the field
// list it names the two fields the partial-field strategy knows how to pull
// straight out of raw text: one long free-text field and one array of records.
type Schema struct {
	Name        string  // Schema name (e.g., "Justification")
	Description string  // Preamble describing the task
	Fields      []Field // Expected output fields

	TextField       string // long free-text field (optional)
	RecordsField    string // array-of-records field (optional)
	RecordIDField   string // identifier property inside each record
	RecordTextField string // free-text property inside each record

	// KnownRecordIDs are identifiers the caller already knows from its own
	// request (e.g. answer option letters). Only these are ever synthesized.
	KnownRecordIDs []string
	// PlaceholderText is the generic explanation used for synthesized records.
	PlaceholderText string
}

// DefaultPlaceholderText is deliberately non-specific so it can never be
// mistaken for model-authored content.
const DefaultPlaceholderText = "No specific explanation was generated for this option."

func (s Schema) placeholderText() string {
	if strings.TrimSpace(s.PlaceholderText) != "" {
		return s.PlaceholderText
	}
	return DefaultPlaceholderText
}

// Instructions renders the output contract for inclusion in a prompt.
func (s Schema) Instructions() string {
	var sb strings.Builder

	if s.Description != "" {
		sb.WriteString(s.Description)
		sb.WriteString("\n\n")
	}

	sb.WriteString("Return ONLY valid JSON matching this exact structure:\n{\n")
	for i, field := range s.Fields {
		requiredHint := ""
		if field.Required {
			requiredHint = " (required)"
		}
		sb.WriteString(fmt.Sprintf("  \"%s\": %s%s", field.Name, typeHint(field), requiredHint))
		if field.Description != "" {
			sb.WriteString(fmt.Sprintf(" // %s", field.Description))
		}
		if i < len(s.Fields)-1 {
			sb.WriteString(",")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("}\n\n")

	sb.WriteString("IMPORTANT:\n")
	sb.WriteString("- Use double quotes for every key and string value.\n")
	sb.WriteString("- Return ONLY the JSON object, no markdown, no explanation, no code blocks.\n")
	return sb.String()
}

func typeHint(f Field) string {
	switch f.Type {
	case TypeStringList:
		return `["string"]`
	case TypeObjectList:
		parts := make([]string, 0, len(f.Items))
		for _, item := range f.Items {
			parts = append(parts, fmt.Sprintf("%q: %s", item.Name, typeHint(item)))
		}
		return "[{" + strings.Join(parts, ", ") + "}]"
	case TypeObject:
		return `{"key": "value"}`
	case TypeNumber:
		return "number"
	case TypeBool:
		return "boolean"
	default:
		return `"string"`
	}
}

// validate checks a parsed document against the schema: it must be an object,
// required fields must be present and non-empty, and the generated JSON Schema
// must accept it.
func (s Schema) validate(doc []byte) error {
	parsed := gjson.ParseBytes(doc)
	if !parsed.IsObject() {
		return fmt.Errorf("top-level value is not an object")
	}

	for _, field := range s.Fields {
		if !field.Required {
			continue
		}
		value := gjson.GetBytes(doc, escapePath(field.Name))
		if !value.Exists() || value.Type == gjson.Null {
			return fmt.Errorf("required field %q is missing", field.Name)
		}
		switch field.Type {
		case TypeString:
			if strings.TrimSpace(value.String()) == "" {
				return fmt.Errorf("required field %q is empty", field.Name)
			}
		case TypeStringList, TypeObjectList:
			if !value.IsArray() || len(value.Array()) == 0 {
				return fmt.Errorf("required field %q is empty", field.Name)
			}
		}
	}

	if len(s.Fields) == 0 {
		return nil
	}

	compiled, err := s.compiled()
	if err != nil {
		return err
	}
	result, err := compiled.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("document does not match %s schema: %s", s.Name, strings.Join(msgs, "; "))
	}
	return nil
}

var compiledSchemas sync.Map // schema name -> *gojsonschema.Schema

func (s Schema) compiled() (*gojsonschema.Schema, error) {
	key := s.Name
	if key != "" {
		if cached, ok := compiledSchemas.Load(key); ok {
			return cached.(*gojsonschema.Schema), nil
		}
	}
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(objectSchema(s.Fields)))
	if err != nil {
		return nil, fmt.Errorf("failed to compile %s schema: %w", s.Name, err)
	}
	if key != "" {
		compiledSchemas.Store(key, compiled)
	}
	return compiled, nil
}

// JSONSchema returns the JSON Schema document derived from the field list.
func (s Schema) JSONSchema() map[string]any {
	return objectSchema(s.Fields)
}

func objectSchema(fields []Field) map[string]any {
	properties := make(map[string]any, len(fields))
	required := make([]any, 0, len(fields))
	for _, f := range fields {
		properties[f.Name] = fieldSchema(f)
		if f.Required {
			required = append(required, f.Name)
		}
	}
	out := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		out["required"] = required
	}
	return out
}

func fieldSchema(f Field) map[string]any {
	switch f.Type {
	case TypeNumber:
		return map[string]any{"type": "number"}
	case TypeBool:
		return map[string]any{"type": "boolean"}
	case TypeObject:
		return map[string]any{"type": "object"}
	case TypeStringList:
		return map[string]any{"type": "array", "items": map[string]any{"type": "string"}}
	case TypeObjectList:
		return map[string]any{"type": "array", "items": objectSchema(f.Items)}
	default:
		return map[string]any{"type": "string"}
	}
}

// escapePath escapes gjson path metacharacters in a plain field name.
func escapePath(name string) string {
	r := strings.NewReplacer(".", `\.`, "*", `\*`, "?", `\?`, "|", `\|`, "#", `\#`, "@", `\@`)
	return r.Replace(name)
}
