package schemas

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/study-resources/internal/extraction"
)

const resourceSchema = `{
  "type": "object",
  "required": ["title", "url", "metadata"],
  "properties": {
    "title": {"type": "string", "minLength": 1},
    "url": {"type": "string"},
    "metadata": {
      "type": "object",
      "required": ["duration_seconds"],
      "properties": {"duration_seconds": {"type": "number"}}
    },
    "tags": {"type": "array", "items": {"type": "string"}}
  }
}`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestValidateJSON(t *testing.T) {
	dir := t.TempDir()
	schemaPath := writeFile(t, dir, "resource.schema.json", resourceSchema)

	tests := []struct {
		name       string
		document   string
		wantFields []string
	}{
		{
			name:     "valid",
			document: `{"title": "Frações", "url": "https://x", "metadata": {"duration_seconds": 300}}`,
		},
		{
			name:       "missing field",
			document:   `{"title": "Frações", "metadata": {"duration_seconds": 300}}`,
			wantFields: []string{"(root)"},
		},
		{
			name:       "nested type mismatch",
			document:   `{"title": "Frações", "url": "https://x", "metadata": {"duration_seconds": "5m"}}`,
			wantFields: []string{"metadata.duration_seconds"},
		},
		{
			name:       "array item",
			document:   `{"title": "Frações", "url": "https://x", "metadata": {"duration_seconds": 1}, "tags": ["a", 2]}`,
			wantFields: []string{"tags.1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jsonPath := writeFile(t, dir, "doc.json", tt.document)
			err := ValidateJSON(schemaPath, jsonPath)
			if tt.wantFields == nil {
				assert.NoError(t, err)
				return
			}

			var validationErr *ValidationError
			require.True(t, errors.As(err, &validationErr), "error should be ValidationError type")
			var fields []string
			for _, fe := range validationErr.Errors {
				fields = append(fields, fe.Field)
			}
			assert.Equal(t, tt.wantFields, fields)
		})
	}
}

func TestValidateJSON_NotFound(t *testing.T) {
	dir := t.TempDir()
	schemaPath := writeFile(t, dir, "resource.schema.json", resourceSchema)
	jsonPath := writeFile(t, dir, "doc.json", `{}`)

	err := ValidateJSON(filepath.Join(dir, "nonexistent_schema.json"), jsonPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	err = ValidateJSON(schemaPath, filepath.Join(dir, "nonexistent.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestValidateJSON_MalformedJSON(t *testing.T) {
	dir := t.TempDir()
	schemaPath := writeFile(t, dir, "resource.schema.json", resourceSchema)
	jsonPath := writeFile(t, dir, "doc.json", `{"title": `)

	err := ValidateJSON(schemaPath, jsonPath)
	var loadErr *SchemaLoadError
	require.True(t, errors.As(err, &loadErr))
	assert.NotNil(t, errors.Unwrap(err))
}

func TestValidateFile(t *testing.T) {
	schemaPath := writeFile(t, t.TempDir(), "resource.schema.json", resourceSchema)

	assert.NoError(t, ValidateFile(schemaPath, []byte(`{"title": "t", "url": "u", "metadata": {"duration_seconds": 1}}`)))
	assert.Error(t, ValidateFile(schemaPath, []byte(`{"title": ""}`)))
}

func TestValidateDocument_ExtractionSchema(t *testing.T) {
	schema := extraction.Schema{
		Name: "SchemasTest",
		Fields: []extraction.Field{
			{Name: "text", Type: extraction.TypeString, Required: true},
			{Name: "topics", Type: extraction.TypeStringList},
		},
	}.JSONSchema()

	assert.NoError(t, ValidateDocument(schema, []byte(`{"text": "ok", "topics": ["a"]}`)))

	err := ValidateDocument(schema, []byte(`{"topics": "a"}`))
	var validationErr *ValidationError
	require.True(t, errors.As(err, &validationErr))
	assert.Len(t, validationErr.Errors, 2)
}

func TestWriteSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.schema.json")
	schema := map[string]any{"type": "object", "required": []any{"text"}}

	require.NoError(t, WriteSchema(path, schema))

	doc := filepath.Join(filepath.Dir(path), "doc.json")
	require.NoError(t, os.WriteFile(doc, []byte(`{"text": "x"}`), 0644))
	assert.NoError(t, ValidateJSON(path, doc))
}

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{Errors: []FieldError{
		{Field: "title", Message: "is required"},
		{Field: "url", Message: "invalid type"},
	}}

	assert.Contains(t, err.Error(), "1. title: is required")
	assert.Contains(t, err.Error(), "2. url: invalid type")
}
