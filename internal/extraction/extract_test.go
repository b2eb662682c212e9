package extraction

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/jonathan/study-resources/internal/apperr"
)

func justificationSchema(ids ...string) Schema {
	return Schema{
		Name: "TestJustification",
		Fields: []Field{
			{Name: "justification", Type: TypeString, Required: true},
			{Name: "options", Type: TypeObjectList, Required: true, Items: []Field{
				{Name: "id", Type: TypeString},
				{Name: "explanation", Type: TypeString},
			}},
		},
		TextField:       "justification",
		RecordsField:    "options",
		RecordIDField:   "id",
		RecordTextField: "explanation",
		KnownRecordIDs:  ids,
	}
}

func TestExtract_TruncatedFencedObject(t *testing.T) {
	raw := "```json\n{\"a\":1,\"b\":[{\"x\":1}"

	out := Extract(raw, Schema{Name: "TestOpen"})

	require.True(t, out.OK(), "unexpected failure: %v", out.Error())
	assert.Equal(t, StrategyBalance, out.Strategy)
	assert.JSONEq(t, `{"a":1,"b":[{"x":1}]}`, string(out.Document))
	assert.False(t, out.Synthesized)
	assert.True(t, out.Trusted())
}

func TestExtract_TruncatedWithBracesInStrings(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected string
	}{
		{
			name:     "set notation in prose",
			raw:      `{"text": "Seja A = {1, 2, 3} o conjunto dado; compare", "steps": ["revisar conjuntos", "resolver exerc`,
			expected: `{"text": "Seja A = {1, 2, 3} o conjunto dado; compare", "steps": ["revisar conjuntos", "resolver exerc"]}`,
		},
		{
			name:     "lone closing brace",
			raw:      `{"a":1,"note":"curly } inside","b":[`,
			expected: `{"a":1,"note":"curly } inside","b":[]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Extract(tt.raw, Schema{Name: "TestOpen"})
			require.True(t, out.OK(), "unexpected failure: %v", out.Error())
			assert.Equal(t, StrategyBalance, out.Strategy)
			assert.JSONEq(t, tt.expected, string(out.Document))
		})
	}
}

func TestExtract_RepairOfTruncatedSpanIsSynthesized(t *testing.T) {
	schema := Schema{Name: "TestCount", Fields: []Field{{Name: "a", Type: TypeNumber, Required: true}}}

	out := Extract(`{"a": -`, schema)
	require.True(t, out.OK(), "unexpected failure: %v", out.Error())
	assert.Equal(t, StrategyRepair, out.Strategy)
	assert.True(t, out.Synthesized)
	assert.False(t, out.Trusted())

	out = Extract(`{a: 1}`, schema)
	require.True(t, out.OK(), "unexpected failure: %v", out.Error())
	assert.Equal(t, StrategyRepair, out.Strategy)
	assert.False(t, out.Synthesized)
}

func TestExtract_StrategySelection(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		schema   Schema
		strategy StrategyName
		expected string
	}{
		{
			name:     "clean object",
			raw:      `{"name": "x"}`,
			schema:   Schema{Name: "TestName", Fields: []Field{{Name: "name", Type: TypeString, Required: true}}},
			strategy: StrategyIsolate,
			expected: `{"name":"x"}`,
		},
		{
			name:     "preamble and trailing prose",
			raw:      "Here is the result:\n{\"name\": \"x\"}\nLet me know if you need more.",
			schema:   Schema{Name: "TestName", Fields: []Field{{Name: "name", Type: TypeString, Required: true}}},
			strategy: StrategyIsolate,
			expected: `{"name":"x"}`,
		},
		{
			name:     "single quoted strings",
			raw:      `{'summary': 'Photosynthesis converts light', 'tags': ['bio', 'plants']}`,
			schema:   Schema{Name: "TestSummary", Fields: []Field{{Name: "summary", Type: TypeString, Required: true}, {Name: "tags", Type: TypeStringList}}},
			strategy: StrategyLoose,
			expected: `{"summary":"Photosynthesis converts light","tags":["bio","plants"]}`,
		},
		{
			name:     "trailing commas",
			raw:      `{"a": 1, "b": [1, 2,],}`,
			schema:   Schema{Name: "TestOpen"},
			strategy: StrategyLoose,
			expected: `{"a":1,"b":[1,2]}`,
		},
		{
			name:     "unquoted keys need general repair",
			raw:      `{name: "x", count: 2}`,
			schema:   Schema{Name: "TestNameCount", Fields: []Field{{Name: "name", Type: TypeString, Required: true}, {Name: "count", Type: TypeNumber}}},
			strategy: StrategyRepair,
			expected: `{"name":"x","count":2}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Extract(tt.raw, tt.schema)
			require.True(t, out.OK(), "unexpected failure: %v", out.Error())
			assert.Equal(t, tt.strategy, out.Strategy)
			assert.JSONEq(t, tt.expected, string(out.Document))
		})
	}
}

func TestExtract_FailureKinds(t *testing.T) {
	nameSchema := Schema{Name: "TestName", Fields: []Field{{Name: "name", Type: TypeString, Required: true}}}

	tests := []struct {
		name string
		raw  string
		kind apperr.ProtocolKind
	}{
		{
			name: "prose without object",
			raw:  "I'm sorry, I cannot produce that output.",
			kind: apperr.KindNoJSON,
		},
		{
			name: "base64 noise",
			raw:  "QUJDREVGR0hJSktMTU5PUFFSU1RVVldYWVo0MTIzNDU2Nzg5YWJjZGVmZ2hpams=",
			kind: apperr.KindEncodedNoise,
		},
		{
			name: "data uri",
			raw:  "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNk",
			kind: apperr.KindEncodedNoise,
		},
		{
			name: "valid json missing required field",
			raw:  `{"other": 1}`,
			kind: apperr.KindSchemaMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Extract(tt.raw, nameSchema)
			require.False(t, out.OK())
			require.NotNil(t, out.Err)
			assert.Equal(t, tt.kind, out.Err.Kind)
			assert.Equal(t, apperr.CategoryProtocol, apperr.CategoryOf(out.Error()))
		})
	}
}

func TestExtract_ExcerptIsBounded(t *testing.T) {
	raw := strings.Repeat("no structure here ", 200)

	out := Extract(raw, Schema{Name: "TestOpen"})

	require.NotNil(t, out.Err)
	assert.LessOrEqual(t, utf8.RuneCountInString(out.Err.Excerpt), ExcerptLength+1)
	assert.Contains(t, raw, strings.TrimSuffix(out.Err.Excerpt, "…"))
}

func TestExtract_SynthesizesMissingRecords(t *testing.T) {
	raw := `{"justification": "B is correct because the slope is constant.",
		"options": [{"id": "A", "explanation": "A ignores the intercept."}, {"id": "B", "explanation": "Correct."}]}`

	out := Extract(raw, justificationSchema("A", "B", "C", "D"))

	require.True(t, out.OK(), "unexpected failure: %v", out.Error())
	assert.Equal(t, StrategyIsolate, out.Strategy)
	assert.True(t, out.Synthesized)
	assert.False(t, out.Trusted())

	options := gjson.GetBytes(out.Document, "options").Array()
	require.Len(t, options, 4)
	assert.Equal(t, "A ignores the intercept.", options[0].Get("explanation").String())
	assert.Equal(t, "C", options[2].Get("id").String())
	assert.Equal(t, DefaultPlaceholderText, options[2].Get("explanation").String())
	assert.Equal(t, DefaultPlaceholderText, options[3].Get("explanation").String())
}

func TestExtract_NoSynthesisWhenAllRecordsPresent(t *testing.T) {
	raw := `{"justification": "ok", "options": [{"id": "A", "explanation": "x"}, {"id": "B", "explanation": "y"}]}`

	out := Extract(raw, justificationSchema("A", "B"))

	require.True(t, out.OK())
	assert.False(t, out.Synthesized)
	assert.True(t, out.Trusted())
}

func TestExtract_PartialFieldRecovery(t *testing.T) {
	// Unescaped inner quotes break every formatting-level stage.
	raw := `{"justification": "The answer is B because "slope" is constant", "options": [{"id": "A", "explanation": "Too small."}, {"id": "B", "explanation": "Matches the rate."}]}`

	out := Extract(raw, justificationSchema("A", "B", "C"))

	require.True(t, out.OK(), "unexpected failure: %v", out.Error())
	assert.Equal(t, StrategyPartial, out.Strategy)
	assert.True(t, out.Synthesized)
	assert.False(t, out.Trusted())
	assert.True(t, strings.HasPrefix(gjson.GetBytes(out.Document, "justification").String(), "The answer is B"))

	options := gjson.GetBytes(out.Document, "options").Array()
	require.Len(t, options, 3)
	assert.Equal(t, "Matches the rate.", options[1].Get("explanation").String())
	assert.Equal(t, DefaultPlaceholderText, options[2].Get("explanation").String())
}

func TestExtractWith_CustomStrategies(t *testing.T) {
	calls := 0
	failing := Strategy{Name: "noop", Apply: func(Input) ([]byte, bool, error) {
		calls++
		return []byte("not json"), false, nil
	}}

	out := ExtractWith(`{"a": 1`, Schema{Name: "TestOpen"}, []Strategy{failing})

	assert.Equal(t, 1, calls)
	require.NotNil(t, out.Err)
	assert.Equal(t, apperr.KindMalformedJSON, out.Err.Kind)
}

func TestOutcome_Decode(t *testing.T) {
	out := Extract(`{"name": "x"}`, Schema{Name: "TestName", Fields: []Field{{Name: "name", Type: TypeString, Required: true}}})

	var v struct {
		Name string `json:"name"`
	}
	require.NoError(t, out.Decode(&v))
	assert.Equal(t, "x", v.Name)

	failed := Extract("nothing", Schema{Name: "TestOpen"})
	assert.Error(t, failed.Decode(&v))
}

func TestSchema_Instructions(t *testing.T) {
	s := justificationSchema("A")
	s.Description = "Explain the answer."

	got := s.Instructions()

	assert.Contains(t, got, "Explain the answer.")
	assert.Contains(t, got, `"justification": "string" (required)`)
	assert.Contains(t, got, `"options": [{"id": "string", "explanation": "string"}]`)
	assert.Contains(t, got, "Return ONLY the JSON object")
}
