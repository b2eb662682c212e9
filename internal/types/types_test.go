//nolint:revive // types is a standard Go package name pattern
package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerationInput_Validation(t *testing.T) {
	tests := []struct {
		name    string
		input   GenerationInput
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid justification",
			input: GenerationInput{
				ID: "q1", Kind: GenerationJustification, Subject: "math", Grade: "9",
				QuestionID: "q1", Statement: "2+2?",
				Options: []Option{{ID: "A", Text: "4"}, {ID: "B", Text: "5"}},
			},
		},
		{
			name:  "valid summary without question",
			input: GenerationInput{ID: "s1", Kind: GenerationSummary, Subject: "math", Grade: "9"},
		},
		{
			name:    "justification missing statement",
			input:   GenerationInput{ID: "q1", Kind: GenerationJustification, Subject: "math", Grade: "9", QuestionID: "q1"},
			wantErr: true,
			errMsg:  "Statement",
		},
		{
			name:    "unknown kind",
			input:   GenerationInput{ID: "x", Kind: "poem", Subject: "math", Grade: "9"},
			wantErr: true,
			errMsg:  "oneof",
		},
		{
			name: "option without text",
			input: GenerationInput{ID: "s1", Kind: GenerationSummary, Subject: "math", Grade: "9",
				Options: []Option{{ID: "A"}}},
			wantErr: true,
			errMsg:  "Text",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.input.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGenerationInput_OptionIDs(t *testing.T) {
	in := GenerationInput{Options: []Option{{ID: "A"}, {ID: "B"}, {ID: "C"}}}
	assert.Equal(t, []string{"A", "B", "C"}, in.OptionIDs())
}

func TestResourceKey(t *testing.T) {
	key := ResourceKey{Subject: "math", Grade: "9", Topic: "fractions"}
	assert.Equal(t, "math/9/fractions", key.String())
	assert.NoError(t, key.Validate())
	assert.Error(t, ResourceKey{Subject: "math"}.Validate())
}

func TestParseKinds(t *testing.T) {
	kind, err := ParseResourceKind(" Video ")
	require.NoError(t, err)
	assert.Equal(t, KindVideo, kind)

	_, err = ParseResourceKind("podcast")
	assert.Error(t, err)

	gen, err := ParseGenerationKind("study_plan")
	require.NoError(t, err)
	assert.Equal(t, GenerationStudyPlan, gen)

	_, err = ParseGenerationKind("essay")
	assert.Error(t, err)
}

func TestFold(t *testing.T) {
	assert.Equal(t, "funcao quadratica", Fold("  Função   Quadrática "))
	assert.Equal(t, "equacoes", Fold("EQUAÇÕES"))
}

func TestTaxonomy_Canonicalize(t *testing.T) {
	tax := NewTaxonomy(map[string]map[string][]string{
		"Matemática": {
			"Funções": {"função afim", "funcao quadratica", "Linear functions"},
		},
	})

	assert.Equal(t, "Funções", tax.Canonicalize("matematica", "Função Quadrática"))
	assert.Equal(t, "Funções", tax.Canonicalize("Matemática", "linear functions"))
	assert.Equal(t, "funcoes", Fold("Funções"))
	assert.Equal(t, "geometria plana", tax.Canonicalize("Matemática", "Geometria Plana"))
	assert.Equal(t, "logaritmos", tax.Canonicalize("física", "Logaritmos"))

	var nilTax *Taxonomy
	assert.Equal(t, "trig", nilTax.Canonicalize("math", "Trig"))
}

func TestAggregate_Counts(t *testing.T) {
	agg := Aggregate{
		Content: Generated{Exercises: []Exercise{{Statement: "a"}}},
		Resources: []TopicResources{
			{Topic: "t1", Videos: make([]CachedResource, 2), Links: make([]CachedResource, 1), Exercises: make([]CachedResource, 3)},
			{Topic: "t2", Videos: make([]CachedResource, 1)},
		},
	}

	exercises, videos, links := agg.Counts()
	assert.Equal(t, 4, exercises)
	assert.Equal(t, 3, videos)
	assert.Equal(t, 1, links)
}

func TestCachedResource_JSONMarshaling(t *testing.T) {
	res := CachedResource{
		Key:      ResourceKey{Subject: "math", Grade: "9", Topic: "fractions"},
		Kind:     KindVideo,
		Slot:     3,
		DedupKey: "yt:abc",
		Title:    "Fractions",
		Provider: "youtube",
	}

	data, err := json.Marshal(res)
	require.NoError(t, err)

	var decoded CachedResource
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, res.Key, decoded.Key)
	assert.Equal(t, 3, decoded.Slot)
	assert.NotContains(t, string(data), "exercise")
}
