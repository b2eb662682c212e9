package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/study-resources/internal/apperr"
	"github.com/jonathan/study-resources/internal/db"
	"github.com/jonathan/study-resources/internal/llm"
	"github.com/jonathan/study-resources/internal/types"
)

func batchItems() []types.GenerationInput {
	ok := justificationInput()
	ok.ID = "ok-1"

	failing := justificationInput()
	failing.ID = "fail-1"
	failing.Statement = "FAIL this question"

	other := justificationInput()
	other.ID = "other-subject"
	other.Subject = "história"

	ok2 := justificationInput()
	ok2.ID = "ok-2"
	ok2.QuestionID = "q2"
	return []types.GenerationInput{ok, failing, other, ok2}
}

func batchGenerator() *fakeGenerator {
	return &fakeGenerator{respond: func(_ context.Context, req *llm.Request) (string, error) {
		if strings.Contains(req.Prompt(), "FAIL") {
			return "", &apperr.TransientError{Kind: apperr.KindRateLimited, Attempts: 5, Cause: errors.New("429")}
		}
		return justificationJSON, nil
	}}
}

func TestRunBatch(t *testing.T) {
	tests := []struct {
		name      string
		opts      BatchOptions
		succeeded int
		failed    int
		skipped   int
	}{
		{name: "all items", opts: BatchOptions{}, succeeded: 3, failed: 1, skipped: 0},
		{name: "subject filter", opts: BatchOptions{Subject: "Matematica"}, succeeded: 2, failed: 1, skipped: 1},
		{name: "size limit", opts: BatchOptions{Size: 2}, succeeded: 1, failed: 1, skipped: 2},
		{name: "grade filter", opts: BatchOptions{Grade: "9º ano"}, succeeded: 0, failed: 0, skipped: 4},
		{name: "kind filter", opts: BatchOptions{Kind: types.GenerationSummary}, succeeded: 0, failed: 0, skipped: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := db.NewMemoryStore()
			o := NewOrchestrator(batchGenerator(), fullResources(), store, testTaxonomy, DefaultOptions(), nil)

			var results []string
			report := o.RunBatch(context.Background(), batchItems(), tt.opts, func(agg *types.Aggregate) {
				results = append(results, agg.InputID)
			})

			assert.Equal(t, 4, report.Total)
			assert.Equal(t, tt.succeeded, report.Succeeded)
			assert.Equal(t, tt.failed, report.Failed)
			assert.Equal(t, tt.skipped, report.Skipped)
			assert.Len(t, results, tt.succeeded)
			assert.Equal(t, tt.failed == 0, report.OK())
			assert.Len(t, store.Paths("generations/"), tt.succeeded)
		})
	}
}

func TestRunBatch_RecordsFailureCategory(t *testing.T) {
	o := NewOrchestrator(batchGenerator(), fullResources(), db.NewMemoryStore(), testTaxonomy, DefaultOptions(), nil)

	report := o.RunBatch(context.Background(), batchItems(), BatchOptions{}, nil)

	require.Len(t, report.Failures, 1)
	f := report.Failures[0]
	assert.Equal(t, "fail-1", f.InputID)
	assert.Equal(t, apperr.CategoryTransient, f.Category)
	assert.True(t, f.Retryable)
	assert.Contains(t, f.Error, "429")
}

func TestRunBatch_CancelledSkipsRemaining(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	gen := &fakeGenerator{respond: func(context.Context, *llm.Request) (string, error) {
		cancel()
		return justificationJSON, nil
	}}
	o := NewOrchestrator(gen, fullResources(), db.NewMemoryStore(), testTaxonomy, DefaultOptions(), nil)

	report := o.RunBatch(ctx, batchItems(), BatchOptions{}, nil)

	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 3, report.Skipped)
	assert.Len(t, gen.requests, 1)
}

func TestLoadInputs(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"items.json": `[
  {"id": "a", "kind": "justification", "subject": "matemática", "grade": "6º ano",
   "question_id": "q1", "statement": "2+2?", "options": [{"id": "A", "text": "4"}], "answer": "A"},
  {"id": "b", "kind": "summary", "subject": "física", "grade": "1º ano", "topics": ["cinemática"]}
]`,
		"items.jsonl": `{"id": "a", "kind": "justification", "subject": "matemática", "grade": "6º ano", "question_id": "q1", "statement": "2+2?", "options": [{"id": "A", "text": "4"}], "answer": "A"}

{"id": "b", "kind": "summary", "subject": "física", "grade": "1º ano", "topics": ["cinemática"]}
`,
		"items.yaml": `- id: a
  kind: justification
  subject: matemática
  grade: 6º ano
  question_id: q1
  statement: "2+2?"
  options:
    - id: A
      text: "4"
  answer: A
- id: b
  kind: summary
  subject: física
  grade: 1º ano
  topics: [cinemática]
`,
	}

	for name, content := range files {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

			items, err := LoadInputs(path)
			require.NoError(t, err)
			require.Len(t, items, 2)

			assert.Equal(t, "a", items[0].ID)
			assert.Equal(t, types.GenerationJustification, items[0].Kind)
			assert.Equal(t, []types.Option{{ID: "A", Text: "4"}}, items[0].Options)
			assert.NoError(t, items[0].Validate())
			assert.Equal(t, types.GenerationSummary, items[1].Kind)
			assert.Equal(t, []string{"cinemática"}, items[1].Topics)
		})
	}
}

func TestLoadInputs_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadInputs(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.jsonl")
	require.NoError(t, os.WriteFile(bad, []byte("{\"id\": \"a\"}\nnot json\n"), 0o600))
	_, err = LoadInputs(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}
