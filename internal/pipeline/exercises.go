package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jonathan/study-resources/internal/extraction"
	"github.com/jonathan/study-resources/internal/llm"
	"github.com/jonathan/study-resources/internal/logger"
	"github.com/jonathan/study-resources/internal/prompts"
	"github.com/jonathan/study-resources/internal/search"
	"github.com/jonathan/study-resources/internal/types"
)

// maxExercisesPerCall keeps exercise responses well inside the output budget.
const maxExercisesPerCall = 10

// ExerciseProvider generates practice exercises with the model so the
// exercise partition of the cache refills like videos and links do.
type ExerciseProvider struct {
	gen  Generator
	tier llm.ModelTier
	log  *logger.Logger
}

// NewExerciseProvider creates an ExerciseProvider.
func NewExerciseProvider(gen Generator, tier llm.ModelTier, log *logger.Logger) *ExerciseProvider {
	if tier == "" {
		tier = llm.TierLite
	}
	if log == nil {
		log = logger.Nop()
	}
	return &ExerciseProvider{gen: gen, tier: tier, log: log.With("component", "exercise_provider")}
}

func (p *ExerciseProvider) Kind() types.ResourceKind { return types.KindExercise }

// Search generates up to max exercises for the query's key.
func (p *ExerciseProvider) Search(ctx context.Context, q search.Query, max int) ([]types.Candidate, error) {
	if max <= 0 {
		return nil, nil
	}
	if max > maxExercisesPerCall {
		max = maxExercisesPerCall
	}
	schema := exerciseSchema()
	topic := q.Key.Topic
	if q.Fallback {
		topic = q.Key.Subject
	}
	prompt, err := prompts.Render(prompts.GenerationFile, "exercises", map[string]string{
		"Subject":      q.Key.Subject,
		"Grade":        q.Key.Grade,
		"Count":        strconv.Itoa(max),
		"Topic":        topic,
		"Keywords":     strings.Join(q.Keywords, ", "),
		"Instructions": schema.Instructions(),
	})
	if err != nil {
		return nil, err
	}

	result, err := p.gen.Execute(ctx, llm.NewRequest(prompt, llm.WithTier(p.tier), llm.WithJSON()))
	if err != nil {
		return nil, fmt.Errorf("exercise generation failed: %w", err)
	}
	outcome := extraction.Extract(result.Text, schema)
	if !outcome.OK() {
		return nil, fmt.Errorf("exercise generation: %w", outcome.Err)
	}
	var doc struct {
		Exercises []types.Exercise `json:"exercises"`
	}
	if err := outcome.Decode(&doc); err != nil {
		return nil, fmt.Errorf("exercise generation: failed to decode: %w", err)
	}

	out := make([]types.Candidate, 0, len(doc.Exercises))
	for i := range doc.Exercises {
		ex := doc.Exercises[i]
		out = append(out, types.Candidate{
			Title:       ex.Statement,
			Description: ex.Explanation,
			Provider:    "llm:" + result.Usage.Model,
			Exercise:    &ex,
		})
		if len(out) == max {
			break
		}
	}
	p.log.Debug("exercises generated", "key", q.Key.String(), "count", len(out), "strategy", outcome.Strategy)
	return out, nil
}
