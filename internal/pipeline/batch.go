package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jonathan/study-resources/internal/apperr"
	"github.com/jonathan/study-resources/internal/types"
)

// BatchOptions selects and bounds a batch run.
type BatchOptions struct {
	// Size caps how many items are attempted; zero means all.
	Size    int
	Subject string
	Grade   string
	Kind    types.GenerationKind
}

// ItemFailure records one failed item.
type ItemFailure struct {
	InputID   string          `json:"input_id"`
	Category  apperr.Category `json:"category"`
	Error     string          `json:"error"`
	Retryable bool            `json:"retryable"`
}

// BatchReport summarizes a batch run.
type BatchReport struct {
	Total     int           `json:"total"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	Failures  []ItemFailure `json:"failures,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// OK reports whether every attempted item succeeded.
func (r *BatchReport) OK() bool {
	return r.Failed == 0
}

func (o BatchOptions) matches(in *types.GenerationInput) bool {
	if o.Subject != "" && types.Fold(o.Subject) != types.Fold(in.Subject) {
		return false
	}
	if o.Grade != "" && types.Fold(o.Grade) != types.Fold(in.Grade) {
		return false
	}
	if o.Kind != "" && o.Kind != in.Kind {
		return false
	}
	return true
}

// RunBatch generates every matching item in order. A failed item is recorded
// and the batch moves on; only cancellation of ctx stops it early.
func (o *Orchestrator) RunBatch(ctx context.Context, items []types.GenerationInput, opts BatchOptions, onResult func(*types.Aggregate)) *BatchReport {
	start := time.Now()
	report := &BatchReport{Total: len(items)}

	attempted := 0
	for i := range items {
		in := items[i]
		if !opts.matches(&in) || (opts.Size > 0 && attempted >= opts.Size) {
			report.Skipped++
			continue
		}
		if ctx.Err() != nil {
			report.Skipped++
			continue
		}
		attempted++

		agg, err := o.Generate(ctx, in)
		if err != nil {
			report.Failed++
			report.Failures = append(report.Failures, ItemFailure{
				InputID:   in.ID,
				Category:  apperr.CategoryOf(err),
				Error:     err.Error(),
				Retryable: apperr.IsRetryable(err),
			})
			o.log.Error("item failed", "input", in.ID, "category", apperr.CategoryOf(err), "error", err)
			continue
		}
		report.Succeeded++
		if onResult != nil {
			onResult(agg)
		}
	}

	report.Duration = time.Since(start)
	o.log.Info("batch finished", "total", report.Total, "succeeded", report.Succeeded,
		"failed", report.Failed, "skipped", report.Skipped, "duration", report.Duration)
	return report
}

// LoadInputs reads batch items from a JSON array, a JSON Lines file (.jsonl)
// or a YAML list (.yaml, .yml).
func LoadInputs(path string) ([]types.GenerationInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read inputs: %w", err)
	}

	var items []types.GenerationInput
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var raw []map[string]any
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse inputs: %w", err)
		}
		// Round-trip through JSON so the json tags drive field names.
		js, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse inputs: %w", err)
		}
		if err := json.Unmarshal(js, &items); err != nil {
			return nil, fmt.Errorf("failed to parse inputs: %w", err)
		}
	case ".jsonl":
		for n, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			var in types.GenerationInput
			if err := json.Unmarshal([]byte(line), &in); err != nil {
				return nil, fmt.Errorf("failed to parse inputs line %d: %w", n+1, err)
			}
			items = append(items, in)
		}
	default:
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, fmt.Errorf("failed to parse inputs: %w", err)
		}
	}
	return items, nil
}
