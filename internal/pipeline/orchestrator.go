// Package pipeline composes the scheduler, the extractor and the resource
// cache into complete, persisted generations.
package pipeline

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gowebpki/jcs"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/study-resources/internal/apperr"
	"github.com/jonathan/study-resources/internal/db"
	"github.com/jonathan/study-resources/internal/extraction"
	"github.com/jonathan/study-resources/internal/llm"
	"github.com/jonathan/study-resources/internal/logger"
	"github.com/jonathan/study-resources/internal/prompts"
	"github.com/jonathan/study-resources/internal/types"
)

// DefaultTimeout is the wall-clock ceiling of one generation.
const DefaultTimeout = 5 * time.Minute

// Generator executes generation requests; *llm.Scheduler implements it.
type Generator interface {
	Execute(ctx context.Context, req *llm.Request) (*llm.Result, error)
}

// ResourceSource supplies cached resources; *cache.Cache implements it.
type ResourceSource interface {
	Get(ctx context.Context, key types.ResourceKey, kind types.ResourceKind, target int) ([]types.CachedResource, error)
}

// ProgressEvent represents a progress update during a generation.
type ProgressEvent struct {
	InputID string `json:"input_id"`
	Step    string `json:"step"`
	Message string `json:"message"`
}

// ProgressCallback is called when generation progress occurs.
type ProgressCallback func(event ProgressEvent)

// Progress steps
const (
	StepPrompt    = "prompt"
	StepGenerate  = "generate"
	StepExtract   = "extract"
	StepResources = "resources"
	StepPersist   = "persist"
)

// Options configures an Orchestrator.
type Options struct {
	Timeout time.Duration
	// Targets is how many resources of each kind to attach per topic.
	Targets   map[types.ResourceKind]int
	MaxTopics int
	Tier      llm.ModelTier
	DryRun    bool
	// MaxAttachmentBytes bounds each attachment file read from disk.
	MaxAttachmentBytes int64
	OnProgress         ProgressCallback
}

// DefaultOptions returns the default orchestrator options.
func DefaultOptions() Options {
	return Options{
		Timeout: DefaultTimeout,
		Targets: map[types.ResourceKind]int{
			types.KindExercise: 2,
			types.KindVideo:    3,
			types.KindLink:     3,
		},
		MaxTopics:          5,
		Tier:               llm.TierStandard,
		MaxAttachmentBytes: 20 << 20,
	}
}

// Orchestrator runs generations end to end.
type Orchestrator struct {
	gen       Generator
	resources ResourceSource
	store     db.Store
	canon     types.Canonicalizer
	opts      Options
	log       *logger.Logger
	now       func() time.Time
	newID     func() string
}

// NewOrchestrator creates an Orchestrator. A nil canonicalizer folds topic
// names without a taxonomy.
func NewOrchestrator(gen Generator, resources ResourceSource, store db.Store, canon types.Canonicalizer, opts Options, log *logger.Logger) *Orchestrator {
	defaults := DefaultOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = defaults.Timeout
	}
	if opts.Targets == nil {
		opts.Targets = defaults.Targets
	}
	if opts.MaxTopics <= 0 {
		opts.MaxTopics = defaults.MaxTopics
	}
	if opts.Tier == "" {
		opts.Tier = defaults.Tier
	}
	if opts.MaxAttachmentBytes <= 0 {
		opts.MaxAttachmentBytes = defaults.MaxAttachmentBytes
	}
	if canon == nil {
		canon = (*types.Taxonomy)(nil)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Orchestrator{
		gen:       gen,
		resources: resources,
		store:     store,
		canon:     canon,
		opts:      opts,
		log:       log.With("component", "orchestrator"),
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

func (o *Orchestrator) emit(in *types.GenerationInput, step, format string, args ...any) {
	if o.opts.OnProgress != nil {
		o.opts.OnProgress(ProgressEvent{InputID: in.ID, Step: step, Message: fmt.Sprintf(format, args...)})
	}
}

// Generate produces, validates and persists one aggregate. Nothing is
// persisted unless the aggregate satisfies the completeness invariants and
// the whole run finished within the ceiling.
func (o *Orchestrator) Generate(ctx context.Context, in types.GenerationInput) (*types.Aggregate, error) {
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("invalid input %s: %w", in.ID, err)
	}

	runCtx, cancel := context.WithTimeout(ctx, o.opts.Timeout)
	defer cancel()

	agg, err := o.generate(runCtx, &in)
	if err != nil {
		if ctx.Err() == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return nil, &apperr.TransientError{
				Kind:  apperr.KindTimeout,
				Cause: fmt.Errorf("generation %s exceeded %s: %w", in.ID, o.opts.Timeout, err),
			}
		}
		return nil, err
	}
	return agg, nil
}

func (o *Orchestrator) generate(ctx context.Context, in *types.GenerationInput) (*types.Aggregate, error) {
	log := o.log.With("input", in.ID, "kind", string(in.Kind))
	schema := generationSchema(in)

	prompt, err := o.buildPrompt(in, schema)
	if err != nil {
		return nil, err
	}
	attachments, err := o.loadAttachments(in.Attachments)
	if err != nil {
		return nil, err
	}
	o.emit(in, StepPrompt, "built %s prompt with %d attachments", in.Kind, len(attachments))

	req := llm.NewRequest(prompt, llm.WithTier(o.opts.Tier), llm.WithJSON(), llm.WithAttachments(attachments...))
	result, err := o.gen.Execute(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("generation %s failed: %w", in.ID, err)
	}
	o.emit(in, StepGenerate, "model %s answered on attempt %d", result.Usage.Model, result.Usage.Attempt)

	outcome := extraction.Extract(result.Text, schema)
	if !outcome.OK() {
		log.Warn("extraction failed", "kind", outcome.Err.Kind, "excerpt", outcome.Err.Excerpt)
		return nil, fmt.Errorf("generation %s: %w", in.ID, outcome.Err)
	}
	var content types.Generated
	if err := outcome.Decode(&content); err != nil {
		return nil, fmt.Errorf("generation %s: failed to decode content: %w", in.ID, err)
	}
	content.Exercises = completeExercises(content.Exercises)
	o.emit(in, StepExtract, "extracted with %s strategy (synthesized=%t)", outcome.Strategy, outcome.Synthesized)

	topics := o.topics(in, content.Topics)
	resources, err := o.gatherResources(ctx, in, topics)
	if err != nil {
		return nil, err
	}

	agg := &types.Aggregate{
		ID:          o.newID(),
		Kind:        in.Kind,
		InputID:     in.ID,
		QuestionID:  in.QuestionID,
		Subject:     in.Subject,
		Grade:       in.Grade,
		Content:     content,
		Resources:   resources,
		Strategy:    string(outcome.Strategy),
		NeedsReview: !outcome.Trusted(),
		Model:       result.Usage.Model,
		CreatedAt:   o.now().UTC(),
	}
	exercises, videos, links := agg.Counts()
	o.emit(in, StepResources, "%d topics: %d exercises, %d videos, %d links", len(topics), exercises, videos, links)

	if err := CheckCompleteness(agg); err != nil {
		log.Warn("aggregate incomplete, discarding", "error", err)
		return nil, err
	}

	digest, err := Digest(agg)
	if err != nil {
		return nil, err
	}
	agg.Digest = digest

	// The ceiling may have passed while the last cache call returned.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if o.opts.DryRun {
		log.Info("dry run, not persisting", "id", agg.ID)
		return agg, nil
	}
	if err := o.persist(ctx, agg); err != nil {
		return nil, err
	}
	o.emit(in, StepPersist, "stored generation %s", agg.ID)
	log.Info("generation stored", "id", agg.ID, "strategy", agg.Strategy, "needs_review", agg.NeedsReview)
	return agg, nil
}

func (o *Orchestrator) buildPrompt(in *types.GenerationInput, schema extraction.Schema) (string, error) {
	options := make([]string, 0, len(in.Options))
	for _, opt := range in.Options {
		options = append(options, fmt.Sprintf("%s) %s", opt.ID, opt.Text))
	}
	topics := strings.Join(in.Topics, ", ")
	if topics == "" {
		topics = in.Subject
	}
	notes := in.Notes
	if notes == "" {
		notes = "none"
	}
	prompt, err := prompts.Render(prompts.GenerationFile, promptKey(in.Kind), map[string]string{
		"Subject":      in.Subject,
		"Grade":        in.Grade,
		"Statement":    in.Statement,
		"Options":      strings.Join(options, "\n"),
		"Answer":       in.Answer,
		"Topics":       topics,
		"Notes":        notes,
		"Instructions": schema.Instructions(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to build prompt: %w", err)
	}
	return prompt, nil
}

func (o *Orchestrator) loadAttachments(refs []types.Attachment) ([]llm.Attachment, error) {
	out := make([]llm.Attachment, 0, len(refs))
	for _, ref := range refs {
		info, err := os.Stat(ref.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to read attachment %s: %w", ref.Path, err)
		}
		if info.Size() > o.opts.MaxAttachmentBytes {
			return nil, fmt.Errorf("attachment %s is %d bytes, limit is %d", ref.Path, info.Size(), o.opts.MaxAttachmentBytes)
		}
		data, err := os.ReadFile(ref.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to read attachment %s: %w", ref.Path, err)
		}
		mimeType := ref.MIMEType
		if mimeType == "" {
			mimeType = mime.TypeByExtension(strings.ToLower(filepath.Ext(ref.Path)))
		}
		if mimeType == "" {
			mimeType = http.DetectContentType(data)
		}
		if i := strings.Index(mimeType, ";"); i >= 0 {
			mimeType = strings.TrimSpace(mimeType[:i])
		}
		label := ref.Label
		if label == "" {
			label = filepath.Base(ref.Path)
		}
		out = append(out, llm.Attachment{MIMEType: mimeType, Data: data, Label: label})
	}
	return out, nil
}

// topics merges generated and input topics, canonicalized and deduplicated,
// falling back to the subject.
func (o *Orchestrator) topics(in *types.GenerationInput, generated []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range append(append([]string{}, in.Topics...), generated...) {
		if strings.TrimSpace(t) == "" {
			continue
		}
		c := o.canon.Canonicalize(in.Subject, t)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
		if len(out) == o.opts.MaxTopics {
			break
		}
	}
	if len(out) == 0 {
		out = append(out, o.canon.Canonicalize(in.Subject, in.Subject))
	}
	return out
}

// gatherResources fans out one cache call per (topic, kind).
func (o *Orchestrator) gatherResources(ctx context.Context, in *types.GenerationInput, topics []string) ([]types.TopicResources, error) {
	out := make([]types.TopicResources, len(topics))
	g, gctx := errgroup.WithContext(ctx)

	for i, topic := range topics {
		out[i].Topic = topic
		key := types.ResourceKey{Subject: in.Subject, Grade: in.Grade, Topic: topic}
		for _, kind := range types.AllKinds {
			target := o.opts.Targets[kind]
			if target <= 0 {
				continue
			}
			g.Go(func() error {
				rs, err := o.resources.Get(gctx, key, kind, target)
				if err != nil {
					return fmt.Errorf("resources for %s/%s: %w", key, kind, err)
				}
				if rs == nil {
					rs = []types.CachedResource{}
				}
				// Each goroutine owns one field of one element.
				switch kind {
				case types.KindVideo:
					out[i].Videos = rs
				case types.KindLink:
					out[i].Links = rs
				case types.KindExercise:
					out[i].Exercises = rs
				}
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].Videos == nil {
			out[i].Videos = []types.CachedResource{}
		}
		if out[i].Links == nil {
			out[i].Links = []types.CachedResource{}
		}
		if out[i].Exercises == nil {
			out[i].Exercises = []types.CachedResource{}
		}
	}
	return out, nil
}

// CheckCompleteness enforces the minimum content of a persisted aggregate:
// at least one exercise and one video. Links may be empty.
func CheckCompleteness(agg *types.Aggregate) error {
	exercises, videos, _ := agg.Counts()
	var missing []string
	if strings.TrimSpace(agg.Content.Text) == "" {
		missing = append(missing, "text")
	}
	if exercises == 0 {
		missing = append(missing, "exercises")
	}
	if videos == 0 {
		missing = append(missing, "videos")
	}
	if len(missing) > 0 {
		return &apperr.CompletenessError{Missing: missing}
	}
	return nil
}

// Digest is the hex blake2b-256 of the canonical (RFC 8785) JSON of the
// aggregate's content and resources.
func Digest(agg *types.Aggregate) (string, error) {
	raw, err := json.Marshal(struct {
		Kind      types.GenerationKind   `json:"kind"`
		InputID   string                 `json:"input_id"`
		Content   types.Generated        `json:"content"`
		Resources []types.TopicResources `json:"resources"`
	}{agg.Kind, agg.InputID, agg.Content, agg.Resources})
	if err != nil {
		return "", fmt.Errorf("failed to encode aggregate: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize aggregate: %w", err)
	}
	sum := blake2b.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// GenerationPath is the document path of a stored aggregate.
func GenerationPath(agg *types.Aggregate) string {
	return db.Path("generations", string(agg.Kind), agg.ID)
}

// QuestionPath is the document path of a question's generation index.
func QuestionPath(questionID string) string {
	return db.Path("questions", questionID)
}

func (o *Orchestrator) persist(ctx context.Context, agg *types.Aggregate) error {
	doc, err := db.ToDocument(agg)
	if err != nil {
		return err
	}
	writes := []db.Write{{Path: GenerationPath(agg), Data: doc}}
	if agg.QuestionID != "" {
		writes = append(writes, db.Write{
			Path: QuestionPath(agg.QuestionID),
			Data: db.Document{
				"generations": map[string]any{string(agg.Kind): agg.ID},
				"updated_at":  agg.CreatedAt.Format(time.RFC3339),
			},
			Merge: true,
		})
	}
	if err := o.store.Commit(ctx, writes); err != nil {
		return fmt.Errorf("failed to persist generation %s: %w", agg.ID, err)
	}
	return nil
}

func completeExercises(in []types.Exercise) []types.Exercise {
	out := in[:0]
	for _, e := range in {
		if strings.TrimSpace(e.Statement) != "" && strings.TrimSpace(e.Answer) != "" {
			out = append(out, e)
		}
	}
	return out
}
