package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// GenerationKind is the kind of content the orchestrator generates.
type GenerationKind string

const (
	GenerationJustification GenerationKind = "justification"
	GenerationStudyPlan     GenerationKind = "study_plan"
	GenerationSummary       GenerationKind = "summary"
)

// ParseGenerationKind parses a generation kind name.
func ParseGenerationKind(s string) (GenerationKind, error) {
	switch GenerationKind(strings.ToLower(strings.TrimSpace(s))) {
	case GenerationJustification:
		return GenerationJustification, nil
	case GenerationStudyPlan:
		return GenerationStudyPlan, nil
	case GenerationSummary:
		return GenerationSummary, nil
	default:
		return "", fmt.Errorf("unknown generation kind %q", s)
	}
}

// Option is one answer option of a multiple-choice question.
type Option struct {
	ID   string `json:"id" validate:"required"`
	Text string `json:"text" validate:"required"`
}

// Attachment references a binary file sent with the prompt.
type Attachment struct {
	Path     string `json:"path" validate:"required"`
	MIMEType string `json:"mime_type,omitempty"`
	Label    string `json:"label,omitempty"`
}

// GenerationInput is one item of a generation batch.
type GenerationInput struct {
	ID          string         `json:"id" validate:"required"`
	Kind        GenerationKind `json:"kind" validate:"required,oneof=justification study_plan summary"`
	Subject     string         `json:"subject" validate:"required"`
	Grade       string         `json:"grade" validate:"required"`
	Topics      []string       `json:"topics,omitempty"`
	QuestionID  string         `json:"question_id,omitempty" validate:"required_if=Kind justification"`
	Statement   string         `json:"statement,omitempty" validate:"required_if=Kind justification"`
	Options     []Option       `json:"options,omitempty" validate:"dive"`
	Answer      string         `json:"answer,omitempty"`
	Notes       string         `json:"notes,omitempty"`
	Attachments []Attachment   `json:"attachments,omitempty" validate:"dive"`
}

// Validate validates the GenerationInput using the validator.
func (in *GenerationInput) Validate() error {
	validate := validator.New()
	return validate.Struct(in)
}

// OptionIDs returns the identifiers of the input's answer options.
func (in *GenerationInput) OptionIDs() []string {
	ids := make([]string, 0, len(in.Options))
	for _, o := range in.Options {
		ids = append(ids, o.ID)
	}
	return ids
}

// Exercise is a practice problem, generated or cached.
type Exercise struct {
	Statement   string   `json:"statement"`
	Options     []Option `json:"options,omitempty"`
	Answer      string   `json:"answer"`
	Explanation string   `json:"explanation,omitempty"`
	Difficulty  string   `json:"difficulty,omitempty"`
}

// OptionExplanation explains why one answer option is right or wrong.
type OptionExplanation struct {
	ID          string `json:"id"`
	Explanation string `json:"explanation"`
}

// Generated is the structured content recovered from the model response.
type Generated struct {
	Text               string              `json:"text"`
	Topics             []string            `json:"topics,omitempty"`
	Exercises          []Exercise          `json:"exercises,omitempty"`
	OptionExplanations []OptionExplanation `json:"option_explanations,omitempty"`
	Steps              []string            `json:"steps,omitempty"`
}

// TopicResources groups the resources gathered for one canonical topic.
type TopicResources struct {
	Topic     string           `json:"topic"`
	Videos    []CachedResource `json:"videos"`
	Links     []CachedResource `json:"links"`
	Exercises []CachedResource `json:"exercises"`
}

// Aggregate is the final, complete result of one generation.
type Aggregate struct {
	ID          string           `json:"id"`
	Kind        GenerationKind   `json:"kind"`
	InputID     string           `json:"input_id"`
	QuestionID  string           `json:"question_id,omitempty"`
	Subject     string           `json:"subject"`
	Grade       string           `json:"grade"`
	Content     Generated        `json:"content"`
	Resources   []TopicResources `json:"resources"`
	Strategy    string           `json:"strategy"`
	NeedsReview bool             `json:"needs_review"`
	Model       string           `json:"model"`
	Digest      string           `json:"digest,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

// Counts returns how many exercises (generated plus cached), videos and links
// the aggregate holds.
func (a *Aggregate) Counts() (exercises, videos, links int) {
	exercises = len(a.Content.Exercises)
	for _, tr := range a.Resources {
		exercises += len(tr.Exercises)
		videos += len(tr.Videos)
		links += len(tr.Links)
	}
	return exercises, videos, links
}
