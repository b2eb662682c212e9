// Package types provides type definitions for structured data used throughout the study-resources system.
package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// ResourceKind is the kind of a cached resource.
type ResourceKind string

const (
	KindVideo    ResourceKind = "video"
	KindLink     ResourceKind = "link"
	KindExercise ResourceKind = "exercise"
)

// AllKinds lists every resource kind in fan-out order.
var AllKinds = []ResourceKind{KindExercise, KindVideo, KindLink}

// ParseResourceKind parses a kind name.
func ParseResourceKind(s string) (ResourceKind, error) {
	switch ResourceKind(strings.ToLower(strings.TrimSpace(s))) {
	case KindVideo:
		return KindVideo, nil
	case KindLink:
		return KindLink, nil
	case KindExercise:
		return KindExercise, nil
	default:
		return "", fmt.Errorf("unknown resource kind %q", s)
	}
}

// ResourceKey identifies one partition of the resource cache. Topic must
// already be canonical.
type ResourceKey struct {
	Subject string `json:"subject" validate:"required"`
	Grade   string `json:"grade" validate:"required"`
	Topic   string `json:"topic" validate:"required"`
}

// String renders the key for logs.
func (k ResourceKey) String() string {
	return k.Subject + "/" + k.Grade + "/" + k.Topic
}

// Validate validates the ResourceKey using the validator.
func (k ResourceKey) Validate() error {
	validate := validator.New()
	return validate.Struct(k)
}

// Candidate is a resource returned by a search provider before validation.
type Candidate struct {
	ExternalID  string        `json:"external_id,omitempty"`
	Title       string        `json:"title"`
	URL         string        `json:"url,omitempty"`
	Description string        `json:"description,omitempty"`
	Channel     string        `json:"channel,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
	Language    string        `json:"language,omitempty"`
	Provider    string        `json:"provider"`
	Exercise    *Exercise     `json:"exercise,omitempty"`
}

// Text returns the title and description used for relevance checks.
func (c Candidate) Text() string {
	return strings.TrimSpace(c.Title + " " + c.Description)
}

// CachedResource is one validated resource occupying a slot of a key's cache.
type CachedResource struct {
	Key         ResourceKey       `json:"key"`
	Kind        ResourceKind      `json:"kind"`
	Slot        int               `json:"slot"`
	DedupKey    string            `json:"dedup_key"`
	Title       string            `json:"title"`
	URL         string            `json:"url,omitempty"`
	ExternalID  string            `json:"external_id,omitempty"`
	Description string            `json:"description,omitempty"`
	Provider    string            `json:"provider"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Exercise    *Exercise         `json:"exercise,omitempty"`
	AddedAt     time.Time         `json:"added_at"`
}
