// Package apperr defines the error taxonomy shared by the scheduler, the extractor,
// the resource cache and the orchestrator.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// Category is the coarse class of a failure, used by callers to decide whether
// to retry an operation later.
type Category string

const (
	CategoryTransient    Category = "transient"
	CategoryFatal        Category = "fatal"
	CategoryProtocol     Category = "protocol"
	CategoryValidation   Category = "validation"
	CategoryCompleteness Category = "completeness"
	CategoryUnknown      Category = "unknown"
)

// TransientKind sub-classifies a TransientError.
type TransientKind string

const (
	KindTimeout     TransientKind = "timeout"
	KindRateLimited TransientKind = "rate_limited"
	KindNetwork     TransientKind = "network"
)

// ProtocolKind sub-classifies a ProtocolError.
type ProtocolKind string

const (
	// KindMalformedUpstream means the generative endpoint answered without usable text.
	KindMalformedUpstream ProtocolKind = "malformed_upstream_response"
	// KindNoJSON means the text contains no JSON object at all.
	KindNoJSON ProtocolKind = "no_json_object"
	// KindEncodedNoise means the text looks like base64 or another opaque token,
	// which usually points at upstream truncation or corruption.
	KindEncodedNoise ProtocolKind = "encoded_noise"
	// KindMalformedJSON means a JSON object was found but no repair produced valid JSON.
	KindMalformedJSON ProtocolKind = "malformed_json"
	// KindSchemaMismatch means valid JSON was recovered but it lacks required fields.
	KindSchemaMismatch ProtocolKind = "schema_mismatch"
)

// TransientError is a timeout, rate-limit or network failure. The scheduler
// retries these locally up to its fixed budget.
type TransientError struct {
	Kind     TransientKind
	Attempts int
	Cause    error
}

func (e *TransientError) Error() string {
	var sb strings.Builder
	sb.WriteString("transient error (")
	sb.WriteString(string(e.Kind))
	sb.WriteString(")")
	if e.Attempts > 0 {
		sb.WriteString(fmt.Sprintf(" after %d attempts", e.Attempts))
	}
	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	return sb.String()
}

func (e *TransientError) Unwrap() error {
	return e.Cause
}

// FatalError is a permission or authentication failure. It is never retried.
type FatalError struct {
	Capability string // e.g. "generativelanguage.models.generateContent"
	Role       string // e.g. "roles/aiplatform.user"
	Cause      error
}

func (e *FatalError) Error() string {
	msg := "permission denied"
	if e.Capability != "" {
		msg += fmt.Sprintf(": caller lacks %s", e.Capability)
	}
	if e.Role != "" {
		msg += fmt.Sprintf(" (grant %s or check API key restrictions)", e.Role)
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(": %v", e.Cause)
	}
	return msg
}

func (e *FatalError) Unwrap() error {
	return e.Cause
}

// ProtocolError means the upstream response could not be turned into a usable
// structure. Excerpt is always bounded.
type ProtocolError struct {
	Kind    ProtocolKind
	Excerpt string
	Cause   error
}

func (e *ProtocolError) Error() string {
	msg := fmt.Sprintf("protocol error (%s)", e.Kind)
	if e.Cause != nil {
		msg += fmt.Sprintf(": %v", e.Cause)
	}
	if e.Excerpt != "" {
		msg += fmt.Sprintf(" [excerpt: %q]", e.Excerpt)
	}
	return msg
}

func (e *ProtocolError) Unwrap() error {
	return e.Cause
}

// ValidationError reports a single candidate resource that failed a check.
// It is logged and the candidate is discarded; it never escapes the cache.
type ValidationError struct {
	Candidate string
	Reason    string
	Cause     error
}

func (e *ValidationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("candidate %s rejected: %s: %v", e.Candidate, e.Reason, e.Cause)
	}
	return fmt.Sprintf("candidate %s rejected: %s", e.Candidate, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Cause
}

// CompletenessError means an aggregate lacks a required minimum of resources.
// The aggregate is discarded and never persisted.
type CompletenessError struct {
	Missing []string
}

func (e *CompletenessError) Error() string {
	return fmt.Sprintf("incomplete result: missing %s", strings.Join(e.Missing, ", "))
}

// CategoryOf classifies err by the first taxonomy type found in its chain.
func CategoryOf(err error) Category {
	if err == nil {
		return ""
	}
	var (
		transient    *TransientError
		fatal        *FatalError
		protocol     *ProtocolError
		validation   *ValidationError
		completeness *CompletenessError
	)
	switch {
	case errors.As(err, &fatal):
		return CategoryFatal
	case errors.As(err, &transient):
		return CategoryTransient
	case errors.As(err, &protocol):
		return CategoryProtocol
	case errors.As(err, &completeness):
		return CategoryCompleteness
	case errors.As(err, &validation):
		return CategoryValidation
	default:
		return CategoryUnknown
	}
}

// IsRetryable reports whether the whole operation may be attempted again later.
func IsRetryable(err error) bool {
	switch CategoryOf(err) {
	case CategoryTransient, CategoryProtocol, CategoryCompleteness:
		return true
	default:
		return false
	}
}

// Excerpt returns at most max runes of s, marking the cut.
func Excerpt(s string, max int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}
