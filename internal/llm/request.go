package llm

import (
	"time"
)

// Attachment is a binary payload sent alongside the prompt.
type Attachment struct {
	MIMEType string
	Data     []byte
	// Label is sent as text immediately before the attachment so the model
	// knows what it is looking at (e.g. "Question image").
	Label string
}

// Request is an immutable generation request. Build it with NewRequest.
type Request struct {
	prompt      string
	attachments []Attachment
	tier        ModelTier
	json        bool
}

// RequestOption customizes a Request at construction.
type RequestOption func(*Request)

// WithAttachments adds attachments. The slice and the payloads are copied.
func WithAttachments(attachments ...Attachment) RequestOption {
	return func(r *Request) {
		for _, a := range attachments {
			data := make([]byte, len(a.Data))
			copy(data, a.Data)
			r.attachments = append(r.attachments, Attachment{MIMEType: a.MIMEType, Data: data, Label: a.Label})
		}
	}
}

// WithTier selects the model tier. Defaults to TierStandard.
func WithTier(tier ModelTier) RequestOption {
	return func(r *Request) { r.tier = tier }
}

// WithJSON asks the provider for a JSON response where supported.
func WithJSON() RequestOption {
	return func(r *Request) { r.json = true }
}

// NewRequest builds a Request.
func NewRequest(prompt string, opts ...RequestOption) *Request {
	r := &Request{prompt: prompt, tier: TierStandard}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Prompt returns the prompt text.
func (r *Request) Prompt() string { return r.prompt }

// Tier returns the model tier.
func (r *Request) Tier() ModelTier { return r.tier }

// JSON reports whether a JSON response was requested.
func (r *Request) JSON() bool { return r.json }

// Attachments returns a copy of the attachment list.
func (r *Request) Attachments() []Attachment {
	out := make([]Attachment, len(r.attachments))
	copy(out, r.attachments)
	return out
}

// PayloadSize returns the total attachment size in bytes.
func (r *Request) PayloadSize() int {
	total := 0
	for _, a := range r.attachments {
		total += len(a.Data)
	}
	return total
}

// Response is what a provider client returns for one call.
type Response struct {
	Text         string
	Model        string
	PromptTokens int
	OutputTokens int
	FinishReason string
}

// Usage is opaque usage metadata attached to a successful result.
type Usage struct {
	Model        string
	Attempt      int
	Timestamp    time.Time
	PromptTokens int
	OutputTokens int
}

// Result is the outcome of one successful scheduler call.
type Result struct {
	Text  string
	Usage Usage
}
