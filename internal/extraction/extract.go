// Package extraction recovers a structured JSON object from free-form model
// output. Repair strategies run in order from purely cosmetic to content
// reconstruction; the first one whose result satisfies the schema wins.
package extraction

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jonathan/study-resources/internal/apperr"
)

// ExcerptLength bounds the raw-text excerpt carried by a failure.
const ExcerptLength = 240

// StrategyName identifies the cascade stage that produced a document.
type StrategyName string

const (
	StrategyIsolate StrategyName = "isolate"
	StrategyBalance StrategyName = "balance"
	StrategyLoose   StrategyName = "loose"
	StrategyPartial StrategyName = "partial"
	StrategyRepair  StrategyName = "repair"
)

// Input is what every strategy sees: the raw text, the isolated span of the
// first object, and the target schema.
type Input struct {
	Raw    string // raw model output with code fences removed
	Span   string // first object, or the rest of the text when it never closes
	Schema Schema
}

// Strategy is one stage of the cascade. Apply returns a candidate document and
// whether any of it was synthesized; the cascade validates it against the schema.
type Strategy struct {
	Name  StrategyName
	Apply func(in Input) (doc []byte, synthesized bool, err error)
}

// Cascade returns the default ordered strategy list.
func Cascade() []Strategy {
	return []Strategy{
		{Name: StrategyIsolate, Apply: applyIsolate},
		{Name: StrategyBalance, Apply: applyBalance},
		{Name: StrategyLoose, Apply: applyLoose},
		{Name: StrategyPartial, Apply: applyPartial},
		{Name: StrategyRepair, Apply: applyRepair},
	}
}

// Outcome is either a success carrying the recovered document and the stage
// that produced it, or a failure carrying a protocol error with a bounded
// excerpt.
type Outcome struct {
	Document    json.RawMessage
	Strategy    StrategyName
	Synthesized bool // some records are placeholders, not model-authored
	Err         *apperr.ProtocolError
}

// OK reports whether extraction succeeded.
func (o Outcome) OK() bool {
	return o.Err == nil && len(o.Document) > 0
}

// Trusted reports whether the document came from a formatting-level stage and
// contains only model-authored content.
func (o Outcome) Trusted() bool {
	if !o.OK() || o.Synthesized {
		return false
	}
	switch o.Strategy {
	case StrategyIsolate, StrategyBalance, StrategyLoose:
		return true
	default:
		return false
	}
}

// Decode unmarshals the recovered document into v.
func (o Outcome) Decode(v any) error {
	if !o.OK() {
		if o.Err != nil {
			return o.Err
		}
		return errors.New("no document extracted")
	}
	return json.Unmarshal(o.Document, v)
}

// Error returns the failure as an error value, or nil on success.
func (o Outcome) Error() error {
	if o.Err == nil {
		return nil
	}
	return o.Err
}

// Extract runs the default cascade.
func Extract(raw string, schema Schema) Outcome {
	return ExtractWith(raw, schema, Cascade())
}

// ExtractWith runs the given strategies in order over raw.
func ExtractWith(raw string, schema Schema, strategies []Strategy) Outcome {
	text := stripFences(raw)
	span, err := isolate(text)
	if err != nil {
		var perr *apperr.ProtocolError
		if errors.As(err, &perr) {
			return Outcome{Err: perr}
		}
		return Outcome{Err: &apperr.ProtocolError{Kind: apperr.KindNoJSON, Excerpt: apperr.Excerpt(raw, ExcerptLength), Cause: err}}
	}

	in := Input{Raw: text, Span: span, Schema: schema}
	var (
		lastErr      error
		sawValidJSON bool
	)
	for _, strategy := range strategies {
		doc, synthesized, err := strategy.Apply(in)
		if err != nil {
			lastErr = fmt.Errorf("%s: %w", strategy.Name, err)
			continue
		}
		if !json.Valid(doc) {
			lastErr = fmt.Errorf("%s: produced invalid JSON", strategy.Name)
			continue
		}
		sawValidJSON = true
		if err := schema.validate(doc); err != nil {
			lastErr = fmt.Errorf("%s: %w", strategy.Name, err)
			continue
		}
		return Outcome{Document: compact(doc), Strategy: strategy.Name, Synthesized: synthesized}
	}

	kind := apperr.KindMalformedJSON
	if sawValidJSON {
		kind = apperr.KindSchemaMismatch
	}
	return Outcome{Err: &apperr.ProtocolError{
		Kind:    kind,
		Excerpt: apperr.Excerpt(raw, ExcerptLength),
		Cause:   lastErr,
	}}
}

func compact(doc []byte) json.RawMessage {
	var buf bytes.Buffer
	if err := json.Compact(&buf, doc); err != nil {
		return doc
	}
	return buf.Bytes()
}

func applyIsolate(in Input) ([]byte, bool, error) {
	doc := []byte(in.Span)
	if !json.Valid(doc) {
		return nil, false, errors.New("span is not valid JSON")
	}
	return ensureRecords(doc, in.Schema)
}

func applyBalance(in Input) ([]byte, bool, error) {
	doc := []byte(balance(in.Span))
	if !json.Valid(doc) {
		return nil, false, errors.New("balanced span is not valid JSON")
	}
	return ensureRecords(doc, in.Schema)
}

func applyLoose(in Input) ([]byte, bool, error) {
	doc := []byte(balance(normalizeLoose(in.Span)))
	if !json.Valid(doc) {
		return nil, false, errors.New("normalized span is not valid JSON")
	}
	return ensureRecords(doc, in.Schema)
}
