// Package validation decides which candidate resources are trustworthy, alive
// and on topic before they enter the resource cache.
package validation

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/jonathan/study-resources/internal/apperr"
	"github.com/jonathan/study-resources/internal/fetch"
	"github.com/jonathan/study-resources/internal/logger"
	"github.com/jonathan/study-resources/internal/types"
)

// Rejection reasons carried by *apperr.ValidationError.
const (
	ReasonInvalidURL      = "invalid_url"
	ReasonUntrusted       = "untrusted_domain"
	ReasonIrrelevant      = "irrelevant"
	ReasonDeadLink        = "dead_link"
	ReasonDuration        = "duration_out_of_bounds"
	ReasonLanguage        = "language_mismatch"
	ReasonIncomplete      = "incomplete_exercise"
	ReasonUnsupportedKind = "unsupported_kind"
)

// Prober is the liveness check used by the gate.
type Prober interface {
	Probe(ctx context.Context, url string) (*fetch.Result, error)
}

// Config configures a Gate.
type Config struct {
	AllowedDomains []string
	FillerWords    []string
	// Video bounds; zero disables the bound.
	MinVideoDuration time.Duration
	MaxVideoDuration time.Duration
	// Languages accepted for videos, matched by prefix ("pt" accepts "pt-BR").
	// Videos without a language pass.
	Languages []string
}

// DefaultConfig returns a gate configuration with common educational hosts.
func DefaultConfig() Config {
	return Config{
		AllowedDomains: []string{
			"khanacademy.org", "wikipedia.org", "britannica.com", "mathsisfun.com",
			"brasilescola.uol.com.br", "mundoeducacao.uol.com.br", "todamateria.com.br",
			"infoescola.com", "educamaisbrasil.com.br", "gov.br",
		},
		MinVideoDuration: 2 * time.Minute,
		MaxVideoDuration: 60 * time.Minute,
	}
}

// Gate validates candidates.
type Gate struct {
	allowed   []string
	relevance *Relevance
	prober    Prober
	cfg       Config
	log       *logger.Logger
}

// NewGate creates a Gate. A nil prober uses fetch.NewProber with defaults.
func NewGate(cfg Config, prober Prober, log *logger.Logger) *Gate {
	if prober == nil {
		prober = fetch.NewProber(nil)
	}
	if log == nil {
		log = logger.Nop()
	}
	allowed := make([]string, 0, len(cfg.AllowedDomains))
	for _, d := range cfg.AllowedDomains {
		d = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(d)), ".")
		if d != "" {
			allowed = append(allowed, d)
		}
	}
	return &Gate{
		allowed:   allowed,
		relevance: NewRelevance(cfg.FillerWords),
		prober:    prober,
		cfg:       cfg,
		log:       log.With("component", "validation"),
	}
}

// Relevance returns the gate's keyword matcher.
func (g *Gate) Relevance() *Relevance {
	return g.relevance
}

// IsTrusted reports whether the URL's host equals, or is a subdomain of, an
// allow-listed domain.
func (g *Gate) IsTrusted(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Hostname() == "" {
		return false
	}
	host := strings.ToLower(parsed.Hostname())
	for _, d := range g.allowed {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// ValidateLink reports whether a URL is trusted and alive. Untrusted hosts are
// rejected without probing.
func (g *Gate) ValidateLink(ctx context.Context, rawURL string) bool {
	if !g.IsTrusted(rawURL) {
		return false
	}
	alive, _ := g.alive(ctx, rawURL)
	return alive
}

func (g *Gate) alive(ctx context.Context, rawURL string) (bool, *fetch.Result) {
	result, err := g.prober.Probe(ctx, rawURL)
	if err != nil || result == nil {
		g.log.Debug("probe failed", "url", rawURL, "error", err)
		return false, result
	}
	return result.Alive, result
}

// Check validates one candidate of the given kind. It returns nil or a
// *apperr.ValidationError naming the reason.
func (g *Gate) Check(ctx context.Context, kind types.ResourceKind, c types.Candidate, keywords []string) error {
	switch kind {
	case types.KindLink:
		return g.CheckLink(ctx, c, keywords)
	case types.KindVideo:
		return g.CheckVideo(c, keywords)
	case types.KindExercise:
		return g.CheckExercise(c)
	default:
		return reject(c, ReasonUnsupportedKind, nil)
	}
}

// CheckLink runs the domain filter, then relevance, then liveness.
func (g *Gate) CheckLink(ctx context.Context, c types.Candidate, keywords []string) error {
	parsed, err := url.Parse(c.URL)
	if err != nil || parsed.Hostname() == "" {
		return reject(c, ReasonInvalidURL, err)
	}
	if !g.IsTrusted(c.URL) {
		return reject(c, ReasonUntrusted, nil)
	}
	if !g.relevance.Matches(c.Text(), keywords) {
		return reject(c, ReasonIrrelevant, nil)
	}
	alive, _ := g.alive(ctx, c.URL)
	if !alive {
		return reject(c, ReasonDeadLink, nil)
	}
	return nil
}

// CheckVideo checks relevance, duration bounds and language.
func (g *Gate) CheckVideo(c types.Candidate, keywords []string) error {
	if !g.relevance.Matches(c.Text(), keywords) {
		return reject(c, ReasonIrrelevant, nil)
	}
	if c.Duration > 0 {
		if g.cfg.MinVideoDuration > 0 && c.Duration < g.cfg.MinVideoDuration {
			return reject(c, ReasonDuration, nil)
		}
		if g.cfg.MaxVideoDuration > 0 && c.Duration > g.cfg.MaxVideoDuration {
			return reject(c, ReasonDuration, nil)
		}
	}
	if c.Language != "" && len(g.cfg.Languages) > 0 {
		lang := strings.ToLower(c.Language)
		ok := false
		for _, want := range g.cfg.Languages {
			if strings.HasPrefix(lang, strings.ToLower(want)) {
				ok = true
				break
			}
		}
		if !ok {
			return reject(c, ReasonLanguage, nil)
		}
	}
	return nil
}

// CheckExercise requires a statement and an answer.
func (g *Gate) CheckExercise(c types.Candidate) error {
	if c.Exercise == nil || strings.TrimSpace(c.Exercise.Statement) == "" || strings.TrimSpace(c.Exercise.Answer) == "" {
		return reject(c, ReasonIncomplete, nil)
	}
	return nil
}

func reject(c types.Candidate, reason string, cause error) *apperr.ValidationError {
	id := c.URL
	if id == "" {
		id = c.ExternalID
	}
	if id == "" {
		id = c.Title
	}
	return &apperr.ValidationError{Candidate: id, Reason: reason, Cause: cause}
}

// RankByRelevance filters candidates by keyword relevance and orders them by
// expected-term overlap.
func (g *Gate) RankByRelevance(candidates []types.Candidate, keywords, expectedTerms []string) []types.Candidate {
	return g.relevance.RankByRelevance(candidates, keywords, expectedTerms)
}
