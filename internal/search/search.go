// Package search queries external resource providers: the YouTube Data API for
// videos and the Custom Search JSON API for web pages.
package search

import (
	"strings"

	"github.com/jonathan/study-resources/internal/types"
)

// Query describes what to look for.
type Query struct {
	Key      types.ResourceKey
	Keywords []string
	// Language is a BCP-47 prefix used to bias results ("pt", "en").
	Language string
	// Fallback marks a broadened, subject-level retry.
	Fallback bool
}

// Text joins the keywords into a single search string.
func (q Query) Text() string {
	parts := make([]string, 0, len(q.Keywords))
	for _, kw := range q.Keywords {
		if kw = strings.TrimSpace(kw); kw != "" {
			parts = append(parts, kw)
		}
	}
	return strings.Join(parts, " ")
}

// Keywords derives the primary keyword set for a key: the topic itself plus
// the subject for disambiguation.
func Keywords(key types.ResourceKey) []string {
	out := []string{key.Topic}
	if key.Subject != "" && !strings.EqualFold(key.Subject, key.Topic) {
		out = append(out, key.Subject)
	}
	return out
}

// FallbackKeywords derives the broadened keyword set used when the topic
// search finds nothing: the subject with the grade level.
func FallbackKeywords(key types.ResourceKey) []string {
	out := []string{key.Subject}
	if key.Grade != "" {
		out = append(out, key.Grade)
	}
	return out
}

// ExpectedTerms are the content-type phrases that rank a candidate higher.
func ExpectedTerms(kind types.ResourceKind) []string {
	switch kind {
	case types.KindVideo:
		return []string{"worked examples", "step by step", "resolved exercises", "exercícios resolvidos", "passo a passo", "videoaula"}
	case types.KindLink:
		return []string{"worked examples", "step by step guide", "exercícios resolvidos", "passo a passo", "resumo", "summary"}
	default:
		return nil
	}
}
