package types

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold lower-cases s, strips diacritics and collapses whitespace.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

// Canonicalizer maps a granular topic name onto a fixed taxonomy entry.
type Canonicalizer interface {
	Canonicalize(subject, topic string) string
}

// Taxonomy is a Canonicalizer backed by a per-subject lookup table. Both
// subject and topic are folded before lookup; unknown topics canonicalize to
// their folded name.
type Taxonomy struct {
	entries map[string]map[string]string
}

// NewTaxonomy builds a Taxonomy from subject -> canonical topic -> aliases.
func NewTaxonomy(table map[string]map[string][]string) *Taxonomy {
	t := &Taxonomy{entries: make(map[string]map[string]string, len(table))}
	for subject, topics := range table {
		sub := make(map[string]string)
		for canonical, aliases := range topics {
			sub[Fold(canonical)] = canonical
			for _, alias := range aliases {
				sub[Fold(alias)] = canonical
			}
		}
		t.entries[Fold(subject)] = sub
	}
	return t
}

// Canonicalize implements Canonicalizer.
func (t *Taxonomy) Canonicalize(subject, topic string) string {
	folded := Fold(topic)
	if t != nil {
		if sub, ok := t.entries[Fold(subject)]; ok {
			if canonical, ok := sub[folded]; ok {
				return canonical
			}
		}
	}
	return folded
}
