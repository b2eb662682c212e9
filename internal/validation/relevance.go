package validation

import (
	"sort"
	"strings"
	"unicode"

	"github.com/jonathan/study-resources/internal/types"
)

// DefaultFillerWords never count as a topical match on their own.
var DefaultFillerWords = []string{
	"guide", "example", "examples", "clear", "easy", "simple", "complete",
	"introduction", "intro", "basics", "basic", "lesson", "lessons", "class",
	"video", "tutorial", "explained", "explanation", "overview", "learn",
	"learning", "review", "practice", "step", "steps",
	"aula", "exemplo", "exemplos", "guia", "facil", "simples", "completo",
	"introducao", "exercicio", "exercicios", "explicacao", "resumo",
}

// stopwords are dropped from keywords along with anything shorter than three
// characters.
var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "from": true, "into": true,
	"das": true, "dos": true, "para": true, "com": true, "uma": true, "por": true,
}

// Normalize folds case and diacritics and replaces punctuation with spaces.
func Normalize(s string) string {
	folded := types.Fold(s)
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, folded)
	return strings.Join(strings.Fields(mapped), " ")
}

// Relevance decides whether candidate text is on topic.
type Relevance struct {
	filler map[string]bool
}

// NewRelevance builds a Relevance with the given filler words. A nil list
// uses DefaultFillerWords.
func NewRelevance(filler []string) *Relevance {
	if filler == nil {
		filler = DefaultFillerWords
	}
	r := &Relevance{filler: make(map[string]bool, len(filler))}
	for _, w := range filler {
		r.filler[Normalize(w)] = true
	}
	return r
}

// Substantive returns the distinct normalized words of keywords that are not
// filler, stopwords or too short to be meaningful.
func (r *Relevance) Substantive(keywords []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, kw := range keywords {
		for _, word := range strings.Fields(Normalize(kw)) {
			if len([]rune(word)) < 3 || r.filler[word] || stopwords[word] || seen[word] {
				continue
			}
			seen[word] = true
			out = append(out, word)
		}
	}
	return out
}

// Matches reports whether text contains at least one substantive keyword as a
// whole word.
func (r *Relevance) Matches(text string, keywords []string) bool {
	words := r.Substantive(keywords)
	if len(words) == 0 {
		return false
	}
	tokens := make(map[string]bool)
	for _, tok := range strings.Fields(Normalize(text)) {
		tokens[tok] = true
	}
	for _, w := range words {
		if tokens[w] {
			return true
		}
	}
	return false
}

// Score counts the distinct expected terms present in text. Terms may be
// phrases and match on word boundaries.
func Score(text string, expectedTerms []string) int {
	padded := " " + Normalize(text) + " "
	seen := make(map[string]bool)
	score := 0
	for _, term := range expectedTerms {
		norm := Normalize(term)
		if norm == "" || seen[norm] {
			continue
		}
		seen[norm] = true
		if strings.Contains(padded, " "+norm+" ") {
			score++
		}
	}
	return score
}

// RankByRelevance drops candidates that fail the keyword filter and orders the
// rest by expected-term overlap, descending. Ties keep their input order.
func (r *Relevance) RankByRelevance(candidates []types.Candidate, keywords, expectedTerms []string) []types.Candidate {
	type scored struct {
		c     types.Candidate
		score int
	}
	var kept []scored
	for _, c := range candidates {
		if !r.Matches(c.Text(), keywords) {
			continue
		}
		kept = append(kept, scored{c: c, score: Score(c.Text(), expectedTerms)})
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].score > kept[j].score
	})
	out := make([]types.Candidate, 0, len(kept))
	for _, s := range kept {
		out = append(out, s.c)
	}
	return out
}
