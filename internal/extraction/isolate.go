package extraction

import (
	"regexp"
	"strings"

	"github.com/jonathan/study-resources/internal/apperr"
)

// stripFences removes Markdown code fences. Models often wrap JSON in
// ```json ... ``` blocks even when instructed not to, sometimes after a
// sentence of preamble and sometimes without the closing fence.
func stripFences(text string) string {
	text = strings.TrimSpace(text)

	open := strings.Index(text, "```")
	if open < 0 {
		return text
	}

	// Only treat the fence as a wrapper when nothing JSON-like precedes it.
	if brace := strings.Index(text, "{"); brace >= 0 && brace < open {
		return text
	}

	body := text[open+3:]
	// Skip a language identifier on the fence line.
	if idx := strings.Index(body, "\n"); idx >= 0 {
		firstLine := body[:idx]
		if len(firstLine) < 20 && !strings.Contains(firstLine, " ") && !strings.Contains(firstLine, "{") {
			body = body[idx+1:]
		}
	} else {
		body = strings.TrimPrefix(body, "json")
	}

	if idx := strings.LastIndex(body, "```"); idx >= 0 {
		body = body[:idx]
	}
	return strings.TrimSpace(body)
}

// isolate returns the object that opens at the first '{', ending at its
// matching '}'. Braces inside string literals do not count. When the object
// never closes the response was truncated, and the span runs to the end of the
// text so later stages can close it.
func isolate(text string) (string, error) {
	start := strings.Index(text, "{")
	if start < 0 {
		kind := apperr.KindNoJSON
		if looksEncoded(text) {
			kind = apperr.KindEncodedNoise
		}
		return "", &apperr.ProtocolError{Kind: kind, Excerpt: apperr.Excerpt(text, ExcerptLength)}
	}

	end := objectEnd(text[start:])
	if end < 0 {
		return text[start:], nil
	}
	return text[start : start+end+1], nil
}

var (
	opaqueTokenPattern = regexp.MustCompile(`^[A-Za-z0-9+/_-]{32,}={0,2}`)
	dataURIPattern     = regexp.MustCompile(`^data:[\w/+.-]+;base64,`)
)

// looksEncoded reports whether text starts like base64 or another opaque token
// rather than prose or JSON.
func looksEncoded(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	if dataURIPattern.MatchString(text) {
		return true
	}
	head := text
	if len(head) > 128 {
		head = head[:128]
	}
	match := opaqueTokenPattern.FindString(head)
	if match == "" {
		return false
	}
	// Long identifiers in prose are rare but possible; require a mix of
	// character classes typical of encoded payloads.
	var upper, lower, digit bool
	for _, r := range match {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= '0' && r <= '9':
			digit = true
		}
	}
	return upper && lower && digit
}
