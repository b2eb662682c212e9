package db

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/jonathan/study-resources/internal/types"
)

// maxSegmentLen bounds a single path segment; longer segments are shortened
// and suffixed with a hash so they stay unique.
const maxSegmentLen = 96

// Path joins segments into a document path, escaping separators inside each
// segment.
func Path(segments ...string) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		parts = append(parts, Segment(s))
	}
	return strings.Join(parts, "/")
}

// Segment turns arbitrary text into a single path segment.
func Segment(s string) string {
	s = types.Fold(s)
	s = strings.NewReplacer("/", "_", "\\", "_", " ", "-").Replace(s)
	if s == "" {
		return "_"
	}
	if len(s) <= maxSegmentLen {
		return s
	}
	return truncateRunes(s, maxSegmentLen-17) + "~" + Hash(s)[:16]
}

// Hash returns the hex blake2b-256 digest of the joined parts.
func Hash(parts ...string) string {
	sum := blake2b.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(sum[:])
}

func truncateRunes(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	cut := 0
	for i := range s {
		if i > maxBytes {
			break
		}
		cut = i
	}
	return s[:cut]
}
