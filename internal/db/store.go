// Package db provides the document store used for cached resources and
// generated aggregates.
package db

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Document is a JSON-compatible document.
type Document = map[string]any

// Write is one entry of a batched commit.
type Write struct {
	Path  string
	Data  Document
	Merge bool
}

// Store is a generic path -> document store. Get returns (nil, nil) when the
// path holds no document.
type Store interface {
	Get(ctx context.Context, path string) (Document, error)
	Set(ctx context.Context, path string, data Document, merge bool) error
	Commit(ctx context.Context, writes []Write) error
	Close() error
}

// DefaultTimeout bounds each store operation when no timeout is configured.
const DefaultTimeout = 10 * time.Second

// Options selects a backend for Open.
type Options struct {
	DatabaseURL string
	SQLitePath  string
	Timeout     time.Duration
}

// Open picks Postgres when a database URL is set, SQLite when a path is set,
// and an in-memory store otherwise.
func Open(ctx context.Context, opts Options) (Store, error) {
	var (
		store Store
		err   error
	)
	switch {
	case opts.DatabaseURL != "":
		store, err = Connect(ctx, opts.DatabaseURL)
	case opts.SQLitePath != "":
		store, err = OpenSQLite(ctx, opts.SQLitePath)
	default:
		store = NewMemoryStore()
	}
	if err != nil {
		return nil, err
	}
	if opts.Timeout > 0 {
		store = WithTimeout(store, opts.Timeout)
	}
	return store, nil
}

// applyWrite returns the document stored after w is applied on top of existing.
func applyWrite(existing Document, w Write) (Document, error) {
	data, err := normalize(w.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document %s: %w", w.Path, err)
	}
	if !w.Merge || existing == nil {
		return data, nil
	}
	return Merge(existing, data), nil
}

// Merge deep-merges src into a copy of dst. Nested objects are merged key by
// key; any other value in src replaces the one in dst.
func Merge(dst, src Document) Document {
	out := make(Document, len(dst)+len(src))
	for k, v := range dst {
		out[k] = v
	}
	for k, v := range src {
		srcMap, srcIsMap := v.(map[string]any)
		dstMap, dstIsMap := out[k].(map[string]any)
		if srcIsMap && dstIsMap {
			out[k] = Merge(dstMap, srcMap)
			continue
		}
		out[k] = v
	}
	return out
}

// normalize round-trips a document through JSON so every backend stores and
// returns the same value shapes (float64 numbers, []any arrays).
func normalize(doc Document) (Document, error) {
	if doc == nil {
		return Document{}, nil
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return decode(raw)
}

func decode(raw []byte) (Document, error) {
	var out Document
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	if out == nil {
		out = Document{}
	}
	return out, nil
}

func validatePath(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("document path is empty")
	}
	if strings.HasPrefix(path, "/") || strings.HasSuffix(path, "/") || strings.Contains(path, "//") {
		return fmt.Errorf("invalid document path %q", path)
	}
	return nil
}

// ToDocument converts a JSON-serializable value into a Document.
func ToDocument(v any) (Document, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	return decode(raw)
}

// FromDocument decodes a Document into v.
func FromDocument(doc Document, v any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode document: %w", err)
	}
	return nil
}
