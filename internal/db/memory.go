package db

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-process Store used for dry runs and tests.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]Document
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]Document)}
}

func (m *MemoryStore) Get(ctx context.Context, path string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validatePath(path); err != nil {
		return nil, err
	}
	m.mu.RLock()
	doc, ok := m.docs[path]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return normalize(doc)
}

func (m *MemoryStore) Set(ctx context.Context, path string, data Document, merge bool) error {
	return m.Commit(ctx, []Write{{Path: path, Data: data, Merge: merge}})
}

// Commit applies all writes or none.
func (m *MemoryStore) Commit(ctx context.Context, writes []Write) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	staged := make(map[string]Document, len(writes))
	for _, w := range writes {
		if err := validatePath(w.Path); err != nil {
			return err
		}
		existing, ok := staged[w.Path]
		if !ok {
			existing = m.docs[w.Path]
		}
		doc, err := applyWrite(existing, w)
		if err != nil {
			return err
		}
		staged[w.Path] = doc
	}
	for path, doc := range staged {
		m.docs[path] = doc
	}
	return nil
}

// Paths lists stored paths with the given prefix, sorted.
func (m *MemoryStore) Paths(prefix string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for p := range m.docs {
		if strings.HasPrefix(p, prefix) {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

func (m *MemoryStore) Close() error { return nil }
