package db

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMerge(t *testing.T) {
	dst := Document{
		"title": "old",
		"slots": map[string]any{"1": map[string]any{"url": "a"}},
		"keep":  true,
	}
	src := Document{
		"title": "new",
		"slots": map[string]any{"2": map[string]any{"url": "b"}},
	}

	got := Merge(dst, src)

	assert.Equal(t, "new", got["title"])
	assert.Equal(t, true, got["keep"])
	assert.Equal(t, map[string]any{
		"1": map[string]any{"url": "a"},
		"2": map[string]any{"url": "b"},
	}, got["slots"])
	// dst is untouched
	assert.Equal(t, "old", dst["title"])
	assert.Len(t, dst["slots"], 1)
}

func TestMerge_NonMapReplacesMap(t *testing.T) {
	got := Merge(Document{"a": map[string]any{"x": 1.0}}, Document{"a": "flat"})
	assert.Equal(t, "flat", got["a"])
}

func TestPath(t *testing.T) {
	assert.Equal(t, "resources/matematica/6o-ano/fracoes/video",
		Path("resources", "Matemática", "6o ano", "Frações", "video"))
	assert.Equal(t, "a_b/_", Path("a/b", ""))

	long := strings.Repeat("palavra ", 40)
	seg := Segment(long)
	assert.LessOrEqual(t, len(seg), maxSegmentLen)
	assert.NotEqual(t, seg, Segment(long+"x"))
}

func TestHash(t *testing.T) {
	assert.Len(t, Hash("a"), 64)
	assert.Equal(t, Hash("a", "b"), Hash("a", "b"))
	assert.NotEqual(t, Hash("ab"), Hash("a", "b"))
}

func TestToFromDocument(t *testing.T) {
	type item struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	doc, err := ToDocument(item{Name: "x", Count: 3})
	require.NoError(t, err)
	assert.Equal(t, Document{"name": "x", "count": 3.0}, doc)

	var back item
	require.NoError(t, FromDocument(doc, &back))
	assert.Equal(t, item{Name: "x", Count: 3}, back)
}

func storeFactories(t *testing.T) map[string]func() Store {
	return map[string]func() Store{
		"memory": func() Store { return NewMemoryStore() },
		"sqlite": func() Store {
			s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "nested", "docs.db"))
			require.NoError(t, err)
			return s
		},
	}
}

func TestStore_Contract(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := factory()
			defer store.Close()
			ctx := context.Background()

			doc, err := store.Get(ctx, "missing/doc")
			require.NoError(t, err)
			assert.Nil(t, doc)

			require.NoError(t, store.Set(ctx, "a/b", Document{"x": 1, "nested": map[string]any{"k": "v"}}, false))
			require.NoError(t, store.Set(ctx, "a/b", Document{"y": 2, "nested": map[string]any{"k2": "v2"}}, true))

			doc, err = store.Get(ctx, "a/b")
			require.NoError(t, err)
			assert.Equal(t, Document{
				"x":      1.0,
				"y":      2.0,
				"nested": map[string]any{"k": "v", "k2": "v2"},
			}, doc)

			// Overwrite without merge drops old fields.
			require.NoError(t, store.Set(ctx, "a/b", Document{"z": "only"}, false))
			doc, err = store.Get(ctx, "a/b")
			require.NoError(t, err)
			assert.Equal(t, Document{"z": "only"}, doc)

			// Returned documents are copies.
			doc["z"] = "mutated"
			again, err := store.Get(ctx, "a/b")
			require.NoError(t, err)
			assert.Equal(t, "only", again["z"])
		})
	}
}

func TestStore_Commit(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := factory()
			defer store.Close()
			ctx := context.Background()

			require.NoError(t, store.Commit(ctx, []Write{
				{Path: "generations/summary/1", Data: Document{"text": "hello"}},
				{Path: "questions/q1", Data: Document{"generations": map[string]any{"summary": "1"}}, Merge: true},
				{Path: "questions/q1", Data: Document{"generations": map[string]any{"study_plan": "2"}}, Merge: true},
			}))

			q, err := store.Get(ctx, "questions/q1")
			require.NoError(t, err)
			assert.Equal(t, map[string]any{"summary": "1", "study_plan": "2"}, q["generations"])

			// An invalid path aborts the whole batch.
			err = store.Commit(ctx, []Write{
				{Path: "generations/summary/2", Data: Document{"text": "x"}},
				{Path: "/bad/", Data: Document{}},
			})
			require.Error(t, err)
			doc, err := store.Get(ctx, "generations/summary/2")
			require.NoError(t, err)
			assert.Nil(t, doc)

			require.NoError(t, store.Commit(ctx, nil))
		})
	}
}

func TestStore_InvalidPath(t *testing.T) {
	store := NewMemoryStore()
	for _, p := range []string{"", "  ", "/a", "a/", "a//b"} {
		_, err := store.Get(context.Background(), p)
		assert.Error(t, err, p)
	}
}

func TestMemoryStore_Paths(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "resources/b", Document{}, false))
	require.NoError(t, store.Set(ctx, "resources/a", Document{}, false))
	require.NoError(t, store.Set(ctx, "generations/x", Document{}, false))

	assert.Equal(t, []string{"resources/a", "resources/b"}, store.Paths("resources/"))
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	store := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Get(ctx, "a")
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, store.Set(ctx, "a", Document{}, false), context.Canceled)
}

type deadlineStore struct {
	Store
	deadline time.Time
	ok       bool
}

func (d *deadlineStore) Get(ctx context.Context, path string) (Document, error) {
	d.deadline, d.ok = ctx.Deadline()
	return nil, nil
}

func TestWithTimeout(t *testing.T) {
	inner := &deadlineStore{Store: NewMemoryStore()}
	store := WithTimeout(inner, time.Second)

	start := time.Now()
	_, err := store.Get(context.Background(), "a")
	require.NoError(t, err)
	require.True(t, inner.ok)
	assert.WithinDuration(t, start.Add(time.Second), inner.deadline, 500*time.Millisecond)
}

func TestOpen(t *testing.T) {
	store, err := Open(context.Background(), Options{})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)

	store, err = Open(context.Background(), Options{SQLitePath: filepath.Join(t.TempDir(), "x.db"), Timeout: time.Second})
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.Set(context.Background(), "k", Document{"v": true}, false))
}
