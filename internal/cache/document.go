package cache

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/jonathan/study-resources/internal/db"
	"github.com/jonathan/study-resources/internal/types"
)

// PartitionPath is the document path holding one (key, kind) partition.
func PartitionPath(key types.ResourceKey, kind types.ResourceKind) string {
	return db.Path("resources", key.Subject, key.Grade, key.Topic, string(kind))
}

// readPartition returns the cached entries ordered by slot.
func readPartition(ctx context.Context, store db.Store, key types.ResourceKey, kind types.ResourceKind) ([]types.CachedResource, error) {
	doc, err := store.Get(ctx, PartitionPath(key, kind))
	if err != nil {
		return nil, fmt.Errorf("failed to read cache %s/%s: %w", key, kind, err)
	}
	if doc == nil {
		return nil, nil
	}
	slots, _ := doc["slots"].(map[string]any)

	out := make([]types.CachedResource, 0, len(slots))
	for name, raw := range slots {
		slot, err := strconv.Atoi(name)
		if err != nil || slot < 1 {
			continue
		}
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		var r types.CachedResource
		if err := db.FromDocument(entry, &r); err != nil {
			return nil, fmt.Errorf("failed to decode cache slot %s of %s/%s: %w", name, key, kind, err)
		}
		r.Slot = slot
		r.Key = key
		r.Kind = kind
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slot < out[j].Slot })
	return out, nil
}

// appendSlots merge-writes new entries into the partition without touching
// existing slots.
func appendSlots(ctx context.Context, store db.Store, key types.ResourceKey, kind types.ResourceKind, added []types.CachedResource, total int, now time.Time) error {
	slots := make(map[string]any, len(added))
	for _, r := range added {
		doc, err := db.ToDocument(r)
		if err != nil {
			return err
		}
		slots[strconv.Itoa(r.Slot)] = doc
	}
	err := store.Set(ctx, PartitionPath(key, kind), db.Document{
		"subject":    key.Subject,
		"grade":      key.Grade,
		"topic":      key.Topic,
		"kind":       string(kind),
		"count":      total,
		"slots":      slots,
		"updated_at": now.UTC().Format(time.RFC3339),
	}, true)
	if err != nil {
		return fmt.Errorf("failed to write cache %s/%s: %w", key, kind, err)
	}
	return nil
}
