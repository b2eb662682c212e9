// Package cache keeps a capped, duplicate-free set of validated resources per
// (subject, grade, topic) and refills it from search providers on demand.
package cache

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jonathan/study-resources/internal/db"
	"github.com/jonathan/study-resources/internal/logger"
	"github.com/jonathan/study-resources/internal/search"
	"github.com/jonathan/study-resources/internal/types"
)

// Defaults
const (
	DefaultCapacity        = 50
	DefaultOverfetchFactor = 1.5
	DefaultSearchTimeout   = 15 * time.Second
	DefaultCheckWorkers    = 8
)

// Provider supplies raw candidates of one kind.
type Provider interface {
	Kind() types.ResourceKind
	Search(ctx context.Context, q search.Query, max int) ([]types.Candidate, error)
}

// Validator decides which candidates may enter the cache.
type Validator interface {
	Check(ctx context.Context, kind types.ResourceKind, c types.Candidate, keywords []string) error
	RankByRelevance(candidates []types.Candidate, keywords, expectedTerms []string) []types.Candidate
}

// Config configures a Cache.
type Config struct {
	Capacity        int
	OverfetchFactor float64
	SearchTimeout   time.Duration
	CheckWorkers    int
	// Language biases provider queries.
	Language string
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() Config {
	return Config{
		Capacity:        DefaultCapacity,
		OverfetchFactor: DefaultOverfetchFactor,
		SearchTimeout:   DefaultSearchTimeout,
		CheckWorkers:    DefaultCheckWorkers,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Capacity <= 0 {
		c.Capacity = d.Capacity
	}
	if c.OverfetchFactor < 1 {
		c.OverfetchFactor = d.OverfetchFactor
	}
	if c.SearchTimeout <= 0 {
		c.SearchTimeout = d.SearchTimeout
	}
	if c.CheckWorkers <= 0 {
		c.CheckWorkers = d.CheckWorkers
	}
	return c
}

// Cache is the per-topic resource cache.
type Cache struct {
	store     db.Store
	gate      Validator
	locker    Locker
	providers map[types.ResourceKind]Provider
	cfg       Config
	log       *logger.Logger
	now       func() time.Time
}

// New creates a Cache. A nil locker uses a LocalLocker.
func New(store db.Store, gate Validator, locker Locker, cfg Config, log *logger.Logger, providers ...Provider) *Cache {
	if locker == nil {
		locker = NewLocalLocker()
	}
	if log == nil {
		log = logger.Nop()
	}
	c := &Cache{
		store:     store,
		gate:      gate,
		locker:    locker,
		providers: make(map[types.ResourceKind]Provider),
		cfg:       cfg.withDefaults(),
		log:       log.With("component", "cache"),
		now:       time.Now,
	}
	for _, p := range providers {
		if p != nil {
			c.providers[p.Kind()] = p
		}
	}
	return c
}

// Capacity returns the per-partition ceiling.
func (c *Cache) Capacity() int { return c.cfg.Capacity }

// Cached returns the stored entries for (key, kind) without refilling.
func (c *Cache) Cached(ctx context.Context, key types.ResourceKey, kind types.ResourceKind) ([]types.CachedResource, error) {
	return readPartition(ctx, c.store, key, kind)
}

// Get returns up to target entries for (key, kind), refilling the partition
// toward capacity when fewer than target are cached. Search and validation
// failures are absorbed; the call returns whatever is cached.
func (c *Cache) Get(ctx context.Context, key types.ResourceKey, kind types.ResourceKind, target int) ([]types.CachedResource, error) {
	if err := key.Validate(); err != nil {
		return nil, fmt.Errorf("invalid resource key: %w", err)
	}
	if target <= 0 {
		return nil, nil
	}

	cached, err := readPartition(ctx, c.store, key, kind)
	if err != nil {
		return nil, err
	}
	if len(cached) >= target {
		return cached[:target], nil
	}

	unlock, err := c.locker.Lock(ctx, PartitionPath(key, kind))
	if err != nil {
		return nil, fmt.Errorf("failed to lock cache %s/%s: %w", key, kind, err)
	}
	defer unlock()

	// Another refill may have finished while we waited.
	cached, err = readPartition(ctx, c.store, key, kind)
	if err != nil {
		return nil, err
	}
	if len(cached) >= target || len(cached) >= c.cfg.Capacity {
		return head(cached, target), nil
	}

	added, err := c.refill(ctx, key, kind, cached)
	if err != nil {
		return nil, err
	}
	if len(added) == 0 {
		return head(cached, target), nil
	}

	if err := appendSlots(ctx, c.store, key, kind, added, len(cached)+len(added), c.now()); err != nil {
		return nil, err
	}
	c.log.Info("cache refilled", "key", key.String(), "kind", string(kind),
		"added", len(added), "total", len(cached)+len(added))

	cached, err = readPartition(ctx, c.store, key, kind)
	if err != nil {
		return nil, err
	}
	return head(cached, target), nil
}

func head(rs []types.CachedResource, n int) []types.CachedResource {
	if len(rs) > n {
		return rs[:n]
	}
	return rs
}

// refill searches for new candidates and returns the accepted ones with
// their slots assigned. Must be called with the partition lock held.
func (c *Cache) refill(ctx context.Context, key types.ResourceKey, kind types.ResourceKind, cached []types.CachedResource) ([]types.CachedResource, error) {
	provider, ok := c.providers[kind]
	if !ok {
		c.log.Warn("no provider for resource kind", "kind", string(kind))
		return nil, nil
	}

	needed := c.cfg.Capacity - len(cached)
	want := int(math.Ceil(float64(needed) * c.cfg.OverfetchFactor))
	if want < needed+2 {
		want = needed + 2
	}

	keywords := search.Keywords(key)
	candidates, err := c.search(ctx, provider, search.Query{Key: key, Keywords: keywords, Language: c.cfg.Language}, want)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		keywords = search.FallbackKeywords(key)
		c.log.Debug("no results for topic, broadening to subject", "key", key.String(), "kind", string(kind))
		candidates, err = c.search(ctx, provider, search.Query{Key: key, Keywords: keywords, Language: c.cfg.Language, Fallback: true}, want)
		if err != nil {
			return nil, err
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	seen := make(map[string]bool, len(cached))
	for _, r := range cached {
		seen[r.DedupKey] = true
	}
	var fresh []types.Candidate
	var dedupKeys []string
	for _, cand := range c.rank(kind, candidates, keywords) {
		dk := DedupKey(kind, cand)
		if dk == "" || seen[dk] {
			continue
		}
		seen[dk] = true
		fresh = append(fresh, cand)
		dedupKeys = append(dedupKeys, dk)
	}

	verdicts := c.check(ctx, kind, fresh, keywords)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := c.now().UTC()
	slot := len(cached)
	var added []types.CachedResource
	for i, cand := range fresh {
		if slot >= c.cfg.Capacity {
			break
		}
		if verdicts[i] != nil {
			c.log.Debug("candidate rejected", "key", key.String(), "kind", string(kind), "error", verdicts[i])
			continue
		}
		slot++
		added = append(added, toResource(key, kind, slot, dedupKeys[i], cand, now))
	}
	return added, nil
}

// search calls the provider with a bounded timeout. Provider failures are
// logged and read as "no results"; only the caller's own cancellation escapes.
func (c *Cache) search(ctx context.Context, p Provider, q search.Query, max int) ([]types.Candidate, error) {
	sctx, cancel := context.WithTimeout(ctx, c.cfg.SearchTimeout)
	defer cancel()
	out, err := p.Search(sctx, q, max)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.log.Warn("search provider failed", "kind", string(p.Kind()), "query", q.Text(), "error", err)
		return nil, nil
	}
	return out, nil
}

func (c *Cache) rank(kind types.ResourceKind, candidates []types.Candidate, keywords []string) []types.Candidate {
	terms := search.ExpectedTerms(kind)
	if len(terms) == 0 {
		return candidates
	}
	ranked := c.gate.RankByRelevance(candidates, keywords, terms)
	if len(ranked) == 0 {
		// Let Check report the per-candidate reasons.
		return candidates
	}
	return ranked
}

// check validates candidates concurrently; the result is indexed like cs.
func (c *Cache) check(ctx context.Context, kind types.ResourceKind, cs []types.Candidate, keywords []string) []error {
	verdicts := make([]error, len(cs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.CheckWorkers)
	for i := range cs {
		g.Go(func() error {
			verdicts[i] = c.gate.Check(gctx, kind, cs[i], keywords)
			return nil
		})
	}
	_ = g.Wait()
	return verdicts
}

func toResource(key types.ResourceKey, kind types.ResourceKind, slot int, dedupKey string, c types.Candidate, now time.Time) types.CachedResource {
	meta := map[string]string{}
	if c.Channel != "" {
		meta["channel"] = c.Channel
	}
	if c.Duration > 0 {
		meta["duration_seconds"] = strconv.Itoa(int(c.Duration.Seconds()))
	}
	if c.Language != "" {
		meta["language"] = c.Language
	}
	if len(meta) == 0 {
		meta = nil
	}
	title := c.Title
	if title == "" && c.Exercise != nil {
		title = c.Exercise.Statement
	}
	return types.CachedResource{
		Key:         key,
		Kind:        kind,
		Slot:        slot,
		DedupKey:    dedupKey,
		Title:       title,
		URL:         c.URL,
		ExternalID:  c.ExternalID,
		Description: c.Description,
		Provider:    c.Provider,
		Metadata:    meta,
		Exercise:    c.Exercise,
		AddedAt:     now,
	}
}
