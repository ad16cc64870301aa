package research

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/casefold/matterflow/internal/graph"
	"github.com/casefold/matterflow/internal/model"
)

// Cache layers an in-process go-cache over the durable citations table in the
// graph store. The memory layer answers hot fingerprints without a store
// round-trip; the durable layer survives restarts and serves stale fallback.
type Cache struct {
	mem   *gocache.Cache
	store graph.Store
	ttl   time.Duration
}

// NewCache creates a research cache with the given freshness TTL.
func NewCache(store graph.Store, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Cache{
		mem:   gocache.New(ttl, 10*time.Minute),
		store: store,
		ttl:   ttl,
	}
}

// GetFresh returns the cached citations for the fingerprint if they are
// within TTL, or nil.
func (c *Cache) GetFresh(ctx context.Context, fingerprint string, now time.Time) (*graph.CachedCitations, error) {
	if v, ok := c.mem.Get(fingerprint); ok {
		entry := v.(*graph.CachedCitations)
		if !entry.Expired(now) {
			return entry, nil
		}
	}

	entry, err := c.store.GetCitations(ctx, fingerprint)
	if err != nil {
		return nil, eris.Wrap(err, "research: cache lookup")
	}
	if entry == nil || entry.Expired(now) {
		return nil, nil
	}
	c.mem.Set(fingerprint, entry, entry.ExpiresAt.Sub(now))
	return entry, nil
}

// GetStale returns whatever the durable layer holds for the fingerprint,
// expired or not. Used only when every provider is unavailable.
func (c *Cache) GetStale(ctx context.Context, fingerprint string) (*graph.CachedCitations, error) {
	entry, err := c.store.GetCitations(ctx, fingerprint)
	if err != nil {
		return nil, eris.Wrap(err, "research: stale cache lookup")
	}
	return entry, nil
}

// Put stores a fresh result in both layers.
func (c *Cache) Put(ctx context.Context, fingerprint, provider string, citations []model.Citation, now time.Time) error {
	entry := &graph.CachedCitations{
		Fingerprint: fingerprint,
		Citations:   citations,
		Provider:    provider,
		CachedAt:    now,
		ExpiresAt:   now.Add(c.ttl),
	}
	c.mem.Set(fingerprint, entry, c.ttl)
	if err := c.store.SaveCitations(ctx, entry); err != nil {
		return eris.Wrap(err, "research: cache store")
	}
	return nil
}

// Sweep removes expired entries from the durable layer. The memory layer
// evicts on its own janitor interval.
func (c *Cache) Sweep(ctx context.Context, now time.Time) {
	n, err := c.store.DeleteExpiredCitations(ctx, now)
	if err != nil {
		zap.L().Warn("research: cache sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		zap.L().Debug("research: cache sweep", zap.Int("removed", n))
	}
}
