package roster

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Fetcher loads one collection from the upstream sheet source.
type Fetcher func(ctx context.Context, c Collection) (Table, error)

// Cache is a TTL cache over the three sheet collections. Reads within the
// TTL are served from memory; concurrent refreshes of the same collection
// collapse to a single upstream fetch.
type Cache struct {
	fetch Fetcher
	ttl   time.Duration
	clock clockwork.Clock

	mu      sync.RWMutex
	entries map[Collection]*cacheEntry
	group   singleflight.Group
}

type cacheEntry struct {
	data      Table
	fetchedAt time.Time
}

// DefaultCacheTTL matches the upstream GViz politeness window.
const DefaultCacheTTL = 10 * time.Second

// NewCache creates a cache over fetch with the given TTL. A zero ttl uses
// DefaultCacheTTL. A nil clock uses the real clock.
func NewCache(fetch Fetcher, ttl time.Duration, clock clockwork.Clock) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Cache{
		fetch:   fetch,
		ttl:     ttl,
		clock:   clock,
		entries: make(map[Collection]*cacheEntry),
	}
}

// Get returns the cached table for c, refreshing it from upstream when the
// entry is missing or older than the TTL.
func (ca *Cache) Get(ctx context.Context, c Collection) (Table, error) {
	ca.mu.RLock()
	entry, ok := ca.entries[c]
	ca.mu.RUnlock()

	if ok && ca.clock.Since(entry.fetchedAt) < ca.ttl {
		return entry.data, nil
	}

	v, err, shared := ca.group.Do(string(c), func() (any, error) {
		data, err := ca.fetch(ctx, c)
		if err != nil {
			return Table{}, err
		}
		ca.mu.Lock()
		ca.entries[c] = &cacheEntry{data: data, fetchedAt: ca.clock.Now()}
		ca.mu.Unlock()
		return data, nil
	})
	if err != nil {
		return Table{}, err
	}
	if shared {
		log.Debug().Str("collection", string(c)).Msg("collapsed concurrent cache refresh")
	}
	return v.(Table), nil
}

// Invalidate drops the cached entry for c so the next Get refetches. Used
// after a winner is logged so the next selection sees the appended row.
func (ca *Cache) Invalidate(c Collection) {
	ca.mu.Lock()
	delete(ca.entries, c)
	ca.mu.Unlock()
	log.Debug().Str("collection", string(c)).Msg("cache entry invalidated")
}
