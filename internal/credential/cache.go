package credential

import (
	"context"
	"sync"
	"time"
)

// defaultTTL is how long a successfully fetched token is cached before a
// re-fetch is attempted. Kept short; the external daemon is the source
// of truth for rotation and revocation.
const defaultTTL = 5 * time.Minute

type cacheEntry struct {
	token     string
	expiresAt time.Time
}

// Cache wraps a TokenFetcher with a sync.Map-backed TTL cache keyed by
// (service, account). It never logs token contents.
type Cache struct {
	fetcher TokenFetcher
	ttl     time.Duration
	entries sync.Map // map[key]cacheEntry
}

// NewCache wraps fetcher with the default TTL.
func NewCache(fetcher TokenFetcher) *Cache {
	return &Cache{fetcher: fetcher, ttl: defaultTTL}
}

// NewCacheTTL wraps fetcher with an explicit TTL, mainly for tests.
func NewCacheTTL(fetcher TokenFetcher, ttl time.Duration) *Cache {
	return &Cache{fetcher: fetcher, ttl: ttl}
}

var _ TokenFetcher = (*Cache)(nil)

// FetchToken returns a cached token if still fresh, otherwise delegates
// to the wrapped fetcher and caches the result on success. A failed fetch
// is never cached.
func (c *Cache) FetchToken(ctx context.Context, service, account string) (string, error) {
	k := key{service, account}

	if v, ok := c.entries.Load(k); ok {
		entry := v.(cacheEntry)
		if time.Now().Before(entry.expiresAt) {
			return entry.token, nil
		}
		c.entries.Delete(k)
	}

	token, err := c.fetcher.FetchToken(ctx, service, account)
	if err != nil {
		return "", err
	}

	c.entries.Store(k, cacheEntry{token: token, expiresAt: time.Now().Add(c.ttl)})
	return token, nil
}

// Sweep removes every expired entry. Intended to run periodically from a
// background goroutine; internal/hub wires it on a ticker.
func (c *Cache) Sweep() {
	now := time.Now()
	c.entries.Range(func(k, v any) bool {
		if entry := v.(cacheEntry); now.After(entry.expiresAt) {
			c.entries.Delete(k)
		}
		return true
	})
}

// Run starts the periodic sweep loop, returning when ctx is done. Intended
// to be launched as `go cache.Run(ctx, interval)` from internal/hub.
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}
