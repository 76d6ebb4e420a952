package cache

import (
	"context"
	"strconv"
	"time"

	pkgcache "PriceMesh/pkg/cache"
)

// MemoryPriceCache serves recently computed prices from an in-process TTL
// cache. Used when Redis is disabled.
type MemoryPriceCache struct {
	c *TTLCache
}

func NewMemoryPriceCache() *MemoryPriceCache {
	return &MemoryPriceCache{c: NewTTLCache()}
}

func (m *MemoryPriceCache) GetPrice(_ context.Context, key string) (uint64, bool) {
	v, ok := m.c.Get(key)
	if !ok {
		return 0, false
	}
	price, ok := v.(uint64)
	return price, ok
}

func (m *MemoryPriceCache) SetPrice(_ context.Context, key string, price uint64, ttl time.Duration) {
	m.c.Set(key, price, ttl)
}

// RedisPriceCache serves prices from Redis so multiple replicas share the
// read-side cache. Prices are stored as decimal strings to stay readable in
// redis-cli.
type RedisPriceCache struct {
	c pkgcache.Service
}

func NewRedisPriceCache(c pkgcache.Service) *RedisPriceCache {
	return &RedisPriceCache{c: c}
}

func (r *RedisPriceCache) GetPrice(ctx context.Context, key string) (uint64, bool) {
	var s string
	if err := r.c.Get(ctx, key, &s); err != nil {
		return 0, false
	}
	price, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return price, true
}

func (r *RedisPriceCache) SetPrice(ctx context.Context, key string, price uint64, ttl time.Duration) {
	// best-effort: a failed cache write only costs a recomputation
	_ = r.c.Set(ctx, key, strconv.FormatUint(price, 10), ttl)
}

func (r *RedisPriceCache) Close() error {
	if c, ok := r.c.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
