package cache

import (
	"context"
	"time"
)

// LayeredCache puts a short-lived in-process layer in front of a shared
// cache. Locks always go to the shared layer.
type LayeredCache struct {
	local    *MemoryCache
	remote   Service
	localTTL time.Duration
}

// NewLayeredCache creates a layered cache over remote.
func NewLayeredCache(remote Service, opts ...LayeredOption) *LayeredCache {
	cfg := &LayeredConfig{
		MemoryMaxSize: 1000,
		LocalTTL:      30 * time.Second,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	return &LayeredCache{
		local:    NewMemoryCache(WithMemoryMaxSize(cfg.MemoryMaxSize)),
		remote:   remote,
		localTTL: cfg.LocalTTL,
	}
}

func (lc *LayeredCache) ttl(expiration time.Duration) time.Duration {
	if expiration <= 0 || expiration > lc.localTTL {
		return lc.localTTL
	}
	return expiration
}

func (lc *LayeredCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	// Write-through: shared first, then local.
	if err := lc.remote.Set(ctx, key, value, expiration); err != nil {
		return err
	}
	_ = lc.local.Set(ctx, key, value, lc.ttl(expiration))
	return nil
}

func (lc *LayeredCache) Get(ctx context.Context, key string, dest interface{}) error {
	if err := lc.local.Get(ctx, key, dest); err == nil {
		return nil
	}

	var raw []byte
	if err := lc.remote.Get(ctx, key, &raw); err != nil {
		return err
	}
	_ = lc.local.Set(ctx, key, raw, lc.localTTL)
	return decode(raw, dest)
}

func (lc *LayeredCache) Delete(ctx context.Context, keys ...string) error {
	_ = lc.local.Delete(ctx, keys...)
	return lc.remote.Delete(ctx, keys...)
}

func (lc *LayeredCache) Exists(ctx context.Context, keys ...string) (bool, error) {
	return lc.remote.Exists(ctx, keys...)
}

func (lc *LayeredCache) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	return lc.remote.TryLock(ctx, key, ttl)
}

func (lc *LayeredCache) Unlock(ctx context.Context, key, token string) error {
	return lc.remote.Unlock(ctx, key, token)
}

// Ping checks the shared layer when it supports it.
func (lc *LayeredCache) Ping(ctx context.Context) error {
	if p, ok := lc.remote.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Close closes both cache layers.
func (lc *LayeredCache) Close() error {
	_ = lc.local.Close()
	return lc.remote.Close()
}

var _ Service = (*LayeredCache)(nil)
