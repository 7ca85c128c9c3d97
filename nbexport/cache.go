package nbexport

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

// CacheKey identifies one memoized render. Every input that can change the
// output participates: document fingerprint, theme, format, and the
// capability mask in effect. A mask change after a hit must never return a
// stale document.
type CacheKey struct {
	Path        string
	Fingerprint string
	Theme       string
	Format      Format
	Mask        Capability
}

// String renders the canonical store key.
func (k CacheKey) String() string {
	return fmt.Sprintf("%s|%s|%s|%s|%s", k.Path, k.Fingerprint, k.Theme, k.Format, k.Mask)
}

// CachedRender is a memoized render result.
type CachedRender struct {
	Body         []byte
	AppliedTheme string
	Backend      string
}

// CacheStore persists cache entries. The in-memory implementation is the
// default; adapters provide durable stores.
type CacheStore interface {
	Get(ctx context.Context, key string) (CachedRender, bool, error)
	Set(ctx context.Context, key string, value CachedRender) error
	Delete(ctx context.Context, keys ...string) error
	Reset(ctx context.Context) error
}

// RenderCache memoizes whole render operations. Concurrent callers with the
// same key share one computation; errors are never stored, so a failed
// render can be retried once the environment is fixed.
type RenderCache struct {
	store CacheStore
	group singleflight.Group
}

// NewRenderCache creates a cache over the in-memory store.
func NewRenderCache() *RenderCache {
	return NewRenderCacheWithStore(NewMemoryCacheStore())
}

// NewRenderCacheWithStore creates a cache over a custom store.
func NewRenderCacheWithStore(store CacheStore) *RenderCache {
	if store == nil {
		store = NewMemoryCacheStore()
	}
	return &RenderCache{store: store}
}

// GetOrCompute returns the memoized value for key, invoking compute at most
// once per missing key across concurrent callers. The second return reports
// whether the value came from the store. Store read failures degrade to a
// recompute rather than failing the render.
func (c *RenderCache) GetOrCompute(ctx context.Context, key CacheKey, compute func(ctx context.Context) (CachedRender, error)) (CachedRender, bool, error) {
	if c == nil || c.store == nil {
		value, err := compute(ctx)
		return value, false, err
	}

	ks := key.String()
	if value, ok, err := c.store.Get(ctx, ks); err == nil && ok {
		return value, true, nil
	}

	v, err, _ := c.group.Do(ks, func() (any, error) {
		if value, ok, err := c.store.Get(ctx, ks); err == nil && ok {
			return value, nil
		}
		value, err := compute(ctx)
		if err != nil {
			return CachedRender{}, err
		}
		_ = c.store.Set(ctx, ks, value)
		return value, nil
	})
	if err != nil {
		return CachedRender{}, false, err
	}
	return v.(CachedRender), false, nil
}

// Clear invalidates the given entries, or every entry when called without
// keys.
func (c *RenderCache) Clear(ctx context.Context, keys ...CacheKey) error {
	if c == nil || c.store == nil {
		return nil
	}
	if len(keys) == 0 {
		return c.store.Reset(ctx)
	}
	raw := make([]string, 0, len(keys))
	for _, key := range keys {
		raw = append(raw, key.String())
	}
	return c.store.Delete(ctx, raw...)
}

// MemoryCacheStore keeps cache entries in memory (the reference deployment:
// nothing survives a process restart).
type MemoryCacheStore struct {
	mu      sync.RWMutex
	entries map[string]CachedRender
}

var _ CacheStore = (*MemoryCacheStore)(nil)

// NewMemoryCacheStore creates an empty in-memory store.
func NewMemoryCacheStore() *MemoryCacheStore {
	return &MemoryCacheStore{entries: make(map[string]CachedRender)}
}

// Get returns the entry for key.
func (s *MemoryCacheStore) Get(ctx context.Context, key string) (CachedRender, bool, error) {
	_ = ctx
	s.mu.RLock()
	value, ok := s.entries[key]
	s.mu.RUnlock()
	return value, ok, nil
}

// Set stores the entry for key.
func (s *MemoryCacheStore) Set(ctx context.Context, key string, value CachedRender) error {
	_ = ctx
	s.mu.Lock()
	s.entries[key] = value
	s.mu.Unlock()
	return nil
}

// Delete removes the given keys.
func (s *MemoryCacheStore) Delete(ctx context.Context, keys ...string) error {
	_ = ctx
	s.mu.Lock()
	for _, key := range keys {
		delete(s.entries, key)
	}
	s.mu.Unlock()
	return nil
}

// Reset drops every entry.
func (s *MemoryCacheStore) Reset(ctx context.Context) error {
	_ = ctx
	s.mu.Lock()
	s.entries = make(map[string]CachedRender)
	s.mu.Unlock()
	return nil
}

// Len reports the number of stored entries.
func (s *MemoryCacheStore) Len() int {
	s.mu.RLock()
	n := len(s.entries)
	s.mu.RUnlock()
	return n
}
