package nbexport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func testCacheKey(theme string, mask Capability) CacheKey {
	return CacheKey{
		Path:        "reports/q1.ipynb",
		Fingerprint: "abc123",
		Theme:       theme,
		Format:      FormatPDF,
		Mask:        mask,
	}
}

func TestRenderCacheGetOrCompute(t *testing.T) {
	cache := NewRenderCache()
	ctx := context.Background()
	key := testCacheKey(ThemeLight, DefaultCapabilities())

	computes := 0
	compute := func(ctx context.Context) (CachedRender, error) {
		computes++
		return CachedRender{Body: []byte("%PDF"), Backend: "tex"}, nil
	}

	value, cached, err := cache.GetOrCompute(ctx, key, compute)
	if err != nil {
		t.Fatalf("first compute: %v", err)
	}
	if cached {
		t.Fatalf("first call must miss")
	}
	if string(value.Body) != "%PDF" {
		t.Fatalf("unexpected body %q", value.Body)
	}

	_, cached, err = cache.GetOrCompute(ctx, key, compute)
	if err != nil {
		t.Fatalf("second compute: %v", err)
	}
	if !cached {
		t.Fatalf("second call must hit")
	}
	if computes != 1 {
		t.Fatalf("compute must run once, ran %d times", computes)
	}
}

func TestRenderCacheKeysAreIndependent(t *testing.T) {
	cache := NewRenderCache()
	ctx := context.Background()

	computes := 0
	compute := func(ctx context.Context) (CachedRender, error) {
		computes++
		return CachedRender{Body: []byte("%PDF")}, nil
	}

	keys := []CacheKey{
		testCacheKey(ThemeLight, DefaultCapabilities()),
		testCacheKey(ThemeDark, DefaultCapabilities()),
		testCacheKey(ThemeLight, CapTeX),
	}
	for _, key := range keys {
		if _, _, err := cache.GetOrCompute(ctx, key, compute); err != nil {
			t.Fatalf("compute %v: %v", key, err)
		}
	}
	if computes != len(keys) {
		t.Fatalf("expected %d computes, got %d", len(keys), computes)
	}
}

func TestRenderCacheErrorsAreNotCached(t *testing.T) {
	cache := NewRenderCache()
	ctx := context.Background()
	key := testCacheKey(ThemeLight, DefaultCapabilities())

	boom := errors.New("all backends failed")
	calls := 0
	failing := func(ctx context.Context) (CachedRender, error) {
		calls++
		return CachedRender{}, boom
	}

	if _, _, err := cache.GetOrCompute(ctx, key, failing); !errors.Is(err, boom) {
		t.Fatalf("expected compute error, got %v", err)
	}
	if _, _, err := cache.GetOrCompute(ctx, key, failing); !errors.Is(err, boom) {
		t.Fatalf("expected second compute error, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("failed computes must not be memoized, got %d calls", calls)
	}
}

func TestRenderCacheSingleFlight(t *testing.T) {
	cache := NewRenderCache()
	key := testCacheKey(ThemeLight, DefaultCapabilities())

	var computes int32
	slow := func(ctx context.Context) (CachedRender, error) {
		atomic.AddInt32(&computes, 1)
		time.Sleep(50 * time.Millisecond)
		return CachedRender{Body: []byte("%PDF")}, nil
	}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := cache.GetOrCompute(context.Background(), key, slow)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent compute: %v", err)
		}
	}
	if got := atomic.LoadInt32(&computes); got != 1 {
		t.Fatalf("expected a single in-flight compute, got %d", got)
	}
}

func TestRenderCacheClear(t *testing.T) {
	cache := NewRenderCache()
	ctx := context.Background()

	light := testCacheKey(ThemeLight, DefaultCapabilities())
	dark := testCacheKey(ThemeDark, DefaultCapabilities())

	computes := 0
	compute := func(ctx context.Context) (CachedRender, error) {
		computes++
		return CachedRender{Body: []byte("%PDF")}, nil
	}

	for _, key := range []CacheKey{light, dark} {
		if _, _, err := cache.GetOrCompute(ctx, key, compute); err != nil {
			t.Fatalf("seed %v: %v", key, err)
		}
	}

	// selective invalidation drops only the named key
	if err := cache.Clear(ctx, light); err != nil {
		t.Fatalf("clear light: %v", err)
	}
	if _, cached, _ := cache.GetOrCompute(ctx, dark, compute); !cached {
		t.Fatalf("dark entry must survive selective clear")
	}
	if _, cached, _ := cache.GetOrCompute(ctx, light, compute); cached {
		t.Fatalf("light entry must be gone")
	}

	// full reset drops everything
	if err := cache.Clear(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if _, cached, _ := cache.GetOrCompute(ctx, dark, compute); cached {
		t.Fatalf("reset must drop all entries")
	}
}

func TestNilRenderCacheComputesDirectly(t *testing.T) {
	var cache *RenderCache

	value, cached, err := cache.GetOrCompute(context.Background(), testCacheKey(ThemeLight, CapTeX), func(ctx context.Context) (CachedRender, error) {
		return CachedRender{Body: []byte("%PDF")}, nil
	})
	if err != nil {
		t.Fatalf("nil cache compute: %v", err)
	}
	if cached {
		t.Fatalf("nil cache can never hit")
	}
	if string(value.Body) != "%PDF" {
		t.Fatalf("unexpected body %q", value.Body)
	}
	if err := cache.Clear(context.Background()); err != nil {
		t.Fatalf("nil cache clear: %v", err)
	}
}

func TestCacheKeyStringEncodesEveryInput(t *testing.T) {
	base := testCacheKey(ThemeLight, DefaultCapabilities())

	variants := []CacheKey{
		{Path: "other.ipynb", Fingerprint: base.Fingerprint, Theme: base.Theme, Format: base.Format, Mask: base.Mask},
		{Path: base.Path, Fingerprint: "zzz", Theme: base.Theme, Format: base.Format, Mask: base.Mask},
		{Path: base.Path, Fingerprint: base.Fingerprint, Theme: ThemeDark, Format: base.Format, Mask: base.Mask},
		{Path: base.Path, Fingerprint: base.Fingerprint, Theme: base.Theme, Format: FormatHTML, Mask: base.Mask},
		{Path: base.Path, Fingerprint: base.Fingerprint, Theme: base.Theme, Format: base.Format, Mask: CapTeX},
	}
	for i, variant := range variants {
		if variant.String() == base.String() {
			t.Fatalf("variant %d must produce a distinct key", i)
		}
	}
}
