package nbexportsqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/goliatone/go-nbexport/nbexport"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func TestStore_SetGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	value := nbexport.CachedRender{
		Body:         []byte("%PDF-1.7 body"),
		AppliedTheme: nbexport.ThemeDark,
		Backend:      "webpdf",
	}
	if err := store.Set(ctx, "report|f1|dark|pdf|tex|webpdf", value); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, ok, err := store.Get(ctx, "report|f1|dark|pdf|tex|webpdf")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok {
		t.Fatalf("expected hit")
	}
	if string(got.Body) != string(value.Body) || got.AppliedTheme != value.AppliedTheme || got.Backend != value.Backend {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestStore_GetMissing(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, ok, err := store.Get(ctx, "absent")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Fatalf("expected miss")
	}
}

func TestStore_SetOverwrites(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if err := store.Set(ctx, "k", nbexport.CachedRender{Body: []byte("old"), Backend: "tex"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Set(ctx, "k", nbexport.CachedRender{Body: []byte("new"), Backend: "webpdf"}); err != nil {
		t.Fatalf("set again: %v", err)
	}

	got, ok, err := store.Get(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if string(got.Body) != "new" || got.Backend != "webpdf" {
		t.Fatalf("expected overwrite, got %+v", got)
	}
}

func TestStore_DeleteSelective(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for _, key := range []string{"a", "b", "c"} {
		if err := store.Set(ctx, key, nbexport.CachedRender{Body: []byte(key)}); err != nil {
			t.Fatalf("set %q: %v", key, err)
		}
	}
	if err := store.Delete(ctx, "a", "c"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, ok, _ := store.Get(ctx, "a"); ok {
		t.Fatalf("expected a to be deleted")
	}
	if _, ok, _ := store.Get(ctx, "b"); !ok {
		t.Fatalf("expected b to survive")
	}
	n, err := store.Len(ctx)
	if err != nil {
		t.Fatalf("len: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 entry, got %d", n)
	}
}

func TestStore_Reset(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if err := store.Set(ctx, "k", nbexport.CachedRender{Body: []byte("v")}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	n, err := store.Len(ctx)
	if err != nil {
		t.Fatalf("len: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected empty store, got %d entries", n)
	}
}

func TestStore_BacksRenderCache(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	cache := nbexport.NewRenderCacheWithStore(store)

	key := nbexport.CacheKey{
		Path:        "analysis.ipynb",
		Fingerprint: "f1",
		Theme:       nbexport.ThemeLight,
		Format:      nbexport.FormatPDF,
		Mask:        nbexport.DefaultCapabilities(),
	}
	computes := 0
	compute := func(ctx context.Context) (nbexport.CachedRender, error) {
		_ = ctx
		computes++
		return nbexport.CachedRender{Body: []byte("%PDF"), Backend: "tex"}, nil
	}

	if _, cached, err := cache.GetOrCompute(ctx, key, compute); err != nil || cached {
		t.Fatalf("first call: cached=%v err=%v", cached, err)
	}
	value, cached, err := cache.GetOrCompute(ctx, key, compute)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if !cached {
		t.Fatalf("expected cache hit")
	}
	if computes != 1 {
		t.Fatalf("expected 1 compute, got %d", computes)
	}
	if value.Backend != "tex" {
		t.Fatalf("expected persisted backend, got %q", value.Backend)
	}
}

func TestStore_NotConfigured(t *testing.T) {
	ctx := context.Background()
	store := &Store{}

	if _, _, err := store.Get(ctx, "k"); err == nil {
		t.Fatalf("expected error")
	} else if nbexport.KindFromError(err) != nbexport.KindNotImpl {
		t.Fatalf("expected not_implemented, got %v", nbexport.KindFromError(err))
	}
}

func TestOpen_RequiresPath(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Fatalf("expected error")
	}
}
