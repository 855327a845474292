// internal/preload/cache_test.go
package preload

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/user/preflight/internal/predict"
	"github.com/user/preflight/internal/registry"
	"github.com/user/preflight/internal/types"
)

// countingFetcher records fetches per component.
type countingFetcher struct {
	mu      sync.Mutex
	fetches map[types.ComponentID]int
	fail    bool
}

func newCountingFetcher() *countingFetcher {
	return &countingFetcher{fetches: make(map[types.ComponentID]int)}
}

func (f *countingFetcher) Fetch(_ context.Context, desc *types.ComponentDescriptor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches[desc.ID]++
	if f.fail {
		return errors.New("boom")
	}
	return nil
}

func (f *countingFetcher) count(id types.ComponentID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches[id]
}

func newTestCache(t *testing.T, fetcher types.Fetcher) (*Cache, *registry.Registry, *predict.Engine) {
	t.Helper()
	reg := registry.New()
	reg.TrackComponent("c1", "page", nil)
	if err := reg.AssociateAction("go-c1", "c1"); err != nil {
		t.Fatal(err)
	}
	engine := predict.New(predict.DefaultParams(), reg)
	return New(reg, engine, fetcher), reg, engine
}

func TestPreloadIsIdempotent(t *testing.T) {
	fetcher := newCountingFetcher()
	cache, _, _ := newTestCache(t, fetcher)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := cache.Preload(ctx, "c1"); err != nil {
			t.Fatal(err)
		}
	}
	if got := fetcher.count("c1"); got != 1 {
		t.Errorf("expected exactly 1 fetch, got %d", got)
	}
	if !cache.Preloaded("c1") {
		t.Error("expected c1 marked preloaded")
	}
}

func TestPreloadFailureIsNonFatalAndRetriable(t *testing.T) {
	fetcher := newCountingFetcher()
	fetcher.fail = true
	cache, _, _ := newTestCache(t, fetcher)
	ctx := context.Background()

	if err := cache.Preload(ctx, "c1"); err == nil {
		t.Error("expected fetch error")
	}
	if cache.Preloaded("c1") {
		t.Error("failed fetch must not mark the component preloaded")
	}

	fetcher.fail = false
	if err := cache.Preload(ctx, "c1"); err != nil {
		t.Fatal(err)
	}
	if !cache.Preloaded("c1") {
		t.Error("expected c1 preloaded after retry")
	}
}

func TestPreloadUnknownComponent(t *testing.T) {
	cache, _, _ := newTestCache(t, newCountingFetcher())
	if err := cache.Preload(context.Background(), "nope"); err == nil {
		t.Error("expected error for untracked component")
	}
}

func TestPreloadNilFetcher(t *testing.T) {
	cache, _, _ := newTestCache(t, nil)
	if err := cache.Preload(context.Background(), "c1"); err != nil {
		t.Errorf("nil fetcher should no-op, got %v", err)
	}
}

func TestPreloadNextPrediction(t *testing.T) {
	fetcher := newCountingFetcher()
	cache, _, engine := newTestCache(t, fetcher)
	ctx := context.Background()

	// Empty model: nothing to preload.
	cache.PreloadNextPrediction(ctx, 2)
	if got := fetcher.count("c1"); got != 0 {
		t.Errorf("expected no fetch from empty model, got %d", got)
	}

	engine.Update(&types.InteractionData{ComponentID: "c1", ActionType: "go-c1", Timestamp: 1})
	cache.PreloadNextPrediction(ctx, 2)
	if got := fetcher.count("c1"); got != 1 {
		t.Errorf("expected 1 fetch after prediction, got %d", got)
	}
}
