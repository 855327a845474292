// internal/preload/cache.go

// Package preload dispatches component preloads at most once per
// session.
package preload

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/user/preflight/internal/predict"
	"github.com/user/preflight/internal/registry"
	"github.com/user/preflight/internal/telemetry"
	"github.com/user/preflight/internal/types"
)

// Cache is the idempotent preload dispatcher. A component fetches at
// most once per session: concurrent requests for the same id collapse
// into one in-flight fetch, and completed ids are never fetched again.
// Fetch failures are logged and non-fatal; the id stays eligible for a
// later retry.
type Cache struct {
	registry *registry.Registry
	engine   *predict.Engine
	fetcher  types.Fetcher

	group  singleflight.Group
	mu     sync.Mutex
	cached map[types.ComponentID]bool
}

// New creates a Cache. fetcher is the application's preload hook; nil
// disables fetching (predictions still compute).
func New(reg *registry.Registry, engine *predict.Engine, fetcher types.Fetcher) *Cache {
	return &Cache{
		registry: reg,
		engine:   engine,
		fetcher:  fetcher,
		cached:   make(map[types.ComponentID]bool),
	}
}

// Preload fetches the component's resources unless already done this
// session.
func (c *Cache) Preload(ctx context.Context, id types.ComponentID) error {
	c.mu.Lock()
	done := c.cached[id]
	c.mu.Unlock()
	if done {
		telemetry.Preloads.WithLabelValues("cached").Inc()
		return nil
	}
	if c.fetcher == nil {
		return nil
	}
	desc, ok := c.registry.Descriptor(id)
	if !ok {
		return fmt.Errorf("preload %q: component not tracked", id)
	}

	_, err, _ := c.group.Do(string(id), func() (any, error) {
		// Re-check under the flight: a caller that raced past the first
		// check must not refetch a component another flight completed.
		c.mu.Lock()
		done := c.cached[id]
		c.mu.Unlock()
		if done {
			return nil, nil
		}
		if err := c.fetcher.Fetch(ctx, desc); err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.cached[id] = true
		c.mu.Unlock()
		return nil, nil
	})
	if err != nil {
		telemetry.Preloads.WithLabelValues("error").Inc()
		slog.Warn("preload failed", "component_id", id, "error", err)
		return err
	}
	telemetry.Preloads.WithLabelValues("fetched").Inc()
	return nil
}

// PreloadNextPrediction queries the engine for the likely next action
// and preloads its component. A none prediction, an unbound action, or
// a fetch failure is a no-op.
func (c *Cache) PreloadNextPrediction(ctx context.Context, nowMs int64) {
	p := c.engine.Predict(nowMs)
	if p.None() || p.ComponentID == "" {
		return
	}
	// Errors are already logged; preloads are best-effort hints.
	_ = c.Preload(ctx, p.ComponentID)
}

// Preloaded reports whether the component fetched this session.
func (c *Cache) Preloaded(id types.ComponentID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cached[id]
}
