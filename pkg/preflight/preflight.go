// Package preflight is the embedding surface for applications: register
// components, bind actions, track interactions, and let the library
// preload whatever the user is likely to touch next.
package preflight

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/user/preflight/internal/crypto"
	"github.com/user/preflight/internal/predict"
	"github.com/user/preflight/internal/preload"
	"github.com/user/preflight/internal/registry"
	"github.com/user/preflight/internal/remote"
	"github.com/user/preflight/internal/store"
	"github.com/user/preflight/internal/telemetry"
	"github.com/user/preflight/internal/types"
)

// Re-exported so applications never import internal packages.
type (
	Prediction          = types.Prediction
	ComponentDescriptor = types.ComponentDescriptor
	Fetcher             = types.Fetcher
	FetcherFunc         = types.FetcherFunc
	Stats               = predict.Stats
)

// Config are the recognized options. Zero numeric fields take their
// defaults, except the two weights, which take theirs only when both are
// zero; EncryptionKey is required (64 hex characters) and weights
// must be non-negative. An empty ServerURL disables remote sync.
type Config struct {
	DataDir       string
	ServerURL     string
	EncryptionKey string

	HistoryLength int
	// DecayLambda is in ms^-1. The default of 5e-4 decays sequence
	// evidence with a half-life of roughly 1.4 seconds; deployments
	// that want hour-scale decay should set this far lower.
	DecayLambda         float64
	SmoothingFactor     float64
	WeightSequence      float64
	WeightTime          float64
	MaxPatternLength    int
	MinActionsThreshold int
}

func (c *Config) withDefaults() (Config, error) {
	out := *c
	if out.HistoryLength == 0 {
		out.HistoryLength = 100
	}
	if out.DecayLambda == 0 {
		out.DecayLambda = 5e-4
	}
	if out.SmoothingFactor == 0 {
		out.SmoothingFactor = 0.1
	}
	if out.WeightSequence == 0 && out.WeightTime == 0 {
		out.WeightSequence = 0.7
		out.WeightTime = 0.3
	}
	if out.MaxPatternLength == 0 {
		out.MaxPatternLength = 5
	}
	if out.MinActionsThreshold == 0 {
		out.MinActionsThreshold = 50
	}
	if out.HistoryLength < 1 || out.MaxPatternLength < 1 {
		return out, fmt.Errorf("history and pattern lengths must be positive")
	}
	if out.WeightSequence < 0 || out.WeightTime < 0 {
		return out, fmt.Errorf("weights must be non-negative")
	}
	return out, nil
}

// Option configures optional behavior on a Client.
type Option func(*options)

type options struct {
	fetcher   Fetcher
	storeOpts *store.Options
}

// WithFetcher installs the application's preload hook.
func WithFetcher(f Fetcher) Option {
	return func(o *options) { o.fetcher = f }
}

// WithStoreOptions overrides the database settings (tests use the
// in-memory store).
func WithStoreOptions(opts store.Options) Option {
	return func(o *options) { o.storeOpts = &opts }
}

// Client wires the services together and carries the library-boundary
// error policy: TrackInteraction and Predict never fail the caller for
// operational errors, they log and degrade to a no-op.
type Client struct {
	cfg          Config
	db           *badger.DB
	interactions *store.Interactions
	registry     *registry.Registry
	engine       *predict.Engine
	cache        *preload.Cache
	syncer       *remote.Syncer
}

// New opens the store, rebuilds the model from the encrypted log, and
// starts remote sync when a server URL is configured. Configuration and
// store-open failures abort initialization.
func New(ctx context.Context, cfg Config, opts ...Option) (*Client, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	storeOpts := store.DefaultOptions(filepath.Join(cfg.DataDir, "db"))
	if o.storeOpts != nil {
		storeOpts = *o.storeOpts
	}
	if storeOpts.Logger == nil {
		storeOpts.Logger = slog.Default()
	}

	db, err := store.Open(storeOpts)
	if err != nil {
		return nil, err
	}

	kv := store.NewKV(db)
	cipher, err := crypto.New(ctx, cfg.EncryptionKey, kv)
	if err != nil {
		db.Close()
		return nil, err
	}

	interactions, err := store.NewInteractions(db, cipher)
	if err != nil {
		db.Close()
		return nil, err
	}

	reg := registry.New()
	engine := predict.New(predict.Params{
		HistoryLength:       cfg.HistoryLength,
		MaxPatternLength:    cfg.MaxPatternLength,
		DecayLambda:         cfg.DecayLambda,
		SmoothingFactor:     cfg.SmoothingFactor,
		WeightSequence:      cfg.WeightSequence,
		WeightTime:          cfg.WeightTime,
		MinActionsThreshold: cfg.MinActionsThreshold,
	}, reg)
	cache := preload.New(reg, engine, o.fetcher)

	c := &Client{
		cfg:          cfg,
		db:           db,
		interactions: interactions,
		registry:     reg,
		engine:       engine,
		cache:        cache,
	}

	// Saved interactions drive the model; the follow-up preload is
	// fire-and-forget.
	interactions.Subscribe(func(rec *types.InteractionData) {
		engine.Update(rec)
		go cache.PreloadNextPrediction(context.Background(), time.Now().UnixMilli())
	})

	if err := engine.Bootstrap(ctx, interactions); err != nil {
		c.Close()
		return nil, err
	}

	if cfg.ServerURL != "" {
		c.syncer = remote.NewSyncer(remote.NewClient(cfg.ServerURL), engine, cipher, kv)
		c.syncer.Start(ctx)
	}

	// Prime the cache from whatever the replay (or global model) knows.
	go cache.PreloadNextPrediction(ctx, time.Now().UnixMilli())

	return c, nil
}

// TrackComponent registers a preloadable component. Duplicate ids warn
// and keep the original.
func (c *Client) TrackComponent(id, componentType string, metadata map[string]any) {
	c.registry.TrackComponent(types.ComponentID(id), componentType, metadata)
}

// AssociateActionWithComponent binds an action type to a tracked
// component.
func (c *Client) AssociateActionWithComponent(actionType, componentID string) error {
	return c.registry.AssociateAction(types.ActionType(actionType), types.ComponentID(componentID))
}

// TrackInteraction records a user interaction for the bound component.
// Unbound actions warn and do nothing; storage failures are logged, not
// returned.
func (c *Client) TrackInteraction(ctx context.Context, actionType string) {
	action := types.ActionType(actionType)
	comp, ok := c.registry.ComponentByAction(action)
	if !ok {
		slog.Warn("interaction for unbound action", "action", actionType)
		return
	}
	rec := &types.InteractionData{
		ComponentID: comp,
		ActionType:  action,
		Timestamp:   time.Now().UnixMilli(),
	}
	if err := c.interactions.Save(ctx, rec); err != nil {
		slog.Error("save interaction failed", "action", actionType, "error", err)
	}
}

// Predict returns the likely next action and its component for the
// given time (ms since epoch). The zero Prediction means no guess.
func (c *Client) Predict(nowMs int64) Prediction {
	p := c.engine.Predict(nowMs)
	if p.None() {
		telemetry.Predictions.WithLabelValues("none").Inc()
	} else {
		telemetry.Predictions.WithLabelValues("hit").Inc()
	}
	return p
}

// PreloadNextPrediction predicts and preloads in one step.
func (c *Client) PreloadNextPrediction(ctx context.Context) {
	c.cache.PreloadNextPrediction(ctx, time.Now().UnixMilli())
}

// Preloaded reports whether the component fetched this session.
func (c *Client) Preloaded(componentID string) bool {
	return c.cache.Preloaded(types.ComponentID(componentID))
}

// ForceUploadData uploads the anonymized histogram immediately.
func (c *Client) ForceUploadData(ctx context.Context) error {
	if c.syncer == nil {
		return fmt.Errorf("remote sync disabled: no server url configured")
	}
	return c.syncer.UploadNow(ctx)
}

// Components lists the registered descriptors in registration order.
func (c *Client) Components() []*ComponentDescriptor {
	return c.registry.List()
}

// Stats reports the model size.
func (c *Client) Stats() Stats {
	return c.engine.ModelStats()
}

// Clear drops all stored interactions and resets the in-memory model.
func (c *Client) Clear(ctx context.Context) error {
	if err := c.interactions.Clear(ctx); err != nil {
		return err
	}
	c.engine.Reset()
	return nil
}

// Close stops sync and releases the store.
func (c *Client) Close() error {
	if c.syncer != nil {
		c.syncer.Stop()
	}
	if err := c.interactions.Close(); err != nil {
		slog.Warn("release interaction sequence failed", "error", err)
	}
	return c.db.Close()
}
