// internal/remote/sync.go
package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/user/preflight/internal/predict"
	"github.com/user/preflight/internal/telemetry"
	"github.com/user/preflight/internal/types"
)

// appIDKey is the key-value storage key for the server-issued app id.
const appIDKey = "prediction_model_app_id"

// uploadSchedule fires at local midnight, daily.
const uploadSchedule = "0 0 * * *"

// Syncer owns the client's relationship with the aggregator: it
// registers the installation, uploads the anonymized action histogram at
// local midnight, and seeds the engine from the global model when local
// data is too thin. Every failure here is logged and non-fatal; the
// library keeps working from local history.
type Syncer struct {
	client *Client
	engine *predict.Engine
	cipher types.Cipher
	kv     types.KeyValueStore
	cron   *cron.Cron

	mu    sync.Mutex
	appID types.AppID
}

// NewSyncer wires a Syncer. Call Start to register and begin the
// schedule.
func NewSyncer(client *Client, engine *predict.Engine, cipher types.Cipher, kv types.KeyValueStore) *Syncer {
	return &Syncer{
		client: client,
		engine: engine,
		cipher: cipher,
		kv:     kv,
		cron:   cron.New(),
	}
}

// Start resolves the app id, pulls the global model if the engine needs
// seeding, and starts the daily upload schedule.
func (s *Syncer) Start(ctx context.Context) {
	s.ensureAppID(ctx)

	if s.engine.NeedsGlobalModel() {
		if err := s.FetchAndInstall(ctx); err != nil {
			slog.Warn("global model fetch failed", "error", err)
		}
	}

	_, err := s.cron.AddFunc(uploadSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		if err := s.UploadNow(ctx); err != nil {
			slog.Warn("daily upload failed", "error", err)
		}
	})
	if err != nil {
		slog.Error("invalid upload schedule", "schedule", uploadSchedule, "error", err)
		return
	}
	s.cron.Start()
	slog.Info("daily upload scheduled", "schedule", uploadSchedule)
}

// Stop halts the schedule and waits for a running upload to finish.
func (s *Syncer) Stop() {
	<-s.cron.Stop().Done()
}

// AppID returns the resolved installation id.
func (s *Syncer) AppID() types.AppID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appID
}

// ensureAppID loads the stored app id or registers for one. On any
// registration failure a local fallback id is used so the library keeps
// operating; the fallback is not persisted, so the next start retries
// registration.
func (s *Syncer) ensureAppID(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if data, ok, err := s.kv.Get(ctx, appIDKey); err == nil && ok {
		s.appID = types.AppID(data)
		return
	} else if err != nil {
		slog.Warn("read app id failed", "error", err)
	}

	id, err := s.client.RegisterApp(ctx)
	if err != nil {
		s.appID = types.FallbackAppID(time.Now())
		telemetry.SyncOps.WithLabelValues("register", "error").Inc()
		slog.Warn("app registration failed, continuing locally", "app_id", s.appID, "error", err)
		return
	}
	if err := s.kv.Set(ctx, appIDKey, []byte(id)); err != nil {
		slog.Warn("persist app id failed", "error", err)
	}
	s.appID = id
	telemetry.SyncOps.WithLabelValues("register", "ok").Inc()
	slog.Info("app registered", "app_id", id)
}

// UploadNow counts actions over a snapshot of the current history,
// encrypts each action deterministically, and posts the histogram. A
// no-op when the history is empty or no app id was resolved.
func (s *Syncer) UploadNow(ctx context.Context) error {
	appID := s.AppID()
	history := s.engine.HistorySnapshot()
	if len(history) == 0 || appID == "" {
		slog.Debug("upload skipped", "history", len(history), "app_id", appID)
		return nil
	}

	// Count per action, preserving first-appearance order.
	counts := make(map[types.ActionType]int64)
	var order []types.ActionType
	for _, rec := range history {
		if _, ok := counts[rec.ActionType]; !ok {
			order = append(order, rec.ActionType)
		}
		counts[rec.ActionType]++
	}

	interactions := make([]EncryptedCount, 0, len(order))
	for _, action := range order {
		ct, iv, err := s.cipher.EncryptDeterministic(ctx, string(action))
		if err != nil {
			telemetry.SyncOps.WithLabelValues("upload", "error").Inc()
			return fmt.Errorf("encrypt action for upload: %w", err)
		}
		interactions = append(interactions, EncryptedCount{
			ActionType:   ct,
			ActionTypeIV: iv,
			Count:        counts[action],
		})
	}

	if err := s.client.UploadAnonymousData(ctx, appID, interactions); err != nil {
		telemetry.SyncOps.WithLabelValues("upload", "error").Inc()
		return err
	}
	telemetry.SyncOps.WithLabelValues("upload", "ok").Inc()
	slog.Info("anonymized data uploaded", "actions", len(interactions))
	return nil
}

// FetchAndInstall pulls the global model, decrypts its keys, and
// installs it into the engine.
func (s *Syncer) FetchAndInstall(ctx context.Context) error {
	appID := s.AppID()
	if appID == "" {
		return errors.New("no app id")
	}
	resp, err := s.client.FetchGlobalModel(ctx, appID)
	if err != nil {
		telemetry.SyncOps.WithLabelValues("fetch_model", "error").Inc()
		return err
	}

	model, err := s.decryptModel(resp)
	if err != nil {
		telemetry.SyncOps.WithLabelValues("fetch_model", "error").Inc()
		return err
	}
	s.engine.InstallGlobalModel(model)
	telemetry.SyncOps.WithLabelValues("fetch_model", "ok").Inc()
	slog.Info("global model installed",
		"actions", len(model.ActionCounts),
		"time_patterns", len(model.TimePatterns),
	)
	return nil
}

// decryptModel reconstructs plaintext-keyed maps from the ciphertext
// maps and their IVs. A ciphertext with no matching IV is a protocol
// mismatch.
func (s *Syncer) decryptModel(resp *GlobalModelResponse) (*types.GlobalModel, error) {
	model := &types.GlobalModel{
		ActionCounts: make(map[types.ActionType]int64, len(resp.GlobalActionCounter)),
		TimePatterns: make(map[types.ActionType][24]int64, len(resp.TimePatterns)),
	}

	for ct, count := range resp.GlobalActionCounter {
		iv, ok := resp.GlobalActionCounterIVs[ct]
		if !ok {
			return nil, fmt.Errorf("%w: counter ciphertext with no iv", ErrProtocolMismatch)
		}
		action, err := s.cipher.Decrypt(ct, iv)
		if err != nil {
			return nil, fmt.Errorf("decrypt counter key: %w", err)
		}
		model.ActionCounts[types.ActionType(action)] = count
	}

	for ct, hours := range resp.TimePatterns {
		iv, ok := resp.TimePatternsIVs[ct]
		if !ok {
			return nil, fmt.Errorf("%w: time pattern ciphertext with no iv", ErrProtocolMismatch)
		}
		action, err := s.cipher.Decrypt(ct, iv)
		if err != nil {
			return nil, fmt.Errorf("decrypt time pattern key: %w", err)
		}
		var row [24]int64
		for hourStr, count := range hours {
			hour, err := strconv.Atoi(hourStr)
			if err != nil || hour < 0 || hour > 23 {
				return nil, fmt.Errorf("%w: bad hour key %q", ErrProtocolMismatch, hourStr)
			}
			row[hour] = count
		}
		model.TimePatterns[types.ActionType(action)] = row
	}

	return model, nil
}
