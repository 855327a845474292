// internal/telemetry/metrics.go

// Package telemetry holds the process-wide prometheus instruments. The
// daemon exposes them on /metrics; the counters change no behavior.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// InteractionsSaved counts committed interaction rows.
	InteractionsSaved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "preflight_interactions_saved_total",
		Help: "Interaction records committed to the local store.",
	})

	// Predictions counts prediction queries by outcome (hit, none).
	Predictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "preflight_predictions_total",
		Help: "Next-action predictions served, by outcome.",
	}, []string{"outcome"})

	// Preloads counts preload dispatches by result (fetched, cached, error).
	Preloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "preflight_preloads_total",
		Help: "Component preload dispatches, by result.",
	}, []string{"result"})

	// SyncOps counts remote sync calls by operation and status.
	SyncOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "preflight_sync_operations_total",
		Help: "Remote sync operations, by operation and status.",
	}, []string{"op", "status"})
)
