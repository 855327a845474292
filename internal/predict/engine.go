// internal/predict/engine.go

// Package predict maintains the per-user behavior model: a bounded
// interaction history, variable-order transition counts, global action
// counts, and per-action hour-of-day counts, and answers next-action
// queries over them.
package predict

import (
	"strings"
	"sync"
	"time"

	"github.com/user/preflight/internal/registry"
	"github.com/user/preflight/internal/types"
)

// Params tunes the model. Zero values are invalid; use DefaultParams.
type Params struct {
	HistoryLength    int
	MaxPatternLength int
	// DecayLambda is the exponential decay rate in ms^-1 applied to
	// sequence evidence by age. The default half-life is ~1.4 seconds.
	DecayLambda         float64
	SmoothingFactor     float64
	WeightSequence      float64
	WeightTime          float64
	MinActionsThreshold int
}

// DefaultParams returns the stock tuning.
func DefaultParams() Params {
	return Params{
		HistoryLength:       100,
		MaxPatternLength:    5,
		DecayLambda:         5e-4,
		SmoothingFactor:     0.1,
		WeightSequence:      0.7,
		WeightTime:          0.3,
		MinActionsThreshold: 50,
	}
}

// Engine is the prediction model. All state behind one mutex: updates
// are driven by the store's post-commit notifications and therefore
// arrive in commit order; queries never observe a half-applied update.
type Engine struct {
	mu       sync.Mutex
	params   Params
	registry *registry.Registry

	history []types.InteractionData
	// transitions[L][pattern] counts the actions observed after the
	// comma-joined pattern of the L preceding actions.
	transitions map[int]map[string]*counter[types.ActionType]
	global      *counter[types.ActionType]
	times       *hourTable
}

// New creates an empty engine resolving predicted actions through reg.
func New(params Params, reg *registry.Registry) *Engine {
	return &Engine{
		params:      params,
		registry:    reg,
		transitions: make(map[int]map[string]*counter[types.ActionType]),
		global:      newCounter[types.ActionType](),
		times:       newHourTable(),
	}
}

func patternKey(window []types.InteractionData) string {
	parts := make([]string, len(window))
	for i, rec := range window {
		parts[i] = string(rec.ActionType)
	}
	return strings.Join(parts, ",")
}

// Update folds one saved interaction into the model. The transition
// counts are taken against the history as it was before this action:
// the pattern is the prior window, the target is the new action. Only
// then is the action appended and the history truncated to its bound.
func (e *Engine) Update(rec *types.InteractionData) {
	e.mu.Lock()
	defer e.mu.Unlock()

	hour := time.UnixMilli(rec.Timestamp).Hour()
	e.times.add(rec.ActionType, hour, 1)
	e.global.add(rec.ActionType, 1)

	maxL := min(e.params.MaxPatternLength, len(e.history))
	for l := 1; l <= maxL; l++ {
		pattern := patternKey(e.history[len(e.history)-l:])
		rows, ok := e.transitions[l]
		if !ok {
			rows = make(map[string]*counter[types.ActionType])
			e.transitions[l] = rows
		}
		row, ok := rows[pattern]
		if !ok {
			row = newCounter[types.ActionType]()
			rows[pattern] = row
		}
		row.add(rec.ActionType, 1)
	}

	e.history = append(e.history, *rec)
	if len(e.history) > e.params.HistoryLength {
		e.history = e.history[len(e.history)-e.params.HistoryLength:]
	}
}

// HistorySnapshot returns a copy of the current history for readers that
// must not observe later mutations (the daily upload).
func (e *Engine) HistorySnapshot() []types.InteractionData {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]types.InteractionData, len(e.history))
	copy(out, e.history)
	return out
}

// Stats describes the model size, for diagnostics.
type Stats struct {
	HistoryLength     int   `json:"history_length"`
	ActionsObserved   int64 `json:"actions_observed"`
	DistinctActions   int   `json:"distinct_actions"`
	TransitionOrders  int   `json:"transition_orders"`
	TransitionRows    int   `json:"transition_rows"`
	TimePatternCount  int   `json:"time_pattern_count"`
}

// ModelStats reports the current model size.
func (e *Engine) ModelStats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := Stats{
		HistoryLength:    len(e.history),
		ActionsObserved:  e.global.total(),
		DistinctActions:  e.global.len(),
		TransitionOrders: len(e.transitions),
		TimePatternCount: len(e.times.keys),
	}
	for _, rows := range e.transitions {
		st.TransitionRows += len(rows)
	}
	return st
}

// Reset drops all model state.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = nil
	e.transitions = make(map[int]map[string]*counter[types.ActionType])
	e.global = newCounter[types.ActionType]()
	e.times = newHourTable()
}
