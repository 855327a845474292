// internal/predict/bootstrap.go
package predict

import (
	"context"
	"fmt"
	"sort"

	"github.com/user/preflight/internal/types"
)

// Bounds on a server-supplied global model. A hostile or broken server
// must not be able to blow up memory or bias the model with absurd
// counts.
const (
	maxGlobalActions = 1000
	maxGlobalCount   = 1_000_000
)

// Bootstrap replays the decrypted interaction log through the update
// path in timestamp order, rebuilding the in-memory model after a
// restart.
func (e *Engine) Bootstrap(ctx context.Context, store types.InteractionStore) error {
	recs, err := store.List(ctx)
	if err != nil {
		return fmt.Errorf("replay interactions: %w", err)
	}
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Timestamp < recs[j].Timestamp
	})
	for _, rec := range recs {
		e.Update(rec)
	}
	return nil
}

// NeedsGlobalModel reports whether local data is too thin to predict
// from: the history is below the threshold or no transitions exist yet.
func (e *Engine) NeedsGlobalModel() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.history) >= e.params.MinActionsThreshold && len(e.transitions) > 0 {
		return false
	}
	return true
}

// InstallGlobalModel replaces the global action counter and the time
// patterns with the server-aggregated model. The transition matrix is
// never seeded from the server. Actions install in lexicographic order
// (the wire maps carry no order), bounded and clamped.
func (e *Engine) InstallGlobalModel(m *types.GlobalModel) {
	e.mu.Lock()
	defer e.mu.Unlock()

	actions := make([]types.ActionType, 0, len(m.ActionCounts))
	for action := range m.ActionCounts {
		actions = append(actions, action)
	}
	sort.Slice(actions, func(i, j int) bool { return actions[i] < actions[j] })
	if len(actions) > maxGlobalActions {
		actions = actions[:maxGlobalActions]
	}

	global := newCounter[types.ActionType]()
	for _, action := range actions {
		global.add(action, clampCount(m.ActionCounts[action]))
	}
	e.global = global

	timed := make([]types.ActionType, 0, len(m.TimePatterns))
	for action := range m.TimePatterns {
		timed = append(timed, action)
	}
	sort.Slice(timed, func(i, j int) bool { return timed[i] < timed[j] })
	if len(timed) > maxGlobalActions {
		timed = timed[:maxGlobalActions]
	}

	times := newHourTable()
	for _, action := range timed {
		row := m.TimePatterns[action]
		for hour, count := range row {
			if count > 0 {
				times.add(action, hour, clampCount(count))
			}
		}
	}
	e.times = times
}

func clampCount(n int64) int64 {
	if n < 0 {
		return 0
	}
	if n > maxGlobalCount {
		return maxGlobalCount
	}
	return n
}
