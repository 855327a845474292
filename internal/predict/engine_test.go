// internal/predict/engine_test.go
package predict

import (
	"testing"
	"time"

	"github.com/user/preflight/internal/registry"
	"github.com/user/preflight/internal/types"
)

func newTestEngine(t *testing.T, bind map[types.ActionType]types.ComponentID) *Engine {
	t.Helper()
	reg := registry.New()
	for action, comp := range bind {
		reg.TrackComponent(comp, "page", nil)
		if err := reg.AssociateAction(action, comp); err != nil {
			t.Fatal(err)
		}
	}
	return New(DefaultParams(), reg)
}

func track(e *Engine, action types.ActionType, ts int64) {
	e.Update(&types.InteractionData{
		ComponentID: types.ComponentID("comp-" + string(action)),
		ActionType:  action,
		Timestamp:   ts,
	})
}

// tsAtHour returns a timestamp falling in the given local hour.
func tsAtHour(hour int) int64 {
	return time.Date(2024, 3, 14, hour, 30, 0, 0, time.Local).UnixMilli()
}

func TestPredictEmptyModel(t *testing.T) {
	e := newTestEngine(t, nil)
	if p := e.Predict(0); !p.None() {
		t.Errorf("expected no prediction from empty model, got %+v", p)
	}
}

func TestPredictSingleActionFallback(t *testing.T) {
	e := newTestEngine(t, map[types.ActionType]types.ComponentID{"go-c1": "c1"})
	e.Update(&types.InteractionData{ComponentID: "c1", ActionType: "go-c1", Timestamp: 1})

	p := e.Predict(2)
	if p.Action != "go-c1" {
		t.Errorf("expected go-c1, got %q", p.Action)
	}
	if p.ComponentID != "c1" {
		t.Errorf("expected component c1, got %q", p.ComponentID)
	}
}

func TestPredictLearnsSequence(t *testing.T) {
	e := newTestEngine(t, map[types.ActionType]types.ComponentID{
		"A": "comp-A",
		"B": "comp-B",
	})
	for i, action := range []types.ActionType{"A", "B", "A", "B", "A"} {
		e.Update(&types.InteractionData{
			ComponentID: types.ComponentID("comp-" + string(action)),
			ActionType:  action,
			Timestamp:   int64(i + 1),
		})
	}

	p := e.Predict(6)
	if p.Action != "B" {
		t.Errorf("expected B after A,B,A,B,A, got %q", p.Action)
	}
	if p.ComponentID != "comp-B" {
		t.Errorf("expected comp-B, got %q", p.ComponentID)
	}
}

func TestPredictIsDeterministic(t *testing.T) {
	e := newTestEngine(t, nil)
	for i, action := range []types.ActionType{"A", "B", "C", "A", "B"} {
		track(e, action, int64(i+1))
	}

	first := e.Predict(10)
	for i := 0; i < 20; i++ {
		if got := e.Predict(10); got != first {
			t.Fatalf("prediction changed across calls: %+v vs %+v", got, first)
		}
	}
}

func TestPredictTieBreakIsStableFirstMatch(t *testing.T) {
	// A and B tie with equal counts, no matching transition context,
	// and no time data for the query hour. The first-inserted action
	// must win, repeatedly.
	e := newTestEngine(t, nil)
	e.InstallGlobalModel(&types.GlobalModel{
		ActionCounts: map[types.ActionType]int64{"A": 3, "B": 3},
	})

	first := e.Predict(tsAtHour(9))
	if first.Action == "" {
		t.Fatal("expected a fallback prediction")
	}
	if first.Action != "A" {
		t.Fatalf("expected first-inserted action A, got %q", first.Action)
	}
	for i := 0; i < 20; i++ {
		if got := e.Predict(tsAtHour(9)); got.Action != first.Action {
			t.Fatalf("tie break not stable: %q vs %q", got.Action, first.Action)
		}
	}
}

func TestTimeFallback(t *testing.T) {
	// X is a 3am action, Y a 2pm action, with no sequence signal:
	// restart leaves the history empty and a fresh engine receives the
	// aggregated model only.
	e := newTestEngine(t, map[types.ActionType]types.ComponentID{"Y": "comp-Y"})
	var hoursX, hoursY [24]int64
	hoursX[3] = 5
	hoursY[14] = 5
	e.InstallGlobalModel(&types.GlobalModel{
		ActionCounts: map[types.ActionType]int64{"X": 5, "Y": 5},
		TimePatterns: map[types.ActionType][24]int64{"X": hoursX, "Y": hoursY},
	})

	p := e.Predict(tsAtHour(14))
	if p.Action != "Y" {
		t.Errorf("expected Y at hour 14, got %q", p.Action)
	}
	if p.ComponentID != "comp-Y" {
		t.Errorf("expected comp-Y, got %q", p.ComponentID)
	}

	if p := e.Predict(tsAtHour(3)); p.Action != "X" {
		t.Errorf("expected X at hour 3, got %q", p.Action)
	}
}

func TestHistoryIsBounded(t *testing.T) {
	params := DefaultParams()
	params.HistoryLength = 5
	e := New(params, registry.New())

	for i := 0; i < 20; i++ {
		track(e, "A", int64(i+1))
	}

	st := e.ModelStats()
	if st.HistoryLength != 5 {
		t.Errorf("expected history bounded to 5, got %d", st.HistoryLength)
	}
	if st.ActionsObserved != 20 {
		t.Errorf("expected 20 actions observed, got %d", st.ActionsObserved)
	}
}

func TestGlobalCounterMatchesSaves(t *testing.T) {
	e := newTestEngine(t, nil)
	actions := []types.ActionType{"A", "B", "A", "C", "A", "B"}
	for i, action := range actions {
		track(e, action, int64(i+1))
	}

	st := e.ModelStats()
	if st.ActionsObserved != int64(len(actions)) {
		t.Errorf("expected %d observed, got %d", len(actions), st.ActionsObserved)
	}
	if st.DistinctActions != 3 {
		t.Errorf("expected 3 distinct actions, got %d", st.DistinctActions)
	}
	if st.HistoryLength != len(actions) {
		t.Errorf("expected history %d, got %d", len(actions), st.HistoryLength)
	}
}

func TestTransitionUsesHistoryBeforeAppend(t *testing.T) {
	// After A then B, the L=1 row for pattern "A" holds {B: 1}. If the
	// update appended before counting, the row would be keyed "B".
	e := newTestEngine(t, nil)
	track(e, "A", 1)
	track(e, "B", 2)

	row, ok := e.transitions[1]["A"]
	if !ok {
		t.Fatal("expected transition row for pattern A")
	}
	if row.get("B") != 1 {
		t.Errorf("expected A->B count 1, got %d", row.get("B"))
	}
	if _, ok := e.transitions[1]["B"]; ok {
		t.Error("unexpected transition row for pattern B")
	}
}

func TestNeedsGlobalModel(t *testing.T) {
	params := DefaultParams()
	params.MinActionsThreshold = 3
	e := New(params, registry.New())

	if !e.NeedsGlobalModel() {
		t.Error("empty engine should need the global model")
	}
	for i := 0; i < 3; i++ {
		track(e, "A", int64(i+1))
	}
	if e.NeedsGlobalModel() {
		t.Error("engine past the threshold with transitions should not need the global model")
	}
}

func TestInstallGlobalModelClamps(t *testing.T) {
	e := newTestEngine(t, nil)
	e.InstallGlobalModel(&types.GlobalModel{
		ActionCounts: map[types.ActionType]int64{"A": 1 << 40, "B": -5},
	})

	st := e.ModelStats()
	if st.ActionsObserved != maxGlobalCount {
		t.Errorf("expected counts clamped to %d, got %d", maxGlobalCount, st.ActionsObserved)
	}
}
