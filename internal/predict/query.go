// internal/predict/query.go
package predict

import (
	"math"
	"time"

	"github.com/user/preflight/internal/types"
)

// tieEpsilon is the score margin a later candidate must clear to unseat
// an earlier one. Within the margin the first insertion wins, keeping
// repeated queries deterministic.
const tieEpsilon = 1e-6

// Predict returns the most likely next action for the given query time
// (ms since epoch) and the component bound to it. It is a pure function
// of the model state and nowMs: equal inputs yield equal outputs. The
// result is the zero Prediction when the model is empty.
func (e *Engine) Predict(nowMs int64) types.Prediction {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.history) == 0 && e.global.len() == 0 {
		return types.Prediction{}
	}

	pseq := e.sequenceDistribution(nowMs)
	ptime := e.timeDistribution(nowMs)

	score := newAccumulator()
	for _, action := range pseq.keys {
		score.add(action, e.params.WeightSequence*pseq.get(action))
	}
	for _, action := range ptime.keys {
		score.add(action, e.params.WeightTime*ptime.get(action))
	}

	best, ok := score.argMax(tieEpsilon)
	if !ok {
		// No sequence or time evidence: fall back to the most frequent
		// action overall.
		best, ok = e.global.argMax()
		if !ok {
			return types.Prediction{}
		}
	}

	comp, _ := e.registry.ComponentByAction(best)
	return types.Prediction{Action: best, ComponentID: comp}
}

// sequenceDistribution blends smoothed transition evidence across all
// context lengths whose pattern matches the tail of the history, each
// length decayed by the age of the action that opened its window.
func (e *Engine) sequenceDistribution(nowMs int64) *accumulator {
	pseq := newAccumulator()
	maxL := min(e.params.MaxPatternLength, len(e.history))
	for l := 1; l <= maxL; l++ {
		rows, ok := e.transitions[l]
		if !ok {
			continue
		}
		row, ok := rows[patternKey(e.history[len(e.history)-l:])]
		if !ok {
			continue
		}
		total := float64(row.total())
		alpha := e.params.SmoothingFactor
		denom := total + alpha*float64(row.len())
		if denom == 0 {
			continue
		}
		dt := float64(nowMs - e.history[len(e.history)-l].Timestamp)
		decay := math.Exp(-e.params.DecayLambda * dt)
		for _, action := range row.keys {
			smoothed := (float64(row.get(action)) + alpha) / denom
			pseq.add(action, smoothed*decay)
		}
	}
	pseq.normalize()
	return pseq
}

// timeDistribution is the share each action holds of the current hour's
// observations. Empty when the hour has none.
func (e *Engine) timeDistribution(nowMs int64) *accumulator {
	ptime := newAccumulator()
	hour := time.UnixMilli(nowMs).Hour()
	total := e.times.totalAt(hour)
	if total == 0 {
		return ptime
	}
	for _, action := range e.times.keys {
		ptime.add(action, float64(e.times.countAt(action, hour))/float64(total))
	}
	return ptime
}
