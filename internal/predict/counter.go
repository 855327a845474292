// internal/predict/counter.go
package predict

import "github.com/user/preflight/internal/types"

// counter is an insertion-ordered count map. The model's determinism
// depends on iteration order: Go maps randomize it, so every map the
// query path iterates keeps its key order explicitly.
type counter[K ~string] struct {
	keys []K
	vals map[K]int64
}

func newCounter[K ~string]() *counter[K] {
	return &counter[K]{vals: make(map[K]int64)}
}

func (c *counter[K]) add(k K, n int64) {
	if _, ok := c.vals[k]; !ok {
		c.keys = append(c.keys, k)
	}
	c.vals[k] += n
}

func (c *counter[K]) get(k K) int64 {
	return c.vals[k]
}

func (c *counter[K]) len() int {
	return len(c.keys)
}

func (c *counter[K]) total() int64 {
	var sum int64
	for _, v := range c.vals {
		sum += v
	}
	return sum
}

// argMax returns the first-inserted key holding the maximum count.
func (c *counter[K]) argMax() (K, bool) {
	var best K
	if len(c.keys) == 0 {
		return best, false
	}
	best = c.keys[0]
	for _, k := range c.keys[1:] {
		if c.vals[k] > c.vals[best] {
			best = k
		}
	}
	return best, true
}

// hourTable tracks per-action hour-of-day counts, insertion-ordered by
// action.
type hourTable struct {
	keys  []types.ActionType
	hours map[types.ActionType]*[24]int64
}

func newHourTable() *hourTable {
	return &hourTable{hours: make(map[types.ActionType]*[24]int64)}
}

func (t *hourTable) add(action types.ActionType, hour int, n int64) {
	row, ok := t.hours[action]
	if !ok {
		row = new([24]int64)
		t.hours[action] = row
		t.keys = append(t.keys, action)
	}
	row[hour] += n
}

func (t *hourTable) countAt(action types.ActionType, hour int) int64 {
	row, ok := t.hours[action]
	if !ok {
		return 0
	}
	return row[hour]
}

func (t *hourTable) totalAt(hour int) int64 {
	var sum int64
	for _, row := range t.hours {
		sum += row[hour]
	}
	return sum
}

// accumulator is an insertion-ordered float map used by the query path
// for the sequence, time, and combined score distributions.
type accumulator struct {
	keys []types.ActionType
	vals map[types.ActionType]float64
}

func newAccumulator() *accumulator {
	return &accumulator{vals: make(map[types.ActionType]float64)}
}

func (a *accumulator) add(k types.ActionType, v float64) {
	if _, ok := a.vals[k]; !ok {
		a.keys = append(a.keys, k)
	}
	a.vals[k] += v
}

func (a *accumulator) get(k types.ActionType) float64 {
	return a.vals[k]
}

// normalize scales the values to sum to 1. A zero sum leaves the values
// untouched.
func (a *accumulator) normalize() {
	var sum float64
	for _, v := range a.vals {
		sum += v
	}
	if sum == 0 {
		return
	}
	for k := range a.vals {
		a.vals[k] /= sum
	}
}

// argMax returns the first-inserted key whose value is not exceeded by a
// later one by more than eps. Ties resolve to the earlier insertion.
func (a *accumulator) argMax(eps float64) (types.ActionType, bool) {
	if len(a.keys) == 0 {
		return "", false
	}
	best := a.keys[0]
	for _, k := range a.keys[1:] {
		if a.vals[k] > a.vals[best]+eps {
			best = k
		}
	}
	return best, true
}
