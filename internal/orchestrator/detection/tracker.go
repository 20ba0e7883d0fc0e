// Package detection turns per-frame probabilities into verdict transitions.
package detection

import "sync"

// Verdict is the binary outcome for one frame.
type Verdict int

const (
	NotMonkey Verdict = iota
	Monkey
)

func (v Verdict) String() string {
	if v == Monkey {
		return "monkey"
	}
	return "not_monkey"
}

// Result of one evaluation.
type Result struct {
	Verdict      Verdict
	Transitioned bool
}

// Tracker remembers the last verdict. The zero value starts at NotMonkey.
type Tracker struct {
	mu   sync.Mutex
	last Verdict
}

// NewTracker creates a tracker in the NotMonkey state.
func NewTracker() *Tracker { return &Tracker{} }

// Evaluate classifies p against threshold (strictly greater counts as a
// detection) and reports whether the verdict changed since the last call.
func (t *Tracker) Evaluate(p, threshold float64) Result {
	v := NotMonkey
	if p > threshold {
		v = Monkey
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	changed := v != t.last
	t.last = v
	return Result{Verdict: v, Transitioned: changed}
}

// Last returns the most recent verdict.
func (t *Tracker) Last() Verdict {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

// Reset forgets the last verdict.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.last = NotMonkey
	t.mu.Unlock()
}
