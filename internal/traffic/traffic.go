// Package traffic keeps sliding windows of prediction request outcomes. Health
// reporting reads them to decide whether the service is overloaded or degraded.
package traffic

import (
	"sync"
	"time"
)

// Outcome classifies how a request on a tracked route ended.
type Outcome int

const (
	// Success is a request answered with an estimate.
	Success Outcome = iota
	// Rejected is a request refused for bad input (4xx other than 429).
	// Rejections count toward load but not toward the error rate.
	Rejected
	// Failed is a request that hit an internal error.
	Failed
	// Denied is a request turned away by the rate limiter.
	Denied

	numOutcomes
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Rejected:
		return "rejected"
	case Failed:
		return "failed"
	case Denied:
		return "denied"
	default:
		return "unknown"
	}
}

// retention bounds how long timestamps are kept regardless of query window.
const retention = 5 * time.Minute

// Tracker records outcome timestamps. The zero value is ready to use.
type Tracker struct {
	mu    sync.Mutex
	times [numOutcomes][]time.Time

	// now is overridable in tests.
	now func() time.Time
}

// New returns a Tracker using the wall clock.
func New() *Tracker {
	return &Tracker{}
}

func (t *Tracker) clock() time.Time {
	if t.now != nil {
		return t.now()
	}
	return time.Now()
}

// Record appends one outcome at the current time.
func (t *Tracker) Record(o Outcome) {
	t.RecordN(o, 1)
}

// RecordN appends n outcomes at the current time.
func (t *Tracker) RecordN(o Outcome, n int) {
	if o < 0 || o >= numOutcomes || n <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clock()
	for i := 0; i < n; i++ {
		t.times[o] = append(t.times[o], now)
	}
	t.pruneLocked(now)
}

// Count returns the number of o outcomes within window.
func (t *Tracker) Count(o Outcome, window time.Duration) int {
	if o < 0 || o >= numOutcomes {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return countSince(t.times[o], t.clock().Add(-window))
}

// Total returns the number of outcomes of every kind within window.
func (t *Tracker) Total(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.clock().Add(-window)
	n := 0
	for o := range t.times {
		n += countSince(t.times[o], cutoff)
	}
	return n
}

// ErrorRate returns failures and the number of answered requests (successes,
// rejections and failures) within window. Denials are excluded.
func (t *Tracker) ErrorRate(window time.Duration) (failed, answered int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.clock().Add(-window)
	failed = countSince(t.times[Failed], cutoff)
	answered = failed + countSince(t.times[Success], cutoff) + countSince(t.times[Rejected], cutoff)
	return failed, answered
}

// Reset drops every recorded outcome.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for o := range t.times {
		t.times[o] = nil
	}
}

// countSince counts timestamps at or after cutoff. Slices are append-ordered,
// so the scan stops at the first entry inside the window.
func countSince(times []time.Time, cutoff time.Time) int {
	for i, ts := range times {
		if !ts.Before(cutoff) {
			return len(times) - i
		}
	}
	return 0
}

// pruneLocked drops timestamps older than retention. Caller holds mu.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-retention)
	for o := range t.times {
		times := t.times[o]
		i := 0
		for ; i < len(times) && times[i].Before(cutoff); i++ {
		}
		if i > 0 {
			t.times[o] = append(times[:0], times[i:]...)
		}
	}
}
