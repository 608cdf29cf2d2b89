// Package circuitbreaker stops calling a failing dependency for a cool-down
// period, then lets a few probe calls through before closing again. The
// prediction cache wraps its remote cache calls in one so a dead cache node
// costs one fast error per request instead of a network timeout.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned by Do while the circuit is open.
var ErrOpen = errors.New("circuit breaker open")

// State is the breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config holds breaker parameters. Zero values fall back to defaults.
type Config struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit.
	FailureThreshold int
	// SuccessThreshold is the number of half-open successes that closes it.
	SuccessThreshold int
	// Timeout is how long the circuit stays open before probing.
	Timeout time.Duration
	// Name identifies the protected dependency in callbacks.
	Name string
	// OnStateChange, when set, is called outside the lock on every transition.
	OnStateChange func(name string, from, to State)
}

// Breaker is safe for concurrent use.
type Breaker struct {
	cfg Config
	now func() time.Time

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	openedAt  time.Time
}

// New returns a closed Breaker.
func New(cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Breaker{cfg: cfg, now: time.Now}
}

// Do runs fn unless the circuit is open. Context cancellation is not counted
// as a dependency failure.
func (b *Breaker) Do(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.before(); err != nil {
		return err
	}
	err := fn()
	if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return err
	}
	b.after(err == nil)
	return err
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) before() error {
	b.mu.Lock()
	if b.state != StateOpen {
		b.mu.Unlock()
		return nil
	}
	if b.now().Sub(b.openedAt) < b.cfg.Timeout {
		b.mu.Unlock()
		return ErrOpen
	}
	b.successes = 0
	notify := b.transitionLocked(StateHalfOpen)
	b.mu.Unlock()
	notify()
	return nil
}

func (b *Breaker) after(ok bool) {
	b.mu.Lock()
	notify := func() {}
	switch {
	case ok && b.state == StateHalfOpen:
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.failures = 0
			notify = b.transitionLocked(StateClosed)
		}
	case ok:
		b.failures = 0
	case b.state == StateHalfOpen:
		b.openedAt = b.now()
		notify = b.transitionLocked(StateOpen)
	default:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold && b.state == StateClosed {
			b.failures = 0
			b.openedAt = b.now()
			notify = b.transitionLocked(StateOpen)
		}
	}
	b.mu.Unlock()
	notify()
}

// transitionLocked sets the new state and returns the callback to run after
// the lock is released. Caller holds mu.
func (b *Breaker) transitionLocked(to State) func() {
	from := b.state
	b.state = to
	if b.cfg.OnStateChange == nil || from == to {
		return func() {}
	}
	name, cb := b.cfg.Name, b.cfg.OnStateChange
	return func() { cb(name, from, to) }
}
