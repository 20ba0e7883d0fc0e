// Package resilience guards calls to the classification server: retry with
// backoff while a model loads, and a circuit breaker around per-frame
// predictions.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	apperrors "github.com/GriffinCanCode/monkey-alert/internal/errors"
)

// State represents circuit breaker state
type State uint32

const (
	Closed   State = iota // Normal operation
	Open                  // Failing fast
	HalfOpen              // One probe in flight
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned while the breaker fails fast.
var ErrOpen = errors.New("circuit breaker open")

// Breaker stops calling a dependency after repeated failures. Once
// ResetTimeout has passed it admits a single probe at a time until
// HalfOpenSuccesses probes succeed in a row.
type Breaker struct {
	cfg       Config
	now       func() time.Time
	state     atomic.Uint32
	failures  atomic.Int32
	successes atomic.Int32
	openedAt  atomic.Int64 // unix nano
	probing   atomic.Bool
	hook      func(from, to State)
}

// New creates a breaker with config
func New(cfg Config) *Breaker {
	b := &Breaker{cfg: cfg.withDefaults(), now: time.Now}
	b.state.Store(uint32(Closed))
	return b
}

// WithHook sets state change callback (for metrics/logging)
func (b *Breaker) WithHook(fn func(from, to State)) *Breaker {
	b.hook = fn
	return b
}

// WithNow replaces the time source.
func (b *Breaker) WithNow(now func() time.Time) *Breaker {
	b.now = now
	return b
}

// Name identifies the guarded dependency in logs.
func (b *Breaker) Name() string { return b.cfg.Name }

// Allow reports whether a call may proceed.
func (b *Breaker) Allow() error {
	switch State(b.state.Load()) {
	case Open:
		if b.now().Sub(time.Unix(0, b.openedAt.Load())) < b.cfg.ResetTimeout {
			return ErrOpen
		}
		if !b.probing.CompareAndSwap(false, true) {
			return ErrOpen
		}
		b.transition(Open, HalfOpen)
		return nil
	case HalfOpen:
		if b.probing.CompareAndSwap(false, true) {
			return nil
		}
		return ErrOpen
	default:
		return nil
	}
}

// Success records successful call
func (b *Breaker) Success() {
	defer b.probing.Store(false)
	switch State(b.state.Load()) {
	case HalfOpen:
		if b.successes.Add(1) >= int32(b.cfg.HalfOpenSuccesses) {
			b.transition(HalfOpen, Closed)
		}
	case Closed:
		b.failures.Store(0)
	}
}

// Failure records failed call
func (b *Breaker) Failure() {
	defer b.probing.Store(false)
	count := b.failures.Add(1)
	switch State(b.state.Load()) {
	case HalfOpen:
		b.trip(HalfOpen)
	case Closed:
		if count >= int32(b.cfg.Threshold) {
			b.trip(Closed)
		}
	}
}

// release gives back a probe slot without recording an outcome.
func (b *Breaker) release() { b.probing.Store(false) }

// State returns current state
func (b *Breaker) State() State {
	return State(b.state.Load())
}

// Reset forces the breaker closed, e.g. after a fresh model load.
func (b *Breaker) Reset() {
	b.probing.Store(false)
	b.transition(b.State(), Closed)
}

func (b *Breaker) trip(from State) {
	b.openedAt.Store(b.now().UnixNano())
	b.transition(from, Open)
}

// transition moves from -> to; a concurrent transition wins.
func (b *Breaker) transition(from, to State) {
	if from == to || !b.state.CompareAndSwap(uint32(from), uint32(to)) {
		return
	}

	b.successes.Store(0)
	log := slog.With("breaker", b.cfg.Name)
	switch to {
	case Closed:
		b.failures.Store(0)
		log.Info("circuit breaker closed")
	case Open:
		log.Warn("circuit breaker opened", "failures", b.failures.Load(), "retry_in", b.cfg.ResetTimeout)
	case HalfOpen:
		log.Info("circuit breaker probing")
	}

	if b.hook != nil {
		b.hook(from, to)
	}
}

// Call runs fn under b. A call on an already cancelled context never
// reaches fn, and cancellations are not counted as failures: they say
// nothing about the dependency.
func Call[T any](ctx context.Context, b *Breaker, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	if err := b.Allow(); err != nil {
		return zero, err
	}
	result, err := fn(ctx)
	switch {
	case err == nil:
		b.Success()
		return result, nil
	case isCancellation(err):
		b.release()
	default:
		b.Failure()
	}
	return zero, err
}

func isCancellation(err error) bool {
	if errors.Is(err, context.Canceled) || apperrors.IsCode(err, apperrors.CodeCancelled) {
		return true
	}
	if s, ok := status.FromError(err); ok {
		return s.Code() == codes.Canceled
	}
	return false
}
