// Package resilience guards calls to the campaign server.
//
// [Breaker] is a three-state circuit breaker (closed, open, half-open). While
// the server keeps failing, callers get [ErrOpen] immediately instead of
// waiting out another request timeout. Only failures the classifier accepts
// count against the breaker, so a rejected command or a cancelled context
// never trips it.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned by [Breaker.Do] when calls are being rejected.
var ErrOpen = errors.New("resilience: circuit open")

// State is the operating mode of a [Breaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrOpen] until the reset timeout elapses.
	StateOpen

	// StateHalfOpen lets a limited number of probe calls through. Enough
	// successes close the breaker, any failure opens it again.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config holds the tuning knobs for a [Breaker].
type Config struct {
	// Name labels log lines, e.g. the server base URL.
	Name string

	// MaxFailures is the number of consecutive failures that open the
	// breaker. Default: 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before probing.
	// Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is the number of successful probes needed to close the
	// breaker. Default: 1.
	HalfOpenMax int

	// IsFailure decides which errors count against the breaker. Defaults to
	// every non-nil error except context cancellation.
	IsFailure func(error) bool

	// OnStateChange, if set, is called after every transition. It runs
	// without the breaker lock held.
	OnStateChange func(from, to State)
}

// Breaker implements the circuit breaker pattern.
type Breaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	halfOpenMax  int
	isFailure    func(error) bool
	onChange     func(from, to State)
	now          func() time.Time

	mu         sync.Mutex
	state      State
	failures   int
	openedAt   time.Time
	probes     int
	probeWins  int
	generation uint64
}

// New creates a [Breaker]. Zero-value fields of cfg get their defaults.
func New(cfg Config) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 1
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = countable
	}
	return &Breaker{
		name:         cfg.Name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		halfOpenMax:  cfg.HalfOpenMax,
		isFailure:    cfg.IsFailure,
		onChange:     cfg.OnStateChange,
		now:          time.Now,
	}
}

func countable(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}

// Do runs fn unless the breaker is rejecting calls, in which case it returns
// [ErrOpen] without calling fn. The error from fn is returned unchanged.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	gen, ok := b.admit()
	if !ok {
		return ErrOpen
	}
	err := fn(ctx)
	b.record(gen, err)
	return err
}

// admit reports whether a call may proceed and returns the generation it
// belongs to. Results from an older generation are ignored.
func (b *Breaker) admit() (uint64, bool) {
	b.mu.Lock()
	var from, to State
	changed := false
	defer func() {
		b.mu.Unlock()
		if changed {
			b.notify(from, to)
		}
	}()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.resetTimeout {
			return 0, false
		}
		from, to, changed = b.state, StateHalfOpen, true
		b.setState(StateHalfOpen)
		fallthrough
	case StateHalfOpen:
		if b.probes >= b.halfOpenMax {
			return 0, false
		}
		b.probes++
	}
	return b.generation, true
}

func (b *Breaker) record(gen uint64, err error) {
	b.mu.Lock()
	from := b.state
	if gen != b.generation {
		b.mu.Unlock()
		return
	}

	failed := err != nil && b.isFailure(err)
	switch b.state {
	case StateClosed:
		if !failed {
			b.failures = 0
			break
		}
		b.failures++
		if b.failures >= b.maxFailures {
			b.setState(StateOpen)
		}
	case StateHalfOpen:
		switch {
		case failed:
			b.setState(StateOpen)
		case err != nil:
			// Not the server's fault; give the probe slot back.
			b.probes--
		default:
			b.probeWins++
			if b.probeWins >= b.halfOpenMax {
				b.setState(StateClosed)
			}
		}
	}
	to := b.state
	b.mu.Unlock()

	if from != to {
		b.notify(from, to)
	}
}

// setState transitions and resets the per-state counters. Callers hold b.mu.
func (b *Breaker) setState(s State) {
	b.state = s
	b.generation++
	b.failures = 0
	b.probes = 0
	b.probeWins = 0
	if s == StateOpen {
		b.openedAt = b.now()
	}
}

func (b *Breaker) notify(from, to State) {
	level := slog.LevelInfo
	if to == StateOpen {
		level = slog.LevelWarn
	}
	slog.Log(context.Background(), level, "resilience: breaker state changed",
		"name", b.name, "from", from.String(), "to", to.String())
	if b.onChange != nil {
		b.onChange(from, to)
	}
}

// State returns the current state. An open breaker whose reset timeout has
// elapsed reports [StateHalfOpen]; the transition itself happens on the next
// call.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.resetTimeout {
		return StateHalfOpen
	}
	return b.state
}

// Reset forces the breaker closed, e.g. after the token was replaced.
func (b *Breaker) Reset() {
	b.mu.Lock()
	from := b.state
	b.setState(StateClosed)
	b.mu.Unlock()
	if from != StateClosed {
		b.notify(from, StateClosed)
	}
}
