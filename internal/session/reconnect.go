// Package session keeps a projection attached to a campaign server across
// connection failures.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/aether/internal/observe"
	"github.com/MrWong99/aether/internal/reconcile"
	"github.com/MrWong99/aether/internal/snapshot"
	"github.com/MrWong99/aether/pkg/event"
	"github.com/MrWong99/aether/pkg/types"
)

// Default reconnection parameters.
const (
	defaultMaxRetries = 10
	defaultBackoff    = 1 * time.Second
	defaultMaxBackoff = 30 * time.Second
)

// ErrRetriesExhausted is returned by [Reconnector.Run] when MaxRetries
// consecutive attempts failed.
var ErrRetriesExhausted = errors.New("session: reconnection retries exhausted")

// Source is the REST side of a campaign connection. *api.Client satisfies
// this interface.
type Source interface {
	Snapshot(ctx context.Context) (snapshot.Response, error)
	Events(ctx context.Context, afterSeq int64) ([]event.Event, error)
	Linkables(ctx context.Context) (types.Linkables, error)
	BaseURL() string
	Token() string
}

// Target receives the state. *reconcile.Reconciler satisfies this interface.
type Target interface {
	LoadSnapshot(ctx context.Context, resp snapshot.Response)
	SetLinkables(l types.Linkables)
	SeedLog(ctx context.Context, events []event.Event) reconcile.Result
	Stream(ctx context.Context, baseURL, token string, afterSeq int64) error
	Cursor() int64
}

// Reconnector runs the bootstrap-then-stream cycle and repeats it when the
// stream drops.
//
// Every attempt starts from a fresh snapshot: the snapshot is loaded (which
// resets the deduplication ledger), the linkable catalog and the event
// history are fetched, and a new stream is opened after the snapshot's
// cursor. Failed attempts back off exponentially; an attempt whose stream
// was live resets the backoff.
//
// All methods are safe for concurrent use.
type Reconnector struct {
	source     Source
	target     Target
	reconnect  bool
	maxRetries int
	backoff    time.Duration
	maxBackoff time.Duration
	onSynced   func()
	onLost     func(error)
	metrics    *observe.Metrics
	after      func(time.Duration) <-chan time.Time

	mu            sync.Mutex
	cancelAttempt context.CancelFunc
	resync        bool
	done          chan struct{}
	stopOnce      sync.Once
}

// ReconnectorConfig configures a [Reconnector].
type ReconnectorConfig struct {
	// Source fetches snapshots and history. Required.
	Source Source

	// Target receives the projection. Required.
	Target Target

	// Reconnect enables the retry loop. When false, [Reconnector.Run]
	// returns as soon as the first stream ends.
	Reconnect bool

	// MaxRetries is the number of consecutive failed attempts before giving
	// up. Defaults to 10 if zero.
	MaxRetries int

	// Backoff is the initial backoff duration between retries. Doubles each
	// attempt up to MaxBackoff. Defaults to 1s if zero.
	Backoff time.Duration

	// MaxBackoff is the upper limit on backoff duration. Defaults to 30s if zero.
	MaxBackoff time.Duration

	// OnSynced is called after every successful bootstrap. May be nil.
	OnSynced func()

	// OnLost is called when a stream or bootstrap fails, with the cause
	// (nil for a normal close by the server). May be nil.
	OnLost func(error)

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// NewReconnector creates a new [Reconnector] with the given configuration.
func NewReconnector(cfg ReconnectorConfig) *Reconnector {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = defaultBackoff
	}
	maxBackoff := cfg.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = defaultMaxBackoff
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Reconnector{
		source:     cfg.Source,
		target:     cfg.Target,
		reconnect:  cfg.Reconnect,
		maxRetries: maxRetries,
		backoff:    backoff,
		maxBackoff: maxBackoff,
		onSynced:   cfg.OnSynced,
		onLost:     cfg.OnLost,
		metrics:    metrics,
		after:      time.After,
		done:       make(chan struct{}),
	}
}

// Bootstrap loads a fresh snapshot into the target, then the linkable
// catalog and the event history. Only the snapshot is required; failures of
// the other two are logged and leave the previous values in place.
func (r *Reconnector) Bootstrap(ctx context.Context) error {
	log := observe.Logger(ctx)

	resp, err := r.source.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("session: snapshot: %w", err)
	}
	r.target.LoadSnapshot(ctx, resp)

	if l, err := r.source.Linkables(ctx); err != nil {
		log.Warn("linkables fetch failed", "err", err)
	} else {
		r.target.SetLinkables(l)
	}

	events, err := r.source.Events(ctx, 0)
	if err != nil {
		log.Warn("event history fetch failed", "err", err)
		return nil
	}
	res := r.target.SeedLog(observe.WithSource(ctx, "history"), events)
	log.Debug("event history seeded",
		"events", len(events),
		"seeded", res.Seeded,
		"applied", res.Applied,
	)
	return nil
}

// Run bootstraps and streams until ctx is cancelled, [Reconnector.Stop] is
// called, or retries are exhausted. It returns nil after Stop, ctx.Err() on
// cancellation and the last failure when reconnecting is disabled.
func (r *Reconnector) Run(ctx context.Context) error {
	failures := 0
	backoff := r.backoff

	for {
		attemptCtx, cancel := context.WithCancel(ctx)
		if !r.beginAttempt(cancel) {
			cancel()
			return nil
		}
		live, err := r.attempt(attemptCtx)
		cancel()
		resync := r.endAttempt()

		if r.stopped() {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if resync {
			slog.Info("resynchronising with server")
			failures, backoff = 0, r.backoff
			continue
		}

		if r.onLost != nil {
			r.onLost(err)
		}
		if !r.reconnect {
			return err
		}
		if live {
			failures, backoff = 0, r.backoff
		}
		failures++
		if failures > r.maxRetries {
			slog.Error("reconnection failed after max retries",
				"max_retries", r.maxRetries,
				"err", err,
			)
			return fmt.Errorf("%w: %w", ErrRetriesExhausted, err)
		}

		slog.Warn("connection lost, reconnecting",
			"attempt", failures,
			"max_retries", r.maxRetries,
			"backoff", backoff,
			"err", err,
		)
		r.metrics.StreamReconnects.Add(ctx, 1)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.done:
			return nil
		case <-r.after(backoff):
		}

		backoff *= 2
		if backoff > r.maxBackoff {
			backoff = r.maxBackoff
		}
	}
}

// attempt runs one bootstrap and stream. live reports whether the stream
// connected before it ended.
func (r *Reconnector) attempt(ctx context.Context) (live bool, err error) {
	if err := r.Bootstrap(ctx); err != nil {
		return false, err
	}
	if r.onSynced != nil {
		r.onSynced()
	}
	err = r.target.Stream(ctx, r.source.BaseURL(), r.source.Token(), r.target.Cursor())
	return !errors.Is(err, reconcile.ErrDial), err
}

// Resync drops the current stream and starts over from a fresh snapshot
// without counting a failure. It is used after an import replaced the
// campaign on the server, which produces no events.
func (r *Reconnector) Resync() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancelAttempt != nil {
		r.resync = true
		r.cancelAttempt()
	}
}

// Stop halts [Reconnector.Run] and drops the current stream. Safe to call
// multiple times.
func (r *Reconnector) Stop() {
	r.stopOnce.Do(func() {
		close(r.done)
	})
	r.mu.Lock()
	if r.cancelAttempt != nil {
		r.cancelAttempt()
	}
	r.mu.Unlock()
}

func (r *Reconnector) beginAttempt(cancel context.CancelFunc) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped() {
		return false
	}
	r.cancelAttempt = cancel
	r.resync = false
	return true
}

func (r *Reconnector) endAttempt() (resync bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelAttempt = nil
	return r.resync
}

func (r *Reconnector) stopped() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}
