// Package reconcile is the single state-mutation pipeline of the client.
//
// A [Reconciler] owns the projection store and the deduplication ledger and
// guards them as one unit. Every batch of events, whether it arrives on the
// live stream, from the REST history endpoint or in a command response,
// passes through [Reconciler.ApplyBatch]: ledger check, reducer, log append,
// then exactly one render callback for the whole batch.
package reconcile

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/aether/internal/journal"
	"github.com/MrWong99/aether/internal/ledger"
	"github.com/MrWong99/aether/internal/observe"
	"github.com/MrWong99/aether/internal/reducer"
	"github.com/MrWong99/aether/internal/snapshot"
	"github.com/MrWong99/aether/pkg/event"
	"github.com/MrWong99/aether/pkg/projection"
	"github.com/MrWong99/aether/pkg/types"
)

// outcomeSeeded marks history events that were already reflected in the
// snapshot and were only appended to the log.
const outcomeSeeded = "seeded"

// RenderFunc is invoked once per snapshot load and once per batch, while the
// reconciler's lock is held. It must not call back into the Reconciler.
type RenderFunc func(s *projection.Store)

// Option configures a [Reconciler].
type Option func(*Reconciler)

// WithRender sets the callback fired after every snapshot load and batch.
func WithRender(fn RenderFunc) Option {
	return func(r *Reconciler) { r.render = fn }
}

// WithJournal records every accepted event in sink. Journal errors are
// logged and counted but never affect the projection.
func WithJournal(sink journal.Sink) Option {
	return func(r *Reconciler) { r.journal = sink }
}

// WithMetrics sets the metrics instance. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Reconciler) { r.metrics = m }
}

// WithLogger sets the base logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) { r.logger = l }
}

// Result summarises one batch.
type Result struct {
	Applied    int
	Logged     int
	Ignored    int
	Malformed  int
	Seeded     int
	Duplicates int

	// Accepted holds the events that passed the ledger, in batch order.
	Accepted []event.Event
}

func (res *Result) count(o reducer.Outcome) {
	switch o {
	case reducer.Applied:
		res.Applied++
	case reducer.Logged:
		res.Logged++
	case reducer.Ignored:
		res.Ignored++
	case reducer.Malformed:
		res.Malformed++
	}
}

// Reconciler serialises all access to the projection store.
type Reconciler struct {
	mu     sync.Mutex
	store  *projection.Store
	ledger *ledger.Ledger
	cursor int64
	loaded bool

	render  RenderFunc
	journal journal.Sink
	metrics *observe.Metrics
	logger  *slog.Logger

	// connMu guards conn. It is never held together with mu.
	connMu    sync.Mutex
	conn      *websocket.Conn
	connected atomic.Bool
}

// New creates a Reconciler with an empty store.
func New(opts ...Option) *Reconciler {
	r := &Reconciler{
		store:  projection.New(),
		ledger: ledger.New(),
	}
	for _, o := range opts {
		o(r)
	}
	if r.metrics == nil {
		r.metrics = observe.DefaultMetrics()
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// LoadSnapshot starts a new snapshot epoch: the store is replaced, the
// ledger reset and the cursor moved to resp.LastSeq.
func (r *Reconciler) LoadSnapshot(ctx context.Context, resp snapshot.Response) {
	r.mu.Lock()
	snapshot.Load(r.store, r.ledger, resp.Snapshot)
	r.cursor = resp.LastSeq
	r.loaded = true
	r.fireRender()
	r.mu.Unlock()

	r.metrics.SnapshotsLoaded.Add(ctx, 1)
	r.logger.InfoContext(ctx, "snapshot loaded",
		"campaign_id", resp.Snapshot.ID,
		"last_seq", resp.LastSeq,
	)
}

// SetLinkables replaces the catalog of chat-linkable entities and renders.
func (r *Reconciler) SetLinkables(l types.Linkables) {
	r.mu.Lock()
	r.store.Linkables = l
	r.fireRender()
	r.mu.Unlock()
}

// SeedLog feeds the event history fetched after a snapshot load. Events at or
// below the cursor are already reflected in the snapshot; they are recorded
// in the ledger and the log but not reduced. Newer events are reduced.
func (r *Reconciler) SeedLog(ctx context.Context, events []event.Event) Result {
	return r.apply(ctx, "reconcile.SeedLog", events, true)
}

// ApplyBatch runs events through the ledger and the reducer in array order,
// appends the accepted ones to the log and fires the render callback once,
// even when every event was a duplicate.
func (r *Reconciler) ApplyBatch(ctx context.Context, events []event.Event) Result {
	return r.apply(ctx, "reconcile.ApplyBatch", events, false)
}

func (r *Reconciler) apply(ctx context.Context, spanName string, events []event.Event, seed bool) Result {
	ctx, span := observe.StartSpan(ctx, spanName,
		trace.WithAttributes(attribute.Int("batch_size", len(events))),
	)
	defer span.End()

	var (
		res     Result
		entries []journal.Entry
		log     = observe.LoggerFrom(ctx, r.logger)
	)
	start := time.Now()

	r.mu.Lock()
	campaign := r.store.CampaignID
	for _, e := range events {
		if !r.ledger.Observe(e) {
			res.Duplicates++
			r.metrics.RecordDuplicate(ctx, string(e.Kind))
			continue
		}
		res.Accepted = append(res.Accepted, e)
		r.store.Log = append(r.store.Log, e)

		outcome := outcomeSeeded
		if seed && e.HasSeq() && *e.Seq <= r.cursor {
			res.Seeded++
		} else {
			o := reducer.Apply(r.store, e)
			res.count(o)
			outcome = o.String()
			if o == reducer.Malformed {
				log.WarnContext(ctx, "malformed event dropped", "kind", e.Kind, "seq", e.SeqOr(-1))
			}
		}
		if e.HasSeq() && *e.Seq > r.cursor {
			r.cursor = *e.Seq
		}
		r.metrics.RecordEvent(ctx, string(e.Kind), outcome)
		if r.journal != nil {
			entries = append(entries, journal.NewEntry(campaign, e, outcome))
		}
	}
	r.fireRender()
	r.mu.Unlock()

	r.metrics.RecordBatch(ctx, len(events), time.Since(start))
	span.SetAttributes(
		attribute.Int("accepted", len(res.Accepted)),
		attribute.Int("duplicates", res.Duplicates),
	)
	log.DebugContext(ctx, "batch applied",
		"batch_size", len(events),
		"applied", res.Applied,
		"duplicates", res.Duplicates,
		"seeded", res.Seeded,
	)

	if len(entries) > 0 {
		if err := r.journal.Append(ctx, entries); err != nil {
			r.metrics.RecordJournalError(ctx, r.journal.Name())
			log.WarnContext(ctx, "journal append failed", "sink", r.journal.Name(), "err", err)
		}
	}
	return res
}

// fireRender must be called with mu held.
func (r *Reconciler) fireRender() {
	if r.render != nil {
		r.render(r.store)
	}
}

// View calls fn with the store while holding the lock. fn must not retain
// the store or call back into the Reconciler.
func (r *Reconciler) View(fn func(s *projection.Store)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.store)
}

// UpdateView lets fn change transient view state (selection, collapse
// toggles) under the lock. When fn reports a change the render callback
// fires once. Entities must only change through [Reconciler.ApplyBatch].
func (r *Reconciler) UpdateView(fn func(s *projection.Store) bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !fn(r.store) {
		return false
	}
	r.fireRender()
	return true
}

// Cursor returns the highest sequence number known to the projection: the
// snapshot's last_seq or any later event applied since.
func (r *Reconciler) Cursor() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cursor
}

// Loaded reports whether a snapshot has been loaded.
func (r *Reconciler) Loaded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loaded
}

// Connected reports whether a stream connection is currently open.
func (r *Reconciler) Connected() bool { return r.connected.Load() }

// Close drops the live stream, if any, and closes the journal sink.
func (r *Reconciler) Close() error {
	r.dropConn("reconciler closed")
	if r.journal != nil {
		return r.journal.Close()
	}
	return nil
}
