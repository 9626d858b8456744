// Package app wires the Aether client subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run keeps the projection in sync and serves the status
// endpoints, and Shutdown tears everything down in order.
//
// For testing, inject replacements via functional options (WithClient,
// WithJournal, WithMetrics, etc.). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/aether/internal/api"
	"github.com/MrWong99/aether/internal/config"
	"github.com/MrWong99/aether/internal/derive"
	"github.com/MrWong99/aether/internal/health"
	"github.com/MrWong99/aether/internal/journal"
	"github.com/MrWong99/aether/internal/observe"
	"github.com/MrWong99/aether/internal/reconcile"
	"github.com/MrWong99/aether/internal/resilience"
	"github.com/MrWong99/aether/internal/session"
	"github.com/MrWong99/aether/pkg/projection"
)

// serverShutdownTimeout bounds the graceful stop of the status server when
// the run context ends.
const serverShutdownTimeout = 5 * time.Second

// App owns all subsystem lifetimes of one campaign mirror.
type App struct {
	cfg *config.Config

	// Injected or created in New.
	client    *api.Client
	journal   journal.Sink
	journals  *config.Registry
	metrics   *observe.Metrics
	promReg   *prometheus.Registry
	logLevel  *slog.LevelVar
	onRender  reconcile.RenderFunc
	onStatus  func(Status)
	listenOvr string

	// Subsystems built in New.
	breaker     *resilience.Breaker
	rec         *reconcile.Reconciler
	reconnector *session.Reconnector
	health      *health.Handler
	server      *http.Server

	renders atomic.Int64
	// sheet is the resolved sheet layout, rebuilt by render. Guarded by the
	// reconciler lock.
	sheet       []derive.Section
	sheetBuilds atomic.Int64

	statMu  sync.Mutex
	status  Status

	addrMu sync.Mutex
	addr   net.Addr

	// closers are called in order during Shutdown.
	closers []func() error

	done     chan struct{}
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithClient injects an API client instead of creating one from config.
func WithClient(c *api.Client) Option {
	return func(a *App) { a.client = c }
}

// WithJournal injects a journal sink instead of resolving one from the
// journal registry. The App closes it on Shutdown.
func WithJournal(s journal.Sink) Option {
	return func(a *App) { a.journal = s }
}

// WithJournalRegistry sets the registry used to resolve the configured
// journal. Defaults to a registry with the built-in journals.
func WithJournalRegistry(r *config.Registry) Option {
	return func(a *App) { a.journals = r }
}

// WithMetrics sets the metrics instance. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithPrometheusRegistry sets the registry served on /metrics. Defaults to
// the global gatherer.
func WithPrometheusRegistry(r *prometheus.Registry) Option {
	return func(a *App) { a.promReg = r }
}

// WithLogLevel hands the App the level variable of the installed logger so
// that config reloads can change verbosity at runtime.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = lv }
}

// WithRender adds a callback fired after every snapshot load and batch. It
// runs under the reconciler lock and must not call back into the App.
func WithRender(fn reconcile.RenderFunc) Option {
	return func(a *App) { a.onRender = fn }
}

// WithStatusHook is called with every new command status.
func WithStatusHook(fn func(Status)) Option {
	return func(a *App) { a.onStatus = fn }
}

// WithListenAddr overrides server.listen_addr. Tests use "127.0.0.1:0".
func WithListenAddr(addr string) Option {
	return func(a *App) { a.listenOvr = addr }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. It does not contact
// the campaign server; the first snapshot is fetched by [App.Run] or
// [App.Sync].
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config must not be nil")
	}
	a := &App{
		cfg:  cfg,
		done: make(chan struct{}),
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.logLevel == nil {
		a.logLevel = new(slog.LevelVar)
		a.logLevel.Set(cfg.Server.LogLevel.Level())
	}

	// ── 1. Journal ───────────────────────────────────────────────────────
	if err := a.initJournal(ctx); err != nil {
		return nil, fmt.Errorf("app: init journal: %w", err)
	}

	// ── 2. API client ────────────────────────────────────────────────────
	if err := a.initClient(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init client: %w", err)
	}

	// ── 3. Reconciler ────────────────────────────────────────────────────
	recOpts := []reconcile.Option{
		reconcile.WithMetrics(a.metrics),
		reconcile.WithRender(a.render),
	}
	if a.journal != nil {
		recOpts = append(recOpts, reconcile.WithJournal(a.journal))
	}
	a.rec = reconcile.New(recOpts...)
	// Closing the reconciler closes the journal.
	a.closers = []func() error{a.rec.Close}

	// ── 4. Reconnector ───────────────────────────────────────────────────
	a.reconnector = session.NewReconnector(session.ReconnectorConfig{
		Source:     a.client,
		Target:     a.rec,
		Reconnect:  cfg.Stream.ReconnectEnabled(),
		MaxRetries: cfg.Stream.MaxRetries,
		Backoff:    cfg.Stream.InitialBackoff,
		MaxBackoff: cfg.Stream.MaxBackoff,
		OnSynced:   a.onSynced,
		OnLost:     a.onLost,
		Metrics:    a.metrics,
	})

	// ── 5. Health + status server ────────────────────────────────────────
	checkers := []health.Checker{
		health.SnapshotChecker(a.rec.Loaded),
		health.StreamChecker(a.rec.Connected),
	}
	if p, ok := a.journal.(interface{ Ping(context.Context) error }); ok {
		checkers = append(checkers, health.ProbeChecker("journal", time.Second, p.Ping))
	}
	if a.breaker != nil {
		checkers = append(checkers, health.Checker{Name: "api", Check: a.checkBreaker})
	}
	a.health = health.New(checkers...)

	if addr := a.listenAddr(); addr != "-" {
		a.server = &http.Server{
			Addr:              addr,
			Handler:           a.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	a.setStatus(Status{Message: "Connecting…", Variant: VariantInfo})
	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initJournal resolves the configured journal unless one was injected.
func (a *App) initJournal(ctx context.Context) error {
	if a.journal != nil {
		return nil
	}
	if a.journals == nil {
		a.journals = config.NewRegistry()
		config.RegisterBuiltinJournals(a.journals)
	}
	sink, err := a.journals.CreateJournal(ctx, a.cfg.Journal)
	if err != nil {
		return err
	}
	if sink != nil {
		slog.Info("journal enabled", "sink", sink.Name())
	}
	a.journal = sink
	return nil
}

// initClient creates the REST client unless one was injected.
func (a *App) initClient() error {
	if a.client != nil {
		return nil
	}
	opts := []api.Option{
		api.WithRole(api.Role(a.cfg.Remote.Role)),
		api.WithTimeout(a.cfg.Remote.RequestTimeout),
		api.WithMetrics(a.metrics),
	}
	if n := a.cfg.Remote.BreakerFailures; n > 0 {
		a.breaker = resilience.New(resilience.Config{
			Name:          a.cfg.Remote.BaseURL,
			MaxFailures:   n,
			ResetTimeout:  a.cfg.Remote.BreakerReset,
			IsFailure:     api.ServerFault,
			OnStateChange: func(_, to resilience.State) {
				a.metrics.RecordBreakerTransition(context.Background(), to.String())
			},
		})
		opts = append(opts, api.WithBreaker(a.breaker))
	}
	c, err := api.New(a.cfg.Remote.BaseURL, a.cfg.Remote.Token, opts...)
	if err != nil {
		return err
	}
	a.client = c
	return nil
}

// checkBreaker fails readiness while REST calls are being rejected.
func (a *App) checkBreaker(context.Context) error {
	if a.breaker.State() == resilience.StateOpen {
		return resilience.ErrOpen
	}
	return nil
}

func (a *App) listenAddr() string {
	if a.listenOvr != "" {
		return a.listenOvr
	}
	return a.cfg.Server.ListenAddr
}

// closeAll releases the journal when New fails after opening it.
func (a *App) closeAll() {
	if a.journal != nil {
		_ = a.journal.Close()
	}
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Client returns the REST client.
func (a *App) Client() *api.Client { return a.client }

// Reconciler returns the projection owner.
func (a *App) Reconciler() *reconcile.Reconciler { return a.rec }

// Renders returns how many times the projection was rendered.
func (a *App) Renders() int64 { return a.renders.Load() }

// Addr returns the bound status server address once Run is listening.
func (a *App) Addr() net.Addr {
	a.addrMu.Lock()
	defer a.addrMu.Unlock()
	return a.addr
}

// View calls fn with the projection under the reconciler lock.
func (a *App) View(fn func(s *projection.Store)) { a.rec.View(fn) }

// render runs under the reconciler lock.
func (a *App) render(s *projection.Store) {
	a.renders.Add(1)
	a.rebuildSheet(s)
	if a.onRender != nil {
		a.onRender(s)
	}
}

func (a *App) onSynced() {
	a.setStatus(Status{Message: "Synced", Variant: VariantSuccess})
}

func (a *App) onLost(err error) {
	if err == nil {
		a.setStatus(Status{Message: "Stream closed, reconnecting…", Variant: VariantInfo})
		return
	}
	a.setStatus(Status{Message: "Connection lost: " + err.Error(), Variant: VariantError})
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Sync fetches a fresh snapshot, the linkable catalog and the event history
// once, without opening the stream.
func (a *App) Sync(ctx context.Context) error {
	if err := a.reconnector.Bootstrap(ctx); err != nil {
		a.setStatus(errorStatus("Sync", err))
		return err
	}
	a.onSynced()
	return nil
}

// Run keeps the projection in sync with the server and serves the status
// endpoints until ctx is cancelled, the stream gives up or Shutdown is
// called.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if a.server != nil {
		ln, err := net.Listen("tcp", a.server.Addr)
		if err != nil {
			return fmt.Errorf("app: listen %s: %w", a.server.Addr, err)
		}
		a.addrMu.Lock()
		a.addr = ln.Addr()
		a.addrMu.Unlock()
		slog.Info("status server listening", "addr", ln.Addr().String())

		g.Go(func() error {
			if err := a.server.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: status server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			select {
			case <-gctx.Done():
			case <-a.done:
			}
			sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), serverShutdownTimeout)
			defer cancel()
			return a.server.Shutdown(sctx)
		})
	}

	g.Go(func() error {
		// The status server goes down with the stream loop.
		defer cancel()
		err := a.reconnector.Run(gctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			a.setStatus(errorStatus("Stream", err))
		}
		return err
	})

	slog.Info("aether running",
		"base_url", a.client.BaseURL(),
		"role", a.client.Role(),
		"reconnect", a.cfg.Stream.ReconnectEnabled(),
	)
	return g.Wait()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops the stream, drains readiness and tears down all subsystems
// in order. It respects the context deadline: if ctx expires before all
// closers finish, remaining closers are skipped and the context error is
// returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		a.health.Drain()
		a.reconnector.Stop()
		close(a.done)

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// ─── Config reload ───────────────────────────────────────────────────────────

// ApplyConfig applies the hot-reloadable part of a config change: the log
// level and the bearer token. A new token forces a resync so the stream
// reconnects with it. Other changes are logged and need a restart.
func (a *App) ApplyConfig(r config.Reload) {
	d := r.Diff
	if d.LogLevelChanged {
		a.logLevel.Set(d.NewLogLevel.Level())
		slog.Info("log level changed", "log_level", d.NewLogLevel)
	}
	if d.TokenChanged {
		a.client.SetToken(d.NewToken)
		if a.breaker != nil {
			a.breaker.Reset()
		}
		a.reconnector.Resync()
		slog.Info("token rotated, resyncing")
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes need a restart", "fields", d.RestartRequired)
	}
}
