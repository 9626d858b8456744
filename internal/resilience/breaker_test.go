package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var errDown = errors.New("server down")

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestBreaker(cfg Config) (*Breaker, *clock) {
	b := New(cfg)
	c := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	b.now = c.now
	return b, c
}

func fail(context.Context) error { return errDown }
func ok(context.Context) error { return nil }

func trip(t *testing.T, b *Breaker, n int) {
	t.Helper()
	for range n {
		if err := b.Do(context.Background(), fail); !errors.Is(err, errDown) {
			t.Fatalf("Do = %v, want errDown", err)
		}
	}
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()
	b := New(Config{})
	if b.maxFailures != 5 || b.resetTimeout != 30*time.Second || b.halfOpenMax != 1 {
		t.Errorf("defaults = %d, %v, %d", b.maxFailures, b.resetTimeout, b.halfOpenMax)
	}
	if b.State() != StateClosed {
		t.Errorf("State = %v, want closed", b.State())
	}
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()
	b, _ := newTestBreaker(Config{MaxFailures: 3})

	trip(t, b, 2)
	if b.State() != StateClosed {
		t.Fatalf("State = %v after 2 failures, want closed", b.State())
	}
	trip(t, b, 1)
	if b.State() != StateOpen {
		t.Fatalf("State = %v after 3 failures, want open", b.State())
	}

	called := false
	err := b.Do(context.Background(), func(context.Context) error { called = true; return nil })
	if !errors.Is(err, ErrOpen) {
		t.Errorf("Do = %v, want ErrOpen", err)
	}
	if called {
		t.Error("fn called while open")
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	t.Parallel()
	b, _ := newTestBreaker(Config{MaxFailures: 3})

	trip(t, b, 2)
	if err := b.Do(context.Background(), ok); err != nil {
		t.Fatal(err)
	}
	trip(t, b, 2)
	if b.State() != StateClosed {
		t.Errorf("State = %v, want closed: failures were not consecutive", b.State())
	}
}

func TestBreaker_IgnoresUncountedErrors(t *testing.T) {
	t.Parallel()
	errRejected := errors.New("422")
	b, _ := newTestBreaker(Config{
		MaxFailures: 1,
		IsFailure:   func(err error) bool { return !errors.Is(err, errRejected) },
	})

	for range 5 {
		_ = b.Do(context.Background(), func(context.Context) error { return errRejected })
	}
	if b.State() != StateClosed {
		t.Errorf("State = %v, want closed", b.State())
	}
}

func TestBreaker_CancellationNotCountedByDefault(t *testing.T) {
	t.Parallel()
	b, _ := newTestBreaker(Config{MaxFailures: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.Do(ctx, func(ctx context.Context) error { return ctx.Err() })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Do = %v", err)
	}
	if b.State() != StateClosed {
		t.Errorf("State = %v, want closed", b.State())
	}
}

func TestBreaker_HalfOpenProbeCloses(t *testing.T) {
	t.Parallel()
	b, clk := newTestBreaker(Config{MaxFailures: 1, ResetTimeout: time.Minute})

	trip(t, b, 1)
	clk.advance(59 * time.Second)
	if err := b.Do(context.Background(), ok); !errors.Is(err, ErrOpen) {
		t.Fatalf("Do before timeout = %v, want ErrOpen", err)
	}

	clk.advance(time.Second)
	if b.State() != StateHalfOpen {
		t.Fatalf("State = %v, want half-open", b.State())
	}
	if err := b.Do(context.Background(), ok); err != nil {
		t.Fatalf("probe: %v", err)
	}
	if b.State() != StateClosed {
		t.Errorf("State = %v, want closed", b.State())
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	t.Parallel()
	b, clk := newTestBreaker(Config{MaxFailures: 1, ResetTimeout: time.Minute})

	trip(t, b, 1)
	clk.advance(time.Minute)
	trip(t, b, 1)
	if b.State() != StateOpen {
		t.Fatalf("State = %v, want open", b.State())
	}
	// The open period restarts from the failed probe.
	clk.advance(30 * time.Second)
	if err := b.Do(context.Background(), ok); !errors.Is(err, ErrOpen) {
		t.Errorf("Do = %v, want ErrOpen", err)
	}
}

func TestBreaker_HalfOpenLimitsProbes(t *testing.T) {
	t.Parallel()
	b, clk := newTestBreaker(Config{MaxFailures: 1, ResetTimeout: time.Second, HalfOpenMax: 1})
	trip(t, b, 1)
	clk.advance(time.Second)

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- b.Do(context.Background(), func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	if err := b.Do(context.Background(), ok); !errors.Is(err, ErrOpen) {
		t.Errorf("second probe = %v, want ErrOpen", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("probe: %v", err)
	}
	if b.State() != StateClosed {
		t.Errorf("State = %v, want closed", b.State())
	}
}

func TestBreaker_StaleResultIgnoredAfterReset(t *testing.T) {
	t.Parallel()
	b, _ := newTestBreaker(Config{MaxFailures: 1})

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = b.Do(context.Background(), func(context.Context) error {
			close(started)
			<-release
			return errDown
		})
	}()
	<-started
	b.Reset()
	close(release)
	<-done

	if b.State() != StateClosed {
		t.Errorf("State = %v, want closed: result predates the reset", b.State())
	}
}

func TestBreaker_OnStateChange(t *testing.T) {
	t.Parallel()
	var (
		mu    sync.Mutex
		trans []string
	)
	b, clk := newTestBreaker(Config{
		MaxFailures:  1,
		ResetTimeout: time.Second,
		OnStateChange: func(from, to State) {
			mu.Lock()
			trans = append(trans, from.String()+">"+to.String())
			mu.Unlock()
		},
	})

	trip(t, b, 1)
	clk.advance(time.Second)
	_ = b.Do(context.Background(), ok)
	trip(t, b, 1)
	b.Reset()

	want := []string{"closed>open", "open>half-open", "half-open>closed", "closed>open", "open>closed"}
	mu.Lock()
	defer mu.Unlock()
	if len(trans) != len(want) {
		t.Fatalf("transitions = %v, want %v", trans, want)
	}
	for i := range want {
		if trans[i] != want[i] {
			t.Errorf("transition %d = %q, want %q", i, trans[i], want[i])
		}
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()
	tests := []struct {
		s    State
		want string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.s, got, tt.want)
		}
	}
}
