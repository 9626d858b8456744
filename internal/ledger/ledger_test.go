package ledger

import (
	"testing"

	"github.com/MrWong99/aether/pkg/event"
)

func TestKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ev   event.Event
		want string
	}{
		{
			name: "with seq",
			ev:   event.Event{Kind: event.KindXPGranted, TS: "2026-01-01T00:00:00Z", Seq: event.Seq(42)},
			want: "seq:42",
		},
		{
			name: "seq zero is still a seq",
			ev:   event.Event{Kind: event.KindXPGranted, TS: "t", Seq: event.Seq(0)},
			want: "seq:0",
		},
		{
			name: "fallback to kind and ts",
			ev:   event.Event{Kind: event.KindChatMessage, TS: "2026-01-01T00:00:00Z"},
			want: "chat.message:2026-01-01T00:00:00Z",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Key(tt.ev); got != tt.want {
				t.Errorf("Key() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLedger_Observe(t *testing.T) {
	t.Parallel()

	l := New()
	e := event.Event{Kind: event.KindXPGranted, Seq: event.Seq(1)}

	if !l.Observe(e) {
		t.Fatal("first Observe should report new")
	}
	if l.Observe(e) {
		t.Fatal("second Observe should report duplicate")
	}
	if !l.Seen(e) {
		t.Error("Seen should be true after Observe")
	}
	if l.Len() != 1 {
		t.Errorf("Len() = %d, want 1", l.Len())
	}

	// Same seq with a different kind is still a duplicate.
	if l.Observe(event.Event{Kind: event.KindLevelUp, Seq: event.Seq(1)}) {
		t.Error("seq key must ignore kind")
	}
}

func TestLedger_FallbackCollision(t *testing.T) {
	t.Parallel()

	l := New()
	a := event.Event{Kind: event.KindChatMessage, TS: "t1"}
	b := event.Event{Kind: event.KindChatMessage, TS: "t1", Payload: []byte(`{"text":"other"}`)}

	l.Observe(a)
	if l.Observe(b) {
		t.Error("events of the same kind and ts without seq share a key")
	}
}

func TestLedger_Reset(t *testing.T) {
	t.Parallel()

	l := New()
	e := event.Event{Kind: event.KindXPGranted, Seq: event.Seq(5)}
	l.Observe(e)
	l.Reset()

	if l.Len() != 0 {
		t.Errorf("Len() after Reset = %d, want 0", l.Len())
	}
	if !l.Observe(e) {
		t.Error("event should be new again after Reset")
	}
}

func TestLedger_ZeroValue(t *testing.T) {
	t.Parallel()

	var l Ledger
	if !l.Observe(event.Event{Kind: event.KindXPGranted, Seq: event.Seq(1)}) {
		t.Error("zero Ledger should accept events")
	}
}
