// Package ledger tracks the identities of events already applied to the
// projection so that at-least-once delivery never double-applies an event.
package ledger

import (
	"strconv"

	"github.com/MrWong99/aether/pkg/event"
)

// Key derives the deduplication key of e: "seq:<n>" when the event carries a
// sequence number, otherwise "<kind>:<ts>".
//
// The fallback collides for two distinct events of the same kind sharing a
// timestamp. The server is expected to stamp a sequence number on every
// event it persists; only locally synthesized events rely on the fallback.
func Key(e event.Event) string {
	if e.Seq != nil {
		return "seq:" + strconv.FormatInt(*e.Seq, 10)
	}
	return string(e.Kind) + ":" + e.TS
}

// Ledger is a set of seen event keys scoped to one snapshot epoch.
// It is not safe for concurrent use.
type Ledger struct {
	seen map[string]struct{}
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{seen: make(map[string]struct{})}
}

// Observe records e and reports whether it was new. A false return means the
// event was already seen and must be dropped.
func (l *Ledger) Observe(e event.Event) bool {
	k := Key(e)
	if _, ok := l.seen[k]; ok {
		return false
	}
	if l.seen == nil {
		l.seen = make(map[string]struct{})
	}
	l.seen[k] = struct{}{}
	return true
}

// Seen reports whether e was already observed without recording it.
func (l *Ledger) Seen(e event.Event) bool {
	_, ok := l.seen[Key(e)]
	return ok
}

// Reset forgets every key. Called whenever a new snapshot is loaded, since
// sequence numbers are only comparable within one snapshot epoch.
func (l *Ledger) Reset() {
	clear(l.seen)
}

// Len returns the number of recorded keys.
func (l *Ledger) Len() int { return len(l.seen) }
