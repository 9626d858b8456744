// Package journal records every event the reconciler accepts.
//
// The projection is rebuilt from snapshots, so the journal is never read back
// on the hot path. It exists for auditing a session after the fact and for
// offline replay of a campaign export. Append failures are reported to the
// caller but must never affect the projection.
package journal

import (
	"context"
	"errors"
	"time"

	"github.com/MrWong99/aether/internal/ledger"
	"github.com/MrWong99/aether/pkg/event"
)

// ErrClosed is returned by Append after Close.
var ErrClosed = errors.New("journal: sink closed")

// Entry is one journaled event.
type Entry struct {
	DedupKey   string      `json:"dedup_key"`
	CampaignID string      `json:"campaign_id,omitempty"`
	Outcome    string      `json:"outcome"`
	RecordedAt time.Time   `json:"recorded_at"`
	Event      event.Event `json:"event"`
}

// NewEntry builds an entry for e stamped with the current time.
func NewEntry(campaignID string, e event.Event, outcome string) Entry {
	return Entry{
		DedupKey:   ledger.Key(e),
		CampaignID: campaignID,
		Outcome:    outcome,
		RecordedAt: time.Now().UTC(),
		Event:      e,
	}
}

// Sink is a destination for journal entries. Implementations must be safe
// for concurrent use.
type Sink interface {
	// Name identifies the sink in logs and metrics.
	Name() string

	// Append stores entries in order. Entries whose dedup key is already
	// stored for the same campaign are skipped silently.
	Append(ctx context.Context, entries []Entry) error

	// Close releases the sink. Append returns [ErrClosed] afterwards.
	Close() error
}
