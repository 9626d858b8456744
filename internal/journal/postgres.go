package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/aether/pkg/event"
)

// Schema is the SQL DDL for the aether_events table. Execute it via
// [PostgresSink.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS aether_events (
    campaign_id  TEXT NOT NULL DEFAULT '',
    dedup_key    TEXT NOT NULL,
    seq          BIGINT,
    kind         TEXT NOT NULL,
    actor        TEXT NOT NULL DEFAULT '',
    ts           TEXT NOT NULL DEFAULT '',
    payload      JSONB NOT NULL DEFAULT '{}',
    outcome      TEXT NOT NULL DEFAULT '',
    recorded_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (campaign_id, dedup_key)
);
CREATE INDEX IF NOT EXISTS idx_aether_events_seq ON aether_events(campaign_id, seq);
`

// DB is the database interface used by [PostgresSink]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresSink is a [Sink] backed by a PostgreSQL table. Inserts are
// idempotent on (campaign_id, dedup_key), so replaying a batch after a
// reconnect does not duplicate rows.
type PostgresSink struct {
	db     DB
	closer func()

	mu     sync.RWMutex
	closed bool
}

// Compile-time interface check.
var _ Sink = (*PostgresSink)(nil)

// NewPostgresSink creates a sink on an existing connection or pool. The
// caller owns db and is responsible for calling [PostgresSink.Migrate].
func NewPostgresSink(db DB) *PostgresSink {
	return &PostgresSink{db: db}
}

// OpenPostgres connects a pool to dsn, applies [Schema] and returns a sink
// that closes the pool on Close.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresSink, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("journal: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("journal: ping: %w", err)
	}
	s := &PostgresSink{db: pool, closer: pool.Close}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Name implements [Sink].
func (s *PostgresSink) Name() string { return "postgres" }

// Ping checks that the database answers a trivial query.
func (s *PostgresSink) Ping(ctx context.Context) error {
	var one int
	if err := s.db.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("journal: ping: %w", err)
	}
	return nil
}

// Migrate executes the [Schema] DDL against the database.
func (s *PostgresSink) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("journal: migrate: %w", err)
	}
	return nil
}

// Append inserts entries in order, skipping keys already stored.
func (s *PostgresSink) Append(ctx context.Context, entries []Entry) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	const query = `
		INSERT INTO aether_events (
			campaign_id, dedup_key, seq, kind, actor, ts, payload, outcome, recorded_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (campaign_id, dedup_key) DO NOTHING`

	for _, e := range entries {
		_, err := s.db.Exec(ctx, query,
			e.CampaignID, e.DedupKey, e.Event.Seq, string(e.Event.Kind),
			string(e.Event.Actor), e.Event.TS, payloadJSON(e.Event.Payload),
			e.Outcome, e.RecordedAt,
		)
		if err != nil {
			return fmt.Errorf("journal: insert %s: %w", e.DedupKey, err)
		}
	}
	return nil
}

// LastSeq returns the highest journaled sequence number for a campaign, or
// zero when nothing with a sequence number is stored.
func (s *PostgresSink) LastSeq(ctx context.Context, campaignID string) (int64, error) {
	const query = `SELECT COALESCE(MAX(seq), 0) FROM aether_events WHERE campaign_id = $1`
	var seq int64
	if err := s.db.QueryRow(ctx, query, campaignID).Scan(&seq); err != nil {
		return 0, fmt.Errorf("journal: last seq: %w", err)
	}
	return seq, nil
}

// Entries returns the journaled entries of a campaign with a sequence number
// above afterSeq, in sequence order.
func (s *PostgresSink) Entries(ctx context.Context, campaignID string, afterSeq int64) ([]Entry, error) {
	const query = `
		SELECT campaign_id, dedup_key, seq, kind, actor, ts, payload, outcome, recorded_at
		FROM aether_events
		WHERE campaign_id = $1 AND seq > $2
		ORDER BY seq`

	rows, err := s.db.Query(ctx, query, campaignID, afterSeq)
	if err != nil {
		return nil, fmt.Errorf("journal: entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e               Entry
			seq             *int64
			kind, actor, ts string
			payload         []byte
			recordedAt      time.Time
		)
		if err := rows.Scan(
			&e.CampaignID, &e.DedupKey, &seq, &kind, &actor, &ts,
			&payload, &e.Outcome, &recordedAt,
		); err != nil {
			return nil, fmt.Errorf("journal: entries scan: %w", err)
		}
		e.RecordedAt = recordedAt
		e.Event = event.Event{
			Kind:    event.Kind(kind),
			Payload: json.RawMessage(payload),
			TS:      ts,
			Seq:     seq,
			Actor:   event.Actor(actor),
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: entries: %w", err)
	}
	return out, nil
}

// Close implements [Sink]. A pool opened by [OpenPostgres] is closed; a DB
// passed to [NewPostgresSink] is left to its owner.
func (s *PostgresSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.closer != nil {
		s.closer()
	}
	return nil
}

// payloadJSON returns raw if non-empty, otherwise "{}" so the column's NOT
// NULL constraint holds for events without a payload.
func payloadJSON(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return []byte("{}")
	}
	return raw
}
