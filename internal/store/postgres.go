package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atmx/rwa-engine/internal/model"
)

// Schema creates the journal table. Migrate applies it.
const Schema = `
CREATE TABLE IF NOT EXISTS ledger_events (
	sequence   BIGINT PRIMARY KEY,
	id         UUID NOT NULL UNIQUE,
	kind       TEXT NOT NULL,
	actor      TEXT NOT NULL,
	subject    TEXT NOT NULL,
	attributes JSONB NOT NULL DEFAULT '{}',
	timestamp  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS ledger_events_kind_idx ON ledger_events (kind, sequence);
CREATE INDEX IF NOT EXISTS ledger_events_actor_idx ON ledger_events (actor, sequence);
CREATE INDEX IF NOT EXISTS ledger_events_subject_idx ON ledger_events (subject, sequence);
`

// PostgresStore implements Store using PostgreSQL as the source of truth.
// Attributes are stored as JSONB so amounts keep their exact decimal text.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the journal table and indexes if missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, Schema)
	return err
}

func (s *PostgresStore) AppendEvents(ctx context.Context, events []model.Event) error {
	if len(events) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range events {
		attrs, err := json.Marshal(e.Attributes)
		if err != nil {
			return fmt.Errorf("marshal attributes of event %s: %w", e.ID, err)
		}
		batch.Queue(
			`INSERT INTO ledger_events (sequence, id, kind, actor, subject, attributes, timestamp)
			 VALUES ($1, $2, $3, $4, $5, $6::JSONB, $7)
			 ON CONFLICT (id) DO NOTHING`,
			int64(e.Sequence), e.ID, string(e.Kind), e.Actor, e.Subject, string(attrs), e.Timestamp,
		)
	}

	// One transaction per batch so a ledger commit lands whole or not at all.
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
}

func (s *PostgresStore) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT sequence, id::TEXT, kind, actor, subject, attributes::TEXT, timestamp
		 FROM ledger_events WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("get event %s: %w", id, err)
	}
	defer rows.Close()

	events, err := scanEvents(rows)
	if err != nil {
		return nil, fmt.Errorf("get event %s: %w", id, err)
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return &events[0], nil
}

func (s *PostgresStore) ListEvents(ctx context.Context, f model.EventFilter) ([]model.Event, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.Kind != "" {
		add("kind = $%d", string(f.Kind))
	}
	if f.Actor != "" {
		add("actor = $%d", f.Actor)
	}
	if f.Subject != "" {
		add("subject = $%d", f.Subject)
	}
	if !f.Before.IsZero() {
		add("timestamp < $%d", f.Before)
	}
	if !f.After.IsZero() {
		add("timestamp > $%d", f.After)
	}
	if f.AfterSequence > 0 {
		add("sequence > $%d", int64(f.AfterSequence))
	}

	q := `SELECT sequence, id::TEXT, kind, actor, subject, attributes::TEXT, timestamp FROM ledger_events`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY sequence DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events, err := scanEvents(rows)
	if err != nil {
		return nil, err
	}
	slices.Reverse(events)
	return events, nil
}

func (s *PostgresStore) LastSequence(ctx context.Context) (uint64, error) {
	var seq int64
	err := s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(sequence), 0) FROM ledger_events`).Scan(&seq)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}
	return uint64(seq), nil
}

func scanEvents(rows pgx.Rows) ([]model.Event, error) {
	var events []model.Event
	for rows.Next() {
		var (
			e     model.Event
			seq   int64
			kind  string
			attrs string
		)
		if err := rows.Scan(&seq, &e.ID, &kind, &e.Actor, &e.Subject, &attrs, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Sequence = uint64(seq)
		e.Kind = model.EventKind(kind)
		if err := json.Unmarshal([]byte(attrs), &e.Attributes); err != nil {
			return nil, fmt.Errorf("decode attributes of event %s: %w", e.ID, err)
		}
		e.Timestamp = e.Timestamp.UTC()
		events = append(events, e)
	}
	return events, rows.Err()
}
