package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Sink accepts sealed envelopes. The outbox store is the production sink.
type Sink interface {
	Append(ctx context.Context, env Envelope) error
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type querier interface {
	execer
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// OutboxEntry is a stored envelope awaiting delivery.
type OutboxEntry struct {
	ID        uuid.UUID
	Envelope  Envelope
	Attempts  int
	CreatedAt time.Time
}

// OutboxStore persists envelopes for reliable delivery.
type OutboxStore struct {
	db querier
}

func NewOutboxStore(db querier) *OutboxStore {
	if db == nil {
		panic("events: outbox querier required")
	}
	return &OutboxStore{db: db}
}

func (s *OutboxStore) Append(ctx context.Context, env Envelope) error {
	return AppendTx(ctx, s.db, env)
}

// AppendTx writes env through exec, so callers can append inside their own transaction.
func AppendTx(ctx context.Context, exec execer, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("events: marshal envelope: %w", err)
	}
	_, err = exec.Exec(ctx, `
		INSERT INTO outbox (id, aggregate_id, organization_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
	`, env.EventID, env.AggregateID, env.OrganizationID, env.VersionedType(), data)
	if err != nil {
		return fmt.Errorf("events: insert outbox: %w", err)
	}
	return nil
}

func (s *OutboxStore) FetchPending(ctx context.Context, limit int32) ([]OutboxEntry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, payload, attempts, created_at
		FROM outbox
		WHERE delivered_at IS NULL
		ORDER BY created_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("events: fetch pending: %w", err)
	}
	defer rows.Close()

	var entries []OutboxEntry
	for rows.Next() {
		var entry OutboxEntry
		var payload []byte
		if err := rows.Scan(&entry.ID, &payload, &entry.Attempts, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("events: scan outbox: %w", err)
		}
		if err := json.Unmarshal(payload, &entry.Envelope); err != nil {
			return nil, fmt.Errorf("events: decode outbox %s: %w", entry.ID, err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *OutboxStore) MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error) {
	ct, err := s.db.Exec(ctx, `
		UPDATE outbox
		SET delivered_at = now()
		WHERE id = $1 AND delivered_at IS NULL
	`, id)
	if err != nil {
		return false, fmt.Errorf("events: mark delivered: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

func (s *OutboxStore) MarkFailed(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.Exec(ctx, `
		UPDATE outbox
		SET attempts = attempts + 1
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("events: mark failed: %w", err)
	}
	return nil
}

// MemorySink collects envelopes in memory. Used by tests and the simulator.
type MemorySink struct {
	Envelopes []Envelope
}

func (m *MemorySink) Append(_ context.Context, env Envelope) error {
	m.Envelopes = append(m.Envelopes, env)
	return nil
}

// Types returns the event types appended so far, in order.
func (m *MemorySink) Types() []string {
	out := make([]string, 0, len(m.Envelopes))
	for _, e := range m.Envelopes {
		out = append(out, e.EventType)
	}
	return out
}
