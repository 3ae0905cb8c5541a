package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"donorlink/internal/outbox"
	id "donorlink/pkg/domain"
	txcontext "donorlink/pkg/platform/tx"
)

// PostgresStore writes to the outbox table. Append joins the caller's
// transaction so the event commits or rolls back with the state change.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *PostgresStore) conn(ctx context.Context) queryer {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Append(ctx context.Context, event outbox.Event) error {
	query := `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.conn(ctx).ExecContext(ctx, query,
		uuid.UUID(event.ID),
		event.AggregateType,
		event.AggregateID,
		event.Type,
		event.Payload,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

// FetchUnprocessed locks up to limit unpublished rows, oldest first. Rows held
// by another relay are skipped, so it must run inside a transaction.
func (s *PostgresStore) FetchUnprocessed(ctx context.Context, limit int) ([]outbox.Event, error) {
	query := `
		SELECT id, aggregate_type, aggregate_id, event_type, payload, created_at
		FROM outbox
		WHERE processed_at IS NULL
		ORDER BY created_at, id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`
	rows, err := s.conn(ctx).QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch outbox entries: %w", err)
	}
	defer rows.Close()

	var out []outbox.Event
	for rows.Next() {
		var (
			e       outbox.Event
			eventID uuid.UUID
		)
		if err := rows.Scan(&eventID, &e.AggregateType, &e.AggregateID, &e.Type, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		e.ID = id.EventID(eventID)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox entries: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) MarkProcessed(ctx context.Context, ids []id.EventID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	raw := make([]string, len(ids))
	for i, eventID := range ids {
		raw[i] = eventID.String()
	}
	query := `UPDATE outbox SET processed_at = $2 WHERE id = ANY($1::uuid[]) AND processed_at IS NULL`
	if _, err := s.conn(ctx).ExecContext(ctx, query, pq.Array(raw), at); err != nil {
		return fmt.Errorf("mark outbox entries processed: %w", err)
	}
	return nil
}
