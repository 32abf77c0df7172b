// Package outbox stages domain events in the same transaction as the state
// change that produced them. An external dispatcher drains the staged rows;
// the ledger core never talks to a message transport directly.
package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Event is a pending message attached to a committed transaction.
type Event struct {
	ID           uuid.UUID
	Topic        string
	Payload      []byte
	CreatedAt    time.Time
	DispatchedAt *time.Time
}

// Append stages an event inside tx. It commits or rolls back together with
// the business change.
func Append(ctx context.Context, tx pgx.Tx, topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `INSERT INTO outbox_events (id, topic, payload, created_at) VALUES ($1, $2, $3, NOW())`,
		uuid.New(), topic, data)
	return err
}

// Repository reads and settles staged events.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Pending returns up to limit undispatched events in creation order.
func (r *Repository) Pending(ctx context.Context, limit int) ([]Event, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, topic, payload, created_at FROM outbox_events
WHERE dispatched_at IS NULL ORDER BY created_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.Topic, &e.Payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// MarkDispatched stamps the given events as delivered.
func (r *Repository) MarkDispatched(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.pool.Exec(ctx, `UPDATE outbox_events SET dispatched_at = NOW() WHERE id = ANY($1)`, ids)
	return err
}
