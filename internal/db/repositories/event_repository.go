// event_repository.go implements EventRepository over the processed_events
// dedupe table. Webhook deliveries are recorded by their provider-assigned
// event id so redelivered events are applied exactly once.
package repositories

import (
	"context"
	"database/sql"
	"time"
)

// EventRepository handles webhook delivery deduplication.
type EventRepository struct {
	db *sql.DB
}

// NewEventRepository creates a new EventRepository.
func NewEventRepository(db *sql.DB) *EventRepository {
	return &EventRepository{db: db}
}

// MarkProcessed records an external event id. Returns false when the event
// was already recorded, meaning the delivery is a duplicate and must be
// acknowledged without reapplying.
func (r *EventRepository) MarkProcessed(ctx context.Context, eventID, source string) (bool, error) {
	query := `
		INSERT INTO processed_events (event_id, source, processed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (event_id) DO NOTHING
	`
	res, err := r.db.ExecContext(ctx, query, eventID, source, time.Now())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// DeleteOlderThan trims dedupe records past their useful window.
func (r *EventRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM processed_events WHERE processed_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
