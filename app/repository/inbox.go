package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// InboxRepository is the webhook dedup ledger. A row with a non-null
// processed_at means the event's side effects were fully applied; a
// row without one never blocks reprocessing.
type InboxRepository struct {
	db DBTX
}

func NewInboxRepository(db DBTX) *InboxRepository {
	return &InboxRepository{db: db}
}

func (r *InboxRepository) Seen(ctx context.Context, provider, providerEventID string) (bool, error) {
	query := `
		SELECT processed_at IS NOT NULL
		FROM webhook_inbox
		WHERE provider = ? AND provider_event_id = ?
	`

	var processed bool
	err := r.db.QueryRowContext(ctx, query, provider, providerEventID).Scan(&processed)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return processed, nil
}

func (r *InboxRepository) MarkProcessed(ctx context.Context, provider, providerEventID string, processedAt time.Time) error {
	query := `
		INSERT INTO webhook_inbox (provider, provider_event_id, received_at, processed_at)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE processed_at = VALUES(processed_at)
	`

	_, err := r.db.ExecContext(ctx, query, provider, providerEventID, processedAt, processedAt)
	return err
}
