package repository

import (
	"context"

	"github.com/consultapp/ConsultAppBack/internal/models"
	"github.com/jackc/pgx/v5"
)

type WebhookEventRepository struct {
	db DBTX
}

func NewWebhookEventRepository(db DBTX) *WebhookEventRepository {
	return &WebhookEventRepository{db: db}
}

// InsertIfAbsent records a delivery keyed by content hash. It returns the
// stored event and whether this call inserted it; a false return means the
// same delivery was seen before.
func (r *WebhookEventRepository) InsertIfAbsent(
	ctx context.Context,
	event models.WebhookEvent,
) (*models.WebhookEvent, bool, error) {
	inserted := true
	row := r.db.QueryRow(ctx, `
		INSERT INTO webhook_events (id, content_hash, signature, event_timestamp, body, status)
		VALUES ($1, $2, $3, $4, $5, 'received')
		ON CONFLICT (content_hash) DO NOTHING
		RETURNING id, content_hash, signature, event_timestamp, body, status, created_at
	`, event.ID, event.ContentHash, event.Signature, event.Timestamp, event.Body)

	stored, err := scanWebhookEvent(row)
	if err == pgx.ErrNoRows {
		inserted = false
		stored, err = r.GetByContentHash(ctx, event.ContentHash)
	}
	if err != nil {
		return nil, false, err
	}
	return stored, inserted, nil
}

func (r *WebhookEventRepository) GetByContentHash(ctx context.Context, contentHash string) (*models.WebhookEvent, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, content_hash, signature, event_timestamp, body, status, created_at
		FROM webhook_events
		WHERE content_hash = $1
	`, contentHash)
	return scanWebhookEvent(row)
}

func (r *WebhookEventRepository) MarkProcessed(ctx context.Context, contentHash string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE webhook_events SET status = 'processed' WHERE content_hash = $1
	`, contentHash)
	return err
}

func scanWebhookEvent(row pgx.Row) (*models.WebhookEvent, error) {
	var event models.WebhookEvent
	err := row.Scan(
		&event.ID,
		&event.ContentHash,
		&event.Signature,
		&event.Timestamp,
		&event.Body,
		&event.Status,
		&event.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &event, nil
}
