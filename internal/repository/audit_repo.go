package repository

import (
	"context"

	"github.com/consultapp/ConsultAppBack/internal/models"
)

type AuditRepository struct {
	db DBTX
}

func NewAuditRepository(db DBTX) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append writes one audit row. The table is append-only; there are no update
// or delete methods on purpose.
func (r *AuditRepository) Append(ctx context.Context, entry models.AuditEntry) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO audit_log (actor_id, entity, entity_id, action, metadata)
		VALUES ($1, $2, $3, $4, $5)
	`, entry.ActorID, entry.Entity, entry.EntityID, entry.Action, entry.Metadata)
	return err
}

func (r *AuditRepository) ListByEntity(
	ctx context.Context,
	entity string,
	entityID int64,
) ([]models.AuditEntry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, actor_id, entity, entity_id, action, metadata, created_at
		FROM audit_log
		WHERE entity = $1 AND entity_id = $2
		ORDER BY id ASC
	`, entity, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]models.AuditEntry, 0)
	for rows.Next() {
		var entry models.AuditEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.ActorID,
			&entry.Entity,
			&entry.EntityID,
			&entry.Action,
			&entry.Metadata,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
