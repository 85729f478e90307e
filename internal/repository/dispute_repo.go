package repository

import (
	"context"

	"github.com/consultapp/ConsultAppBack/internal/models"
	"github.com/jackc/pgx/v5"
)

type DisputeRepository struct {
	db DBTX
}

func NewDisputeRepository(db DBTX) *DisputeRepository {
	return &DisputeRepository{db: db}
}

const disputeColumns = `id, booking_id, status, reason, resolution,
	resolved_action, resolved_by, resolved_at, created_at`

func scanDispute(row pgx.Row) (*models.Dispute, error) {
	var dispute models.Dispute
	err := row.Scan(
		&dispute.ID,
		&dispute.BookingID,
		&dispute.Status,
		&dispute.Reason,
		&dispute.Resolution,
		&dispute.ResolvedAction,
		&dispute.ResolvedBy,
		&dispute.ResolvedAt,
		&dispute.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &dispute, nil
}

func (r *DisputeRepository) Create(ctx context.Context, bookingID int64, reason string) (*models.Dispute, error) {
	query := `
		INSERT INTO disputes (booking_id, status, reason)
		VALUES ($1, 'open', $2)
		RETURNING ` + disputeColumns
	return scanDispute(r.db.QueryRow(ctx, query, bookingID, reason))
}

func (r *DisputeRepository) GetByID(ctx context.Context, disputeID int64) (*models.Dispute, error) {
	query := `SELECT ` + disputeColumns + ` FROM disputes WHERE id = $1`
	return scanDispute(r.db.QueryRow(ctx, query, disputeID))
}

func (r *DisputeRepository) GetByIDForUpdate(ctx context.Context, disputeID int64) (*models.Dispute, error) {
	query := `SELECT ` + disputeColumns + ` FROM disputes WHERE id = $1 FOR UPDATE`
	return scanDispute(r.db.QueryRow(ctx, query, disputeID))
}

// ResolveIfOpen records the resolution exactly once; a second resolve scans
// no row and surfaces as pgx.ErrNoRows.
func (r *DisputeRepository) ResolveIfOpen(
	ctx context.Context,
	disputeID int64,
	resolution string,
	action models.DisputeAction,
	adminID int64,
) (*models.Dispute, error) {
	query := `
		UPDATE disputes
		SET status = 'resolved', resolution = $2, resolved_action = $3, resolved_by = $4, resolved_at = NOW()
		WHERE id = $1 AND status = 'open'
		RETURNING ` + disputeColumns
	return scanDispute(r.db.QueryRow(ctx, query, disputeID, resolution, action, adminID))
}
