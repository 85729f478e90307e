package repository

import (
	"context"
	"time"

	"github.com/consultapp/ConsultAppBack/internal/models"
	"github.com/jackc/pgx/v5"
)

type CreatePayoutInput struct {
	BookingID          int64
	AmountNetCents     int64
	DestinationAccount string
}

type PayoutRepository struct {
	db DBTX
}

func NewPayoutRepository(db DBTX) *PayoutRepository {
	return &PayoutRepository{db: db}
}

const payoutColumns = `id, booking_id, amount_net_cents, destination_account,
	status, transfer_ref, paid_at, created_at, updated_at`

func scanPayout(row pgx.Row) (*models.Payout, error) {
	var payout models.Payout
	err := row.Scan(
		&payout.ID,
		&payout.BookingID,
		&payout.AmountNetCents,
		&payout.DestinationAccount,
		&payout.Status,
		&payout.TransferRef,
		&payout.PaidAt,
		&payout.CreatedAt,
		&payout.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &payout, nil
}

func (r *PayoutRepository) Create(ctx context.Context, input CreatePayoutInput) (*models.Payout, error) {
	query := `
		INSERT INTO payouts (booking_id, amount_net_cents, destination_account, status)
		VALUES ($1, $2, $3, 'pending')
		RETURNING ` + payoutColumns
	return scanPayout(r.db.QueryRow(ctx, query, input.BookingID, input.AmountNetCents, input.DestinationAccount))
}

// Upsert creates the payout on first QC pass and leaves an existing row
// untouched so a re-run never resets a paid or blocked payout.
func (r *PayoutRepository) Upsert(ctx context.Context, input CreatePayoutInput) (*models.Payout, error) {
	query := `
		INSERT INTO payouts (booking_id, amount_net_cents, destination_account, status)
		VALUES ($1, $2, $3, 'pending')
		ON CONFLICT (booking_id) DO UPDATE SET updated_at = NOW()
		RETURNING ` + payoutColumns
	return scanPayout(r.db.QueryRow(ctx, query, input.BookingID, input.AmountNetCents, input.DestinationAccount))
}

func (r *PayoutRepository) GetByID(ctx context.Context, payoutID int64) (*models.Payout, error) {
	query := `SELECT ` + payoutColumns + ` FROM payouts WHERE id = $1`
	return scanPayout(r.db.QueryRow(ctx, query, payoutID))
}

func (r *PayoutRepository) GetByIDForUpdate(ctx context.Context, payoutID int64) (*models.Payout, error) {
	query := `SELECT ` + payoutColumns + ` FROM payouts WHERE id = $1 FOR UPDATE`
	return scanPayout(r.db.QueryRow(ctx, query, payoutID))
}

func (r *PayoutRepository) GetByBookingID(ctx context.Context, bookingID int64) (*models.Payout, error) {
	query := `SELECT ` + payoutColumns + ` FROM payouts WHERE booking_id = $1`
	return scanPayout(r.db.QueryRow(ctx, query, bookingID))
}

// MarkPaidIfPending is the paid-at-most-once guard: it only fires while the
// payout is still pending, so a second settlement attempt scans no row.
func (r *PayoutRepository) MarkPaidIfPending(
	ctx context.Context,
	payoutID int64,
	transferRef string,
	paidAt time.Time,
) (*models.Payout, error) {
	query := `
		UPDATE payouts
		SET status = 'paid', transfer_ref = $2, paid_at = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + payoutColumns
	return scanPayout(r.db.QueryRow(ctx, query, payoutID, transferRef, paidAt))
}
