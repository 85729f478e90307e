package repository

import (
	"context"

	"github.com/consultapp/ConsultAppBack/internal/models"
	"github.com/jackc/pgx/v5"
)

type CreatePaymentInput struct {
	BookingID         int64
	AmountGrossCents  int64
	PlatformFeeCents  int64
	ProviderIntentRef string
	Status            models.PaymentStatus
}

type PaymentRepository struct {
	db DBTX
}

func NewPaymentRepository(db DBTX) *PaymentRepository {
	return &PaymentRepository{db: db}
}

const paymentColumns = `id, booking_id, amount_gross_cents, platform_fee_cents,
	refunded_amount_cents, provider_intent_ref, status, created_at, updated_at`

func scanPayment(row pgx.Row) (*models.Payment, error) {
	var payment models.Payment
	err := row.Scan(
		&payment.ID,
		&payment.BookingID,
		&payment.AmountGrossCents,
		&payment.PlatformFeeCents,
		&payment.RefundedAmountCents,
		&payment.ProviderIntentRef,
		&payment.Status,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *PaymentRepository) Create(ctx context.Context, input CreatePaymentInput) (*models.Payment, error) {
	query := `
		INSERT INTO payments (booking_id, amount_gross_cents, platform_fee_cents, provider_intent_ref, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + paymentColumns
	return scanPayment(r.db.QueryRow(
		ctx,
		query,
		input.BookingID,
		input.AmountGrossCents,
		input.PlatformFeeCents,
		input.ProviderIntentRef,
		input.Status,
	))
}

func (r *PaymentRepository) GetByBookingID(ctx context.Context, bookingID int64) (*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE booking_id = $1`
	return scanPayment(r.db.QueryRow(ctx, query, bookingID))
}

func (r *PaymentRepository) GetByBookingIDForUpdate(ctx context.Context, bookingID int64) (*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE booking_id = $1 FOR UPDATE`
	return scanPayment(r.db.QueryRow(ctx, query, bookingID))
}

func (r *PaymentRepository) UpdateStatusIfCurrent(
	ctx context.Context,
	paymentID int64,
	currentStatus models.PaymentStatus,
	nextStatus models.PaymentStatus,
) (*models.Payment, error) {
	query := `
		UPDATE payments
		SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING ` + paymentColumns
	return scanPayment(r.db.QueryRow(ctx, query, paymentID, currentStatus, nextStatus))
}

// AddRefund increments the refunded amount and moves the payment to
// nextStatus. The WHERE clause keeps refunded_amount_cents within the gross
// amount, so an over-refund surfaces as pgx.ErrNoRows instead of corrupting
// the invariant.
func (r *PaymentRepository) AddRefund(
	ctx context.Context,
	paymentID int64,
	amountCents int64,
	nextStatus models.PaymentStatus,
) (*models.Payment, error) {
	query := `
		UPDATE payments
		SET refunded_amount_cents = refunded_amount_cents + $2, status = $3, updated_at = NOW()
		WHERE id = $1
		  AND status IN ('authorized', 'held', 'partially_refunded')
		  AND refunded_amount_cents + $2 <= amount_gross_cents
		RETURNING ` + paymentColumns
	return scanPayment(r.db.QueryRow(ctx, query, paymentID, amountCents, nextStatus))
}
