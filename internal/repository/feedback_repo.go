package repository

import (
	"context"

	"github.com/consultapp/ConsultAppBack/internal/models"
	"github.com/jackc/pgx/v5"
)

type UpsertFeedbackInput struct {
	BookingID   int64
	Text        string
	ActionItems []string
	Ratings     map[string]int
}

type FeedbackRepository struct {
	db DBTX
}

func NewFeedbackRepository(db DBTX) *FeedbackRepository {
	return &FeedbackRepository{db: db}
}

const feedbackColumns = `id, booking_id, text, action_items, ratings, qc_status, created_at, updated_at`

func scanFeedback(row pgx.Row) (*models.CallFeedback, error) {
	var feedback models.CallFeedback
	err := row.Scan(
		&feedback.ID,
		&feedback.BookingID,
		&feedback.Text,
		&feedback.ActionItems,
		&feedback.Ratings,
		&feedback.QCStatus,
		&feedback.CreatedAt,
		&feedback.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &feedback, nil
}

// Upsert stores a submission. Resubmitting replaces the content and resets
// qc_status to pending; a passed submission is terminal and never overwritten.
func (r *FeedbackRepository) Upsert(ctx context.Context, input UpsertFeedbackInput) (*models.CallFeedback, error) {
	query := `
		INSERT INTO call_feedback (booking_id, text, action_items, ratings, qc_status)
		VALUES ($1, $2, $3, $4, 'pending')
		ON CONFLICT (booking_id) DO UPDATE
		SET text = EXCLUDED.text,
			action_items = EXCLUDED.action_items,
			ratings = EXCLUDED.ratings,
			qc_status = 'pending',
			updated_at = NOW()
		WHERE call_feedback.qc_status <> 'passed'
		RETURNING ` + feedbackColumns
	return scanFeedback(r.db.QueryRow(ctx, query, input.BookingID, input.Text, input.ActionItems, input.Ratings))
}

func (r *FeedbackRepository) GetByBookingID(ctx context.Context, bookingID int64) (*models.CallFeedback, error) {
	query := `SELECT ` + feedbackColumns + ` FROM call_feedback WHERE booking_id = $1`
	return scanFeedback(r.db.QueryRow(ctx, query, bookingID))
}

func (r *FeedbackRepository) UpdateQCStatusIfCurrent(
	ctx context.Context,
	feedbackID int64,
	currentStatus models.QCStatus,
	nextStatus models.QCStatus,
) (*models.CallFeedback, error) {
	query := `
		UPDATE call_feedback
		SET qc_status = $3, updated_at = NOW()
		WHERE id = $1 AND qc_status = $2
		RETURNING ` + feedbackColumns
	return scanFeedback(r.db.QueryRow(ctx, query, feedbackID, currentStatus, nextStatus))
}
