package repository

import (
	"context"
	"time"

	"github.com/consultapp/ConsultAppBack/internal/models"
	"github.com/jackc/pgx/v5"
)

type CreateBookingInput struct {
	CandidateID    int64
	ProfessionalID int64
	PriceCents     int64
	StartAt        *time.Time
	EndAt          *time.Time
	ExpiresAt      *time.Time
}

type BookingListFilter struct {
	ActorID int64
	Role    string
	Status  string
}

type BookingRepository struct {
	db DBTX
}

func NewBookingRepository(db DBTX) *BookingRepository {
	return &BookingRepository{db: db}
}

const bookingColumns = `id, candidate_id, professional_id, price_cents, status,
	start_at, end_at, expires_at, proposed_start_at, proposed_end_at, proposed_by,
	meeting_ref, meeting_join_url, candidate_joined_at, professional_joined_at,
	attendance_outcome, late_cancellation, created_at, updated_at`

func scanBooking(row pgx.Row) (*models.Booking, error) {
	var booking models.Booking
	err := row.Scan(
		&booking.ID,
		&booking.CandidateID,
		&booking.ProfessionalID,
		&booking.PriceCents,
		&booking.Status,
		&booking.StartAt,
		&booking.EndAt,
		&booking.ExpiresAt,
		&booking.ProposedStartAt,
		&booking.ProposedEndAt,
		&booking.ProposedBy,
		&booking.MeetingRef,
		&booking.MeetingJoinURL,
		&booking.CandidateJoinedAt,
		&booking.ProfessionalJoinedAt,
		&booking.AttendanceOutcome,
		&booking.LateCancellation,
		&booking.CreatedAt,
		&booking.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

func (r *BookingRepository) Create(ctx context.Context, input CreateBookingInput) (*models.Booking, error) {
	query := `
		INSERT INTO bookings (candidate_id, professional_id, price_cents, status, start_at, end_at, expires_at)
		VALUES ($1, $2, $3, 'requested', $4, $5, $6)
		RETURNING ` + bookingColumns
	return scanBooking(r.db.QueryRow(
		ctx,
		query,
		input.CandidateID,
		input.ProfessionalID,
		input.PriceCents,
		input.StartAt,
		input.EndAt,
		input.ExpiresAt,
	))
}

func (r *BookingRepository) GetByID(ctx context.Context, bookingID int64) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	return scanBooking(r.db.QueryRow(ctx, query, bookingID))
}

func (r *BookingRepository) GetByIDForUpdate(ctx context.Context, bookingID int64) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1 FOR UPDATE`
	return scanBooking(r.db.QueryRow(ctx, query, bookingID))
}

func (r *BookingRepository) GetByMeetingRef(ctx context.Context, meetingRef string) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE meeting_ref = $1`
	return scanBooking(r.db.QueryRow(ctx, query, meetingRef))
}

func (r *BookingRepository) List(ctx context.Context, filter BookingListFilter) ([]models.Booking, error) {
	actorColumn := "candidate_id"
	if filter.Role == models.RoleProfessional {
		actorColumn = "professional_id"
	}

	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE ` + actorColumn + ` = $1
		AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC, id DESC`

	rows, err := r.db.Query(ctx, query, filter.ActorID, filter.Status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bookings := make([]models.Booking, 0)
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *booking)
	}
	return bookings, rows.Err()
}

// UpdateStatusIfCurrent is the optimistic status-guarded write every
// transition goes through. pgx.ErrNoRows means the precondition status no
// longer holds.
func (r *BookingRepository) UpdateStatusIfCurrent(
	ctx context.Context,
	bookingID int64,
	currentStatus models.BookingStatus,
	nextStatus models.BookingStatus,
) (*models.Booking, error) {
	query := `
		UPDATE bookings
		SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING ` + bookingColumns
	return scanBooking(r.db.QueryRow(ctx, query, bookingID, currentStatus, nextStatus))
}

func (r *BookingRepository) SetMeeting(
	ctx context.Context,
	bookingID int64,
	meetingRef string,
	joinURL string,
) (*models.Booking, error) {
	query := `
		UPDATE bookings
		SET meeting_ref = $2, meeting_join_url = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + bookingColumns
	return scanBooking(r.db.QueryRow(ctx, query, bookingID, meetingRef, joinURL))
}

func (r *BookingRepository) SetProposedWindow(
	ctx context.Context,
	bookingID int64,
	proposerID int64,
	startAt time.Time,
	endAt time.Time,
) (*models.Booking, error) {
	query := `
		UPDATE bookings
		SET proposed_start_at = $2, proposed_end_at = $3, proposed_by = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + bookingColumns
	return scanBooking(r.db.QueryRow(ctx, query, bookingID, startAt, endAt, proposerID))
}

// ApplySchedule moves the proposed window into the confirmed schedule and
// clears the proposal.
func (r *BookingRepository) ApplySchedule(
	ctx context.Context,
	bookingID int64,
	startAt time.Time,
	endAt time.Time,
) (*models.Booking, error) {
	query := `
		UPDATE bookings
		SET start_at = $2, end_at = $3,
			proposed_start_at = NULL, proposed_end_at = NULL, proposed_by = NULL,
			meeting_ref = NULL, meeting_join_url = NULL,
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + bookingColumns
	return scanBooking(r.db.QueryRow(ctx, query, bookingID, startAt, endAt))
}

func (r *BookingRepository) SetLateCancellation(ctx context.Context, bookingID int64) (*models.Booking, error) {
	query := `
		UPDATE bookings
		SET late_cancellation = TRUE, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + bookingColumns
	return scanBooking(r.db.QueryRow(ctx, query, bookingID))
}

// StampJoin records the earliest join timestamp for one side of the call.
func (r *BookingRepository) StampJoin(
	ctx context.Context,
	bookingID int64,
	role string,
	joinedAt time.Time,
) (*models.Booking, error) {
	column := "candidate_joined_at"
	if role == models.RoleProfessional {
		column = "professional_joined_at"
	}
	query := `
		UPDATE bookings
		SET ` + column + ` = LEAST(COALESCE(` + column + `, $2), $2), updated_at = NOW()
		WHERE id = $1
		RETURNING ` + bookingColumns
	return scanBooking(r.db.QueryRow(ctx, query, bookingID, joinedAt))
}

func (r *BookingRepository) SetAttendanceOutcome(
	ctx context.Context,
	bookingID int64,
	outcome string,
) (*models.Booking, error) {
	query := `
		UPDATE bookings
		SET attendance_outcome = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + bookingColumns
	return scanBooking(r.db.QueryRow(ctx, query, bookingID, outcome))
}

func (r *BookingRepository) ListRequestedExpired(ctx context.Context, now time.Time, limit int) ([]models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
		WHERE status = 'requested' AND expires_at IS NOT NULL AND expires_at <= $1
		ORDER BY expires_at ASC
		LIMIT $2`
	return r.listBookings(ctx, query, now, limit)
}

func (r *BookingRepository) ListAcceptedEndedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
		WHERE status = 'accepted' AND end_at IS NOT NULL AND end_at <= $1
		ORDER BY end_at ASC
		LIMIT $2`
	return r.listBookings(ctx, query, cutoff, limit)
}

// ListOccupyingWindow returns the bookings that block calendar time for a
// user inside [start, end).
func (r *BookingRepository) ListOccupyingWindow(
	ctx context.Context,
	userID int64,
	start time.Time,
	end time.Time,
) ([]models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
		WHERE (candidate_id = $1 OR professional_id = $1)
		  AND status IN ('accepted_pending_integrations', 'accepted', 'reschedule_pending')
		  AND start_at IS NOT NULL AND end_at IS NOT NULL
		  AND start_at < $3 AND end_at > $2
		ORDER BY start_at ASC`

	rows, err := r.db.Query(ctx, query, userID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bookings := make([]models.Booking, 0)
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *booking)
	}
	return bookings, rows.Err()
}

func (r *BookingRepository) listBookings(ctx context.Context, query string, args ...any) ([]models.Booking, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bookings := make([]models.Booking, 0)
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *booking)
	}
	return bookings, rows.Err()
}
