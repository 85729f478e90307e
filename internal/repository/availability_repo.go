package repository

import (
	"context"
	"time"

	"github.com/consultapp/ConsultAppBack/internal/models"
	"github.com/jackc/pgx/v5"
)

type AvailabilityRow struct {
	StartAt  time.Time
	EndAt    time.Time
	Busy     bool
	Timezone string
}

type AvailabilityRepository struct {
	db DBTX
}

func NewAvailabilityRepository(db DBTX) *AvailabilityRepository {
	return &AvailabilityRepository{db: db}
}

const availabilityColumns = `id, user_id, start_at, end_at, busy, timezone, created_at`

func scanAvailability(row pgx.Row) (*models.Availability, error) {
	var availability models.Availability
	err := row.Scan(
		&availability.ID,
		&availability.UserID,
		&availability.StartAt,
		&availability.EndAt,
		&availability.Busy,
		&availability.Timezone,
		&availability.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &availability, nil
}

// ListInWindow returns the rows overlapping [start, end), available and
// blocked alike.
func (r *AvailabilityRepository) ListInWindow(
	ctx context.Context,
	userID int64,
	start time.Time,
	end time.Time,
) ([]models.Availability, error) {
	query := `SELECT ` + availabilityColumns + ` FROM availability
		WHERE user_id = $1 AND start_at < $3 AND end_at > $2
		ORDER BY start_at ASC`

	rows, err := r.db.Query(ctx, query, userID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.Availability, 0)
	for rows.Next() {
		availability, err := scanAvailability(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *availability)
	}
	return out, rows.Err()
}

func (r *AvailabilityRepository) DeleteFrom(ctx context.Context, userID int64, from time.Time) error {
	_, err := r.db.Exec(ctx, `DELETE FROM availability WHERE user_id = $1 AND end_at > $2`, userID, from)
	return err
}

func (r *AvailabilityRepository) InsertMany(ctx context.Context, userID int64, entries []AvailabilityRow) error {
	for _, entry := range entries {
		_, err := r.db.Exec(ctx, `
			INSERT INTO availability (user_id, start_at, end_at, busy, timezone)
			VALUES ($1, $2, $3, $4, $5)
		`, userID, entry.StartAt, entry.EndAt, entry.Busy, entry.Timezone)
		if err != nil {
			return err
		}
	}
	return nil
}
