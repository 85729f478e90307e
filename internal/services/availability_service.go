package services

import (
	"context"
	"sync"
	"time"

	"github.com/consultapp/ConsultAppBack/internal/apperr"
	"github.com/consultapp/ConsultAppBack/internal/interval"
	"github.com/consultapp/ConsultAppBack/internal/models"
	"github.com/consultapp/ConsultAppBack/internal/repository"
	"github.com/jackc/pgx/v5/pgxpool"
)

type availabilityReader interface {
	ListInWindow(ctx context.Context, userID int64, start, end time.Time) ([]models.Availability, error)
}

type bookingIntervalReader interface {
	ListOccupyingWindow(ctx context.Context, userID int64, start, end time.Time) ([]models.Booking, error)
}

// BusySource supplies external-calendar busy intervals. The calendar client
// itself lives outside this system; only its result contract matters here.
type BusySource interface {
	BusyIntervals(ctx context.Context, userID int64, start, end time.Time) ([]interval.Interval, error)
}

// AvailabilityService computes open slots from manual availability rows,
// confirmed bookings and external-calendar busy time.
type AvailabilityService struct {
	db               *pgxpool.Pool
	availabilityRepo availabilityReader
	bookingRepo      bookingIntervalReader
	busySource       BusySource
}

func NewAvailabilityService(
	db *pgxpool.Pool,
	availabilityRepo availabilityReader,
	bookingRepo bookingIntervalReader,
	busySource BusySource,
) *AvailabilityService {
	return &AvailabilityService{
		db:               db,
		availabilityRepo: availabilityRepo,
		bookingRepo:      bookingRepo,
		busySource:       busySource,
	}
}

// Combined returns the user's open intervals in [start, end): manual
// available rows minus bookings, minus explicit blocks, minus external busy
// time, clipped to the window. The three sources are fetched in parallel.
func (s *AvailabilityService) Combined(
	ctx context.Context,
	userID int64,
	start time.Time,
	end time.Time,
) ([]interval.Interval, error) {
	if !end.After(start) {
		return nil, apperr.Validation("end must be after start")
	}

	var (
		wg       sync.WaitGroup
		rows     []models.Availability
		bookings []models.Booking
		external []interval.Interval

		rowsErr, bookingsErr, externalErr error
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		rows, rowsErr = s.availabilityRepo.ListInWindow(ctx, userID, start, end)
	}()
	go func() {
		defer wg.Done()
		bookings, bookingsErr = s.bookingRepo.ListOccupyingWindow(ctx, userID, start, end)
	}()
	go func() {
		defer wg.Done()
		external, externalErr = s.busySource.BusyIntervals(ctx, userID, start, end)
	}()
	wg.Wait()

	for _, err := range []error{rowsErr, bookingsErr, externalErr} {
		if err != nil {
			return nil, err
		}
	}

	available := make([]interval.Interval, 0, len(rows))
	busy := make([]interval.Interval, 0, len(bookings)+len(external))
	for _, row := range rows {
		iv := interval.Interval{Start: row.StartAt, End: row.EndAt}
		if row.Busy {
			busy = append(busy, iv)
		} else {
			available = append(available, iv)
		}
	}
	for _, booking := range bookings {
		if booking.StartAt != nil && booking.EndAt != nil {
			busy = append(busy, interval.Interval{Start: *booking.StartAt, End: *booking.EndAt})
		}
	}
	busy = append(busy, external...)

	open := interval.SubtractAll(available, busy)
	return interval.Clip(open, start, end), nil
}

// ReplaceFuture swaps the user's future availability wholesale: every row
// ending after `from` is deleted and the new rows inserted in one
// transaction, so readers never observe a partially edited window.
func (s *AvailabilityService) ReplaceFuture(
	ctx context.Context,
	userID int64,
	from time.Time,
	entries []repository.AvailabilityRow,
) error {
	for _, entry := range entries {
		if !entry.EndAt.After(entry.StartAt) {
			return apperr.Validation("availability end_at must be after start_at")
		}
		if entry.Timezone == "" {
			return apperr.Validation("availability timezone is required")
		}
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txAvailabilityRepo := repository.NewAvailabilityRepository(tx)
	if err := txAvailabilityRepo.DeleteFrom(ctx, userID, from); err != nil {
		return err
	}
	if err := txAvailabilityRepo.InsertMany(ctx, userID, entries); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
