package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/consultapp/ConsultAppBack/internal/interval"
	"github.com/consultapp/ConsultAppBack/internal/models"
)

type stubAvailabilityReader struct {
	rows []models.Availability
	err  error
}

func (s *stubAvailabilityReader) ListInWindow(ctx context.Context, userID int64, start, end time.Time) ([]models.Availability, error) {
	return s.rows, s.err
}

type stubBookingReader struct {
	bookings []models.Booking
	err      error
}

func (s *stubBookingReader) ListOccupyingWindow(ctx context.Context, userID int64, start, end time.Time) ([]models.Booking, error) {
	return s.bookings, s.err
}

type stubBusySource struct {
	intervals []interval.Interval
	err       error
}

func (s *stubBusySource) BusyIntervals(ctx context.Context, userID int64, start, end time.Time) ([]interval.Interval, error) {
	return s.intervals, s.err
}

func TestAvailabilityCombined(t *testing.T) {
	day := time.Date(2026, 4, 20, 0, 0, 0, 0, time.UTC)
	at := func(hour int) time.Time { return day.Add(time.Duration(hour) * time.Hour) }
	ptr := func(ts time.Time) *time.Time { return &ts }

	avail := &stubAvailabilityReader{rows: []models.Availability{
		{StartAt: at(9), EndAt: at(17)},
		{StartAt: at(12), EndAt: at(13), Busy: true},
	}}
	bookings := &stubBookingReader{bookings: []models.Booking{
		{Status: models.BookingAccepted, StartAt: ptr(at(14)), EndAt: ptr(at(15))},
	}}
	busy := &stubBusySource{intervals: []interval.Interval{
		{Start: at(16), End: at(18)},
	}}

	svc := NewAvailabilityService(nil, avail, bookings, busy)
	open, err := svc.Combined(context.Background(), 7, at(0), at(24))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []interval.Interval{
		{Start: at(9), End: at(12)},
		{Start: at(13), End: at(14)},
		{Start: at(15), End: at(16)},
	}
	if len(open) != len(want) {
		t.Fatalf("expected %d open intervals, got %d: %v", len(want), len(open), open)
	}
	for i := range want {
		if !open[i].Start.Equal(want[i].Start) || !open[i].End.Equal(want[i].End) {
			t.Errorf("interval %d = [%v, %v), want [%v, %v)", i, open[i].Start, open[i].End, want[i].Start, want[i].End)
		}
	}
}

func TestAvailabilityCombinedClipsToWindow(t *testing.T) {
	day := time.Date(2026, 4, 20, 0, 0, 0, 0, time.UTC)
	at := func(hour int) time.Time { return day.Add(time.Duration(hour) * time.Hour) }

	avail := &stubAvailabilityReader{rows: []models.Availability{
		{StartAt: at(8), EndAt: at(20)},
	}}
	svc := NewAvailabilityService(nil, avail, &stubBookingReader{}, &stubBusySource{})

	open, err := svc.Combined(context.Background(), 7, at(10), at(12))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(open) != 1 || !open[0].Start.Equal(at(10)) || !open[0].End.Equal(at(12)) {
		t.Fatalf("expected [10:00, 12:00), got %v", open)
	}
}

func TestAvailabilityCombinedErrors(t *testing.T) {
	day := time.Date(2026, 4, 20, 0, 0, 0, 0, time.UTC)

	svc := NewAvailabilityService(nil,
		&stubAvailabilityReader{err: errors.New("db down")},
		&stubBookingReader{},
		&stubBusySource{},
	)
	if _, err := svc.Combined(context.Background(), 7, day, day.Add(time.Hour)); err == nil {
		t.Fatal("expected source error to propagate")
	}

	if _, err := svc.Combined(context.Background(), 7, day, day); err == nil {
		t.Fatal("expected validation error for an empty window")
	}
}
