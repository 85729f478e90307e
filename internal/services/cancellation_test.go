package services

import (
	"testing"
	"time"
)

func TestIsLateCancellation(t *testing.T) {
	startAt := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		cancelledAt time.Time
		want        bool
	}{
		{"a day ahead", startAt.Add(-24 * time.Hour), false},
		{"exactly at the threshold", startAt.Add(-LateCancellationThreshold), false},
		{"one second inside the threshold", startAt.Add(-LateCancellationThreshold + time.Second), true},
		{"five hours before", startAt.Add(-5 * time.Hour), true},
		{"after the start", startAt.Add(30 * time.Minute), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsLateCancellation(startAt, tt.cancelledAt); got != tt.want {
				t.Errorf("IsLateCancellation(%v, %v) = %v, want %v", startAt, tt.cancelledAt, got, tt.want)
			}
		})
	}
}

func TestNetAmountCents(t *testing.T) {
	if got := NetAmountCents(10000, 2000); got != 8000 {
		t.Errorf("expected net 8000, got %d", got)
	}
	if got := NetAmountCents(5000, 0); got != 5000 {
		t.Errorf("expected net 5000, got %d", got)
	}
}
