package interval

import (
	"testing"
	"time"
)

var base = time.Date(2030, 3, 15, 9, 0, 0, 0, time.UTC)

func at(hours float64) time.Time {
	return base.Add(time.Duration(hours * float64(time.Hour)))
}

func iv(startHours, endHours float64) Interval {
	return Interval{Start: at(startHours), End: at(endHours)}
}

func equalIntervals(a, b []Interval) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Start.Equal(b[i].Start) || !a[i].End.Equal(b[i].End) {
			return false
		}
	}
	return true
}

func TestSubtract(t *testing.T) {
	tests := []struct {
		name     string
		avail    Interval
		busy     Interval
		expected []Interval
	}{
		{"disjoint before", iv(2, 4), iv(0, 1), []Interval{iv(2, 4)}},
		{"disjoint after", iv(2, 4), iv(5, 6), []Interval{iv(2, 4)}},
		{"touching edge is disjoint", iv(2, 4), iv(4, 6), []Interval{iv(2, 4)}},
		{"contained splits in two", iv(0, 8), iv(2, 4), []Interval{iv(0, 2), iv(4, 8)}},
		{"partial left overlap trims start", iv(2, 6), iv(1, 3), []Interval{iv(3, 6)}},
		{"partial right overlap trims end", iv(2, 6), iv(5, 7), []Interval{iv(2, 5)}},
		{"exact coverage eliminates", iv(2, 4), iv(2, 4), nil},
		{"over coverage eliminates", iv(2, 4), iv(1, 5), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Subtract(tt.avail, tt.busy)
			if !equalIntervals(got, tt.expected) {
				t.Errorf("Subtract(%v, %v) = %v, expected %v", tt.avail, tt.busy, got, tt.expected)
			}
		})
	}
}

func TestSubtractSplitReconstructsOriginal(t *testing.T) {
	avail := iv(0, 8)
	busy := iv(3, 5)

	parts := Subtract(avail, busy)
	if len(parts) != 2 {
		t.Fatalf("expected exactly 2 parts, got %d", len(parts))
	}
	if !parts[0].Start.Equal(avail.Start) || !parts[0].End.Equal(busy.Start) {
		t.Errorf("unexpected left part %v", parts[0])
	}
	if !parts[1].Start.Equal(busy.End) || !parts[1].End.Equal(avail.End) {
		t.Errorf("unexpected right part %v", parts[1])
	}

	// left + removed + right must cover the original with no gaps
	if !parts[0].End.Equal(busy.Start) || !busy.End.Equal(parts[1].Start) {
		t.Errorf("union of parts plus busy does not reconstruct %v", avail)
	}
}

func TestSubtractAll(t *testing.T) {
	available := []Interval{iv(0, 4), iv(6, 10)}
	busy := []Interval{iv(1, 2), iv(7, 11)}

	got := SubtractAll(available, busy)
	expected := []Interval{iv(0, 1), iv(2, 4), iv(6, 7)}
	if !equalIntervals(got, expected) {
		t.Errorf("SubtractAll = %v, expected %v", got, expected)
	}
}

func TestClip(t *testing.T) {
	intervals := []Interval{iv(-2, 1), iv(2, 3), iv(5, 9), iv(10, 12)}

	got := Clip(intervals, at(0), at(8))
	expected := []Interval{iv(0, 1), iv(2, 3), iv(5, 8)}
	if !equalIntervals(got, expected) {
		t.Errorf("Clip = %v, expected %v", got, expected)
	}
}

func TestClipDropsInverted(t *testing.T) {
	got := Clip([]Interval{iv(9, 10)}, at(0), at(8))
	if len(got) != 0 {
		t.Errorf("expected empty result, got %v", got)
	}
}
