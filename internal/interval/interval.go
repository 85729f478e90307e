// Package interval implements half-open time interval arithmetic used by the
// availability engine.
package interval

import "time"

// Interval is a half-open window [Start, End). An interval with End not
// after Start is empty.
type Interval struct {
	Start time.Time
	End   time.Time
}

func (iv Interval) Empty() bool {
	return !iv.End.After(iv.Start)
}

func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start.Before(other.End) && other.Start.Before(iv.End)
}

// Subtract removes busy from iv, yielding zero, one or two sub-intervals:
// no overlap leaves iv unchanged, full coverage eliminates it, containment
// splits it in two, and a partial overlap trims one side.
func Subtract(iv, busy Interval) []Interval {
	if iv.Empty() {
		return nil
	}
	if !iv.Overlaps(busy) {
		return []Interval{iv}
	}
	if !busy.Start.After(iv.Start) && !busy.End.Before(iv.End) {
		return nil
	}

	out := make([]Interval, 0, 2)
	if busy.Start.After(iv.Start) {
		out = append(out, Interval{Start: iv.Start, End: busy.Start})
	}
	if busy.End.Before(iv.End) {
		out = append(out, Interval{Start: busy.End, End: iv.End})
	}
	return out
}

// SubtractAll removes every busy interval from every available interval.
func SubtractAll(available, busy []Interval) []Interval {
	out := available
	for _, b := range busy {
		next := make([]Interval, 0, len(out))
		for _, a := range out {
			next = append(next, Subtract(a, b)...)
		}
		out = next
	}
	return out
}

// Clip trims every interval to [start, end) and drops empty results.
func Clip(intervals []Interval, start, end time.Time) []Interval {
	out := make([]Interval, 0, len(intervals))
	for _, iv := range intervals {
		clipped := iv
		if clipped.Start.Before(start) {
			clipped.Start = start
		}
		if clipped.End.After(end) {
			clipped.End = end
		}
		if !clipped.Empty() {
			out = append(out, clipped)
		}
	}
	return out
}
