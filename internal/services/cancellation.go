package services

import "time"

// LateCancellationThreshold is how close to the start a cancellation must be
// to count as late. Cancelling at exactly the threshold is not late.
const LateCancellationThreshold = 6 * time.Hour

// IsLateCancellation reports whether cancelling at cancelledAt penalizes the
// cancelling party for a call starting at startAt.
func IsLateCancellation(startAt, cancelledAt time.Time) bool {
	return startAt.Sub(cancelledAt) < LateCancellationThreshold
}

// NetAmountCents is the single place the payout net is derived from the gross
// price and the flat platform fee. Cancellation payouts, the QC gate and
// dispute dismissal all go through it.
func NetAmountCents(grossCents, platformFeeCents int64) int64 {
	return grossCents - platformFeeCents
}
