package models

import "time"

type PaymentStatus string

const (
	PaymentAuthorized        PaymentStatus = "authorized"
	PaymentHeld              PaymentStatus = "held"
	PaymentReleased          PaymentStatus = "released"
	PaymentRefunded          PaymentStatus = "refunded"
	PaymentPartiallyRefunded PaymentStatus = "partially_refunded"
)

type Payment struct {
	ID                  int64         `json:"id"`
	BookingID           int64         `json:"booking_id"`
	AmountGrossCents    int64         `json:"amount_gross_cents"`
	PlatformFeeCents    int64         `json:"platform_fee_cents"`
	RefundedAmountCents int64         `json:"refunded_amount_cents"`
	ProviderIntentRef   string        `json:"provider_intent_ref"`
	Status              PaymentStatus `json:"status"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`
}

// RemainingCents is the gross amount not yet refunded.
func (p *Payment) RemainingCents() int64 {
	return p.AmountGrossCents - p.RefundedAmountCents
}
