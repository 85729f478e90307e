package models

import "time"

type PayoutStatus string

const (
	PayoutPending PayoutStatus = "pending"
	PayoutPaid    PayoutStatus = "paid"
	PayoutBlocked PayoutStatus = "blocked"
)

// PlaceholderDestination marks a payout whose destination account has not
// been linked yet. Settlement refuses to run against it.
const PlaceholderDestination = "placeholder"

type Payout struct {
	ID                 int64        `json:"id"`
	BookingID          int64        `json:"booking_id"`
	AmountNetCents     int64        `json:"amount_net_cents"`
	DestinationAccount string       `json:"destination_account"`
	Status             PayoutStatus `json:"status"`
	TransferRef        *string      `json:"transfer_ref"`
	PaidAt             *time.Time   `json:"paid_at"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
}
