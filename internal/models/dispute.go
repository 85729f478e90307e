package models

import "time"

type DisputeStatus string

const (
	DisputeOpen     DisputeStatus = "open"
	DisputeResolved DisputeStatus = "resolved"
)

type DisputeAction string

const (
	DisputeFullRefund    DisputeAction = "full_refund"
	DisputePartialRefund DisputeAction = "partial_refund"
	DisputeDismiss       DisputeAction = "dismiss"
)

type Dispute struct {
	ID             int64          `json:"id"`
	BookingID      int64          `json:"booking_id"`
	Status         DisputeStatus  `json:"status"`
	Reason         string         `json:"reason"`
	Resolution     *string        `json:"resolution"`
	ResolvedAction *DisputeAction `json:"resolved_action"`
	ResolvedBy     *int64         `json:"resolved_by"`
	ResolvedAt     *time.Time     `json:"resolved_at"`
	CreatedAt      time.Time      `json:"created_at"`
}
