package models

import "time"

type BookingStatus string

const (
	BookingDraft                       BookingStatus = "draft"
	BookingRequested                   BookingStatus = "requested"
	BookingAcceptedPendingIntegrations BookingStatus = "accepted_pending_integrations"
	BookingAccepted                    BookingStatus = "accepted"
	BookingReschedulePending           BookingStatus = "reschedule_pending"
	BookingDisputePending              BookingStatus = "dispute_pending"
	BookingCompletedPendingFeedback    BookingStatus = "completed_pending_feedback"
	BookingCompleted                   BookingStatus = "completed"
	BookingCancelled                   BookingStatus = "cancelled"
	BookingDeclined                    BookingStatus = "declined"
	BookingExpired                     BookingStatus = "expired"
	BookingRefunded                    BookingStatus = "refunded"
)

// Attendance outcomes recorded by the no-show sweep.
const (
	AttendanceBothJoined         = "both_joined"
	AttendanceCandidateNoShow    = "candidate_no_show"
	AttendanceProfessionalNoShow = "professional_no_show"
	AttendanceNeitherJoined      = "neither_joined"
)

type Booking struct {
	ID                   int64         `json:"id"`
	CandidateID          int64         `json:"candidate_id"`
	ProfessionalID       int64         `json:"professional_id"`
	PriceCents           int64         `json:"price_cents"`
	Status               BookingStatus `json:"status"`
	StartAt              *time.Time    `json:"start_at"`
	EndAt                *time.Time    `json:"end_at"`
	ExpiresAt            *time.Time    `json:"expires_at"`
	ProposedStartAt      *time.Time    `json:"proposed_start_at"`
	ProposedEndAt        *time.Time    `json:"proposed_end_at"`
	ProposedBy           *int64        `json:"proposed_by"`
	MeetingRef           *string       `json:"meeting_ref"`
	MeetingJoinURL       *string       `json:"meeting_join_url"`
	CandidateJoinedAt    *time.Time    `json:"candidate_joined_at"`
	ProfessionalJoinedAt *time.Time    `json:"professional_joined_at"`
	AttendanceOutcome    *string       `json:"attendance_outcome"`
	LateCancellation     bool          `json:"late_cancellation_by_candidate"`
	CreatedAt            time.Time     `json:"created_at"`
	UpdatedAt            time.Time     `json:"updated_at"`
}

// Terminal reports whether the booking can never transition again.
func (b *Booking) Terminal() bool {
	switch b.Status {
	case BookingCompleted, BookingCancelled, BookingDeclined, BookingExpired, BookingRefunded:
		return true
	}
	return false
}

// OccupiesCalendar reports whether the booking blocks time on its
// participants' calendars.
func (b *Booking) OccupiesCalendar() bool {
	switch b.Status {
	case BookingAcceptedPendingIntegrations, BookingAccepted, BookingReschedulePending:
		return true
	}
	return false
}

type BookingDetail struct {
	Booking
	Payment *Payment `json:"payment,omitempty"`
	Payout  *Payout  `json:"payout,omitempty"`
}
