package services

import (
	"github.com/consultapp/ConsultAppBack/internal/apperr"
	"github.com/consultapp/ConsultAppBack/internal/models"
)

// Transition names every legal edge of the booking state machine.
type Transition string

const (
	TransitionAccept              Transition = "accept"
	TransitionCompleteIntegration Transition = "complete_integration"
	TransitionRequestReschedule   Transition = "request_reschedule"
	TransitionConfirmReschedule   Transition = "confirm_reschedule"
	TransitionDecline             Transition = "decline"
	TransitionExpire              Transition = "expire"
	TransitionCancel              Transition = "cancel"
	TransitionOpenDispute         Transition = "open_dispute"
	TransitionCompleteCall        Transition = "complete_call"
	TransitionReleaseNoShow       Transition = "release_no_show"
	TransitionRefundNoShow        Transition = "refund_no_show"
	TransitionQCComplete          Transition = "qc_complete"
	TransitionResolveRefund       Transition = "resolve_refund"
	TransitionResolveComplete     Transition = "resolve_complete"
)

// RoleSystem marks transitions driven by background jobs rather than a user.
const RoleSystem = "system"

type transitionRule struct {
	next  models.BookingStatus
	roles []string
}

// transitionTable maps (current status, transition) to the required actor
// role and the resulting status. Illegal edges are absent, so every illegal
// transition fails in one place.
var transitionTable = map[models.BookingStatus]map[Transition]transitionRule{
	models.BookingRequested: {
		TransitionAccept:  {next: models.BookingAcceptedPendingIntegrations, roles: []string{models.RoleProfessional}},
		TransitionDecline: {next: models.BookingDeclined, roles: []string{models.RoleProfessional}},
		TransitionExpire:  {next: models.BookingExpired, roles: []string{RoleSystem}},
	},
	models.BookingAcceptedPendingIntegrations: {
		TransitionCompleteIntegration: {next: models.BookingAccepted, roles: []string{RoleSystem}},
		TransitionCancel:              {next: models.BookingCancelled, roles: []string{models.RoleCandidate, models.RoleProfessional}},
	},
	models.BookingAccepted: {
		TransitionRequestReschedule: {next: models.BookingReschedulePending, roles: []string{models.RoleCandidate, models.RoleProfessional}},
		TransitionCancel:            {next: models.BookingCancelled, roles: []string{models.RoleCandidate, models.RoleProfessional}},
		TransitionOpenDispute:       {next: models.BookingDisputePending, roles: []string{models.RoleCandidate}},
		TransitionCompleteCall:      {next: models.BookingCompletedPendingFeedback, roles: []string{RoleSystem}},
		TransitionReleaseNoShow:     {next: models.BookingCompleted, roles: []string{RoleSystem}},
		TransitionRefundNoShow:      {next: models.BookingRefunded, roles: []string{RoleSystem}},
		TransitionQCComplete:        {next: models.BookingCompleted, roles: []string{RoleSystem}},
	},
	models.BookingReschedulePending: {
		TransitionConfirmReschedule: {next: models.BookingAccepted, roles: []string{models.RoleCandidate, models.RoleProfessional}},
		TransitionCancel:            {next: models.BookingCancelled, roles: []string{models.RoleCandidate, models.RoleProfessional}},
	},
	models.BookingCompletedPendingFeedback: {
		TransitionOpenDispute: {next: models.BookingDisputePending, roles: []string{models.RoleCandidate}},
		TransitionQCComplete:  {next: models.BookingCompleted, roles: []string{RoleSystem}},
	},
	models.BookingDisputePending: {
		TransitionResolveRefund:   {next: models.BookingRefunded, roles: []string{models.RoleAdmin}},
		TransitionResolveComplete: {next: models.BookingCompleted, roles: []string{models.RoleAdmin}},
	},
}

// requireTransition resolves the target status for a transition attempted by
// role from current. A missing edge is a Conflict; a role mismatch on a legal
// edge is Unauthorized.
func requireTransition(current models.BookingStatus, transition Transition, role string) (models.BookingStatus, error) {
	rule, ok := transitionTable[current][transition]
	if !ok {
		return "", apperr.Conflict("booking status " + string(current) + " does not allow " + string(transition))
	}
	for _, allowed := range rule.roles {
		if allowed == role {
			return rule.next, nil
		}
	}
	return "", apperr.Unauthorized("role " + role + " may not " + string(transition))
}
