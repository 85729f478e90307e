package services

import (
	"testing"

	"github.com/consultapp/ConsultAppBack/internal/apperr"
	"github.com/consultapp/ConsultAppBack/internal/models"
)

func TestRequireTransition(t *testing.T) {
	tests := []struct {
		name       string
		current    models.BookingStatus
		transition Transition
		role       string
		wantNext   models.BookingStatus
		wantKind   apperr.Kind
	}{
		{
			name:       "professional accepts a request",
			current:    models.BookingRequested,
			transition: TransitionAccept,
			role:       models.RoleProfessional,
			wantNext:   models.BookingAcceptedPendingIntegrations,
		},
		{
			name:       "candidate cannot accept",
			current:    models.BookingRequested,
			transition: TransitionAccept,
			role:       models.RoleCandidate,
			wantKind:   apperr.KindUnauthorized,
		},
		{
			name:       "accept from accepted is a conflict",
			current:    models.BookingAccepted,
			transition: TransitionAccept,
			role:       models.RoleProfessional,
			wantKind:   apperr.KindConflict,
		},
		{
			name:       "system completes integrations",
			current:    models.BookingAcceptedPendingIntegrations,
			transition: TransitionCompleteIntegration,
			role:       RoleSystem,
			wantNext:   models.BookingAccepted,
		},
		{
			name:       "either party may cancel an accepted booking",
			current:    models.BookingAccepted,
			transition: TransitionCancel,
			role:       models.RoleCandidate,
			wantNext:   models.BookingCancelled,
		},
		{
			name:       "cancel after completion is a conflict",
			current:    models.BookingCompleted,
			transition: TransitionCancel,
			role:       models.RoleCandidate,
			wantKind:   apperr.KindConflict,
		},
		{
			name:       "only the candidate opens a dispute",
			current:    models.BookingCompletedPendingFeedback,
			transition: TransitionOpenDispute,
			role:       models.RoleProfessional,
			wantKind:   apperr.KindUnauthorized,
		},
		{
			name:       "admin resolves a dispute with a refund",
			current:    models.BookingDisputePending,
			transition: TransitionResolveRefund,
			role:       models.RoleAdmin,
			wantNext:   models.BookingRefunded,
		},
		{
			name:       "reschedule confirmation lands on accepted",
			current:    models.BookingReschedulePending,
			transition: TransitionConfirmReschedule,
			role:       models.RoleProfessional,
			wantNext:   models.BookingAccepted,
		},
		{
			name:       "terminal statuses have no edges",
			current:    models.BookingRefunded,
			transition: TransitionCancel,
			role:       models.RoleAdmin,
			wantKind:   apperr.KindConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, err := requireTransition(tt.current, tt.transition, tt.role)
			if tt.wantKind != "" {
				if err == nil {
					t.Fatalf("expected %s error, got next status %q", tt.wantKind, next)
				}
				if kind := apperr.KindOf(err); kind != tt.wantKind {
					t.Fatalf("expected %s error, got %s: %v", tt.wantKind, kind, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if next != tt.wantNext {
				t.Errorf("expected next status %q, got %q", tt.wantNext, next)
			}
		})
	}
}

func TestTransitionTableFromTerminalStates(t *testing.T) {
	terminal := []models.BookingStatus{
		models.BookingDeclined,
		models.BookingExpired,
		models.BookingCancelled,
		models.BookingCompleted,
		models.BookingRefunded,
	}
	for _, status := range terminal {
		if edges, ok := transitionTable[status]; ok && len(edges) > 0 {
			t.Errorf("terminal status %q has outgoing transitions", status)
		}
	}
}
