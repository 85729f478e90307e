package services

import (
	"context"
	"fmt"
	"time"

	"github.com/consultapp/ConsultAppBack/internal/apperr"
	"github.com/consultapp/ConsultAppBack/internal/escrow"
	"github.com/consultapp/ConsultAppBack/internal/models"
	"github.com/consultapp/ConsultAppBack/internal/repository"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type DisputeService struct {
	db       *pgxpool.Pool
	userRepo userReader
	escrow   escrow.Client
	logger   *zap.Logger
}

func NewDisputeService(db *pgxpool.Pool, userRepo userReader, escrowClient escrow.Client, logger *zap.Logger) *DisputeService {
	return &DisputeService{db: db, userRepo: userRepo, escrow: escrowClient, logger: logger}
}

type ResolveDisputeInput struct {
	DisputeID   int64
	Resolution  string
	Action      models.DisputeAction
	AdminID     int64
	AmountCents *int64
}

// refundPlan is the decision part of a refund action, separated from the
// execution so the boundary policy is checkable on its own. A partial refund
// that exactly empties the remaining balance lands on the same fully-refunded
// end-state as a full refund.
type refundPlan struct {
	refundCents   int64
	paymentStatus models.PaymentStatus
	bookingStatus models.BookingStatus
}

func planRefund(payment *models.Payment, action models.DisputeAction, amountCents *int64) (refundPlan, error) {
	remaining := payment.RemainingCents()

	switch action {
	case models.DisputeFullRefund:
		if remaining <= 0 {
			return refundPlan{}, apperr.Validation("nothing left to refund")
		}
		return refundPlan{
			refundCents:   remaining,
			paymentStatus: models.PaymentRefunded,
			bookingStatus: models.BookingRefunded,
		}, nil

	case models.DisputePartialRefund:
		if amountCents == nil || *amountCents <= 0 {
			return refundPlan{}, apperr.Validation("a positive refund amount is required")
		}
		if *amountCents > remaining {
			return refundPlan{}, apperr.Validation("refund amount exceeds remaining balance")
		}
		plan := refundPlan{refundCents: *amountCents}
		if payment.RefundedAmountCents+*amountCents == payment.AmountGrossCents {
			plan.paymentStatus = models.PaymentRefunded
			plan.bookingStatus = models.BookingRefunded
		} else {
			plan.paymentStatus = models.PaymentPartiallyRefunded
			// Partially refunded bookings stay closed-but-paid.
			plan.bookingStatus = models.BookingCompleted
		}
		return plan, nil
	}
	return refundPlan{}, apperr.Validation("unknown dispute action " + string(action))
}

// Resolve settles an open dispute with a refund (full or partial) or a
// dismissal that pays the professional out. The provider call happens before
// the commit; the dispute, booking, payment and audit rows land in one
// transaction.
func (s *DisputeService) Resolve(ctx context.Context, input ResolveDisputeInput) (*models.Dispute, error) {
	if input.Resolution == "" {
		return nil, apperr.Validation("resolution notes are required")
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txDisputeRepo := repository.NewDisputeRepository(tx)
	txBookingRepo := repository.NewBookingRepository(tx)
	txPaymentRepo := repository.NewPaymentRepository(tx)
	txPayoutRepo := repository.NewPayoutRepository(tx)

	dispute, err := txDisputeRepo.GetByIDForUpdate(ctx, input.DisputeID)
	if err != nil {
		return nil, mapNoRows(err, "dispute not found")
	}
	if dispute.Status != models.DisputeOpen {
		return nil, apperr.Conflict("dispute already resolved")
	}

	booking, err := txBookingRepo.GetByIDForUpdate(ctx, dispute.BookingID)
	if err != nil {
		return nil, mapNoRows(err, "booking not found")
	}
	payment, err := txPaymentRepo.GetByBookingIDForUpdate(ctx, dispute.BookingID)
	if err != nil {
		return nil, mapNoRows(err, "payment not found")
	}

	var bookingStatus models.BookingStatus
	auditMetadata := map[string]any{"action": string(input.Action)}

	switch input.Action {
	case models.DisputeFullRefund, models.DisputePartialRefund:
		plan, err := planRefund(payment, input.Action, input.AmountCents)
		if err != nil {
			return nil, err
		}
		if _, err := s.escrow.Refund(ctx, payment.ProviderIntentRef, &plan.refundCents); err != nil {
			return nil, err
		}
		if _, err := txPaymentRepo.AddRefund(ctx, payment.ID, plan.refundCents, plan.paymentStatus); err != nil {
			return nil, mapConflict(err, "payment state changed concurrently")
		}
		bookingStatus = plan.bookingStatus
		auditMetadata["refund_cents"] = plan.refundCents

	case models.DisputeDismiss:
		payout, err := s.dismissPayout(ctx, txPayoutRepo, booking, payment)
		if err != nil {
			return nil, err
		}
		if _, err := txPaymentRepo.UpdateStatusIfCurrent(ctx, payment.ID, payment.Status, models.PaymentReleased); err != nil {
			return nil, mapConflict(err, "payment state changed concurrently")
		}
		bookingStatus = models.BookingCompleted
		auditMetadata["payout_id"] = payout.ID

	default:
		return nil, apperr.Validation("unknown dispute action " + string(input.Action))
	}

	transition := TransitionResolveComplete
	if bookingStatus == models.BookingRefunded {
		transition = TransitionResolveRefund
	}
	nextStatus, err := requireTransition(booking.Status, transition, models.RoleAdmin)
	if err != nil {
		return nil, err
	}
	if _, err := txBookingRepo.UpdateStatusIfCurrent(ctx, booking.ID, booking.Status, nextStatus); err != nil {
		return nil, mapConflict(err, "booking status changed concurrently")
	}

	resolved, err := txDisputeRepo.ResolveIfOpen(ctx, input.DisputeID, input.Resolution, input.Action, input.AdminID)
	if err != nil {
		return nil, mapConflict(err, "dispute already resolved")
	}

	if err := repository.NewAuditRepository(tx).Append(ctx, models.AuditEntry{
		ActorID:  input.AdminID,
		Entity:   "dispute",
		EntityID: input.DisputeID,
		Action:   "dispute.resolved",
		Metadata: auditMetadata,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return resolved, nil
}

// dismissPayout finds or creates the payout and pays it, drawing the
// transfer from the settled charge behind the original authorization so the
// funds source stays traceable.
func (s *DisputeService) dismissPayout(
	ctx context.Context,
	txPayoutRepo *repository.PayoutRepository,
	booking *models.Booking,
	payment *models.Payment,
) (*models.Payout, error) {
	professional, err := s.userRepo.GetByID(ctx, booking.ProfessionalID)
	if err != nil {
		return nil, mapNoRows(err, "professional not found")
	}
	destination := models.PlaceholderDestination
	if professional.PayoutRecipientRef != nil && *professional.PayoutRecipientRef != "" {
		destination = *professional.PayoutRecipientRef
	}

	payout, err := txPayoutRepo.Upsert(ctx, repository.CreatePayoutInput{
		BookingID:          booking.ID,
		AmountNetCents:     NetAmountCents(payment.AmountGrossCents, payment.PlatformFeeCents),
		DestinationAccount: destination,
	})
	if err != nil {
		return nil, err
	}
	if payout.Status == models.PayoutPaid {
		return payout, nil
	}
	if payout.DestinationAccount == models.PlaceholderDestination {
		return nil, apperr.OperatorRequired("professional has no payout destination")
	}

	sourceCharge, err := s.escrow.SettledCharge(ctx, payment.ProviderIntentRef)
	if err != nil {
		return nil, err
	}
	transferRef, err := s.escrow.Transfer(
		ctx,
		payout.AmountNetCents,
		payout.DestinationAccount,
		fmt.Sprintf("booking-%d", booking.ID),
		map[string]any{"dispute": "dismissed"},
		sourceCharge,
	)
	if err != nil {
		return nil, err
	}

	paid, err := txPayoutRepo.MarkPaidIfPending(ctx, payout.ID, transferRef, time.Now().UTC())
	if err != nil {
		return nil, mapConflict(err, "payout state changed concurrently")
	}
	return paid, nil
}
