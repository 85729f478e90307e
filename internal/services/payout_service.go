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

// PayoutService executes the actual transfer for a pending payout. The job
// layer may deliver the same settlement more than once; the status checks
// here make the second delivery a no-op.
type PayoutService struct {
	db          *pgxpool.Pool
	bookingRepo *repository.BookingRepository
	escrow      escrow.Client
	notifier    *Notifier
	logger      *zap.Logger
}

func NewPayoutService(
	db *pgxpool.Pool,
	bookingRepo *repository.BookingRepository,
	escrowClient escrow.Client,
	notifier *Notifier,
	logger *zap.Logger,
) *PayoutService {
	return &PayoutService{db: db, bookingRepo: bookingRepo, escrow: escrowClient, notifier: notifier, logger: logger}
}

// Settle pays one payout. Ordered guards: paid short-circuits as success,
// blocked stops silently, a placeholder destination demands an operator.
// Only then is the transfer issued, with the booking id as the settlement
// group key.
func (s *PayoutService) Settle(ctx context.Context, payoutID int64) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txPayoutRepo := repository.NewPayoutRepository(tx)

	payout, err := txPayoutRepo.GetByIDForUpdate(ctx, payoutID)
	if err != nil {
		return mapNoRows(err, "payout not found")
	}

	switch payout.Status {
	case models.PayoutPaid:
		return nil
	case models.PayoutBlocked:
		s.logger.Info("payout blocked, skipping settlement", zap.Int64("payout_id", payoutID))
		return nil
	}
	if payout.DestinationAccount == "" || payout.DestinationAccount == models.PlaceholderDestination {
		return apperr.OperatorRequired("payout has no destination account")
	}

	transferRef, err := s.escrow.Transfer(
		ctx,
		payout.AmountNetCents,
		payout.DestinationAccount,
		fmt.Sprintf("booking-%d", payout.BookingID),
		map[string]any{"payout_id": fmt.Sprint(payoutID)},
		"",
	)
	if err != nil {
		return err
	}

	paid, err := txPayoutRepo.MarkPaidIfPending(ctx, payoutID, transferRef, time.Now().UTC())
	if err != nil {
		return mapConflict(err, "payout state changed concurrently")
	}

	// The normal QC path leaves the payment held; settlement is the moment
	// the funds actually leave escrow. Cancellation and dispute paths have
	// already released, so the guard makes this a no-op there.
	txPaymentRepo := repository.NewPaymentRepository(tx)
	payment, err := txPaymentRepo.GetByBookingIDForUpdate(ctx, payout.BookingID)
	if err != nil {
		return mapNoRows(err, "payment not found")
	}
	if payment.Status == models.PaymentHeld {
		if _, err := txPaymentRepo.UpdateStatusIfCurrent(ctx, payment.ID, models.PaymentHeld, models.PaymentReleased); err != nil {
			return mapConflict(err, "payment state changed concurrently")
		}
	}

	if err := repository.NewAuditRepository(tx).Append(ctx, models.AuditEntry{
		ActorID:  0,
		Entity:   "payout",
		EntityID: payoutID,
		Action:   "payout.paid",
		Metadata: map[string]any{"transfer_ref": transferRef, "amount_net_cents": paid.AmountNetCents},
	}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	booking, err := s.bookingRepo.GetByID(ctx, payout.BookingID)
	if err == nil {
		if notifyErr := s.notifier.Send(ctx, booking.ProfessionalID, NotifyPayoutReleased, map[string]string{
			"booking_id": fmt.Sprint(booking.ID),
			"amount_net": fmt.Sprint(paid.AmountNetCents),
		}); notifyErr != nil {
			s.logger.Warn("payout notification failed", zap.Int64("payout_id", payoutID), zap.Error(notifyErr))
		}
	}
	return nil
}
