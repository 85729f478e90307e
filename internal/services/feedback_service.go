package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/consultapp/ConsultAppBack/internal/apperr"
	"github.com/consultapp/ConsultAppBack/internal/jobs"
	"github.com/consultapp/ConsultAppBack/internal/models"
	"github.com/consultapp/ConsultAppBack/internal/repository"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const (
	minFeedbackWords    = 200
	requiredActionItems = 3
)

// ContentChecker is the external content-quality check behind the QC gate.
type ContentChecker interface {
	Check(ctx context.Context, text string, actionItems []string) (passed bool, reasons []string, err error)
}

// FeedbackService runs the quality gate that unlocks the payout: structural
// validation, the external content check, and on pass the payout upsert plus
// settlement enqueue.
type FeedbackService struct {
	db           *pgxpool.Pool
	bookingRepo  *repository.BookingRepository
	feedbackRepo *repository.FeedbackRepository
	userRepo     userReader
	checker      ContentChecker
	enqueuer     jobs.Enqueuer
	notifier     *Notifier
	logger       *zap.Logger
}

func NewFeedbackService(
	db *pgxpool.Pool,
	bookingRepo *repository.BookingRepository,
	feedbackRepo *repository.FeedbackRepository,
	userRepo userReader,
	checker ContentChecker,
	enqueuer jobs.Enqueuer,
	notifier *Notifier,
	logger *zap.Logger,
) *FeedbackService {
	return &FeedbackService{
		db:           db,
		bookingRepo:  bookingRepo,
		feedbackRepo: feedbackRepo,
		userRepo:     userRepo,
		checker:      checker,
		enqueuer:     enqueuer,
		notifier:     notifier,
		logger:       logger,
	}
}

type SubmitFeedbackInput struct {
	BookingID   int64
	Text        string
	ActionItems []string
	Ratings     map[string]int
}

// ValidateFeedback is the structural half of the gate. It returns every
// reason at once so the professional can fix the submission in one pass.
func ValidateFeedback(text string, actionItems []string) []string {
	var reasons []string
	if len(strings.Fields(text)) < minFeedbackWords {
		reasons = append(reasons, fmt.Sprintf("feedback must be at least %d words", minFeedbackWords))
	}
	nonEmpty := 0
	for _, item := range actionItems {
		if strings.TrimSpace(item) != "" {
			nonEmpty++
		}
	}
	if len(actionItems) != requiredActionItems || nonEmpty != requiredActionItems {
		reasons = append(reasons, fmt.Sprintf("exactly %d non-empty action items are required", requiredActionItems))
	}
	return reasons
}

// Submit stores the professional's feedback and queues the QC run.
func (s *FeedbackService) Submit(ctx context.Context, professionalID int64, input SubmitFeedbackInput) (*models.CallFeedback, error) {
	booking, err := s.bookingRepo.GetByID(ctx, input.BookingID)
	if err != nil {
		return nil, mapNoRows(err, "booking not found")
	}
	if booking.ProfessionalID != professionalID {
		return nil, apperr.Unauthorized("not the professional on this booking")
	}
	switch booking.Status {
	case models.BookingCompletedPendingFeedback, models.BookingAccepted, models.BookingCompleted:
	default:
		return nil, apperr.Conflict("booking is not awaiting feedback")
	}

	feedback, err := s.feedbackRepo.Upsert(ctx, repository.UpsertFeedbackInput{
		BookingID:   input.BookingID,
		Text:        input.Text,
		ActionItems: input.ActionItems,
		Ratings:     input.Ratings,
	})
	if err != nil {
		return nil, mapConflict(err, "feedback already passed quality control")
	}

	payload := jobs.FeedbackQCPayload{BookingID: input.BookingID}
	jobID := jobs.DeterministicID(jobs.JobFeedbackQC, fmt.Sprintf("%d:%d", input.BookingID, feedback.UpdatedAt.Unix()))
	if err := s.enqueuer.Enqueue(ctx, jobs.JobFeedbackQC, payload, jobID); err != nil {
		s.logger.Error("enqueue feedback qc", zap.Int64("booking_id", input.BookingID), zap.Error(err))
	}

	return feedback, nil
}

// RunQC evaluates a pending submission. Passing upserts the pending payout
// and queues settlement; failing marks the feedback for revision and tells
// the professional why. A passed submission is terminal and never re-runs.
func (s *FeedbackService) RunQC(ctx context.Context, bookingID int64) error {
	feedback, err := s.feedbackRepo.GetByBookingID(ctx, bookingID)
	if err != nil {
		return mapNoRows(err, "feedback not found")
	}
	if feedback.QCStatus == models.QCPassed {
		return nil
	}

	booking, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		return mapNoRows(err, "booking not found")
	}

	reasons := ValidateFeedback(feedback.Text, feedback.ActionItems)
	if len(reasons) == 0 {
		passed, checkReasons, err := s.checker.Check(ctx, feedback.Text, feedback.ActionItems)
		if err != nil {
			return apperr.ExternalCall("content quality check", err)
		}
		if !passed {
			reasons = checkReasons
		}
	}

	if len(reasons) > 0 {
		return s.failQC(ctx, booking, feedback, reasons)
	}
	return s.passQC(ctx, booking, feedback)
}

func (s *FeedbackService) failQC(
	ctx context.Context,
	booking *models.Booking,
	feedback *models.CallFeedback,
	reasons []string,
) error {
	if _, err := s.feedbackRepo.UpdateQCStatusIfCurrent(ctx, feedback.ID, feedback.QCStatus, models.QCRevise); err != nil {
		return mapConflict(err, "feedback state changed concurrently")
	}
	return s.notifier.Send(ctx, booking.ProfessionalID, NotifyFeedbackRevise, map[string]string{
		"booking_id": fmt.Sprint(booking.ID),
		"reasons":    strings.Join(reasons, "; "),
	})
}

func (s *FeedbackService) passQC(ctx context.Context, booking *models.Booking, feedback *models.CallFeedback) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txBookingRepo := repository.NewBookingRepository(tx)
	txPaymentRepo := repository.NewPaymentRepository(tx)
	txPayoutRepo := repository.NewPayoutRepository(tx)
	txFeedbackRepo := repository.NewFeedbackRepository(tx)

	if _, err := txFeedbackRepo.UpdateQCStatusIfCurrent(ctx, feedback.ID, feedback.QCStatus, models.QCPassed); err != nil {
		return mapConflict(err, "feedback state changed concurrently")
	}

	payment, err := txPaymentRepo.GetByBookingIDForUpdate(ctx, booking.ID)
	if err != nil {
		return mapNoRows(err, "payment not found")
	}

	payout, err := txPayoutRepo.Upsert(ctx, repository.CreatePayoutInput{
		BookingID:          booking.ID,
		AmountNetCents:     NetAmountCents(payment.AmountGrossCents, payment.PlatformFeeCents),
		DestinationAccount: s.payoutDestination(ctx, booking.ProfessionalID),
	})
	if err != nil {
		return err
	}

	// QC pass closes the booking from either the feedback stage or an
	// accepted call whose sweep has not run yet.
	current, err := txBookingRepo.GetByIDForUpdate(ctx, booking.ID)
	if err != nil {
		return mapNoRows(err, "booking not found")
	}
	if current.Status != models.BookingCompleted {
		nextStatus, err := requireTransition(current.Status, TransitionQCComplete, RoleSystem)
		if err != nil {
			return err
		}
		if _, err := txBookingRepo.UpdateStatusIfCurrent(ctx, booking.ID, current.Status, nextStatus); err != nil {
			return mapConflict(err, "booking status changed concurrently")
		}
	}

	if err := repository.NewAuditRepository(tx).Append(ctx, models.AuditEntry{
		ActorID:  0,
		Entity:   "booking",
		EntityID: booking.ID,
		Action:   "feedback.qc_passed",
		Metadata: map[string]any{"payout_id": payout.ID},
	}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	payload := jobs.PayoutSettlePayload{PayoutID: payout.ID}
	jobID := jobs.DeterministicID(jobs.JobPayoutSettle, fmt.Sprint(payout.ID))
	if err := s.enqueuer.Enqueue(ctx, jobs.JobPayoutSettle, payload, jobID); err != nil {
		s.logger.Error("enqueue payout settle", zap.Int64("payout_id", payout.ID), zap.Error(err))
	}
	return nil
}

func (s *FeedbackService) payoutDestination(ctx context.Context, professionalID int64) string {
	professional, err := s.userRepo.GetByID(ctx, professionalID)
	if err != nil || professional.PayoutRecipientRef == nil || *professional.PayoutRecipientRef == "" {
		return models.PlaceholderDestination
	}
	return *professional.PayoutRecipientRef
}
