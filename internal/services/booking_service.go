package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/consultapp/ConsultAppBack/internal/apperr"
	"github.com/consultapp/ConsultAppBack/internal/escrow"
	"github.com/consultapp/ConsultAppBack/internal/jobs"
	"github.com/consultapp/ConsultAppBack/internal/meeting"
	"github.com/consultapp/ConsultAppBack/internal/models"
	"github.com/consultapp/ConsultAppBack/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// requestTTL is how long a professional has to answer a request before the
// expiry sweep voids it.
const requestTTL = 72 * time.Hour

type userReader interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
}

// BookingService is the booking state machine. Every transition loads the
// row inside a transaction, asserts the precondition status, performs the
// external side effect for that edge, writes the new state atomically and
// appends an audit row.
type BookingService struct {
	db              *pgxpool.Pool
	bookingRepo     *repository.BookingRepository
	paymentRepo     *repository.PaymentRepository
	payoutRepo      *repository.PayoutRepository
	userRepo        userReader
	escrow          escrow.Client
	meetings        meeting.Provider
	enqueuer        jobs.Enqueuer
	notifier        *Notifier
	logger          *zap.Logger
	platformFeeRate float64
}

func NewBookingService(
	db *pgxpool.Pool,
	bookingRepo *repository.BookingRepository,
	paymentRepo *repository.PaymentRepository,
	payoutRepo *repository.PayoutRepository,
	userRepo userReader,
	escrowClient escrow.Client,
	meetings meeting.Provider,
	enqueuer jobs.Enqueuer,
	notifier *Notifier,
	logger *zap.Logger,
	platformFeeRate float64,
) *BookingService {
	return &BookingService{
		db:              db,
		bookingRepo:     bookingRepo,
		paymentRepo:     paymentRepo,
		payoutRepo:      payoutRepo,
		userRepo:        userRepo,
		escrow:          escrowClient,
		meetings:        meetings,
		enqueuer:        enqueuer,
		notifier:        notifier,
		logger:          logger,
		platformFeeRate: platformFeeRate,
	}
}

type RequestBookingInput struct {
	ProfessionalID int64
	PriceCents     int64
	StartAt        *time.Time
	EndAt          *time.Time
}

// Request creates a booking in requested status with an escrow authorization
// held against the candidate. The authorization is manual capture: no money
// settles until the professional accepts.
func (s *BookingService) Request(
	ctx context.Context,
	candidateID int64,
	input RequestBookingInput,
) (*models.BookingDetail, error) {
	if input.ProfessionalID <= 0 || input.PriceCents <= 0 {
		return nil, apperr.Validation("professional_id and price_cents are required")
	}
	if candidateID == input.ProfessionalID {
		return nil, apperr.Validation("cannot book yourself")
	}
	if input.StartAt != nil {
		if input.EndAt == nil || !input.EndAt.After(*input.StartAt) {
			return nil, apperr.Validation("end_at must be after start_at")
		}
		if input.StartAt.Before(time.Now().UTC()) {
			return nil, apperr.Validation("start_at must be in the future")
		}
	}

	candidate, err := s.userRepo.GetByID(ctx, candidateID)
	if err != nil {
		return nil, mapNoRows(err, "candidate not found")
	}
	if candidate.ProviderCustomerRef == nil || *candidate.ProviderCustomerRef == "" {
		return nil, apperr.Validation("candidate has no payment method on file")
	}
	professional, err := s.userRepo.GetByID(ctx, input.ProfessionalID)
	if err != nil {
		return nil, mapNoRows(err, "professional not found")
	}
	if professional.Role != models.RoleProfessional {
		return nil, apperr.Validation("target user is not a professional")
	}

	platformFee := int64(float64(input.PriceCents) * s.platformFeeRate)

	// Provider call first: an authorization without a booking row is an
	// orphan the provider can expire, a booking row without funds on hold
	// is a broken escrow.
	intentRef, err := s.escrow.Authorize(ctx, input.PriceCents, *candidate.ProviderCustomerRef, map[string]any{
		"candidate_id":    fmt.Sprint(candidateID),
		"professional_id": fmt.Sprint(input.ProfessionalID),
	})
	if err != nil {
		return nil, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txBookingRepo := repository.NewBookingRepository(tx)
	txPaymentRepo := repository.NewPaymentRepository(tx)

	expiresAt := time.Now().UTC().Add(requestTTL)
	booking, err := txBookingRepo.Create(ctx, repository.CreateBookingInput{
		CandidateID:    candidateID,
		ProfessionalID: input.ProfessionalID,
		PriceCents:     input.PriceCents,
		StartAt:        input.StartAt,
		EndAt:          input.EndAt,
		ExpiresAt:      &expiresAt,
	})
	if err != nil {
		return nil, err
	}

	payment, err := txPaymentRepo.Create(ctx, repository.CreatePaymentInput{
		BookingID:         booking.ID,
		AmountGrossCents:  input.PriceCents,
		PlatformFeeCents:  platformFee,
		ProviderIntentRef: intentRef,
		Status:            models.PaymentAuthorized,
	})
	if err != nil {
		return nil, err
	}

	if err := s.audit(ctx, tx, candidateID, booking.ID, "booking.requested", map[string]any{
		"price_cents": input.PriceCents,
		"intent_ref":  intentRef,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return &models.BookingDetail{Booking: *booking, Payment: payment}, nil
}

// Accept captures the authorized payment and moves the booking to
// accepted_pending_integrations. The capture happens before the status write;
// a capture failure aborts the transition with no state change. Meeting
// provisioning is deferred to the integration job so the user-facing call
// stays fast.
func (s *BookingService) Accept(ctx context.Context, professionalID, bookingID int64) (*models.BookingDetail, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txBookingRepo := repository.NewBookingRepository(tx)
	txPaymentRepo := repository.NewPaymentRepository(tx)

	booking, err := txBookingRepo.GetByIDForUpdate(ctx, bookingID)
	if err != nil {
		return nil, mapNoRows(err, "booking not found")
	}
	if booking.ProfessionalID != professionalID {
		return nil, apperr.Unauthorized("not the professional on this booking")
	}
	nextStatus, err := requireTransition(booking.Status, TransitionAccept, models.RoleProfessional)
	if err != nil {
		return nil, err
	}

	payment, err := txPaymentRepo.GetByBookingIDForUpdate(ctx, bookingID)
	if err != nil {
		return nil, mapNoRows(err, "payment not found")
	}
	if payment.Status != models.PaymentAuthorized {
		return nil, apperr.Conflict("payment is not authorized")
	}

	// External effect precedes the commit: a failed capture leaves the
	// booking untouched for the next attempt.
	if err := s.escrow.Capture(ctx, payment.ProviderIntentRef); err != nil {
		return nil, err
	}

	updated, err := txBookingRepo.UpdateStatusIfCurrent(ctx, bookingID, booking.Status, nextStatus)
	if err != nil {
		return nil, mapConflict(err, "booking status changed concurrently")
	}
	if updated.Status != nextStatus {
		return nil, apperr.Conflict("booking did not reach " + string(nextStatus))
	}

	if err := s.audit(ctx, tx, professionalID, bookingID, "booking.accepted", map[string]any{
		"intent_ref": payment.ProviderIntentRef,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	s.enqueueIntegration(ctx, updated)

	return &models.BookingDetail{Booking: *updated, Payment: payment}, nil
}

// CompleteIntegration attaches the provisioned meeting and advances the
// booking to accepted. It is run by the integration job, is retryable, and
// tolerates re-delivery: an already-accepted booking with a meeting attached
// is a no-op success. Payment moves to held here. The acceptance
// notifications fire only after this step, once the booking is externally
// visible as accepted.
func (s *BookingService) CompleteIntegration(ctx context.Context, bookingID int64) error {
	current, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		return mapNoRows(err, "booking not found")
	}
	if current.Status == models.BookingAccepted && current.MeetingRef != nil {
		return nil
	}
	needsMeeting := current.Status == models.BookingAcceptedPendingIntegrations ||
		(current.Status == models.BookingAccepted && current.MeetingRef == nil)
	if !needsMeeting {
		return apperr.Conflict("booking is not awaiting integrations")
	}
	if current.StartAt == nil || current.EndAt == nil {
		return apperr.Conflict("booking has no schedule to provision")
	}

	// Slow third-party provisioning happens outside the transaction; the job
	// layer retries the whole step on failure.
	provisioned, err := s.meetings.CreateMeeting(
		ctx,
		fmt.Sprintf("Consultation #%d", bookingID),
		*current.StartAt,
		int(current.EndAt.Sub(*current.StartAt)/time.Minute),
	)
	if err != nil {
		return apperr.ExternalCall("create meeting", err)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txBookingRepo := repository.NewBookingRepository(tx)
	txPaymentRepo := repository.NewPaymentRepository(tx)

	booking, err := txBookingRepo.GetByIDForUpdate(ctx, bookingID)
	if err != nil {
		return mapNoRows(err, "booking not found")
	}
	if booking.Status == models.BookingAccepted && booking.MeetingRef != nil {
		return nil
	}

	if _, err := txBookingRepo.SetMeeting(ctx, bookingID, provisioned.Ref, provisioned.JoinURL); err != nil {
		return err
	}
	if booking.Status == models.BookingAcceptedPendingIntegrations {
		nextStatus, err := requireTransition(booking.Status, TransitionCompleteIntegration, RoleSystem)
		if err != nil {
			return err
		}
		if _, err := txBookingRepo.UpdateStatusIfCurrent(ctx, bookingID, booking.Status, nextStatus); err != nil {
			return mapConflict(err, "booking status changed concurrently")
		}
	}

	payment, err := txPaymentRepo.GetByBookingIDForUpdate(ctx, bookingID)
	if err != nil {
		return mapNoRows(err, "payment not found")
	}
	if payment.Status == models.PaymentAuthorized {
		if _, err := txPaymentRepo.UpdateStatusIfCurrent(ctx, payment.ID, models.PaymentAuthorized, models.PaymentHeld); err != nil {
			return mapConflict(err, "payment status changed concurrently")
		}
	}

	if err := s.audit(ctx, tx, 0, bookingID, "booking.integration_completed", map[string]any{
		"meeting_ref": provisioned.Ref,
	}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	return s.notifier.SendBoth(ctx, booking.CandidateID, booking.ProfessionalID, NotifyBookingAccepted, map[string]string{
		"booking_id": fmt.Sprint(bookingID),
	})
}

// RequestReschedule records a proposed window and parks the booking in
// reschedule_pending until the counterparty confirms.
func (s *BookingService) RequestReschedule(
	ctx context.Context,
	actorID int64,
	bookingID int64,
	startAt time.Time,
	endAt time.Time,
) (*models.BookingDetail, error) {
	if !endAt.After(startAt) {
		return nil, apperr.Validation("end_at must be after start_at")
	}
	if startAt.Before(time.Now().UTC()) {
		return nil, apperr.Validation("start_at must be in the future")
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txBookingRepo := repository.NewBookingRepository(tx)

	booking, err := txBookingRepo.GetByIDForUpdate(ctx, bookingID)
	if err != nil {
		return nil, mapNoRows(err, "booking not found")
	}
	role, err := partyRole(booking, actorID)
	if err != nil {
		return nil, err
	}
	nextStatus, err := requireTransition(booking.Status, TransitionRequestReschedule, role)
	if err != nil {
		return nil, err
	}

	if _, err := txBookingRepo.SetProposedWindow(ctx, bookingID, actorID, startAt.UTC(), endAt.UTC()); err != nil {
		return nil, err
	}
	updated, err := txBookingRepo.UpdateStatusIfCurrent(ctx, bookingID, booking.Status, nextStatus)
	if err != nil {
		return nil, mapConflict(err, "booking status changed concurrently")
	}

	if err := s.audit(ctx, tx, actorID, bookingID, "booking.reschedule_requested", map[string]any{
		"start_at": startAt.UTC(),
		"end_at":   endAt.UTC(),
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &models.BookingDetail{Booking: *updated}, nil
}

// ConfirmReschedule applies a proposed window. Confirming a window the
// booking already holds is a success that re-runs no side effects; finding
// the booking accepted on a different window is a conflict (someone else's
// confirmation landed first).
func (s *BookingService) ConfirmReschedule(
	ctx context.Context,
	actorID int64,
	bookingID int64,
	startAt time.Time,
	endAt time.Time,
) (*models.BookingDetail, error) {
	startAt = startAt.UTC()
	endAt = endAt.UTC()
	if !endAt.After(startAt) {
		return nil, apperr.Validation("end_at must be after start_at")
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txBookingRepo := repository.NewBookingRepository(tx)

	booking, err := txBookingRepo.GetByIDForUpdate(ctx, bookingID)
	if err != nil {
		return nil, mapNoRows(err, "booking not found")
	}
	role, err := partyRole(booking, actorID)
	if err != nil {
		return nil, err
	}

	if booking.Status == models.BookingAccepted {
		if booking.StartAt != nil && booking.StartAt.Equal(startAt) &&
			booking.EndAt != nil && booking.EndAt.Equal(endAt) {
			return &models.BookingDetail{Booking: *booking}, nil
		}
		return nil, apperr.Conflict("booking already confirmed for a different window")
	}

	nextStatus, err := requireTransition(booking.Status, TransitionConfirmReschedule, role)
	if err != nil {
		return nil, err
	}
	// Confirmation belongs to the counterparty; the proposer cannot approve
	// their own window.
	if booking.ProposedBy != nil && *booking.ProposedBy == actorID {
		return nil, apperr.Unauthorized("proposer cannot confirm their own reschedule")
	}

	if _, err := txBookingRepo.ApplySchedule(ctx, bookingID, startAt, endAt); err != nil {
		return nil, err
	}
	updated, err := txBookingRepo.UpdateStatusIfCurrent(ctx, bookingID, booking.Status, nextStatus)
	if err != nil {
		return nil, mapConflict(err, "booking status changed concurrently")
	}

	if err := s.audit(ctx, tx, actorID, bookingID, "booking.reschedule_confirmed", map[string]any{
		"start_at": startAt,
		"end_at":   endAt,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	// The old meeting no longer matches the schedule; provision a new one.
	s.enqueueIntegration(ctx, updated)

	return &models.BookingDetail{Booking: *updated}, nil
}

// Decline voids the authorization and closes the request. Cancelling an
// authorization is idempotent at the provider, so a retried decline that
// already voided the funds still succeeds.
func (s *BookingService) Decline(ctx context.Context, professionalID, bookingID int64) (*models.BookingDetail, error) {
	return s.voidRequest(ctx, professionalID, models.RoleProfessional, bookingID, TransitionDecline, "booking.declined", NotifyBookingDeclined)
}

// Expire is the sweep-driven counterpart of Decline for requests past their
// expires_at.
func (s *BookingService) Expire(ctx context.Context, bookingID int64) (*models.BookingDetail, error) {
	return s.voidRequest(ctx, 0, RoleSystem, bookingID, TransitionExpire, "booking.expired", NotifyBookingExpired)
}

func (s *BookingService) voidRequest(
	ctx context.Context,
	actorID int64,
	role string,
	bookingID int64,
	transition Transition,
	auditAction string,
	notifyTemplate string,
) (*models.BookingDetail, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txBookingRepo := repository.NewBookingRepository(tx)
	txPaymentRepo := repository.NewPaymentRepository(tx)

	booking, err := txBookingRepo.GetByIDForUpdate(ctx, bookingID)
	if err != nil {
		return nil, mapNoRows(err, "booking not found")
	}
	if role == models.RoleProfessional && booking.ProfessionalID != actorID {
		return nil, apperr.Unauthorized("not the professional on this booking")
	}
	nextStatus, err := requireTransition(booking.Status, transition, role)
	if err != nil {
		return nil, err
	}

	payment, err := txPaymentRepo.GetByBookingIDForUpdate(ctx, bookingID)
	if err != nil {
		return nil, mapNoRows(err, "payment not found")
	}

	if err := s.escrow.CancelAuthorization(ctx, payment.ProviderIntentRef); err != nil {
		return nil, err
	}

	payment, err = txPaymentRepo.AddRefund(ctx, payment.ID, payment.RemainingCents(), models.PaymentRefunded)
	if err != nil {
		return nil, mapConflict(err, "payment state changed concurrently")
	}
	updated, err := txBookingRepo.UpdateStatusIfCurrent(ctx, bookingID, booking.Status, nextStatus)
	if err != nil {
		return nil, mapConflict(err, "booking status changed concurrently")
	}

	if err := s.audit(ctx, tx, actorID, bookingID, auditAction, map[string]any{
		"intent_ref": payment.ProviderIntentRef,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	if err := s.notifier.Send(ctx, booking.CandidateID, notifyTemplate, map[string]string{
		"booking_id": fmt.Sprint(bookingID),
	}); err != nil {
		s.logger.Warn("notify failed", zap.String("template", notifyTemplate), zap.Error(err))
	}

	return &models.BookingDetail{Booking: *updated, Payment: payment}, nil
}

// Cancel applies the cancellation policy. A candidate cancelling strictly
// less than six hours before the start forfeits the funds: the payment is
// released and a pending payout for the net amount is created for the
// professional. Every other cancellation refunds the full remaining gross.
func (s *BookingService) Cancel(ctx context.Context, actorID, bookingID int64) (*models.BookingDetail, error) {
	now := time.Now().UTC()

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txBookingRepo := repository.NewBookingRepository(tx)
	txPaymentRepo := repository.NewPaymentRepository(tx)
	txPayoutRepo := repository.NewPayoutRepository(tx)

	booking, err := txBookingRepo.GetByIDForUpdate(ctx, bookingID)
	if err != nil {
		return nil, mapNoRows(err, "booking not found")
	}
	role, err := partyRole(booking, actorID)
	if err != nil {
		return nil, err
	}
	nextStatus, err := requireTransition(booking.Status, TransitionCancel, role)
	if err != nil {
		return nil, err
	}

	payment, err := txPaymentRepo.GetByBookingIDForUpdate(ctx, bookingID)
	if err != nil {
		return nil, mapNoRows(err, "payment not found")
	}

	late := role == models.RoleCandidate &&
		booking.StartAt != nil &&
		IsLateCancellation(*booking.StartAt, now)

	var payout *models.Payout
	if late {
		// Penalty path: held funds go to the professional instead of back to
		// the candidate. No provider call happens here; the settlement job
		// issues the transfer against the pending payout.
		payment, err = txPaymentRepo.UpdateStatusIfCurrent(ctx, payment.ID, payment.Status, models.PaymentReleased)
		if err != nil {
			return nil, mapConflict(err, "payment state changed concurrently")
		}
		payout, err = txPayoutRepo.Create(ctx, repository.CreatePayoutInput{
			BookingID:          bookingID,
			AmountNetCents:     NetAmountCents(payment.AmountGrossCents, payment.PlatformFeeCents),
			DestinationAccount: s.payoutDestination(ctx, booking.ProfessionalID),
		})
		if err != nil {
			return nil, err
		}
		if _, err := txBookingRepo.SetLateCancellation(ctx, bookingID); err != nil {
			return nil, err
		}
	} else {
		remaining := payment.RemainingCents()
		if remaining > 0 {
			if _, err := s.escrow.Refund(ctx, payment.ProviderIntentRef, &remaining); err != nil {
				return nil, err
			}
			payment, err = txPaymentRepo.AddRefund(ctx, payment.ID, remaining, models.PaymentRefunded)
			if err != nil {
				return nil, mapConflict(err, "payment state changed concurrently")
			}
		}
	}

	updated, err := txBookingRepo.UpdateStatusIfCurrent(ctx, bookingID, booking.Status, nextStatus)
	if err != nil {
		return nil, mapConflict(err, "booking status changed concurrently")
	}

	if err := s.audit(ctx, tx, actorID, bookingID, "booking.cancelled", map[string]any{
		"late": late,
		"role": role,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	if payout != nil {
		s.enqueuePayout(ctx, payout.ID)
	}
	counterparty := booking.ProfessionalID
	if role == models.RoleProfessional {
		counterparty = booking.CandidateID
	}
	if err := s.notifier.Send(ctx, counterparty, NotifyBookingCancelled, map[string]string{
		"booking_id": fmt.Sprint(bookingID),
	}); err != nil {
		s.logger.Warn("notify failed", zap.String("template", NotifyBookingCancelled), zap.Error(err))
	}

	updated.LateCancellation = late
	return &models.BookingDetail{Booking: *updated, Payment: payment, Payout: payout}, nil
}

// OpenDispute freezes the booking pending an admin decision.
func (s *BookingService) OpenDispute(
	ctx context.Context,
	candidateID int64,
	bookingID int64,
	reason string,
) (*models.Dispute, error) {
	if reason == "" {
		return nil, apperr.Validation("reason is required")
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txBookingRepo := repository.NewBookingRepository(tx)
	txDisputeRepo := repository.NewDisputeRepository(tx)

	booking, err := txBookingRepo.GetByIDForUpdate(ctx, bookingID)
	if err != nil {
		return nil, mapNoRows(err, "booking not found")
	}
	if booking.CandidateID != candidateID {
		return nil, apperr.Unauthorized("not the candidate on this booking")
	}
	nextStatus, err := requireTransition(booking.Status, TransitionOpenDispute, models.RoleCandidate)
	if err != nil {
		return nil, err
	}

	if _, err := txBookingRepo.UpdateStatusIfCurrent(ctx, bookingID, booking.Status, nextStatus); err != nil {
		return nil, mapConflict(err, "booking status changed concurrently")
	}
	dispute, err := txDisputeRepo.Create(ctx, bookingID, reason)
	if err != nil {
		return nil, err
	}

	if err := s.audit(ctx, tx, candidateID, bookingID, "booking.dispute_opened", map[string]any{
		"dispute_id": dispute.ID,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return dispute, nil
}

// RecordAttendance stamps a join/leave signal from the meeting webhook onto
// the booking.
func (s *BookingService) RecordAttendance(
	ctx context.Context,
	meetingRef string,
	participantID int64,
	joinedAt time.Time,
) error {
	booking, err := s.bookingRepo.GetByMeetingRef(ctx, meetingRef)
	if err != nil {
		return mapNoRows(err, "no booking for meeting")
	}
	role, err := partyRole(booking, participantID)
	if err != nil {
		return err
	}
	_, err = s.bookingRepo.StampJoin(ctx, booking.ID, role, joinedAt.UTC())
	return err
}

// SweepExpiredRequests expires every requested booking past its deadline.
// Each booking is its own transaction; one failure does not stall the sweep.
func (s *BookingService) SweepExpiredRequests(ctx context.Context, now time.Time) error {
	stale, err := s.bookingRepo.ListRequestedExpired(ctx, now, 100)
	if err != nil {
		return err
	}
	for _, booking := range stale {
		if _, err := s.Expire(ctx, booking.ID); err != nil {
			if apperr.KindOf(err) == apperr.KindConflict {
				continue
			}
			s.logger.Error("expire booking", zap.Int64("booking_id", booking.ID), zap.Error(err))
		}
	}
	return nil
}

// SweepEndedCalls resolves attendance for accepted bookings whose window has
// ended: both sides joined moves the call into the feedback stage, a
// candidate no-show releases the funds to the professional, and a missing
// professional refunds the candidate in full.
func (s *BookingService) SweepEndedCalls(ctx context.Context, now time.Time) error {
	ended, err := s.bookingRepo.ListAcceptedEndedBefore(ctx, now, 100)
	if err != nil {
		return err
	}
	for _, booking := range ended {
		if err := s.resolveAttendance(ctx, booking.ID); err != nil {
			if apperr.KindOf(err) == apperr.KindConflict {
				continue
			}
			s.logger.Error("resolve attendance", zap.Int64("booking_id", booking.ID), zap.Error(err))
		}
	}
	return nil
}

func (s *BookingService) resolveAttendance(ctx context.Context, bookingID int64) error {
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

	booking, err := txBookingRepo.GetByIDForUpdate(ctx, bookingID)
	if err != nil {
		return mapNoRows(err, "booking not found")
	}
	if booking.Status != models.BookingAccepted {
		return apperr.Conflict("booking no longer accepted")
	}

	outcome := attendanceOutcome(booking)
	var transition Transition
	switch outcome {
	case models.AttendanceBothJoined:
		transition = TransitionCompleteCall
	case models.AttendanceCandidateNoShow:
		transition = TransitionReleaseNoShow
	default:
		// Professional absent, or nobody showed: the candidate gets the
		// money back either way.
		transition = TransitionRefundNoShow
	}
	nextStatus, err := requireTransition(booking.Status, transition, RoleSystem)
	if err != nil {
		return err
	}

	var payout *models.Payout
	switch transition {
	case TransitionReleaseNoShow:
		payment, err := txPaymentRepo.GetByBookingIDForUpdate(ctx, bookingID)
		if err != nil {
			return mapNoRows(err, "payment not found")
		}
		payment, err = txPaymentRepo.UpdateStatusIfCurrent(ctx, payment.ID, payment.Status, models.PaymentReleased)
		if err != nil {
			return mapConflict(err, "payment state changed concurrently")
		}
		payout, err = txPayoutRepo.Create(ctx, repository.CreatePayoutInput{
			BookingID:          bookingID,
			AmountNetCents:     NetAmountCents(payment.AmountGrossCents, payment.PlatformFeeCents),
			DestinationAccount: s.payoutDestination(ctx, booking.ProfessionalID),
		})
		if err != nil {
			return err
		}
	case TransitionRefundNoShow:
		payment, err := txPaymentRepo.GetByBookingIDForUpdate(ctx, bookingID)
		if err != nil {
			return mapNoRows(err, "payment not found")
		}
		remaining := payment.RemainingCents()
		if remaining > 0 {
			if _, err := s.escrow.Refund(ctx, payment.ProviderIntentRef, &remaining); err != nil {
				return err
			}
			if _, err := txPaymentRepo.AddRefund(ctx, payment.ID, remaining, models.PaymentRefunded); err != nil {
				return mapConflict(err, "payment state changed concurrently")
			}
		}
	}

	if _, err := txBookingRepo.SetAttendanceOutcome(ctx, bookingID, outcome); err != nil {
		return err
	}
	if _, err := txBookingRepo.UpdateStatusIfCurrent(ctx, bookingID, booking.Status, nextStatus); err != nil {
		return mapConflict(err, "booking status changed concurrently")
	}

	if err := s.audit(ctx, tx, 0, bookingID, "booking.attendance_resolved", map[string]any{
		"outcome": outcome,
	}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	if payout != nil {
		s.enqueuePayout(ctx, payout.ID)
	}
	return nil
}

func (s *BookingService) Get(ctx context.Context, actorID int64, role string, bookingID int64) (*models.BookingDetail, error) {
	booking, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, mapNoRows(err, "booking not found")
	}
	if role != models.RoleAdmin {
		if _, err := partyRole(booking, actorID); err != nil {
			return nil, err
		}
	}

	detail := &models.BookingDetail{Booking: *booking}
	payment, err := s.paymentRepo.GetByBookingID(ctx, bookingID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err == nil {
		detail.Payment = payment
	}
	payout, err := s.payoutRepo.GetByBookingID(ctx, bookingID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err == nil {
		detail.Payout = payout
	}
	return detail, nil
}

func (s *BookingService) List(ctx context.Context, actorID int64, role, status string) ([]models.Booking, error) {
	return s.bookingRepo.List(ctx, repository.BookingListFilter{ActorID: actorID, Role: role, Status: status})
}

func (s *BookingService) enqueueIntegration(ctx context.Context, booking *models.Booking) {
	startUnix := int64(0)
	if booking.StartAt != nil {
		startUnix = booking.StartAt.Unix()
	}
	payload := jobs.IntegrationSetupPayload{BookingID: booking.ID, StartAtUnix: startUnix}
	jobID := jobs.DeterministicID(jobs.JobIntegrationSetup, fmt.Sprintf("%d:%d", booking.ID, startUnix))
	if err := s.enqueuer.Enqueue(ctx, jobs.JobIntegrationSetup, payload, jobID); err != nil {
		s.logger.Error("enqueue integration setup", zap.Int64("booking_id", booking.ID), zap.Error(err))
	}
}

func (s *BookingService) enqueuePayout(ctx context.Context, payoutID int64) {
	payload := jobs.PayoutSettlePayload{PayoutID: payoutID}
	jobID := jobs.DeterministicID(jobs.JobPayoutSettle, fmt.Sprint(payoutID))
	if err := s.enqueuer.Enqueue(ctx, jobs.JobPayoutSettle, payload, jobID); err != nil {
		s.logger.Error("enqueue payout settle", zap.Int64("payout_id", payoutID), zap.Error(err))
	}
}

// payoutDestination resolves the professional's payout account, falling back
// to the placeholder so settlement halts for operator attention rather than
// failing the cancellation.
func (s *BookingService) payoutDestination(ctx context.Context, professionalID int64) string {
	professional, err := s.userRepo.GetByID(ctx, professionalID)
	if err != nil || professional.PayoutRecipientRef == nil || *professional.PayoutRecipientRef == "" {
		return models.PlaceholderDestination
	}
	return *professional.PayoutRecipientRef
}

func (s *BookingService) audit(
	ctx context.Context,
	tx pgx.Tx,
	actorID int64,
	bookingID int64,
	action string,
	metadata map[string]any,
) error {
	return repository.NewAuditRepository(tx).Append(ctx, models.AuditEntry{
		ActorID:  actorID,
		Entity:   "booking",
		EntityID: bookingID,
		Action:   action,
		Metadata: metadata,
	})
}

func attendanceOutcome(booking *models.Booking) string {
	candidateJoined := booking.CandidateJoinedAt != nil
	professionalJoined := booking.ProfessionalJoinedAt != nil
	switch {
	case candidateJoined && professionalJoined:
		return models.AttendanceBothJoined
	case professionalJoined:
		return models.AttendanceCandidateNoShow
	case candidateJoined:
		return models.AttendanceProfessionalNoShow
	default:
		return models.AttendanceNeitherJoined
	}
}

func partyRole(booking *models.Booking, actorID int64) (string, error) {
	switch actorID {
	case booking.CandidateID:
		return models.RoleCandidate, nil
	case booking.ProfessionalID:
		return models.RoleProfessional, nil
	}
	return "", apperr.Unauthorized("not a party to this booking")
}

func mapNoRows(err error, message string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound(message)
	}
	return err
}

func mapConflict(err error, message string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.Conflict(message)
	}
	return err
}
