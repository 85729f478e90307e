package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/consultapp/ConsultAppBack/internal/apperr"
	"github.com/consultapp/ConsultAppBack/internal/escrow"
	"github.com/consultapp/ConsultAppBack/internal/jobs"
	"github.com/consultapp/ConsultAppBack/internal/meeting"
	"github.com/consultapp/ConsultAppBack/internal/models"
	"github.com/consultapp/ConsultAppBack/internal/repository"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

var (
	testDBOnce sync.Once
	testDBPool *pgxpool.Pool
	testDBErr  error
)

type transferCall struct {
	amountCents  int64
	destination  string
	groupKey     string
	sourceCharge string
}

type refundCall struct {
	intentRef   string
	amountCents int64
}

// escrowRecorder stands in for the payment provider and records every money
// movement the services request.
type escrowRecorder struct {
	transfers []transferCall
	refunds   []refundCall
	settled   map[string]string
}

var _ escrow.Client = (*escrowRecorder)(nil)

func (e *escrowRecorder) Authorize(ctx context.Context, amountCents int64, customerRef string, metadata map[string]any) (string, error) {
	return fmt.Sprintf("chrg_test_%d", amountCents), nil
}

func (e *escrowRecorder) Capture(ctx context.Context, intentRef string) error { return nil }

func (e *escrowRecorder) CancelAuthorization(ctx context.Context, intentRef string) error {
	return nil
}

func (e *escrowRecorder) Refund(ctx context.Context, intentRef string, amountCents *int64) (string, error) {
	amount := int64(-1)
	if amountCents != nil {
		amount = *amountCents
	}
	e.refunds = append(e.refunds, refundCall{intentRef: intentRef, amountCents: amount})
	return fmt.Sprintf("rfnd_test_%d", len(e.refunds)), nil
}

func (e *escrowRecorder) Transfer(ctx context.Context, amountCents int64, destination, groupKey string, metadata map[string]any, sourceChargeRef string) (string, error) {
	e.transfers = append(e.transfers, transferCall{
		amountCents:  amountCents,
		destination:  destination,
		groupKey:     groupKey,
		sourceCharge: sourceChargeRef,
	})
	return fmt.Sprintf("trsf_test_%d", len(e.transfers)), nil
}

func (e *escrowRecorder) SettledCharge(ctx context.Context, intentRef string) (string, error) {
	if ref, ok := e.settled[intentRef]; ok {
		return ref, nil
	}
	return "", errors.New("charge not settled")
}

type capturedJob struct {
	name    string
	payload any
	jobID   string
}

type captureQueue struct {
	jobs []capturedJob
}

func (q *captureQueue) Enqueue(ctx context.Context, name string, payload any, jobID string) error {
	q.jobs = append(q.jobs, capturedJob{name: name, payload: payload, jobID: jobID})
	return nil
}

func (q *captureQueue) notifications(template string) []jobs.NotifyPayload {
	var out []jobs.NotifyPayload
	for _, job := range q.jobs {
		if job.name != jobs.JobNotifySend {
			continue
		}
		if p, ok := job.payload.(jobs.NotifyPayload); ok && p.Template == template {
			out = append(out, p)
		}
	}
	return out
}

func (q *captureQueue) count(name string) int {
	n := 0
	for _, job := range q.jobs {
		if job.name == name {
			n++
		}
	}
	return n
}

func integrationTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	testDBOnce.Do(func() {
		_ = godotenv.Load(".env")
		_ = godotenv.Load(filepath.Join("..", "..", ".env"))

		dbURL := os.Getenv("DB_URL")
		if dbURL == "" {
			testDBErr = fmt.Errorf("DB_URL is not set")
			return
		}

		cfg, err := pgxpool.ParseConfig(dbURL)
		if err != nil {
			testDBErr = err
			return
		}

		testDBPool, testDBErr = pgxpool.NewWithConfig(context.Background(), cfg)
		if testDBErr != nil {
			return
		}
		testDBErr = testDBPool.Ping(context.Background())
	})

	if testDBErr != nil {
		t.Skipf("skipping integration test: %v", testDBErr)
	}
	return testDBPool
}

type moneyFlowEnv struct {
	pool     *pgxpool.Pool
	escrow   *escrowRecorder
	queue    *captureQueue
	bookings *BookingService
	disputes *DisputeService
	payouts  *PayoutService
	feedback *FeedbackService
}

func newMoneyFlowEnv(pool *pgxpool.Pool) *moneyFlowEnv {
	escrowClient := &escrowRecorder{settled: map[string]string{}}
	queue := &captureQueue{}
	logger := zap.NewNop()
	notifier := NewNotifier(queue, logger)

	bookingRepo := repository.NewBookingRepository(pool)
	paymentRepo := repository.NewPaymentRepository(pool)
	payoutRepo := repository.NewPayoutRepository(pool)
	feedbackRepo := repository.NewFeedbackRepository(pool)
	userRepo := repository.NewUserRepository(pool)

	return &moneyFlowEnv{
		pool:   pool,
		escrow: escrowClient,
		queue:  queue,
		bookings: NewBookingService(
			pool, bookingRepo, paymentRepo, payoutRepo, userRepo,
			escrowClient, meeting.LocalProvider{}, queue, notifier, logger, 0.20,
		),
		disputes: NewDisputeService(pool, userRepo, escrowClient, logger),
		payouts:  NewPayoutService(pool, bookingRepo, escrowClient, notifier, logger),
		feedback: NewFeedbackService(
			pool, bookingRepo, feedbackRepo, userRepo,
			StructuralOnlyChecker{}, queue, notifier, logger,
		),
	}
}

func createMoneyTestUser(t *testing.T, ctx context.Context, pool *pgxpool.Pool, role string) int64 {
	t.Helper()

	userRepo := repository.NewUserRepository(pool)
	email := fmt.Sprintf("money-test-%s-%d@example.com", role, time.Now().UnixNano())
	user, err := userRepo.Create(ctx, email, "test-hash", role)
	if err != nil {
		t.Fatalf("Create(%s): %v", role, err)
	}

	if role == models.RoleCandidate {
		if _, err := userRepo.SetPaymentCustomer(ctx, user.ID, "cust_test_"+email); err != nil {
			t.Fatalf("SetPaymentCustomer: %v", err)
		}
	}
	if role == models.RoleProfessional {
		if _, err := userRepo.SetPayoutRecipient(ctx, user.ID, "recp_test_"+email); err != nil {
			t.Fatalf("SetPayoutRecipient: %v", err)
		}
	}
	return user.ID
}

func insertTestBooking(
	t *testing.T,
	ctx context.Context,
	pool *pgxpool.Pool,
	candidateID int64,
	professionalID int64,
	status models.BookingStatus,
	startAt time.Time,
	endAt time.Time,
) int64 {
	t.Helper()

	var id int64
	err := pool.QueryRow(ctx, `
		INSERT INTO bookings (candidate_id, professional_id, price_cents, status, start_at, end_at)
		VALUES ($1, $2, 10000, $3, $4, $5)
		RETURNING id
	`, candidateID, professionalID, status, startAt, endAt).Scan(&id)
	if err != nil {
		t.Fatalf("insert booking: %v", err)
	}
	return id
}

func insertTestPayment(
	t *testing.T,
	ctx context.Context,
	pool *pgxpool.Pool,
	bookingID int64,
	status models.PaymentStatus,
) *models.Payment {
	t.Helper()

	payment, err := repository.NewPaymentRepository(pool).Create(ctx, repository.CreatePaymentInput{
		BookingID:         bookingID,
		AmountGrossCents:  10000,
		PlatformFeeCents:  2000,
		ProviderIntentRef: fmt.Sprintf("chrg_test_b%d", bookingID),
		Status:            status,
	})
	if err != nil {
		t.Fatalf("insert payment: %v", err)
	}
	return payment
}

func cleanupMoneyTestUsers(t *testing.T, ctx context.Context, pool *pgxpool.Pool, userIDs ...int64) {
	t.Helper()

	if len(userIDs) == 0 {
		return
	}
	bookingFilter := "booking_id IN (SELECT id FROM bookings WHERE candidate_id = ANY($1) OR professional_id = ANY($1))"

	for _, stmt := range []string{
		"DELETE FROM audit_log WHERE entity = 'payout' AND entity_id IN (SELECT id FROM payouts WHERE " + bookingFilter + ")",
		"DELETE FROM payouts WHERE " + bookingFilter,
		"DELETE FROM disputes WHERE " + bookingFilter,
		"DELETE FROM call_feedback WHERE " + bookingFilter,
		"DELETE FROM payments WHERE " + bookingFilter,
		"DELETE FROM audit_log WHERE entity IN ('booking', 'dispute') AND entity_id IN (SELECT id FROM bookings WHERE candidate_id = ANY($1) OR professional_id = ANY($1))",
		"DELETE FROM bookings WHERE candidate_id = ANY($1) OR professional_id = ANY($1)",
		"DELETE FROM users WHERE id = ANY($1)",
	} {
		if _, err := pool.Exec(ctx, stmt, userIDs); err != nil {
			t.Fatalf("cleanup: %v", err)
		}
	}
}

func TestCancelInsideSixHoursPaysTheProfessional(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	env := newMoneyFlowEnv(pool)

	candidateID := createMoneyTestUser(t, ctx, pool, models.RoleCandidate)
	professionalID := createMoneyTestUser(t, ctx, pool, models.RoleProfessional)
	t.Cleanup(func() { cleanupMoneyTestUsers(t, ctx, pool, candidateID, professionalID) })

	start := time.Now().UTC().Add(2 * time.Hour)
	bookingID := insertTestBooking(t, ctx, pool, candidateID, professionalID, models.BookingAccepted, start, start.Add(time.Hour))
	insertTestPayment(t, ctx, pool, bookingID, models.PaymentHeld)

	detail, err := env.bookings.Cancel(ctx, candidateID, bookingID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	if detail.Booking.Status != models.BookingCancelled || !detail.Booking.LateCancellation {
		t.Fatalf("expected cancelled late booking, got %q late=%v", detail.Booking.Status, detail.Booking.LateCancellation)
	}
	if detail.Payment.Status != models.PaymentReleased {
		t.Fatalf("expected released payment, got %q", detail.Payment.Status)
	}
	if detail.Payout == nil || detail.Payout.AmountNetCents != 8000 || detail.Payout.Status != models.PayoutPending {
		t.Fatalf("expected 8000 pending payout, got %+v", detail.Payout)
	}
	if len(env.escrow.refunds) != 0 {
		t.Fatalf("late cancellation must not refund, got %+v", env.escrow.refunds)
	}
	if env.queue.count(jobs.JobPayoutSettle) != 1 {
		t.Fatalf("expected one settlement job, got %d", env.queue.count(jobs.JobPayoutSettle))
	}
}

func TestCancelOutsideSixHoursRefundsInFull(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	env := newMoneyFlowEnv(pool)

	candidateID := createMoneyTestUser(t, ctx, pool, models.RoleCandidate)
	professionalID := createMoneyTestUser(t, ctx, pool, models.RoleProfessional)
	t.Cleanup(func() { cleanupMoneyTestUsers(t, ctx, pool, candidateID, professionalID) })

	start := time.Now().UTC().Add(48 * time.Hour)
	bookingID := insertTestBooking(t, ctx, pool, candidateID, professionalID, models.BookingAccepted, start, start.Add(time.Hour))
	payment := insertTestPayment(t, ctx, pool, bookingID, models.PaymentHeld)

	detail, err := env.bookings.Cancel(ctx, candidateID, bookingID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	if detail.Booking.Status != models.BookingCancelled || detail.Booking.LateCancellation {
		t.Fatalf("expected cancelled on-time booking, got %q late=%v", detail.Booking.Status, detail.Booking.LateCancellation)
	}
	if detail.Payment.Status != models.PaymentRefunded || detail.Payment.RefundedAmountCents != 10000 {
		t.Fatalf("expected fully refunded payment, got %+v", detail.Payment)
	}
	if len(env.escrow.refunds) != 1 || env.escrow.refunds[0].amountCents != 10000 || env.escrow.refunds[0].intentRef != payment.ProviderIntentRef {
		t.Fatalf("expected one full refund, got %+v", env.escrow.refunds)
	}
	if detail.Payout != nil {
		t.Fatalf("on-time cancellation must not create a payout, got %+v", detail.Payout)
	}
	if env.queue.count(jobs.JobPayoutSettle) != 0 {
		t.Fatalf("no settlement job expected, got %d", env.queue.count(jobs.JobPayoutSettle))
	}
}

func TestSettleReleasesHeldPaymentOnce(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	env := newMoneyFlowEnv(pool)

	candidateID := createMoneyTestUser(t, ctx, pool, models.RoleCandidate)
	professionalID := createMoneyTestUser(t, ctx, pool, models.RoleProfessional)
	t.Cleanup(func() { cleanupMoneyTestUsers(t, ctx, pool, candidateID, professionalID) })

	start := time.Now().UTC().Add(-3 * time.Hour)
	bookingID := insertTestBooking(t, ctx, pool, candidateID, professionalID, models.BookingCompleted, start, start.Add(time.Hour))
	insertTestPayment(t, ctx, pool, bookingID, models.PaymentHeld)

	payoutRepo := repository.NewPayoutRepository(pool)
	payout, err := payoutRepo.Create(ctx, repository.CreatePayoutInput{
		BookingID:          bookingID,
		AmountNetCents:     8000,
		DestinationAccount: "recp_test_settle",
	})
	if err != nil {
		t.Fatalf("create payout: %v", err)
	}

	if err := env.payouts.Settle(ctx, payout.ID); err != nil {
		t.Fatalf("Settle: %v", err)
	}

	paid, err := payoutRepo.GetByID(ctx, payout.ID)
	if err != nil {
		t.Fatalf("reload payout: %v", err)
	}
	if paid.Status != models.PayoutPaid || paid.TransferRef == nil {
		t.Fatalf("expected paid payout with transfer ref, got %+v", paid)
	}
	settled, err := repository.NewPaymentRepository(pool).GetByBookingID(ctx, bookingID)
	if err != nil {
		t.Fatalf("reload payment: %v", err)
	}
	if settled.Status != models.PaymentReleased {
		t.Fatalf("expected released payment after settlement, got %q", settled.Status)
	}
	if len(env.escrow.transfers) != 1 || env.escrow.transfers[0].amountCents != 8000 {
		t.Fatalf("expected one 8000 transfer, got %+v", env.escrow.transfers)
	}

	// A second delivery of the same settlement is a success with no second
	// transfer.
	if err := env.payouts.Settle(ctx, payout.ID); err != nil {
		t.Fatalf("second Settle: %v", err)
	}
	if len(env.escrow.transfers) != 1 {
		t.Fatalf("already-paid payout issued another transfer: %+v", env.escrow.transfers)
	}
}

func TestDisputeDismissTransfersFromTheSettledCharge(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	env := newMoneyFlowEnv(pool)

	candidateID := createMoneyTestUser(t, ctx, pool, models.RoleCandidate)
	professionalID := createMoneyTestUser(t, ctx, pool, models.RoleProfessional)
	adminID := createMoneyTestUser(t, ctx, pool, models.RoleAdmin)
	t.Cleanup(func() { cleanupMoneyTestUsers(t, ctx, pool, candidateID, professionalID, adminID) })

	start := time.Now().UTC().Add(-24 * time.Hour)
	bookingID := insertTestBooking(t, ctx, pool, candidateID, professionalID, models.BookingDisputePending, start, start.Add(time.Hour))
	payment := insertTestPayment(t, ctx, pool, bookingID, models.PaymentHeld)
	env.escrow.settled[payment.ProviderIntentRef] = "chrg_settled_1"

	dispute, err := repository.NewDisputeRepository(pool).Create(ctx, bookingID, "no-show claim")
	if err != nil {
		t.Fatalf("create dispute: %v", err)
	}

	resolved, err := env.disputes.Resolve(ctx, ResolveDisputeInput{
		DisputeID:  dispute.ID,
		Resolution: "call took place as scheduled",
		Action:     models.DisputeDismiss,
		AdminID:    adminID,
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved.Status != models.DisputeResolved {
		t.Fatalf("expected resolved dispute, got %q", resolved.Status)
	}

	if len(env.escrow.transfers) != 1 {
		t.Fatalf("expected one transfer, got %+v", env.escrow.transfers)
	}
	transfer := env.escrow.transfers[0]
	if transfer.sourceCharge != "chrg_settled_1" {
		t.Fatalf("transfer not scoped to the settled charge: %+v", transfer)
	}
	if transfer.amountCents != 8000 || transfer.groupKey != fmt.Sprintf("booking-%d", bookingID) {
		t.Fatalf("unexpected transfer: %+v", transfer)
	}

	payout, err := repository.NewPayoutRepository(pool).GetByBookingID(ctx, bookingID)
	if err != nil {
		t.Fatalf("reload payout: %v", err)
	}
	if payout.Status != models.PayoutPaid {
		t.Fatalf("expected paid payout, got %q", payout.Status)
	}
	released, err := repository.NewPaymentRepository(pool).GetByBookingID(ctx, bookingID)
	if err != nil {
		t.Fatalf("reload payment: %v", err)
	}
	if released.Status != models.PaymentReleased {
		t.Fatalf("expected released payment, got %q", released.Status)
	}
	booking, err := repository.NewBookingRepository(pool).GetByID(ctx, bookingID)
	if err != nil {
		t.Fatalf("reload booking: %v", err)
	}
	if booking.Status != models.BookingCompleted {
		t.Fatalf("expected completed booking, got %q", booking.Status)
	}
}

func TestFeedbackQCFailureQueuesRevisionNotice(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	env := newMoneyFlowEnv(pool)

	candidateID := createMoneyTestUser(t, ctx, pool, models.RoleCandidate)
	professionalID := createMoneyTestUser(t, ctx, pool, models.RoleProfessional)
	t.Cleanup(func() { cleanupMoneyTestUsers(t, ctx, pool, candidateID, professionalID) })

	start := time.Now().UTC().Add(-5 * time.Hour)
	bookingID := insertTestBooking(t, ctx, pool, candidateID, professionalID, models.BookingCompletedPendingFeedback, start, start.Add(time.Hour))
	insertTestPayment(t, ctx, pool, bookingID, models.PaymentHeld)

	if _, err := repository.NewFeedbackRepository(pool).Upsert(ctx, repository.UpsertFeedbackInput{
		BookingID:   bookingID,
		Text:        words(150),
		ActionItems: []string{"practice systems design", "review SQL basics", "mock interview weekly"},
		Ratings:     map[string]int{"overall": 4},
	}); err != nil {
		t.Fatalf("upsert feedback: %v", err)
	}

	if err := env.feedback.RunQC(ctx, bookingID); err != nil {
		t.Fatalf("RunQC: %v", err)
	}

	feedback, err := repository.NewFeedbackRepository(pool).GetByBookingID(ctx, bookingID)
	if err != nil {
		t.Fatalf("reload feedback: %v", err)
	}
	if feedback.QCStatus != models.QCRevise {
		t.Fatalf("expected revise status, got %q", feedback.QCStatus)
	}

	notices := env.queue.notifications(NotifyFeedbackRevise)
	if len(notices) != 1 || notices[0].UserID != professionalID {
		t.Fatalf("expected one revision notice to the professional, got %+v", notices)
	}
	if !strings.Contains(notices[0].Data["reasons"], "at least 200 words") {
		t.Fatalf("revision notice missing the failure reason: %+v", notices[0].Data)
	}
	if env.queue.count(jobs.JobPayoutSettle) != 0 {
		t.Fatalf("failed QC must not queue a settlement, got %d", env.queue.count(jobs.JobPayoutSettle))
	}
}

func TestConfirmRescheduleRejectsTheProposer(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	env := newMoneyFlowEnv(pool)

	candidateID := createMoneyTestUser(t, ctx, pool, models.RoleCandidate)
	professionalID := createMoneyTestUser(t, ctx, pool, models.RoleProfessional)
	t.Cleanup(func() { cleanupMoneyTestUsers(t, ctx, pool, candidateID, professionalID) })

	start := time.Now().UTC().Add(72 * time.Hour)
	bookingID := insertTestBooking(t, ctx, pool, candidateID, professionalID, models.BookingAccepted, start, start.Add(time.Hour))
	insertTestPayment(t, ctx, pool, bookingID, models.PaymentHeld)

	proposedStart := start.Add(24 * time.Hour)
	proposedEnd := proposedStart.Add(time.Hour)
	if _, err := env.bookings.RequestReschedule(ctx, candidateID, bookingID, proposedStart, proposedEnd); err != nil {
		t.Fatalf("RequestReschedule: %v", err)
	}

	_, err := env.bookings.ConfirmReschedule(ctx, candidateID, bookingID, proposedStart, proposedEnd)
	if apperr.KindOf(err) != apperr.KindUnauthorized {
		t.Fatalf("expected Unauthorized for self-confirmation, got %v", err)
	}

	detail, err := env.bookings.ConfirmReschedule(ctx, professionalID, bookingID, proposedStart, proposedEnd)
	if err != nil {
		t.Fatalf("counterparty ConfirmReschedule: %v", err)
	}
	if detail.Booking.Status != models.BookingAccepted {
		t.Fatalf("expected accepted booking, got %q", detail.Booking.Status)
	}
	if detail.Booking.StartAt == nil || !detail.Booking.StartAt.Equal(proposedStart) {
		t.Fatalf("confirmed window not applied: %+v", detail.Booking)
	}
}
