package services

import (
	"context"
	"fmt"

	"github.com/consultapp/ConsultAppBack/internal/jobs"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Notification templates. Content rendering happens in the notification
// consumer; only the enqueue contract lives here.
const (
	NotifyBookingAccepted  = "booking_accepted"
	NotifyBookingDeclined  = "booking_declined"
	NotifyBookingExpired   = "booking_expired"
	NotifyBookingCancelled = "booking_cancelled"
	NotifyFeedbackRevise   = "feedback_needs_revision"
	NotifyPayoutReleased   = "payout_released"
)

// Notifier enqueues notification jobs. Each send is one queue message with a
// fresh id: notifications are fire-and-forget rather than deduplicated.
type Notifier struct {
	enqueuer jobs.Enqueuer
	logger   *zap.Logger
}

func NewNotifier(enqueuer jobs.Enqueuer, logger *zap.Logger) *Notifier {
	return &Notifier{enqueuer: enqueuer, logger: logger}
}

func (n *Notifier) Send(ctx context.Context, userID int64, template string, data map[string]string) error {
	payload := jobs.NotifyPayload{UserID: userID, Template: template, Data: data}
	return n.enqueuer.Enqueue(ctx, jobs.JobNotifySend, payload, uuid.NewString())
}

// SendBoth fans out to two recipients independently and fails only when both
// sends fail; one landing is enough for the pair to count as delivered.
func (n *Notifier) SendBoth(ctx context.Context, firstID, secondID int64, template string, data map[string]string) error {
	firstErr := n.Send(ctx, firstID, template, data)
	secondErr := n.Send(ctx, secondID, template, data)

	if firstErr != nil {
		n.logger.Warn("notification send failed", zap.Int64("user_id", firstID), zap.Error(firstErr))
	}
	if secondErr != nil {
		n.logger.Warn("notification send failed", zap.Int64("user_id", secondID), zap.Error(secondErr))
	}
	if firstErr != nil && secondErr != nil {
		return fmt.Errorf("both notification sends failed: %v; %v", firstErr, secondErr)
	}
	return nil
}
