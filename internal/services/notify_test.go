package services

import (
	"context"
	"errors"
	"testing"

	"github.com/consultapp/ConsultAppBack/internal/jobs"
	"go.uber.org/zap"
)

// notifyEnqueuer records notification sends and can fail selected users.
type notifyEnqueuer struct {
	sent   []int64
	failOn map[int64]error
}

func (s *notifyEnqueuer) Enqueue(ctx context.Context, name string, payload any, jobID string) error {
	p, ok := payload.(jobs.NotifyPayload)
	if !ok {
		return errors.New("unexpected payload type")
	}
	s.sent = append(s.sent, p.UserID)
	if err, ok := s.failOn[p.UserID]; ok {
		return err
	}
	return nil
}

func TestNotifierSendBoth(t *testing.T) {
	sendErr := errors.New("queue unavailable")

	t.Run("both succeed", func(t *testing.T) {
		enq := &notifyEnqueuer{}
		n := NewNotifier(enq, zap.NewNop())
		if err := n.SendBoth(context.Background(), 1, 2, NotifyBookingAccepted, nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(enq.sent) != 2 {
			t.Errorf("expected 2 sends, got %d", len(enq.sent))
		}
	})

	t.Run("one failure is tolerated", func(t *testing.T) {
		enq := &notifyEnqueuer{failOn: map[int64]error{1: sendErr}}
		n := NewNotifier(enq, zap.NewNop())
		if err := n.SendBoth(context.Background(), 1, 2, NotifyBookingCancelled, nil); err != nil {
			t.Fatalf("expected nil when one send lands, got %v", err)
		}
		if len(enq.sent) != 2 {
			t.Errorf("expected both sends attempted, got %d", len(enq.sent))
		}
	})

	t.Run("both failing fails the pair", func(t *testing.T) {
		enq := &notifyEnqueuer{failOn: map[int64]error{1: sendErr, 2: sendErr}}
		n := NewNotifier(enq, zap.NewNop())
		if err := n.SendBoth(context.Background(), 1, 2, NotifyBookingCancelled, nil); err == nil {
			t.Fatal("expected an error when both sends fail")
		}
	})
}
