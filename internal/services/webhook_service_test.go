package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/consultapp/ConsultAppBack/internal/apperr"
	"github.com/consultapp/ConsultAppBack/internal/models"
	"go.uber.org/zap"
)

type stubEventStore struct {
	existing  *models.WebhookEvent
	inserted  *models.WebhookEvent
	processed []string
}

func (s *stubEventStore) InsertIfAbsent(ctx context.Context, event models.WebhookEvent) (*models.WebhookEvent, bool, error) {
	if s.existing != nil {
		return s.existing, false, nil
	}
	event.Status = models.WebhookReceived
	s.inserted = &event
	return s.inserted, true, nil
}

func (s *stubEventStore) GetByContentHash(ctx context.Context, contentHash string) (*models.WebhookEvent, error) {
	if s.existing != nil {
		return s.existing, nil
	}
	return s.inserted, nil
}

func (s *stubEventStore) MarkProcessed(ctx context.Context, contentHash string) error {
	s.processed = append(s.processed, contentHash)
	return nil
}

type stubRecorder struct {
	calls []string
	err   error
}

func (s *stubRecorder) RecordAttendance(ctx context.Context, meetingRef string, participantID int64, joinedAt time.Time) error {
	s.calls = append(s.calls, meetingRef)
	return s.err
}

type recordingEnqueuer struct {
	names []string
	ids   []string
}

func (s *recordingEnqueuer) Enqueue(ctx context.Context, name string, payload any, jobID string) error {
	s.names = append(s.names, name)
	s.ids = append(s.ids, jobID)
	return nil
}

const webhookTestSecret = "test-secret"

func signBody(timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(webhookTestSecret))
	mac.Write([]byte(timestamp + "." + string(body)))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestWebhookIngest(t *testing.T) {
	body := []byte(`{"event":"participant_joined","meeting_ref":"mtg_1","participant_id":5,"occurred_at":"2026-05-01T10:00:00Z"}`)
	timestamp := "1777600000"
	signature := signBody(timestamp, body)

	t.Run("rejects a bad signature", func(t *testing.T) {
		svc := NewWebhookService(&stubEventStore{}, &stubRecorder{}, &recordingEnqueuer{}, zap.NewNop(), webhookTestSecret)
		_, err := svc.Ingest(context.Background(), timestamp, "deadbeef", body)
		if apperr.KindOf(err) != apperr.KindUnauthorized {
			t.Fatalf("expected unauthorized, got %v", err)
		}
	})

	t.Run("fresh delivery enqueues processing", func(t *testing.T) {
		store := &stubEventStore{}
		enq := &recordingEnqueuer{}
		svc := NewWebhookService(store, &stubRecorder{}, enq, zap.NewNop(), webhookTestSecret)

		duplicate, err := svc.Ingest(context.Background(), timestamp, signature, body)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if duplicate {
			t.Error("first delivery reported as duplicate")
		}
		if len(enq.names) != 1 {
			t.Fatalf("expected 1 enqueue, got %d", len(enq.names))
		}
		if store.inserted == nil || store.inserted.ContentHash == "" {
			t.Error("event was not stored with a content hash")
		}
	})

	t.Run("processed duplicate is acknowledged without work", func(t *testing.T) {
		store := &stubEventStore{existing: &models.WebhookEvent{Status: models.WebhookProcessed}}
		enq := &recordingEnqueuer{}
		svc := NewWebhookService(store, &stubRecorder{}, enq, zap.NewNop(), webhookTestSecret)

		duplicate, err := svc.Ingest(context.Background(), timestamp, signature, body)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !duplicate {
			t.Error("expected duplicate")
		}
		if len(enq.names) != 0 {
			t.Errorf("expected no enqueue, got %d", len(enq.names))
		}
	})

	t.Run("unprocessed duplicate is re-enqueued", func(t *testing.T) {
		store := &stubEventStore{existing: &models.WebhookEvent{Status: models.WebhookReceived}}
		enq := &recordingEnqueuer{}
		svc := NewWebhookService(store, &stubRecorder{}, enq, zap.NewNop(), webhookTestSecret)

		duplicate, err := svc.Ingest(context.Background(), timestamp, signature, body)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !duplicate {
			t.Error("expected duplicate")
		}
		if len(enq.names) != 1 {
			t.Errorf("expected a re-enqueue, got %d", len(enq.names))
		}
	})
}

func TestWebhookProcessAttendance(t *testing.T) {
	joinBody := []byte(`{"event":"participant_joined","meeting_ref":"mtg_1","participant_id":5,"occurred_at":"2026-05-01T10:00:00Z"}`)

	t.Run("join event reaches the recorder and marks processed", func(t *testing.T) {
		store := &stubEventStore{existing: &models.WebhookEvent{
			ContentHash: "abc",
			Status:      models.WebhookReceived,
			Body:        joinBody,
		}}
		rec := &stubRecorder{}
		svc := NewWebhookService(store, rec, &recordingEnqueuer{}, zap.NewNop(), webhookTestSecret)

		if err := svc.ProcessAttendance(context.Background(), "abc"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(rec.calls) != 1 || rec.calls[0] != "mtg_1" {
			t.Errorf("expected one recorder call for mtg_1, got %v", rec.calls)
		}
		if len(store.processed) != 1 {
			t.Errorf("expected event marked processed, got %v", store.processed)
		}
	})

	t.Run("already processed event is a no-op", func(t *testing.T) {
		store := &stubEventStore{existing: &models.WebhookEvent{
			ContentHash: "abc",
			Status:      models.WebhookProcessed,
			Body:        joinBody,
		}}
		rec := &stubRecorder{}
		svc := NewWebhookService(store, rec, &recordingEnqueuer{}, zap.NewNop(), webhookTestSecret)

		if err := svc.ProcessAttendance(context.Background(), "abc"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(rec.calls) != 0 {
			t.Errorf("expected no recorder calls, got %v", rec.calls)
		}
	})

	t.Run("unknown meeting is dropped, not retried", func(t *testing.T) {
		store := &stubEventStore{existing: &models.WebhookEvent{
			ContentHash: "abc",
			Status:      models.WebhookReceived,
			Body:        joinBody,
		}}
		rec := &stubRecorder{err: apperr.NotFound("no booking for meeting")}
		svc := NewWebhookService(store, rec, &recordingEnqueuer{}, zap.NewNop(), webhookTestSecret)

		if err := svc.ProcessAttendance(context.Background(), "abc"); err != nil {
			t.Fatalf("expected drop, got %v", err)
		}
		if len(store.processed) != 1 {
			t.Error("expected event marked processed after drop")
		}
	})

	t.Run("unparseable body is marked processed", func(t *testing.T) {
		store := &stubEventStore{existing: &models.WebhookEvent{
			ContentHash: "abc",
			Status:      models.WebhookReceived,
			Body:        []byte("not json"),
		}}
		svc := NewWebhookService(store, &stubRecorder{}, &recordingEnqueuer{}, zap.NewNop(), webhookTestSecret)

		if err := svc.ProcessAttendance(context.Background(), "abc"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(store.processed) != 1 {
			t.Error("expected event marked processed")
		}
	})
}
