package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/consultapp/ConsultAppBack/internal/apperr"
	"github.com/consultapp/ConsultAppBack/internal/jobs"
	"github.com/consultapp/ConsultAppBack/internal/meeting"
	"github.com/consultapp/ConsultAppBack/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type webhookEventStore interface {
	InsertIfAbsent(ctx context.Context, event models.WebhookEvent) (*models.WebhookEvent, bool, error)
	GetByContentHash(ctx context.Context, contentHash string) (*models.WebhookEvent, error)
	MarkProcessed(ctx context.Context, contentHash string) error
}

type attendanceRecorder interface {
	RecordAttendance(ctx context.Context, meetingRef string, participantID int64, joinedAt time.Time) error
}

// participantEvent is the meeting provider's webhook body.
type participantEvent struct {
	Event         string    `json:"event"`
	MeetingRef    string    `json:"meeting_ref"`
	ParticipantID int64     `json:"participant_id"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// WebhookService verifies, deduplicates and queues meeting-provider
// deliveries, and processes the queued attendance events.
type WebhookService struct {
	events   webhookEventStore
	recorder attendanceRecorder
	enqueuer jobs.Enqueuer
	logger   *zap.Logger
	secret   string
}

func NewWebhookService(
	events webhookEventStore,
	recorder attendanceRecorder,
	enqueuer jobs.Enqueuer,
	logger *zap.Logger,
	secret string,
) *WebhookService {
	return &WebhookService{events: events, recorder: recorder, enqueuer: enqueuer, logger: logger, secret: secret}
}

// Ingest verifies the delivery and enqueues attendance processing once per
// content hash. A duplicate of an already-processed delivery is acknowledged
// without new work; a duplicate of an unprocessed one re-enqueues, covering a
// first attempt that died before completing.
func (s *WebhookService) Ingest(
	ctx context.Context,
	timestamp string,
	signature string,
	body []byte,
) (duplicate bool, err error) {
	if !meeting.VerifySignature(s.secret, timestamp, body, signature) {
		return false, apperr.Unauthorized("invalid webhook signature")
	}

	contentHash := meeting.EventHash(timestamp, signature, body)
	stored, inserted, err := s.events.InsertIfAbsent(ctx, models.WebhookEvent{
		ID:          uuid.NewString(),
		ContentHash: contentHash,
		Signature:   signature,
		Timestamp:   timestamp,
		Body:        body,
	})
	if err != nil {
		return false, err
	}

	if !inserted && stored.Status == models.WebhookProcessed {
		return true, nil
	}

	payload := jobs.WebhookAttendancePayload{ContentHash: contentHash}
	jobID := jobs.DeterministicID(jobs.JobWebhookAttendance, contentHash)
	if err := s.enqueuer.Enqueue(ctx, jobs.JobWebhookAttendance, payload, jobID); err != nil {
		return !inserted, err
	}
	return !inserted, nil
}

// ProcessAttendance runs in the worker: it stamps the join signal onto the
// booking and marks the event processed.
func (s *WebhookService) ProcessAttendance(ctx context.Context, contentHash string) error {
	event, err := s.events.GetByContentHash(ctx, contentHash)
	if err != nil {
		return mapNoRows(err, "webhook event not found")
	}
	if event.Status == models.WebhookProcessed {
		return nil
	}

	var parsed participantEvent
	if err := json.Unmarshal(event.Body, &parsed); err != nil {
		s.logger.Warn("unparseable webhook body", zap.String("content_hash", contentHash), zap.Error(err))
		return s.events.MarkProcessed(ctx, contentHash)
	}

	switch parsed.Event {
	case meeting.EventParticipantJoined:
		if err := s.recorder.RecordAttendance(ctx, parsed.MeetingRef, parsed.ParticipantID, parsed.OccurredAt); err != nil {
			if apperr.KindOf(err) == apperr.KindNotFound || apperr.KindOf(err) == apperr.KindUnauthorized {
				// Signals for unknown meetings or non-participants are
				// dropped, not retried.
				s.logger.Warn("attendance signal ignored",
					zap.String("meeting_ref", parsed.MeetingRef),
					zap.Int64("participant_id", parsed.ParticipantID),
					zap.Error(err),
				)
			} else {
				return err
			}
		}
	case meeting.EventParticipantLeft:
		// Leave events carry no state today; joins alone decide attendance.
	default:
		s.logger.Debug("unhandled webhook event", zap.String("event", parsed.Event))
	}

	return s.events.MarkProcessed(ctx, contentHash)
}
