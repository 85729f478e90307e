// Package jobs is the background-job layer: a rabbitmq-backed queue of named
// jobs with JSON payloads, deterministic ids for de-duplication, and the
// worker that drives time-based booking transitions.
package jobs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Job names double as routing keys on the topic exchange.
const (
	JobBookingExpireSweep = "booking.expire.sweep"
	JobBookingNoShowSweep = "booking.noshow.sweep"
	JobIntegrationSetup   = "integration.setup"
	JobFeedbackQC         = "feedback.qc"
	JobPayoutSettle       = "payout.settle"
	JobWebhookAttendance  = "webhook.attendance"
	JobNotifySend         = "notify.send"
)

const retryHeader = "x-retry"

type IntegrationSetupPayload struct {
	BookingID   int64 `json:"booking_id"`
	StartAtUnix int64 `json:"start_at_unix"`
}

type FeedbackQCPayload struct {
	BookingID int64 `json:"booking_id"`
}

type PayoutSettlePayload struct {
	PayoutID int64 `json:"payout_id"`
}

type WebhookAttendancePayload struct {
	ContentHash string `json:"content_hash"`
}

type SweepPayload struct {
	WindowUnix int64 `json:"window_unix"`
}

type NotifyPayload struct {
	UserID   int64             `json:"user_id"`
	Template string            `json:"template"`
	Data     map[string]string `json:"data,omitempty"`
}

// DeterministicID derives a stable job id from the job name and a
// content-derived key, so repeated enqueues of the same logical job collapse
// to one effect at the consumer.
func DeterministicID(name, key string) string {
	sum := sha256.Sum256([]byte(name + ":" + key))
	return hex.EncodeToString(sum[:])
}

// Enqueuer is what services depend on; the queue client and test stubs
// implement it.
type Enqueuer interface {
	Enqueue(ctx context.Context, name string, payload any, jobID string) error
}

type Queue struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

func NewQueue(url, exchange string) (*Queue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &Queue{conn: conn, ch: ch, exchange: exchange}, nil
}

func (q *Queue) Enqueue(ctx context.Context, name string, payload any, jobID string) error {
	return q.publish(ctx, name, payload, jobID, 0)
}

func (q *Queue) publish(ctx context.Context, name string, payload any, jobID string, retry int) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return q.ch.PublishWithContext(ctx, q.exchange, name, false, false, amqp.Publishing{
		ContentType: "application/json",
		MessageId:   jobID,
		Headers:     amqp.Table{retryHeader: int32(retry)},
		Body:        body,
	})
}

func (q *Queue) Close() error {
	if q.ch != nil {
		_ = q.ch.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}

func retryCount(delivery amqp.Delivery) int {
	if delivery.Headers == nil {
		return 0
	}
	switch v := delivery.Headers[retryHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 0
}
