package jobs

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Handler processes one job payload. Returning an error requeues the job with
// backoff until maxRetries is exhausted.
type Handler func(ctx context.Context, body []byte) error

// Deduper is the processed-jobs guard (repository.ProcessedJobRepository in
// production). A job id is marked only after its handler completes, so a
// worker crash mid-job leaves the id unmarked and a redelivery can run it
// again. The handlers themselves are status-guarded, so a rare double run of
// the same id has a single effect.
type Deduper interface {
	IsProcessed(ctx context.Context, jobID string) (bool, error)
	MarkProcessed(ctx context.Context, jobID string) error
}

type Worker struct {
	queue      *Queue
	consumerCh *amqp.Channel
	queueName  string
	handlers   map[string]Handler
	deduper    Deduper
	logger     *zap.Logger
	maxRetries int
	backoff    time.Duration
}

func NewWorker(queue *Queue, queueName string, deduper Deduper, logger *zap.Logger) (*Worker, error) {
	ch, err := queue.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open consumer channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	return &Worker{
		queue:      queue,
		consumerCh: ch,
		queueName:  queueName,
		handlers:   make(map[string]Handler),
		deduper:    deduper,
		logger:     logger,
		maxRetries: 5,
		backoff:    30 * time.Second,
	}, nil
}

// Register binds a handler to a job name and binds the routing key.
func (w *Worker) Register(name string, handler Handler) error {
	if err := w.consumerCh.QueueBind(w.queueName, name, w.queue.exchange, false, nil); err != nil {
		return fmt.Errorf("bind %s: %w", name, err)
	}
	w.handlers[name] = handler
	return nil
}

// Run consumes until ctx is cancelled. Delivery is at-least-once; the deduper
// collapses repeats of the same job id to a single effect.
func (w *Worker) Run(ctx context.Context) error {
	deliveries, err := w.consumerCh.ConsumeWithContext(ctx, w.queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				return nil
			}
			w.handleDelivery(ctx, delivery)
		}
	}
}

func (w *Worker) handleDelivery(ctx context.Context, delivery amqp.Delivery) {
	name := delivery.RoutingKey
	jobID := delivery.MessageId

	handler, known := w.handlers[name]
	if !known {
		w.logger.Warn("no handler for job", zap.String("job", name))
		_ = delivery.Ack(false)
		return
	}

	if jobID != "" {
		done, err := w.deduper.IsProcessed(ctx, jobID)
		if err != nil {
			w.logger.Error("check job id", zap.String("job", name), zap.Error(err))
			_ = delivery.Nack(false, true)
			return
		}
		if done {
			w.logger.Debug("duplicate job skipped", zap.String("job", name), zap.String("job_id", jobID))
			_ = delivery.Ack(false)
			return
		}
	}

	if err := w.handler(handler)(ctx, delivery.Body); err != nil {
		w.logger.Error("job failed",
			zap.String("job", name),
			zap.String("job_id", jobID),
			zap.Int("retry", retryCount(delivery)),
			zap.Error(err),
		)
		w.retry(ctx, delivery)
		return
	}

	if jobID != "" {
		if err := w.deduper.MarkProcessed(ctx, jobID); err != nil {
			// The effect is committed; the worst case of a failed mark is a
			// redundant idempotent re-run on redelivery.
			w.logger.Error("mark job processed", zap.String("job_id", jobID), zap.Error(err))
		}
	}
	_ = delivery.Ack(false)
}

func (w *Worker) handler(h Handler) Handler {
	return func(ctx context.Context, body []byte) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("job panic: %v", r)
			}
		}()
		return h(ctx, body)
	}
}

// retry republishes with an incremented retry header after a flat backoff,
// then acks the original delivery. Exhausted jobs are dropped with a log line
// rather than poisoning the queue.
func (w *Worker) retry(ctx context.Context, delivery amqp.Delivery) {
	retries := retryCount(delivery)
	if retries >= w.maxRetries {
		w.logger.Error("job retries exhausted",
			zap.String("job", delivery.RoutingKey),
			zap.String("job_id", delivery.MessageId),
		)
		_ = delivery.Ack(false)
		return
	}

	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(w.backoff * time.Duration(retries+1)):
		}
		err := w.queue.ch.PublishWithContext(ctx, w.queue.exchange, delivery.RoutingKey, false, false, amqp.Publishing{
			ContentType: "application/json",
			MessageId:   delivery.MessageId,
			Headers:     amqp.Table{retryHeader: int32(retries + 1)},
			Body:        delivery.Body,
		})
		if err != nil {
			w.logger.Error("republish failed", zap.String("job", delivery.RoutingKey), zap.Error(err))
		}
	}()
	_ = delivery.Ack(false)
}
