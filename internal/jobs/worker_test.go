package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

type stubDeduper struct {
	processed map[string]bool
	marked    []string
}

func (d *stubDeduper) IsProcessed(ctx context.Context, jobID string) (bool, error) {
	return d.processed[jobID], nil
}

func (d *stubDeduper) MarkProcessed(ctx context.Context, jobID string) error {
	d.marked = append(d.marked, jobID)
	return nil
}

type stubAcknowledger struct {
	acks  int
	nacks int
}

func (a *stubAcknowledger) Ack(tag uint64, multiple bool) error { a.acks++; return nil }
func (a *stubAcknowledger) Nack(tag uint64, multiple bool, requeue bool) error {
	a.nacks++
	return nil
}
func (a *stubAcknowledger) Reject(tag uint64, requeue bool) error { return nil }

func newTestWorker(deduper Deduper, name string, handler Handler) *Worker {
	return &Worker{
		handlers:   map[string]Handler{name: handler},
		deduper:    deduper,
		logger:     zap.NewNop(),
		maxRetries: 5,
		backoff:    time.Millisecond,
	}
}

func testDelivery(ack *stubAcknowledger, name, jobID string, retries int) amqp.Delivery {
	return amqp.Delivery{
		Acknowledger: ack,
		RoutingKey:   name,
		MessageId:    jobID,
		Headers:      amqp.Table{retryHeader: int32(retries)},
		Body:         []byte(`{}`),
	}
}

func TestWorkerSkipsAlreadyProcessedJob(t *testing.T) {
	calls := 0
	deduper := &stubDeduper{processed: map[string]bool{"job-1": true}}
	worker := newTestWorker(deduper, "some.job", func(ctx context.Context, body []byte) error {
		calls++
		return nil
	})
	ack := &stubAcknowledger{}

	worker.handleDelivery(context.Background(), testDelivery(ack, "some.job", "job-1", 0))

	if calls != 0 {
		t.Fatalf("expected handler not to run for a processed id, ran %d times", calls)
	}
	if ack.acks != 1 {
		t.Fatalf("expected duplicate to be acked, got %d acks", ack.acks)
	}
}

func TestWorkerMarksJobOnlyAfterSuccess(t *testing.T) {
	deduper := &stubDeduper{processed: map[string]bool{}}
	var markedAtHandlerTime int
	worker := newTestWorker(deduper, "some.job", func(ctx context.Context, body []byte) error {
		markedAtHandlerTime = len(deduper.marked)
		return nil
	})
	ack := &stubAcknowledger{}

	worker.handleDelivery(context.Background(), testDelivery(ack, "some.job", "job-2", 0))

	if markedAtHandlerTime != 0 {
		t.Fatalf("job id marked before the handler ran")
	}
	if len(deduper.marked) != 1 || deduper.marked[0] != "job-2" {
		t.Fatalf("expected job-2 marked after success, got %v", deduper.marked)
	}
	if ack.acks != 1 {
		t.Fatalf("expected ack after success, got %d", ack.acks)
	}
}

// An interrupted or failed run must leave the job id unmarked, otherwise the
// webhook layer's re-enqueue of an unprocessed duplicate would be skipped as
// a dedup hit instead of recovering the work.
func TestWorkerLeavesFailedJobUnmarked(t *testing.T) {
	deduper := &stubDeduper{processed: map[string]bool{}}
	worker := newTestWorker(deduper, "some.job", func(ctx context.Context, body []byte) error {
		return errors.New("boom")
	})
	ack := &stubAcknowledger{}

	// Retries exhausted so the failure path stops at the ack.
	worker.handleDelivery(context.Background(), testDelivery(ack, "some.job", "job-3", 5))

	if len(deduper.marked) != 0 {
		t.Fatalf("failed job must stay unmarked, got %v", deduper.marked)
	}
	if done, _ := deduper.IsProcessed(context.Background(), "job-3"); done {
		t.Fatalf("failed job reported as processed")
	}
}
