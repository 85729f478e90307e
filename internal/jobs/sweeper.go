package jobs

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Sweeper enqueues the time-driven sweep jobs on a fixed interval. The sweep
// job id is keyed by the truncated window so overlapping sweeper instances
// enqueue the same job once.
type Sweeper struct {
	enqueuer Enqueuer
	logger   *zap.Logger
	interval time.Duration
	stopChan chan struct{}
}

func NewSweeper(enqueuer Enqueuer, logger *zap.Logger, interval time.Duration) *Sweeper {
	return &Sweeper{
		enqueuer: enqueuer,
		logger:   logger,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

func (s *Sweeper) Start(ctx context.Context) {
	s.logger.Info("starting sweep scheduler", zap.Duration("interval", s.interval))
	go s.run(ctx)
}

func (s *Sweeper) Stop() {
	s.logger.Info("stopping sweep scheduler")
	close(s.stopChan)
}

func (s *Sweeper) run(ctx context.Context) {
	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-s.stopChan:
			s.logger.Info("sweep scheduler stopped")
			return
		case <-ctx.Done():
			s.logger.Info("sweep scheduler cancelled")
			return
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	window := time.Now().UTC().Truncate(s.interval).Unix()
	payload := SweepPayload{WindowUnix: window}

	for _, name := range []string{JobBookingExpireSweep, JobBookingNoShowSweep} {
		jobID := DeterministicID(name, fmt.Sprintf("%d", window))
		if err := s.enqueuer.Enqueue(ctx, name, payload, jobID); err != nil {
			s.logger.Error("enqueue sweep", zap.String("job", name), zap.Error(err))
		}
	}
}
