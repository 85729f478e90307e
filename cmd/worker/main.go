package main

import (
	"context"
	"encoding/json"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/consultapp/ConsultAppBack/internal/config"
	"github.com/consultapp/ConsultAppBack/internal/database"
	"github.com/consultapp/ConsultAppBack/internal/escrow"
	"github.com/consultapp/ConsultAppBack/internal/jobs"
	"github.com/consultapp/ConsultAppBack/internal/logging"
	"github.com/consultapp/ConsultAppBack/internal/meeting"
	"github.com/consultapp/ConsultAppBack/internal/repository"
	"github.com/consultapp/ConsultAppBack/internal/services"
	"github.com/omise/omise-go"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.AppEnv)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.DBUrl == "" {
		logger.Fatal("DB_URL is required")
	}
	db, err := database.Connect(ctx, cfg.DBUrl)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	queue, err := jobs.NewQueue(cfg.AMQPUrl, "consultapp")
	if err != nil {
		logger.Fatal("Failed to connect to job queue", zap.Error(err))
	}
	defer queue.Close()

	userRepo := repository.NewUserRepository(db)
	bookingRepo := repository.NewBookingRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	payoutRepo := repository.NewPayoutRepository(db)
	feedbackRepo := repository.NewFeedbackRepository(db)
	webhookEventRepo := repository.NewWebhookEventRepository(db)
	processedJobRepo := repository.NewProcessedJobRepository(db)

	omiseAPI, err := omise.NewClient(cfg.OmisePublicKey, cfg.OmiseSecretKey)
	if err != nil {
		logger.Fatal("Failed to build payment client", zap.Error(err))
	}
	escrowClient := escrow.NewOmiseClient(omiseAPI)

	var meetings meeting.Provider = meeting.LocalProvider{}
	if cfg.MeetingAPIURL != "" {
		meetings = meeting.NewHTTPProvider(cfg.MeetingAPIURL, cfg.MeetingAPIKey)
	}
	notifier := services.NewNotifier(queue, logger)
	bookingService := services.NewBookingService(
		db, bookingRepo, paymentRepo, payoutRepo, userRepo,
		escrowClient, meetings, queue, notifier, logger, cfg.PlatformFeeRate,
	)
	var checker services.ContentChecker = services.StructuralOnlyChecker{}
	if cfg.QCAPIURL != "" {
		checker = services.NewHTTPContentChecker(cfg.QCAPIURL, cfg.QCAPIKey)
	}
	feedbackService := services.NewFeedbackService(
		db, bookingRepo, feedbackRepo, userRepo, checker, queue, notifier, logger,
	)
	payoutService := services.NewPayoutService(db, bookingRepo, escrowClient, notifier, logger)
	webhookService := services.NewWebhookService(
		webhookEventRepo, bookingService, queue, logger, cfg.WebhookSecret,
	)

	worker, err := jobs.NewWorker(queue, cfg.JobQueueName, processedJobRepo, logger)
	if err != nil {
		logger.Fatal("Failed to build worker", zap.Error(err))
	}

	register(logger, worker, jobs.JobIntegrationSetup, func(ctx context.Context, body []byte) error {
		var payload jobs.IntegrationSetupPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			return err
		}
		return bookingService.CompleteIntegration(ctx, payload.BookingID)
	})
	register(logger, worker, jobs.JobBookingExpireSweep, func(ctx context.Context, body []byte) error {
		return bookingService.SweepExpiredRequests(ctx, time.Now().UTC())
	})
	register(logger, worker, jobs.JobBookingNoShowSweep, func(ctx context.Context, body []byte) error {
		return bookingService.SweepEndedCalls(ctx, time.Now().UTC())
	})
	register(logger, worker, jobs.JobFeedbackQC, func(ctx context.Context, body []byte) error {
		var payload jobs.FeedbackQCPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			return err
		}
		return feedbackService.RunQC(ctx, payload.BookingID)
	})
	register(logger, worker, jobs.JobPayoutSettle, func(ctx context.Context, body []byte) error {
		var payload jobs.PayoutSettlePayload
		if err := json.Unmarshal(body, &payload); err != nil {
			return err
		}
		return payoutService.Settle(ctx, payload.PayoutID)
	})
	register(logger, worker, jobs.JobWebhookAttendance, func(ctx context.Context, body []byte) error {
		var payload jobs.WebhookAttendancePayload
		if err := json.Unmarshal(body, &payload); err != nil {
			return err
		}
		return webhookService.ProcessAttendance(ctx, payload.ContentHash)
	})
	register(logger, worker, jobs.JobNotifySend, func(ctx context.Context, body []byte) error {
		var payload jobs.NotifyPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			return err
		}
		// Delivery channels (email, push) hang off this consumer; for now the
		// send is recorded in the log stream.
		logger.Info("notification",
			zap.Int64("user_id", payload.UserID),
			zap.String("template", payload.Template),
			zap.Any("data", payload.Data),
		)
		return nil
	})

	sweepInterval, err := time.ParseDuration(cfg.SweepInterval)
	if err != nil {
		logger.Fatal("Invalid SWEEP_INTERVAL", zap.Error(err))
	}
	sweeper := jobs.NewSweeper(queue, logger, sweepInterval)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	logger.Info("Worker starting", zap.String("queue", cfg.JobQueueName))
	if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Fatal("Worker stopped", zap.Error(err))
	}
}

func register(logger *zap.Logger, worker *jobs.Worker, name string, handler jobs.Handler) {
	if err := worker.Register(name, handler); err != nil {
		logger.Fatal("Failed to register job handler", zap.String("job", name), zap.Error(err))
	}
}
