package routes

import (
	"github.com/consultapp/ConsultAppBack/internal/calendar"
	"github.com/consultapp/ConsultAppBack/internal/config"
	"github.com/consultapp/ConsultAppBack/internal/escrow"
	"github.com/consultapp/ConsultAppBack/internal/handlers"
	"github.com/consultapp/ConsultAppBack/internal/jobs"
	"github.com/consultapp/ConsultAppBack/internal/meeting"
	"github.com/consultapp/ConsultAppBack/internal/middleware"
	"github.com/consultapp/ConsultAppBack/internal/models"
	"github.com/consultapp/ConsultAppBack/internal/repository"
	"github.com/consultapp/ConsultAppBack/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/omise/omise-go"
	"go.uber.org/zap"
)

func RegisterRoutes(
	app *fiber.App,
	cfg *config.Config,
	db *pgxpool.Pool,
	enqueuer jobs.Enqueuer,
	logger *zap.Logger,
) error {
	userRepo := repository.NewUserRepository(db)
	bookingRepo := repository.NewBookingRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	payoutRepo := repository.NewPayoutRepository(db)
	feedbackRepo := repository.NewFeedbackRepository(db)
	availabilityRepo := repository.NewAvailabilityRepository(db)
	webhookEventRepo := repository.NewWebhookEventRepository(db)

	omiseAPI, err := omise.NewClient(cfg.OmisePublicKey, cfg.OmiseSecretKey)
	if err != nil {
		return err
	}
	escrowClient := escrow.NewOmiseClient(omiseAPI)

	var meetings meeting.Provider = meeting.LocalProvider{}
	if cfg.MeetingAPIURL != "" {
		meetings = meeting.NewHTTPProvider(cfg.MeetingAPIURL, cfg.MeetingAPIKey)
	}
	var busySource services.BusySource = calendar.NoopSource{}
	if cfg.CalendarAPIURL != "" {
		busySource = calendar.NewClient(cfg.CalendarAPIURL, cfg.CalendarAPIKey)
	}

	notifier := services.NewNotifier(enqueuer, logger)
	bookingService := services.NewBookingService(
		db, bookingRepo, paymentRepo, payoutRepo, userRepo,
		escrowClient, meetings, enqueuer, notifier, logger, cfg.PlatformFeeRate,
	)
	disputeService := services.NewDisputeService(db, userRepo, escrowClient, logger)
	var checker services.ContentChecker = services.StructuralOnlyChecker{}
	if cfg.QCAPIURL != "" {
		checker = services.NewHTTPContentChecker(cfg.QCAPIURL, cfg.QCAPIKey)
	}
	feedbackService := services.NewFeedbackService(
		db, bookingRepo, feedbackRepo, userRepo, checker, enqueuer, notifier, logger,
	)
	availabilityService := services.NewAvailabilityService(db, availabilityRepo, bookingRepo, busySource)
	webhookService := services.NewWebhookService(
		webhookEventRepo, bookingService, enqueuer, logger, cfg.WebhookSecret,
	)

	authHandler := handlers.NewAuthHandler(userRepo, cfg.JWTSecret)
	bookingHandler := handlers.NewBookingHandler(bookingService)
	feedbackHandler := handlers.NewFeedbackHandler(feedbackService)
	disputeHandler := handlers.NewDisputeHandler(disputeService)
	availabilityHandler := handlers.NewAvailabilityHandler(availabilityService)
	webhookHandler := handlers.NewWebhookHandler(webhookService)

	api := app.Group("/api")

	auth := api.Group("/auth")
	auth.Post("/register", authHandler.Register)
	auth.Post("/login", authHandler.Login)
	auth.Get("/me", middleware.AuthRequired(cfg.JWTSecret), authHandler.Me)

	v1 := api.Group("/v1", middleware.AuthRequired(cfg.JWTSecret))

	users := v1.Group("/users")
	users.Post("/payment-method", authHandler.SetPaymentMethod)
	users.Post("/payout-recipient", authHandler.SetPayoutRecipient)

	bookings := v1.Group("/bookings")
	bookings.Post("", bookingHandler.Request)
	bookings.Get("", bookingHandler.List)
	bookings.Get("/:id", bookingHandler.Get)
	bookings.Post("/:id/accept", bookingHandler.Accept)
	bookings.Post("/:id/decline", bookingHandler.Decline)
	bookings.Post("/:id/cancel", bookingHandler.Cancel)
	bookings.Post("/:id/reschedule", bookingHandler.Reschedule)
	bookings.Post("/:id/reschedule/confirm", bookingHandler.ConfirmReschedule)
	bookings.Post("/:id/dispute", bookingHandler.OpenDispute)
	bookings.Post("/:id/feedback", feedbackHandler.Submit)

	disputes := v1.Group("/disputes", middleware.RoleRequired(models.RoleAdmin))
	disputes.Post("/:id/resolve", disputeHandler.Resolve)

	availability := v1.Group("/availability")
	availability.Get("/:userID", availabilityHandler.Combined)
	availability.Put("", availabilityHandler.Replace)

	// Webhooks authenticate by signature, not bearer token.
	app.Post("/webhooks/meeting", webhookHandler.MeetingEvent)

	return nil
}
