package main

import (
	"context"
	"log"

	"github.com/consultapp/ConsultAppBack/internal/config"
	"github.com/consultapp/ConsultAppBack/internal/database"
	"github.com/consultapp/ConsultAppBack/internal/jobs"
	"github.com/consultapp/ConsultAppBack/internal/logging"
	"github.com/consultapp/ConsultAppBack/internal/routes"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
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

	if cfg.DBUrl == "" {
		logger.Fatal("DB_URL is required")
	}
	db, err := database.Connect(context.Background(), cfg.DBUrl)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	queue, err := jobs.NewQueue(cfg.AMQPUrl, "consultapp")
	if err != nil {
		logger.Fatal("Failed to connect to job queue", zap.Error(err))
	}
	defer queue.Close()

	app := fiber.New()
	app.Use(cors.New())
	app.Use(fiberlogger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	if err := routes.RegisterRoutes(app, cfg, db, queue, logger); err != nil {
		logger.Fatal("Failed to register routes", zap.Error(err))
	}

	logger.Info("Server starting", zap.String("port", cfg.Port))
	if err := app.Listen(":" + cfg.Port); err != nil {
		logger.Fatal("Server failed to start", zap.Error(err))
	}
}
