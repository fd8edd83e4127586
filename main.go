package main

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v76"

	"vidbudova/config"
	"vidbudova/middleware"
	"vidbudova/models"
	"vidbudova/routes"
	"vidbudova/utils"
	"vidbudova/worker"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	// Load configuration
	if err := config.LoadConfig(); err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Error reporting
	if dsn := config.AppConfig.SentryDSN; dsn != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              dsn,
			TracesSampleRate: 0.1,
		}); err != nil {
			logger.Warnf("Sentry initialization failed: %v", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	stripe.Key = config.AppConfig.StripeSecretKey

	// Initialize database connection
	if err := config.ConnectDB(); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	// Seed the first admin and the welcome drip on a fresh database
	if err := models.CreateDefaultAdmin(config.DB,
		config.AppConfig.AdminEmail,
		config.AppConfig.AdminPassword,
		config.AppConfig.AdminName,
	); err != nil {
		logger.Fatalf("Failed to create default admin: %v", err)
	}
	if err := models.CreateDefaultWelcomeSequence(config.DB); err != nil {
		logger.Fatalf("Failed to create welcome sequence: %v", err)
	}

	mailer := utils.NewMailer(config.AppConfig.SMTP)

	// Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			if code >= fiber.StatusInternalServerError {
				sentry.CaptureException(err)
				logger.WithError(err).WithField("path", c.Path()).Error("Request failed")
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(middleware.CORS())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// In-process scheduler; disable when an external cron hits the
	// /api/cron endpoints instead
	if config.AppConfig.SchedulerEnabled {
		scheduler, err := worker.StartScheduler(config.DB, mailer, logger)
		if err != nil {
			logger.Fatalf("Failed to start scheduler: %v", err)
		}
		defer scheduler.Stop()
	}

	// Bounce mailbox polling
	if config.AppConfig.BounceMailbox.Enabled {
		bounceWorker := worker.NewBounceWorker(config.DB,
			logger.WithField("component", "bounce"),
			config.AppConfig.BounceMailbox)
		go bounceWorker.Start(ctx)
	}

	// Setup routes
	routes.SetupRoutes(app, config.DB, mailer, logger)

	// Start server
	logger.Infof("Server starting on port %s", config.AppConfig.ServerPort)
	if err := app.Listen(":" + config.AppConfig.ServerPort); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}
}
