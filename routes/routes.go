package routes

import (
	"vidbudova/config"
	controller "vidbudova/controllers"
	"vidbudova/middleware"
	"vidbudova/utils"
	"vidbudova/worker"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// SetupPublicRoutes registers the rate-limited endpoints the marketing
// site calls without authentication.
func SetupPublicRoutes(app *fiber.App, db *gorm.DB, log *logrus.Logger) {
	projectController := controller.NewProjectController(db, log.WithField("component", "projects"))
	newsletterController := controller.NewNewsletterController(db, log.WithField("component", "newsletter"))
	inquiryController := controller.NewInquiryController(db, log.WithField("component", "inquiries"))
	donationController := controller.NewDonationController(db, log.WithField("component", "donations"))

	api := app.Group("/api")

	// The limiter is scoped per route so it never throttles the webhook
	// or the authenticated surfaces sharing the /api prefix.
	limited := middleware.PublicRateLimiter()

	api.Get("/projects", limited, projectController.GetPublicProjects)
	api.Get("/projects/:slug", limited, projectController.GetPublicProject)
	api.Post("/projects/:id/inquiries", limited, inquiryController.CreateProjectInquiry)

	api.Post("/newsletter/subscribe", limited, newsletterController.Subscribe)
	api.Get("/newsletter/unsubscribe", limited, newsletterController.Unsubscribe)
	api.Post("/newsletter/unsubscribe", limited, newsletterController.UnsubscribeForm)

	api.Post("/inquiries", limited, inquiryController.CreateInquiry)

	api.Post("/donations/checkout", limited, donationController.CreateCheckout)

	// Webhook is signature-verified, not rate limited
	api.Post("/stripe/webhook", donationController.HandleStripeWebhook)
}

// SetupAdminRoutes registers the JWT-protected admin backend.
func SetupAdminRoutes(app *fiber.App, db *gorm.DB, mailer utils.Sender, hub *controller.ProgressHub, log *logrus.Logger) {
	dripProcessor := worker.NewDripProcessor(db, mailer, log.WithField("component", "drip"),
		worker.FailurePolicy(config.AppConfig.DripFailurePolicy), config.AppConfig.BaseURL)

	dripController := controller.NewDripController(db, dripProcessor, log.WithField("component", "drip"))
	projectController := controller.NewProjectController(db, log.WithField("component", "projects"))
	newsletterController := controller.NewNewsletterController(db, log.WithField("component", "newsletter"))
	campaignController := controller.NewCampaignController(db, mailer, hub, log.WithField("component", "campaigns"))
	inquiryController := controller.NewInquiryController(db, log.WithField("component", "inquiries"))
	donationController := controller.NewDonationController(db, log.WithField("component", "donations"))
	tenderController := controller.NewTenderController(db,
		worker.NewTenderSync(db, log.WithField("component", "tenders"), config.AppConfig.ProzorroAPIURL),
		log.WithField("component", "tenders"))
	dashboardController := controller.NewDashboardController(db, log.WithField("component", "dashboard"))

	// Auth endpoints; login and refresh stay outside the JWT guard
	auth := app.Group("/api/admin", logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	auth.Post("/login", controller.Login)
	auth.Post("/refresh", controller.RefreshToken)
	auth.Get("/me", middleware.Protected(), controller.GetCurrentAdmin)
	auth.Post("/change-password", middleware.Protected(), controller.ChangePassword)

	admin := app.Group("/api/admin", middleware.Protected())

	admin.Get("/dashboard/stats", dashboardController.GetStats)

	project := admin.Group("/projects")
	project.Post("/", projectController.CreateProject)
	project.Get("/", projectController.GetProjects)
	project.Get("/:id", projectController.GetProject)
	project.Put("/:id", projectController.UpdateProject)
	project.Delete("/:id", projectController.DeleteProject)
	project.Post("/:id/images", projectController.UploadImage)
	project.Delete("/:id/images/:imageID", projectController.DeleteImage)

	admin.Get("/subscribers", newsletterController.GetSubscribers)

	sequence := admin.Group("/sequences")
	sequence.Post("/", dripController.CreateSequence)
	sequence.Get("/", dripController.GetSequences)
	sequence.Put("/:id", dripController.UpdateSequence)
	sequence.Get("/:id/enrollments", dripController.GetEnrollments)

	campaign := admin.Group("/campaigns")
	campaign.Post("/", campaignController.CreateCampaign)
	campaign.Get("/", campaignController.GetCampaigns)
	campaign.Get("/:id", campaignController.GetCampaign)
	campaign.Post("/:id/send", campaignController.SendCampaign)

	// WebSocket route for campaign progress
	app.Get("/api/admin/campaigns/progress", websocket.New(hub.Handler))

	inquiry := admin.Group("/inquiries")
	inquiry.Get("/", inquiryController.GetInquiries)
	inquiry.Put("/:id/status", inquiryController.UpdateInquiryStatus)
	inquiry.Put("/:id/read", inquiryController.MarkInquiryRead)

	admin.Get("/donations", donationController.GetDonations)
	admin.Get("/tenders", tenderController.GetTenders)
}

// SetupCronRoutes registers the bearer-secret endpoints the external
// scheduler hits.
func SetupCronRoutes(app *fiber.App, db *gorm.DB, mailer utils.Sender, log *logrus.Logger) {
	dripProcessor := worker.NewDripProcessor(db, mailer, log.WithField("component", "drip"),
		worker.FailurePolicy(config.AppConfig.DripFailurePolicy), config.AppConfig.BaseURL)
	dripController := controller.NewDripController(db, dripProcessor, log.WithField("component", "drip"))
	tenderController := controller.NewTenderController(db,
		worker.NewTenderSync(db, log.WithField("component", "tenders"), config.AppConfig.ProzorroAPIURL),
		log.WithField("component", "tenders"))

	cron := app.Group("/api/cron", middleware.CronProtected(config.AppConfig.CronSecret))
	cron.Post("/process-drips", dripController.ProcessDrips)
	cron.Post("/sync-tenders", tenderController.SyncTenders)
}

func SetupRoutes(app *fiber.App, db *gorm.DB, mailer utils.Sender, log *logrus.Logger) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	hub := controller.NewProgressHub()

	SetupPublicRoutes(app, db, log)
	SetupAdminRoutes(app, db, mailer, hub, log)
	SetupCronRoutes(app, db, mailer, log)

	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "Not Found",
			"message": "The requested resource was not found",
		})
	})
}
