package controller

import (
	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"vidbudova/models"
	"vidbudova/utils"
	"vidbudova/worker"
)

type TenderController struct {
	DB     *gorm.DB
	Logger *logrus.Entry
	Sync   *worker.TenderSync
}

func NewTenderController(db *gorm.DB, sync *worker.TenderSync, logger *logrus.Entry) *TenderController {
	return &TenderController{DB: db, Logger: logger, Sync: sync}
}

func (tc *TenderController) GetTenders(c *fiber.Ctx) error {
	query := tc.DB.Model(&models.Tender{})
	if projectID := utils.ParseUint(c.Query("projectId")); projectID != 0 {
		query = query.Where("matched_project_id = ?", projectID)
	}
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var tenders []models.Tender
	if err := query.Preload("MatchedProject").
		Order("date_published DESC").
		Find(&tenders).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch tenders",
		})
	}

	return c.JSON(fiber.Map{
		"tenders": tenders,
		"total":   len(tenders),
	})
}

// SyncTenders pulls Prozorro tenders for every published project with a
// search keyword. Guarded by the cron bearer secret.
func (tc *TenderController) SyncTenders(c *fiber.Ctx) error {
	result, err := tc.Sync.Run()
	if err != nil {
		tc.Logger.WithError(err).Error("Tender sync aborted")
		sentry.CaptureException(err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Tender sync failed",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"fetched": result.Fetched,
		"created": result.Created,
		"updated": result.Updated,
	})
}
