package controller

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"vidbudova/models"
)

type DashboardController struct {
	DB     *gorm.DB
	Logger *logrus.Entry
}

func NewDashboardController(db *gorm.DB, logger *logrus.Entry) *DashboardController {
	return &DashboardController{DB: db, Logger: logger}
}

// GetStats aggregates the headline numbers for the admin dashboard.
func (dc *DashboardController) GetStats(c *fiber.Ctx) error {
	var (
		projects      int64
		subscribers   int64
		activeDrips   int64
		newInquiries  int64
		donationCount int64
		totalRaised   int64
		campaignsSent int64
	)

	counts := []struct {
		dst   *int64
		query *gorm.DB
	}{
		{&projects, dc.DB.Model(&models.Project{}).Where("published = ?", true)},
		{&subscribers, dc.DB.Model(&models.NewsletterSubscriber{}).Where("subscribed = ?", true)},
		{&activeDrips, dc.DB.Model(&models.DripEnrollment{}).Where("status = ?", models.EnrollmentStatusActive)},
		{&newInquiries, dc.DB.Model(&models.DonationInquiry{}).Where("status = ?", "new")},
		{&donationCount, dc.DB.Model(&models.Donation{}).Where("status = ?", models.DonationStatusSucceeded)},
		{&campaignsSent, dc.DB.Model(&models.EmailCampaign{}).Where("status = ?", models.CampaignStatusSent)},
	}
	for _, cnt := range counts {
		if err := cnt.query.Count(cnt.dst).Error; err != nil {
			dc.Logger.WithError(err).Error("Failed to compute dashboard stats")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to compute stats",
			})
		}
	}

	if err := dc.DB.Model(&models.Donation{}).
		Where("status = ?", models.DonationStatusSucceeded).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&totalRaised).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to compute stats",
		})
	}

	return c.JSON(fiber.Map{
		"publishedProjects": projects,
		"subscribers":       subscribers,
		"activeEnrollments": activeDrips,
		"newInquiries":      newInquiries,
		"donations":         donationCount,
		"totalRaised":       totalRaised,
		"campaignsSent":     campaignsSent,
	})
}
