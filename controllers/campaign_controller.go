package controller

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"vidbudova/config"
	"vidbudova/models"
	"vidbudova/utils"
)

type CampaignController struct {
	DB     *gorm.DB
	Mailer utils.Sender
	Logger *logrus.Entry
	Hub    *ProgressHub
}

func NewCampaignController(db *gorm.DB, mailer utils.Sender, hub *ProgressHub, logger *logrus.Entry) *CampaignController {
	return &CampaignController{DB: db, Mailer: mailer, Logger: logger, Hub: hub}
}

type CreateCampaignInput struct {
	Name        string `json:"name" validate:"required"`
	Subject     string `json:"subject" validate:"required"`
	HTMLContent string `json:"htmlContent" validate:"required"`
}

func (cc *CampaignController) CreateCampaign(c *fiber.Ctx) error {
	var input CreateCampaignInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := utils.ValidateStruct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	campaign := models.EmailCampaign{
		Name:        input.Name,
		Subject:     input.Subject,
		HTMLContent: input.HTMLContent,
		Status:      models.CampaignStatusDraft,
	}
	if err := cc.DB.Create(&campaign).Error; err != nil {
		cc.Logger.WithError(err).Error("Failed to create campaign")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create campaign",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":  "Campaign created successfully",
		"campaign": campaign,
	})
}

func (cc *CampaignController) GetCampaigns(c *fiber.Ctx) error {
	var campaigns []models.EmailCampaign
	if err := cc.DB.Order("created_at DESC").Find(&campaigns).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch campaigns",
		})
	}
	return c.JSON(fiber.Map{
		"campaigns": campaigns,
		"total":     len(campaigns),
	})
}

func (cc *CampaignController) GetCampaign(c *fiber.Ctx) error {
	id := utils.ParseUint(c.Params("id"))
	if id == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid campaign ID",
		})
	}

	var campaign models.EmailCampaign
	if err := cc.DB.Preload("Sends").First(&campaign, id).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Campaign not found",
		})
	}
	return c.JSON(fiber.Map{"campaign": campaign})
}

// SendCampaign dispatches a draft campaign to every subscribed
// newsletter address. The send runs in the background; progress is
// streamed over the admin websocket and persisted on the campaign row.
func (cc *CampaignController) SendCampaign(c *fiber.Ctx) error {
	id := utils.ParseUint(c.Params("id"))
	if id == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid campaign ID",
		})
	}

	var campaign models.EmailCampaign
	if err := cc.DB.First(&campaign, id).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Campaign not found",
		})
	}
	if campaign.Status != models.CampaignStatusDraft {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Campaign has already been sent",
		})
	}

	var subscribers []models.NewsletterSubscriber
	if err := cc.DB.Where("subscribed = ?", true).Find(&subscribers).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch recipients",
		})
	}
	if len(subscribers) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "No subscribed recipients",
		})
	}

	if err := cc.DB.Model(&campaign).Updates(map[string]interface{}{
		"status":          models.CampaignStatusSending,
		"recipient_count": len(subscribers),
	}).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to start campaign",
		})
	}

	go cc.deliver(campaign, subscribers)

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"message":    "Campaign sending started",
		"campaignID": campaign.ID,
		"recipients": len(subscribers),
	})
}

func (cc *CampaignController) deliver(campaign models.EmailCampaign, subscribers []models.NewsletterSubscriber) {
	sent, failed := 0, 0
	total := len(subscribers)
	baseURL := config.AppConfig.BaseURL

	for _, sub := range subscribers {
		body, err := utils.RenderEmailBody(campaign.HTMLContent, utils.EmailData{
			Name:           sub.Name,
			Email:          sub.Email,
			UnsubscribeURL: utils.UnsubscribeURL(baseURL, sub.UnsubscribeToken),
		})
		if err == nil {
			err = cc.Mailer.Send(sub.Email, campaign.Subject, body)
		}

		send := models.CampaignSend{CampaignID: campaign.ID, Email: sub.Email}
		if err != nil {
			failed++
			send.Status = "failed"
			send.Error = err.Error()
			cc.Logger.WithError(err).WithField("email", sub.Email).Warn("Campaign send failed")
		} else {
			sent++
			send.Status = "sent"
		}
		if err := cc.DB.Create(&send).Error; err != nil {
			cc.Logger.WithError(err).Error("Failed to record campaign send")
		}

		cc.Hub.Broadcast(ProgressEvent{
			CampaignID: campaign.ID,
			Status:     models.CampaignStatusSending,
			Total:      total,
			Sent:       sent,
			Failed:     failed,
		})
	}

	status := models.CampaignStatusSent
	if sent == 0 {
		status = models.CampaignStatusFailed
	}
	now := time.Now().UTC()
	if err := cc.DB.Model(&models.EmailCampaign{}).
		Where("id = ?", campaign.ID).
		Updates(map[string]interface{}{
			"status":       status,
			"sent_count":   sent,
			"failed_count": failed,
			"sent_at":      &now,
		}).Error; err != nil {
		cc.Logger.WithError(err).Error("Failed to finalize campaign")
	}

	cc.Hub.Broadcast(ProgressEvent{
		CampaignID: campaign.ID,
		Status:     status,
		Total:      total,
		Sent:       sent,
		Failed:     failed,
	})

	utils.LogEvent(cc.Logger.Logger, "campaign_completed", logrus.Fields{
		"campaign_id": campaign.ID,
		"sent":        sent,
		"failed":      failed,
	})
}
