package controller

import (
	"errors"
	"strings"
	"time"

	"github.com/badoux/checkmail"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"vidbudova/models"
	"vidbudova/utils"
	"vidbudova/worker"
)

type NewsletterController struct {
	DB     *gorm.DB
	Logger *logrus.Entry
}

func NewNewsletterController(db *gorm.DB, logger *logrus.Entry) *NewsletterController {
	return &NewsletterController{DB: db, Logger: logger}
}

type SubscribeInput struct {
	Email  string `json:"email" validate:"required,email"`
	Name   string `json:"name" validate:"max=200"`
	Source string `json:"source" validate:"max=100"`
}

// Subscribe registers a newsletter subscriber and enrolls them into
// every active on_signup drip sequence. Re-subscribing a previously
// unsubscribed address re-activates it and re-enrolls.
func (nc *NewsletterController) Subscribe(c *fiber.Ctx) error {
	var input SubscribeInput
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

	email := strings.ToLower(strings.TrimSpace(input.Email))
	if err := checkmail.ValidateFormat(email); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid email address",
		})
	}

	var subscriber models.NewsletterSubscriber
	err := nc.DB.Where("email = ?", email).First(&subscriber).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		subscriber = models.NewsletterSubscriber{
			Email:            email,
			Name:             input.Name,
			Subscribed:       true,
			UnsubscribeToken: uuid.NewString(),
			Source:           input.Source,
		}
		if err := nc.DB.Create(&subscriber).Error; err != nil {
			nc.Logger.WithError(err).Error("Failed to create subscriber")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to subscribe",
			})
		}
	case err != nil:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to subscribe",
		})
	case subscriber.Subscribed:
		return c.JSON(fiber.Map{
			"success": true,
			"message": "Already subscribed",
		})
	default:
		updates := map[string]interface{}{
			"subscribed":      true,
			"unsubscribed_at": nil,
		}
		if input.Name != "" {
			updates["name"] = input.Name
		}
		if err := nc.DB.Model(&subscriber).Updates(updates).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to subscribe",
			})
		}
	}

	if err := worker.EnrollOnSignup(nc.DB, email); err != nil {
		// The subscription itself succeeded; log and move on.
		nc.Logger.WithError(err).WithField("email", email).Error("Drip enrollment failed on signup")
	}

	utils.LogEvent(nc.Logger.Logger, "newsletter_subscribed", logrus.Fields{
		"email":  email,
		"source": input.Source,
	})

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"message": "Subscribed successfully",
	})
}

// unsubscribe flips the subscriber off and cancels all of their active
// drip enrollments. Both writes are idempotent for repeat calls.
func (nc *NewsletterController) unsubscribe(token string) (int, string) {
	var subscriber models.NewsletterSubscriber
	err := nc.DB.Where("unsubscribe_token = ?", token).First(&subscriber).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fiber.StatusNotFound, "Unknown unsubscribe token"
	}
	if err != nil {
		return fiber.StatusInternalServerError, "Failed to unsubscribe"
	}

	if subscriber.Subscribed {
		now := time.Now().UTC()
		if err := nc.DB.Model(&subscriber).Updates(map[string]interface{}{
			"subscribed":      false,
			"unsubscribed_at": &now,
		}).Error; err != nil {
			nc.Logger.WithError(err).Error("Failed to unsubscribe")
			return fiber.StatusInternalServerError, "Failed to unsubscribe"
		}
	}

	if err := worker.CancelEnrollmentsForEmail(nc.DB, subscriber.Email); err != nil {
		nc.Logger.WithError(err).WithField("email", subscriber.Email).Error("Failed to cancel drip enrollments")
		return fiber.StatusInternalServerError, "Failed to unsubscribe"
	}

	utils.LogEvent(nc.Logger.Logger, "newsletter_unsubscribed", logrus.Fields{
		"email": subscriber.Email,
	})
	return fiber.StatusOK, "Unsubscribed successfully"
}

// Unsubscribe handles the one-click link from email footers and
// redirects to the public confirmation page.
func (nc *NewsletterController) Unsubscribe(c *fiber.Ctx) error {
	token := c.Query("token")
	if token == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Missing unsubscribe token",
		})
	}

	status, message := nc.unsubscribe(token)
	if status != fiber.StatusOK {
		return c.Status(status).JSON(fiber.Map{"error": message})
	}
	return c.Redirect("/unsubscribed", fiber.StatusFound)
}

type UnsubscribeInput struct {
	Token string `json:"token" validate:"required"`
}

// UnsubscribeForm is the JSON variant used by the confirmation page.
func (nc *NewsletterController) UnsubscribeForm(c *fiber.Ctx) error {
	var input UnsubscribeInput
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

	status, message := nc.unsubscribe(input.Token)
	if status != fiber.StatusOK {
		return c.Status(status).JSON(fiber.Map{"error": message})
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": message,
	})
}

// GetSubscribers lists subscribers for the admin backend, newest first.
func (nc *NewsletterController) GetSubscribers(c *fiber.Ctx) error {
	query := nc.DB.Model(&models.NewsletterSubscriber{})
	if status := c.Query("status"); status == "subscribed" {
		query = query.Where("subscribed = ?", true)
	} else if status == "unsubscribed" {
		query = query.Where("subscribed = ?", false)
	}
	if search := c.Query("search"); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(email) LIKE ? OR LOWER(name) LIKE ?", like, like)
	}

	var subscribers []models.NewsletterSubscriber
	if err := query.Order("created_at DESC").Find(&subscribers).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch subscribers",
		})
	}

	return c.JSON(fiber.Map{
		"subscribers": subscribers,
		"total":       len(subscribers),
	})
}
