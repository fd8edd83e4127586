package controller

import (
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v76"
	checkoutsession "github.com/stripe/stripe-go/v76/checkout/session"
	"gorm.io/gorm"

	"vidbudova/config"
	"vidbudova/models"
	"vidbudova/utils"
)

type DonationController struct {
	DB     *gorm.DB
	Logger *logrus.Entry
}

func NewDonationController(db *gorm.DB, logger *logrus.Entry) *DonationController {
	return &DonationController{DB: db, Logger: logger}
}

type CreateCheckoutInput struct {
	ProjectID  *uint  `json:"projectId"`
	Amount     int64  `json:"amount" validate:"required,gte=1000"` // kopiykas, min 10 UAH
	Currency   string `json:"currency" validate:"omitempty,oneof=uah usd eur"`
	DonorEmail string `json:"donorEmail" validate:"omitempty,email"`
	DonorName  string `json:"donorName" validate:"max=200"`
	Message    string `json:"message" validate:"max=1000"`
}

// CreateCheckout opens a Stripe Checkout session for a donation and
// records it as pending until the webhook confirms payment.
func (dc *DonationController) CreateCheckout(c *fiber.Ctx) error {
	var input CreateCheckoutInput
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

	currency := input.Currency
	if currency == "" {
		currency = "uah"
	}

	description := "Donation"
	if input.ProjectID != nil {
		var project models.Project
		if err := dc.DB.Where("id = ? AND published = ?", *input.ProjectID, true).
			First(&project).Error; err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Unknown project",
			})
		}
		description = "Donation to " + project.Title
	}

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(description),
					},
					UnitAmount: stripe.Int64(input.Amount),
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(config.AppConfig.DonationSuccessURL),
		CancelURL:  stripe.String(config.AppConfig.DonationCancelURL),
	}
	if input.DonorEmail != "" {
		params.CustomerEmail = stripe.String(input.DonorEmail)
	}

	sess, err := checkoutsession.New(params)
	if err != nil {
		dc.Logger.WithError(err).Error("Failed to create Stripe checkout session")
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "Payment provider unavailable",
		})
	}

	donation := models.Donation{
		ProjectID:       input.ProjectID,
		DonorEmail:      input.DonorEmail,
		DonorName:       input.DonorName,
		Message:         input.Message,
		Amount:          input.Amount,
		Currency:        currency,
		Status:          models.DonationStatusPending,
		StripeSessionID: sess.ID,
	}
	if err := dc.DB.Create(&donation).Error; err != nil {
		dc.Logger.WithError(err).Error("Failed to record donation")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create donation",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"checkoutURL": sess.URL,
		"sessionID":   sess.ID,
	})
}

// HandleStripeWebhook verifies and applies Stripe events. A completed
// checkout marks the donation succeeded and bumps the project's raised
// amount; an expired one marks it failed.
func (dc *DonationController) HandleStripeWebhook(c *fiber.Ctx) error {
	event, err := utils.ConstructStripeEvent(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid webhook signature",
		})
	}

	switch event.Type {
	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Malformed event payload",
			})
		}
		if err := dc.completeDonation(&sess); err != nil {
			dc.Logger.WithError(err).WithField("session_id", sess.ID).Error("Failed to complete donation")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to process event",
			})
		}
	case "checkout.session.expired":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Malformed event payload",
			})
		}
		if err := dc.DB.Model(&models.Donation{}).
			Where("stripe_session_id = ? AND status = ?", sess.ID, models.DonationStatusPending).
			Update("status", models.DonationStatusFailed).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to process event",
			})
		}
	default:
		dc.Logger.WithField("type", event.Type).Debug("Ignoring Stripe event")
	}

	return c.JSON(fiber.Map{"received": true})
}

// completeDonation is idempotent: the status guard keeps a replayed
// webhook from double-counting the raised amount.
func (dc *DonationController) completeDonation(sess *stripe.CheckoutSession) error {
	return dc.DB.Transaction(func(tx *gorm.DB) error {
		var donation models.Donation
		if err := tx.Where("stripe_session_id = ?", sess.ID).First(&donation).Error; err != nil {
			return err
		}
		if donation.Status == models.DonationStatusSucceeded {
			return nil
		}

		updates := map[string]interface{}{
			"status": models.DonationStatusSucceeded,
		}
		if sess.PaymentIntent != nil {
			updates["stripe_payment_intent_id"] = sess.PaymentIntent.ID
		}
		if donation.DonorEmail == "" && sess.CustomerDetails != nil {
			updates["donor_email"] = sess.CustomerDetails.Email
		}

		result := tx.Model(&models.Donation{}).
			Where("id = ? AND status = ?", donation.ID, models.DonationStatusPending).
			Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}

		if donation.ProjectID != nil {
			if err := tx.Model(&models.Project{}).
				Where("id = ?", *donation.ProjectID).
				Update("raised_amount", gorm.Expr("raised_amount + ?", donation.Amount)).Error; err != nil {
				return err
			}
		}

		utils.LogEvent(dc.Logger.Logger, "donation_succeeded", logrus.Fields{
			"donation_id": donation.ID,
			"amount":      donation.Amount,
			"currency":    donation.Currency,
		})
		return nil
	})
}

func (dc *DonationController) GetDonations(c *fiber.Ctx) error {
	query := dc.DB.Model(&models.Donation{})
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if projectID := utils.ParseUint(c.Query("projectId")); projectID != 0 {
		query = query.Where("project_id = ?", projectID)
	}
	if from := c.Query("from"); from != "" {
		if t, err := time.Parse("2006-01-02", from); err == nil {
			query = query.Where("created_at >= ?", t)
		}
	}

	var donations []models.Donation
	if err := query.Preload("Project").Order("created_at DESC").Find(&donations).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch donations",
		})
	}

	var totalRaised int64
	dc.DB.Model(&models.Donation{}).
		Where("status = ?", models.DonationStatusSucceeded).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&totalRaised)

	return c.JSON(fiber.Map{
		"donations":   donations,
		"total":       len(donations),
		"totalRaised": totalRaised,
	})
}
