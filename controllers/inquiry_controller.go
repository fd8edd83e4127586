package controller

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"vidbudova/models"
	"vidbudova/utils"
)

type InquiryController struct {
	DB     *gorm.DB
	Logger *logrus.Entry
}

func NewInquiryController(db *gorm.DB, logger *logrus.Entry) *InquiryController {
	return &InquiryController{DB: db, Logger: logger}
}

type CreateInquiryInput struct {
	ProjectID *uint  `json:"projectId"`
	Name      string `json:"name" validate:"required,max=200"`
	Email     string `json:"email" validate:"required,email"`
	Phone     string `json:"phone" validate:"max=50"`
	Message   string `json:"message" validate:"required,max=5000"`
}

// CreateProjectInquiry accepts an inquiry posted on a project page; the
// project comes from the URL rather than the body.
func (ic *InquiryController) CreateProjectInquiry(c *fiber.Ctx) error {
	id := utils.ParseUint(c.Params("id"))
	if id == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid project ID",
		})
	}
	return ic.createInquiry(c, &id)
}

// CreateInquiry accepts a general donor inquiry not tied to a project.
func (ic *InquiryController) CreateInquiry(c *fiber.Ctx) error {
	return ic.createInquiry(c, nil)
}

// createInquiry validates and stores the inquiry. A referenced project
// must exist and be published.
func (ic *InquiryController) createInquiry(c *fiber.Ctx, projectID *uint) error {
	var input CreateInquiryInput
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

	if projectID == nil {
		projectID = input.ProjectID
	}
	if projectID != nil {
		var count int64
		if err := ic.DB.Model(&models.Project{}).
			Where("id = ? AND published = ?", *projectID, true).
			Count(&count).Error; err != nil || count == 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Unknown project",
			})
		}
	}

	inquiry := models.DonationInquiry{
		ProjectID: projectID,
		Name:      input.Name,
		Email:     input.Email,
		Phone:     input.Phone,
		Message:   input.Message,
		Status:    "new",
	}
	if err := ic.DB.Create(&inquiry).Error; err != nil {
		ic.Logger.WithError(err).Error("Failed to create inquiry")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to submit inquiry",
		})
	}

	utils.LogEvent(ic.Logger.Logger, "inquiry_received", logrus.Fields{
		"inquiry_id": inquiry.ID,
		"email":      inquiry.Email,
	})

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"message": "Inquiry submitted successfully",
	})
}

func (ic *InquiryController) GetInquiries(c *fiber.Ctx) error {
	query := ic.DB.Model(&models.DonationInquiry{})
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if unread := c.Query("unread"); unread == "true" {
		query = query.Where("read_status = ?", false)
	}

	var inquiries []models.DonationInquiry
	if err := query.Preload("Project").Order("created_at DESC").Find(&inquiries).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch inquiries",
		})
	}

	return c.JSON(fiber.Map{
		"inquiries": inquiries,
		"total":     len(inquiries),
	})
}

type UpdateInquiryInput struct {
	Status string `json:"status" validate:"required,oneof=new contacted closed"`
}

func (ic *InquiryController) UpdateInquiryStatus(c *fiber.Ctx) error {
	id := utils.ParseUint(c.Params("id"))
	if id == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid inquiry ID",
		})
	}
	var inquiry models.DonationInquiry
	if err := ic.DB.First(&inquiry, id).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Inquiry not found",
		})
	}

	var input UpdateInquiryInput
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

	updates := map[string]interface{}{"status": input.Status}
	if input.Status == "contacted" && inquiry.ContactedAt == nil {
		now := time.Now().UTC()
		updates["contacted_at"] = &now
	}
	if err := ic.DB.Model(&inquiry).Updates(updates).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update inquiry",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Inquiry updated successfully",
		"inquiry": inquiry,
	})
}

func (ic *InquiryController) MarkInquiryRead(c *fiber.Ctx) error {
	id := utils.ParseUint(c.Params("id"))
	if id == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid inquiry ID",
		})
	}
	result := ic.DB.Model(&models.DonationInquiry{}).
		Where("id = ?", id).
		Update("read_status", true)
	if result.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update inquiry",
		})
	}
	if result.RowsAffected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Inquiry not found",
		})
	}
	return c.JSON(fiber.Map{
		"message": "Inquiry marked as read",
	})
}
