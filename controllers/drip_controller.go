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

type DripController struct {
	DB        *gorm.DB
	Logger    *logrus.Entry
	Processor *worker.DripProcessor
}

func NewDripController(db *gorm.DB, processor *worker.DripProcessor, logger *logrus.Entry) *DripController {
	return &DripController{
		DB:        db,
		Logger:    logger,
		Processor: processor,
	}
}

type DripStepInput struct {
	DelayDays   int    `json:"delayDays" validate:"gte=0"`
	Subject     string `json:"subject" validate:"required"`
	HTMLContent string `json:"htmlContent" validate:"required"`
}

type CreateSequenceInput struct {
	Name    string          `json:"name" validate:"required"`
	Trigger string          `json:"trigger" validate:"required,oneof=on_signup manual"`
	Active  *bool           `json:"active"`
	Steps   []DripStepInput `json:"steps" validate:"required,min=1,dive"`
}

// CreateSequence creates a sequence with its ordered steps. Positions
// are assigned 1..N in array order; steps are immutable afterwards.
func (dc *DripController) CreateSequence(c *fiber.Ctx) error {
	var input CreateSequenceInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
	}
	if err := utils.ValidateStruct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	active := true
	if input.Active != nil {
		active = *input.Active
	}

	sequence := models.DripSequence{
		Name:    input.Name,
		Trigger: input.Trigger,
		Active:  active,
	}
	for i, step := range input.Steps {
		sequence.Steps = append(sequence.Steps, models.DripStep{
			Position:    i + 1,
			DelayDays:   step.DelayDays,
			Subject:     step.Subject,
			HTMLContent: step.HTMLContent,
		})
	}

	if err := dc.DB.Create(&sequence).Error; err != nil {
		dc.Logger.WithError(err).Error("Failed to create sequence")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create sequence",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":  "Sequence created successfully",
		"sequence": sequence,
	})
}

// GetSequences lists all sequences with their steps and an enrollment
// count per sequence for admin visibility.
func (dc *DripController) GetSequences(c *fiber.Ctx) error {
	var sequences []models.DripSequence
	if err := dc.DB.
		Preload("Steps", func(tx *gorm.DB) *gorm.DB { return tx.Order("position") }).
		Order("created_at DESC").
		Find(&sequences).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch sequences",
		})
	}

	type sequenceResponse struct {
		models.DripSequence
		EnrollmentCount int64 `json:"enrollment_count"`
	}

	response := make([]sequenceResponse, 0, len(sequences))
	for _, seq := range sequences {
		var count int64
		if err := dc.DB.Model(&models.DripEnrollment{}).
			Where("sequence_id = ?", seq.ID).
			Count(&count).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to count enrollments",
			})
		}
		response = append(response, sequenceResponse{DripSequence: seq, EnrollmentCount: count})
	}

	return c.JSON(fiber.Map{
		"sequences": response,
		"total":     len(response),
	})
}

type UpdateSequenceInput struct {
	Name   *string `json:"name"`
	Active *bool   `json:"active"`
}

// UpdateSequence renames or toggles a sequence. Steps cannot be edited;
// recreate the sequence to change them.
func (dc *DripController) UpdateSequence(c *fiber.Ctx) error {
	id := utils.ParseUint(c.Params("id"))
	if id == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid sequence ID",
		})
	}

	var sequence models.DripSequence
	if err := dc.DB.First(&sequence, id).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Sequence not found",
		})
	}

	var input UpdateSequenceInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if input.Name == nil && input.Active == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Nothing to update",
		})
	}

	updates := map[string]interface{}{}
	if input.Name != nil {
		if *input.Name == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "name is required",
			})
		}
		updates["name"] = *input.Name
	}
	if input.Active != nil {
		updates["active"] = *input.Active
	}

	if err := dc.DB.Model(&sequence).Updates(updates).Error; err != nil {
		dc.Logger.WithError(err).Error("Failed to update sequence")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update sequence",
		})
	}

	return c.JSON(fiber.Map{
		"message":  "Sequence updated successfully",
		"sequence": sequence,
	})
}

// GetEnrollments lists a sequence's enrollments, most recent first.
func (dc *DripController) GetEnrollments(c *fiber.Ctx) error {
	id := utils.ParseUint(c.Params("id"))
	if id == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid sequence ID",
		})
	}

	var sequence models.DripSequence
	if err := dc.DB.First(&sequence, id).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Sequence not found",
		})
	}

	var enrollments []models.DripEnrollment
	if err := dc.DB.
		Where("sequence_id = ?", sequence.ID).
		Order("enrolled_at DESC").
		Find(&enrollments).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch enrollments",
		})
	}

	return c.JSON(fiber.Map{
		"enrollments": enrollments,
		"total":       len(enrollments),
	})
}

// ProcessDrips runs one due-step sweep. Guarded by the cron bearer
// secret; invoked hourly by the external scheduler.
func (dc *DripController) ProcessDrips(c *fiber.Ctx) error {
	result, err := dc.Processor.Run()
	if err != nil {
		dc.Logger.WithError(err).Error("Drip sweep aborted")
		sentry.CaptureException(err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Drip processing failed",
		})
	}

	return c.JSON(fiber.Map{
		"success":   true,
		"processed": result.Processed,
		"sent":      result.Sent,
		"failed":    result.Failed,
		"completed": result.Completed,
	})
}
