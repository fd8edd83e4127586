package controller

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/gosimple/slug"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"vidbudova/models"
	"vidbudova/utils"
)

type ProjectController struct {
	DB     *gorm.DB
	Logger *logrus.Entry
}

func NewProjectController(db *gorm.DB, logger *logrus.Entry) *ProjectController {
	return &ProjectController{DB: db, Logger: logger}
}

// GetPublicProjects lists published projects for the public site,
// filterable by region, category and status.
func (pc *ProjectController) GetPublicProjects(c *fiber.Ctx) error {
	query := pc.DB.Model(&models.Project{}).Where("published = ?", true)
	if region := c.Query("region"); region != "" {
		query = query.Where("region = ?", region)
	}
	if category := c.Query("category"); category != "" {
		query = query.Where("category = ?", category)
	}
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var projects []models.Project
	if err := query.
		Preload("Images", func(tx *gorm.DB) *gorm.DB { return tx.Order("position") }).
		Order("created_at DESC").
		Find(&projects).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch projects",
		})
	}

	return c.JSON(fiber.Map{
		"projects": projects,
		"total":    len(projects),
	})
}

// GetPublicProject fetches a single published project by slug.
func (pc *ProjectController) GetPublicProject(c *fiber.Ctx) error {
	var project models.Project
	if err := pc.DB.
		Preload("Images", func(tx *gorm.DB) *gorm.DB { return tx.Order("position") }).
		Where("slug = ? AND published = ?", c.Params("slug"), true).
		First(&project).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Project not found",
		})
	}
	return c.JSON(fiber.Map{"project": project})
}

type ProjectInput struct {
	Title           string `json:"title" validate:"required,max=300"`
	Summary         string `json:"summary" validate:"max=500"`
	Description     string `json:"description"`
	Region          string `json:"region" validate:"max=100"`
	Category        string `json:"category" validate:"max=100"`
	Status          string `json:"status" validate:"omitempty,oneof=planned active funded completed"`
	TargetAmount    int64  `json:"targetAmount" validate:"gte=0"`
	Published       *bool  `json:"published"`
	ProzorroKeyword string `json:"prozorroKeyword" validate:"max=200"`
}

// uniqueSlug derives a URL slug from the title, suffixing on collision.
func (pc *ProjectController) uniqueSlug(title string, excludeID uint) (string, error) {
	base := slug.Make(title)
	candidate := base
	for i := 2; ; i++ {
		var count int64
		q := pc.DB.Model(&models.Project{}).Where("slug = ?", candidate)
		if excludeID != 0 {
			q = q.Where("id <> ?", excludeID)
		}
		if err := q.Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
}

func (pc *ProjectController) CreateProject(c *fiber.Ctx) error {
	var input ProjectInput
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

	projectSlug, err := pc.uniqueSlug(input.Title, 0)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create project",
		})
	}

	status := input.Status
	if status == "" {
		status = models.ProjectStatusPlanned
	}
	published := false
	if input.Published != nil {
		published = *input.Published
	}

	project := models.Project{
		Title:           input.Title,
		Slug:            projectSlug,
		Summary:         input.Summary,
		Description:     input.Description,
		Region:          input.Region,
		Category:        input.Category,
		Status:          status,
		TargetAmount:    input.TargetAmount,
		Published:       published,
		ProzorroKeyword: input.ProzorroKeyword,
	}
	if err := pc.DB.Create(&project).Error; err != nil {
		pc.Logger.WithError(err).Error("Failed to create project")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create project",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Project created successfully",
		"project": project,
	})
}

func (pc *ProjectController) GetProjects(c *fiber.Ctx) error {
	var projects []models.Project
	if err := pc.DB.
		Preload("Images", func(tx *gorm.DB) *gorm.DB { return tx.Order("position") }).
		Order("created_at DESC").
		Find(&projects).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch projects",
		})
	}
	return c.JSON(fiber.Map{
		"projects": projects,
		"total":    len(projects),
	})
}

func (pc *ProjectController) GetProject(c *fiber.Ctx) error {
	id := utils.ParseUint(c.Params("id"))
	if id == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid project ID",
		})
	}
	var project models.Project
	if err := pc.DB.
		Preload("Images", func(tx *gorm.DB) *gorm.DB { return tx.Order("position") }).
		First(&project, id).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Project not found",
		})
	}
	return c.JSON(fiber.Map{"project": project})
}

func (pc *ProjectController) UpdateProject(c *fiber.Ctx) error {
	id := utils.ParseUint(c.Params("id"))
	if id == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid project ID",
		})
	}
	var project models.Project
	if err := pc.DB.First(&project, id).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Project not found",
		})
	}

	var input ProjectInput
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

	updates := map[string]interface{}{
		"summary":          input.Summary,
		"description":      input.Description,
		"region":           input.Region,
		"category":         input.Category,
		"target_amount":    input.TargetAmount,
		"prozorro_keyword": input.ProzorroKeyword,
	}
	if input.Title != project.Title {
		newSlug, err := pc.uniqueSlug(input.Title, project.ID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to update project",
			})
		}
		updates["title"] = input.Title
		updates["slug"] = newSlug
	}
	if input.Status != "" {
		updates["status"] = input.Status
	}
	if input.Published != nil {
		updates["published"] = *input.Published
	}

	if err := pc.DB.Model(&project).Updates(updates).Error; err != nil {
		pc.Logger.WithError(err).Error("Failed to update project")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update project",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Project updated successfully",
		"project": project,
	})
}

func (pc *ProjectController) DeleteProject(c *fiber.Ctx) error {
	id := utils.ParseUint(c.Params("id"))
	if id == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid project ID",
		})
	}
	var project models.Project
	if err := pc.DB.Preload("Images").First(&project, id).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Project not found",
		})
	}

	for _, img := range project.Images {
		if err := utils.DeleteProjectImage(img.URL); err != nil {
			pc.Logger.WithError(err).WithField("url", img.URL).Warn("Failed to delete project image from storage")
		}
	}

	if err := pc.DB.Select("Images").Delete(&project).Error; err != nil {
		pc.Logger.WithError(err).Error("Failed to delete project")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete project",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Project deleted successfully",
	})
}

// UploadImage stores an image in object storage and appends it to the
// project gallery.
func (pc *ProjectController) UploadImage(c *fiber.Ctx) error {
	id := utils.ParseUint(c.Params("id"))
	if id == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid project ID",
		})
	}
	var project models.Project
	if err := pc.DB.First(&project, id).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Project not found",
		})
	}

	file, err := c.FormFile("image")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Missing image file",
		})
	}

	url, err := utils.UploadProjectImage(file, project.Slug)
	if err != nil {
		if errors.Is(err, utils.ErrImageTooLarge) || errors.Is(err, utils.ErrImageType) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		pc.Logger.WithError(err).Error("Failed to upload project image")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to upload image",
		})
	}

	var maxPos int
	pc.DB.Model(&models.ProjectImage{}).
		Where("project_id = ?", project.ID).
		Select("COALESCE(MAX(position), 0)").
		Scan(&maxPos)

	image := models.ProjectImage{
		ProjectID: project.ID,
		URL:       url,
		Position:  maxPos + 1,
	}
	if err := pc.DB.Create(&image).Error; err != nil {
		pc.Logger.WithError(err).Error("Failed to record project image")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to save image",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Image uploaded successfully",
		"image":   image,
	})
}

func (pc *ProjectController) DeleteImage(c *fiber.Ctx) error {
	projectID := utils.ParseUint(c.Params("id"))
	imageID := utils.ParseUint(c.Params("imageID"))
	if projectID == 0 || imageID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid ID",
		})
	}

	var image models.ProjectImage
	if err := pc.DB.Where("id = ? AND project_id = ?", imageID, projectID).First(&image).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Image not found",
		})
	}

	if err := utils.DeleteProjectImage(image.URL); err != nil {
		pc.Logger.WithError(err).WithField("url", image.URL).Warn("Failed to delete image from storage")
	}
	if err := pc.DB.Delete(&image).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete image",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Image deleted successfully",
	})
}
