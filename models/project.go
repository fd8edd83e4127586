package models

import "gorm.io/gorm"

// Project statuses
const (
	ProjectStatusPlanned   = "planned"
	ProjectStatusActive    = "active"
	ProjectStatusFunded    = "funded"
	ProjectStatusCompleted = "completed"
)

// Project is one infrastructure reconstruction project presented on the
// public site. Amounts are stored in kopiykas.
type Project struct {
	gorm.Model

	Title       string `gorm:"not null" json:"title"`
	Slug        string `gorm:"not null;uniqueIndex" json:"slug"`
	Summary     string `json:"summary"`
	Description string `gorm:"type:text" json:"description"`

	Region   string `gorm:"index" json:"region"`
	Category string `gorm:"index" json:"category"` // school, hospital, bridge, housing

	Status       string `gorm:"default:'planned'" json:"status"`
	TargetAmount int64  `gorm:"default:0" json:"target_amount"`
	RaisedAmount int64  `gorm:"default:0" json:"raised_amount"`

	Published bool `gorm:"default:false" json:"published"`

	// ProzorroKeyword drives tender matching for this project.
	ProzorroKeyword string `json:"prozorro_keyword"`

	// Relations
	Images []ProjectImage `gorm:"foreignKey:ProjectID" json:"images,omitempty"`
}

// ProjectImage is one S3-hosted photo attached to a project.
type ProjectImage struct {
	gorm.Model
	ProjectID uint `gorm:"not null;index" json:"project_id"`

	URL      string `gorm:"not null" json:"url"`
	Position int    `gorm:"default:0" json:"position"`
}
