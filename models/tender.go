package models

import (
	"time"

	"gorm.io/gorm"
)

// Tender is one Prozorro procurement record matched to a project
// keyword by the tender sync job.
type Tender struct {
	gorm.Model

	ProzorroID string `gorm:"not null;uniqueIndex" json:"prozorro_id"`
	Title      string `gorm:"not null" json:"title"`
	Status     string `json:"status"`

	ValueAmount   float64 `json:"value_amount"`
	ValueCurrency string  `json:"value_currency"`
	Region        string  `json:"region"`

	DatePublished *time.Time `json:"date_published,omitempty"`

	MatchedProjectID *uint `gorm:"index" json:"matched_project_id,omitempty"`

	// Relations
	MatchedProject *Project `gorm:"foreignKey:MatchedProjectID" json:"matched_project,omitempty"`
}
