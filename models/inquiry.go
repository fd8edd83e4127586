package models

import (
	"time"

	"gorm.io/gorm"
)

// DonationInquiry is a contact-form message from a prospective donor,
// optionally tied to a specific project.
type DonationInquiry struct {
	gorm.Model
	ProjectID *uint `gorm:"index" json:"project_id,omitempty"`

	Name    string `gorm:"not null" json:"name"`
	Email   string `gorm:"not null" json:"email"`
	Phone   string `json:"phone"`
	Message string `gorm:"type:text" json:"message"`

	Status      string     `gorm:"default:'new'" json:"status"` // new, contacted, closed
	ReadStatus  bool       `gorm:"default:false" json:"read_status"`
	ContactedAt *time.Time `json:"contacted_at,omitempty"`

	// Relations
	Project *Project `json:"project,omitempty"`
}
