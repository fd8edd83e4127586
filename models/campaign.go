package models

import (
	"time"

	"gorm.io/gorm"
)

// Campaign statuses
const (
	CampaignStatusDraft   = "draft"
	CampaignStatusSending = "sending"
	CampaignStatusSent    = "sent"
	CampaignStatusFailed  = "failed"
)

// EmailCampaign is a one-off blast to every subscribed newsletter
// address, as opposed to the timed drip sequences.
type EmailCampaign struct {
	gorm.Model

	Name        string `gorm:"not null" json:"name"`
	Subject     string `gorm:"not null" json:"subject"`
	HTMLContent string `gorm:"type:text" json:"html_content"`

	Status      string     `gorm:"default:'draft'" json:"status"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	SentAt      *time.Time `json:"sent_at,omitempty"`

	// Statistics (denormalized for admin listing)
	RecipientCount int `gorm:"default:0" json:"recipient_count"`
	SentCount      int `gorm:"default:0" json:"sent_count"`
	FailedCount    int `gorm:"default:0" json:"failed_count"`

	// Relations
	Sends []CampaignSend `gorm:"foreignKey:CampaignID" json:"sends,omitempty"`
}

// CampaignSend records one delivery attempt to one recipient.
type CampaignSend struct {
	gorm.Model
	CampaignID uint `gorm:"not null;index" json:"campaign_id"`

	Email  string `gorm:"not null;index" json:"email"`
	Status string `gorm:"not null" json:"status"` // sent, failed
	Error  string `json:"error,omitempty"`
}
