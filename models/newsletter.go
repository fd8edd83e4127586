package models

import (
	"time"

	"gorm.io/gorm"
)

// NewsletterSubscriber is one email address on the marketing list. The
// unsubscribe token backs one-click unsubscribe links embedded in every
// outgoing email.
type NewsletterSubscriber struct {
	gorm.Model

	Email            string `gorm:"not null;uniqueIndex" json:"email"`
	Name             string `json:"name"`
	Subscribed       bool   `gorm:"default:true" json:"subscribed"`
	UnsubscribeToken string `gorm:"not null;uniqueIndex" json:"-"`
	Source           string `json:"source"` // signup form, project page, import

	UnsubscribedAt *time.Time `json:"unsubscribed_at,omitempty"`
}
