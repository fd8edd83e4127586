package models

import "gorm.io/gorm"

// Donation statuses mirror the Stripe payment lifecycle.
const (
	DonationStatusPending   = "pending"
	DonationStatusSucceeded = "succeeded"
	DonationStatusFailed    = "failed"
)

// Donation is one Stripe checkout payment toward a project. Amounts are
// minor units in the donation currency.
type Donation struct {
	gorm.Model
	ProjectID *uint `gorm:"index" json:"project_id,omitempty"`

	DonorEmail string `gorm:"index" json:"donor_email"`
	DonorName  string `json:"donor_name"`
	Message    string `json:"message"`

	Amount   int64  `gorm:"not null" json:"amount"`
	Currency string `gorm:"default:'uah'" json:"currency"`
	Status   string `gorm:"default:'pending'" json:"status"`

	StripeSessionID       string `gorm:"index" json:"-"`
	StripePaymentIntentID string `json:"-"`
	ReceiptURL            string `json:"receipt_url,omitempty"`

	// Relations
	Project *Project `json:"project,omitempty"`
}
