package models

import "gorm.io/gorm"

// Bounce represents one delivery failure report picked up from the
// bounce mailbox. Hard bounces unsubscribe the address and cancel its
// active drip enrollments.
type Bounce struct {
	gorm.Model

	Email string `gorm:"not null;index" json:"email"`

	Type           string `gorm:"not null" json:"type"` // hard, soft
	Code           string `json:"code"`
	DiagnosticCode string `json:"diagnostic_code"`
}
