package models

import (
	"time"

	"gorm.io/gorm"
)

// Enrollment lifecycle states. Terminal states are never revisited by
// the due-step processor.
const (
	EnrollmentStatusActive    = "active"
	EnrollmentStatusCompleted = "completed"
	EnrollmentStatusCancelled = "cancelled"
)

// Sequence trigger conditions
const (
	TriggerOnSignup = "on_signup"
	TriggerManual   = "manual"
)

// DripSequence is a named, ordered set of timed email steps.
type DripSequence struct {
	gorm.Model

	Name    string `gorm:"not null" json:"name"`
	Trigger string `gorm:"default:'on_signup'" json:"trigger"` // on_signup, manual
	Active  bool   `gorm:"default:true" json:"active"`

	// Relations
	Steps []DripStep `gorm:"foreignKey:SequenceID" json:"steps,omitempty"`
}

// DripStep is one email template plus a delay in days from the previous
// step (or from enrollment time for the first step). Steps are created
// together with their sequence and are not edited individually.
type DripStep struct {
	gorm.Model
	SequenceID uint `gorm:"not null;index" json:"sequence_id"`

	Position    int    `gorm:"not null" json:"position"` // 1-based, unique within a sequence
	DelayDays   int    `gorm:"not null" json:"delay_days"`
	Subject     string `gorm:"not null" json:"subject"`
	HTMLContent string `gorm:"type:text;not null" json:"html_content"`
}

// DripEnrollment tracks one subscriber's progress through one sequence.
// SubscriberEmail is a correlation key, not a foreign key: subscribers
// and enrollments are joined by value so historical enrollments survive
// subscriber churn.
type DripEnrollment struct {
	gorm.Model
	SequenceID uint `gorm:"not null;index" json:"sequence_id"`

	SubscriberEmail string `gorm:"not null;index" json:"subscriber_email"`

	CurrentStep int       `gorm:"default:0" json:"current_step"` // 0 = nothing sent yet
	Status      string    `gorm:"default:'active';index" json:"status"`
	NextSendAt  time.Time `gorm:"index" json:"next_send_at"`

	EnrolledAt  time.Time  `json:"enrolled_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`

	// Relations
	Sequence DripSequence `json:"-"`
}
