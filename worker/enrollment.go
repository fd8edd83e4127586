package worker

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"vidbudova/models"
)

// EnrollOnSignup enrolls an email address into every active on-signup
// sequence that has at least one step. Sequences where the address
// already has an active enrollment are skipped, preserving the
// one-active-enrollment-per-pair invariant.
func EnrollOnSignup(db *gorm.DB, email string) error {
	now := time.Now()

	var sequences []models.DripSequence
	if err := db.
		Where(`"trigger" = ? AND active = ?`, models.TriggerOnSignup, true).
		Preload("Steps", func(tx *gorm.DB) *gorm.DB { return tx.Order("position") }).
		Find(&sequences).Error; err != nil {
		return fmt.Errorf("failed to fetch signup sequences: %w", err)
	}

	for _, seq := range sequences {
		if len(seq.Steps) == 0 {
			continue
		}

		var existing int64
		if err := db.Model(&models.DripEnrollment{}).
			Where("sequence_id = ? AND subscriber_email = ? AND status = ?", seq.ID, email, models.EnrollmentStatusActive).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			continue
		}

		enrollment := models.DripEnrollment{
			SequenceID:      seq.ID,
			SubscriberEmail: email,
			CurrentStep:     0,
			Status:          models.EnrollmentStatusActive,
			NextSendAt:      now.Add(time.Duration(seq.Steps[0].DelayDays) * 24 * time.Hour),
			EnrolledAt:      now,
		}
		if err := db.Create(&enrollment).Error; err != nil {
			return fmt.Errorf("failed to enroll %s into sequence %d: %w", email, seq.ID, err)
		}
	}

	return nil
}

// CancelEnrollmentsForEmail transitions every active enrollment for the
// address, across all sequences, to cancelled. Cancelled enrollments
// are never selected as due again.
func CancelEnrollmentsForEmail(db *gorm.DB, email string) error {
	return db.Model(&models.DripEnrollment{}).
		Where("subscriber_email = ? AND status = ?", email, models.EnrollmentStatusActive).
		Updates(map[string]interface{}{
			"status":       models.EnrollmentStatusCancelled,
			"cancelled_at": time.Now(),
		}).Error
}
