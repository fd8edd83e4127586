package worker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"vidbudova/models"
)

func enrollmentsFor(t *testing.T, db *gorm.DB, email string) []models.DripEnrollment {
	t.Helper()
	var out []models.DripEnrollment
	require.NoError(t, db.Where("subscriber_email = ?", email).Order("id").Find(&out).Error)
	return out
}

func TestEnrollOnSignup(t *testing.T) {
	db := newTestDB(t)
	seq := createWelcomeSequence(t, db)

	require.NoError(t, EnrollOnSignup(db, "olena@example.com"))

	got := enrollmentsFor(t, db, "olena@example.com")
	require.Len(t, got, 1)
	assert.Equal(t, seq.ID, got[0].SequenceID)
	assert.Equal(t, 0, got[0].CurrentStep)
	assert.Equal(t, models.EnrollmentStatusActive, got[0].Status)
	// First step has no delay, so the enrollment is due immediately.
	assert.WithinDuration(t, time.Now(), got[0].NextSendAt, time.Minute)
}

func TestEnrollOnSignupHonorsFirstStepDelay(t *testing.T) {
	db := newTestDB(t)
	seq := models.DripSequence{
		Name:    "Slow start",
		Trigger: models.TriggerOnSignup,
		Active:  true,
		Steps: []models.DripStep{
			{Position: 1, DelayDays: 2, Subject: "Hi", HTMLContent: "<p>Hi</p>"},
		},
	}
	require.NoError(t, db.Create(&seq).Error)

	require.NoError(t, EnrollOnSignup(db, "olena@example.com"))

	got := enrollmentsFor(t, db, "olena@example.com")
	require.Len(t, got, 1)
	assert.WithinDuration(t, time.Now().Add(2*24*time.Hour), got[0].NextSendAt, time.Minute)
}

func TestEnrollOnSignupSkipsInactiveManualAndEmptySequences(t *testing.T) {
	db := newTestDB(t)
	inactive := models.DripSequence{
		Name: "Paused", Trigger: models.TriggerOnSignup, Active: false,
		Steps: []models.DripStep{{Position: 1, Subject: "x", HTMLContent: "x"}},
	}
	manual := models.DripSequence{
		Name: "Campaign follow-up", Trigger: models.TriggerManual, Active: true,
		Steps: []models.DripStep{{Position: 1, Subject: "x", HTMLContent: "x"}},
	}
	empty := models.DripSequence{
		Name: "No steps yet", Trigger: models.TriggerOnSignup, Active: true,
	}
	require.NoError(t, db.Create(&inactive).Error)
	require.NoError(t, db.Create(&manual).Error)
	require.NoError(t, db.Create(&empty).Error)

	require.NoError(t, EnrollOnSignup(db, "olena@example.com"))
	assert.Empty(t, enrollmentsFor(t, db, "olena@example.com"))
}

func TestEnrollOnSignupIsIdempotentForActiveEnrollments(t *testing.T) {
	db := newTestDB(t)
	createWelcomeSequence(t, db)

	require.NoError(t, EnrollOnSignup(db, "olena@example.com"))
	require.NoError(t, EnrollOnSignup(db, "olena@example.com"))

	assert.Len(t, enrollmentsFor(t, db, "olena@example.com"), 1)
}

func TestEnrollOnSignupReenrollsAfterCancellation(t *testing.T) {
	db := newTestDB(t)
	createWelcomeSequence(t, db)

	require.NoError(t, EnrollOnSignup(db, "olena@example.com"))
	require.NoError(t, CancelEnrollmentsForEmail(db, "olena@example.com"))
	require.NoError(t, EnrollOnSignup(db, "olena@example.com"))

	got := enrollmentsFor(t, db, "olena@example.com")
	require.Len(t, got, 2)
	assert.Equal(t, models.EnrollmentStatusCancelled, got[0].Status)
	assert.Equal(t, models.EnrollmentStatusActive, got[1].Status)
}

func TestCancelEnrollmentsForEmailSpansSequences(t *testing.T) {
	db := newTestDB(t)
	createWelcomeSequence(t, db)
	second := models.DripSequence{
		Name: "Impact stories", Trigger: models.TriggerOnSignup, Active: true,
		Steps: []models.DripStep{{Position: 1, DelayDays: 1, Subject: "Story", HTMLContent: "<p>Story</p>"}},
	}
	require.NoError(t, db.Create(&second).Error)

	require.NoError(t, EnrollOnSignup(db, "olena@example.com"))
	require.Len(t, enrollmentsFor(t, db, "olena@example.com"), 2)

	require.NoError(t, CancelEnrollmentsForEmail(db, "olena@example.com"))

	for _, e := range enrollmentsFor(t, db, "olena@example.com") {
		assert.Equal(t, models.EnrollmentStatusCancelled, e.Status)
		assert.NotNil(t, e.CancelledAt)
	}
}

func TestCancelEnrollmentsLeavesCompletedAlone(t *testing.T) {
	db := newTestDB(t)
	seq := createWelcomeSequence(t, db)

	now := time.Now()
	done := models.DripEnrollment{
		SequenceID:      seq.ID,
		SubscriberEmail: "olena@example.com",
		CurrentStep:     2,
		Status:          models.EnrollmentStatusCompleted,
		NextSendAt:      now,
		EnrolledAt:      now,
		CompletedAt:     &now,
	}
	require.NoError(t, db.Create(&done).Error)

	require.NoError(t, CancelEnrollmentsForEmail(db, "olena@example.com"))

	got := reload(t, db, done.ID)
	assert.Equal(t, models.EnrollmentStatusCompleted, got.Status)
	assert.Nil(t, got.CancelledAt)
}
