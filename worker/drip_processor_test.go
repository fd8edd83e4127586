package worker

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"vidbudova/config"
	"vidbudova/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, config.MigrateDB(db))
	return db
}

func testLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger.WithField("component", "test")
}

type sentMail struct {
	To      string
	Subject string
	Body    string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMail
	fail bool
}

func (f *fakeSender) Send(to, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("smtp unavailable")
	}
	f.sent = append(f.sent, sentMail{To: to, Subject: subject, Body: body})
	return nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func newTestProcessor(db *gorm.DB, sender *fakeSender, policy FailurePolicy) *DripProcessor {
	p := NewDripProcessor(db, sender, testLogger(), policy, "https://vidbudova.example")
	return p
}

func createWelcomeSequence(t *testing.T, db *gorm.DB) models.DripSequence {
	t.Helper()
	seq := models.DripSequence{
		Name:    "Welcome",
		Trigger: models.TriggerOnSignup,
		Active:  true,
		Steps: []models.DripStep{
			{Position: 1, DelayDays: 0, Subject: "Welcome!", HTMLContent: "<p>Hello {{.Name}}</p>"},
			{Position: 2, DelayDays: 3, Subject: "Our projects", HTMLContent: "<p>Take a look</p>"},
		},
	}
	require.NoError(t, db.Create(&seq).Error)
	return seq
}

func createEnrollment(t *testing.T, db *gorm.DB, seq models.DripSequence, email string, nextSendAt time.Time) models.DripEnrollment {
	t.Helper()
	e := models.DripEnrollment{
		SequenceID:      seq.ID,
		SubscriberEmail: email,
		CurrentStep:     0,
		Status:          models.EnrollmentStatusActive,
		NextSendAt:      nextSendAt,
		EnrolledAt:      time.Now(),
	}
	require.NoError(t, db.Create(&e).Error)
	return e
}

func reload(t *testing.T, db *gorm.DB, id uint) models.DripEnrollment {
	t.Helper()
	var e models.DripEnrollment
	require.NoError(t, db.First(&e, id).Error)
	return e
}

func TestRunAdvancesExactlyOneStep(t *testing.T) {
	db := newTestDB(t)
	sender := &fakeSender{}
	p := newTestProcessor(db, sender, AdvanceOnFailure)

	seq := createWelcomeSequence(t, db)
	start := time.Now().Add(-time.Hour)
	e := createEnrollment(t, db, seq, "olena@example.com", start)

	result, err := p.Run()
	require.NoError(t, err)
	assert.Equal(t, Result{Processed: 1, Sent: 1}, result)

	// Only step 1 goes out even though the enrollment is long overdue.
	require.Equal(t, 1, sender.count())
	assert.Equal(t, "Welcome!", sender.sent[0].Subject)
	assert.Equal(t, "olena@example.com", sender.sent[0].To)

	got := reload(t, db, e.ID)
	assert.Equal(t, 1, got.CurrentStep)
	assert.Equal(t, models.EnrollmentStatusActive, got.Status)
	assert.WithinDuration(t, time.Now().Add(3*24*time.Hour), got.NextSendAt, time.Minute)
}

func TestRunNothingDueIsNoOp(t *testing.T) {
	db := newTestDB(t)
	sender := &fakeSender{}
	p := newTestProcessor(db, sender, AdvanceOnFailure)

	seq := createWelcomeSequence(t, db)
	createEnrollment(t, db, seq, "olena@example.com", time.Now().Add(24*time.Hour))

	result, err := p.Run()
	require.NoError(t, err)
	assert.Equal(t, Result{}, result)
	assert.Zero(t, sender.count())
}

func TestRunCompletesAfterLastStep(t *testing.T) {
	db := newTestDB(t)
	sender := &fakeSender{}
	p := newTestProcessor(db, sender, AdvanceOnFailure)

	seq := createWelcomeSequence(t, db)
	e := createEnrollment(t, db, seq, "olena@example.com", time.Now().Add(-time.Minute))

	// Sweep 1: step 1 goes out immediately.
	result, err := p.Run()
	require.NoError(t, err)
	assert.Equal(t, Result{Processed: 1, Sent: 1}, result)

	// Nothing due until the 3-day delay elapses.
	result, err = p.Run()
	require.NoError(t, err)
	assert.Equal(t, Result{}, result)

	// Jump the sweep clock past the delay; the fetch window is driven by
	// next_send_at, so rewind the row instead of waiting.
	require.NoError(t, db.Model(&models.DripEnrollment{}).
		Where("id = ?", e.ID).
		Update("next_send_at", time.Now().Add(-time.Minute)).Error)

	result, err = p.Run()
	require.NoError(t, err)
	assert.Equal(t, Result{Processed: 1, Sent: 1, Completed: 1}, result)

	got := reload(t, db, e.ID)
	assert.Equal(t, models.EnrollmentStatusCompleted, got.Status)
	assert.Equal(t, 2, got.CurrentStep)
	require.NotNil(t, got.CompletedAt)

	// Completed enrollments are terminal: a further sweep touches nothing.
	result, err = p.Run()
	require.NoError(t, err)
	assert.Equal(t, Result{}, result)
	assert.Equal(t, 2, sender.count())
}

func TestRunCompletesEnrollmentPastLastStepWithoutSending(t *testing.T) {
	db := newTestDB(t)
	sender := &fakeSender{}
	p := newTestProcessor(db, sender, AdvanceOnFailure)

	seq := createWelcomeSequence(t, db)
	e := createEnrollment(t, db, seq, "olena@example.com", time.Now().Add(-time.Minute))
	// Force the enrollment past the final step, as if the step rows were
	// removed after it advanced.
	require.NoError(t, db.Model(&models.DripEnrollment{}).
		Where("id = ?", e.ID).
		Update("current_step", 2).Error)

	result, err := p.Run()
	require.NoError(t, err)
	assert.Equal(t, Result{Processed: 1, Completed: 1}, result)
	assert.Zero(t, sender.count())

	got := reload(t, db, e.ID)
	assert.Equal(t, models.EnrollmentStatusCompleted, got.Status)
}

func TestRunSkipsCancelledEnrollments(t *testing.T) {
	db := newTestDB(t)
	sender := &fakeSender{}
	p := newTestProcessor(db, sender, AdvanceOnFailure)

	seq := createWelcomeSequence(t, db)
	e := createEnrollment(t, db, seq, "olena@example.com", time.Now().Add(-time.Minute))
	require.NoError(t, CancelEnrollmentsForEmail(db, "olena@example.com"))

	result, err := p.Run()
	require.NoError(t, err)
	assert.Equal(t, Result{}, result)
	assert.Zero(t, sender.count())

	got := reload(t, db, e.ID)
	assert.Equal(t, models.EnrollmentStatusCancelled, got.Status)
	require.NotNil(t, got.CancelledAt)
}

func TestRunAdvanceOnFailureSkipsFailedStep(t *testing.T) {
	db := newTestDB(t)
	sender := &fakeSender{fail: true}
	p := newTestProcessor(db, sender, AdvanceOnFailure)

	seq := createWelcomeSequence(t, db)
	e := createEnrollment(t, db, seq, "olena@example.com", time.Now().Add(-time.Minute))

	result, err := p.Run()
	require.NoError(t, err)
	assert.Equal(t, Result{Processed: 1, Failed: 1}, result)

	// The step is claimed before the send, so the enrollment moved on.
	got := reload(t, db, e.ID)
	assert.Equal(t, 1, got.CurrentStep)
	assert.Equal(t, models.EnrollmentStatusActive, got.Status)
}

func TestRunRetryOnFailureKeepsStep(t *testing.T) {
	db := newTestDB(t)
	sender := &fakeSender{fail: true}
	p := newTestProcessor(db, sender, RetryOnFailure)

	seq := createWelcomeSequence(t, db)
	e := createEnrollment(t, db, seq, "olena@example.com", time.Now().Add(-time.Minute))

	result, err := p.Run()
	require.NoError(t, err)
	assert.Equal(t, Result{Processed: 1, Failed: 1}, result)

	got := reload(t, db, e.ID)
	assert.Equal(t, 0, got.CurrentStep)
	assert.Equal(t, models.EnrollmentStatusActive, got.Status)

	// The provider recovers; the next sweep retries the same step.
	sender.fail = false
	result, err = p.Run()
	require.NoError(t, err)
	assert.Equal(t, Result{Processed: 1, Sent: 1}, result)
	assert.Equal(t, "Welcome!", sender.sent[0].Subject)

	got = reload(t, db, e.ID)
	assert.Equal(t, 1, got.CurrentStep)
}

func TestAdvanceLosesToConcurrentSweep(t *testing.T) {
	db := newTestDB(t)
	sender := &fakeSender{}
	p := newTestProcessor(db, sender, AdvanceOnFailure)

	seq := createWelcomeSequence(t, db)
	e := createEnrollment(t, db, seq, "olena@example.com", time.Now().Add(-time.Minute))

	// Simulate another sweep winning between fetch and claim: the row in
	// the database is already on step 1 while our snapshot still says 0.
	require.NoError(t, db.Model(&models.DripEnrollment{}).
		Where("id = ?", e.ID).
		Update("current_step", 1).Error)

	var step models.DripStep
	require.NoError(t, db.Where("sequence_id = ? AND position = ?", seq.ID, 1).First(&step).Error)

	advanced, completed, err := p.advance(&e, &step, time.Now())
	require.NoError(t, err)
	assert.False(t, advanced)
	assert.False(t, completed)

	got := reload(t, db, e.ID)
	assert.Equal(t, 1, got.CurrentStep)
}

func TestRunRendersSubscriberFields(t *testing.T) {
	db := newTestDB(t)
	sender := &fakeSender{}
	p := newTestProcessor(db, sender, AdvanceOnFailure)

	require.NoError(t, db.Create(&models.NewsletterSubscriber{
		Email:            "olena@example.com",
		Name:             "Olena",
		Subscribed:       true,
		UnsubscribeToken: "tok-123",
	}).Error)

	seq := createWelcomeSequence(t, db)
	createEnrollment(t, db, seq, "olena@example.com", time.Now().Add(-time.Minute))

	_, err := p.Run()
	require.NoError(t, err)
	require.Equal(t, 1, sender.count())
	assert.Contains(t, sender.sent[0].Body, "Olena")
}

func TestRunProcessesManyDueEnrollments(t *testing.T) {
	db := newTestDB(t)
	sender := &fakeSender{}
	p := newTestProcessor(db, sender, AdvanceOnFailure)

	seq := createWelcomeSequence(t, db)
	for i := 0; i < 5; i++ {
		createEnrollment(t, db, seq, fmt.Sprintf("donor%d@example.com", i), time.Now().Add(-time.Minute))
	}

	result, err := p.Run()
	require.NoError(t, err)
	assert.Equal(t, Result{Processed: 5, Sent: 5}, result)
	assert.Equal(t, 5, sender.count())
}

func TestParseFailurePolicy(t *testing.T) {
	policy, err := ParseFailurePolicy("advance_on_failure")
	require.NoError(t, err)
	assert.Equal(t, AdvanceOnFailure, policy)

	policy, err = ParseFailurePolicy("retry_on_failure")
	require.NoError(t, err)
	assert.Equal(t, RetryOnFailure, policy)

	_, err = ParseFailurePolicy("drop")
	assert.Error(t, err)
}
