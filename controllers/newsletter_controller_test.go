package controller

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"vidbudova/models"
)

func newNewsletterApp(t *testing.T, db *gorm.DB) *fiber.App {
	t.Helper()
	nc := NewNewsletterController(db, testLogger())

	app := fiber.New()
	app.Post("/api/newsletter/subscribe", nc.Subscribe)
	app.Get("/api/newsletter/unsubscribe", nc.Unsubscribe)
	app.Post("/api/newsletter/unsubscribe", nc.UnsubscribeForm)
	app.Get("/api/admin/subscribers", nc.GetSubscribers)
	return app
}

func seedSignupSequence(t *testing.T, db *gorm.DB) models.DripSequence {
	t.Helper()
	seq := models.DripSequence{
		Name: "Welcome", Trigger: models.TriggerOnSignup, Active: true,
		Steps: []models.DripStep{
			{Position: 1, DelayDays: 0, Subject: "Welcome!", HTMLContent: "<p>Hello {{.Name}}</p>"},
		},
	}
	require.NoError(t, db.Create(&seq).Error)
	return seq
}

func subscriberByEmail(t *testing.T, db *gorm.DB, email string) models.NewsletterSubscriber {
	t.Helper()
	var sub models.NewsletterSubscriber
	require.NoError(t, db.Where("email = ?", email).First(&sub).Error)
	return sub
}

func TestSubscribeCreatesSubscriberAndEnrollment(t *testing.T) {
	db := newTestDB(t)
	app := newNewsletterApp(t, db)
	seq := seedSignupSequence(t, db)

	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/newsletter/subscribe", fiber.Map{
		"email":  "Olena@Example.com",
		"name":   "Olena",
		"source": "footer",
	}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	// Email is normalized to lower case.
	sub := subscriberByEmail(t, db, "olena@example.com")
	assert.True(t, sub.Subscribed)
	assert.NotEmpty(t, sub.UnsubscribeToken)
	assert.Equal(t, "footer", sub.Source)

	var enrollments []models.DripEnrollment
	require.NoError(t, db.Where("subscriber_email = ?", sub.Email).Find(&enrollments).Error)
	require.Len(t, enrollments, 1)
	assert.Equal(t, seq.ID, enrollments[0].SequenceID)
	assert.Equal(t, models.EnrollmentStatusActive, enrollments[0].Status)
}

func TestSubscribeRejectsInvalidEmail(t *testing.T) {
	db := newTestDB(t)
	app := newNewsletterApp(t, db)

	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/newsletter/subscribe", fiber.Map{
		"email": "not-an-email",
	}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var count int64
	require.NoError(t, db.Model(&models.NewsletterSubscriber{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestSubscribeTwiceDoesNotDuplicate(t *testing.T) {
	db := newTestDB(t)
	app := newNewsletterApp(t, db)
	seedSignupSequence(t, db)

	for i := 0; i < 2; i++ {
		resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/newsletter/subscribe", fiber.Map{
			"email": "olena@example.com",
		}))
		require.NoError(t, err)
		require.Less(t, resp.StatusCode, 300)
	}

	var subscribers int64
	require.NoError(t, db.Model(&models.NewsletterSubscriber{}).Count(&subscribers).Error)
	assert.Equal(t, int64(1), subscribers)

	var enrollments int64
	require.NoError(t, db.Model(&models.DripEnrollment{}).Count(&enrollments).Error)
	assert.Equal(t, int64(1), enrollments)
}

func TestUnsubscribeCancelsAllEnrollments(t *testing.T) {
	db := newTestDB(t)
	app := newNewsletterApp(t, db)
	seedSignupSequence(t, db)
	second := models.DripSequence{
		Name: "Impact stories", Trigger: models.TriggerOnSignup, Active: true,
		Steps: []models.DripStep{{Position: 1, DelayDays: 1, Subject: "Story", HTMLContent: "<p>Story</p>"}},
	}
	require.NoError(t, db.Create(&second).Error)

	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/newsletter/subscribe", fiber.Map{
		"email": "olena@example.com",
	}))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	sub := subscriberByEmail(t, db, "olena@example.com")

	resp, err = app.Test(jsonRequest(t, http.MethodPost, "/api/newsletter/unsubscribe", fiber.Map{
		"token": sub.UnsubscribeToken,
	}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	sub = subscriberByEmail(t, db, "olena@example.com")
	assert.False(t, sub.Subscribed)
	assert.NotNil(t, sub.UnsubscribedAt)

	var active int64
	require.NoError(t, db.Model(&models.DripEnrollment{}).
		Where("subscriber_email = ? AND status = ?", sub.Email, models.EnrollmentStatusActive).
		Count(&active).Error)
	assert.Zero(t, active)
}

func TestUnsubscribeLinkRedirects(t *testing.T) {
	db := newTestDB(t)
	app := newNewsletterApp(t, db)
	seedSignupSequence(t, db)

	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/newsletter/subscribe", fiber.Map{
		"email": "olena@example.com",
	}))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	sub := subscriberByEmail(t, db, "olena@example.com")

	req := httptest.NewRequest(http.MethodGet, "/api/newsletter/unsubscribe?token="+sub.UnsubscribeToken, nil)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/unsubscribed", resp.Header.Get("Location"))

	assert.False(t, subscriberByEmail(t, db, "olena@example.com").Subscribed)
}

func TestUnsubscribeUnknownToken(t *testing.T) {
	db := newTestDB(t)
	app := newNewsletterApp(t, db)

	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/newsletter/unsubscribe", fiber.Map{
		"token": "nope",
	}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/newsletter/unsubscribe", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	app := newNewsletterApp(t, db)
	seedSignupSequence(t, db)

	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/newsletter/subscribe", fiber.Map{
		"email": "olena@example.com",
	}))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	sub := subscriberByEmail(t, db, "olena@example.com")

	for i := 0; i < 2; i++ {
		resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/newsletter/unsubscribe", fiber.Map{
			"token": sub.UnsubscribeToken,
		}))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
}

func TestResubscribeReenrolls(t *testing.T) {
	db := newTestDB(t)
	app := newNewsletterApp(t, db)
	seedSignupSequence(t, db)

	subscribe := func() {
		resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/newsletter/subscribe", fiber.Map{
			"email": "olena@example.com",
		}))
		require.NoError(t, err)
		require.Less(t, resp.StatusCode, 300)
	}

	subscribe()
	sub := subscriberByEmail(t, db, "olena@example.com")
	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/newsletter/unsubscribe", fiber.Map{
		"token": sub.UnsubscribeToken,
	}))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	subscribe()

	sub = subscriberByEmail(t, db, "olena@example.com")
	assert.True(t, sub.Subscribed)

	var active int64
	require.NoError(t, db.Model(&models.DripEnrollment{}).
		Where("subscriber_email = ? AND status = ?", sub.Email, models.EnrollmentStatusActive).
		Count(&active).Error)
	assert.Equal(t, int64(1), active)
}

func TestGetSubscribersFilters(t *testing.T) {
	db := newTestDB(t)
	app := newNewsletterApp(t, db)

	require.NoError(t, db.Create(&models.NewsletterSubscriber{
		Email: "a@example.com", Subscribed: true, UnsubscribeToken: "t1",
	}).Error)
	require.NoError(t, db.Create(&models.NewsletterSubscriber{
		Email: "b@example.com", Subscribed: false, UnsubscribeToken: "t2",
	}).Error)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/admin/subscribers?status=subscribed", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, float64(1), body["total"])
}
