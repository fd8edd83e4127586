package worker

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"vidbudova/models"
	"vidbudova/utils"
)

// FailurePolicy decides what happens to an enrollment when the email
// provider rejects a send.
type FailurePolicy string

const (
	// AdvanceOnFailure moves past the failed step; the subscriber
	// never receives it.
	AdvanceOnFailure FailurePolicy = "advance_on_failure"

	// RetryOnFailure leaves the enrollment untouched so the next sweep
	// attempts the same step again.
	RetryOnFailure FailurePolicy = "retry_on_failure"
)

func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch FailurePolicy(s) {
	case AdvanceOnFailure, RetryOnFailure:
		return FailurePolicy(s), nil
	}
	return "", fmt.Errorf("unknown drip failure policy %q", s)
}

// Result aggregates counters across one sweep.
type Result struct {
	Processed int `json:"processed"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
	Completed int `json:"completed"`
}

// DripProcessor advances due enrollments by exactly one step per sweep.
// Each enrollment's transition is its own atomic unit; there is no
// transaction around the whole sweep.
type DripProcessor struct {
	DB      *gorm.DB
	Mailer  utils.Sender
	Logger  *logrus.Entry
	Policy  FailurePolicy
	BaseURL string

	// Now is the sweep clock, overridable in tests.
	Now func() time.Time
}

func NewDripProcessor(db *gorm.DB, mailer utils.Sender, logger *logrus.Entry, policy FailurePolicy, baseURL string) *DripProcessor {
	return &DripProcessor{
		DB:      db,
		Mailer:  mailer,
		Logger:  logger,
		Policy:  policy,
		BaseURL: baseURL,
		Now:     time.Now,
	}
}

// Run performs one sweep: every active enrollment whose next-send time
// has passed either receives its next step or is completed. Send
// failures are counted and never abort the sweep; database errors do.
func (p *DripProcessor) Run() (Result, error) {
	now := p.Now()
	var result Result

	var due []models.DripEnrollment
	if err := p.DB.
		Where("status = ? AND next_send_at <= ?", models.EnrollmentStatusActive, now).
		Order("next_send_at").
		Find(&due).Error; err != nil {
		return result, fmt.Errorf("failed to fetch due enrollments: %w", err)
	}

	for i := range due {
		result.Processed++
		if err := p.processEnrollment(&due[i], now, &result); err != nil {
			return result, err
		}
	}

	if result.Processed > 0 {
		p.Logger.WithFields(logrus.Fields{
			"processed": result.Processed,
			"sent":      result.Sent,
			"failed":    result.Failed,
			"completed": result.Completed,
		}).Info("Drip sweep finished")
	}

	return result, nil
}

func (p *DripProcessor) processEnrollment(e *models.DripEnrollment, now time.Time, result *Result) error {
	var step models.DripStep
	err := p.DB.
		Where("sequence_id = ? AND position = ?", e.SequenceID, e.CurrentStep+1).
		First(&step).Error
	if err == gorm.ErrRecordNotFound {
		// Past the last step: terminal transition, nothing to send.
		completed, err := p.complete(e, now)
		if err != nil {
			return err
		}
		if completed {
			result.Completed++
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to look up step %d of sequence %d: %w", e.CurrentStep+1, e.SequenceID, err)
	}

	if p.Policy == AdvanceOnFailure {
		// Claim the step before sending. If a concurrent sweep already
		// advanced this enrollment the update matches no rows and we
		// skip it, so the subscriber cannot receive the step twice.
		advanced, completed, err := p.advance(e, &step, now)
		if err != nil {
			return err
		}
		if !advanced {
			p.Logger.WithField("enrollment_id", e.ID).Warn("Enrollment already advanced by a concurrent sweep, skipping")
			return nil
		}
		if completed {
			result.Completed++
		}
		if sendErr := p.send(e, &step); sendErr != nil {
			result.Failed++
			p.Logger.WithError(sendErr).WithFields(logrus.Fields{
				"enrollment_id": e.ID,
				"step":          step.Position,
			}).Warn("Drip send failed, step skipped")
		} else {
			result.Sent++
		}
		return nil
	}

	// Retry policy: send first, advance only on success so the next
	// sweep can retry the same step.
	if sendErr := p.send(e, &step); sendErr != nil {
		result.Failed++
		p.Logger.WithError(sendErr).WithFields(logrus.Fields{
			"enrollment_id": e.ID,
			"step":          step.Position,
		}).Warn("Drip send failed, will retry next sweep")
		return nil
	}
	result.Sent++

	advanced, completed, err := p.advance(e, &step, now)
	if err != nil {
		return err
	}
	if !advanced {
		p.Logger.WithField("enrollment_id", e.ID).Warn("Enrollment already advanced by a concurrent sweep")
		return nil
	}
	if completed {
		result.Completed++
	}
	return nil
}

// advance conditionally moves the enrollment past the given step. The
// update is keyed on the last-known step value so overlapping sweeps
// cannot both win. Returns whether the row was claimed and whether the
// enrollment reached its terminal state.
func (p *DripProcessor) advance(e *models.DripEnrollment, step *models.DripStep, now time.Time) (advanced bool, completed bool, err error) {
	var next models.DripStep
	nextErr := p.DB.
		Where("sequence_id = ? AND position = ?", e.SequenceID, step.Position+1).
		First(&next).Error

	var updates map[string]interface{}
	switch {
	case nextErr == gorm.ErrRecordNotFound:
		// No step after this one: sending it finishes the sequence.
		completed = true
		updates = map[string]interface{}{
			"current_step": step.Position,
			"status":       models.EnrollmentStatusCompleted,
			"completed_at": now,
		}
	case nextErr != nil:
		return false, false, fmt.Errorf("failed to look up step %d of sequence %d: %w", step.Position+1, e.SequenceID, nextErr)
	default:
		// Anchor the next send at the sweep clock, not at the previous
		// schedule, so a backlog does not trigger a catch-up burst.
		updates = map[string]interface{}{
			"current_step": step.Position,
			"next_send_at": now.Add(time.Duration(next.DelayDays) * 24 * time.Hour),
		}
	}

	res := p.DB.Model(&models.DripEnrollment{}).
		Where("id = ? AND status = ? AND current_step = ?", e.ID, models.EnrollmentStatusActive, e.CurrentStep).
		Updates(updates)
	if res.Error != nil {
		return false, false, fmt.Errorf("failed to advance enrollment %d: %w", e.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return false, false, nil
	}
	return true, completed, nil
}

// complete conditionally marks an enrollment with no remaining steps as
// completed. Returns false when a concurrent sweep got there first.
func (p *DripProcessor) complete(e *models.DripEnrollment, now time.Time) (bool, error) {
	res := p.DB.Model(&models.DripEnrollment{}).
		Where("id = ? AND status = ? AND current_step = ?", e.ID, models.EnrollmentStatusActive, e.CurrentStep).
		Updates(map[string]interface{}{
			"status":       models.EnrollmentStatusCompleted,
			"completed_at": now,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to complete enrollment %d: %w", e.ID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (p *DripProcessor) send(e *models.DripEnrollment, step *models.DripStep) error {
	data := utils.EmailData{Email: e.SubscriberEmail}

	// The subscriber row carries the display name and unsubscribe
	// token; enrollments reference it by email value only.
	var subscriber models.NewsletterSubscriber
	if err := p.DB.Where("email = ?", e.SubscriberEmail).First(&subscriber).Error; err == nil {
		data.Name = subscriber.Name
		data.UnsubscribeURL = utils.UnsubscribeURL(p.BaseURL, subscriber.UnsubscribeToken)
	}
	if data.Name == "" {
		data.Name = "friend"
	}

	body, err := utils.RenderEmailBody(step.HTMLContent, data)
	if err != nil {
		return err
	}
	return p.Mailer.Send(e.SubscriberEmail, step.Subject, body)
}
