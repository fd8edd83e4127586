package worker

import (
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"vidbudova/config"
	"vidbudova/utils"
)

// StartScheduler runs drip processing and tender sync on an in-process
// cron. Deployments that trigger the HTTP cron endpoints from an
// external scheduler leave this disabled.
func StartScheduler(db *gorm.DB, mailer utils.Sender, logger *logrus.Logger) (*cron.Cron, error) {
	c := cron.New()

	processor := NewDripProcessor(
		db,
		mailer,
		logger.WithField("component", "drip"),
		FailurePolicy(config.AppConfig.DripFailurePolicy),
		config.AppConfig.BaseURL,
	)

	// Hourly drip sweep
	if _, err := c.AddFunc("0 * * * *", func() {
		if _, err := processor.Run(); err != nil {
			logger.WithError(err).Error("Scheduled drip sweep failed")
		}
	}); err != nil {
		return nil, err
	}

	tenderSync := NewTenderSync(db, logger.WithField("component", "tenders"), config.AppConfig.ProzorroAPIURL)

	// Daily tender sync at 06:00
	if _, err := c.AddFunc("0 6 * * *", func() {
		if _, err := tenderSync.Run(); err != nil {
			logger.WithError(err).Error("Scheduled tender sync failed")
		}
	}); err != nil {
		return nil, err
	}

	c.Start()
	logger.Info("In-process scheduler started")
	return c, nil
}
