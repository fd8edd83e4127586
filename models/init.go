package models

import "gorm.io/gorm"

// CreateDefaultAdmin seeds the first backend account when the admins
// table is empty. No-op when credentials are not configured.
func CreateDefaultAdmin(db *gorm.DB, email, password, name string) error {
	if email == "" || password == "" {
		return nil
	}

	var count int64
	if err := db.Model(&Admin{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	admin := Admin{
		Email:    email,
		Name:     &name,
		IsActive: true,
	}
	if err := admin.SetPassword(password); err != nil {
		return err
	}
	return db.Create(&admin).Error
}

// CreateDefaultWelcomeSequence seeds a two-step signup drip so a fresh
// deployment greets new subscribers without any admin setup.
func CreateDefaultWelcomeSequence(db *gorm.DB) error {
	var count int64
	if err := db.Model(&DripSequence{}).Where(`"trigger" = ?`, TriggerOnSignup).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	welcome := DripSequence{
		Name:    "Welcome series",
		Trigger: TriggerOnSignup,
		Active:  true,
		Steps: []DripStep{
			{
				Position:    1,
				DelayDays:   0,
				Subject:     "Welcome to Vidbudova",
				HTMLContent: "<p>Hello {{.Name}},</p><p>Thank you for joining us. We rebuild schools, hospitals and bridges across Ukraine, and we will keep you posted on every project you help fund.</p><p><a href=\"{{.UnsubscribeURL}}\">Unsubscribe</a></p>",
			},
			{
				Position:    2,
				DelayDays:   3,
				Subject:     "How your donation becomes a rebuilt school",
				HTMLContent: "<p>Hello {{.Name}},</p><p>Here is how we turn donations into finished reconstruction projects, from tender to handover.</p><p><a href=\"{{.UnsubscribeURL}}\">Unsubscribe</a></p>",
			},
		},
	}
	return db.Create(&welcome).Error
}
