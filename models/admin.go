package models

import (
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Admin is a backend user. There is no public registration; the first
// account is seeded from configuration.
type Admin struct {
	gorm.Model

	Email        string  `gorm:"not null;uniqueIndex" json:"email"`
	PasswordHash string  `gorm:"not null" json:"-"`
	Name         *string `json:"name,omitempty"`
	IsActive     bool    `gorm:"default:true" json:"is_active"`

	// TokenVersion invalidates outstanding JWTs on password change.
	TokenVersion int `gorm:"default:0" json:"-"`

	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

func (a *Admin) SetPassword(plain string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	a.PasswordHash = string(hash)
	return nil
}

func (a *Admin) CheckPassword(plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(plain)) == nil
}
