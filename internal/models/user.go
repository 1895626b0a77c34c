package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// AuthInvitation tags accounts created through invitation-based signup.
const AuthInvitation = "invitation"

// User is a local platform account. Rows are never removed; deletion flips Deleted.
type User struct {
	ID         uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Auth       string `gorm:"size:20;not null;default:manual;index" json:"auth"`
	MnetHostID uint   `gorm:"not null;default:1;uniqueIndex:idx_users_realm_username" json:"mnethostid"`
	Username   string `gorm:"size:100;not null;uniqueIndex:idx_users_realm_username" json:"username"`
	Password   string `gorm:"not null" json:"-"`
	Email      string `gorm:"size:100;not null;index" json:"email"`
	// EmailLower is Email folded by NormalizeEmail and kept in sync on save.
	EmailLower string `gorm:"column:email_lower;size:100;not null;default:'';index" json:"-"`

	Confirmed bool `gorm:"not null" json:"confirmed"`
	Deleted   bool `gorm:"not null;default:false;index" json:"deleted"`

	FirstName string `gorm:"size:100" json:"first_name"`
	LastName  string `gorm:"size:100" json:"last_name"`
	City      string `gorm:"size:120" json:"city"`
	Country   string `gorm:"size:2" json:"country"`
	Lang      string `gorm:"size:30;not null;default:en" json:"lang"`
	Timezone  string `gorm:"size:100;not null;default:99" json:"timezone"`

	// LastAccess is the epoch second of the last site activity, 0 when never seen.
	LastAccess int64 `gorm:"not null;default:0;index" json:"last_access"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FullName joins first and last name.
func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// NormalizeEmail is the lookup form of an address. Case is folded for all
// scripts, accents are kept.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// BeforeSave keeps EmailLower in sync with Email.
func (u *User) BeforeSave(*gorm.DB) error {
	u.EmailLower = NormalizeEmail(u.Email)
	return nil
}
