package models

import "time"

// Invitation is a standing offer to join a course, issued to one email address.
// Rows are created by the enrolment subsystem and consumed once at signup.
type Invitation struct {
	ID       uint `gorm:"primaryKey;autoIncrement" json:"id"`
	CourseID uint `gorm:"not null;index" json:"course_id"`

	Token string `gorm:"size:40;not null;uniqueIndex" json:"-"`
	Email string `gorm:"size:100;not null" json:"email"`

	// UserID is set once the invitation belongs to an account.
	UserID         *uint  `gorm:"index" json:"user_id"`
	TokenUsed      bool   `gorm:"not null;default:false" json:"token_used"`
	TimeExpiration int64  `gorm:"not null;index" json:"time_expiration"`
	TimeUsed       *int64 `json:"time_used"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
