package models

import "time"

type PasswordHistory struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	Hash      string    `gorm:"not null" json:"-"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}
