package models

import "time"

// RateLimitCounter is a fixed window request counter shared between server
// instances.
type RateLimitCounter struct {
	Key       string    `gorm:"column:bucket;primaryKey;size:255"`
	Count     int       `gorm:"not null;default:0"`
	WindowEnd time.Time `gorm:"index;not null"`
	UpdatedAt time.Time
}
