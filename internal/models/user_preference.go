package models

// UserPreference stores a named per-user value.
type UserPreference struct {
	ID     uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID uint   `gorm:"not null;uniqueIndex:idx_user_preference" json:"user_id"`
	Name   string `gorm:"size:255;not null;uniqueIndex:idx_user_preference" json:"name"`
	Value  string `gorm:"size:1333;not null" json:"value"`
}
