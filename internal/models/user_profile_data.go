package models

import "gorm.io/datatypes"

// UserProfileData holds one extended profile field value for a user.
type UserProfileData struct {
	ID     uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID uint           `gorm:"not null;uniqueIndex:idx_user_profile_field" json:"user_id"`
	Field  string         `gorm:"size:100;not null;uniqueIndex:idx_user_profile_field" json:"field"`
	Data   datatypes.JSON `json:"data"`
}
