package models

import "time"

// SystemContext is the site-wide scope for role assignments.
const SystemContext = "system"

type Role struct {
	ID          uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	ShortName   string `gorm:"size:100;uniqueIndex;not null" json:"short_name"`
	Name        string `gorm:"size:255" json:"name"`
	Description string `json:"description"`
}

// RoleAssignment grants a role to a user within a context.
type RoleAssignment struct {
	ID        uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	RoleID    uint   `gorm:"not null;uniqueIndex:idx_role_assignment" json:"role_id"`
	UserID    uint   `gorm:"not null;uniqueIndex:idx_role_assignment;index" json:"user_id"`
	Context   string `gorm:"size:40;not null;uniqueIndex:idx_role_assignment" json:"context"`
	Component string `gorm:"size:100" json:"component"`

	Role *Role `gorm:"constraint:OnDelete:CASCADE" json:"role,omitempty"`
	User *User `gorm:"constraint:OnDelete:CASCADE" json:"-"`

	CreatedAt time.Time `json:"created_at"`
}
