package models

import "gorm.io/datatypes"

// Lifecycle event kinds.
const (
	EventUserCreated        = "user_created"
	EventUserDeleted        = "user_deleted"
	EventInvitationConsumed = "invitation_consumed"
)

// LifecycleEvent records an account lifecycle transition.
type LifecycleEvent struct {
	BaseModel

	Kind    string            `gorm:"size:60;not null;index" json:"kind"`
	UserID  *uint             `gorm:"index" json:"user_id"`
	Actor   string            `gorm:"size:100" json:"actor"`
	Payload datatypes.JSONMap `json:"payload"`
}
