package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/authinvite/internal/models"
)

// EnrolInvitationEnabledSetting marks the invitation enrolment subsystem as active.
const EnrolInvitationEnabledSetting = "enrol.invitation.enabled"

// GetSystemSetting retrieves a system setting by key. Returns an empty string when not found.
func GetSystemSetting(ctx context.Context, db *gorm.DB, key string) (string, error) {
	if db == nil {
		return "", fmt.Errorf("system settings: db is nil")
	}

	var setting models.SystemSetting
	err := db.WithContext(ctx).Take(&setting, "key = ?", key).Error
	if err == nil {
		return setting.Value, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if strings.Contains(err.Error(), "no such table") {
		return "", nil
	}
	return "", fmt.Errorf("system settings: get %q: %w", key, err)
}

// UpsertSystemSetting stores or updates a system setting value.
func UpsertSystemSetting(ctx context.Context, db *gorm.DB, key, value string) error {
	if db == nil {
		return fmt.Errorf("system settings: db is nil")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("system settings: key is required")
	}

	record := models.SystemSetting{
		Key:   key,
		Value: value,
	}

	if err := db.WithContext(ctx).
		Where("key = ?", key).
		Assign(map[string]any{"value": value}).
		FirstOrCreate(&record).Error; err != nil {
		return fmt.Errorf("system settings: upsert %q: %w", key, err)
	}

	return nil
}

// EnsureSystemSetting stores value only when key has no value yet.
func EnsureSystemSetting(ctx context.Context, db *gorm.DB, key, value string) error {
	current, err := GetSystemSetting(ctx, db, key)
	if err != nil {
		return err
	}
	if current != "" {
		return nil
	}
	return UpsertSystemSetting(ctx, db, key, value)
}

// SystemSettingEnabled reports whether key holds a truthy flag ("1", "true", "yes", "on").
func SystemSettingEnabled(ctx context.Context, db *gorm.DB, key string) (bool, error) {
	value, err := GetSystemSetting(ctx, db, key)
	if err != nil {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true, nil
	default:
		return false, nil
	}
}
