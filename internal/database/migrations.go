package database

import (
	"context"

	"gorm.io/gorm"

	"github.com/charlesng35/authinvite/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Invitation{},
		&models.Role{},
		&models.RoleAssignment{},
		&models.UserPreference{},
		&models.PasswordHistory{},
		&models.UserProfileData{},
		&models.LifecycleEvent{},
		&models.Session{},
		&models.SystemSetting{},
		&models.RateLimitCounter{},
	); err != nil {
		return err
	}
	return backfillEmailLower(db)
}

// SeedData populates the archetype roles and enables the invitation enrolment
// subsystem on fresh installs.
func SeedData(db *gorm.DB) error {
	roles := []models.Role{
		{ShortName: "manager", Name: "Manager"},
		{ShortName: "coursecreator", Name: "Course creator"},
		{ShortName: "editingteacher", Name: "Teacher"},
		{ShortName: "teacher", Name: "Non-editing teacher"},
		{ShortName: "student", Name: "Student"},
		{ShortName: "guest", Name: "Guest"},
		{ShortName: "user", Name: "Authenticated user"},
	}
	if err := seedRoles(db, roles); err != nil {
		return err
	}

	return EnsureSystemSetting(context.Background(), db, EnrolInvitationEnabledSetting, "1")
}
