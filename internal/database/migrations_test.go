package database

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/authinvite/internal/models"
)

func TestAutoMigrateCreatesTables(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, AutoMigrate(db))

	migrator := db.Migrator()
	tables := []interface{}{
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
	}

	for _, table := range tables {
		require.True(t, migrator.HasTable(table), "expected table for %T to exist", table)
	}
}

func TestRoleAssignmentIsUniquePerContext(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, AutoMigrateAndSeed(db))

	user := models.User{Username: "alice", Email: "alice@example.com", Password: "x"}
	require.NoError(t, db.Create(&user).Error)

	first := models.RoleAssignment{RoleID: 5, UserID: user.ID, Context: models.SystemContext}
	require.NoError(t, db.Create(&first).Error)

	dup := models.RoleAssignment{RoleID: 5, UserID: user.ID, Context: models.SystemContext}
	require.Error(t, db.Create(&dup).Error)
}

func TestAutoMigrateBackfillsEmailLower(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, AutoMigrate(db))

	user := models.User{Username: "anne", Email: "ÄNNE@Example.com", Password: "x"}
	require.NoError(t, db.Create(&user).Error)
	require.NoError(t, db.Model(&models.User{}).Where("id = ?", user.ID).UpdateColumn("email_lower", "").Error)

	require.NoError(t, AutoMigrate(db))

	var stored models.User
	require.NoError(t, db.First(&stored, user.ID).Error)
	require.Equal(t, "änne@example.com", stored.EmailLower)
}
