package database

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/authinvite/internal/models"
)

func TestOpenSQLiteMemory(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Exec("SELECT 1").Error)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "oracle"})
	require.ErrorContains(t, err, `unsupported database driver "oracle"`)
}

func TestOpenPostgresRequiresCredentials(t *testing.T) {
	_, err := Open(Config{Driver: "postgresql"})
	require.ErrorContains(t, err, "requires user and database name")
}

func TestAutoMigrateAndSeedData(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, AutoMigrateAndSeed(db))
	// seeding twice must not duplicate rows
	require.NoError(t, AutoMigrateAndSeed(db))

	var roles []models.Role
	require.NoError(t, db.Order("id").Find(&roles).Error)
	require.Len(t, roles, 7)
	require.Equal(t, "student", roles[4].ShortName)
	require.Equal(t, uint(5), roles[4].ID)

	value, err := GetSystemSetting(t.Context(), db, EnrolInvitationEnabledSetting)
	require.NoError(t, err)
	require.Equal(t, "1", value)
}

func TestSeedKeepsDisabledEnrolment(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, AutoMigrate(db))
	require.NoError(t, UpsertSystemSetting(t.Context(), db, EnrolInvitationEnabledSetting, "0"))

	require.NoError(t, SeedData(db))

	enabled, err := SystemSettingEnabled(t.Context(), db, EnrolInvitationEnabledSetting)
	require.NoError(t, err)
	require.False(t, enabled)
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := Open(Config{
		Driver: "sqlite",
		DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", uuid.NewString()),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return db
}
