package services

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/charlesng35/authinvite/internal/models"
	"github.com/charlesng35/authinvite/pkg/crypto"
)

func TestUserServiceCreate(t *testing.T) {
	stack := newServiceStack(t, testPluginConfig())
	ctx := context.Background()

	user, err := stack.users.Create(ctx, nil, CreateUserInput{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "password123",
		Country:  "de",
	})
	require.NoError(t, err)
	require.NotZero(t, user.ID)
	require.Equal(t, "manual", user.Auth)
	require.Equal(t, DefaultRealm, user.MnetHostID)
	require.Equal(t, "DE", user.Country)
	require.True(t, crypto.VerifyPassword(user.Password, "password123"))

	_, err = stack.users.Create(ctx, nil, CreateUserInput{Username: "alice", Email: "other@example.com", Password: "x"})
	require.ErrorIs(t, err, ErrUsernameTaken)

	_, err = stack.users.Create(ctx, nil, CreateUserInput{Username: "bob", Email: "", Password: "x"})
	require.Error(t, err)

	found, err := stack.users.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, user.ID, found.ID)

	_, err = stack.users.FindByUsername(ctx, "nobody")
	require.ErrorIs(t, err, ErrUserNotFound)

	_, err = stack.users.FindByID(ctx, 9999)
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserServiceEmailExists(t *testing.T) {
	stack := newServiceStack(t, testPluginConfig())
	ctx := context.Background()

	createUser(t, stack.db, models.User{Username: "max", Email: "Max.Mustermann@Example.com"})
	createUser(t, stack.db, models.User{Username: "remote", Email: "remote@example.com", MnetHostID: 2})
	createUser(t, stack.db, models.User{Username: "gone", Email: "gone@example.com", Deleted: true})

	exists, err := stack.users.EmailExists(ctx, "max.mustermann@example.com")
	require.NoError(t, err)
	require.True(t, exists)

	exists, err = stack.users.EmailExists(ctx, "mäx.mustermann@example.com")
	require.NoError(t, err)
	require.False(t, exists)

	exists, err = stack.users.EmailExists(ctx, "remote@example.com")
	require.NoError(t, err)
	require.False(t, exists)

	exists, err = stack.users.EmailExists(ctx, "gone@example.com")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestUserServiceListInactive(t *testing.T) {
	stack := newServiceStack(t, testPluginConfig())
	ctx := context.Background()
	cutoff := testNow.Unix() - 1000

	a := createUser(t, stack.db, models.User{Username: "a", Email: "a@example.com", Auth: models.AuthInvitation, LastAccess: cutoff - 10})
	createUser(t, stack.db, models.User{Username: "b", Email: "b@example.com", Auth: models.AuthInvitation, LastAccess: cutoff})
	createUser(t, stack.db, models.User{Username: "c", Email: "c@example.com", Auth: models.AuthInvitation, LastAccess: 0})
	createUser(t, stack.db, models.User{Username: "d", Email: "d@example.com", Auth: "manual", LastAccess: 1})
	createUser(t, stack.db, models.User{Username: "e", Email: "e@example.com", Auth: models.AuthInvitation, LastAccess: 1, Deleted: true})
	f := createUser(t, stack.db, models.User{Username: "f", Email: "f@example.com", Auth: models.AuthInvitation, LastAccess: 1})

	users, err := stack.users.ListInactive(ctx, models.AuthInvitation, cutoff)
	require.NoError(t, err)
	require.Len(t, users, 2)
	require.Equal(t, a.ID, users[0].ID)
	require.Equal(t, f.ID, users[1].ID)
}

func TestUserServiceDelete(t *testing.T) {
	stack := newServiceStack(t, testPluginConfig())
	ctx := context.Background()

	user := createUser(t, stack.db, models.User{Username: "doomed", Email: "doomed@example.com", Auth: models.AuthInvitation})
	require.NoError(t, stack.prefs.Set(ctx, user.ID, AccountDeletionTimePreference, "123"))
	require.NoError(t, stack.roles.Assign(ctx, nil, 5, user.ID, models.SystemContext))
	require.NoError(t, stack.users.SaveProfileFields(ctx, nil, user.ID, map[string]any{"department": "Physics"}))

	require.NoError(t, stack.users.Delete(ctx, user))

	var reloaded models.User
	require.NoError(t, stack.db.First(&reloaded, user.ID).Error)
	require.True(t, reloaded.Deleted)
	require.NotEqual(t, "doomed", reloaded.Username)
	require.NotEqual(t, "doomed@example.com", reloaded.Email)
	require.Empty(t, reloaded.Password)

	for _, model := range []any{&models.UserPreference{}, &models.RoleAssignment{}, &models.UserProfileData{}} {
		var count int64
		require.NoError(t, stack.db.Model(model).Where("user_id = ?", user.ID).Count(&count).Error)
		require.Zero(t, count)
	}

	taken, err := stack.users.UsernameExists(ctx, "doomed")
	require.NoError(t, err)
	require.False(t, taken)

	events, err := stack.events.List(ctx, EventFilters{Kind: models.EventUserDeleted})
	require.NoError(t, err)
	require.Len(t, events, 1)

	require.ErrorIs(t, stack.users.Delete(ctx, user), ErrUserNotFound)
}

func TestUserServiceUpdatePassword(t *testing.T) {
	stack := newServiceStack(t, testPluginConfig())
	ctx := context.Background()

	user, err := stack.users.Create(ctx, nil, CreateUserInput{Username: "carol", Email: "carol@example.com", Password: "first-pass"})
	require.NoError(t, err)

	require.NoError(t, stack.users.UpdatePassword(ctx, user.ID, "second-pass"))
	reloaded, err := stack.users.FindByID(ctx, user.ID)
	require.NoError(t, err)
	require.True(t, crypto.VerifyPassword(reloaded.Password, "second-pass"))

	var history []models.PasswordHistory
	require.NoError(t, stack.db.Where("user_id = ?", user.ID).Find(&history).Error)
	require.Len(t, history, 1)
	require.True(t, crypto.VerifyPassword(history[0].Hash, "second-pass"))

	require.Error(t, stack.users.UpdatePassword(ctx, user.ID, " "))
	require.ErrorIs(t, stack.users.UpdatePassword(ctx, 9999, "whatever"), ErrUserNotFound)
}

func TestUserServiceTouchLastAccess(t *testing.T) {
	stack := newServiceStack(t, testPluginConfig())
	ctx := context.Background()
	user := createUser(t, stack.db, models.User{Username: "dave", Email: "dave@example.com"})

	require.NoError(t, stack.users.TouchLastAccess(ctx, user.ID))
	reloaded, err := stack.users.FindByID(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, testNow.Unix(), reloaded.LastAccess)
}

func TestUserServiceListInactiveQueryFailure(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{Conn: sqlDB, SkipInitializeWithVersion: true}), &gorm.Config{})
	require.NoError(t, err)

	mock.ExpectQuery("SELECT \\* FROM `users`").WillReturnError(errors.New("connection reset"))

	svc, err := NewUserService(db, nil, nil)
	require.NoError(t, err)

	_, err = svc.ListInactive(context.Background(), models.AuthInvitation, 100)
	require.ErrorContains(t, err, "connection reset")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewUserServiceRequiresDB(t *testing.T) {
	_, err := NewUserService(nil, nil, nil)
	require.Error(t, err)
}
