package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/authinvite/internal/models"
)

func TestUserPreferencesServiceSetAndGet(t *testing.T) {
	stack := newServiceStack(t, testPluginConfig())
	ctx := context.Background()
	user := createUser(t, stack.db, models.User{Username: "alice", Email: "alice@example.com"})

	_, ok, err := stack.prefs.Get(ctx, user.ID, "theme")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, stack.prefs.Set(ctx, user.ID, "theme", "dark"))
	require.NoError(t, stack.prefs.Set(ctx, user.ID, "theme", "light"))

	value, ok, err := stack.prefs.Get(ctx, user.ID, "theme")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "light", value)

	var count int64
	require.NoError(t, stack.db.Model(&models.UserPreference{}).Where("user_id = ?", user.ID).Count(&count).Error)
	require.EqualValues(t, 1, count)

	require.Error(t, stack.prefs.Set(ctx, 0, "theme", "x"))
	_, _, err = stack.prefs.Get(ctx, user.ID, " ")
	require.Error(t, err)

	require.NoError(t, stack.prefs.DeleteAll(ctx, nil, user.ID))
	_, ok, err = stack.prefs.Get(ctx, user.ID, "theme")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPreferenceDeletionSchedule(t *testing.T) {
	stack := newServiceStack(t, testPluginConfig())
	ctx := context.Background()
	user := createUser(t, stack.db, models.User{Username: "bob", Email: "bob@example.com"})

	schedule, err := NewPreferenceDeletionSchedule(stack.prefs)
	require.NoError(t, err)

	ts, err := schedule.Get(ctx, user.ID)
	require.NoError(t, err)
	require.Nil(t, ts)

	require.NoError(t, schedule.Set(ctx, user.ID, 1765289895))
	ts, err = schedule.Get(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, ts)
	require.EqualValues(t, 1765289895, *ts)

	require.NoError(t, stack.prefs.Set(ctx, user.ID, AccountDeletionTimePreference, "garbage"))
	ts, err = schedule.Get(ctx, user.ID)
	require.NoError(t, err)
	require.Nil(t, ts)

	_, err = NewPreferenceDeletionSchedule(nil)
	require.Error(t, err)
}
