package handlers_test

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/authinvite/internal/handlers/testutil"
	"github.com/charlesng35/authinvite/internal/models"
	"github.com/charlesng35/authinvite/internal/services"
	"github.com/charlesng35/authinvite/pkg/crypto"
)

func TestLoginFlow(t *testing.T) {
	env := testutil.NewEnv(t)
	user := env.CreateUser("alice", "alice@example.com", "Secret123!")

	login := env.Login("alice", "Secret123!")
	require.Equal(t, user.ID, login.User.ID)

	var stored models.User
	require.NoError(t, env.DB.First(&stored, user.ID).Error)
	require.NotZero(t, stored.LastAccess)

	w := env.Request(http.MethodGet, "/auth/invitation/me", nil, login.Tokens.AccessToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var me models.User
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &me)
	require.Equal(t, "alice", me.Username)
	require.NotContains(t, w.Body.String(), stored.Password)

	w = env.Request(http.MethodPost, "/auth/invitation/refresh", map[string]string{
		"refresh_token": login.Tokens.RefreshToken,
	}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var refreshed testutil.Tokens
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &refreshed)
	require.NotEmpty(t, refreshed.AccessToken)
	require.NotEqual(t, login.Tokens.RefreshToken, refreshed.RefreshToken)

	w = env.Request(http.MethodPost, "/auth/invitation/logout", nil, refreshed.AccessToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.Request(http.MethodPost, "/auth/invitation/refresh", map[string]string{
		"refresh_token": refreshed.RefreshToken,
	}, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLoginFailures(t *testing.T) {
	env := testutil.NewEnv(t)
	env.CreateUser("alice", "alice@example.com", "Secret123!")

	w := env.Request(http.MethodPost, services.LoginPath, map[string]string{
		"username": "alice",
		"password": "wrong",
	}, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "INVALID_CREDENTIALS", testutil.DecodeResponse(t, w).Error.Code)

	w = env.Request(http.MethodPost, services.LoginPath, map[string]string{"username": "alice"}, "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, testutil.DecodeResponse(t, w).Error.Message, "password is required")
}

func TestLoginProhibitedEmailMessage(t *testing.T) {
	env := testutil.NewEnv(t, testutil.WithPlugin(func(cfg *services.PluginConfig) {
		cfg.ProhibitedEmailPatterns = "*@blocked.example"
		cfg.ProhibitedEmailLoginError = true
	}))

	w := env.Request(http.MethodPost, services.LoginPath, map[string]string{
		"username": "someone@blocked.example",
		"password": "whatever",
	}, "", "Accept-Language", "de")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	resp := testutil.DecodeResponse(t, w)
	require.Equal(t, "auth.loginprohibitedbyemail", resp.Error.Code)
	require.Contains(t, resp.Error.Message, "Die Anmeldung ist nicht möglich")

	w = env.Request(http.MethodPost, services.LoginPath, map[string]string{
		"username": "someone@allowed.example",
		"password": "whatever",
	}, "")
	require.Equal(t, "INVALID_CREDENTIALS", testutil.DecodeResponse(t, w).Error.Code)
}

func TestPreLogin(t *testing.T) {
	enrol := "https://www.example.com/moodle/enrol/invitation/enrol.php?token="

	env := testutil.NewEnv(t, testutil.WithPlugin(func(cfg *services.PluginConfig) {
		cfg.RedirectToSignup = true
	}))
	env.CreateInvitation("asdf1234", "test@example.com")

	w := env.Request(http.MethodGet, services.LoginPath+"?wantsurl="+url.QueryEscape(enrol+"asdf1234"), nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, "https://www.example.com/moodle/auth/invitation/signup.php?invitationtoken=asdf1234",
		testutil.DecodeResponse(t, w).Redirect)

	w = env.Request(http.MethodGet, services.LoginPath+"?wantsurl="+url.QueryEscape(enrol+"expired1"), nil, "")
	require.Equal(t, http.StatusGone, w.Code)
	require.Equal(t, "auth.invalidinvite", testutil.DecodeResponse(t, w).Error.Code)

	w = env.Request(http.MethodGet, services.LoginPath+"?wantsurl="+url.QueryEscape(enrol+"asdf1234&reject=1"), nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	resp := testutil.DecodeResponse(t, w)
	require.Empty(t, resp.Redirect)
	require.JSONEq(t, `{"show_login":true}`, string(resp.Data))

	w = env.Request(http.MethodGet, services.LoginPath, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Empty(t, testutil.DecodeResponse(t, w).Redirect)
}

func TestChangePassword(t *testing.T) {
	env := testutil.NewEnv(t)
	user := env.CreateUser("alice", "alice@example.com", "Secret123!")
	login := env.Login("alice", "Secret123!")

	w := env.Request(http.MethodPost, "/auth/invitation/password", map[string]string{
		"current_password": "wrong",
		"new_password":     "Another123!",
	}, login.Tokens.AccessToken)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.Request(http.MethodPost, "/auth/invitation/password", map[string]string{
		"current_password": "Secret123!",
		"new_password":     "Another123!",
	}, login.Tokens.AccessToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var stored models.User
	require.NoError(t, env.DB.First(&stored, user.ID).Error)
	require.True(t, crypto.VerifyPassword(stored.Password, "Another123!"))

	var history int64
	require.NoError(t, env.DB.Model(&models.PasswordHistory{}).Where("user_id = ?", user.ID).Count(&history).Error)
	require.EqualValues(t, 1, history)
}

func TestMeForDeletedAccount(t *testing.T) {
	env := testutil.NewEnv(t)
	user := env.CreateUser("alice", "alice@example.com", "Secret123!")
	login := env.Login("alice", "Secret123!")

	require.NoError(t, env.DB.Model(&models.User{}).Where("id = ?", user.ID).Update("deleted", true).Error)

	w := env.Request(http.MethodGet, "/auth/invitation/me", nil, login.Tokens.AccessToken)
	require.Equal(t, http.StatusNotFound, w.Code)
}
