package api_test

import (
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/authinvite/internal/api"
	"github.com/charlesng35/authinvite/internal/app"
	"github.com/charlesng35/authinvite/internal/handlers/testutil"
)

func TestRouterPublicAndProtectedRoutes(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	require.NotEmpty(t, w.Header().Get("Strict-Transport-Security"))

	for _, path := range []string{
		api.PreSignupPath,
		"/auth/invitation/signup.php?invitationtoken=missing",
		"/login/index.php",
	} {
		w = env.Request(http.MethodGet, path, nil, "")
		require.NotEqual(t, http.StatusUnauthorized, w.Code, path)
		require.NotEqual(t, http.StatusNotFound, w.Code, path)
	}

	for _, path := range []string{
		"/auth/invitation/me",
		"/auth/invitation/postsignup.php?invitationtoken=abc",
	} {
		w = env.Request(http.MethodGet, path, nil, "")
		require.Equal(t, http.StatusUnauthorized, w.Code, path)
	}

	w = env.Request(http.MethodPost, "/auth/invitation/logout", nil, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.Request(http.MethodGet, "/does/not/exist", nil, "")
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, "NOT_FOUND", testutil.DecodeResponse(t, w).Error.Code)
}

func TestRouterMetricsEndpoint(t *testing.T) {
	env := testutil.NewEnv(t)

	// generate one observation first
	env.Request(http.MethodGet, api.PreSignupPath, nil, "")

	w := env.Request(http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	require.True(t, strings.Contains(body, "authinvite_api_latency_seconds"), "metrics output missing latency histogram")
}

func TestRouterHealthEndpoints(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodGet, "/health/ready", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Contains(t, w.Body.String(), `"component":"database"`)

	w = env.Request(http.MethodGet, api.HealthMaintenancePath, nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	env.Jobs.Record("inactive_users", errors.New("smtp unreachable"), time.Second)
	w = env.Request(http.MethodGet, api.HealthMaintenancePath, nil, "")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Contains(t, w.Body.String(), "smtp unreachable")

	// job failures do not affect readiness
	w = env.Request(http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
}

func TestNewRouterRequiresDependencies(t *testing.T) {
	_, err := api.NewRouter(nil, api.Services{})
	require.Error(t, err)

	_, err = api.NewRouter(&app.Config{}, api.Services{})
	require.ErrorContains(t, err, "database")
}
