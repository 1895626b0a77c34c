package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/authinvite/internal/api"
	"github.com/charlesng35/authinvite/internal/app"
	iauth "github.com/charlesng35/authinvite/internal/auth"
	sharedtestutil "github.com/charlesng35/authinvite/internal/database/testutil"
	"github.com/charlesng35/authinvite/internal/middleware"
	"github.com/charlesng35/authinvite/internal/models"
	"github.com/charlesng35/authinvite/internal/monitoring"
	"github.com/charlesng35/authinvite/internal/services"
	"github.com/charlesng35/authinvite/pkg/crypto"
	"github.com/charlesng35/authinvite/pkg/i18n"
	"github.com/charlesng35/authinvite/pkg/mail"
	"github.com/charlesng35/authinvite/pkg/response"
)

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T      *testing.T
	DB     *gorm.DB
	Router *gin.Engine
	JWT    *iauth.JWTService
	Plugin services.PluginConfig
	Mailer *RecordingMailer
	Jobs   *monitoring.JobTracker
}

// Option customises the environment.
type Option func(*envConfig)

type envConfig struct {
	plugin    services.PluginConfig
	rateLimit int
}

// WithPlugin adjusts the plugin settings before the services are built.
func WithPlugin(fn func(*services.PluginConfig)) Option {
	return func(c *envConfig) {
		fn(&c.plugin)
	}
}

// WithRateLimit throttles login and signup to n requests per minute.
func WithRateLimit(n int) Option {
	return func(c *envConfig) {
		c.rateLimit = n
	}
}

// RecordingMailer keeps outgoing messages in memory.
type RecordingMailer struct {
	mu       sync.Mutex
	messages []mail.Message
}

func (m *RecordingMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

// Messages returns a copy of the sent messages.
func (m *RecordingMailer) Messages() []mail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mail.Message(nil), m.messages...)
}

// DefaultPlugin is the plugin configuration every environment starts from.
func DefaultPlugin() services.PluginConfig {
	cfg := services.DefaultPluginConfig()
	cfg.Site = services.SiteConfig{
		FullName:        "Invitation test site",
		ShortName:       "invtest",
		WWWRoot:         "https://www.example.com/moodle",
		DefaultTimezone: time.UTC,
		DefaultLang:     "en",
		Signoff:         "Admin User",
		NoReplyAddress:  "noreply@example.com",
	}
	return cfg
}

// NewEnv provisions a fresh handler test environment with migrations and seed data applied.
func NewEnv(t *testing.T, opts ...Option) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	ec := envConfig{plugin: DefaultPlugin()}
	for _, opt := range opts {
		opt(&ec)
	}
	plugin := ec.plugin

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithSeedData())

	cfg := &app.Config{
		Server: app.ServerConfig{
			RateLimit: app.RateLimitConfig{Requests: ec.rateLimit, Window: time.Minute},
		},
		Auth: app.AuthConfig{
			JWT: app.JWTSettings{
				Secret: "test-suite-super-secret-key-32-bytes!!",
				Issuer: "test-suite",
				TTL:    time.Hour,
			},
			Session: app.SessionSettings{
				RefreshTTL:    24 * time.Hour,
				RefreshLength: 48,
			},
		},
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
			Health:     app.HealthConfig{Enabled: true},
		},
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	require.NoError(t, err)
	sessions, err := iauth.NewSessionService(db, jwtSvc, cfg.Auth.SessionServiceConfig())
	require.NoError(t, err)

	events, err := services.NewEventService(db)
	require.NoError(t, err)
	prefs, err := services.NewUserPreferencesService(db)
	require.NoError(t, err)
	users, err := services.NewUserService(db, events, prefs)
	require.NoError(t, err)
	invitations, err := services.NewInvitationStore(db)
	require.NoError(t, err)
	validator, err := services.NewInvitationValidator(invitations, users, plugin)
	require.NoError(t, err)
	roles, err := services.NewRoleAssigner(db)
	require.NoError(t, err)
	usernames, err := services.NewUsernameGenerator(users, plugin.UsernamePrefix)
	require.NoError(t, err)

	catalog, err := i18n.Load()
	require.NoError(t, err)
	mailer := &RecordingMailer{}
	accounts, err := services.NewAccountMailer(mailer, catalog, plugin.Site)
	require.NoError(t, err)

	signup, err := services.NewSignupService(db, plugin, services.SignupDependencies{
		Validator:   validator,
		Invitations: invitations,
		Users:       users,
		Roles:       roles,
		Usernames:   usernames,
		Events:      events,
		Mailer:      accounts,
		Sessions:    sessions,
	})
	require.NoError(t, err)
	forms, err := services.NewSignupFormService(validator, plugin)
	require.NoError(t, err)
	logins, err := services.NewLoginService(users, validator, sessions, plugin)
	require.NoError(t, err)

	store := middleware.NewMemoryRateStore(0)
	t.Cleanup(store.Close)
	jobs := monitoring.NewJobTracker()

	router, err := api.NewRouter(cfg, api.Services{
		DB:        db,
		JWT:       jwtSvc,
		Sessions:  sessions,
		Users:     users,
		Logins:    logins,
		Forms:     forms,
		Signup:    signup,
		Catalog:   catalog,
		Plugin:    plugin,
		RateStore: store,
		Jobs:      jobs,
	})
	require.NoError(t, err)

	return &Env{
		T:      t,
		DB:     db,
		Router: router,
		JWT:    jwtSvc,
		Plugin: plugin,
		Mailer: mailer,
		Jobs:   jobs,
	}
}

// CreateInvitation stores an unused invitation valid for two weeks.
func (e *Env) CreateInvitation(token, email string) *models.Invitation {
	e.T.Helper()

	inv := &models.Invitation{
		CourseID:       2,
		Token:          token,
		Email:          email,
		TimeExpiration: time.Now().Add(14 * 24 * time.Hour).Unix(),
	}
	require.NoError(e.T, e.DB.Create(inv).Error)
	return inv
}

// CreateUser inserts a confirmed local account with the given password.
func (e *Env) CreateUser(username, email, password string) *models.User {
	e.T.Helper()

	hashed, err := crypto.HashPassword(password)
	require.NoError(e.T, err)

	user := &models.User{
		Auth:       "manual",
		MnetHostID: services.DefaultRealm,
		Username:   username,
		Email:      email,
		Password:   hashed,
		Confirmed:  true,
		Lang:       "en",
		Timezone:   "99",
	}
	require.NoError(e.T, e.DB.Create(user).Error)
	return user
}

// Tokens mirrors the token pair in login and signup responses.
type Tokens struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// LoginResult bundles the JSON response of the login endpoint.
type LoginResult struct {
	Tokens Tokens      `json:"tokens"`
	User   models.User `json:"user"`
}

// Login authenticates through the API and returns the issued tokens.
func (e *Env) Login(username, password string) LoginResult {
	e.T.Helper()

	w := e.Request(http.MethodPost, services.LoginPath, map[string]string{
		"username": username,
		"password": password,
	}, "")
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())

	resp := DecodeResponse(e.T, w)
	require.True(e.T, resp.Success, w.Body.String())

	var result LoginResult
	DecodeInto(e.T, resp.Data, &result)
	require.NotEmpty(e.T, result.Tokens.AccessToken)
	require.NotEmpty(e.T, result.Tokens.RefreshToken)
	return result
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success  bool                `json:"success"`
	Data     json.RawMessage     `json:"data"`
	Error    *response.ErrorInfo `json:"error"`
	Redirect string              `json:"redirect"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router, applying JSON encoding and auth headers automatically.
func (e *Env) Request(method, path string, body any, token string, headers ...string) *httptest.ResponseRecorder {
	e.T.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(e.T, json.NewEncoder(&buf).Encode(body))
	}

	req, err := http.NewRequest(method, path, &buf)
	require.NoError(e.T, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}
