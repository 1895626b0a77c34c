package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	iauth "github.com/charlesng35/authinvite/internal/auth"
	"github.com/charlesng35/authinvite/internal/database/testutil"
	"github.com/charlesng35/authinvite/internal/models"
	"github.com/charlesng35/authinvite/pkg/i18n"
	"github.com/charlesng35/authinvite/pkg/mail"
)

// testNow is the fixed instant every service test runs at.
var testNow = time.Unix(1765289895, 0)

func fixedClock() time.Time { return testNow }

type recordingMailer struct {
	mu       sync.Mutex
	messages []mail.Message
	err      error
}

func (m *recordingMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, msg)
	return nil
}

func (m *recordingMailer) sent() []mail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mail.Message(nil), m.messages...)
}

func testPluginConfig() PluginConfig {
	cfg := DefaultPluginConfig()
	cfg.SendWelcomeEmail = true
	cfg.Site = SiteConfig{
		FullName:        "PHPUnit test site",
		ShortName:       "phpunit",
		WWWRoot:         "https://www.example.com/moodle",
		DefaultTimezone: mustLocation("Australia/Perth"),
		DefaultLang:     "en",
		Signoff:         "Admin User",
		NoReplyAddress:  "noreply@example.com",
	}
	return cfg
}

func mustLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

type serviceStack struct {
	db          *gorm.DB
	cfg         PluginConfig
	events      *EventService
	prefs       *UserPreferencesService
	users       *UserService
	invitations *InvitationStore
	validator   *InvitationValidator
	roles       *RoleAssigner
	mailer      *recordingMailer
	accounts    *AccountMailer
	sessions    *iauth.SessionService
	signup      *SignupService
}

func newServiceStack(t *testing.T, cfg PluginConfig) *serviceStack {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	return newServiceStackWithDB(t, db, cfg)
}

func newServiceStackWithDB(t *testing.T, db *gorm.DB, cfg PluginConfig) *serviceStack {
	t.Helper()

	s := &serviceStack{db: db, cfg: cfg, mailer: &recordingMailer{}}
	var err error

	s.events, err = NewEventService(db)
	require.NoError(t, err)
	s.prefs, err = NewUserPreferencesService(db)
	require.NoError(t, err)
	s.users, err = NewUserService(db, s.events, s.prefs, WithUserClock(fixedClock))
	require.NoError(t, err)
	s.invitations, err = NewInvitationStore(db)
	require.NoError(t, err)
	s.validator, err = NewInvitationValidator(s.invitations, s.users, cfg, WithValidatorClock(fixedClock))
	require.NoError(t, err)
	s.roles, err = NewRoleAssigner(db)
	require.NoError(t, err)

	catalog, err := i18n.Load()
	require.NoError(t, err)
	s.accounts, err = NewAccountMailer(s.mailer, catalog, cfg.Site)
	require.NoError(t, err)

	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{Secret: "test-secret", Issuer: "authinvite", Clock: fixedClock})
	require.NoError(t, err)
	s.sessions, err = iauth.NewSessionService(db, jwtSvc, iauth.SessionConfig{ConcurrentLimit: 1, Clock: fixedClock})
	require.NoError(t, err)

	usernames, err := NewUsernameGenerator(s.users, cfg.UsernamePrefix)
	require.NoError(t, err)

	s.signup, err = NewSignupService(db, cfg, SignupDependencies{
		Validator:   s.validator,
		Invitations: s.invitations,
		Users:       s.users,
		Roles:       s.roles,
		Usernames:   usernames,
		Events:      s.events,
		Mailer:      s.accounts,
		Sessions:    s.sessions,
	}, WithSignupClock(fixedClock))
	require.NoError(t, err)

	return s
}

type invitationOption func(*models.Invitation)

func withInvitationUser(id uint) invitationOption {
	return func(inv *models.Invitation) { inv.UserID = &id }
}

func withInvitationUsed() invitationOption {
	return func(inv *models.Invitation) { inv.TokenUsed = true }
}

func withInvitationExpiry(ts int64) invitationOption {
	return func(inv *models.Invitation) { inv.TimeExpiration = ts }
}

func createInvitation(t *testing.T, db *gorm.DB, token, email string, opts ...invitationOption) *models.Invitation {
	t.Helper()

	inv := &models.Invitation{
		CourseID:       2,
		Token:          token,
		Email:          email,
		TimeExpiration: testNow.Add(14 * 24 * time.Hour).Unix(),
	}
	for _, opt := range opts {
		opt(inv)
	}
	require.NoError(t, db.Create(inv).Error)
	return inv
}

func createUser(t *testing.T, db *gorm.DB, user models.User) *models.User {
	t.Helper()

	if user.Password == "" {
		user.Password = "not-a-hash"
	}
	if user.Auth == "" {
		user.Auth = "manual"
	}
	if user.MnetHostID == 0 {
		user.MnetHostID = DefaultRealm
	}
	require.NoError(t, db.Create(&user).Error)
	return &user
}
