package services

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"go.uber.org/zap"

	iauth "github.com/charlesng35/authinvite/internal/auth"
	"github.com/charlesng35/authinvite/internal/models"
	"github.com/charlesng35/authinvite/pkg/crypto"
	apperrors "github.com/charlesng35/authinvite/pkg/errors"
	"github.com/charlesng35/authinvite/pkg/logger"
	"github.com/charlesng35/authinvite/pkg/metrics"
)

// LoginService authenticates local accounts and steers invited visitors
// from the login page to signup.
type LoginService struct {
	users     *UserService
	validator *InvitationValidator
	sessions  *iauth.SessionService
	cfg       PluginConfig
	log       *zap.Logger
}

// NewLoginService constructs a LoginService. sessions may be nil when only
// credential checks are needed.
func NewLoginService(users *UserService, validator *InvitationValidator, sessions *iauth.SessionService, cfg PluginConfig) (*LoginService, error) {
	if users == nil {
		return nil, errors.New("login service: user service is required")
	}
	if validator == nil {
		return nil, errors.New("login service: validator is required")
	}
	return &LoginService{
		users:     users,
		validator: validator,
		sessions:  sessions,
		cfg:       cfg,
		log:       logger.WithModule("login"),
	}, nil
}

// Authenticate checks username and password within the local realm and
// records the access on success.
func (s *LoginService) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	ctx = ensureContext(ctx)
	username = strings.TrimSpace(username)

	user, err := s.users.FindByUsername(ctx, username)
	switch {
	case errors.Is(err, ErrUserNotFound):
		return nil, s.failedLogin(username)
	case err != nil:
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, err
	}

	if !crypto.VerifyPassword(user.Password, password) {
		return nil, s.failedLogin(username)
	}

	if err := s.users.TouchLastAccess(ctx, user.ID); err != nil {
		s.log.Warn("failed to record last access", zap.Uint("user_id", user.ID), zap.Error(err))
	}
	metrics.AuthAttempts.WithLabelValues("success").Inc()
	return user, nil
}

// failedLogin explains a failed attempt with an email address that may not
// register here when configured to do so.
func (s *LoginService) failedLogin(username string) error {
	if s.cfg.ProhibitedEmailLoginError && strings.Contains(username, "@") && !s.validator.EmailAllowed(username) {
		metrics.AuthAttempts.WithLabelValues("prohibited").Inc()
		return ErrLoginProhibitedByEmail
	}
	metrics.AuthAttempts.WithLabelValues("failure").Inc()
	return apperrors.ErrInvalidCredentials
}

// Login authenticates and opens a session.
func (s *LoginService) Login(ctx context.Context, username, password string, meta iauth.SessionMetadata) (*models.User, iauth.TokenPair, error) {
	user, err := s.Authenticate(ctx, username, password)
	if err != nil {
		return nil, iauth.TokenPair{}, err
	}
	if s.sessions == nil {
		return nil, iauth.TokenPair{}, errors.New("login service: sessions are not configured")
	}
	pair, _, err := s.sessions.CreateSession(ctx, user, meta)
	if err != nil {
		return nil, iauth.TokenPair{}, err
	}
	return user, pair, nil
}

// PreLoginRedirect decides where a visitor about to see the login page should
// go instead. An empty result means: show the login page. A pending token
// that is no longer valid yields an INVALID_INVITE *SignupError.
func (s *LoginService) PreLoginRedirect(ctx context.Context, wantsURL string) (string, error) {
	token := NewTokenResolver(s.cfg).Resolve(wantsURL)
	if token == nil {
		return "", nil
	}

	result, err := s.validator.Validate(ctx, *token)
	if err != nil {
		return "", err
	}
	switch result.Code {
	case "":
	case CodeNoInvite, CodeInvalidInvite:
		return "", &SignupError{Code: CodeInvalidInvite}
	default:
		// existing or prohibited accounts log in normally
		return "", nil
	}

	if !s.cfg.RedirectToSignup {
		return "", nil
	}
	return s.cfg.Site.URL(SignupPath + "?" + url.Values{"invitationtoken": {*token}}.Encode()), nil
}
