package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	iauth "github.com/charlesng35/authinvite/internal/auth"
	"github.com/charlesng35/authinvite/internal/models"
	"github.com/charlesng35/authinvite/pkg/logger"
	"github.com/charlesng35/authinvite/pkg/metrics"
	"github.com/charlesng35/authinvite/pkg/param"
)

// SignupInput is the registration data submitted with an invitation.
type SignupInput struct {
	InvitationToken string
	Username        string
	Password        string
	Email           string
	FirstName       string
	LastName        string
	City            string
	Country         string
	Lang            string
	Timezone        string
	// ProfileFields carries extended profile values keyed by field short name.
	ProfileFields map[string]any
}

// SignupOptions controls what happens after the account exists.
type SignupOptions struct {
	// Notify logs the new user in and computes where to send them.
	Notify bool
	// PreConfirm skips the confirmation page and redirects straight to enrolment.
	PreConfirm bool
	WantsURL   string
	Session    iauth.SessionMetadata
}

// SignupResult describes a completed signup.
type SignupResult struct {
	User        *models.User
	Invitation  *models.Invitation
	Tokens      *iauth.TokenPair
	RedirectURL string
}

// SignupDependencies wires the collaborators used by SignupService.
type SignupDependencies struct {
	Validator   *InvitationValidator
	Invitations InvitationRepository
	Users       *UserService
	Roles       *RoleAssigner
	Usernames   *UsernameGenerator
	Events      *EventService
	Mailer      *AccountMailer
	Sessions    *iauth.SessionService
}

// SignupOption customises SignupService behaviour.
type SignupOption func(*SignupService)

// WithSignupClock injects a custom clock primarily for testing.
func WithSignupClock(clock func() time.Time) SignupOption {
	return func(s *SignupService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// SignupService creates accounts for holders of a valid invitation.
type SignupService struct {
	db   *gorm.DB
	cfg  PluginConfig
	deps SignupDependencies
	now  func() time.Time
	log  *zap.Logger
}

// NewSignupService constructs a SignupService.
func NewSignupService(db *gorm.DB, cfg PluginConfig, deps SignupDependencies, opts ...SignupOption) (*SignupService, error) {
	if db == nil {
		return nil, errors.New("signup service: db is required")
	}
	switch {
	case deps.Validator == nil:
		return nil, errors.New("signup service: validator is required")
	case deps.Invitations == nil:
		return nil, errors.New("signup service: invitation repository is required")
	case deps.Users == nil:
		return nil, errors.New("signup service: user service is required")
	case deps.Roles == nil:
		return nil, errors.New("signup service: role assigner is required")
	}
	if cfg.GenerateUsername && deps.Usernames == nil {
		return nil, errors.New("signup service: username generator is required when usernames are generated")
	}

	svc := &SignupService{
		db:   db,
		cfg:  cfg,
		deps: deps,
		now:  time.Now,
		log:  logger.WithModule("signup"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// CompleteSignup re-validates the invitation and creates a confirmed account
// for it. Rejected invitations yield *SignupError; inconsistent input yields
// *ContractViolationError. Account, password history, profile data, roles and
// the invitation link are written in one transaction.
func (s *SignupService) CompleteSignup(ctx context.Context, input SignupInput, opts SignupOptions) (result *SignupResult, err error) {
	ctx = ensureContext(ctx)
	defer func() {
		outcome := "success"
		var signupErr *SignupError
		switch {
		case errors.As(err, &signupErr):
			outcome = "rejected"
		case err != nil:
			outcome = "error"
		}
		metrics.Signups.WithLabelValues(outcome).Inc()
	}()

	token := input.InvitationToken
	if token == "" {
		return nil, &ContractViolationError{Reason: ErrMissingInvitationToken}
	}

	validation, err := s.deps.Validator.Validate(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("signup service: validate invitation: %w", err)
	}
	invitation := validation.Invitation
	if invitation == nil {
		return nil, validation.Err()
	}
	if !strings.EqualFold(strings.TrimSpace(input.Email), invitation.Email) {
		return nil, &ContractViolationError{Reason: ErrEmailMismatch}
	}
	if !validation.OK() {
		return nil, validation.Err()
	}

	username := strings.ToLower(strings.TrimSpace(input.Username))
	if s.cfg.GenerateUsername {
		if username, err = s.deps.Usernames.Generate(ctx); err != nil {
			return nil, fmt.Errorf("signup service: generate username: %w", err)
		}
	}

	lang := strings.TrimSpace(input.Lang)
	if lang == "" {
		lang = s.cfg.Site.DefaultLang
	}

	now := s.now()
	var user *models.User
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		created, err := s.deps.Users.Create(ctx, tx, CreateUserInput{
			Auth:      models.AuthInvitation,
			Username:  username,
			Email:     invitation.Email,
			Password:  input.Password,
			Confirmed: true,
			FirstName: param.Text(input.FirstName),
			LastName:  param.Text(input.LastName),
			City:      param.Text(input.City),
			Country:   param.Alphanum(input.Country),
			Lang:      lang,
			Timezone:  input.Timezone,
		})
		if err != nil {
			return err
		}

		if err := s.deps.Users.RecordPasswordHistory(ctx, tx, created.ID, input.Password); err != nil {
			return err
		}
		if err := s.deps.Users.SaveProfileFields(ctx, tx, created.ID, input.ProfileFields); err != nil {
			return err
		}
		if err := s.deps.Roles.AssignAll(ctx, tx, s.cfg.RoleList(), created.ID); err != nil {
			return err
		}
		if err := s.deps.Invitations.LinkUser(ctx, tx, invitation, created.ID, now); err != nil {
			return err
		}

		user = created
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrInvitationConsumed) {
			return nil, &SignupError{Code: CodeAccountExists}
		}
		return nil, fmt.Errorf("signup service: create account: %w", err)
	}

	userID := user.ID
	recordEvent(s.deps.Events, ctx, EventEntry{
		Kind:   models.EventUserCreated,
		UserID: &userID,
		Actor:  user.Username,
		Payload: map[string]any{
			"auth":          user.Auth,
			"invitation_id": invitation.ID,
			"course_id":     invitation.CourseID,
		},
	})
	recordEvent(s.deps.Events, ctx, EventEntry{
		Kind:   models.EventInvitationConsumed,
		UserID: &userID,
		Payload: map[string]any{
			"invitation_id": invitation.ID,
		},
	})

	if s.cfg.SendWelcomeEmail && s.deps.Mailer != nil {
		if mailErr := s.deps.Mailer.SendWelcome(ctx, user); mailErr != nil {
			s.log.Warn("failed to send welcome email",
				zap.Uint("user_id", user.ID),
				zap.String("username", user.Username),
				zap.Error(mailErr),
			)
		}
	}

	result = &SignupResult{User: user, Invitation: invitation}
	if !opts.Notify {
		return result, nil
	}

	result.RedirectURL = s.redirectAfterSignup(invitation.Token, opts)
	if s.deps.Sessions != nil {
		tokens, _, sessErr := s.deps.Sessions.CreateSession(ctx, user, opts.Session)
		if sessErr != nil {
			// The account exists; send the user through the regular login.
			s.log.Warn("failed to log in new user",
				zap.Uint("user_id", user.ID),
				zap.String("username", user.Username),
				zap.Error(sessErr),
			)
			result.RedirectURL = s.cfg.Site.URL(LoginPath + "?" + url.Values{"wantsurl": {result.RedirectURL}}.Encode())
			return result, nil
		}
		result.Tokens = &tokens
	}
	return result, nil
}

func (s *SignupService) redirectAfterSignup(token string, opts SignupOptions) string {
	if wants, ok := s.cfg.Site.LocalURL(opts.WantsURL); ok {
		return wants
	}
	if opts.PreConfirm {
		return s.cfg.Site.URL(EnrolInvitationPath + "?" + url.Values{"token": {token}}.Encode())
	}
	return s.cfg.Site.URL(PostSignupPath + "?" + url.Values{"invitationtoken": {token}}.Encode())
}
