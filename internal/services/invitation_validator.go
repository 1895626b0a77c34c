package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charlesng35/authinvite/internal/models"
	"github.com/charlesng35/authinvite/pkg/emailpattern"
	"github.com/charlesng35/authinvite/pkg/metrics"
)

// AccountLookup answers whether a local account already uses an email address.
type AccountLookup interface {
	EmailExists(ctx context.Context, email string) (bool, error)
}

// ValidationResult is the outcome of an invitation check: either an
// invitation or the reason it cannot be used.
type ValidationResult struct {
	Invitation *models.Invitation
	Code       SignupErrorCode
}

// OK reports whether the invitation may be used for signup.
func (r ValidationResult) OK() bool {
	return r.Code == "" && r.Invitation != nil
}

// Err returns the rejection as a *SignupError, nil on success.
func (r ValidationResult) Err() error {
	if r.Code == "" {
		return nil
	}
	return &SignupError{Code: r.Code}
}

// ValidatorOption customises InvitationValidator behaviour.
type ValidatorOption func(*InvitationValidator)

// WithValidatorClock injects a custom clock primarily for testing.
func WithValidatorClock(clock func() time.Time) ValidatorOption {
	return func(v *InvitationValidator) {
		if clock != nil {
			v.now = clock
		}
	}
}

// InvitationValidator decides whether an invitation token permits signup.
// It never mutates invitations or accounts and may be called any number of times.
type InvitationValidator struct {
	invitations InvitationRepository
	accounts    AccountLookup
	policy      emailpattern.Policy
	now         func() time.Time
}

// NewInvitationValidator constructs an InvitationValidator for cfg's email policy.
func NewInvitationValidator(invitations InvitationRepository, accounts AccountLookup, cfg PluginConfig, opts ...ValidatorOption) (*InvitationValidator, error) {
	if invitations == nil {
		return nil, errors.New("invitation validator: invitation repository is required")
	}
	if accounts == nil {
		return nil, errors.New("invitation validator: account lookup is required")
	}
	v := &InvitationValidator{
		invitations: invitations,
		accounts:    accounts,
		policy:      cfg.EmailPolicy(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Validate runs the checks in a fixed order and stops at the first failure:
// missing token, unknown/expired/used invitation, invitation already linked to
// an account, prohibited email, existing account with the email.
func (v *InvitationValidator) Validate(ctx context.Context, token string) (ValidationResult, error) {
	result, err := v.validate(ensureContext(ctx), token)
	if err != nil {
		metrics.InvitationValidations.WithLabelValues("error").Inc()
		return ValidationResult{}, err
	}
	label := "ok"
	if result.Code != "" {
		label = string(result.Code)
	}
	metrics.InvitationValidations.WithLabelValues(label).Inc()
	return result, nil
}

func (v *InvitationValidator) validate(ctx context.Context, token string) (ValidationResult, error) {
	if token == "" {
		return ValidationResult{Code: CodeNoInvite}, nil
	}

	invitation, err := v.invitations.FindValid(ctx, token, v.now())
	if err != nil {
		return ValidationResult{}, err
	}
	if invitation == nil {
		return ValidationResult{Code: CodeInvalidInvite}, nil
	}
	if invitation.UserID != nil {
		return ValidationResult{Invitation: invitation, Code: CodeAccountExists}, nil
	}
	if !v.policy.Allows(invitation.Email) {
		return ValidationResult{Invitation: invitation, Code: CodeProhibitedByEmail}, nil
	}

	exists, err := v.accounts.EmailExists(ctx, invitation.Email)
	if err != nil {
		return ValidationResult{}, fmt.Errorf("invitation validator: %w", err)
	}
	if exists {
		return ValidationResult{Invitation: invitation, Code: CodeAccountExists}, nil
	}
	return ValidationResult{Invitation: invitation}, nil
}

// EmailAllowed reports whether self-registration is permitted for email.
func (v *InvitationValidator) EmailAllowed(email string) bool {
	return v.policy.Allows(email)
}
