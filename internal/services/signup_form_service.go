package services

import (
	"context"
	"errors"
)

// SignupFormField describes an optional profile field of the signup form.
type SignupFormField struct {
	Name     string `json:"name"`
	Enabled  bool   `json:"enabled"`
	Required bool   `json:"required"`
}

// SignupForm is the data needed to render the signup form for an invitation.
type SignupForm struct {
	InvitationToken string `json:"invitationtoken"`
	// Email is pinned to the invitation and not editable.
	Email           string            `json:"email"`
	UsernameEnabled bool              `json:"username_enabled"`
	ConfirmPassword bool              `json:"confirm_password"`
	Fields          []SignupFormField `json:"fields"`
	DefaultLang     string            `json:"default_lang"`
	LoginURL        string            `json:"login_url"`
}

// SignupFormService prepares signup forms.
type SignupFormService struct {
	validator *InvitationValidator
	cfg       PluginConfig
}

// NewSignupFormService constructs a SignupFormService.
func NewSignupFormService(validator *InvitationValidator, cfg PluginConfig) (*SignupFormService, error) {
	if validator == nil {
		return nil, errors.New("signup form service: validator is required")
	}
	return &SignupFormService{validator: validator, cfg: cfg}, nil
}

// Form validates token (falling back to the pending token in wantsURL) and
// returns the form definition. Rejections come back as *SignupError.
func (s *SignupFormService) Form(ctx context.Context, token, wantsURL string) (*SignupForm, error) {
	if token == "" {
		if pending := NewTokenResolver(s.cfg).Resolve(wantsURL); pending != nil {
			token = *pending
		}
	}
	if token == "" {
		return nil, &SignupError{Code: CodeInvalidInvite}
	}

	result, err := s.validator.Validate(ctx, token)
	if err != nil {
		return nil, err
	}
	if !result.OK() {
		return nil, result.Err()
	}

	return &SignupForm{
		InvitationToken: result.Invitation.Token,
		Email:           result.Invitation.Email,
		UsernameEnabled: !s.cfg.GenerateUsername,
		ConfirmPassword: s.cfg.ConfirmPasswordOnSignup,
		Fields: []SignupFormField{
			{Name: "firstname", Enabled: true, Required: true},
			{Name: "lastname", Enabled: true, Required: true},
			{Name: "city", Enabled: s.cfg.ShowCityFieldOnSignup},
			{Name: "country", Enabled: s.cfg.ShowCountryFieldOnSignup},
		},
		DefaultLang: s.cfg.Site.DefaultLang,
		LoginURL:    s.cfg.Site.URL(LoginPath),
	}, nil
}
