package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/authinvite/internal/auth"
	"github.com/charlesng35/authinvite/internal/models"
	"github.com/charlesng35/authinvite/internal/services"
	appErrors "github.com/charlesng35/authinvite/pkg/errors"
	"github.com/charlesng35/authinvite/pkg/i18n"
	"github.com/charlesng35/authinvite/pkg/param"
	"github.com/charlesng35/authinvite/pkg/response"
	appValidator "github.com/charlesng35/authinvite/pkg/validator"
)

// InvitationHandler serves the invitation signup flow: the information page
// shown before signup, the signup form, account creation and the page shown
// after signup.
type InvitationHandler struct {
	forms   *services.SignupFormService
	signup  *services.SignupService
	catalog *i18n.Catalog
	cfg     services.PluginConfig
}

// NewInvitationHandler constructs an InvitationHandler.
func NewInvitationHandler(forms *services.SignupFormService, signup *services.SignupService, catalog *i18n.Catalog, cfg services.PluginConfig) (*InvitationHandler, error) {
	if forms == nil {
		return nil, errors.New("invitation handler: signup form service is required")
	}
	if signup == nil {
		return nil, errors.New("invitation handler: signup service is required")
	}
	if catalog == nil {
		return nil, errors.New("invitation handler: catalog is required")
	}
	return &InvitationHandler{forms: forms, signup: signup, catalog: catalog, cfg: cfg}, nil
}

type pageResponse struct {
	Title    string   `json:"title"`
	Heading  string   `json:"heading"`
	Messages []string `json:"messages"`
}

type preSignupResponse struct {
	pageResponse
	AllowMismatchingEmails bool   `json:"allow_mismatching_emails"`
	SignupURL              string `json:"signup_url"`
	LoginURL               string `json:"login_url"`
}

// GET /auth/invitation/presignup
func (h *InvitationHandler) PreSignup(c *gin.Context) {
	lang := h.lang(c)

	messages := []string{h.catalog.String(lang, "signuphere")}
	if h.cfg.AllowMismatchingEmails {
		messages = append(messages, h.catalog.String(lang, "registeredusersloginhere"))
	} else {
		messages = append(messages, h.catalog.String(lang, "registereduserscontactteachers"))
	}

	signupURL := h.cfg.Site.URL(services.SignupPath)
	if wants := strings.TrimSpace(c.Query("wantsurl")); wants != "" {
		signupURL += "?" + url.Values{"wantsurl": {wants}}.Encode()
	}

	response.Success(c, http.StatusOK, preSignupResponse{
		pageResponse: pageResponse{
			Title:    h.catalog.String(lang, "acceptinvitation"),
			Heading:  h.cfg.Site.FullName,
			Messages: messages,
		},
		AllowMismatchingEmails: h.cfg.AllowMismatchingEmails,
		SignupURL:              signupURL,
		LoginURL:               h.cfg.Site.URL(services.LoginPath),
	})
}

// GET /auth/invitation/signup?invitationtoken=&wantsurl=
func (h *InvitationHandler) SignupForm(c *gin.Context) {
	token := param.Alphanum(c.Query("invitationtoken"))
	form, err := h.forms.Form(requestContext(c), token, c.Query("wantsurl"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, form)
}

type signupRequest struct {
	InvitationToken string         `json:"invitationtoken" validate:"required,max=40"`
	Username        string         `json:"username" validate:"omitempty,max=100"`
	Password        string         `json:"password" validate:"required,min=8,max=255"`
	ConfirmPassword string         `json:"confirm_password"`
	Email           string         `json:"email" validate:"required,email,max=100"`
	FirstName       string         `json:"firstname" validate:"required,max=100"`
	LastName        string         `json:"lastname" validate:"required,max=100"`
	City            string         `json:"city" validate:"omitempty,max=120"`
	Country         string         `json:"country" validate:"omitempty,len=2"`
	Lang            string         `json:"lang" validate:"omitempty,max=30"`
	Timezone        string         `json:"timezone" validate:"omitempty,max=100"`
	ProfileFields   map[string]any `json:"profile_fields"`
	WantsURL        string         `json:"wantsurl"`
	PreConfirm      bool           `json:"preconfirm"`
}

type signupResponse struct {
	User   *models.User     `json:"user"`
	Tokens *iauth.TokenPair `json:"tokens,omitempty"`
}

// POST /auth/invitation/signup
func (h *InvitationHandler) Signup(c *gin.Context) {
	var req signupRequest
	if !bindAndValidate(c, &req) {
		return
	}

	username := strings.ToLower(strings.TrimSpace(req.Username))
	if !h.cfg.GenerateUsername && !appValidator.IsUsername(username) {
		response.Error(c, appErrors.NewBadRequest("username may only contain lower-case letters, digits and _ - . @"))
		return
	}
	if h.cfg.ConfirmPasswordOnSignup && req.Password != req.ConfirmPassword {
		response.Error(c, appErrors.NewBadRequest(h.catalog.String(h.lang(c), "mismatchingpasswords")))
		return
	}

	lang := strings.TrimSpace(req.Lang)
	if lang == "" {
		lang = h.lang(c)
	}

	result, err := h.signup.CompleteSignup(requestContext(c), services.SignupInput{
		InvitationToken: req.InvitationToken,
		Username:        username,
		Password:        req.Password,
		Email:           req.Email,
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		City:            req.City,
		Country:         strings.ToUpper(req.Country),
		Lang:            lang,
		Timezone:        req.Timezone,
		ProfileFields:   req.ProfileFields,
	}, services.SignupOptions{
		Notify:     true,
		PreConfirm: req.PreConfirm,
		WantsURL:   req.WantsURL,
		Session:    sessionMetadata(c),
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Redirect(c, result.RedirectURL, signupResponse{User: result.User, Tokens: result.Tokens})
}

type postSignupResponse struct {
	pageResponse
	CourseURL string `json:"course_url"`
}

// GET /auth/invitation/postsignup?invitationtoken=
func (h *InvitationHandler) PostSignup(c *gin.Context) {
	token := param.Alphanum(c.Query("invitationtoken"))
	if token == "" {
		response.Error(c, appErrors.NewBadRequest("invitationtoken is required"))
		return
	}

	lang := h.lang(c)
	response.Success(c, http.StatusOK, postSignupResponse{
		pageResponse: pageResponse{
			Title:   h.catalog.String(lang, "signupcomplete"),
			Heading: h.cfg.Site.FullName,
			Messages: []string{
				h.catalog.String(lang, "accountcreatedsuccessfully"),
				h.catalog.String(lang, "coursenowavailable"),
			},
		},
		CourseURL: h.cfg.Site.URL(services.EnrolInvitationPath + "?" + url.Values{"token": {token}}.Encode()),
	})
}

func (h *InvitationHandler) lang(c *gin.Context) string {
	return requestLanguage(c, h.cfg.Site.DefaultLang)
}

func (h *InvitationHandler) fail(c *gin.Context, err error) {
	renderError(c, h.catalog, h.cfg.Site.DefaultLang, err)
}
