package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/authinvite/internal/auth"
	"github.com/charlesng35/authinvite/internal/middleware"
	"github.com/charlesng35/authinvite/internal/models"
	"github.com/charlesng35/authinvite/internal/services"
	"github.com/charlesng35/authinvite/pkg/crypto"
	appErrors "github.com/charlesng35/authinvite/pkg/errors"
	"github.com/charlesng35/authinvite/pkg/i18n"
	"github.com/charlesng35/authinvite/pkg/response"
)

// AuthHandler manages authentication flows (prelogin/login/refresh/logout/me/password).
type AuthHandler struct {
	logins   *services.LoginService
	users    *services.UserService
	sessions *iauth.SessionService
	catalog  *i18n.Catalog
	lang     string
}

// NewAuthHandler constructs an AuthHandler. defaultLang is used when the
// request carries no language preference.
func NewAuthHandler(logins *services.LoginService, users *services.UserService, sessions *iauth.SessionService, catalog *i18n.Catalog, defaultLang string) (*AuthHandler, error) {
	if logins == nil {
		return nil, errors.New("auth handler: login service is required")
	}
	if users == nil {
		return nil, errors.New("auth handler: user service is required")
	}
	if sessions == nil {
		return nil, errors.New("auth handler: session service is required")
	}
	return &AuthHandler{logins: logins, users: users, sessions: sessions, catalog: catalog, lang: defaultLang}, nil
}

type loginRequest struct {
	Username string `json:"username" validate:"required,max=100"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Tokens iauth.TokenPair `json:"tokens"`
	User   *models.User    `json:"user"`
}

// GET /auth/invitation/prelogin?wantsurl=
func (h *AuthHandler) PreLogin(c *gin.Context) {
	target, err := h.logins.PreLoginRedirect(requestContext(c), c.Query("wantsurl"))
	if err != nil {
		renderError(c, h.catalog, h.lang, err)
		return
	}
	if target != "" {
		response.Redirect(c, target, nil)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"show_login": true})
}

// POST /auth/invitation/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, pair, err := h.logins.Login(requestContext(c), req.Username, req.Password, sessionMetadata(c))
	if err != nil {
		renderError(c, h.catalog, h.lang, err)
		return
	}

	response.Success(c, http.StatusOK, loginResponse{Tokens: pair, User: user})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// POST /auth/invitation/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if !bindAndValidate(c, &req) {
		return
	}

	pair, _, err := h.sessions.RefreshSession(requestContext(c), strings.TrimSpace(req.RefreshToken))
	if err != nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	response.Success(c, http.StatusOK, pair)
}

// POST /auth/invitation/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	sid := middleware.SessionID(c)
	if sid == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.sessions.RevokeSession(requestContext(c), sid); err != nil {
		if errors.Is(err, iauth.ErrSessionNotFound) {
			response.Error(c, appErrors.ErrUnauthorized)
			return
		}
		renderError(c, h.catalog, h.lang, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"revoked": true})
}

// GET /auth/invitation/me
func (h *AuthHandler) Me(c *gin.Context) {
	user, err := h.currentUser(c)
	if err != nil {
		renderError(c, h.catalog, h.lang, err)
		return
	}
	response.Success(c, http.StatusOK, user)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=255"`
}

// POST /auth/invitation/password
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.currentUser(c)
	if err != nil {
		renderError(c, h.catalog, h.lang, err)
		return
	}
	if !crypto.VerifyPassword(user.Password, req.CurrentPassword) {
		response.Error(c, appErrors.ErrInvalidCredentials)
		return
	}

	if err := h.users.UpdatePassword(requestContext(c), user.ID, req.NewPassword); err != nil {
		renderError(c, h.catalog, h.lang, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"updated": true})
}

// currentUser loads the account behind the access token. Deleted accounts
// count as missing.
func (h *AuthHandler) currentUser(c *gin.Context) (*models.User, error) {
	user, err := h.users.FindByID(requestContext(c), middleware.UserID(c))
	if err != nil {
		return nil, err
	}
	if user.Deleted {
		return nil, services.ErrUserNotFound
	}
	return user, nil
}
