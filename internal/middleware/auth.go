package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	iauth "github.com/charlesng35/authinvite/internal/auth"
	"github.com/charlesng35/authinvite/pkg/errors"
	"github.com/charlesng35/authinvite/pkg/logger"
	"github.com/charlesng35/authinvite/pkg/response"
)

const (
	CtxClaimsKey    = "authClaims"
	CtxUserIDKey    = "userID"
	CtxSessionIDKey = "sessionID"
)

// AccessRecorder stores the time of an authenticated request. Inactive account
// cleanup relies on it.
type AccessRecorder interface {
	TouchLastAccess(ctx context.Context, userID uint) error
}

// AuthOption customises the Auth middleware.
type AuthOption func(*authOptions)

type authOptions struct {
	recorder AccessRecorder
}

// WithAccessRecorder records last access for every authenticated request.
func WithAccessRecorder(recorder AccessRecorder) AuthOption {
	return func(o *authOptions) {
		o.recorder = recorder
	}
}

// Auth enforces JWT authentication using the supplied JWT service.
func Auth(jwt *iauth.JWTService, opts ...AuthOption) gin.HandlerFunc {
	var options authOptions
	for _, opt := range opts {
		opt(&options)
	}

	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if len(authz) < 8 || !strings.EqualFold(authz[:7], "Bearer ") {
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		claims, err := jwt.ValidateAccessToken(strings.TrimSpace(authz[7:]))
		if err != nil {
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		c.Set(CtxClaimsKey, claims)
		c.Set(CtxUserIDKey, claims.UserID)
		if claims.SessionID != "" {
			c.Set(CtxSessionIDKey, claims.SessionID)
		}

		if options.recorder != nil {
			if err := options.recorder.TouchLastAccess(c.Request.Context(), claims.UserID); err != nil {
				logger.WithModule("http").Warn("failed to record last access",
					zap.Uint("user_id", claims.UserID),
					zap.Error(err),
				)
			}
		}

		c.Next()
	}
}

// UserID returns the authenticated user id, zero when the request is anonymous.
func UserID(c *gin.Context) uint {
	if v, ok := c.Get(CtxUserIDKey); ok {
		if id, ok := v.(uint); ok {
			return id
		}
	}
	return 0
}

// SessionID returns the session bound to the access token, if any.
func SessionID(c *gin.Context) string {
	return c.GetString(CtxSessionIDKey)
}
