package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/authinvite/internal/auth"
	"github.com/charlesng35/authinvite/internal/middleware"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// requestLanguage returns the negotiated language or fallback when the
// language middleware is not installed.
func requestLanguage(c *gin.Context, fallback string) string {
	if lang := middleware.LanguageFrom(c); lang != "" {
		return lang
	}
	return fallback
}

func sessionMetadata(c *gin.Context) iauth.SessionMetadata {
	meta := iauth.SessionMetadata{IPAddress: c.ClientIP()}
	if c.Request != nil {
		meta.UserAgent = c.Request.UserAgent()
	}
	return meta
}
