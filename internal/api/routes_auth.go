package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/authinvite/internal/services"
)

func registerAuthRoutes(r *gin.Engine, rs routeSet) {
	group := r.Group("/", rs.language)

	// The login page first checks for a pending invitation.
	group.GET(services.LoginPath, rs.auth.PreLogin)
	group.POST(services.LoginPath, rs.throttle, rs.auth.Login)

	session := group.Group("/auth/invitation")
	session.POST("/refresh", rs.auth.Refresh)
	session.POST("/logout", rs.requireAuth, rs.auth.Logout)
	session.GET("/me", rs.requireAuth, rs.auth.Me)
	session.POST("/password", rs.requireAuth, rs.throttle, rs.auth.ChangePassword)
}
