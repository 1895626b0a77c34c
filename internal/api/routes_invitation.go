package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/authinvite/internal/services"
)

// PreSignupPath is the information page shown to invitees without an account.
const PreSignupPath = "/auth/invitation/presignup.php"

func registerInvitationRoutes(r *gin.Engine, rs routeSet) {
	group := r.Group("/", rs.language)

	group.GET(PreSignupPath, rs.invitation.PreSignup)
	group.GET(services.SignupPath, rs.invitation.SignupForm)
	group.POST(services.SignupPath, rs.throttle, rs.invitation.Signup)
	group.GET(services.PostSignupPath, rs.requireAuth, rs.invitation.PostSignup)
}
