package api

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/charlesng35/authinvite/internal/app"
	iauth "github.com/charlesng35/authinvite/internal/auth"
	"github.com/charlesng35/authinvite/internal/handlers"
	"github.com/charlesng35/authinvite/internal/middleware"
	"github.com/charlesng35/authinvite/internal/monitoring"
	"github.com/charlesng35/authinvite/internal/services"
	"github.com/charlesng35/authinvite/pkg/i18n"
)

// Services bundles the collaborators the HTTP layer needs.
type Services struct {
	DB       *gorm.DB
	JWT      *iauth.JWTService
	Sessions *iauth.SessionService
	Users    *services.UserService
	Logins   *services.LoginService
	Forms    *services.SignupFormService
	Signup   *services.SignupService
	Catalog  *i18n.Catalog
	Plugin   services.PluginConfig
	// RateStore backs login and signup throttling. Nil disables it.
	RateStore middleware.RateStore
	// Jobs exposes maintenance job outcomes on the health endpoint. Optional.
	Jobs *monitoring.JobTracker
}

// NewRouter builds the Gin engine, wires middleware and registers the routes.
func NewRouter(cfg *app.Config, svc Services) (*gin.Engine, error) {
	if cfg == nil {
		return nil, errors.New("config must be provided")
	}
	switch {
	case svc.DB == nil:
		return nil, errors.New("database handle must be provided")
	case svc.JWT == nil:
		return nil, errors.New("jwt service must be provided")
	case svc.Sessions == nil:
		return nil, errors.New("session service must be provided")
	case svc.Catalog == nil:
		return nil, errors.New("catalog must be provided")
	}

	invitation, err := handlers.NewInvitationHandler(svc.Forms, svc.Signup, svc.Catalog, svc.Plugin)
	if err != nil {
		return nil, err
	}
	auth, err := handlers.NewAuthHandler(svc.Logins, svc.Users, svc.Sessions, svc.Catalog, svc.Plugin.Site.DefaultLang)
	if err != nil {
		return nil, err
	}

	metricsPath := cfg.Monitoring.Prometheus.Endpoint
	if metricsPath == "" {
		metricsPath = "/metrics"
	}

	r := gin.New()
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics(metricsPath, "/health"))
	r.Use(middleware.SecurityHeaders(strings.HasPrefix(svc.Plugin.Site.WWWRoot, "https://")))

	registerHealthRoutes(r, cfg, svc.DB, svc.Jobs)
	if cfg.Monitoring.Prometheus.Enabled {
		r.GET(metricsPath, gin.WrapH(promhttp.Handler()))
	}

	routes := routeSet{
		invitation: invitation,
		auth:       auth,
		language:   middleware.Language(svc.Catalog, svc.Plugin.Site.DefaultLang),
		throttle:   middleware.RateLimit(svc.RateStore, cfg.Server.RateLimit.Requests, cfg.Server.RateLimit.Window),
		requireAuth: middleware.Auth(svc.JWT,
			middleware.WithAccessRecorder(svc.Users),
		),
	}
	registerInvitationRoutes(r, routes)
	registerAuthRoutes(r, routes)

	r.NoRoute(middleware.NotFoundHandler)
	return r, nil
}

type routeSet struct {
	invitation  *handlers.InvitationHandler
	auth        *handlers.AuthHandler
	language    gin.HandlerFunc
	throttle    gin.HandlerFunc
	requireAuth gin.HandlerFunc
}
