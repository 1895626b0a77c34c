package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/charlesng35/authinvite/internal/app"
	"github.com/charlesng35/authinvite/internal/handlers"
	"github.com/charlesng35/authinvite/internal/monitoring"
	"github.com/charlesng35/authinvite/internal/monitoring/checks"
)

// HealthMaintenancePath reports background job status.
const HealthMaintenancePath = "/health/maintenance"

func registerHealthRoutes(r *gin.Engine, cfg *app.Config, db *gorm.DB, jobs *monitoring.JobTracker) {
	if !cfg.Monitoring.Health.Enabled {
		r.GET("/health", disabledHealthHandler)
		r.GET(HealthMaintenancePath, disabledHealthHandler)
		return
	}

	readiness := monitoring.NewHealthManager(checks.Database(db, 0))
	maintenance := monitoring.NewHealthManager(checks.Maintenance(jobs, 0))

	r.GET("/health", handlers.Health(readiness, false))
	r.GET("/health/ready", handlers.Health(readiness, true))
	r.GET(HealthMaintenancePath, handlers.Health(maintenance, true))
}

func disabledHealthHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{
		"success": false,
		"status":  "disabled",
	})
}
