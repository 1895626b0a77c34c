package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/authinvite/internal/monitoring"
)

// Health evaluates the manager's checks and answers 503 unless every check is
// up. Individual results are only included when detailed is set.
func Health(manager *monitoring.HealthManager, detailed bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		report := manager.Evaluate(requestContext(c))
		status := http.StatusOK
		if !report.Success {
			status = http.StatusServiceUnavailable
		}

		body := gin.H{
			"success":    report.Success,
			"status":     report.Status,
			"checked_at": time.Now().UTC(),
		}
		if detailed {
			body["checks"] = report.Checks
		}
		c.JSON(status, body)
	}
}
