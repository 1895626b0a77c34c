package checks

import (
	"context"
	"strings"
	"time"

	"github.com/charlesng35/authinvite/internal/monitoring"
)

const defaultMaintenanceMaxAge = 48 * time.Hour

// Maintenance reports on background jobs. Failing jobs mark the probe down;
// jobs that have not succeeded within maxAge degrade it. Jobs that never ran
// are reported but do not affect the status.
func Maintenance(tracker *monitoring.JobTracker, maxAge time.Duration) monitoring.Check {
	if maxAge <= 0 {
		maxAge = defaultMaintenanceMaxAge
	}

	return monitoring.NewCheck("maintenance", func(context.Context) monitoring.ProbeResult {
		if tracker == nil {
			return monitoring.ProbeResult{Status: monitoring.StatusUp, Details: "no maintenance jobs registered"}
		}

		jobs := tracker.Snapshot()
		if len(jobs) == 0 {
			return monitoring.ProbeResult{Status: monitoring.StatusUp, Details: "no maintenance jobs registered"}
		}

		now := time.Now()
		status := monitoring.StatusUp
		var notes []string

		for _, job := range jobs {
			switch {
			case job.TotalRuns == 0:
				notes = append(notes, job.Job+": pending first run")
			case job.ConsecutiveFailures > 0:
				status = monitoring.StatusDown
				notes = append(notes, job.Job+": "+job.LastError)
			case now.Sub(job.LastSuccessAt) > maxAge:
				if status == monitoring.StatusUp {
					status = monitoring.StatusDegraded
				}
				notes = append(notes, job.Job+": stale run "+job.LastSuccessAt.UTC().Format(time.RFC3339))
			}
		}

		return monitoring.ProbeResult{Status: status, Details: strings.Join(notes, "; ")}
	})
}
