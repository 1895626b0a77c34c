package monitoring_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/authinvite/internal/database/testutil"
	"github.com/charlesng35/authinvite/internal/monitoring"
	"github.com/charlesng35/authinvite/internal/monitoring/checks"
)

func TestHealthManagerEvaluate(t *testing.T) {
	t.Parallel()

	manager := monitoring.NewHealthManager(
		monitoring.NewCheck("database", func(context.Context) monitoring.ProbeResult {
			return monitoring.ProbeResult{Status: monitoring.StatusUp}
		}),
		monitoring.NewCheck("mail", func(context.Context) monitoring.ProbeResult {
			return monitoring.ProbeResult{Status: monitoring.StatusDegraded}
		}),
		monitoring.NewCheck("", nil),
	)

	report := manager.Evaluate(context.Background())
	require.False(t, report.Success)
	require.Equal(t, monitoring.StatusDegraded, report.Status)
	require.Len(t, report.Checks, 2)
	require.Equal(t, "mail", report.Checks[1].Component)

	manager.Register(monitoring.NewCheck("broken", func(context.Context) monitoring.ProbeResult {
		panic("boom")
	}))
	report = manager.Evaluate(context.Background())
	require.Equal(t, monitoring.StatusDown, report.Status)
	require.Equal(t, "boom", report.Checks[2].Details)
	require.Equal(t, "broken", report.Checks[2].Component)
}

func TestEmptyHealthManagerIsUp(t *testing.T) {
	t.Parallel()

	report := monitoring.NewHealthManager().Evaluate(context.Background())
	require.True(t, report.Success)
	require.Equal(t, monitoring.StatusUp, report.Status)
}

func TestResultFromError(t *testing.T) {
	t.Parallel()

	require.Equal(t, monitoring.StatusUp, monitoring.ResultFromError("db", nil, time.Second).Status)
	require.Equal(t, monitoring.StatusDegraded, monitoring.ResultFromError("db", context.DeadlineExceeded, 0).Status)

	down := monitoring.ResultFromError("db", errors.New("refused"), -time.Second)
	require.Equal(t, monitoring.StatusDown, down.Status)
	require.Equal(t, "refused", down.Details)
	require.Zero(t, down.Duration)
}

func TestJobTracker(t *testing.T) {
	t.Parallel()

	tracker := monitoring.NewJobTracker()
	tracker.Register("session_cleanup")
	tracker.Record("inactive_users", errors.New("smtp down"), time.Second)
	tracker.Record("inactive_users", errors.New("smtp down"), time.Second)

	jobs := tracker.Snapshot()
	require.Len(t, jobs, 2)
	require.Equal(t, "inactive_users", jobs[0].Job)
	require.EqualValues(t, 2, jobs[0].ConsecutiveFailures)
	require.Equal(t, "smtp down", jobs[0].LastError)
	require.Zero(t, jobs[1].TotalRuns)

	tracker.Record("inactive_users", nil, time.Second)
	jobs = tracker.Snapshot()
	require.EqualValues(t, 3, jobs[0].TotalRuns)
	require.EqualValues(t, 2, jobs[0].Failures)
	require.Zero(t, jobs[0].ConsecutiveFailures)
	require.Empty(t, jobs[0].LastError)
	require.False(t, jobs[0].LastSuccessAt.IsZero())
}

func TestMaintenanceCheck(t *testing.T) {
	t.Parallel()

	tracker := monitoring.NewJobTracker()
	check := checks.Maintenance(tracker, 0)
	require.Equal(t, monitoring.StatusUp, check.Run(context.Background()).Status)

	tracker.Register("event_cleanup")
	tracker.Record("session_cleanup", nil, time.Second)
	result := check.Run(context.Background())
	require.Equal(t, monitoring.StatusUp, result.Status)
	require.Contains(t, result.Details, "event_cleanup: pending first run")

	tracker.Record("inactive_users", errors.New("timeout"), time.Second)
	result = check.Run(context.Background())
	require.Equal(t, monitoring.StatusDown, result.Status)
	require.Contains(t, result.Details, "inactive_users: timeout")
}

func TestMaintenanceCheckStaleJob(t *testing.T) {
	t.Parallel()

	tracker := monitoring.NewJobTracker()
	tracker.Record("session_cleanup", nil, time.Second)

	result := checks.Maintenance(tracker, time.Nanosecond).Run(context.Background())
	require.Eventually(t, func() bool {
		result = checks.Maintenance(tracker, time.Nanosecond).Run(context.Background())
		return result.Status == monitoring.StatusDegraded
	}, time.Second, time.Millisecond)
	require.Contains(t, result.Details, "stale run")
}

func TestDatabaseCheck(t *testing.T) {
	t.Parallel()

	db := testutil.MustOpenTestDB(t)
	result := monitoring.NewHealthManager(checks.Database(db, 0)).Evaluate(context.Background())
	require.True(t, result.Success)
	require.Equal(t, "database", result.Checks[0].Component)

	result = monitoring.NewHealthManager(checks.Database(nil, time.Second)).Evaluate(context.Background())
	require.Equal(t, monitoring.StatusDown, result.Status)
	require.Equal(t, "database not configured", result.Checks[0].Details)
}
