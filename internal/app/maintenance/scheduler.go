package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/authinvite/internal/monitoring"
	"github.com/charlesng35/authinvite/pkg/logger"
)

const (
	defaultEventRetentionDays = 365
	defaultSessionSpec        = "@hourly"
	defaultEventSpec          = "@daily"
	defaultLifecycleSpec      = "@daily"
)

// Job names reported to the JobTracker.
const (
	JobInactiveUsers  = "inactive_users"
	JobSessionCleanup = "session_cleanup"
	JobEventCleanup   = "event_cleanup"
	JobRateLimitPurge = "rate_limit_cleanup"
)

// SessionCleaner purges expired and revoked login sessions.
type SessionCleaner interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// EventPruner drops lifecycle events past their retention window.
type EventPruner interface {
	CleanupOlderThan(ctx context.Context, retentionDays int) (int64, error)
}

// Scheduler runs background jobs: the inactive user sweep, session cleanup
// and event retention.
type Scheduler struct {
	task      *InactiveUserTask
	sessions  SessionCleaner
	events    EventPruner
	counters  SessionCleaner
	cron      *cron.Cron
	now       func() time.Time
	log       *zap.Logger
	tracker   *monitoring.JobTracker
	retention int

	lifecycleSchedule string
	sessionSchedule   string
	eventSchedule     string
}

// Option customises the Scheduler.
type Option func(*Scheduler)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.cron = c
		}
	}
}

// WithNow overrides the clock handed to the inactive user task.
func WithNow(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithJobTracker records the outcome of every job run.
func WithJobTracker(tracker *monitoring.JobTracker) Option {
	return func(s *Scheduler) {
		s.tracker = tracker
	}
}

// WithRateLimitCleaner purges expired shared rate limit counters on the
// session cleanup schedule.
func WithRateLimitCleaner(cleaner SessionCleaner) Option {
	return func(s *Scheduler) {
		s.counters = cleaner
	}
}

// WithInactiveUserTask enables the inactive user sweep.
func WithInactiveUserTask(task *InactiveUserTask) Option {
	return func(s *Scheduler) {
		s.task = task
	}
}

// WithEventRetentionDays adjusts how long lifecycle events are kept.
func WithEventRetentionDays(days int) Option {
	return func(s *Scheduler) {
		if days > 0 {
			s.retention = days
		}
	}
}

// WithLifecycleSchedule overrides the cron specification of the inactive user sweep.
func WithLifecycleSchedule(spec string) Option {
	return func(s *Scheduler) {
		if spec != "" {
			s.lifecycleSchedule = spec
		}
	}
}

// WithSessionSchedule overrides the cron specification for session cleanup.
func WithSessionSchedule(spec string) Option {
	return func(s *Scheduler) {
		if spec != "" {
			s.sessionSchedule = spec
		}
	}
}

// WithEventSchedule overrides the cron specification for event retention.
func WithEventSchedule(spec string) Option {
	return func(s *Scheduler) {
		if spec != "" {
			s.eventSchedule = spec
		}
	}
}

// NewScheduler constructs a Scheduler. Nil dependencies skip their job.
func NewScheduler(sessions SessionCleaner, events EventPruner, opts ...Option) *Scheduler {
	s := &Scheduler{
		sessions:          sessions,
		events:            events,
		now:               time.Now,
		retention:         defaultEventRetentionDays,
		lifecycleSchedule: defaultLifecycleSpec,
		sessionSchedule:   defaultSessionSpec,
		eventSchedule:     defaultEventSpec,
		log:               logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.cron == nil {
		// SkipIfStillRunning keeps two sweeps from overlapping.
		s.cron = cron.New(
			cron.WithLogger(cron.DiscardLogger),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		)
	}

	return s
}

// Start registers the enabled jobs and launches the cron scheduler.
func (s *Scheduler) Start() error {
	if len(s.jobs()) == 0 {
		return nil
	}

	for _, j := range s.jobs() {
		if s.tracker != nil {
			s.tracker.Register(j.name)
		}
		if _, err := s.cron.AddFunc(j.spec, func() {
			if err := s.run(context.Background(), j); err != nil {
				s.log.Warn("maintenance job failed", zap.String("job", j.name), zap.Error(err))
			}
		}); err != nil {
			return fmt.Errorf("maintenance: schedule %s: %w", j.name, err)
		}
	}

	s.cron.Start()
	return nil
}

// Stop halts the underlying scheduler. The returned context is done once
// running jobs have finished.
func (s *Scheduler) Stop() context.Context {
	if s.cron == nil {
		return context.Background()
	}
	return s.cron.Stop()
}

// RunOnce executes session cleanup and event retention sequentially. The
// inactive user sweep only runs when includeLifecycle is set.
func (s *Scheduler) RunOnce(ctx context.Context, includeLifecycle bool) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error
	for _, j := range s.jobs() {
		if j.name == JobInactiveUsers && !includeLifecycle {
			continue
		}
		errs = multierr.Append(errs, s.run(ctx, j))
	}
	return errs
}

type job struct {
	name string
	spec string
	fn   func(ctx context.Context) error
}

// jobs lists the enabled jobs, lifecycle sweep first.
func (s *Scheduler) jobs() []job {
	var out []job
	if s.task != nil {
		out = append(out, job{name: JobInactiveUsers, spec: s.lifecycleSchedule, fn: s.runLifecycle})
	}
	if s.sessions != nil {
		out = append(out, job{name: JobSessionCleanup, spec: s.sessionSchedule, fn: func(ctx context.Context) error {
			_, err := s.sessions.CleanupExpired(ctx)
			return err
		}})
	}
	if s.events != nil {
		out = append(out, job{name: JobEventCleanup, spec: s.eventSchedule, fn: func(ctx context.Context) error {
			_, err := s.events.CleanupOlderThan(ctx, s.retention)
			return err
		}})
	}
	if s.counters != nil {
		out = append(out, job{name: JobRateLimitPurge, spec: s.sessionSchedule, fn: func(ctx context.Context) error {
			_, err := s.counters.CleanupExpired(ctx)
			return err
		}})
	}
	return out
}

func (s *Scheduler) run(ctx context.Context, j job) error {
	start := time.Now()
	err := j.fn(ctx)
	if s.tracker != nil {
		s.tracker.Record(j.name, err, time.Since(start))
	}
	return err
}

func (s *Scheduler) runLifecycle(ctx context.Context) error {
	report, err := s.task.Execute(ctx, s.now())
	if err != nil {
		return err
	}
	if report.Errors != nil {
		s.log.Warn("inactive user sweep finished with errors",
			zap.Int("failures", len(multierr.Errors(report.Errors))),
		)
	}
	return nil
}
