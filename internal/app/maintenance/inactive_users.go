package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/authinvite/internal/models"
	"github.com/charlesng35/authinvite/internal/services"
	"github.com/charlesng35/authinvite/pkg/logger"
	"github.com/charlesng35/authinvite/pkg/metrics"
)

// InactiveUserStore lists and removes invitation accounts.
type InactiveUserStore interface {
	ListInactive(ctx context.Context, auth string, before int64) ([]models.User, error)
	Delete(ctx context.Context, user *models.User) error
}

// AccountNotifier sends the lifecycle emails.
type AccountNotifier interface {
	SendDeletionNotice(ctx context.Context, user *models.User, deletionTime time.Time, noticeDays int) error
	SendAccountDeleted(ctx context.Context, user *models.User) error
}

// Report summarises one run of the inactive user task.
type Report struct {
	Disabled       bool
	NoticesSkipped bool
	NotifyTotal    int
	Notified       int
	DeleteTotal    int
	Deleted        int
	// Errors collects per-user failures. They never abort the run.
	Errors error
}

// InactiveUserTask warns and later deletes invitation accounts that have not
// been used for a while.
type InactiveUserTask struct {
	users    InactiveUserStore
	schedule services.DeletionSchedule
	notifier AccountNotifier
	cfg      services.PluginConfig
	log      *zap.Logger
}

// TaskOption customises an InactiveUserTask.
type TaskOption func(*InactiveUserTask)

// WithTaskLogger replaces the module logger, mainly so tests can observe output.
func WithTaskLogger(log *zap.Logger) TaskOption {
	return func(t *InactiveUserTask) {
		if log != nil {
			t.log = log
		}
	}
}

// NewInactiveUserTask wires the task to its collaborators.
func NewInactiveUserTask(users InactiveUserStore, schedule services.DeletionSchedule, notifier AccountNotifier, cfg services.PluginConfig, opts ...TaskOption) (*InactiveUserTask, error) {
	if users == nil {
		return nil, errors.New("inactive users: user store is required")
	}
	if schedule == nil {
		return nil, errors.New("inactive users: deletion schedule is required")
	}
	if notifier == nil {
		return nil, errors.New("inactive users: notifier is required")
	}

	task := &InactiveUserTask{
		users:    users,
		schedule: schedule,
		notifier: notifier,
		cfg:      cfg,
		log:      logger.WithModule("inactive_users"),
	}
	for _, opt := range opts {
		opt(task)
	}
	return task, nil
}

type inactiveUser struct {
	models.User
	deletionTime *int64
}

// Execute runs both phases against the clock value startedAt. It only fails
// when the candidate list cannot be loaded; per-user failures land in
// Report.Errors and are retried on the next run.
func (t *InactiveUserTask) Execute(ctx context.Context, startedAt time.Time) (Report, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	var report Report
	if !t.cfg.AutoDeleteUsers {
		report.Disabled = true
		t.log.Info("Automatic deletion of inactive users is disabled. " +
			"Please enable the auth_invitation/autodeleteusers setting to activate this task.")
		return report, nil
	}

	deleteAfter := int64(t.cfg.DeleteAfter() / time.Second)
	noticePeriod := int64(t.cfg.NoticePeriod() / time.Second)
	now := startedAt.Unix()
	deleteThreshold := now - deleteAfter
	noticeThreshold := deleteThreshold + noticePeriod

	inactive, err := t.loadInactive(ctx, noticeThreshold)
	if err != nil {
		return report, err
	}

	if noticePeriod > 0 {
		var notify []inactiveUser
		for _, user := range inactive {
			if user.deletionTime == nil || *user.deletionTime-user.LastAccess < deleteAfter {
				notify = append(notify, user)
			}
		}
		t.notifyUsers(ctx, notify, now+noticePeriod, &report)
	} else {
		report.NoticesSkipped = true
		t.log.Info("Not sending notices because the auth_invitation/autodeleteusersnoticedays setting is set to 0.")
	}

	var remove []inactiveUser
	for _, user := range inactive {
		if user.LastAccess >= deleteThreshold {
			continue
		}
		if noticePeriod > 0 {
			if user.deletionTime == nil {
				continue
			}
			scheduled := *user.deletionTime
			if scheduled-user.LastAccess < deleteAfter || scheduled > now {
				continue
			}
		}
		remove = append(remove, user)
	}
	t.deleteUsers(ctx, remove, &report)

	return report, nil
}

func (t *InactiveUserTask) loadInactive(ctx context.Context, before int64) ([]inactiveUser, error) {
	users, err := t.users.ListInactive(ctx, models.AuthInvitation, before)
	if err != nil {
		return nil, fmt.Errorf("inactive users: %w", err)
	}

	out := make([]inactiveUser, 0, len(users))
	for _, user := range users {
		scheduled, err := t.schedule.Get(ctx, user.ID)
		if err != nil {
			return nil, fmt.Errorf("inactive users: read deletion time of user %d: %w", user.ID, err)
		}
		out = append(out, inactiveUser{User: user, deletionTime: scheduled})
	}
	return out, nil
}

func (t *InactiveUserTask) notifyUsers(ctx context.Context, users []inactiveUser, deletionTime int64, report *Report) {
	report.NotifyTotal = len(users)
	deletionAt := t.timestamp(deletionTime)
	t.log.Info(fmt.Sprintf("Notifying %d users about the pending deletion of their accounts...", len(users)))

	for i := range users {
		user := &users[i].User
		lastSeen := t.timestamp(user.LastAccess)
		fields := userFields(user)

		if err := t.notifier.SendDeletionNotice(ctx, user, time.Unix(deletionTime, 0), t.cfg.AutoDeleteUsersNoticeDays); err != nil {
			metrics.LifecycleUsers.WithLabelValues("notify", "failure").Inc()
			report.Errors = multierr.Append(report.Errors, fmt.Errorf("notify user %d: %w", user.ID, err))
			t.log.Error(fmt.Sprintf("Failed to notify user %s with ID %d (last seen at %s) about the pending deletion of their account.",
				user.Username, user.ID, lastSeen), append(fields, zap.Error(err))...)
			continue
		}
		if err := t.schedule.Set(ctx, user.ID, deletionTime); err != nil {
			metrics.LifecycleUsers.WithLabelValues("notify", "failure").Inc()
			report.Errors = multierr.Append(report.Errors, fmt.Errorf("record deletion time of user %d: %w", user.ID, err))
			t.log.Error("failed to record scheduled deletion time", append(fields, zap.Error(err))...)
			continue
		}

		report.Notified++
		metrics.LifecycleUsers.WithLabelValues("notify", "success").Inc()
		t.log.Info(fmt.Sprintf("User %s with ID %d (last seen at %s) was notified about the pending deletion of their account after %s.",
			user.Username, user.ID, lastSeen, deletionAt), fields...)
	}

	t.log.Info(fmt.Sprintf("%d of %d users were successfully notified about the pending deletion of their accounts.",
		report.Notified, report.NotifyTotal))
}

func (t *InactiveUserTask) deleteUsers(ctx context.Context, users []inactiveUser, report *Report) {
	report.DeleteTotal = len(users)
	t.log.Info(fmt.Sprintf("Deleting %d users...", len(users)))

	for i := range users {
		user := &users[i].User
		lastSeen := t.timestamp(user.LastAccess)
		fields := userFields(user)

		if err := t.users.Delete(ctx, user); err != nil {
			metrics.LifecycleUsers.WithLabelValues("delete", "failure").Inc()
			report.Errors = multierr.Append(report.Errors, fmt.Errorf("delete user %d: %w", user.ID, err))
			t.log.Error(fmt.Sprintf("Failed to delete user %s with ID %d (last seen at %s).",
				user.Username, user.ID, lastSeen), append(fields, zap.Error(err))...)
			continue
		}

		report.Deleted++
		metrics.LifecycleUsers.WithLabelValues("delete", "success").Inc()
		t.log.Info(fmt.Sprintf("User %s with ID %d (last seen at %s) was deleted.", user.Username, user.ID, lastSeen), fields...)

		// user still holds the address from before the deletion.
		if err := t.notifier.SendAccountDeleted(ctx, user); err != nil {
			t.log.Warn(fmt.Sprintf("Failed to notify user %s with ID %d that their account was deleted.", user.Username, user.ID),
				append(fields, zap.Error(err))...)
		}
	}

	t.log.Info(fmt.Sprintf("%d of %d users were successfully deleted.", report.Deleted, report.DeleteTotal))
}

// timestamp renders epoch seconds in the site timezone.
func (t *InactiveUserTask) timestamp(epoch int64) string {
	return time.Unix(epoch, 0).In(t.cfg.Site.Location()).Format(time.RFC3339)
}

func userFields(user *models.User) []zap.Field {
	return []zap.Field{
		zap.Uint("user_id", user.ID),
		zap.String("username", user.Username),
	}
}
