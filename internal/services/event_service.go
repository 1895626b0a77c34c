package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/charlesng35/authinvite/internal/models"
	"github.com/charlesng35/authinvite/pkg/logger"
)

// EventEntry captures a single lifecycle event to persist.
type EventEntry struct {
	Kind    string
	UserID  *uint
	Actor   string
	Payload map[string]any
}

// EventFilters narrows event queries.
type EventFilters struct {
	Kind   string
	UserID *uint
	Since  *time.Time
}

// EventService persists and retrieves account lifecycle events.
type EventService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewEventService constructs an EventService using the provided database handle.
func NewEventService(db *gorm.DB) (*EventService, error) {
	if db == nil {
		return nil, errors.New("event service: db is required")
	}
	return &EventService{db: db, now: time.Now}, nil
}

// Emit stores an event.
func (s *EventService) Emit(ctx context.Context, entry EventEntry) error {
	ctx = ensureContext(ctx)

	kind := strings.TrimSpace(entry.Kind)
	if kind == "" {
		return errors.New("event service: kind is required")
	}

	event := models.LifecycleEvent{
		Kind:   kind,
		UserID: entry.UserID,
		Actor:  strings.TrimSpace(entry.Actor),
	}
	if len(entry.Payload) > 0 {
		event.Payload = datatypes.JSONMap(entry.Payload)
	}

	if err := s.db.WithContext(ctx).Create(&event).Error; err != nil {
		return fmt.Errorf("event service: emit %s: %w", kind, err)
	}
	return nil
}

// List returns events matching filters, newest first.
func (s *EventService) List(ctx context.Context, filters EventFilters) ([]models.LifecycleEvent, error) {
	ctx = ensureContext(ctx)

	query := s.db.WithContext(ctx).Model(&models.LifecycleEvent{})
	if filters.Kind != "" {
		query = query.Where("kind = ?", filters.Kind)
	}
	if filters.UserID != nil {
		query = query.Where("user_id = ?", *filters.UserID)
	}
	if filters.Since != nil {
		query = query.Where("created_at >= ?", *filters.Since)
	}

	var events []models.LifecycleEvent
	if err := query.Order("created_at DESC").Find(&events).Error; err != nil {
		return nil, fmt.Errorf("event service: list events: %w", err)
	}
	return events, nil
}

// CleanupOlderThan removes events older than the retention window (in days).
func (s *EventService) CleanupOlderThan(ctx context.Context, retentionDays int) (int64, error) {
	ctx = ensureContext(ctx)

	if retentionDays <= 0 {
		return 0, errors.New("event service: retentionDays must be positive")
	}

	cutoff := s.now().AddDate(0, 0, -retentionDays)
	result := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.LifecycleEvent{})
	if result.Error != nil {
		return 0, fmt.Errorf("event service: cleanup events: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// recordEvent emits entry and only logs failures; events never fail the
// operation that triggered them.
func recordEvent(events *EventService, ctx context.Context, entry EventEntry) {
	if events == nil {
		return
	}
	if err := events.Emit(ctx, entry); err != nil {
		logger.WithModule("events").Warn("failed to record lifecycle event",
			zap.String("kind", entry.Kind),
			zap.Error(err),
		)
	}
}
