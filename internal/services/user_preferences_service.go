package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/authinvite/internal/models"
	apperrors "github.com/charlesng35/authinvite/pkg/errors"
)

// AccountDeletionTimePreference stores the epoch second at which an inactive
// account is scheduled for deletion.
const AccountDeletionTimePreference = "auth_invitation_account_deletion_time"

// UserPreferencesService reads and writes named per-user values.
type UserPreferencesService struct {
	db *gorm.DB
}

// NewUserPreferencesService constructs a UserPreferencesService.
func NewUserPreferencesService(db *gorm.DB) (*UserPreferencesService, error) {
	if db == nil {
		return nil, fmt.Errorf("user preferences service: db is required")
	}
	return &UserPreferencesService{db: db}, nil
}

// Get returns the value of name for userID and whether it is set.
func (s *UserPreferencesService) Get(ctx context.Context, userID uint, name string) (string, bool, error) {
	ctx = ensureContext(ctx)
	if userID == 0 || strings.TrimSpace(name) == "" {
		return "", false, apperrors.NewBadRequest("user id and preference name are required")
	}

	var pref models.UserPreference
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND name = ?", userID, name).
		Take(&pref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("user preferences service: get %q: %w", name, err)
	}
	return pref.Value, true, nil
}

// Set stores value under name, replacing any previous value.
func (s *UserPreferencesService) Set(ctx context.Context, userID uint, name, value string) error {
	ctx = ensureContext(ctx)
	if userID == 0 || strings.TrimSpace(name) == "" {
		return apperrors.NewBadRequest("user id and preference name are required")
	}

	pref := models.UserPreference{UserID: userID, Name: name, Value: value}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"value"}),
		}).
		Create(&pref).Error
	if err != nil {
		return fmt.Errorf("user preferences service: set %q: %w", name, err)
	}
	return nil
}

// DeleteAll removes every preference of userID within tx.
func (s *UserPreferencesService) DeleteAll(ctx context.Context, tx *gorm.DB, userID uint) error {
	if tx == nil {
		tx = s.db
	}
	if err := tx.WithContext(ensureContext(ctx)).Where("user_id = ?", userID).Delete(&models.UserPreference{}).Error; err != nil {
		return fmt.Errorf("user preferences service: delete preferences: %w", err)
	}
	return nil
}

// DeletionSchedule records when inactive accounts are due for deletion.
type DeletionSchedule interface {
	Get(ctx context.Context, userID uint) (*int64, error)
	Set(ctx context.Context, userID uint, deletionTime int64) error
}

// PreferenceDeletionSchedule keeps the schedule as a user preference.
type PreferenceDeletionSchedule struct {
	prefs *UserPreferencesService
}

// NewPreferenceDeletionSchedule wraps prefs as a DeletionSchedule.
func NewPreferenceDeletionSchedule(prefs *UserPreferencesService) (*PreferenceDeletionSchedule, error) {
	if prefs == nil {
		return nil, errors.New("deletion schedule: preferences service is required")
	}
	return &PreferenceDeletionSchedule{prefs: prefs}, nil
}

// Get returns the scheduled deletion time, nil when none is recorded. A value
// that is not a number is treated as unset.
func (s *PreferenceDeletionSchedule) Get(ctx context.Context, userID uint) (*int64, error) {
	raw, ok, err := s.prefs.Get(ctx, userID, AccountDeletionTimePreference)
	if err != nil || !ok {
		return nil, err
	}
	value, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return nil, nil
	}
	return &value, nil
}

func (s *PreferenceDeletionSchedule) Set(ctx context.Context, userID uint, deletionTime int64) error {
	return s.prefs.Set(ctx, userID, AccountDeletionTimePreference, strconv.FormatInt(deletionTime, 10))
}
