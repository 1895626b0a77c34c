package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/authinvite/internal/database"
	"github.com/charlesng35/authinvite/internal/models"
)

// InvitationRepository looks up and consumes invitations.
type InvitationRepository interface {
	// FindValid returns the unused, unexpired invitation for token, or nil when
	// none exists or the invitation enrolment subsystem is inactive.
	FindValid(ctx context.Context, token string, now time.Time) (*models.Invitation, error)
	// LinkUser links the invitation to the account created from it within tx.
	// The token itself stays redeemable for course enrolment. It fails with
	// ErrInvitationConsumed when another signup won the race.
	LinkUser(ctx context.Context, tx *gorm.DB, invitation *models.Invitation, userID uint, now time.Time) error
}

// InvitationStore is the GORM backed InvitationRepository.
type InvitationStore struct {
	db *gorm.DB
}

// NewInvitationStore constructs an InvitationStore.
func NewInvitationStore(db *gorm.DB) (*InvitationStore, error) {
	if db == nil {
		return nil, errors.New("invitation store: db is required")
	}
	return &InvitationStore{db: db}, nil
}

func (s *InvitationStore) FindValid(ctx context.Context, token string, now time.Time) (*models.Invitation, error) {
	ctx = ensureContext(ctx)
	if token == "" {
		return nil, nil
	}

	enabled, err := database.SystemSettingEnabled(ctx, s.db, database.EnrolInvitationEnabledSetting)
	if err != nil {
		return nil, fmt.Errorf("invitation store: enrolment status: %w", err)
	}
	if !enabled {
		return nil, nil
	}

	var invitation models.Invitation
	err = s.db.WithContext(ctx).
		Where("token = ? AND token_used = ? AND time_expiration >= ?", token, false, now.Unix()).
		Take(&invitation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("invitation store: find by token: %w", err)
	}
	return &invitation, nil
}

func (s *InvitationStore) LinkUser(ctx context.Context, tx *gorm.DB, invitation *models.Invitation, userID uint, now time.Time) error {
	if invitation == nil || invitation.ID == 0 {
		return errors.New("invitation store: invitation is required")
	}
	if tx == nil {
		tx = s.db
	}

	result := tx.WithContext(ensureContext(ctx)).
		Model(&models.Invitation{}).
		Where("id = ? AND token_used = ? AND user_id IS NULL AND time_expiration >= ?", invitation.ID, false, now.Unix()).
		Update("user_id", userID)
	if result.Error != nil {
		return fmt.Errorf("invitation store: link user: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrInvitationConsumed
	}

	invitation.UserID = &userID
	return nil
}

// FindByToken loads an invitation regardless of its state.
func (s *InvitationStore) FindByToken(ctx context.Context, token string) (*models.Invitation, error) {
	var invitation models.Invitation
	err := s.db.WithContext(ensureContext(ctx)).Where("token = ?", token).Take(&invitation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("invitation store: find by token: %w", err)
	}
	return &invitation, nil
}
