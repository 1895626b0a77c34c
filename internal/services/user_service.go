package services

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/authinvite/internal/models"
	"github.com/charlesng35/authinvite/pkg/crypto"
	apperrors "github.com/charlesng35/authinvite/pkg/errors"
)

// DefaultRealm is the host id of local accounts.
const DefaultRealm uint = 1

// ErrUsernameTaken reports a username collision within the realm.
var ErrUsernameTaken = apperrors.New("USERNAME_TAKEN", "This username already exists, choose another", http.StatusConflict)

// CreateUserInput describes the fields accepted when creating a user.
type CreateUserInput struct {
	Auth      string
	Username  string
	Email     string
	Password  string
	Confirmed bool
	FirstName string
	LastName  string
	City      string
	Country   string
	Lang      string
	Timezone  string
}

// UserOption customises UserService behaviour.
type UserOption func(*UserService)

// WithUserRealm scopes lookups to the given host id.
func WithUserRealm(realm uint) UserOption {
	return func(s *UserService) {
		if realm > 0 {
			s.realm = realm
		}
	}
}

// WithUserClock injects a custom clock primarily for testing.
func WithUserClock(clock func() time.Time) UserOption {
	return func(s *UserService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// UserService is the account store used by signup, login and the inactivity task.
type UserService struct {
	db     *gorm.DB
	events *EventService
	prefs  *UserPreferencesService
	realm  uint
	now    func() time.Time
}

// NewUserService constructs a UserService instance.
func NewUserService(db *gorm.DB, events *EventService, prefs *UserPreferencesService, opts ...UserOption) (*UserService, error) {
	if db == nil {
		return nil, errors.New("user service: db is required")
	}
	svc := &UserService{
		db:     db,
		events: events,
		prefs:  prefs,
		realm:  DefaultRealm,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Create provisions a new user with a hashed password inside tx.
func (s *UserService) Create(ctx context.Context, tx *gorm.DB, input CreateUserInput) (*models.User, error) {
	ctx = ensureContext(ctx)
	if tx == nil {
		tx = s.db
	}

	username := strings.TrimSpace(input.Username)
	email := strings.TrimSpace(input.Email)
	if username == "" {
		return nil, apperrors.NewBadRequest("username is required")
	}
	if email == "" {
		return nil, apperrors.NewBadRequest("email is required")
	}
	if input.Password == "" {
		return nil, apperrors.NewBadRequest("password is required")
	}

	hashed, err := crypto.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("user service: hash password: %w", err)
	}

	auth := strings.TrimSpace(input.Auth)
	if auth == "" {
		auth = "manual"
	}

	user := &models.User{
		Auth:       auth,
		MnetHostID: s.realm,
		Username:   username,
		Email:      email,
		Password:   hashed,
		Confirmed:  input.Confirmed,
		FirstName:  strings.TrimSpace(input.FirstName),
		LastName:   strings.TrimSpace(input.LastName),
		City:       strings.TrimSpace(input.City),
		Country:    strings.ToUpper(strings.TrimSpace(input.Country)),
		Lang:       strings.TrimSpace(input.Lang),
		Timezone:   strings.TrimSpace(input.Timezone),
	}

	if err := tx.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrUsernameTaken.WithInternal(err)
		}
		return nil, fmt.Errorf("user service: create user: %w", err)
	}
	return user, nil
}

// FindByID loads a user by identifier.
func (s *UserService) FindByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ensureContext(ctx)).Take(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user service: load user: %w", err)
	}
	return &user, nil
}

// FindByUsername loads an active local account by username.
func (s *UserService) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ensureContext(ctx)).
		Where("username = ? AND mnet_host_id = ? AND deleted = ?", strings.TrimSpace(username), s.realm, false).
		Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user service: find by username: %w", err)
	}
	return &user, nil
}

// EmailExists reports whether a non-deleted local account uses email. The
// comparison ignores case but not accents.
func (s *UserService) EmailExists(ctx context.Context, email string) (bool, error) {
	var count int64
	err := s.db.WithContext(ensureContext(ctx)).
		Model(&models.User{}).
		Where("email_lower = ? AND mnet_host_id = ? AND deleted = ?", models.NormalizeEmail(email), s.realm, false).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("user service: lookup email: %w", err)
	}
	return count > 0, nil
}

// UsernameExists reports whether username is taken within the realm, deleted accounts included.
func (s *UserService) UsernameExists(ctx context.Context, username string) (bool, error) {
	var count int64
	err := s.db.WithContext(ensureContext(ctx)).
		Model(&models.User{}).
		Where("username = ? AND mnet_host_id = ?", username, s.realm).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("user service: lookup username: %w", err)
	}
	return count > 0, nil
}

// RecordPasswordHistory stores a hash of password for reuse checks.
func (s *UserService) RecordPasswordHistory(ctx context.Context, tx *gorm.DB, userID uint, password string) error {
	if tx == nil {
		tx = s.db
	}
	hashed, err := crypto.HashPassword(password)
	if err != nil {
		return fmt.Errorf("user service: hash password history: %w", err)
	}
	entry := models.PasswordHistory{UserID: userID, Hash: hashed}
	if err := tx.WithContext(ensureContext(ctx)).Create(&entry).Error; err != nil {
		return fmt.Errorf("user service: record password history: %w", err)
	}
	return nil
}

// SaveProfileFields upserts extended profile field values for a user.
func (s *UserService) SaveProfileFields(ctx context.Context, tx *gorm.DB, userID uint, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	if tx == nil {
		tx = s.db
	}

	rows := make([]models.UserProfileData, 0, len(fields))
	for name, value := range fields {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		encoded, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("user service: encode profile field %q: %w", name, err)
		}
		rows = append(rows, models.UserProfileData{UserID: userID, Field: name, Data: datatypes.JSON(encoded)})
	}
	if len(rows) == 0 {
		return nil
	}

	err := tx.WithContext(ensureContext(ctx)).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "field"}},
			DoUpdates: clause.AssignmentColumns([]string{"data"}),
		}).
		Create(&rows).Error
	if err != nil {
		return fmt.Errorf("user service: save profile fields: %w", err)
	}
	return nil
}

// UpdatePassword hashes and stores a new password and records it in the history.
func (s *UserService) UpdatePassword(ctx context.Context, userID uint, newPassword string) error {
	ctx = ensureContext(ctx)
	if strings.TrimSpace(newPassword) == "" {
		return apperrors.NewBadRequest("new password is required")
	}

	hashed, err := crypto.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("user service: hash new password: %w", err)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.User{}).
			Where("id = ? AND deleted = ?", userID, false).
			Update("password", hashed)
		if result.Error != nil {
			return fmt.Errorf("user service: change password: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrUserNotFound
		}
		return s.RecordPasswordHistory(ctx, tx, userID, newPassword)
	})
}

// TouchLastAccess records site activity for the user.
func (s *UserService) TouchLastAccess(ctx context.Context, userID uint) error {
	err := s.db.WithContext(ensureContext(ctx)).
		Model(&models.User{}).
		Where("id = ?", userID).
		Update("last_access", s.now().Unix()).Error
	if err != nil {
		return fmt.Errorf("user service: update last access: %w", err)
	}
	return nil
}

// ListInactive returns non-deleted accounts of the given auth method that were
// last seen before the cutoff (epoch seconds), ordered by id. Accounts that
// never logged in are not included.
func (s *UserService) ListInactive(ctx context.Context, auth string, before int64) ([]models.User, error) {
	var users []models.User
	err := s.db.WithContext(ensureContext(ctx)).
		Where("deleted = ? AND auth = ? AND last_access > 0 AND last_access < ?", false, auth, before).
		Order("id ASC").
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("user service: list inactive users: %w", err)
	}
	return users, nil
}

// Delete marks the account deleted, frees its username and drops its
// preferences, role assignments, profile data and sessions.
func (s *UserService) Delete(ctx context.Context, user *models.User) error {
	ctx = ensureContext(ctx)
	if user == nil || user.ID == 0 {
		return ErrUserNotFound
	}

	now := s.now()
	sum := md5.Sum([]byte(user.Username))
	updates := map[string]any{
		"deleted":     true,
		"username":    truncate(fmt.Sprintf("%s.%d", user.Email, now.Unix()), 100),
		"email":       hex.EncodeToString(sum[:]),
		"email_lower": hex.EncodeToString(sum[:]),
		"password":    "",
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.User{}).Where("id = ? AND deleted = ?", user.ID, false).Updates(updates)
		if result.Error != nil {
			return fmt.Errorf("user service: delete user: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrUserNotFound
		}

		if s.prefs != nil {
			if err := s.prefs.DeleteAll(ctx, tx, user.ID); err != nil {
				return err
			}
		}
		for _, model := range []any{&models.RoleAssignment{}, &models.UserProfileData{}, &models.Session{}} {
			if err := tx.Where("user_id = ?", user.ID).Delete(model).Error; err != nil {
				return fmt.Errorf("user service: delete user data: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	id := user.ID
	recordEvent(s.events, ctx, EventEntry{
		Kind:   models.EventUserDeleted,
		UserID: &id,
		Payload: map[string]any{
			"username": user.Username,
			"auth":     user.Auth,
		},
	})
	return nil
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit]
}
