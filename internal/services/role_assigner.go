package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"gorm.io/gorm"

	"github.com/charlesng35/authinvite/internal/models"
)

// RoleComponent tags assignments created by invitation signups.
const RoleComponent = "auth_invitation"

// ErrRoleNotFound indicates a configured role id does not exist.
var ErrRoleNotFound = errors.New("role assigner: role not found")

// RoleAssigner grants system roles to accounts.
type RoleAssigner struct {
	db *gorm.DB
}

// NewRoleAssigner constructs a RoleAssigner.
func NewRoleAssigner(db *gorm.DB) (*RoleAssigner, error) {
	if db == nil {
		return nil, errors.New("role assigner: db is required")
	}
	return &RoleAssigner{db: db}, nil
}

// ParseRoleIDs converts configured role identifiers into numeric ids. Blank
// and "0" entries mean no role and are skipped.
func ParseRoleIDs(ids []string) ([]uint, error) {
	result := make([]uint, 0, len(ids))
	for _, raw := range ids {
		if raw == "" || raw == "0" {
			continue
		}
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || id == 0 {
			if err == nil {
				err = strconv.ErrRange
			}
			return nil, fmt.Errorf("role assigner: invalid role id %q: %w", raw, err)
		}
		result = append(result, uint(id))
	}
	return result, nil
}

// Assign grants roleID to userID in the given context. Existing assignments are left untouched.
func (r *RoleAssigner) Assign(ctx context.Context, tx *gorm.DB, roleID, userID uint, scope string) error {
	if tx == nil {
		tx = r.db
	}
	tx = tx.WithContext(ensureContext(ctx))
	if scope == "" {
		scope = models.SystemContext
	}

	var count int64
	if err := tx.Model(&models.Role{}).Where("id = ?", roleID).Count(&count).Error; err != nil {
		return fmt.Errorf("role assigner: load role %d: %w", roleID, err)
	}
	if count == 0 {
		return fmt.Errorf("%w: %d", ErrRoleNotFound, roleID)
	}

	assignment := models.RoleAssignment{
		RoleID:    roleID,
		UserID:    userID,
		Context:   scope,
		Component: RoleComponent,
	}
	err := tx.Where(models.RoleAssignment{RoleID: roleID, UserID: userID, Context: scope}).
		FirstOrCreate(&assignment).Error
	if err != nil {
		return fmt.Errorf("role assigner: assign role %d: %w", roleID, err)
	}
	return nil
}

// AssignAll parses ids and assigns each role in the system context. Any
// failure aborts with the error so the surrounding transaction rolls back.
func (r *RoleAssigner) AssignAll(ctx context.Context, tx *gorm.DB, ids []string, userID uint) error {
	roleIDs, err := ParseRoleIDs(ids)
	if err != nil {
		return err
	}
	for _, id := range roleIDs {
		if err := r.Assign(ctx, tx, id, userID, models.SystemContext); err != nil {
			return err
		}
	}
	return nil
}

// RolesOf lists the role ids held by userID in the system context.
func (r *RoleAssigner) RolesOf(ctx context.Context, userID uint) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ensureContext(ctx)).
		Model(&models.RoleAssignment{}).
		Where("user_id = ? AND context = ?", userID, models.SystemContext).
		Order("role_id ASC").
		Pluck("role_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("role assigner: list roles: %w", err)
	}
	return ids, nil
}
