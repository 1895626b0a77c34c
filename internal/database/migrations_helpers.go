package database

import (
	"gorm.io/gorm"

	"github.com/charlesng35/authinvite/internal/models"
)

// seedRoles creates missing roles in order so a fresh install gets stable ids.
func seedRoles(db *gorm.DB, roles []models.Role) error {
	for _, role := range roles {
		if err := db.Where(models.Role{ShortName: role.ShortName}).Attrs(role).FirstOrCreate(&models.Role{}).Error; err != nil {
			return err
		}
	}
	return nil
}

// backfillEmailLower fills the lookup column for rows written before it existed.
func backfillEmailLower(db *gorm.DB) error {
	var users []models.User
	return db.Select("id", "email").
		Where("email_lower = ? AND email <> ?", "", "").
		FindInBatches(&users, 500, func(*gorm.DB, int) error {
			for _, user := range users {
				if err := db.Model(&models.User{}).Where("id = ?", user.ID).
					UpdateColumn("email_lower", models.NormalizeEmail(user.Email)).Error; err != nil {
					return err
				}
			}
			return nil
		}).Error
}
