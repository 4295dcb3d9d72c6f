package dbhelper

import (
	"tryonapi/models"

	"gorm.io/gorm"
)

func SetupCleaner(db *gorm.DB) func() {
	return func() {
		db.Session(&gorm.Session{AllowGlobalUpdate: true}).Unscoped().Delete(&models.TryOnGeneration{})
		db.Session(&gorm.Session{AllowGlobalUpdate: true}).Unscoped().Delete(&models.Clothing{})
	}
}
