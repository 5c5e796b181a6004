package database

import (
	"hostelops/internal/models"
	"hostelops/pkg/logger"

	"gorm.io/gorm"
)

// AllModels every persisted entity, in dependency order
func AllModels() []interface{} {
	return []interface{}{
		&models.Hostel{},
		&models.User{},
		&models.Plan{},
		&models.Subscription{},
		&models.Room{},
		&models.Bed{},
		&models.TenantProfile{},
		&models.Invoice{},
		&models.Payment{},
		&models.Complaint{},
		&models.LeaveApplication{},
		&models.Notice{},
		&models.MessMenu{},
		&models.AuditLog{},
		&models.Notification{},
	}
}

// Migrate runs the schema migration on the shared DB
func Migrate() error {
	return MigrateDB(DB)
}

// MigrateDB runs the schema migration on db
func MigrateDB(db *gorm.DB) error {
	appLogger := logger.GetLogger()
	appLogger.Info("Starting database migration...")

	if err := db.AutoMigrate(AllModels()...); err != nil {
		appLogger.Errorf("Database migration failed: %v", err)
		return err
	}

	appLogger.Info("Database migration completed successfully")
	return nil
}
