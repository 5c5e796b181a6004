package main

import (
	"errors"
	"fmt"

	"hostelops/internal/models"
	"hostelops/pkg/config"
	"hostelops/pkg/logger"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func intPtr(v int) *int { return &v }

// defaultPlans is the starting catalogue. FREE mirrors the free-tier
// fallback so it can be assigned explicitly.
func defaultPlans() []models.Plan {
	return []models.Plan{
		{
			Name:       "Free",
			Tier:       models.PlanTierFree,
			MaxTenants: intPtr(10),
			MaxRooms:   intPtr(5),
			Features:   datatypes.JSONMap{},
			IsActive:   true,
		},
		{
			Name:       "Standard",
			Tier:       models.PlanTierStandard,
			MaxTenants: intPtr(100),
			MaxRooms:   intPtr(40),
			Features: datatypes.JSONMap{
				models.FeaturePayments: true,
				models.FeatureMess:     true,
			},
			IsActive: true,
		},
		{
			Name: "Premium",
			Tier: models.PlanTierPremium,
			Features: datatypes.JSONMap{
				models.FeaturePayments:  true,
				models.FeatureMess:      true,
				models.FeatureAnalytics: true,
			},
			IsActive: true,
		},
	}
}

// seedData is idempotent
func seedData(db *gorm.DB, seed config.SeedConfig) error {
	appLogger := logger.GetLogger()
	appLogger.Info("Starting seed data initialization...")

	if err := createDefaultPlans(db); err != nil {
		return fmt.Errorf("create default plans: %w", err)
	}
	if err := createSuperAdmin(db, seed); err != nil {
		return fmt.Errorf("create super admin: %w", err)
	}

	appLogger.Info("Seed data initialization completed successfully")
	return nil
}

func createDefaultPlans(db *gorm.DB) error {
	for _, plan := range defaultPlans() {
		var existing models.Plan
		err := db.Where("tier = ?", plan.Tier).First(&existing).Error
		if err == nil {
			logger.GetLogger().Infof("plan %s exists, skipping", plan.Tier)
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		plan := plan
		if err := db.Create(&plan).Error; err != nil {
			return err
		}
		logger.GetLogger().Infof("created plan %s", plan.Tier)
	}
	return nil
}

func createSuperAdmin(db *gorm.DB, seed config.SeedConfig) error {
	var count int64
	if err := db.Model(&models.User{}).Where("role = ?", models.RoleSuperAdmin).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		logger.GetLogger().Info("super admin exists, skipping")
		return nil
	}

	admin := &models.User{
		Username: seed.AdminUsername,
		Name:     "Platform Admin",
		Role:     models.RoleSuperAdmin,
		IsActive: true,
	}
	if seed.AdminEmail != "" {
		email := seed.AdminEmail
		admin.Email = &email
	}
	if err := admin.SetPassword(seed.AdminPassword); err != nil {
		return err
	}
	if err := db.Create(admin).Error; err != nil {
		return err
	}

	logger.GetLogger().Warnf("created super admin %q, change the seed password", admin.Username)
	return nil
}
