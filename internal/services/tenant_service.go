package services

import (
	"context"
	"fmt"
	"time"

	"hostelops/internal/database"
	"hostelops/internal/identity"
	"hostelops/internal/models"
	"hostelops/internal/scope"
	apperrors "hostelops/pkg/errors"
	"hostelops/pkg/metrics"
	"hostelops/pkg/pagination"

	"gorm.io/gorm"
)

// TenantService manages tenant residency records and visitor accounts
type TenantService struct {
	clock
	db      *gorm.DB
	limiter *SubscriptionService
}

func NewTenantService(db *gorm.DB, limiter *SubscriptionService) *TenantService {
	return &TenantService{db: db, limiter: limiter}
}

// CreateTenantInput creates the TENANT login and its profile together
type CreateTenantInput struct {
	HostelID      *uint   `json:"hostel_id"`
	Username      string  `json:"username" validate:"required,min=3,max=50,alphanum"`
	Password      string  `json:"password" validate:"required,min=8,max=72"`
	FullName      string  `json:"full_name" validate:"required,max=100"`
	Email         *string `json:"email" validate:"omitempty,email,max=100"`
	Phone         *string `json:"phone" validate:"omitempty,max=20"`
	GuardianName  *string `json:"guardian_name" validate:"omitempty,max=100"`
	GuardianPhone *string `json:"guardian_phone" validate:"omitempty,max=20"`
}

func (s *TenantService) Create(ctx context.Context, id *identity.Identity, in CreateTenantInput) (*models.TenantProfile, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	d, err := authorize(id, s.now(), scope.ActionCreate, scope.EntityTenant, in.HostelID)
	if err != nil {
		return nil, err
	}
	hostelID, err := requireHostel(d)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Username: in.Username,
		Email:    in.Email,
		Phone:    in.Phone,
		Name:     in.FullName,
		Role:     models.RoleTenant,
		HostelID: &hostelID,
		IsActive: true,
	}
	if err := user.SetPassword(in.Password); err != nil {
		return nil, err
	}

	var profile models.TenantProfile
	err = database.RunInTx(ctx, s.db, func(tx *gorm.DB) error {
		if err := s.limiter.CheckLimit(tx, hostelID, ResourceTenants, 1); err != nil {
			return err
		}
		if err := tx.Create(user).Error; err != nil {
			return duplicate(err, "username or email already taken")
		}
		profile = models.TenantProfile{
			UserID:        user.ID,
			HostelID:      hostelID,
			FullName:      in.FullName,
			Phone:         in.Phone,
			GuardianName:  in.GuardianName,
			GuardianPhone: in.GuardianPhone,
		}
		if err := tx.Create(&profile).Error; err != nil {
			return err
		}
		profile.User = user
		return writeAudit(tx, id, hostelID, scope.EntityTenant, profile.ID, models.AuditActionCreate,
			map[string]interface{}{"user_id": user.ID, "username": user.Username})
	})
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// Get is addressable by id even when soft-deleted
func (s *TenantService) Get(ctx context.Context, id *identity.Identity, tenantID uint) (*models.TenantProfile, error) {
	d, err := authorize(id, s.now(), scope.ActionRead, scope.EntityTenant, nil)
	if err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	q := inScope(db.Unscoped().Preload("User"), d, "hostel_id")
	if d.SelfOnly {
		q = q.Where("user_id = ?", id.UserID)
	}
	var profile models.TenantProfile
	if err := q.First(&profile, tenantID).Error; err != nil {
		return nil, notFound(err, "tenant %d not found", tenantID)
	}
	return &profile, nil
}

// TenantFilter list filter
type TenantFilter struct {
	HostelID *uint
	Keyword  string
	HasBed   *bool
	Page     *pagination.PageParams
}

// List excludes deleted profiles and profiles of deleted hostels. A
// HOSTEL_ADMIN without HostelID gets their own hostel.
func (s *TenantService) List(ctx context.Context, id *identity.Identity, f TenantFilter) ([]models.TenantProfile, int64, error) {
	d, err := authorize(id, s.now(), scope.ActionList, scope.EntityTenant, f.HostelID)
	if err != nil {
		return nil, 0, err
	}

	q := s.db.WithContext(ctx).Model(&models.TenantProfile{}).
		Joins("JOIN hostels ON hostels.id = tenant_profiles.hostel_id AND hostels.deleted_at IS NULL")
	q = inScope(q, d, "tenant_profiles.hostel_id")
	if d.SelfOnly {
		q = q.Where("tenant_profiles.user_id = ?", id.UserID)
	}
	if f.Keyword != "" {
		pattern := fmt.Sprintf("%%%s%%", f.Keyword)
		q = q.Where("tenant_profiles.full_name LIKE ? OR tenant_profiles.phone LIKE ?", pattern, pattern)
	}
	if f.HasBed != nil {
		if *f.HasBed {
			q = q.Where("tenant_profiles.current_bed_id IS NOT NULL")
		} else {
			q = q.Where("tenant_profiles.current_bed_id IS NULL")
		}
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var profiles []models.TenantProfile
	if err := paginate(q, f.Page).Order("tenant_profiles.id").Find(&profiles).Error; err != nil {
		return nil, 0, err
	}
	return profiles, total, nil
}

// ========== Visitors ==========

// CreateVisitorInput short-lived read-only account
type CreateVisitorInput struct {
	HostelID     *uint  `json:"hostel_id"`
	Username     string `json:"username" validate:"required,min=3,max=50,alphanum"`
	Password     string `json:"password" validate:"required,min=8,max=72"`
	Name         string `json:"name" validate:"required,max=100"`
	DurationDays int    `json:"duration_days" validate:"required,min=1,max=365"`
}

func (s *TenantService) CreateVisitor(ctx context.Context, id *identity.Identity, in CreateVisitorInput) (*models.User, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	d, err := authorize(id, s.now(), scope.ActionCreate, scope.EntityVisitor, in.HostelID)
	if err != nil {
		return nil, err
	}
	hostelID, err := requireHostel(d)
	if err != nil {
		return nil, err
	}

	expires := s.now().Add(time.Duration(in.DurationDays) * 24 * time.Hour)
	user := &models.User{
		Username:         in.Username,
		Name:             in.Name,
		Role:             models.RoleVisitor,
		HostelID:         &hostelID,
		IsActive:         true,
		VisitorExpiresAt: &expires,
	}
	if err := user.SetPassword(in.Password); err != nil {
		return nil, err
	}

	err = database.RunInTx(ctx, s.db, func(tx *gorm.DB) error {
		if _, err := lockLiveHostel(tx, hostelID); err != nil {
			return err
		}
		if err := tx.Create(user).Error; err != nil {
			return duplicate(err, "username %s already taken", in.Username)
		}
		return writeAudit(tx, id, hostelID, scope.EntityVisitor, user.ID, models.AuditActionCreate,
			map[string]interface{}{"username": user.Username, "expires_at": expires})
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// ExtendVisitor pushes the expiry out by days from the later of now and the
// current expiry, reactivating a lapsed account.
func (s *TenantService) ExtendVisitor(ctx context.Context, id *identity.Identity, userID uint, days int) (*models.User, error) {
	if days < 1 || days > 365 {
		return nil, apperrors.Invalidf("days must be between 1 and 365")
	}
	d, err := authorize(id, s.now(), scope.ActionUpdate, scope.EntityVisitor, nil)
	if err != nil {
		return nil, err
	}
	now := s.now()

	var user models.User
	err = database.RunInTx(ctx, s.db, func(tx *gorm.DB) error {
		q := inScope(database.ForUpdate(tx), d, "hostel_id").Where("role = ?", models.RoleVisitor)
		if err := q.First(&user, userID).Error; err != nil {
			return notFound(err, "visitor %d not found", userID)
		}
		base := now
		if user.VisitorExpiresAt != nil && user.VisitorExpiresAt.After(now) {
			base = *user.VisitorExpiresAt
		}
		expires := base.Add(time.Duration(days) * 24 * time.Hour)
		user.VisitorExpiresAt = &expires
		user.IsActive = true
		if err := tx.Model(&user).Select("visitor_expires_at", "is_active").Updates(&user).Error; err != nil {
			return err
		}
		return writeAudit(tx, id, *user.HostelID, scope.EntityVisitor, user.ID, models.AuditActionUpdate,
			map[string]interface{}{"expires_at": expires})
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// DeactivateExpiredVisitors disables visitor logins past their expiry
func (s *TenantService) DeactivateExpiredVisitors(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).Model(&models.User{}).
		Where("role = ? AND is_active = ? AND visitor_expires_at <= ?", models.RoleVisitor, true, s.now()).
		Update("is_active", false)
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected > 0 {
		metrics.SweepUpdates.WithLabelValues("visitor_expiry").Add(float64(result.RowsAffected))
	}
	return result.RowsAffected, nil
}
