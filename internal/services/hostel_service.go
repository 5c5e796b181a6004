package services

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"hostelops/internal/database"
	"hostelops/internal/identity"
	"hostelops/internal/models"
	"hostelops/internal/scope"
	apperrors "hostelops/pkg/errors"
	"hostelops/pkg/pagination"

	"gorm.io/gorm"
)

// HostelService manages the tenant-isolation roots
type HostelService struct {
	clock
	db *gorm.DB
}

// HostelStats platform-wide hostel counters
type HostelStats struct {
	Total    int64 `json:"total"`
	Active   int64 `json:"active"`
	Inactive int64 `json:"inactive"`
	Deleted  int64 `json:"deleted"`
}

func NewHostelService(db *gorm.DB) *HostelService {
	return &HostelService{db: db}
}

// CreateHostelInput new hostel payload. Code cannot change afterwards.
type CreateHostelInput struct {
	Name     string  `json:"name"`
	Code     string  `json:"code"`
	Address  *string `json:"address"`
	City     *string `json:"city" validate:"omitempty,max=100"`
	Phone    *string `json:"phone" validate:"omitempty,max=20"`
	Email    *string `json:"email" validate:"omitempty,email,max=255"`
	Timezone string  `json:"timezone" validate:"omitempty,max=50"`
}

// ========== Validation ==========

// ValidateName counts runes so non-latin names measure correctly
func ValidateName(name string) bool {
	runeCount := utf8.RuneCountInString(strings.TrimSpace(name))
	return runeCount >= 2 && runeCount <= 100
}

// ValidateCode letters and digits only, 2-20 long
func ValidateCode(code string) bool {
	if len(code) < 2 || len(code) > 20 {
		return false
	}
	for _, r := range code {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return true
}

func validateHostelInput(in CreateHostelInput) error {
	if !ValidateName(in.Name) {
		return apperrors.Invalidf("hostel name must be 2-100 characters")
	}
	if !ValidateCode(in.Code) {
		return apperrors.Invalidf("hostel code must be 2-20 letters or digits")
	}
	return validateInput(in)
}

// ========== CRUD ==========

func (s *HostelService) Create(ctx context.Context, id *identity.Identity, in CreateHostelInput) (*models.Hostel, error) {
	if err := validateHostelInput(in); err != nil {
		return nil, err
	}
	if _, err := authorize(id, s.now(), scope.ActionCreate, scope.EntityHostel, nil); err != nil {
		return nil, err
	}

	hostel := &models.Hostel{
		Name:     strings.TrimSpace(in.Name),
		Code:     strings.ToUpper(in.Code),
		Address:  in.Address,
		City:     in.City,
		Phone:    in.Phone,
		Email:    in.Email,
		Timezone: in.Timezone,
		IsActive: true,
	}
	if hostel.Timezone == "" {
		hostel.Timezone = "Asia/Kolkata"
	}
	err := database.RunInTx(ctx, s.db, func(tx *gorm.DB) error {
		var count int64
		if err := tx.Unscoped().Model(&models.Hostel{}).Where("code = ?", hostel.Code).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return apperrors.Conflictf(apperrors.ReasonDuplicate, "hostel code %s already exists", hostel.Code)
		}
		if err := tx.Create(hostel).Error; err != nil {
			return duplicate(err, "hostel code %s already exists", hostel.Code)
		}
		return writeAudit(tx, id, hostel.ID, scope.EntityHostel, hostel.ID, models.AuditActionCreate, hostel)
	})
	if err != nil {
		return nil, err
	}
	return hostel, nil
}

// Get is addressable by id even when soft-deleted
func (s *HostelService) Get(ctx context.Context, id *identity.Identity, hostelID uint) (*models.Hostel, error) {
	if _, err := authorize(id, s.now(), scope.ActionRead, scope.EntityHostel, &hostelID); err != nil {
		if apperrors.ReasonOf(err) == apperrors.ReasonWrongHostel {
			return nil, apperrors.NotFoundf("hostel %d not found", hostelID)
		}
		return nil, err
	}
	var hostel models.Hostel
	if err := s.db.WithContext(ctx).Unscoped().First(&hostel, hostelID).Error; err != nil {
		return nil, notFound(err, "hostel %d not found", hostelID)
	}
	return &hostel, nil
}

// HostelFilter list filter
type HostelFilter struct {
	Keyword  string
	IsActive *bool
	Page     *pagination.PageParams
}

// List returns every live hostel to SUPER_ADMIN and the home hostel to everyone else
func (s *HostelService) List(ctx context.Context, id *identity.Identity, f HostelFilter) ([]models.Hostel, int64, error) {
	d, err := authorize(id, s.now(), scope.ActionList, scope.EntityHostel, nil)
	if err != nil {
		return nil, 0, err
	}

	q := inScope(s.db.WithContext(ctx).Model(&models.Hostel{}), d, "id")
	if f.Keyword != "" {
		pattern := fmt.Sprintf("%%%s%%", f.Keyword)
		q = q.Where("name LIKE ? OR code LIKE ?", pattern, pattern)
	}
	if f.IsActive != nil {
		q = q.Where("is_active = ?", *f.IsActive)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var hostels []models.Hostel
	if err := paginate(q, f.Page).Order("created_at DESC").Find(&hostels).Error; err != nil {
		return nil, 0, err
	}
	return hostels, total, nil
}

// UpdateHostelInput editable hostel fields; the code is not among them
type UpdateHostelInput struct {
	Name    *string `json:"name"`
	Address *string `json:"address"`
	City    *string `json:"city" validate:"omitempty,max=100"`
	Phone   *string `json:"phone" validate:"omitempty,max=20"`
	Email   *string `json:"email" validate:"omitempty,email,max=255"`
}

func (s *HostelService) Update(ctx context.Context, id *identity.Identity, hostelID uint, in UpdateHostelInput) (*models.Hostel, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	if in.Name != nil && !ValidateName(*in.Name) {
		return nil, apperrors.Invalidf("hostel name must be 2-100 characters")
	}
	if _, err := authorize(id, s.now(), scope.ActionUpdate, scope.EntityHostel, &hostelID); err != nil {
		return nil, err
	}

	var hostel models.Hostel
	err := database.RunInTx(ctx, s.db, func(tx *gorm.DB) error {
		if err := database.ForUpdate(tx).First(&hostel, hostelID).Error; err != nil {
			return notFound(err, "hostel %d not found", hostelID)
		}
		updates := map[string]interface{}{}
		if in.Name != nil {
			updates["name"] = strings.TrimSpace(*in.Name)
		}
		if in.Address != nil {
			updates["address"] = *in.Address
		}
		if in.City != nil {
			updates["city"] = *in.City
		}
		if in.Phone != nil {
			updates["phone"] = *in.Phone
		}
		if in.Email != nil {
			updates["email"] = *in.Email
		}
		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(&hostel).Updates(updates).Error; err != nil {
			return err
		}
		return writeAudit(tx, id, hostel.ID, scope.EntityHostel, hostel.ID, models.AuditActionUpdate, updates)
	})
	if err != nil {
		return nil, err
	}
	return &hostel, nil
}

// SetActive toggles the operational flag; it is independent of soft delete
func (s *HostelService) SetActive(ctx context.Context, id *identity.Identity, hostelID uint, active bool) (*models.Hostel, error) {
	if _, err := authorize(id, s.now(), scope.ActionAdmin, scope.EntityHostel, &hostelID); err != nil {
		return nil, err
	}

	var hostel models.Hostel
	err := database.RunInTx(ctx, s.db, func(tx *gorm.DB) error {
		if err := database.ForUpdate(tx).First(&hostel, hostelID).Error; err != nil {
			return notFound(err, "hostel %d not found", hostelID)
		}
		hostel.IsActive = active
		if err := tx.Model(&hostel).Update("is_active", active).Error; err != nil {
			return err
		}
		action := models.AuditActionActivate
		if !active {
			action = models.AuditActionUpdate
		}
		return writeAudit(tx, id, hostel.ID, scope.EntityHostel, hostel.ID, action, map[string]interface{}{"is_active": active})
	})
	if err != nil {
		return nil, err
	}
	return &hostel, nil
}

// GetStats counts hostels by state. SUPER_ADMIN only.
func (s *HostelService) GetStats(ctx context.Context, id *identity.Identity) (*HostelStats, error) {
	if _, err := authorize(id, s.now(), scope.ActionAdmin, scope.EntityHostel, nil); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	stats := &HostelStats{}
	if err := db.Model(&models.Hostel{}).Count(&stats.Total).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Hostel{}).Where("is_active = ?", true).Count(&stats.Active).Error; err != nil {
		return nil, err
	}
	stats.Inactive = stats.Total - stats.Active
	if err := db.Unscoped().Model(&models.Hostel{}).Where("deleted_at IS NOT NULL").Count(&stats.Deleted).Error; err != nil {
		return nil, err
	}
	return stats, nil
}
