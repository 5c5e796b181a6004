package services

import (
	"encoding/json"
	"errors"
	"time"

	"hostelops/internal/database"
	"hostelops/internal/identity"
	"hostelops/internal/models"
	"hostelops/internal/scope"
	apperrors "hostelops/pkg/errors"
	"hostelops/pkg/pagination"

	"github.com/go-playground/validator/v10"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var validate = validator.New()

// validateInput runs struct tags before any transaction starts
func validateInput(in interface{}) error {
	if err := validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return apperrors.Invalidf("field %s failed on %s", fe.Field(), fe.Tag()).WithCause(err)
		}
		return apperrors.Invalidf("invalid input").WithCause(err)
	}
	return nil
}

// clock is embedded by every service so tests can pin time
type clock struct {
	nowFn func() time.Time
}

func (c *clock) now() time.Time {
	if c.nowFn == nil {
		return time.Now()
	}
	return c.nowFn()
}

// SetClock overrides the time source
func (c *clock) SetClock(fn func() time.Time) {
	c.nowFn = fn
}

// authorize runs the scope resolver. Every service entry point calls it
// before reading or writing.
func authorize(id *identity.Identity, now time.Time, action scope.Action, entity scope.Entity, target *uint) (scope.Decision, error) {
	if id == nil {
		return scope.Decision{}, apperrors.Deniedf(apperrors.ReasonRoleNotPermitted, "missing identity")
	}
	d := scope.Resolve(id, scope.Request{Action: action, Entity: entity, TargetHostelID: target}, now)
	if err := d.Err(); err != nil {
		return d, err
	}
	return d, nil
}

// requireHostel returns the decision's hostel, or Invalid when an
// unrestricted caller did not name one.
func requireHostel(d scope.Decision) (uint, error) {
	if d.Hostel() == 0 {
		return 0, apperrors.Invalidf("hostel_id is required")
	}
	return d.Hostel(), nil
}

// inScope narrows a query to the decision's hostel
func inScope(q *gorm.DB, d scope.Decision, column string) *gorm.DB {
	if d.HostelID != nil {
		return q.Where(column+" = ?", *d.HostelID)
	}
	return q
}

// notFound converts gorm's miss into NotFound; other errors pass through
func notFound(err error, format string, args ...interface{}) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.NotFoundf(format, args...)
	}
	return err
}

// lockLiveHostel locks the hostel row for the rest of the transaction.
// Count-based limit checks serialize on this lock.
func lockLiveHostel(tx *gorm.DB, hostelID uint) (*models.Hostel, error) {
	var hostel models.Hostel
	if err := database.ForUpdate(tx.Unscoped()).First(&hostel, hostelID).Error; err != nil {
		return nil, notFound(err, "hostel %d not found", hostelID)
	}
	if hostel.IsDeleted() {
		return nil, apperrors.Conflictf(apperrors.ReasonAncestorDeleted, "hostel %d is deleted", hostelID)
	}
	return &hostel, nil
}

// selfProfile loads the caller's own tenant profile
func selfProfile(tx *gorm.DB, id *identity.Identity) (*models.TenantProfile, error) {
	var profile models.TenantProfile
	if err := tx.Where("user_id = ?", id.UserID).First(&profile).Error; err != nil {
		return nil, notFound(err, "tenant profile not found")
	}
	return &profile, nil
}

// narrowToSelf applies SelfOnly decisions to a query on tenant-owned rows
func narrowToSelf(tx *gorm.DB, q *gorm.DB, id *identity.Identity, d scope.Decision, column string) (*gorm.DB, error) {
	if !d.SelfOnly {
		return q, nil
	}
	profile, err := selfProfile(tx, id)
	if err != nil {
		return nil, err
	}
	return q.Where(column+" = ?", profile.ID), nil
}

// writeAudit records a state change inside the caller's transaction
func writeAudit(tx *gorm.DB, id *identity.Identity, hostelID uint, entity scope.Entity, entityID uint, action string, values interface{}) error {
	entry := &models.AuditLog{
		EntityType: string(entity),
		EntityID:   entityID,
		Action:     action,
	}
	if id != nil {
		userID := id.UserID
		entry.UserID = &userID
	}
	if hostelID != 0 {
		h := hostelID
		entry.HostelID = &h
	}
	if values != nil {
		data, err := json.Marshal(values)
		if err != nil {
			return err
		}
		entry.NewValues = datatypes.JSON(data)
	}
	return tx.Create(entry).Error
}

// paginate applies normalized page params
func paginate(q *gorm.DB, page *pagination.PageParams) *gorm.DB {
	if page == nil {
		page = &pagination.PageParams{}
	}
	page.Normalize()
	return q.Offset(page.GetOffset()).Limit(page.GetLimit())
}

// duplicate maps unique violations onto Conflict(DUPLICATE)
func duplicate(err error, format string, args ...interface{}) error {
	if err != nil && database.IsUniqueViolation(err) {
		return apperrors.Conflictf(apperrors.ReasonDuplicate, format, args...).WithCause(err)
	}
	return err
}
