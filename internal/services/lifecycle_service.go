package services

import (
	"context"

	"hostelops/internal/database"
	"hostelops/internal/identity"
	"hostelops/internal/models"
	"hostelops/internal/scope"
	apperrors "hostelops/pkg/errors"
	"hostelops/pkg/logger"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// EntityRef names a soft-deletable row
type EntityRef struct {
	Entity scope.Entity `json:"entity"`
	ID     uint         `json:"id"`
}

// LifecycleService applies one soft-delete/restore policy to hostels, rooms,
// beds and tenants. Nothing cascades: children of a deleted parent stay as
// they are, and a restore never touches children.
type LifecycleService struct {
	clock
	db      *gorm.DB
	limiter *SubscriptionService
}

func NewLifecycleService(db *gorm.DB, limiter *SubscriptionService) *LifecycleService {
	return &LifecycleService{db: db, limiter: limiter}
}

// SoftDelete hides a row from default listings
func (s *LifecycleService) SoftDelete(ctx context.Context, id *identity.Identity, ref EntityRef) error {
	return s.apply(ctx, id, ref, scope.ActionDelete)
}

// Restore clears the deleted flag once the ownership chain is live
func (s *LifecycleService) Restore(ctx context.Context, id *identity.Identity, ref EntityRef) error {
	return s.apply(ctx, id, ref, scope.ActionRestore)
}

func (s *LifecycleService) apply(ctx context.Context, id *identity.Identity, ref EntityRef, action scope.Action) error {
	var target *uint
	if ref.Entity == scope.EntityHostel {
		target = &ref.ID
	}
	d, err := authorize(id, s.now(), action, ref.Entity, target)
	if err != nil {
		return err
	}

	var hostelID uint
	err = database.RunInTx(ctx, s.db, func(tx *gorm.DB) error {
		var err error
		switch ref.Entity {
		case scope.EntityHostel:
			hostelID, err = s.hostel(tx, ref.ID, action)
		case scope.EntityRoom:
			hostelID, err = s.room(tx, d, ref.ID, action)
		case scope.EntityBed:
			hostelID, err = s.bed(tx, d, ref.ID, action)
		case scope.EntityTenant:
			hostelID, err = s.tenant(tx, d, ref.ID, action)
		default:
			return apperrors.Invalidf("entity %s does not support soft delete", ref.Entity)
		}
		if err != nil {
			return err
		}
		auditAction := models.AuditActionDelete
		if action == scope.ActionRestore {
			auditAction = models.AuditActionRestore
		}
		return writeAudit(tx, id, hostelID, ref.Entity, ref.ID, auditAction, nil)
	})
	if err != nil {
		return err
	}

	logger.GetLogger().WithFields(logrus.Fields{
		"entity":    ref.Entity,
		"entity_id": ref.ID,
		"hostel_id": hostelID,
		"action":    action,
	}).Info("lifecycle change applied")
	return nil
}

func flagState(deleted bool, action scope.Action, entity scope.Entity, entityID uint) error {
	if action == scope.ActionDelete && deleted {
		return apperrors.Conflictf(apperrors.ReasonInvalidTransition, "%s %d is already deleted", entity, entityID)
	}
	if action == scope.ActionRestore && !deleted {
		return apperrors.Conflictf(apperrors.ReasonInvalidTransition, "%s %d is not deleted", entity, entityID)
	}
	return nil
}

func setDeleted(tx *gorm.DB, model interface{}, action scope.Action) error {
	if action == scope.ActionDelete {
		return tx.Delete(model).Error
	}
	return tx.Unscoped().Model(model).Update("deleted_at", nil).Error
}

func (s *LifecycleService) hostel(tx *gorm.DB, hostelID uint, action scope.Action) (uint, error) {
	var hostel models.Hostel
	if err := database.ForUpdate(tx.Unscoped()).First(&hostel, hostelID).Error; err != nil {
		return 0, notFound(err, "hostel %d not found", hostelID)
	}
	if err := flagState(hostel.IsDeleted(), action, scope.EntityHostel, hostel.ID); err != nil {
		return 0, err
	}
	return hostel.ID, setDeleted(tx, &hostel, action)
}

// hostelLive returns Conflict(ANCESTOR_DELETED) for a deleted hostel
func hostelLive(tx *gorm.DB, hostelID uint) error {
	var hostel models.Hostel
	if err := tx.Unscoped().Select("id", "deleted_at").First(&hostel, hostelID).Error; err != nil {
		return err
	}
	if hostel.IsDeleted() {
		return apperrors.Conflictf(apperrors.ReasonAncestorDeleted, "hostel %d is deleted", hostelID)
	}
	return nil
}

func (s *LifecycleService) room(tx *gorm.DB, d scope.Decision, roomID uint, action scope.Action) (uint, error) {
	var room models.Room
	if err := inScope(database.ForUpdate(tx.Unscoped()), d, "hostel_id").First(&room, roomID).Error; err != nil {
		return 0, notFound(err, "room %d not found", roomID)
	}
	if err := flagState(room.IsDeleted(), action, scope.EntityRoom, room.ID); err != nil {
		return 0, err
	}

	if action == scope.ActionDelete {
		var occupied int64
		err := tx.Model(&models.Bed{}).
			Where("room_id = ? AND status = ?", room.ID, models.BedStatusOccupied).
			Count(&occupied).Error
		if err != nil {
			return 0, err
		}
		if occupied > 0 {
			return 0, apperrors.Conflictf(apperrors.ReasonEntityOccupied, "room %s has %d occupied beds", room.Number, occupied)
		}
	} else {
		if err := hostelLive(tx, room.HostelID); err != nil {
			return 0, err
		}
		if err := s.limiter.CheckLimit(tx, room.HostelID, ResourceRooms, 1); err != nil {
			return 0, err
		}
	}
	return room.HostelID, setDeleted(tx, &room, action)
}

func (s *LifecycleService) bed(tx *gorm.DB, d scope.Decision, bedID uint, action scope.Action) (uint, error) {
	var bed models.Bed
	if err := inScope(database.ForUpdate(tx.Unscoped()), d, "hostel_id").First(&bed, bedID).Error; err != nil {
		return 0, notFound(err, "bed %d not found", bedID)
	}
	if err := flagState(bed.IsDeleted(), action, scope.EntityBed, bed.ID); err != nil {
		return 0, err
	}

	if action == scope.ActionDelete {
		if bed.IsOccupied() {
			return 0, apperrors.Conflictf(apperrors.ReasonEntityOccupied, "bed %d is occupied", bed.ID)
		}
	} else {
		var room models.Room
		if err := database.ForUpdate(tx.Unscoped()).First(&room, bed.RoomID).Error; err != nil {
			return 0, err
		}
		if room.IsDeleted() {
			return 0, apperrors.Conflictf(apperrors.ReasonAncestorDeleted, "room %d is deleted", room.ID)
		}
		if err := hostelLive(tx, bed.HostelID); err != nil {
			return 0, err
		}
		var live int64
		if err := tx.Model(&models.Bed{}).Where("room_id = ?", room.ID).Count(&live).Error; err != nil {
			return 0, err
		}
		if live >= int64(room.Capacity) {
			return 0, apperrors.Conflictf(apperrors.ReasonCapacityReached, "room %s already has %d of %d beds", room.Number, live, room.Capacity)
		}
	}
	return bed.HostelID, setDeleted(tx, &bed, action)
}

// tenant deletion also deactivates the login; restore reactivates it
func (s *LifecycleService) tenant(tx *gorm.DB, d scope.Decision, tenantID uint, action scope.Action) (uint, error) {
	var tenant models.TenantProfile
	if err := inScope(database.ForUpdate(tx.Unscoped()), d, "hostel_id").First(&tenant, tenantID).Error; err != nil {
		return 0, notFound(err, "tenant %d not found", tenantID)
	}
	if err := flagState(tenant.IsDeleted(), action, scope.EntityTenant, tenant.ID); err != nil {
		return 0, err
	}

	if action == scope.ActionDelete {
		if tenant.CurrentBedID != nil {
			return 0, apperrors.Conflictf(apperrors.ReasonEntityOccupied, "tenant %d still holds bed %d", tenant.ID, *tenant.CurrentBedID)
		}
	} else {
		if err := hostelLive(tx, tenant.HostelID); err != nil {
			return 0, err
		}
		if err := s.limiter.CheckLimit(tx, tenant.HostelID, ResourceTenants, 1); err != nil {
			return 0, err
		}
	}

	if err := setDeleted(tx, &tenant, action); err != nil {
		return 0, err
	}
	active := action == scope.ActionRestore
	if err := tx.Model(&models.User{}).Where("id = ?", tenant.UserID).Update("is_active", active).Error; err != nil {
		return 0, err
	}
	return tenant.HostelID, nil
}
