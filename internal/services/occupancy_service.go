package services

import (
	"context"
	"time"

	"hostelops/internal/database"
	"hostelops/internal/identity"
	"hostelops/internal/models"
	"hostelops/internal/scope"
	apperrors "hostelops/pkg/errors"
	"hostelops/pkg/logger"
	"hostelops/pkg/metrics"
	"hostelops/pkg/pagination"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// OccupancyService owns the room -> bed -> tenant assignment graph.
//
// Every transition locks the bed first and the tenant profile second, and
// writes both sides in one transaction.
type OccupancyService struct {
	clock
	db       *gorm.DB
	limiter  *SubscriptionService
	notifier Notifier
}

func NewOccupancyService(db *gorm.DB, limiter *SubscriptionService, notifier Notifier) *OccupancyService {
	return &OccupancyService{db: db, limiter: limiter, notifier: notifier}
}

// ========== Rooms and beds ==========

// CreateRoomInput new room payload
type CreateRoomInput struct {
	HostelID    *uint   `json:"hostel_id"`
	Number      string  `json:"number" validate:"required,max=50"`
	Floor       int     `json:"floor" validate:"min=0"`
	RoomType    string  `json:"room_type" validate:"required,oneof=SINGLE DOUBLE TRIPLE DORMITORY"`
	Capacity    int     `json:"capacity" validate:"required,min=1,max=50"`
	Description *string `json:"description" validate:"omitempty,max=500"`
}

func (s *OccupancyService) CreateRoom(ctx context.Context, id *identity.Identity, in CreateRoomInput) (*models.Room, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	d, err := authorize(id, s.now(), scope.ActionCreate, scope.EntityRoom, in.HostelID)
	if err != nil {
		return nil, err
	}
	hostelID, err := requireHostel(d)
	if err != nil {
		return nil, err
	}

	room := &models.Room{
		HostelID:    hostelID,
		Number:      in.Number,
		Floor:       in.Floor,
		RoomType:    in.RoomType,
		Capacity:    in.Capacity,
		Description: in.Description,
	}
	err = database.RunInTx(ctx, s.db, func(tx *gorm.DB) error {
		if err := s.limiter.CheckLimit(tx, hostelID, ResourceRooms, 1); err != nil {
			return err
		}
		var clash int64
		if err := tx.Unscoped().Model(&models.Room{}).Where("hostel_id = ? AND number = ?", hostelID, in.Number).Count(&clash).Error; err != nil {
			return err
		}
		if clash > 0 {
			return apperrors.Conflictf(apperrors.ReasonDuplicate, "room %s already exists in this hostel", in.Number)
		}
		if err := tx.Create(room).Error; err != nil {
			return duplicate(err, "room %s already exists in this hostel", in.Number)
		}
		return writeAudit(tx, id, hostelID, scope.EntityRoom, room.ID, models.AuditActionCreate, room)
	})
	if err != nil {
		return nil, err
	}
	return room, nil
}

// CreateBedInput new bed payload
type CreateBedInput struct {
	RoomID uint   `json:"room_id" validate:"required"`
	Number string `json:"number" validate:"required,max=10"`
}

// CreateBed adds a bed to a live room. A room holds at most Capacity live beds.
func (s *OccupancyService) CreateBed(ctx context.Context, id *identity.Identity, in CreateBedInput) (*models.Bed, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	d, err := authorize(id, s.now(), scope.ActionCreate, scope.EntityBed, nil)
	if err != nil {
		return nil, err
	}

	var bed models.Bed
	err = database.RunInTx(ctx, s.db, func(tx *gorm.DB) error {
		var room models.Room
		q := inScope(database.ForUpdate(tx.Unscoped()), d, "hostel_id")
		if err := q.First(&room, in.RoomID).Error; err != nil {
			return notFound(err, "room %d not found", in.RoomID)
		}
		if room.IsDeleted() {
			return apperrors.Conflictf(apperrors.ReasonAncestorDeleted, "room %d is deleted", room.ID)
		}
		if _, err := lockLiveHostel(tx, room.HostelID); err != nil {
			return err
		}

		var count int64
		if err := tx.Model(&models.Bed{}).Where("room_id = ?", room.ID).Count(&count).Error; err != nil {
			return err
		}
		if count >= int64(room.Capacity) {
			return apperrors.Conflictf(apperrors.ReasonCapacityReached, "room %s already has %d of %d beds", room.Number, count, room.Capacity).
				WithDetail("current", count).
				WithDetail("capacity", room.Capacity)
		}

		bed = models.Bed{
			RoomID:   room.ID,
			HostelID: room.HostelID,
			Number:   in.Number,
			Status:   models.BedStatusFree,
		}
		if err := tx.Create(&bed).Error; err != nil {
			return err
		}
		return writeAudit(tx, id, room.HostelID, scope.EntityBed, bed.ID, models.AuditActionCreate, bed)
	})
	if err != nil {
		return nil, err
	}
	return &bed, nil
}

// RoomFilter list filter
type RoomFilter struct {
	HostelID *uint
	RoomType string
	Page     *pagination.PageParams
}

// ListRooms excludes deleted rooms and rooms of deleted hostels
func (s *OccupancyService) ListRooms(ctx context.Context, id *identity.Identity, f RoomFilter) ([]models.Room, int64, error) {
	d, err := authorize(id, s.now(), scope.ActionList, scope.EntityRoom, f.HostelID)
	if err != nil {
		return nil, 0, err
	}

	q := s.db.WithContext(ctx).Model(&models.Room{}).
		Joins("JOIN hostels ON hostels.id = rooms.hostel_id AND hostels.deleted_at IS NULL")
	q = inScope(q, d, "rooms.hostel_id")
	if f.RoomType != "" {
		q = q.Where("rooms.room_type = ?", f.RoomType)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rooms []models.Room
	if err := paginate(q, f.Page).Order("rooms.hostel_id, rooms.number").Find(&rooms).Error; err != nil {
		return nil, 0, err
	}
	return rooms, total, nil
}

// BedFilter list filter
type BedFilter struct {
	HostelID *uint
	RoomID   *uint
	Status   string
	Page     *pagination.PageParams
}

// ListBeds excludes deleted beds and beds whose room or hostel is deleted
func (s *OccupancyService) ListBeds(ctx context.Context, id *identity.Identity, f BedFilter) ([]models.Bed, int64, error) {
	d, err := authorize(id, s.now(), scope.ActionList, scope.EntityBed, f.HostelID)
	if err != nil {
		return nil, 0, err
	}

	q := s.db.WithContext(ctx).Model(&models.Bed{}).
		Joins("JOIN rooms ON rooms.id = beds.room_id AND rooms.deleted_at IS NULL").
		Joins("JOIN hostels ON hostels.id = beds.hostel_id AND hostels.deleted_at IS NULL")
	q = inScope(q, d, "beds.hostel_id")
	if f.RoomID != nil {
		q = q.Where("beds.room_id = ?", *f.RoomID)
	}
	if f.Status != "" {
		q = q.Where("beds.status = ?", f.Status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var beds []models.Bed
	if err := paginate(q, f.Page).Order("beds.room_id, beds.number").Find(&beds).Error; err != nil {
		return nil, 0, err
	}
	return beds, total, nil
}

// GetBed is addressable by id even when soft-deleted
func (s *OccupancyService) GetBed(ctx context.Context, id *identity.Identity, bedID uint) (*models.Bed, error) {
	d, err := authorize(id, s.now(), scope.ActionRead, scope.EntityBed, nil)
	if err != nil {
		return nil, err
	}
	var bed models.Bed
	if err := inScope(s.db.WithContext(ctx).Unscoped(), d, "hostel_id").First(&bed, bedID).Error; err != nil {
		return nil, notFound(err, "bed %d not found", bedID)
	}
	return &bed, nil
}

// ========== Transitions ==========

// AssignBed FREE -> OCCUPIED
func (s *OccupancyService) AssignBed(ctx context.Context, id *identity.Identity, bedID, tenantID uint) (*models.Bed, error) {
	return s.assign(ctx, id, bedID, tenantID, nil)
}

// CheckIn assigns and stamps check_in_date. A nil date means now.
func (s *OccupancyService) CheckIn(ctx context.Context, id *identity.Identity, bedID, tenantID uint, date *time.Time) (*models.Bed, error) {
	at := s.now()
	if date != nil {
		at = *date
	}
	return s.assign(ctx, id, bedID, tenantID, &at)
}

// VacateBed OCCUPIED -> FREE
func (s *OccupancyService) VacateBed(ctx context.Context, id *identity.Identity, bedID uint) (*models.Bed, error) {
	return s.vacate(ctx, id, bedID, nil, nil)
}

// CheckOut vacates and stamps check_out_date. The tenant must hold bedID.
func (s *OccupancyService) CheckOut(ctx context.Context, id *identity.Identity, bedID, tenantID uint, date *time.Time) (*models.Bed, error) {
	at := s.now()
	if date != nil {
		at = *date
	}
	return s.vacate(ctx, id, bedID, &tenantID, &at)
}

// lockBed locks a live bed and checks its room and hostel are live too
func lockBed(tx *gorm.DB, d scope.Decision, bedID uint) (*models.Bed, error) {
	var bed models.Bed
	if err := inScope(database.ForUpdate(tx), d, "hostel_id").First(&bed, bedID).Error; err != nil {
		return nil, notFound(err, "bed %d not found", bedID)
	}
	var room models.Room
	if err := tx.Unscoped().Select("id", "deleted_at").First(&room, bed.RoomID).Error; err != nil {
		return nil, err
	}
	if room.IsDeleted() {
		return nil, apperrors.Conflictf(apperrors.ReasonAncestorDeleted, "room %d of bed %d is deleted", room.ID, bed.ID)
	}
	var hostel models.Hostel
	if err := tx.Unscoped().Select("id", "deleted_at").First(&hostel, bed.HostelID).Error; err != nil {
		return nil, err
	}
	if hostel.IsDeleted() {
		return nil, apperrors.Conflictf(apperrors.ReasonAncestorDeleted, "hostel %d is deleted", hostel.ID)
	}
	return &bed, nil
}

func lockTenant(tx *gorm.DB, d scope.Decision, tenantID uint) (*models.TenantProfile, error) {
	var tenant models.TenantProfile
	if err := inScope(database.ForUpdate(tx), d, "hostel_id").First(&tenant, tenantID).Error; err != nil {
		return nil, notFound(err, "tenant %d not found", tenantID)
	}
	return &tenant, nil
}

func (s *OccupancyService) assign(ctx context.Context, id *identity.Identity, bedID, tenantID uint, checkIn *time.Time) (*models.Bed, error) {
	d, err := authorize(id, s.now(), scope.ActionUpdate, scope.EntityBed, nil)
	if err != nil {
		return nil, err
	}

	var (
		bed    *models.Bed
		tenant *models.TenantProfile
		box    outbox
	)
	err = database.RunInTx(ctx, s.db, func(tx *gorm.DB) error {
		box.reset()
		var err error
		if bed, err = lockBed(tx, d, bedID); err != nil {
			return err
		}
		if tenant, err = lockTenant(tx, d, tenantID); err != nil {
			return err
		}
		if tenant.HostelID != bed.HostelID {
			return apperrors.Conflictf(apperrors.ReasonWrongHostel, "tenant %d and bed %d belong to different hostels", tenant.ID, bed.ID)
		}
		if bed.IsOccupied() {
			return apperrors.Conflictf(apperrors.ReasonBedOccupied, "bed %d is occupied", bed.ID)
		}
		if tenant.CurrentBedID != nil {
			return apperrors.Conflictf(apperrors.ReasonTenantHasBed, "tenant %d already holds bed %d", tenant.ID, *tenant.CurrentBedID)
		}

		// conditional writes keep the transition safe where row locks are unavailable
		res := tx.Model(&models.Bed{}).
			Where("id = ? AND status = ? AND current_tenant_id IS NULL", bed.ID, models.BedStatusFree).
			Updates(map[string]interface{}{"status": models.BedStatusOccupied, "current_tenant_id": tenant.ID})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return apperrors.Conflictf(apperrors.ReasonBedOccupied, "bed %d is occupied", bed.ID)
		}

		tenantUpdates := map[string]interface{}{"current_bed_id": bed.ID}
		if checkIn != nil {
			tenantUpdates["check_in_date"] = *checkIn
			tenantUpdates["check_out_date"] = nil
		}
		res = tx.Model(&models.TenantProfile{}).
			Where("id = ? AND current_bed_id IS NULL", tenant.ID).
			Updates(tenantUpdates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return apperrors.Conflictf(apperrors.ReasonTenantHasBed, "tenant %d already holds a bed", tenant.ID)
		}

		bed.Status = models.BedStatusOccupied
		bed.CurrentTenantID = &tenant.ID
		if err := writeAudit(tx, id, bed.HostelID, scope.EntityBed, bed.ID, models.AuditActionAssign,
			map[string]interface{}{"tenant_id": tenant.ID, "check_in": checkIn}); err != nil {
			return err
		}
		box.add(tenant.UserID, Event{
			Type:     EventBedAssigned,
			HostelID: bed.HostelID,
			EntityID: bed.ID,
			Data:     map[string]interface{}{"bed_number": bed.Number, "room_id": bed.RoomID},
		})
		return nil
	})
	if err != nil {
		metrics.OccupancyTransitions.WithLabelValues("assign", apperrors.KindOf(err).String()).Inc()
		return nil, err
	}
	metrics.OccupancyTransitions.WithLabelValues("assign", "ok").Inc()
	logger.GetLogger().WithFields(logrus.Fields{
		"hostel_id": bed.HostelID,
		"bed_id":    bed.ID,
		"tenant_id": tenant.ID,
	}).Info("bed assigned")

	box.flush(ctx, s.notifier)
	return bed, nil
}

func (s *OccupancyService) vacate(ctx context.Context, id *identity.Identity, bedID uint, expectTenant *uint, checkOut *time.Time) (*models.Bed, error) {
	d, err := authorize(id, s.now(), scope.ActionUpdate, scope.EntityBed, nil)
	if err != nil {
		return nil, err
	}

	var (
		bed *models.Bed
		box outbox
	)
	err = database.RunInTx(ctx, s.db, func(tx *gorm.DB) error {
		box.reset()
		var err error
		if bed, err = lockBed(tx, d, bedID); err != nil {
			return err
		}

		var tenant *models.TenantProfile
		if expectTenant != nil {
			if tenant, err = lockTenant(tx, d, *expectTenant); err != nil {
				return err
			}
			if tenant.CurrentBedID == nil || *tenant.CurrentBedID != bed.ID {
				return apperrors.Conflictf(apperrors.ReasonStaleBed, "tenant %d does not hold bed %d", tenant.ID, bed.ID)
			}
		}
		if !bed.IsOccupied() || bed.CurrentTenantID == nil {
			return apperrors.Conflictf(apperrors.ReasonBedFree, "bed %d is already free", bed.ID)
		}
		occupant := *bed.CurrentTenantID
		if tenant == nil {
			tenant = &models.TenantProfile{}
			if err := database.ForUpdate(tx.Unscoped()).First(tenant, occupant).Error; err != nil {
				return err
			}
		} else if tenant.ID != occupant {
			return apperrors.Conflictf(apperrors.ReasonStaleBed, "bed %d is held by another tenant", bed.ID)
		}

		res := tx.Model(&models.Bed{}).
			Where("id = ? AND status = ? AND current_tenant_id = ?", bed.ID, models.BedStatusOccupied, occupant).
			Updates(map[string]interface{}{"status": models.BedStatusFree, "current_tenant_id": nil})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return apperrors.Conflictf(apperrors.ReasonBedFree, "bed %d is already free", bed.ID)
		}

		tenantUpdates := map[string]interface{}{"current_bed_id": nil}
		if checkOut != nil {
			tenantUpdates["check_out_date"] = *checkOut
		}
		res = tx.Unscoped().Model(&models.TenantProfile{}).
			Where("id = ? AND current_bed_id = ?", occupant, bed.ID).
			Updates(tenantUpdates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return apperrors.Conflictf(apperrors.ReasonStaleBed, "tenant %d does not reference bed %d", occupant, bed.ID)
		}

		bed.Status = models.BedStatusFree
		bed.CurrentTenantID = nil
		if err := writeAudit(tx, id, bed.HostelID, scope.EntityBed, bed.ID, models.AuditActionVacate,
			map[string]interface{}{"tenant_id": occupant, "check_out": checkOut}); err != nil {
			return err
		}
		box.add(tenant.UserID, Event{
			Type:     EventBedVacated,
			HostelID: bed.HostelID,
			EntityID: bed.ID,
			Data:     map[string]interface{}{"bed_number": bed.Number},
		})
		return nil
	})
	if err != nil {
		metrics.OccupancyTransitions.WithLabelValues("vacate", apperrors.KindOf(err).String()).Inc()
		return nil, err
	}
	metrics.OccupancyTransitions.WithLabelValues("vacate", "ok").Inc()
	logger.GetLogger().WithFields(logrus.Fields{
		"hostel_id": bed.HostelID,
		"bed_id":    bed.ID,
	}).Info("bed vacated")

	box.flush(ctx, s.notifier)
	return bed, nil
}
