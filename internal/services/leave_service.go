package services

import (
	"context"
	"time"

	"hostelops/internal/database"
	"hostelops/internal/identity"
	"hostelops/internal/models"
	"hostelops/internal/scope"
	apperrors "hostelops/pkg/errors"
	"hostelops/pkg/pagination"

	"gorm.io/gorm"
)

type LeaveService struct {
	clock
	db       *gorm.DB
	notifier Notifier
}

func NewLeaveService(db *gorm.DB, notifier Notifier) *LeaveService {
	return &LeaveService{db: db, notifier: notifier}
}

// ApplyLeaveInput leave request of the calling tenant
type ApplyLeaveInput struct {
	StartDate time.Time `json:"start_date" validate:"required"`
	EndDate   time.Time `json:"end_date" validate:"required"`
	Reason    string    `json:"reason" validate:"required,max=1000"`
}

func (s *LeaveService) Apply(ctx context.Context, id *identity.Identity, in ApplyLeaveInput) (*models.LeaveApplication, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	if in.EndDate.Before(in.StartDate) {
		return nil, apperrors.Invalidf("end_date must not be before start_date")
	}
	if _, err := authorize(id, s.now(), scope.ActionCreate, scope.EntityLeave, nil); err != nil {
		return nil, err
	}

	var leave models.LeaveApplication
	err := database.RunInTx(ctx, s.db, func(tx *gorm.DB) error {
		profile, err := selfProfile(tx, id)
		if err != nil {
			return err
		}
		var overlapping int64
		err = tx.Model(&models.LeaveApplication{}).
			Where("tenant_id = ? AND status IN ?", profile.ID, []string{models.LeaveStatusPending, models.LeaveStatusApproved}).
			Where("start_date <= ? AND end_date >= ?", in.EndDate, in.StartDate).
			Count(&overlapping).Error
		if err != nil {
			return err
		}
		if overlapping > 0 {
			return apperrors.Conflictf(apperrors.ReasonDuplicate, "an overlapping leave application already exists")
		}

		leave = models.LeaveApplication{
			TenantID:  profile.ID,
			HostelID:  profile.HostelID,
			StartDate: in.StartDate,
			EndDate:   in.EndDate,
			Reason:    in.Reason,
			Status:    models.LeaveStatusPending,
		}
		if err := tx.Create(&leave).Error; err != nil {
			return err
		}
		return writeAudit(tx, id, leave.HostelID, scope.EntityLeave, leave.ID, models.AuditActionCreate, nil)
	})
	if err != nil {
		return nil, err
	}
	return &leave, nil
}

// LeaveFilter list filter
type LeaveFilter struct {
	HostelID *uint
	Status   string
	Page     *pagination.PageParams
}

func (s *LeaveService) List(ctx context.Context, id *identity.Identity, f LeaveFilter) ([]models.LeaveApplication, int64, error) {
	d, err := authorize(id, s.now(), scope.ActionList, scope.EntityLeave, f.HostelID)
	if err != nil {
		return nil, 0, err
	}
	db := s.db.WithContext(ctx)
	q, err := narrowToSelf(db, inScope(db.Model(&models.LeaveApplication{}), d, "hostel_id"), id, d, "tenant_id")
	if err != nil {
		return nil, 0, err
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var leaves []models.LeaveApplication
	if err := paginate(q, f.Page).Order("start_date DESC").Find(&leaves).Error; err != nil {
		return nil, 0, err
	}
	return leaves, total, nil
}

// Decide approves or rejects a PENDING application
func (s *LeaveService) Decide(ctx context.Context, id *identity.Identity, leaveID uint, approve bool, notes *string) (*models.LeaveApplication, error) {
	d, err := authorize(id, s.now(), scope.ActionUpdate, scope.EntityLeave, nil)
	if err != nil {
		return nil, err
	}
	now := s.now()

	var (
		leave models.LeaveApplication
		box   outbox
	)
	err = database.RunInTx(ctx, s.db, func(tx *gorm.DB) error {
		box.reset()
		if err := inScope(database.ForUpdate(tx), d, "hostel_id").First(&leave, leaveID).Error; err != nil {
			return notFound(err, "leave application %d not found", leaveID)
		}
		if leave.Status != models.LeaveStatusPending {
			return apperrors.Conflictf(apperrors.ReasonTerminalState, "leave application %d is %s", leave.ID, leave.Status)
		}
		leave.Status = models.LeaveStatusRejected
		if approve {
			leave.Status = models.LeaveStatusApproved
		}
		approver := id.UserID
		leave.ApproverID = &approver
		leave.ApprovedAt = &now
		leave.ApproverNotes = notes
		if err := tx.Model(&leave).Select("status", "approver_id", "approved_at", "approver_notes").Updates(&leave).Error; err != nil {
			return err
		}
		if err := writeAudit(tx, id, leave.HostelID, scope.EntityLeave, leave.ID, models.AuditActionUpdate,
			map[string]interface{}{"status": leave.Status}); err != nil {
			return err
		}
		box.add(tenantUserID(tx, leave.TenantID), Event{
			Type:     EventLeaveDecided,
			HostelID: leave.HostelID,
			EntityID: leave.ID,
			Data:     map[string]interface{}{"status": leave.Status},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	box.flush(ctx, s.notifier)
	return &leave, nil
}
