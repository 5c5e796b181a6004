package services

import (
	"context"

	"hostelops/internal/database"
	"hostelops/internal/identity"
	"hostelops/internal/models"
	"hostelops/internal/scope"
	apperrors "hostelops/pkg/errors"
	"hostelops/pkg/pagination"

	"gorm.io/gorm"
)

// ComplaintService tenant complaints and their handling by admins
type ComplaintService struct {
	clock
	db       *gorm.DB
	notifier Notifier
}

func NewComplaintService(db *gorm.DB, notifier Notifier) *ComplaintService {
	return &ComplaintService{db: db, notifier: notifier}
}

// CreateComplaintInput raised by a tenant for themselves
type CreateComplaintInput struct {
	Title       string `json:"title" validate:"required,max=255"`
	Description string `json:"description" validate:"required"`
	Category    string `json:"category" validate:"required,oneof=MAINTENANCE CLEANLINESS FOOD ELECTRICITY WATER SECURITY OTHER"`
	Priority    string `json:"priority" validate:"omitempty,oneof=LOW MEDIUM HIGH URGENT"`
}

func (s *ComplaintService) Create(ctx context.Context, id *identity.Identity, in CreateComplaintInput) (*models.Complaint, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	if _, err := authorize(id, s.now(), scope.ActionCreate, scope.EntityComplaint, nil); err != nil {
		return nil, err
	}
	if in.Priority == "" {
		in.Priority = "MEDIUM"
	}

	var complaint models.Complaint
	err := database.RunInTx(ctx, s.db, func(tx *gorm.DB) error {
		// complaints always reference the caller's own profile
		profile, err := selfProfile(tx, id)
		if err != nil {
			return err
		}
		complaint = models.Complaint{
			TenantID:    profile.ID,
			HostelID:    profile.HostelID,
			Title:       in.Title,
			Description: in.Description,
			Category:    in.Category,
			Priority:    in.Priority,
			Status:      models.ComplaintStatusOpen,
		}
		if err := tx.Create(&complaint).Error; err != nil {
			return err
		}
		return writeAudit(tx, id, complaint.HostelID, scope.EntityComplaint, complaint.ID, models.AuditActionCreate, nil)
	})
	if err != nil {
		return nil, err
	}
	return &complaint, nil
}

// ComplaintFilter list filter
type ComplaintFilter struct {
	HostelID *uint
	Status   string
	Category string
	Page     *pagination.PageParams
}

// List returns a TENANT only their own complaints
func (s *ComplaintService) List(ctx context.Context, id *identity.Identity, f ComplaintFilter) ([]models.Complaint, int64, error) {
	d, err := authorize(id, s.now(), scope.ActionList, scope.EntityComplaint, f.HostelID)
	if err != nil {
		return nil, 0, err
	}
	db := s.db.WithContext(ctx)
	q, err := narrowToSelf(db, inScope(db.Model(&models.Complaint{}), d, "hostel_id"), id, d, "tenant_id")
	if err != nil {
		return nil, 0, err
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Category != "" {
		q = q.Where("category = ?", f.Category)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var complaints []models.Complaint
	if err := paginate(q, f.Page).Order("created_at DESC").Find(&complaints).Error; err != nil {
		return nil, 0, err
	}
	return complaints, total, nil
}

var complaintTransitions = map[string][]string{
	models.ComplaintStatusOpen:       {models.ComplaintStatusInProgress, models.ComplaintStatusResolved, models.ComplaintStatusRejected},
	models.ComplaintStatusInProgress: {models.ComplaintStatusResolved, models.ComplaintStatusRejected},
	models.ComplaintStatusResolved:   {models.ComplaintStatusClosed, models.ComplaintStatusInProgress},
}

// UpdateStatus moves a complaint along its workflow (admins only)
func (s *ComplaintService) UpdateStatus(ctx context.Context, id *identity.Identity, complaintID uint, status string, notes *string) (*models.Complaint, error) {
	d, err := authorize(id, s.now(), scope.ActionUpdate, scope.EntityComplaint, nil)
	if err != nil {
		return nil, err
	}
	now := s.now()

	var (
		complaint models.Complaint
		box       outbox
	)
	err = database.RunInTx(ctx, s.db, func(tx *gorm.DB) error {
		box.reset()
		if err := inScope(database.ForUpdate(tx), d, "hostel_id").First(&complaint, complaintID).Error; err != nil {
			return notFound(err, "complaint %d not found", complaintID)
		}
		allowed := false
		for _, next := range complaintTransitions[complaint.Status] {
			if next == status {
				allowed = true
				break
			}
		}
		if !allowed {
			return apperrors.Conflictf(apperrors.ReasonInvalidTransition, "complaint %d cannot move from %s to %s", complaint.ID, complaint.Status, status)
		}

		complaint.Status = status
		if notes != nil {
			complaint.ResolutionNotes = notes
		}
		if status == models.ComplaintStatusResolved {
			complaint.ResolvedAt = &now
		}
		if err := tx.Model(&complaint).Select("status", "resolution_notes", "resolved_at").Updates(&complaint).Error; err != nil {
			return err
		}
		if err := writeAudit(tx, id, complaint.HostelID, scope.EntityComplaint, complaint.ID, models.AuditActionUpdate,
			map[string]interface{}{"status": status}); err != nil {
			return err
		}
		box.add(tenantUserID(tx, complaint.TenantID), Event{
			Type:     EventComplaintUpdated,
			HostelID: complaint.HostelID,
			EntityID: complaint.ID,
			Data:     map[string]interface{}{"status": status},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	box.flush(ctx, s.notifier)
	return &complaint, nil
}
