package services

import (
	"context"
	"fmt"

	"hostelops/internal/identity"
	"hostelops/internal/models"
	"hostelops/internal/scope"
	"hostelops/pkg/pagination"
	"hostelops/pkg/queue"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type inboxTemplate struct {
	title   string
	kind    string
	message func(p map[string]interface{}) string
}

var inboxTemplates = map[string]inboxTemplate{
	EventBedAssigned: {"Bed assigned", models.NotificationTypeSuccess, func(p map[string]interface{}) string {
		return fmt.Sprintf("You have been assigned bed %v.", p["bed_number"])
	}},
	EventBedVacated: {"Bed vacated", models.NotificationTypeInfo, func(p map[string]interface{}) string {
		return fmt.Sprintf("Bed %v has been released.", p["bed_number"])
	}},
	EventInvoiceCreated: {"New invoice", models.NotificationTypeInfo, func(p map[string]interface{}) string {
		return fmt.Sprintf("Invoice %v for %v is due on %v.", p["invoice_number"], p["total_amount"], p["due_date"])
	}},
	EventInvoiceCancelled: {"Invoice cancelled", models.NotificationTypeWarning, func(p map[string]interface{}) string {
		return fmt.Sprintf("Invoice %v has been cancelled.", p["invoice_number"])
	}},
	EventPaymentSucceeded: {"Payment received", models.NotificationTypeSuccess, func(p map[string]interface{}) string {
		return fmt.Sprintf("Your payment of %v was received. Invoice is now %v.", p["amount"], p["invoice_status"])
	}},
	EventPaymentFailed: {"Payment failed", models.NotificationTypeError, func(p map[string]interface{}) string {
		return fmt.Sprintf("Your payment of %v failed: %v", p["amount"], p["reason"])
	}},
	EventPaymentRefunded: {"Payment refunded", models.NotificationTypeInfo, func(p map[string]interface{}) string {
		return fmt.Sprintf("Your payment of %v has been refunded.", p["amount"])
	}},
	EventLeaveDecided: {"Leave application updated", models.NotificationTypeInfo, func(p map[string]interface{}) string {
		return fmt.Sprintf("Your leave application is now %v.", p["status"])
	}},
	EventComplaintUpdated: {"Complaint updated", models.NotificationTypeInfo, func(p map[string]interface{}) string {
		return fmt.Sprintf("Your complaint is now %v.", p["status"])
	}},
}

// payloadUint reads a numeric payload field; JSON round trips turn it into float64
func payloadUint(p map[string]interface{}, key string) uint {
	switch v := p[key].(type) {
	case float64:
		return uint(v)
	case uint:
		return v
	case int:
		return uint(v)
	case int64:
		return uint(v)
	}
	return 0
}

// notificationFromJob renders a queued event into an inbox row
func notificationFromJob(job *queue.JobMessage) *models.Notification {
	event, _ := job.Payload["type"].(string)
	tpl, ok := inboxTemplates[event]
	if !ok {
		tpl = inboxTemplate{title: "Notification", kind: models.NotificationTypeInfo, message: func(map[string]interface{}) string {
			return event
		}}
	}
	n := &models.Notification{
		UserID:   job.UserID,
		JobID:    job.JobID,
		Event:    event,
		EntityID: payloadUint(job.Payload, "entity_id"),
		Type:     tpl.kind,
		Title:    tpl.title,
		Message:  tpl.message(job.Payload),
	}
	if n.JobID == "" {
		n.JobID = uuid.New().String()
	}
	if job.HostelID != 0 {
		hostelID := job.HostelID
		n.HostelID = &hostelID
	}
	return n
}

// InboxDelivery stores notification jobs in the recipient's inbox. Other
// job kinds go to fallback.
type InboxDelivery struct {
	db       *gorm.DB
	fallback Delivery
}

func NewInboxDelivery(db *gorm.DB, fallback Delivery) *InboxDelivery {
	return &InboxDelivery{db: db, fallback: fallback}
}

func (d *InboxDelivery) Deliver(ctx context.Context, job *queue.JobMessage) error {
	if job.Kind != JobKindNotification || job.UserID == 0 {
		if d.fallback == nil {
			return nil
		}
		return d.fallback.Deliver(ctx, job)
	}
	return d.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "job_id"}}, DoNothing: true}).
		Create(notificationFromJob(job)).Error
}

// NotificationService is the caller's own inbox
type NotificationService struct {
	clock
	db *gorm.DB
}

func NewNotificationService(db *gorm.DB) *NotificationService {
	return &NotificationService{db: db}
}

// NotificationFilter list filter
type NotificationFilter struct {
	IsRead *bool
	Page   *pagination.PageParams
}

// NotificationCounts inbox totals
type NotificationCounts struct {
	Total  int64 `json:"total"`
	Unread int64 `json:"unread"`
}

func (s *NotificationService) inbox(ctx context.Context, id *identity.Identity, action scope.Action) (*gorm.DB, error) {
	if _, err := authorize(id, s.now(), action, scope.EntityNotification, nil); err != nil {
		return nil, err
	}
	q := s.db.WithContext(ctx).Model(&models.Notification{}).Where("user_id = ?", id.UserID)
	return q.Session(&gorm.Session{}), nil
}

// List returns the caller's notifications, newest first
func (s *NotificationService) List(ctx context.Context, id *identity.Identity, f NotificationFilter) ([]models.Notification, int64, error) {
	q, err := s.inbox(ctx, id, scope.ActionList)
	if err != nil {
		return nil, 0, err
	}
	if f.IsRead != nil {
		q = q.Where("is_read = ?", *f.IsRead)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var items []models.Notification
	if err := paginate(q, f.Page).Order("created_at DESC, id DESC").Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (s *NotificationService) UnreadCount(ctx context.Context, id *identity.Identity) (*NotificationCounts, error) {
	q, err := s.inbox(ctx, id, scope.ActionRead)
	if err != nil {
		return nil, err
	}
	var counts NotificationCounts
	if err := q.Count(&counts.Total).Error; err != nil {
		return nil, err
	}
	if err := q.Where("is_read = ?", false).Count(&counts.Unread).Error; err != nil {
		return nil, err
	}
	return &counts, nil
}

// Get returns one notification; another user's id is NotFound
func (s *NotificationService) Get(ctx context.Context, id *identity.Identity, notificationID uint) (*models.Notification, error) {
	q, err := s.inbox(ctx, id, scope.ActionRead)
	if err != nil {
		return nil, err
	}
	var n models.Notification
	if err := q.First(&n, notificationID).Error; err != nil {
		return nil, notFound(err, "notification %d not found", notificationID)
	}
	return &n, nil
}

// MarkRead is idempotent; ReadAt keeps the first read time
func (s *NotificationService) MarkRead(ctx context.Context, id *identity.Identity, notificationID uint) (*models.Notification, error) {
	q, err := s.inbox(ctx, id, scope.ActionUpdate)
	if err != nil {
		return nil, err
	}
	var n models.Notification
	if err := q.First(&n, notificationID).Error; err != nil {
		return nil, notFound(err, "notification %d not found", notificationID)
	}
	if n.IsRead {
		return &n, nil
	}
	now := s.now()
	if err := s.db.WithContext(ctx).Model(&n).Updates(map[string]interface{}{"is_read": true, "read_at": now}).Error; err != nil {
		return nil, err
	}
	n.IsRead = true
	n.ReadAt = &now
	return &n, nil
}

// MarkAllRead returns how many notifications changed
func (s *NotificationService) MarkAllRead(ctx context.Context, id *identity.Identity) (int64, error) {
	q, err := s.inbox(ctx, id, scope.ActionUpdate)
	if err != nil {
		return 0, err
	}
	result := q.Where("is_read = ?", false).Updates(map[string]interface{}{"is_read": true, "read_at": s.now()})
	return result.RowsAffected, result.Error
}
