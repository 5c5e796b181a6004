package services

import (
	"context"
	"strings"

	"hostelops/pkg/logger"
	"hostelops/pkg/metrics"
	"hostelops/pkg/queue"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Event types
const (
	EventBedAssigned      = "bed.assigned"
	EventBedVacated       = "bed.vacated"
	EventInvoiceCreated   = "invoice.created"
	EventInvoiceCancelled = "invoice.cancelled"
	EventPaymentSucceeded = "payment.succeeded"
	EventPaymentFailed    = "payment.failed"
	EventPaymentRefunded  = "payment.refunded"
	EventReceiptRequested = "receipt.generate"
	EventLeaveDecided     = "leave.decided"
	EventComplaintUpdated = "complaint.updated"
)

// Event is what gets pushed to a user after a committed change
type Event struct {
	Type     string                 `json:"type"`
	HostelID uint                   `json:"hostel_id"`
	EntityID uint                   `json:"entity_id"`
	Data     map[string]interface{} `json:"data,omitempty"`
}

// Notifier is fire-and-forget. Callers log failures and move on.
type Notifier interface {
	Notify(ctx context.Context, userID uint, event Event) error
}

// QueueNotifier pushes events onto the redis job queue; receipt requests
// go to their own queue.
type QueueNotifier struct {
	queue *queue.RedisQueue
}

func NewQueueNotifier(q *queue.RedisQueue) *QueueNotifier {
	return &QueueNotifier{queue: q}
}

func (n *QueueNotifier) Notify(ctx context.Context, userID uint, event Event) error {
	return n.queue.Enqueue(ctx, jobFromEvent(userID, event))
}

// jobFromEvent builds the queue message for event
func jobFromEvent(userID uint, event Event) *queue.JobMessage {
	kind := JobKindNotification
	if strings.HasPrefix(event.Type, "receipt.") {
		kind = JobKindReceipt
	}
	payload := map[string]interface{}{
		"type":      event.Type,
		"entity_id": event.EntityID,
	}
	for k, v := range event.Data {
		payload[k] = v
	}
	return &queue.JobMessage{
		JobID:    uuid.New().String(),
		Kind:     kind,
		HostelID: event.HostelID,
		UserID:   userID,
		Payload:  payload,
	}
}

// InboxNotifier delivers in process, without the queue; used when redis
// is not configured. Receipt requests only reach the log.
type InboxNotifier struct {
	delivery Delivery
}

func NewInboxNotifier(db *gorm.DB) *InboxNotifier {
	return &InboxNotifier{delivery: NewInboxDelivery(db, LogDelivery{})}
}

func (n *InboxNotifier) Notify(ctx context.Context, userID uint, event Event) error {
	return n.delivery.Deliver(ctx, jobFromEvent(userID, event))
}

type pendingNotification struct {
	userID uint
	event  Event
}

// outbox collects notifications inside a transaction; flush sends them
// once the transaction has committed.
type outbox struct {
	items []pendingNotification
}

func (o *outbox) add(userID uint, event Event) {
	if userID == 0 {
		return
	}
	o.items = append(o.items, pendingNotification{userID: userID, event: event})
}

// reset drops anything collected by an attempt that rolled back
func (o *outbox) reset() {
	o.items = o.items[:0]
}

func (o *outbox) flush(ctx context.Context, n Notifier) {
	if n == nil {
		return
	}
	for _, item := range o.items {
		if err := n.Notify(ctx, item.userID, item.event); err != nil {
			metrics.NotifyFailures.Inc()
			logger.GetLogger().WithFields(logrus.Fields{
				"user_id": item.userID,
				"event":   item.event.Type,
			}).Warnf("notification dispatch failed: %v", err)
		}
	}
}
