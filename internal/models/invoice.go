package models

import (
	"time"

	"gorm.io/gorm"
)

// Invoice status
const (
	InvoiceStatusPending   = "PENDING"
	InvoiceStatusPartial   = "PARTIAL"
	InvoiceStatusPaid      = "PAID"
	InvoiceStatusOverdue   = "OVERDUE"
	InvoiceStatusCancelled = "CANCELLED"
)

// Invoice amounts are in minor currency units. Status is derived from
// PaidAmount, TotalAmount, DueDate and CancelledAt by Refresh; callers
// never assign it.
type Invoice struct {
	BaseModel
	HostelID      uint       `json:"hostel_id" gorm:"<-:create;not null;index"`
	TenantID      uint       `json:"tenant_id" gorm:"<-:create;not null;index"`
	InvoiceNumber string     `json:"invoice_number" gorm:"<-:create;uniqueIndex;not null;size:50"`
	Amount        int64      `json:"amount" gorm:"not null"`
	Adjustments   int64      `json:"adjustments" gorm:"not null;default:0"`
	TotalAmount   int64      `json:"total_amount" gorm:"not null"`
	PaidAmount    int64      `json:"paid_amount" gorm:"not null;default:0"`
	Status        string     `json:"status" gorm:"not null;size:20;index"`
	DueDate       time.Time  `json:"due_date" gorm:"not null;index"`
	PaidAt        *time.Time `json:"paid_at"`
	CancelledAt   *time.Time `json:"cancelled_at"`
	CancelReason  *string    `json:"cancel_reason" gorm:"type:text"`
	Notes         *string    `json:"notes" gorm:"type:text"`
}

func (Invoice) TableName() string {
	return "invoices"
}

// AfterFind re-derives Status so stale rows never leave the store
// claiming PENDING after their due date.
func (inv *Invoice) AfterFind(tx *gorm.DB) error {
	inv.Status = inv.DeriveStatus(time.Now())
	return nil
}

// DeriveStatus computes the status at time now.
//
//	cancelled            -> CANCELLED
//	paid == total        -> PAID
//	past due, paid < tot -> OVERDUE
//	0 < paid < total     -> PARTIAL
//	paid == 0            -> PENDING
func (inv *Invoice) DeriveStatus(now time.Time) string {
	switch {
	case inv.CancelledAt != nil:
		return InvoiceStatusCancelled
	case inv.PaidAmount >= inv.TotalAmount:
		return InvoiceStatusPaid
	case now.After(inv.DueDate):
		return InvoiceStatusOverdue
	case inv.PaidAmount > 0:
		return InvoiceStatusPartial
	default:
		return InvoiceStatusPending
	}
}

// WhereStatus restricts a query to invoices whose derived status at now
// is status. It mirrors DeriveStatus so list filters agree with the rows
// they return between overdue sweeps. ok is false for an unknown status.
func WhereStatus(status string, now time.Time) (scope func(*gorm.DB) *gorm.DB, ok bool) {
	var where string
	var args []interface{}
	switch status {
	case InvoiceStatusCancelled:
		where = "cancelled_at IS NOT NULL"
	case InvoiceStatusPaid:
		where = "cancelled_at IS NULL AND paid_amount >= total_amount"
	case InvoiceStatusOverdue:
		where = "cancelled_at IS NULL AND paid_amount < total_amount AND due_date < ?"
		args = []interface{}{now}
	case InvoiceStatusPartial:
		where = "cancelled_at IS NULL AND paid_amount > 0 AND paid_amount < total_amount AND due_date >= ?"
		args = []interface{}{now}
	case InvoiceStatusPending:
		where = "cancelled_at IS NULL AND paid_amount = 0 AND paid_amount < total_amount AND due_date >= ?"
		args = []interface{}{now}
	default:
		return nil, false
	}
	return func(db *gorm.DB) *gorm.DB {
		return db.Where(where, args...)
	}, true
}

// Refresh recomputes Status and PaidAt. It reports whether Status changed.
func (inv *Invoice) Refresh(now time.Time) bool {
	next := inv.DeriveStatus(now)
	changed := next != inv.Status
	inv.Status = next
	if next == InvoiceStatusPaid {
		if inv.PaidAt == nil {
			t := now
			inv.PaidAt = &t
		}
	} else if inv.CancelledAt == nil {
		inv.PaidAt = nil
	}
	return changed
}

// IsTerminal PAID and CANCELLED accept no further payments or adjustments.
func (inv *Invoice) IsTerminal() bool {
	return inv.CancelledAt != nil || inv.PaidAmount >= inv.TotalAmount
}

// Outstanding is the amount still payable
func (inv *Invoice) Outstanding() int64 {
	return inv.TotalAmount - inv.PaidAmount
}
