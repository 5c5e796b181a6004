package models

import "time"

// Payment status
const (
	PaymentStatusPending    = "PENDING"
	PaymentStatusProcessing = "PROCESSING"
	PaymentStatusSuccess    = "SUCCESS"
	PaymentStatusFailed     = "FAILED"
	PaymentStatusRefunded   = "REFUNDED"
)

var paymentTransitions = map[string][]string{
	PaymentStatusPending:    {PaymentStatusProcessing, PaymentStatusFailed},
	PaymentStatusProcessing: {PaymentStatusSuccess, PaymentStatusFailed},
	PaymentStatusSuccess:    {PaymentStatusRefunded},
}

// CanTransition reports whether from -> to is an edge of the payment state machine.
func CanTransition(from, to string) bool {
	for _, next := range paymentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Payment against an invoice. (Gateway, ExternalTransactionID) is the
// idempotency key for gateway callbacks.
type Payment struct {
	BaseModel
	InvoiceID             uint       `json:"invoice_id" gorm:"<-:create;not null;index"`
	HostelID              uint       `json:"hostel_id" gorm:"<-:create;not null;index"`
	TenantID              uint       `json:"tenant_id" gorm:"<-:create;not null;index"`
	Amount                int64      `json:"amount" gorm:"<-:create;not null"`
	Status                string     `json:"status" gorm:"not null;size:20;index"`
	Gateway               string     `json:"gateway" gorm:"<-:create;not null;size:50;uniqueIndex:idx_payments_gateway_external"`
	ExternalTransactionID *string    `json:"external_transaction_id" gorm:"size:255;uniqueIndex:idx_payments_gateway_external"`
	IdempotencyKey        string     `json:"idempotency_key" gorm:"<-:create;uniqueIndex;not null;size:64"`
	ReceiptNumber         *string    `json:"receipt_number" gorm:"size:50"`
	PaymentMethod         *string    `json:"payment_method" gorm:"size:50"`
	PaidAt                *time.Time `json:"paid_at"`
	RefundedAt            *time.Time `json:"refunded_at"`
	ErrorMessage          *string    `json:"error_message" gorm:"type:text"`
}

func (Payment) TableName() string {
	return "payments"
}

// IsSettled SUCCESS, FAILED and REFUNDED are final for gateway callbacks.
func (p *Payment) IsSettled() bool {
	switch p.Status {
	case PaymentStatusSuccess, PaymentStatusFailed, PaymentStatusRefunded:
		return true
	}
	return false
}
