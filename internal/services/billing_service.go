package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"hostelops/internal/database"
	"hostelops/internal/identity"
	"hostelops/internal/models"
	"hostelops/internal/scope"
	"hostelops/pkg/config"
	apperrors "hostelops/pkg/errors"
	"hostelops/pkg/logger"
	"hostelops/pkg/metrics"
	"hostelops/pkg/pagination"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// BillingService owns the invoice and payment state machines.
//
// Invoice.PaidAmount only moves when a payment enters or leaves SUCCESS,
// and always under the invoice row lock. Status is re-derived on every write.
type BillingService struct {
	clock
	db       *gorm.DB
	limiter  *SubscriptionService
	notifier Notifier
	cfg      config.BillingConfig
}

func NewBillingService(db *gorm.DB, limiter *SubscriptionService, notifier Notifier, cfg config.BillingConfig) *BillingService {
	if cfg.InvoicePrefix == "" {
		cfg.InvoicePrefix = "INV"
	}
	if cfg.ReceiptPrefix == "" {
		cfg.ReceiptPrefix = "RCP"
	}
	return &BillingService{db: db, limiter: limiter, notifier: notifier, cfg: cfg}
}

func shortID() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
}

func (s *BillingService) invoiceNumber(hostelID uint, now time.Time) string {
	return fmt.Sprintf("%s-%d-%s-%s", s.cfg.InvoicePrefix, hostelID, now.Format("20060102"), shortID())
}

func (s *BillingService) receiptNumber(now time.Time) string {
	return fmt.Sprintf("%s-%s-%s", s.cfg.ReceiptPrefix, now.Format("20060102"), shortID())
}

// saveInvoice re-derives the status and writes the mutable columns
func saveInvoice(tx *gorm.DB, inv *models.Invoice, now time.Time) error {
	if inv.PaidAmount < 0 || inv.PaidAmount > inv.TotalAmount {
		return fmt.Errorf("invoice %d: paid amount %d outside [0, %d]", inv.ID, inv.PaidAmount, inv.TotalAmount)
	}
	inv.Refresh(now)
	return tx.Model(inv).
		Select("adjustments", "total_amount", "paid_amount", "status", "paid_at", "cancelled_at", "cancel_reason", "notes").
		Updates(inv).Error
}

func lockInvoice(tx *gorm.DB, d scope.Decision, invoiceID uint) (*models.Invoice, error) {
	var inv models.Invoice
	if err := inScope(database.ForUpdate(tx), d, "hostel_id").First(&inv, invoiceID).Error; err != nil {
		return nil, notFound(err, "invoice %d not found", invoiceID)
	}
	return &inv, nil
}

func tenantUserID(tx *gorm.DB, tenantID uint) uint {
	var profile models.TenantProfile
	if err := tx.Unscoped().Select("id", "user_id").First(&profile, tenantID).Error; err != nil {
		return 0
	}
	return profile.UserID
}

// ========== Invoices ==========

// CreateInvoiceInput new invoice payload; amounts are minor units
type CreateInvoiceInput struct {
	TenantID uint      `json:"tenant_id" validate:"required"`
	Amount   int64     `json:"amount" validate:"required,min=1"`
	DueDate  time.Time `json:"due_date" validate:"required"`
	Notes    *string   `json:"notes" validate:"omitempty,max=1000"`
}

func (s *BillingService) CreateInvoice(ctx context.Context, id *identity.Identity, in CreateInvoiceInput) (*models.Invoice, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	d, err := authorize(id, s.now(), scope.ActionCreate, scope.EntityInvoice, nil)
	if err != nil {
		return nil, err
	}
	now := s.now()

	var (
		inv models.Invoice
		box outbox
	)
	err = database.RunInTx(ctx, s.db, func(tx *gorm.DB) error {
		box.reset()
		var tenant models.TenantProfile
		if err := inScope(tx, d, "hostel_id").First(&tenant, in.TenantID).Error; err != nil {
			return notFound(err, "tenant %d not found", in.TenantID)
		}
		if _, err := lockLiveHostel(tx, tenant.HostelID); err != nil {
			return err
		}

		inv = models.Invoice{
			HostelID:      tenant.HostelID,
			TenantID:      tenant.ID,
			InvoiceNumber: s.invoiceNumber(tenant.HostelID, now),
			Amount:        in.Amount,
			TotalAmount:   in.Amount,
			DueDate:       in.DueDate,
			Notes:         in.Notes,
		}
		inv.Refresh(now)
		if err := tx.Create(&inv).Error; err != nil {
			return duplicate(err, "invoice number collision, retry")
		}
		if err := writeAudit(tx, id, inv.HostelID, scope.EntityInvoice, inv.ID, models.AuditActionCreate, inv); err != nil {
			return err
		}
		box.add(tenant.UserID, Event{
			Type:     EventInvoiceCreated,
			HostelID: inv.HostelID,
			EntityID: inv.ID,
			Data:     map[string]interface{}{"invoice_number": inv.InvoiceNumber, "total_amount": inv.TotalAmount, "due_date": inv.DueDate},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	box.flush(ctx, s.notifier)
	return &inv, nil
}

// AdjustInvoiceInput sets the adjustment total (late fees positive, discounts negative)
type AdjustInvoiceInput struct {
	Adjustments int64   `json:"adjustments"`
	Notes       *string `json:"notes" validate:"omitempty,max=1000"`
}

func (s *BillingService) AdjustInvoice(ctx context.Context, id *identity.Identity, invoiceID uint, in AdjustInvoiceInput) (*models.Invoice, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	d, err := authorize(id, s.now(), scope.ActionUpdate, scope.EntityInvoice, nil)
	if err != nil {
		return nil, err
	}
	now := s.now()

	var inv *models.Invoice
	err = database.RunInTx(ctx, s.db, func(tx *gorm.DB) error {
		var err error
		if inv, err = lockInvoice(tx, d, invoiceID); err != nil {
			return err
		}
		if inv.IsTerminal() {
			return apperrors.Conflictf(apperrors.ReasonTerminalState, "invoice %s is %s", inv.InvoiceNumber, inv.DeriveStatus(now))
		}
		total := inv.Amount + in.Adjustments
		if total <= 0 {
			return apperrors.Invalidf("adjusted total must stay positive")
		}
		if total < inv.PaidAmount {
			return apperrors.Conflictf(apperrors.ReasonOverpayment, "adjusted total %d is below paid amount %d", total, inv.PaidAmount)
		}
		inv.Adjustments = in.Adjustments
		inv.TotalAmount = total
		if in.Notes != nil {
			inv.Notes = in.Notes
		}
		if err := saveInvoice(tx, inv, now); err != nil {
			return err
		}
		return writeAudit(tx, id, inv.HostelID, scope.EntityInvoice, inv.ID, models.AuditActionUpdate,
			map[string]interface{}{"adjustments": inv.Adjustments, "total_amount": inv.TotalAmount})
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// CancelInvoice moves any non-PAID invoice to CANCELLED
func (s *BillingService) CancelInvoice(ctx context.Context, id *identity.Identity, invoiceID uint, reason string) (*models.Invoice, error) {
	d, err := authorize(id, s.now(), scope.ActionUpdate, scope.EntityInvoice, nil)
	if err != nil {
		return nil, err
	}
	now := s.now()

	var (
		inv *models.Invoice
		box outbox
	)
	err = database.RunInTx(ctx, s.db, func(tx *gorm.DB) error {
		box.reset()
		var err error
		if inv, err = lockInvoice(tx, d, invoiceID); err != nil {
			return err
		}
		if inv.IsTerminal() {
			return apperrors.Conflictf(apperrors.ReasonTerminalState, "invoice %s is %s", inv.InvoiceNumber, inv.DeriveStatus(now))
		}
		inv.CancelledAt = &now
		if reason != "" {
			inv.CancelReason = &reason
		}
		if err := saveInvoice(tx, inv, now); err != nil {
			return err
		}
		if err := writeAudit(tx, id, inv.HostelID, scope.EntityInvoice, inv.ID, models.AuditActionCancel,
			map[string]interface{}{"reason": reason}); err != nil {
			return err
		}
		box.add(tenantUserID(tx, inv.TenantID), Event{
			Type:     EventInvoiceCancelled,
			HostelID: inv.HostelID,
			EntityID: inv.ID,
			Data:     map[string]interface{}{"invoice_number": inv.InvoiceNumber},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	box.flush(ctx, s.notifier)
	return inv, nil
}

func (s *BillingService) GetInvoice(ctx context.Context, id *identity.Identity, invoiceID uint) (*models.Invoice, error) {
	d, err := authorize(id, s.now(), scope.ActionRead, scope.EntityInvoice, nil)
	if err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	q, err := narrowToSelf(db, inScope(db, d, "hostel_id"), id, d, "tenant_id")
	if err != nil {
		return nil, err
	}
	var inv models.Invoice
	if err := q.First(&inv, invoiceID).Error; err != nil {
		return nil, notFound(err, "invoice %d not found", invoiceID)
	}
	inv.Refresh(s.now())
	return &inv, nil
}

// InvoiceFilter list filter
type InvoiceFilter struct {
	HostelID *uint
	TenantID *uint
	Status   string
	Page     *pagination.PageParams
}

// ListInvoices returns a TENANT only their own invoices
func (s *BillingService) ListInvoices(ctx context.Context, id *identity.Identity, f InvoiceFilter) ([]models.Invoice, int64, error) {
	d, err := authorize(id, s.now(), scope.ActionList, scope.EntityInvoice, f.HostelID)
	if err != nil {
		return nil, 0, err
	}
	db := s.db.WithContext(ctx)
	q, err := narrowToSelf(db, inScope(db.Model(&models.Invoice{}), d, "hostel_id"), id, d, "tenant_id")
	if err != nil {
		return nil, 0, err
	}
	if f.TenantID != nil {
		q = q.Where("tenant_id = ?", *f.TenantID)
	}
	now := s.now()
	if f.Status != "" {
		byStatus, ok := models.WhereStatus(f.Status, now)
		if !ok {
			return nil, 0, apperrors.Invalidf("unknown invoice status %q", f.Status)
		}
		q = q.Scopes(byStatus)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var invoices []models.Invoice
	if err := paginate(q, f.Page).Order("due_date DESC, id DESC").Find(&invoices).Error; err != nil {
		return nil, 0, err
	}
	for i := range invoices {
		invoices[i].Refresh(now)
	}
	return invoices, total, nil
}

// SweepOverdue flags open invoices whose due date has passed
func (s *BillingService) SweepOverdue(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).Model(&models.Invoice{}).
		Where("cancelled_at IS NULL AND paid_amount < total_amount AND due_date < ?", s.now()).
		Where("status IN ?", []string{models.InvoiceStatusPending, models.InvoiceStatusPartial}).
		Update("status", models.InvoiceStatusOverdue)
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected > 0 {
		metrics.SweepUpdates.WithLabelValues("invoice_overdue").Add(float64(result.RowsAffected))
		logger.GetLogger().WithField("count", result.RowsAffected).Info("invoices marked overdue")
	}
	return result.RowsAffected, nil
}

// ========== Payments ==========

// CreatePaymentInput starts a payment against an invoice
type CreatePaymentInput struct {
	InvoiceID     uint    `json:"invoice_id" validate:"required"`
	Amount        int64   `json:"amount" validate:"required,min=1"`
	Gateway       string  `json:"gateway" validate:"required,max=50"`
	PaymentMethod *string `json:"payment_method" validate:"omitempty,max=50"`
}

// CreatePayment records a PENDING payment. It is rejected before any state
// change when it would push the invoice past its total.
func (s *BillingService) CreatePayment(ctx context.Context, id *identity.Identity, in CreatePaymentInput) (*models.Payment, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	d, err := authorize(id, s.now(), scope.ActionCreate, scope.EntityPayment, nil)
	if err != nil {
		return nil, err
	}
	now := s.now()

	var payment models.Payment
	err = database.RunInTx(ctx, s.db, func(tx *gorm.DB) error {
		inv, err := lockInvoice(tx, d, in.InvoiceID)
		if err != nil {
			return err
		}
		if d.SelfOnly {
			profile, err := selfProfile(tx, id)
			if err != nil {
				return err
			}
			if inv.TenantID != profile.ID {
				return apperrors.NotFoundf("invoice %d not found", in.InvoiceID)
			}
		}
		if err := s.limiter.CheckLimit(tx, inv.HostelID, FeatureResource(models.FeaturePayments), 1); err != nil {
			return err
		}
		if inv.IsTerminal() {
			return apperrors.Conflictf(apperrors.ReasonTerminalState, "invoice %s is %s", inv.InvoiceNumber, inv.DeriveStatus(now))
		}
		if inv.PaidAmount+in.Amount > inv.TotalAmount {
			return apperrors.Conflictf(apperrors.ReasonOverpayment, "payment of %d exceeds outstanding %d", in.Amount, inv.Outstanding()).
				WithDetail("outstanding", inv.Outstanding())
		}

		payment = models.Payment{
			InvoiceID:      inv.ID,
			HostelID:       inv.HostelID,
			TenantID:       inv.TenantID,
			Amount:         in.Amount,
			Status:         models.PaymentStatusPending,
			Gateway:        in.Gateway,
			IdempotencyKey: uuid.New().String(),
			PaymentMethod:  in.PaymentMethod,
		}
		if err := tx.Create(&payment).Error; err != nil {
			return err
		}
		return writeAudit(tx, id, payment.HostelID, scope.EntityPayment, payment.ID, models.AuditActionCreate, payment)
	})
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// MarkProcessing binds the gateway's transaction id to a PENDING payment
// once the gateway has accepted the order.
func (s *BillingService) MarkProcessing(ctx context.Context, paymentID uint, gateway, externalID string) (*models.Payment, error) {
	if gateway == "" || externalID == "" {
		return nil, apperrors.Invalidf("gateway and external transaction id are required")
	}

	var payment models.Payment
	err := database.RunInTx(ctx, s.db, func(tx *gorm.DB) error {
		if err := database.ForUpdate(tx).First(&payment, paymentID).Error; err != nil {
			return notFound(err, "payment %d not found", paymentID)
		}
		if payment.Gateway != gateway {
			return apperrors.NotFoundf("payment %d not found", paymentID)
		}
		if payment.Status == models.PaymentStatusProcessing && payment.ExternalTransactionID != nil && *payment.ExternalTransactionID == externalID {
			return nil
		}
		if !models.CanTransition(payment.Status, models.PaymentStatusProcessing) {
			return apperrors.Conflictf(apperrors.ReasonInvalidTransition, "payment %d is %s", payment.ID, payment.Status)
		}
		payment.Status = models.PaymentStatusProcessing
		payment.ExternalTransactionID = &externalID
		if err := tx.Model(&payment).Select("status", "external_transaction_id").Updates(&payment).Error; err != nil {
			return duplicate(err, "transaction %s already recorded for %s", externalID, gateway)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// PaymentConfirmation is what the gateway reports for one transaction
type PaymentConfirmation struct {
	Gateway    string `json:"gateway" validate:"required"`
	ExternalID string `json:"external_id" validate:"required"`
	Amount     int64  `json:"amount" validate:"required,min=1"`
	Status     string `json:"status" validate:"required,oneof=SUCCESS FAILED"`
	Message    string `json:"message"`
}

// OnPaymentConfirmed reconciles a gateway callback. It is idempotent on
// (gateway, external id): a payment already settled is returned unchanged.
func (s *BillingService) OnPaymentConfirmed(ctx context.Context, in PaymentConfirmation) (*models.Payment, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	now := s.now()
	outcome := "applied"

	var (
		payment models.Payment
		box     outbox
	)
	err := database.RunInTx(ctx, s.db, func(tx *gorm.DB) error {
		box.reset()
		outcome = "applied"
		err := database.ForUpdate(tx).
			Where("gateway = ? AND external_transaction_id = ?", in.Gateway, in.ExternalID).
			First(&payment).Error
		if err != nil {
			return notFound(err, "no payment for %s transaction %s", in.Gateway, in.ExternalID)
		}
		if payment.IsSettled() {
			outcome = "replay"
			return nil
		}
		if payment.Amount != in.Amount {
			return apperrors.Conflictf(apperrors.ReasonAmountMismatch, "callback amount %d does not match payment amount %d", in.Amount, payment.Amount)
		}

		if in.Status == models.PaymentStatusFailed {
			outcome = "failed"
			return s.failPayment(tx, &payment, in.Message, &box)
		}

		inv, err := lockInvoice(tx, scope.Decision{}, payment.InvoiceID)
		if err != nil {
			return err
		}
		if inv.CancelledAt != nil || inv.PaidAmount+payment.Amount > inv.TotalAmount {
			// money arrived for an invoice that can no longer take it
			outcome = "rejected"
			msg := fmt.Sprintf("invoice %s cannot accept %d (paid %d of %d)", inv.InvoiceNumber, payment.Amount, inv.PaidAmount, inv.TotalAmount)
			if inv.CancelledAt != nil {
				msg = fmt.Sprintf("invoice %s is cancelled", inv.InvoiceNumber)
			}
			logger.GetLogger().WithFields(logrus.Fields{
				"payment_id": payment.ID,
				"invoice_id": inv.ID,
				"gateway":    in.Gateway,
			}).Warn(msg)
			return s.failPayment(tx, &payment, msg, &box)
		}

		receipt := s.receiptNumber(now)
		payment.Status = models.PaymentStatusSuccess
		payment.PaidAt = &now
		payment.ReceiptNumber = &receipt
		if err := tx.Model(&payment).Select("status", "paid_at", "receipt_number").Updates(&payment).Error; err != nil {
			return err
		}
		inv.PaidAmount += payment.Amount
		if err := saveInvoice(tx, inv, now); err != nil {
			return err
		}
		if err := writeAudit(tx, nil, payment.HostelID, scope.EntityPayment, payment.ID, models.AuditActionPayment,
			map[string]interface{}{"invoice_id": inv.ID, "amount": payment.Amount, "receipt_number": receipt, "invoice_status": inv.Status}); err != nil {
			return err
		}

		userID := tenantUserID(tx, payment.TenantID)
		box.add(userID, Event{
			Type:     EventPaymentSucceeded,
			HostelID: payment.HostelID,
			EntityID: payment.ID,
			Data:     map[string]interface{}{"amount": payment.Amount, "invoice_status": inv.Status},
		})
		box.add(userID, Event{
			Type:     EventReceiptRequested,
			HostelID: payment.HostelID,
			EntityID: payment.ID,
			Data:     map[string]interface{}{"receipt_number": receipt, "invoice_number": inv.InvoiceNumber},
		})
		return nil
	})
	if err != nil {
		metrics.PaymentCallbacks.WithLabelValues(in.Gateway, apperrors.KindOf(err).String()).Inc()
		return nil, err
	}
	metrics.PaymentCallbacks.WithLabelValues(in.Gateway, outcome).Inc()
	logger.GetLogger().WithFields(logrus.Fields{
		"payment_id": payment.ID,
		"gateway":    in.Gateway,
		"outcome":    outcome,
		"status":     payment.Status,
	}).Info("payment callback processed")

	box.flush(ctx, s.notifier)
	return &payment, nil
}

func (s *BillingService) failPayment(tx *gorm.DB, payment *models.Payment, message string, box *outbox) error {
	payment.Status = models.PaymentStatusFailed
	if message != "" {
		payment.ErrorMessage = &message
	}
	if err := tx.Model(payment).Select("status", "error_message").Updates(payment).Error; err != nil {
		return err
	}
	box.add(tenantUserID(tx, payment.TenantID), Event{
		Type:     EventPaymentFailed,
		HostelID: payment.HostelID,
		EntityID: payment.ID,
		Data:     map[string]interface{}{"amount": payment.Amount, "reason": message},
	})
	return nil
}

// RefundPayment SUCCESS -> REFUNDED, reversing the invoice's paid amount
func (s *BillingService) RefundPayment(ctx context.Context, id *identity.Identity, paymentID uint, reason string) (*models.Payment, error) {
	d, err := authorize(id, s.now(), scope.ActionUpdate, scope.EntityPayment, nil)
	if err != nil {
		return nil, err
	}
	now := s.now()

	var (
		payment models.Payment
		box     outbox
	)
	err = database.RunInTx(ctx, s.db, func(tx *gorm.DB) error {
		box.reset()
		if err := inScope(database.ForUpdate(tx), d, "hostel_id").First(&payment, paymentID).Error; err != nil {
			return notFound(err, "payment %d not found", paymentID)
		}
		if !models.CanTransition(payment.Status, models.PaymentStatusRefunded) {
			return apperrors.Conflictf(apperrors.ReasonInvalidTransition, "payment %d is %s", payment.ID, payment.Status)
		}
		inv, err := lockInvoice(tx, scope.Decision{}, payment.InvoiceID)
		if err != nil {
			return err
		}

		payment.Status = models.PaymentStatusRefunded
		payment.RefundedAt = &now
		if err := tx.Model(&payment).Select("status", "refunded_at").Updates(&payment).Error; err != nil {
			return err
		}
		inv.PaidAmount -= payment.Amount
		if inv.PaidAmount < 0 {
			inv.PaidAmount = 0
		}
		if err := saveInvoice(tx, inv, now); err != nil {
			return err
		}
		if err := writeAudit(tx, id, payment.HostelID, scope.EntityPayment, payment.ID, models.AuditActionRefund,
			map[string]interface{}{"reason": reason, "invoice_status": inv.Status, "paid_amount": inv.PaidAmount}); err != nil {
			return err
		}
		box.add(tenantUserID(tx, payment.TenantID), Event{
			Type:     EventPaymentRefunded,
			HostelID: payment.HostelID,
			EntityID: payment.ID,
			Data:     map[string]interface{}{"amount": payment.Amount},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	box.flush(ctx, s.notifier)
	return &payment, nil
}

func (s *BillingService) GetPayment(ctx context.Context, id *identity.Identity, paymentID uint) (*models.Payment, error) {
	d, err := authorize(id, s.now(), scope.ActionRead, scope.EntityPayment, nil)
	if err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	q, err := narrowToSelf(db, inScope(db, d, "hostel_id"), id, d, "tenant_id")
	if err != nil {
		return nil, err
	}
	var payment models.Payment
	if err := q.First(&payment, paymentID).Error; err != nil {
		return nil, notFound(err, "payment %d not found", paymentID)
	}
	return &payment, nil
}

// PaymentFilter list filter
type PaymentFilter struct {
	HostelID  *uint
	InvoiceID *uint
	Status    string
	Page      *pagination.PageParams
}

func (s *BillingService) ListPayments(ctx context.Context, id *identity.Identity, f PaymentFilter) ([]models.Payment, int64, error) {
	d, err := authorize(id, s.now(), scope.ActionList, scope.EntityPayment, f.HostelID)
	if err != nil {
		return nil, 0, err
	}
	db := s.db.WithContext(ctx)
	q, err := narrowToSelf(db, inScope(db.Model(&models.Payment{}), d, "hostel_id"), id, d, "tenant_id")
	if err != nil {
		return nil, 0, err
	}
	if f.InvoiceID != nil {
		q = q.Where("invoice_id = ?", *f.InvoiceID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var payments []models.Payment
	if err := paginate(q, f.Page).Order("id DESC").Find(&payments).Error; err != nil {
		return nil, 0, err
	}
	return payments, total, nil
}
