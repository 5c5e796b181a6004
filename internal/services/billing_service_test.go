package services

import (
	"context"
	"testing"
	"time"

	"hostelops/internal/models"
	apperrors "hostelops/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type billingFixture struct {
	env     *testEnv
	hostel  *models.Hostel
	tenant  *models.TenantProfile
	invoice *models.Invoice
}

// newBillingFixture seeds a hostel with payments enabled and a 10000 invoice due in a week
func newBillingFixture(t *testing.T) *billingFixture {
	t.Helper()
	env := newTestEnv(t)
	h := seedHostel(t, env.db, "H1")
	activatePlan(t, env, h.ID, models.PlanTierStandard, intPtr(50), intPtr(20), map[string]bool{models.FeaturePayments: true})
	tenant := seedTenant(t, env.db, h.ID, "alice")

	inv, err := env.billing.CreateInvoice(context.Background(), hostelAdmin(h.ID), CreateInvoiceInput{
		TenantID: tenant.ID,
		Amount:   10000,
		DueDate:  env.now.Add(7 * 24 * time.Hour),
	})
	require.NoError(t, err)
	return &billingFixture{env: env, hostel: h, tenant: tenant, invoice: inv}
}

// pay creates a payment as the tenant and binds it to externalID
func (f *billingFixture) pay(t *testing.T, amount int64, externalID string) *models.Payment {
	t.Helper()
	ctx := context.Background()
	p, err := f.env.billing.CreatePayment(ctx, tenantIdentity(f.tenant), CreatePaymentInput{
		InvoiceID: f.invoice.ID,
		Amount:    amount,
		Gateway:   "mock",
	})
	require.NoError(t, err)
	p, err = f.env.billing.MarkProcessing(ctx, p.ID, "mock", externalID)
	require.NoError(t, err)
	return p
}

func (f *billingFixture) confirm(t *testing.T, externalID string, amount int64, status string) (*models.Payment, error) {
	t.Helper()
	return f.env.billing.OnPaymentConfirmed(context.Background(), PaymentConfirmation{
		Gateway:    "mock",
		ExternalID: externalID,
		Amount:     amount,
		Status:     status,
	})
}

func (f *billingFixture) reload(t *testing.T) *models.Invoice {
	t.Helper()
	var inv models.Invoice
	require.NoError(t, f.env.db.First(&inv, f.invoice.ID).Error)
	return &inv
}

func TestCreateInvoiceStartsPending(t *testing.T) {
	f := newBillingFixture(t)

	assert.Equal(t, models.InvoiceStatusPending, f.invoice.Status)
	assert.Equal(t, int64(10000), f.invoice.TotalAmount)
	assert.Equal(t, int64(0), f.invoice.PaidAmount)
	assert.Regexp(t, `^INV-\d+-\d{8}-[0-9A-F]{8}$`, f.invoice.InvoiceNumber)
	assert.Equal(t, []string{EventInvoiceCreated}, f.env.notifier.types())
}

func TestCallbackReplayAppliesOnce(t *testing.T) {
	f := newBillingFixture(t)
	f.pay(t, 5000, "pay_1")

	first, err := f.confirm(t, "pay_1", 5000, models.PaymentStatusSuccess)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusSuccess, first.Status)
	require.NotNil(t, first.ReceiptNumber)

	second, err := f.confirm(t, "pay_1", 5000, models.PaymentStatusSuccess)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusSuccess, second.Status)
	assert.Equal(t, *first.ReceiptNumber, *second.ReceiptNumber)

	inv := f.reload(t)
	assert.Equal(t, int64(5000), inv.PaidAmount)
	assert.Equal(t, models.InvoiceStatusPartial, inv.Status)

	assert.Equal(t, []string{EventInvoiceCreated, EventPaymentSucceeded, EventReceiptRequested}, f.env.notifier.types())
}

func TestFullPaymentMarksInvoicePaid(t *testing.T) {
	f := newBillingFixture(t)
	f.pay(t, 4000, "pay_1")
	f.pay(t, 6000, "pay_2")

	_, err := f.confirm(t, "pay_1", 4000, models.PaymentStatusSuccess)
	require.NoError(t, err)
	_, err = f.confirm(t, "pay_2", 6000, models.PaymentStatusSuccess)
	require.NoError(t, err)

	inv := f.reload(t)
	assert.Equal(t, models.InvoiceStatusPaid, inv.Status)
	assert.Equal(t, inv.TotalAmount, inv.PaidAmount)
	assert.NotNil(t, inv.PaidAt)

	_, err = f.env.billing.CreatePayment(context.Background(), tenantIdentity(f.tenant), CreatePaymentInput{
		InvoiceID: f.invoice.ID, Amount: 1, Gateway: "mock",
	})
	assert.ErrorIs(t, err, apperrors.Reason(apperrors.KindConflict, apperrors.ReasonTerminalState))

	_, err = f.env.billing.CancelInvoice(context.Background(), hostelAdmin(f.hostel.ID), f.invoice.ID, "duplicate")
	assert.ErrorIs(t, err, apperrors.Reason(apperrors.KindConflict, apperrors.ReasonTerminalState))
}

func TestCreatePaymentRejectsOverpayment(t *testing.T) {
	f := newBillingFixture(t)

	_, err := f.env.billing.CreatePayment(context.Background(), tenantIdentity(f.tenant), CreatePaymentInput{
		InvoiceID: f.invoice.ID, Amount: 10001, Gateway: "mock",
	})
	assert.ErrorIs(t, err, apperrors.Reason(apperrors.KindConflict, apperrors.ReasonOverpayment))

	var count int64
	f.env.db.Model(&models.Payment{}).Count(&count)
	assert.Zero(t, count)
}

func TestCallbackThatWouldOverpayFailsThePayment(t *testing.T) {
	f := newBillingFixture(t)
	// both payments fit individually but not together
	f.pay(t, 7000, "pay_1")
	f.pay(t, 7000, "pay_2")

	_, err := f.confirm(t, "pay_1", 7000, models.PaymentStatusSuccess)
	require.NoError(t, err)
	p, err := f.confirm(t, "pay_2", 7000, models.PaymentStatusSuccess)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, p.Status)
	assert.NotNil(t, p.ErrorMessage)

	inv := f.reload(t)
	assert.Equal(t, int64(7000), inv.PaidAmount)
	assert.LessOrEqual(t, inv.PaidAmount, inv.TotalAmount)
}

func TestFailedCallbackThenLateSuccessIsIgnored(t *testing.T) {
	f := newBillingFixture(t)
	f.pay(t, 5000, "pay_1")

	p, err := f.confirm(t, "pay_1", 5000, models.PaymentStatusFailed)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, p.Status)

	p, err = f.confirm(t, "pay_1", 5000, models.PaymentStatusSuccess)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, p.Status)
	assert.Equal(t, int64(0), f.reload(t).PaidAmount)
}

func TestCallbackAmountMismatchAndUnknownTransaction(t *testing.T) {
	f := newBillingFixture(t)
	f.pay(t, 5000, "pay_1")

	_, err := f.confirm(t, "pay_1", 4999, models.PaymentStatusSuccess)
	assert.ErrorIs(t, err, apperrors.Reason(apperrors.KindConflict, apperrors.ReasonAmountMismatch))

	_, err = f.confirm(t, "pay_missing", 5000, models.PaymentStatusSuccess)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	assert.Equal(t, int64(0), f.reload(t).PaidAmount)
}

func TestCallbackAgainstCancelledInvoice(t *testing.T) {
	f := newBillingFixture(t)
	f.pay(t, 5000, "pay_1")

	_, err := f.env.billing.CancelInvoice(context.Background(), hostelAdmin(f.hostel.ID), f.invoice.ID, "tenant left")
	require.NoError(t, err)

	p, err := f.confirm(t, "pay_1", 5000, models.PaymentStatusSuccess)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, p.Status)

	inv := f.reload(t)
	assert.Equal(t, models.InvoiceStatusCancelled, inv.Status)
	assert.Equal(t, int64(0), inv.PaidAmount)
}

func TestRefundReversesPaidAmount(t *testing.T) {
	f := newBillingFixture(t)
	ctx := context.Background()
	p := f.pay(t, 10000, "pay_1")
	_, err := f.confirm(t, "pay_1", 10000, models.PaymentStatusSuccess)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusPaid, f.reload(t).Status)

	refunded, err := f.env.billing.RefundPayment(ctx, hostelAdmin(f.hostel.ID), p.ID, "double charge")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusRefunded, refunded.Status)

	inv := f.reload(t)
	assert.Equal(t, int64(0), inv.PaidAmount)
	assert.Equal(t, models.InvoiceStatusPending, inv.Status)
	assert.Nil(t, inv.PaidAt)

	_, err = f.env.billing.RefundPayment(ctx, hostelAdmin(f.hostel.ID), p.ID, "again")
	assert.ErrorIs(t, err, apperrors.Reason(apperrors.KindConflict, apperrors.ReasonInvalidTransition))

	_, err = f.env.billing.RefundPayment(ctx, tenantIdentity(f.tenant), p.ID, "mine")
	assert.ErrorIs(t, err, apperrors.ErrDenied)
}

func TestAdjustInvoiceBounds(t *testing.T) {
	f := newBillingFixture(t)
	ctx := context.Background()
	admin := hostelAdmin(f.hostel.ID)
	f.pay(t, 6000, "pay_1")
	_, err := f.confirm(t, "pay_1", 6000, models.PaymentStatusSuccess)
	require.NoError(t, err)

	inv, err := f.env.billing.AdjustInvoice(ctx, admin, f.invoice.ID, AdjustInvoiceInput{Adjustments: 500})
	require.NoError(t, err)
	assert.Equal(t, int64(10500), inv.TotalAmount)
	assert.Equal(t, models.InvoiceStatusPartial, inv.Status)

	_, err = f.env.billing.AdjustInvoice(ctx, admin, f.invoice.ID, AdjustInvoiceInput{Adjustments: -5000})
	assert.ErrorIs(t, err, apperrors.Reason(apperrors.KindConflict, apperrors.ReasonOverpayment))

	_, err = f.env.billing.AdjustInvoice(ctx, admin, f.invoice.ID, AdjustInvoiceInput{Adjustments: -10000})
	assert.ErrorIs(t, err, apperrors.ErrInvalid)

	// a discount down to the paid amount settles the invoice
	inv, err = f.env.billing.AdjustInvoice(ctx, admin, f.invoice.ID, AdjustInvoiceInput{Adjustments: -4000})
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusPaid, inv.Status)
}

func TestTenantSeesOnlyOwnInvoices(t *testing.T) {
	f := newBillingFixture(t)
	ctx := context.Background()
	bob := seedTenant(t, f.env.db, f.hostel.ID, "bob")
	other, err := f.env.billing.CreateInvoice(ctx, hostelAdmin(f.hostel.ID), CreateInvoiceInput{
		TenantID: bob.ID,
		Amount:   3000,
		DueDate:  f.env.now.Add(24 * time.Hour),
	})
	require.NoError(t, err)

	invoices, total, err := f.env.billing.ListInvoices(ctx, tenantIdentity(f.tenant), InvoiceFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, invoices, 1)
	assert.Equal(t, f.invoice.ID, invoices[0].ID)

	_, err = f.env.billing.GetInvoice(ctx, tenantIdentity(f.tenant), other.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = f.env.billing.CreatePayment(ctx, tenantIdentity(f.tenant), CreatePaymentInput{
		InvoiceID: other.ID, Amount: 1000, Gateway: "mock",
	})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, total, err = f.env.billing.ListInvoices(ctx, hostelAdmin(f.hostel.ID), InvoiceFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
}

func TestPaymentsNeedFeatureFlag(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	h := seedHostel(t, env.db, "H1")
	tenant := seedTenant(t, env.db, h.ID, "alice")
	inv, err := env.billing.CreateInvoice(ctx, hostelAdmin(h.ID), CreateInvoiceInput{
		TenantID: tenant.ID,
		Amount:   1000,
		DueDate:  env.now.Add(24 * time.Hour),
	})
	require.NoError(t, err)

	// free tier carries no features
	_, err = env.billing.CreatePayment(ctx, tenantIdentity(tenant), CreatePaymentInput{
		InvoiceID: inv.ID, Amount: 1000, Gateway: "mock",
	})
	assert.ErrorIs(t, err, apperrors.Reason(apperrors.KindDenied, apperrors.ReasonFeatureDisabled))
}

func TestSweepOverdueAndDerivedStatus(t *testing.T) {
	f := newBillingFixture(t)
	ctx := context.Background()

	updated, err := f.env.billing.SweepOverdue(ctx)
	require.NoError(t, err)
	assert.Zero(t, updated)

	// push the due date into the past behind the service's back
	require.NoError(t, f.env.db.Model(&models.Invoice{}).Where("id = ?", f.invoice.ID).
		Update("due_date", f.env.now.Add(-time.Hour)).Error)

	updated, err = f.env.billing.SweepOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated)

	var raw struct{ Status string }
	require.NoError(t, f.env.db.Table("invoices").Select("status").Where("id = ?", f.invoice.ID).Scan(&raw).Error)
	assert.Equal(t, models.InvoiceStatusOverdue, raw.Status)

	got, err := f.env.billing.GetInvoice(ctx, hostelAdmin(f.hostel.ID), f.invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusOverdue, got.Status)
}

func TestMarkProcessingIsIdempotent(t *testing.T) {
	f := newBillingFixture(t)
	ctx := context.Background()
	p := f.pay(t, 1000, "pay_1")

	again, err := f.env.billing.MarkProcessing(ctx, p.ID, "mock", "pay_1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusProcessing, again.Status)

	_, err = f.env.billing.MarkProcessing(ctx, p.ID, "mock", "pay_other")
	assert.ErrorIs(t, err, apperrors.Reason(apperrors.KindConflict, apperrors.ReasonInvalidTransition))

	_, err = f.env.billing.MarkProcessing(ctx, p.ID, "stripe", "pay_1")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestListInvoicesFiltersByDerivedStatus(t *testing.T) {
	f := newBillingFixture(t)
	ctx := context.Background()
	admin := hostelAdmin(f.hostel.ID)

	count := func(status string) int64 {
		t.Helper()
		invoices, total, err := f.env.billing.ListInvoices(ctx, admin, InvoiceFilter{Status: status})
		require.NoError(t, err)
		for _, inv := range invoices {
			assert.Equal(t, status, inv.Status)
		}
		return total
	}

	assert.Equal(t, int64(1), count(models.InvoiceStatusPending))
	assert.Zero(t, count(models.InvoiceStatusOverdue))

	f.pay(t, 2500, "pay_1")
	_, err := f.confirm(t, "pay_1", 2500, models.PaymentStatusSuccess)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count(models.InvoiceStatusPartial))
	assert.Zero(t, count(models.InvoiceStatusPending))

	// no sweep runs: the stored column still says PARTIAL
	f.env.now = f.env.now.Add(8 * 24 * time.Hour)
	assert.Equal(t, int64(1), count(models.InvoiceStatusOverdue))
	assert.Zero(t, count(models.InvoiceStatusPartial))
	assert.Zero(t, count(models.InvoiceStatusPending))
	assert.Zero(t, count(models.InvoiceStatusPaid))

	_, err = f.env.billing.CancelInvoice(ctx, admin, f.invoice.ID, "left the hostel")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count(models.InvoiceStatusCancelled))
	assert.Zero(t, count(models.InvoiceStatusOverdue))

	_, _, err = f.env.billing.ListInvoices(ctx, admin, InvoiceFilter{Status: "SETTLED"})
	assert.ErrorIs(t, err, apperrors.ErrInvalid)
}
