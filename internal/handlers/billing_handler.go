package handlers

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"

	"hostelops/internal/services"
	"hostelops/pkg/logger"
	"hostelops/pkg/pagination"
	"hostelops/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw callback body
const SignatureHeader = "X-Signature"

type BillingHandler struct {
	billingService *services.BillingService
	webhookSecret  string
	// requireSignature rejects every callback while no secret is configured
	requireSignature bool
}

// NewBillingHandler takes requireSignature true in release mode. Otherwise an
// empty webhookSecret accepts unsigned callbacks.
func NewBillingHandler(billingService *services.BillingService, webhookSecret string, requireSignature bool) *BillingHandler {
	return &BillingHandler{
		billingService:   billingService,
		webhookSecret:    webhookSecret,
		requireSignature: requireSignature,
	}
}

// ========== Invoices ==========

func (h *BillingHandler) CreateInvoice(c *gin.Context) {
	var req services.CreateInvoiceInput
	if !bindJSON(c, &req) {
		return
	}
	invoice, err := h.billingService.CreateInvoice(c.Request.Context(), currentIdentity(c), req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, invoice)
}

func (h *BillingHandler) GetInvoice(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	invoice, err := h.billingService.GetInvoice(c.Request.Context(), currentIdentity(c), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, invoice)
}

func (h *BillingHandler) ListInvoices(c *gin.Context) {
	params := pagination.ParsePageParams(c)
	hostelID, ok := queryUint(c, "hostel_id")
	if !ok {
		return
	}
	tenantID, ok := queryUint(c, "tenant_id")
	if !ok {
		return
	}
	invoices, total, err := h.billingService.ListInvoices(c.Request.Context(), currentIdentity(c), services.InvoiceFilter{
		HostelID: hostelID,
		TenantID: tenantID,
		Status:   c.Query("status"),
		Page:     params,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessWithPage(c, invoices, pagination.NewPageInfo(params.Page, params.PageSize, total))
}

// AdjustInvoice applies a signed adjustment to the invoice total
func (h *BillingHandler) AdjustInvoice(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req services.AdjustInvoiceInput
	if !bindJSON(c, &req) {
		return
	}
	invoice, err := h.billingService.AdjustInvoice(c.Request.Context(), currentIdentity(c), id, req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, invoice)
}

func (h *BillingHandler) CancelInvoice(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req reasonRequest
	if !bindJSON(c, &req) {
		return
	}
	invoice, err := h.billingService.CancelInvoice(c.Request.Context(), currentIdentity(c), id, req.Reason)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, invoice)
}

// ========== Payments ==========

func (h *BillingHandler) CreatePayment(c *gin.Context) {
	var req services.CreatePaymentInput
	if !bindJSON(c, &req) {
		return
	}
	payment, err := h.billingService.CreatePayment(c.Request.Context(), currentIdentity(c), req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, payment)
}

func (h *BillingHandler) GetPayment(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	payment, err := h.billingService.GetPayment(c.Request.Context(), currentIdentity(c), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, payment)
}

func (h *BillingHandler) ListPayments(c *gin.Context) {
	params := pagination.ParsePageParams(c)
	hostelID, ok := queryUint(c, "hostel_id")
	if !ok {
		return
	}
	invoiceID, ok := queryUint(c, "invoice_id")
	if !ok {
		return
	}
	payments, total, err := h.billingService.ListPayments(c.Request.Context(), currentIdentity(c), services.PaymentFilter{
		HostelID:  hostelID,
		InvoiceID: invoiceID,
		Status:    c.Query("status"),
		Page:      params,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessWithPage(c, payments, pagination.NewPageInfo(params.Page, params.PageSize, total))
}

func (h *BillingHandler) RefundPayment(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req reasonRequest
	if !bindJSON(c, &req) {
		return
	}
	payment, err := h.billingService.RefundPayment(c.Request.Context(), currentIdentity(c), id, req.Reason)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, payment)
}

// ========== Gateway callbacks ==========

type acceptedRequest struct {
	PaymentID  uint   `json:"payment_id" binding:"required"`
	ExternalID string `json:"external_id" binding:"required"`
}

// GatewayAccepted records the gateway's transaction id on a pending payment
func (h *BillingHandler) GatewayAccepted(c *gin.Context) {
	body, ok := h.verifiedBody(c)
	if !ok {
		return
	}
	var req acceptedRequest
	if err := binding.JSON.BindBody(body, &req); err != nil {
		response.BadRequest(c, "invalid callback body: "+err.Error())
		return
	}
	payment, err := h.billingService.MarkProcessing(c.Request.Context(), req.PaymentID, c.Param("gateway"), req.ExternalID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, payment)
}

type confirmedRequest struct {
	ExternalID string `json:"external_id" binding:"required"`
	Amount     int64  `json:"amount" binding:"required,min=1"`
	Status     string `json:"status" binding:"required,oneof=SUCCESS FAILED"`
	Message    string `json:"message"`
}

// GatewayConfirmed applies a SUCCESS or FAILED result. Replays are harmless.
func (h *BillingHandler) GatewayConfirmed(c *gin.Context) {
	body, ok := h.verifiedBody(c)
	if !ok {
		return
	}
	var req confirmedRequest
	if err := binding.JSON.BindBody(body, &req); err != nil {
		response.BadRequest(c, "invalid callback body: "+err.Error())
		return
	}
	payment, err := h.billingService.OnPaymentConfirmed(c.Request.Context(), services.PaymentConfirmation{
		Gateway:    c.Param("gateway"),
		ExternalID: req.ExternalID,
		Amount:     req.Amount,
		Status:     req.Status,
		Message:    req.Message,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, payment)
}

// verifiedBody reads the raw body and checks its signature when a secret is configured
func (h *BillingHandler) verifiedBody(c *gin.Context) ([]byte, bool) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.BadRequest(c, "cannot read body")
		return nil, false
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(body))

	if h.webhookSecret == "" {
		if h.requireSignature {
			logger.GetLogger().WithField("gateway", c.Param("gateway")).Error("payment callback rejected: webhook secret is not configured")
			response.Unauthorized(c, "callback signing is not configured")
			return nil, false
		}
		return body, true
	}
	if !ValidSignature(h.webhookSecret, body, c.GetHeader(SignatureHeader)) {
		logger.GetLogger().WithField("gateway", c.Param("gateway")).Warn("payment callback with bad signature")
		response.Unauthorized(c, "invalid signature")
		return nil, false
	}
	return body, true
}

// ValidSignature compares the hex HMAC-SHA256 of body with signature
func ValidSignature(secret string, body []byte, signature string) bool {
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), got)
}
