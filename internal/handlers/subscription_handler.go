package handlers

import (
	"time"

	"hostelops/internal/services"
	"hostelops/pkg/response"

	"github.com/gin-gonic/gin"
)

type SubscriptionHandler struct {
	subscriptionService *services.SubscriptionService
}

func NewSubscriptionHandler(subscriptionService *services.SubscriptionService) *SubscriptionHandler {
	return &SubscriptionHandler{subscriptionService: subscriptionService}
}

// ========== Plans ==========

func (h *SubscriptionHandler) ListPlans(c *gin.Context) {
	plans, err := h.subscriptionService.ListPlans(c.Request.Context(), currentIdentity(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, plans)
}

func (h *SubscriptionHandler) CreatePlan(c *gin.Context) {
	var req services.PlanInput
	if !bindJSON(c, &req) {
		return
	}
	plan, err := h.subscriptionService.CreatePlan(c.Request.Context(), currentIdentity(c), req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, plan)
}

// UpdatePlan edits a plan; live subscriptions keep their snapshot until renewed
func (h *SubscriptionHandler) UpdatePlan(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req services.PlanInput
	if !bindJSON(c, &req) {
		return
	}
	plan, err := h.subscriptionService.UpdatePlan(c.Request.Context(), currentIdentity(c), id, req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, plan)
}

// ========== Subscriptions ==========

func (h *SubscriptionHandler) Activate(c *gin.Context) {
	var req services.ActivateInput
	if !bindJSON(c, &req) {
		return
	}
	sub, err := h.subscriptionService.ActivateSubscription(c.Request.Context(), currentIdentity(c), req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, sub)
}

type renewRequest struct {
	EndDate *time.Time `json:"end_date"`
}

func (h *SubscriptionHandler) Renew(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req renewRequest
	if !bindJSON(c, &req) {
		return
	}
	sub, err := h.subscriptionService.Renew(c.Request.Context(), currentIdentity(c), id, req.EndDate)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, sub)
}

func (h *SubscriptionHandler) Cancel(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	sub, err := h.subscriptionService.Cancel(c.Request.Context(), currentIdentity(c), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, sub)
}

func (h *SubscriptionHandler) GetActive(c *gin.Context) {
	hostelID, ok := queryUint(c, "hostel_id")
	if !ok {
		return
	}
	sub, err := h.subscriptionService.GetActive(c.Request.Context(), currentIdentity(c), hostelID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, sub)
}

// Usage reports current counts against the effective limits
func (h *SubscriptionHandler) Usage(c *gin.Context) {
	hostelID, ok := queryUint(c, "hostel_id")
	if !ok {
		return
	}
	report, err := h.subscriptionService.Usage(c.Request.Context(), currentIdentity(c), hostelID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, report)
}
