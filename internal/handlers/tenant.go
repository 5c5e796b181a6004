package handlers

import (
	"hostelops/internal/services"
	"hostelops/pkg/pagination"
	"hostelops/pkg/response"

	"github.com/gin-gonic/gin"
)

// TenantHandler covers resident profiles and visitor accounts
type TenantHandler struct {
	tenantService *services.TenantService
}

func NewTenantHandler(tenantService *services.TenantService) *TenantHandler {
	return &TenantHandler{tenantService: tenantService}
}

// Create registers a tenant with a login account
func (h *TenantHandler) Create(c *gin.Context) {
	var req services.CreateTenantInput
	if !bindJSON(c, &req) {
		return
	}
	tenant, err := h.tenantService.Create(c.Request.Context(), currentIdentity(c), req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, tenant)
}

func (h *TenantHandler) GetByID(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	tenant, err := h.tenantService.Get(c.Request.Context(), currentIdentity(c), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, tenant)
}

func (h *TenantHandler) List(c *gin.Context) {
	params := pagination.ParsePageParams(c)
	hostelID, ok := queryUint(c, "hostel_id")
	if !ok {
		return
	}
	hasBed, ok := queryBool(c, "has_bed")
	if !ok {
		return
	}
	tenants, total, err := h.tenantService.List(c.Request.Context(), currentIdentity(c), services.TenantFilter{
		HostelID: hostelID,
		Keyword:  c.Query("keyword"),
		HasBed:   hasBed,
		Page:     params,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessWithPage(c, tenants, pagination.NewPageInfo(params.Page, params.PageSize, total))
}

// CreateVisitor issues a time-limited read-only account
func (h *TenantHandler) CreateVisitor(c *gin.Context) {
	var req services.CreateVisitorInput
	if !bindJSON(c, &req) {
		return
	}
	user, err := h.tenantService.CreateVisitor(c.Request.Context(), currentIdentity(c), req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, user)
}

type extendVisitorRequest struct {
	Days int `json:"days"`
}

func (h *TenantHandler) ExtendVisitor(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req extendVisitorRequest
	if !bindJSON(c, &req) {
		return
	}
	user, err := h.tenantService.ExtendVisitor(c.Request.Context(), currentIdentity(c), id, req.Days)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, user)
}
