package handlers

import (
	"hostelops/internal/services"
	"hostelops/pkg/pagination"
	"hostelops/pkg/response"

	"github.com/gin-gonic/gin"
)

type HostelHandler struct {
	hostelService *services.HostelService
}

func NewHostelHandler(hostelService *services.HostelService) *HostelHandler {
	return &HostelHandler{hostelService: hostelService}
}

// Create registers a hostel
func (h *HostelHandler) Create(c *gin.Context) {
	var req services.CreateHostelInput
	if !bindJSON(c, &req) {
		return
	}
	hostel, err := h.hostelService.Create(c.Request.Context(), currentIdentity(c), req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, hostel)
}

func (h *HostelHandler) GetByID(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	hostel, err := h.hostelService.Get(c.Request.Context(), currentIdentity(c), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, hostel)
}

// List supports keyword and is_active filters
func (h *HostelHandler) List(c *gin.Context) {
	params := pagination.ParsePageParams(c)
	active, ok := queryBool(c, "is_active")
	if !ok {
		return
	}

	hostels, total, err := h.hostelService.List(c.Request.Context(), currentIdentity(c), services.HostelFilter{
		Keyword:  c.Query("keyword"),
		IsActive: active,
		Page:     params,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessWithPage(c, hostels, pagination.NewPageInfo(params.Page, params.PageSize, total))
}

func (h *HostelHandler) Update(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req services.UpdateHostelInput
	if !bindJSON(c, &req) {
		return
	}
	hostel, err := h.hostelService.Update(c.Request.Context(), currentIdentity(c), id, req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, hostel)
}

func (h *HostelHandler) Activate(c *gin.Context) {
	h.setActive(c, true)
}

func (h *HostelHandler) Deactivate(c *gin.Context) {
	h.setActive(c, false)
}

func (h *HostelHandler) setActive(c *gin.Context, active bool) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	hostel, err := h.hostelService.SetActive(c.Request.Context(), currentIdentity(c), id, active)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, hostel)
}

func (h *HostelHandler) Stats(c *gin.Context) {
	stats, err := h.hostelService.GetStats(c.Request.Context(), currentIdentity(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, stats)
}
