package handlers

import (
	"hostelops/internal/services"
	"hostelops/pkg/response"

	"github.com/gin-gonic/gin"
)

// PublicInfoHandler serves hostel info, notices and the mess menu.
// Visitors only reach the public subset.
type PublicInfoHandler struct {
	infoService *services.PublicInfoService
}

func NewPublicInfoHandler(infoService *services.PublicInfoService) *PublicInfoHandler {
	return &PublicInfoHandler{infoService: infoService}
}

func (h *PublicInfoHandler) HostelInfo(c *gin.Context) {
	hostelID, ok := queryUint(c, "hostel_id")
	if !ok {
		return
	}
	info, err := h.infoService.HostelInfo(c.Request.Context(), currentIdentity(c), hostelID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, info)
}

func (h *PublicInfoHandler) PublicNotices(c *gin.Context) {
	hostelID, ok := queryUint(c, "hostel_id")
	if !ok {
		return
	}
	notices, err := h.infoService.PublicNotices(c.Request.Context(), currentIdentity(c), hostelID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, notices)
}

func (h *PublicInfoHandler) Notices(c *gin.Context) {
	hostelID, ok := queryUint(c, "hostel_id")
	if !ok {
		return
	}
	notices, err := h.infoService.Notices(c.Request.Context(), currentIdentity(c), hostelID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, notices)
}

func (h *PublicInfoHandler) CreateNotice(c *gin.Context) {
	var req services.CreateNoticeInput
	if !bindJSON(c, &req) {
		return
	}
	notice, err := h.infoService.CreateNotice(c.Request.Context(), currentIdentity(c), req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, notice)
}

func (h *PublicInfoHandler) MessMenu(c *gin.Context) {
	hostelID, ok := queryUint(c, "hostel_id")
	if !ok {
		return
	}
	menu, err := h.infoService.MessMenu(c.Request.Context(), currentIdentity(c), hostelID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, menu)
}

// SetMessMenu upserts one day/meal slot
func (h *PublicInfoHandler) SetMessMenu(c *gin.Context) {
	var req services.MessMenuInput
	if !bindJSON(c, &req) {
		return
	}
	slot, err := h.infoService.SetMessMenu(c.Request.Context(), currentIdentity(c), req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, slot)
}
