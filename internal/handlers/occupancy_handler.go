package handlers

import (
	"hostelops/internal/services"
	"hostelops/pkg/pagination"
	"hostelops/pkg/response"

	"github.com/gin-gonic/gin"
)

type OccupancyHandler struct {
	occupancyService *services.OccupancyService
}

func NewOccupancyHandler(occupancyService *services.OccupancyService) *OccupancyHandler {
	return &OccupancyHandler{occupancyService: occupancyService}
}

func (h *OccupancyHandler) CreateRoom(c *gin.Context) {
	var req services.CreateRoomInput
	if !bindJSON(c, &req) {
		return
	}
	room, err := h.occupancyService.CreateRoom(c.Request.Context(), currentIdentity(c), req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, room)
}

func (h *OccupancyHandler) ListRooms(c *gin.Context) {
	params := pagination.ParsePageParams(c)
	hostelID, ok := queryUint(c, "hostel_id")
	if !ok {
		return
	}
	rooms, total, err := h.occupancyService.ListRooms(c.Request.Context(), currentIdentity(c), services.RoomFilter{
		HostelID: hostelID,
		RoomType: c.Query("room_type"),
		Page:     params,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessWithPage(c, rooms, pagination.NewPageInfo(params.Page, params.PageSize, total))
}

func (h *OccupancyHandler) CreateBed(c *gin.Context) {
	var req services.CreateBedInput
	if !bindJSON(c, &req) {
		return
	}
	bed, err := h.occupancyService.CreateBed(c.Request.Context(), currentIdentity(c), req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, bed)
}

func (h *OccupancyHandler) ListBeds(c *gin.Context) {
	params := pagination.ParsePageParams(c)
	hostelID, ok := queryUint(c, "hostel_id")
	if !ok {
		return
	}
	roomID, ok := queryUint(c, "room_id")
	if !ok {
		return
	}
	beds, total, err := h.occupancyService.ListBeds(c.Request.Context(), currentIdentity(c), services.BedFilter{
		HostelID: hostelID,
		RoomID:   roomID,
		Status:   c.Query("status"),
		Page:     params,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessWithPage(c, beds, pagination.NewPageInfo(params.Page, params.PageSize, total))
}

func (h *OccupancyHandler) GetBed(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	bed, err := h.occupancyService.GetBed(c.Request.Context(), currentIdentity(c), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, bed)
}

type assignBedRequest struct {
	TenantID uint `json:"tenant_id" binding:"required"`
}

// AssignBed puts a tenant on a free bed
func (h *OccupancyHandler) AssignBed(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req assignBedRequest
	if !bindJSON(c, &req) {
		return
	}
	bed, err := h.occupancyService.AssignBed(c.Request.Context(), currentIdentity(c), id, req.TenantID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, bed)
}

// VacateBed frees an occupied bed
func (h *OccupancyHandler) VacateBed(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	bed, err := h.occupancyService.VacateBed(c.Request.Context(), currentIdentity(c), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, bed)
}

func (h *OccupancyHandler) CheckIn(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req dateRequest
	if !bindJSON(c, &req) {
		return
	}
	bed, err := h.occupancyService.CheckIn(c.Request.Context(), currentIdentity(c), id, req.TenantID, req.Date)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, bed)
}

// CheckOut requires the tenant currently on the bed
func (h *OccupancyHandler) CheckOut(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req dateRequest
	if !bindJSON(c, &req) {
		return
	}
	bed, err := h.occupancyService.CheckOut(c.Request.Context(), currentIdentity(c), id, req.TenantID, req.Date)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, bed)
}
