package handlers

import (
	"hostelops/internal/services"
	"hostelops/pkg/pagination"
	"hostelops/pkg/response"

	"github.com/gin-gonic/gin"
)

// ResidentHandler serves complaints and leave applications
type ResidentHandler struct {
	complaintService *services.ComplaintService
	leaveService     *services.LeaveService
}

func NewResidentHandler(complaintService *services.ComplaintService, leaveService *services.LeaveService) *ResidentHandler {
	return &ResidentHandler{complaintService: complaintService, leaveService: leaveService}
}

// ========== Complaints ==========

func (h *ResidentHandler) CreateComplaint(c *gin.Context) {
	var req services.CreateComplaintInput
	if !bindJSON(c, &req) {
		return
	}
	complaint, err := h.complaintService.Create(c.Request.Context(), currentIdentity(c), req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, complaint)
}

func (h *ResidentHandler) ListComplaints(c *gin.Context) {
	params := pagination.ParsePageParams(c)
	hostelID, ok := queryUint(c, "hostel_id")
	if !ok {
		return
	}
	complaints, total, err := h.complaintService.List(c.Request.Context(), currentIdentity(c), services.ComplaintFilter{
		HostelID: hostelID,
		Status:   c.Query("status"),
		Category: c.Query("category"),
		Page:     params,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessWithPage(c, complaints, pagination.NewPageInfo(params.Page, params.PageSize, total))
}

type complaintStatusRequest struct {
	Status string  `json:"status" binding:"required"`
	Notes  *string `json:"notes"`
}

func (h *ResidentHandler) UpdateComplaintStatus(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req complaintStatusRequest
	if !bindJSON(c, &req) {
		return
	}
	complaint, err := h.complaintService.UpdateStatus(c.Request.Context(), currentIdentity(c), id, req.Status, req.Notes)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, complaint)
}

// ========== Leave ==========

func (h *ResidentHandler) ApplyLeave(c *gin.Context) {
	var req services.ApplyLeaveInput
	if !bindJSON(c, &req) {
		return
	}
	leave, err := h.leaveService.Apply(c.Request.Context(), currentIdentity(c), req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, leave)
}

func (h *ResidentHandler) ListLeaves(c *gin.Context) {
	params := pagination.ParsePageParams(c)
	hostelID, ok := queryUint(c, "hostel_id")
	if !ok {
		return
	}
	leaves, total, err := h.leaveService.List(c.Request.Context(), currentIdentity(c), services.LeaveFilter{
		HostelID: hostelID,
		Status:   c.Query("status"),
		Page:     params,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessWithPage(c, leaves, pagination.NewPageInfo(params.Page, params.PageSize, total))
}

type decideLeaveRequest struct {
	Approve bool    `json:"approve"`
	Notes   *string `json:"notes"`
}

func (h *ResidentHandler) DecideLeave(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req decideLeaveRequest
	if !bindJSON(c, &req) {
		return
	}
	leave, err := h.leaveService.Decide(c.Request.Context(), currentIdentity(c), id, req.Approve, req.Notes)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, leave)
}
