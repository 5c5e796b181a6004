package handlers

import (
	"hostelops/internal/services"
	"hostelops/pkg/pagination"
	"hostelops/pkg/response"

	"github.com/gin-gonic/gin"
)

// NotificationHandler serves the caller's in-app inbox
type NotificationHandler struct {
	notificationService *services.NotificationService
}

func NewNotificationHandler(notificationService *services.NotificationService) *NotificationHandler {
	return &NotificationHandler{notificationService: notificationService}
}

func (h *NotificationHandler) List(c *gin.Context) {
	params := pagination.ParsePageParams(c)
	isRead, ok := queryBool(c, "is_read")
	if !ok {
		return
	}
	items, total, err := h.notificationService.List(c.Request.Context(), currentIdentity(c), services.NotificationFilter{
		IsRead: isRead,
		Page:   params,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessWithPage(c, items, pagination.NewPageInfo(params.Page, params.PageSize, total))
}

func (h *NotificationHandler) Count(c *gin.Context) {
	counts, err := h.notificationService.UnreadCount(c.Request.Context(), currentIdentity(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, counts)
}

func (h *NotificationHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	n, err := h.notificationService.Get(c.Request.Context(), currentIdentity(c), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, n)
}

func (h *NotificationHandler) MarkRead(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	n, err := h.notificationService.MarkRead(c.Request.Context(), currentIdentity(c), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, n)
}

func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	updated, err := h.notificationService.MarkAllRead(c.Request.Context(), currentIdentity(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessWithMessage(c, "All notifications marked as read", gin.H{"updated": updated})
}
