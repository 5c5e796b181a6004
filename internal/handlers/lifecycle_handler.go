package handlers

import (
	"hostelops/internal/scope"
	"hostelops/internal/services"
	"hostelops/pkg/response"

	"github.com/gin-gonic/gin"
)

// LifecycleHandler serves soft delete and restore for hostels, rooms,
// beds and tenants. Each route binds the entity kind up front.
type LifecycleHandler struct {
	lifecycleService *services.LifecycleService
}

func NewLifecycleHandler(lifecycleService *services.LifecycleService) *LifecycleHandler {
	return &LifecycleHandler{lifecycleService: lifecycleService}
}

func (h *LifecycleHandler) Delete(entity scope.Entity) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c, "id")
		if !ok {
			return
		}
		ref := services.EntityRef{Entity: entity, ID: id}
		if err := h.lifecycleService.SoftDelete(c.Request.Context(), currentIdentity(c), ref); err != nil {
			response.FromError(c, err)
			return
		}
		response.SuccessWithMessage(c, "deleted", ref)
	}
}

func (h *LifecycleHandler) Restore(entity scope.Entity) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c, "id")
		if !ok {
			return
		}
		ref := services.EntityRef{Entity: entity, ID: id}
		if err := h.lifecycleService.Restore(c.Request.Context(), currentIdentity(c), ref); err != nil {
			response.FromError(c, err)
			return
		}
		response.SuccessWithMessage(c, "restored", ref)
	}
}
