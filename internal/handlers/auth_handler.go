package handlers

import (
	"hostelops/internal/services"
	apperrors "hostelops/pkg/errors"
	"hostelops/pkg/response"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	authService *services.AuthService
}

func NewAuthHandler(authService *services.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login exchanges username and password for a bearer token
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.authService.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if apperrors.KindOf(err) == apperrors.KindInvalid {
			response.Unauthorized(c, err.Error())
			return
		}
		response.FromError(c, err)
		return
	}
	response.Success(c, res)
}

// Logout is stateless; the client drops its token
func (h *AuthHandler) Logout(c *gin.Context) {
	response.SuccessWithMessage(c, "logged out", nil)
}

// Me returns the caller's account and resolved identity
func (h *AuthHandler) Me(c *gin.Context) {
	id := currentIdentity(c)
	user, err := h.authService.Me(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{
		"user":     user,
		"identity": id,
	})
}

func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req services.ChangePasswordInput
	if !bindJSON(c, &req) {
		return
	}
	if err := h.authService.ChangePassword(c.Request.Context(), currentIdentity(c), req); err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessWithMessage(c, "password changed", nil)
}
