package handlers

import (
	"strconv"
	"time"

	"hostelops/internal/identity"
	"hostelops/internal/middleware"
	"hostelops/pkg/response"

	"github.com/gin-gonic/gin"
)

// parseID reads a uint path parameter, replying 400 on failure
func parseID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		response.BadRequest(c, "invalid "+name)
		return 0, false
	}
	return uint(id), true
}

// queryUint reads an optional uint query parameter
func queryUint(c *gin.Context, name string) (*uint, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		response.BadRequest(c, "invalid "+name)
		return nil, false
	}
	u := uint(v)
	return &u, true
}

// queryBool reads an optional true/false query parameter
func queryBool(c *gin.Context, name string) (*bool, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		response.BadRequest(c, "invalid "+name)
		return nil, false
	}
	return &v, true
}

// bindJSON decodes the body into req, replying 400 on failure
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		response.BadRequest(c, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func currentIdentity(c *gin.Context) *identity.Identity {
	return middleware.CurrentIdentity(c)
}

// dateRequest carries an optional effective date for check-in/check-out
type dateRequest struct {
	TenantID uint       `json:"tenant_id" binding:"required"`
	Date     *time.Time `json:"date"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}
