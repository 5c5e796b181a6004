package middleware

import (
	"strings"

	"hostelops/internal/identity"
	apperrors "hostelops/pkg/errors"
	"hostelops/pkg/response"

	"github.com/gin-gonic/gin"
)

const identityKey = "identity"

// AuthMiddleware turns the bearer token into an Identity on the request context
type AuthMiddleware struct {
	provider identity.Provider
}

func NewAuthMiddleware(provider identity.Provider) *AuthMiddleware {
	return &AuthMiddleware{provider: provider}
}

// RequireLogin rejects requests without a valid bearer token
func (m *AuthMiddleware) RequireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.Unauthorized(c, "login required")
			c.Abort()
			return
		}
		if !strings.HasPrefix(authHeader, "Bearer ") {
			response.Unauthorized(c, "malformed authorization header")
			c.Abort()
			return
		}

		id, err := m.provider.Authenticate(c.Request.Context(), strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			if apperrors.KindOf(err) == apperrors.KindUnknown {
				response.FromError(c, err)
			} else {
				response.Unauthorized(c, err.Error())
			}
			c.Abort()
			return
		}

		c.Set(identityKey, id)
		c.Set("user_id", id.UserID)
		c.Next()
	}
}

// RequireRole is a coarse gate in front of routes only some roles may reach.
// Hostel scoping is still decided by the services.
func (m *AuthMiddleware) RequireRole(roles ...identity.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := CurrentIdentity(c)
		if id == nil {
			response.Unauthorized(c, "login required")
			c.Abort()
			return
		}
		for _, role := range roles {
			if id.Role == role {
				c.Next()
				return
			}
		}
		response.Forbidden(c, "role "+string(id.Role)+" may not access this resource")
		c.Abort()
	}
}

// CurrentIdentity returns the identity set by RequireLogin, nil when absent
func CurrentIdentity(c *gin.Context) *identity.Identity {
	v, ok := c.Get(identityKey)
	if !ok {
		return nil
	}
	id, _ := v.(*identity.Identity)
	return id
}
