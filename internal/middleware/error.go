package middleware

import (
	"hostelops/pkg/logger"
	"hostelops/pkg/response"

	"github.com/gin-gonic/gin"
)

// ErrorHandler recovers panics into a 500 reply
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.GetLogger().WithField("request_id", c.GetString(requestIDKey)).
					Errorf("panic recovered: %v", err)
				response.ServerError(c, "internal server error")
				c.Abort()
			}
		}()

		c.Next()
	}
}
