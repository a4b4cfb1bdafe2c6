package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/spantrail/internal/shared/id"
)

// RequestIDKey is the gin context key holding the request id
const RequestIDKey = "request_id"

// RequestID assigns every request a ULID request id unless the caller sent
// one, and echoes it in the response headers.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader(id.RequestIDHeader)
		if reqID == "" {
			reqID = id.NewRequestID().String()
			c.Request.Header.Set(id.RequestIDHeader, reqID)
		}

		c.Set(RequestIDKey, reqID)
		c.Header(id.RequestIDHeader, reqID)
		c.Next()
	}
}
