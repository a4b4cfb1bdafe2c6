package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/spantrail/internal/shared/types"
)

// Timeout bounds the request context by d. When the deadline passes and the
// handler has written nothing, the client gets a 408.
func Timeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if d <= 0 {
			c.Next()
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !c.Writer.Written() {
			appErr := types.NewAppError(http.StatusRequestTimeout, "request timed out")
			c.AbortWithStatusJSON(appErr.StatusCode(), appErr.Response())
		}
	}
}
