package middleware

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/spantrail/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/spantrail/internal/infrastructure/tracing/field"
	"github.com/GriffinCanCode/spantrail/internal/shared/types"
)

// Recovery converts panics into 500 JSON:API errors. The panic is logged as
// a WARN event carrying an error field, so the enclosing span is marked as
// failed. The error id is the request's trace id so a client report can be
// matched to the log lines.
func Recovery(d *tracing.Dispatcher) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(io.Discard, func(c *gin.Context, recovered any) {
		details := panicDetails(recovered)

		d.Warn(c.Request.Context(), "encountered unexpected error",
			field.String(SubjectField, "app_error"),
			field.String(CategoryField, "app_error"),
			field.Error(errors.New(details)))

		appErr := types.NewAppError(http.StatusInternalServerError, details)
		appErr.ID = tracing.TraceID(c.Request.Context())
		c.AbortWithStatusJSON(appErr.StatusCode(), appErr.Response())
	})
}

func panicDetails(recovered any) string {
	switch v := recovered.(type) {
	case string:
		return v
	case error:
		return v.Error()
	default:
		return "Unknown panic message"
	}
}
