package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
)

// Recovery converts a handler panic into a 500. When the request is traced
// the body carries the trace id so a failed evaluation can be looked up.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			ctx := c.Request.Context()
			slog.ErrorContext(ctx, "handler panicked",
				"panic", rec,
				"route", c.FullPath(),
				"stack", string(debug.Stack()))

			body := gin.H{"error": "internal server error"}
			if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
				body["trace_id"] = sc.TraceID().String()
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, body)
		}()
		c.Next()
	}
}
