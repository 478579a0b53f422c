package middleware

import (
	"context"

	"github.com/erp/catalogsync/internal/infrastructure/telemetry"
	"github.com/gin-gonic/gin"
)

// Profiling runs the request under pprof labels for its route pattern, method
// and platform, so Pyroscope can break profiles down by endpoint. Without a
// running profiler the labels only cost a context copy.
func Profiling() gin.HandlerFunc {
	return func(c *gin.Context) {
		labels := map[string]string{
			telemetry.ProfilingLabelMethod:   c.Request.Method,
			telemetry.ProfilingLabelRoute:    c.FullPath(),
			telemetry.ProfilingLabelPlatform: c.Param("platform"),
		}
		telemetry.WithProfilingLabels(c.Request.Context(), labels, func(ctx context.Context) {
			c.Request = c.Request.WithContext(ctx)
			c.Next()
		})
	}
}
