package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestObserver receives per-request timings, keyed by route pattern.
type RequestObserver interface {
	ObserveRequest(route string, status int, d time.Duration)
}

// Logger writes one access-log line per request and reports it to obs.
func Logger(log *zap.Logger, obs RequestObserver) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		}
		if a, ok := AccountFrom(c); ok {
			fields = append(fields, zap.String("account", a.ID))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		switch {
		case status >= 500:
			log.Error("request", fields...)
		case status >= 400:
			log.Info("request", fields...)
		default:
			log.Debug("request", fields...)
		}
		if obs != nil {
			obs.ObserveRequest(c.FullPath(), status, latency)
		}
	}
}
