package server

import (
	"time"

	"github.com/gin-gonic/gin"
)

func (s *Handler) loggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		fields := []interface{}{
			"method", c.Request.Method,
			"path", path,
			"query", query,
			"status", c.Writer.Status(),
			"duration", time.Since(start).String(),
			"clientIP", c.ClientIP(),
		}

		if len(c.Errors) > 0 {
			s.logger.Errorw("Request errors", append(fields, "errors", c.Errors.String())...)
			return
		}
		s.logger.Infow("Request processed", fields...)
	}
}
