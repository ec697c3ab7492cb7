package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/feed-engine/pkg/metrics"
)

// Metrics 记录请求数与耗时，路由未匹配时 path 记为 unmatched
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := metrics.NewTimer()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		timer.ObserveDuration(metrics.HTTPRequestDuration, path, c.Request.Method)
		metrics.HTTPRequestsTotal.WithLabelValues(path, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
	}
}
