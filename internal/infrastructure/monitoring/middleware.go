package monitoring

import (
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware creates a Gin middleware for request metrics
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		metrics.RecordHTTPRequest(method, path, c.Writer.Status(), time.Since(start))
	}
}

// Timer measures one outbound request
type Timer struct {
	start   time.Time
	metrics *Metrics
	client  string
	method  string
	path    string
}

// NewTimer starts timing a request made by client
func NewTimer(metrics *Metrics, client, method, path string) *Timer {
	return &Timer{
		start:   time.Now(),
		metrics: metrics,
		client:  client,
		method:  method,
		path:    path,
	}
}

// Stop records the request with its result and status
func (t *Timer) Stop(result, status string) {
	if t == nil || t.metrics == nil {
		return
	}
	t.metrics.RecordClientRequest(t.client, t.method, t.path, result, status, time.Since(t.start))
}
