package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// loopbackOnly rejects requests that did not originate on this machine or
// that name a non-local Host, which blocks DNS rebinding from a browser.
func loopbackOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !isLoopbackRequest(c.Request) {
			c.AbortWithStatusJSON(http.StatusForbidden, apiResponse{OK: false, Code: "forbidden", Error: HTTPErrorForbiddenText})
			return
		}
		if !isSafeLocalHost(c.Request.Host) {
			c.AbortWithStatusJSON(http.StatusForbidden, apiResponse{OK: false, Code: "forbidden", Error: HTTPErrorForbiddenHostText})
			return
		}
		c.Next()
	}
}

// withTimeout bounds the handler's request context.
func withTimeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
