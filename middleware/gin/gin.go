// Package middleware adapts the limiter to the gin framework.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/manenim/resilient-rate-limiter/pkg/limiter"
)

// KeyFunc extracts the rate-limit key from a gin request context.
type KeyFunc func(*gin.Context) string

// ClientIP keys requests by gin's resolved client IP.
func ClientIP(c *gin.Context) string {
	return c.ClientIP()
}

// RateLimiter enforces l ahead of the wrapped handlers, with the same header
// and body semantics as the net/http middleware.
func RateLimiter(l *limiter.Limiter, keyFunc KeyFunc) gin.HandlerFunc {
	if keyFunc == nil {
		keyFunc = ClientIP
	}
	window := l.Config().Window

	return func(c *gin.Context) {
		decision, err := l.Evaluate(c.Request.Context(), keyFunc(c))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, limiter.ErrorResponse{
				Status:  "error",
				Code:    limiter.CodeInternalError,
				Message: http.StatusText(http.StatusInternalServerError),
			})
			return
		}

		if !decision.Whitelisted {
			limiter.SetHeaders(c.Writer.Header(), decision)
		}

		if !decision.Allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, limiter.NewRejection(decision, window))
			return
		}

		c.Next()
	}
}
