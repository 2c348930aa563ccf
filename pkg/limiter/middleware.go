package limiter

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Error codes carried in rejection and failure responses.
const (
	CodeRateLimitExceeded = "rate_limit_exceeded"
	CodeInternalError     = "internal_error"
)

const rateLimitExceededMessage = "you have reached the maximum number of requests allowed within the current time window"

// ErrorResponse is the JSON body written for rejected requests and for
// internal limiter failures.
type ErrorResponse struct {
	Status  string        `json:"status"`
	Code    string        `json:"code"`
	Message string        `json:"message"`
	Details *ErrorDetails `json:"details,omitempty"`
}

// ErrorDetails gives rejected clients enough to implement correct backoff.
type ErrorDetails struct {
	Limit    int64 `json:"limit"`
	Current  int64 `json:"current"`
	WindowMs int64 `json:"windowMs"`
}

// NewRejection builds the 429 response body for a denied decision.
func NewRejection(d Decision, window time.Duration) ErrorResponse {
	return ErrorResponse{
		Status:  "error",
		Code:    CodeRateLimitExceeded,
		Message: rateLimitExceededMessage,
		Details: &ErrorDetails{
			Limit:    d.Limit,
			Current:  d.Count,
			WindowMs: window.Milliseconds(),
		},
	}
}

// SetHeaders writes the rate-limit headers for a non-whitelisted decision.
// The reset timestamp is ISO-8601.
func SetHeaders(h http.Header, d Decision) {
	h.Set("X-RateLimit-Limit", strconv.FormatInt(d.Limit, 10))
	h.Set("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining(), 10))
	h.Set("X-RateLimit-Reset", d.ResetAt.UTC().Format(time.RFC3339))
}

// KeyFunc extracts the rate-limit key from a request.
type KeyFunc func(*http.Request) string

// ClientIP is the default KeyFunc: the first X-Forwarded-For entry, then
// X-Real-IP, then the RemoteAddr host.
func ClientIP(r *http.Request) string {
	if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}

// MiddlewareOption configures the HTTP middleware.
type MiddlewareOption func(*middlewareConfig)

type middlewareConfig struct {
	keyFunc KeyFunc
}

// WithKeyFunc overrides how the rate-limit key is extracted from a request.
func WithKeyFunc(fn KeyFunc) MiddlewareOption {
	return func(c *middlewareConfig) {
		c.keyFunc = fn
	}
}

// Middleware returns a handler wrapper enforcing l ahead of protected
// routes. Rejected requests get a structured 429; store failures that are
// not configured to fail open get a generic 500, distinct from a rejection.
func Middleware(l *Limiter, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	mc := middlewareConfig{keyFunc: ClientIP}
	for _, opt := range opts {
		opt(&mc)
	}
	window := l.Config().Window

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision, err := l.Evaluate(r.Context(), mc.keyFunc(r))
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, ErrorResponse{
					Status:  "error",
					Code:    CodeInternalError,
					Message: http.StatusText(http.StatusInternalServerError),
				})
				return
			}

			if !decision.Whitelisted {
				SetHeaders(w.Header(), decision)
			}

			if !decision.Allowed {
				writeJSON(w, http.StatusTooManyRequests, NewRejection(decision, window))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
