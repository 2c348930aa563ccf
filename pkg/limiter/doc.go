// Package limiter provides distributed fixed-window rate limiting with
// circuit-breaker protection for the shared counter store.
//
// The primary entry point is the Limiter:
//
//	dec, err := l.Evaluate(ctx, key)
//
// The returned Decision contains whether the request is allowed, the count
// observed in the current window, the configured limit, and the approximate
// window reset time for callers that want to set rate-limit headers.
//
// # Overview
//
// Each key (typically a client IP) owns a counter in a shared store. The
// counter is incremented atomically on each request and expires after the
// configured window, so any number of application instances enforce one
// global budget per key. A request is allowed while the count stays at or
// below MaxRequests.
//
// Three collaborating pieces sit behind Evaluate:
//
//   - CounterStore: the shared atomic increment-with-expiry counter. The
//     Redis implementation runs the increment as a Lua script; the memory
//     implementation serves tests and single-instance deployments.
//   - Circuit breaker: wraps every store call. When the rolling error
//     percentage trips the configured threshold the breaker opens and calls
//     fail fast without contacting the store, probing again after
//     ResetTimeout through a single half-open trial call.
//   - Local count cache: a short-lived per-process LRU of recent counts that
//     avoids a store round-trip when the same key is evaluated again within
//     CacheTTL. It is never authoritative and is reconciled to the store on
//     every cache miss.
//
// # Failure Policy
//
// When the store is unreachable (or the breaker is open), a request is
// neither silently allowed nor counted as a rate-limit violation. The
// SkipFailedRequests option picks the policy: fail open (allow, with a
// logged warning) or surface the failure as an error distinct from a
// rejection. ErrCircuitOpen and ErrStoreUnavailable identify the two
// failure shapes; both match ErrStoreUnavailable under errors.Is.
//
// # Consistency
//
// The shared store's atomic increment guarantees no lost updates across
// processes. Two instances may still hold slightly different views of the
// current count for up to CacheTTL because the local cache is process-local;
// that approximation is the price of skipping a network round-trip per
// request. Decision.ResetAt is likewise computed as now + Window rather than
// read back from the store's TTL.
//
// # Configuration
//
// Config is an explicit struct enumerating every recognized option. Defaults
// are applied and the combination is validated when the Limiter is
// constructed, so an invalid setup fails at startup rather than per request.
// Ancillary collaborators are injected through functional options:
//
//	l, err := limiter.New(store, limiter.Config{
//		Window:      time.Minute,
//		MaxRequests: 100,
//		Whitelist:   []string{"10.0.0.1"},
//	},
//		limiter.WithLogger(log),
//		limiter.WithRecorder(recorder),
//	)
//
// # HTTP Usage
//
// Middleware adapts a Limiter to net/http, extracting the client IP (or a
// custom key via WithKeyFunc), setting X-RateLimit-Limit,
// X-RateLimit-Remaining and X-RateLimit-Reset on every non-whitelisted
// request, and writing a structured 429 body on rejection. A gin adapter
// with the same semantics lives in middleware/gin.
//
// # Observability
//
// Breaker transitions are logged, counted, and delivered to listeners
// registered with OnBreakerStateChange; listeners run off the request path
// so monitoring failures cannot affect request handling. Metrics flow
// through the MetricsRecorder interface; NewPrometheusRecorder provides a
// prometheus-backed implementation and NoOpMetricsRecorder is the default.
package limiter
