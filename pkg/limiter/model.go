package limiter

import (
	"context"
	"time"
)

// Decision is the outcome of evaluating a single request against the
// configured limit. Fields are intended to be directly consumable by
// application code and by the HTTP middleware when it sets rate-limit
// headers.
type Decision struct {
	// Allowed reports whether the request is permitted.
	Allowed bool

	// Whitelisted is true when the key was exempt from limiting. No count
	// or window bookkeeping is performed for whitelisted keys.
	Whitelisted bool

	// Count is the number of requests observed for this key in the current
	// window, including this one. Zero for whitelisted keys and for
	// fail-open decisions.
	Count int64

	// Limit is the configured maximum number of requests per window.
	Limit int64

	// ResetAt is the approximate time the current window expires. It is
	// computed as now + window rather than read back from the store's TTL.
	ResetAt time.Time
}

// Remaining returns the number of requests left in the current window,
// clamped at zero.
func (d Decision) Remaining() int64 {
	if r := d.Limit - d.Count; r > 0 {
		return r
	}
	return 0
}

// CounterStore is the shared counter backing a limiter. Implementations must
// increment atomically so concurrent calls from multiple process instances
// never lose updates.
type CounterStore interface {
	// Increment adds 1 to the counter for key and returns the new count.
	// The counter's expiry is set to window only when it is not already
	// set, so the window start is fixed by the first request.
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)

	// Reset deletes the counter for key. Resetting an absent key is a
	// no-op.
	Reset(ctx context.Context, key string) error
}
