package limiter

import (
	"time"

	"github.com/mailgun/holster/v4/setter"
	"github.com/pkg/errors"
)

// Config enumerates every recognized limiter option. A zero value is usable:
// SetDefaults fills in production defaults and Validate rejects invalid
// combinations before any request is served. Config is read-only after the
// limiter is constructed.
type Config struct {
	// Window is the fixed interval over which requests are counted before
	// the counter resets. Default 1 minute.
	Window time.Duration

	// MaxRequests is the number of requests allowed per key per window.
	// Default 100.
	MaxRequests int64

	// Whitelist lists keys exempt from limiting entirely.
	Whitelist []string

	// CacheEnabled turns on the process-local count cache, trading a small
	// amount of accuracy for fewer store round-trips. Default true.
	// Use the pointer form so the zero Config still enables caching.
	CacheEnabled *bool

	// CacheTTL bounds how stale a locally cached count may be. It should be
	// much shorter than Window. Default 1 second.
	CacheTTL time.Duration

	// CacheSize caps the number of keys held in the local cache; least
	// recently used keys are evicted beyond it. Default 50,000.
	CacheSize int

	// SkipFailedRequests selects the fail-open policy: when true, requests
	// are allowed if the store (or breaker) fails; when false, such
	// failures surface as errors distinct from a rate-limit rejection.
	// Default false.
	SkipFailedRequests bool

	// ErrorThresholdPercentage is the rolling error percentage at which the
	// breaker trips open. Must be in (0, 100]. Default 50.
	ErrorThresholdPercentage float64

	// VolumeThreshold is the minimum number of calls in the rolling window
	// before the error percentage is considered. Default 10.
	VolumeThreshold uint32

	// RollingWindow is the period over which breaker call outcomes are
	// accumulated while closed. Default 10 seconds.
	RollingWindow time.Duration

	// CallTimeout bounds each store call made through the breaker; a call
	// exceeding it counts as a failure even if the store eventually
	// responds. Default 30 seconds.
	CallTimeout time.Duration

	// ResetTimeout is how long the breaker stays open before allowing a
	// half-open trial call. Default 30 seconds.
	ResetTimeout time.Duration
}

// SetDefaults fills any unset field with its default value.
func (c *Config) SetDefaults() {
	setter.SetDefault(&c.Window, time.Minute)
	setter.SetDefault(&c.MaxRequests, int64(100))
	if c.CacheEnabled == nil {
		enabled := true
		c.CacheEnabled = &enabled
	}
	setter.SetDefault(&c.CacheTTL, time.Second)
	setter.SetDefault(&c.CacheSize, 50_000)
	setter.SetDefault(&c.ErrorThresholdPercentage, 50.0)
	setter.SetDefault(&c.VolumeThreshold, uint32(10))
	setter.SetDefault(&c.RollingWindow, 10*time.Second)
	setter.SetDefault(&c.CallTimeout, 30*time.Second)
	setter.SetDefault(&c.ResetTimeout, 30*time.Second)
}

// Validate reports the first invalid option it finds.
func (c *Config) Validate() error {
	if c.Window <= 0 {
		return errors.New("Window must be positive")
	}
	if c.MaxRequests <= 0 {
		return errors.New("MaxRequests must be positive")
	}
	if c.CacheTTL <= 0 {
		return errors.New("CacheTTL must be positive")
	}
	if c.CacheTTL >= c.Window {
		return errors.New("CacheTTL must be shorter than Window")
	}
	if c.CacheSize <= 0 {
		return errors.New("CacheSize must be positive")
	}
	if c.ErrorThresholdPercentage <= 0 || c.ErrorThresholdPercentage > 100 {
		return errors.New("ErrorThresholdPercentage must be in (0, 100]")
	}
	if c.RollingWindow <= 0 {
		return errors.New("RollingWindow must be positive")
	}
	if c.CallTimeout <= 0 {
		return errors.New("CallTimeout must be positive")
	}
	if c.ResetTimeout <= 0 {
		return errors.New("ResetTimeout must be positive")
	}
	return nil
}

func (c *Config) cachingEnabled() bool {
	return c.CacheEnabled != nil && *c.CacheEnabled
}
