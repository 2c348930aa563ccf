package limiter

import (
	"context"
	"errors"

	"github.com/mailgun/holster/v4/clock"
	"github.com/sirupsen/logrus"
)

// Limiter combines the shared counter store, the circuit breaker guarding it
// and the process-local count cache into a single allow/reject decision per
// request key.
//
// A Limiter is an explicitly constructed instance: it holds no package-level
// state, so several independently configured limiters can coexist in one
// process and none of them leaks state across tests.
type Limiter struct {
	cfg       Config
	store     CounterStore
	breaker   *breaker
	cache     *countCache
	whitelist map[string]struct{}
	log       logrus.FieldLogger
	recorder  MetricsRecorder
}

// New validates cfg, applies defaults and builds a Limiter over store.
func New(store CounterStore, cfg Config, opts ...Option) (*Limiter, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	l := &Limiter{
		cfg:      cfg,
		store:    store,
		log:      logrus.StandardLogger(),
		recorder: NoOpMetricsRecorder{},
	}
	for _, opt := range opts {
		opt(l)
	}

	l.whitelist = make(map[string]struct{}, len(cfg.Whitelist))
	for _, key := range cfg.Whitelist {
		l.whitelist[key] = struct{}{}
	}

	l.breaker = newBreaker(store, cfg, l.log, l.recorder)
	if cfg.cachingEnabled() {
		l.cache = newCountCache(cfg.CacheSize, l.recorder)
	}
	return l, nil
}

// Config returns a copy of the limiter's effective configuration.
func (l *Limiter) Config() Config {
	return l.cfg
}

// Evaluate decides whether one request for key may proceed.
//
// Whitelisted keys are allowed without touching the cache or the store. For
// all other keys the count comes from the local cache when fresh, otherwise
// from a breaker-protected store increment whose result is cached for
// Config.CacheTTL.
//
// When the store cannot be consulted the request is neither silently allowed
// nor rejected as a rate-limit violation: with SkipFailedRequests the
// decision is allowed (fail open) and a warning is logged, otherwise the
// error surfaces as ErrStoreUnavailable (or ErrCircuitOpen when the breaker
// short-circuited).
func (l *Limiter) Evaluate(ctx context.Context, key string) (Decision, error) {
	if _, ok := l.whitelist[key]; ok {
		return Decision{Allowed: true, Whitelisted: true}, nil
	}

	count, err := l.currentCount(ctx, key)
	if err != nil {
		if l.cfg.SkipFailedRequests {
			l.log.WithError(err).WithField("key", key).
				Warn("counter store unavailable, failing open")
			l.recorder.Add(MetricDecision, 1, map[string]string{"result": "allowed"})
			return Decision{
				Allowed: true,
				Limit:   l.cfg.MaxRequests,
				ResetAt: clock.Now().Add(l.cfg.Window),
			}, nil
		}
		return Decision{}, err
	}

	d := Decision{
		Allowed: count <= l.cfg.MaxRequests,
		Count:   count,
		Limit:   l.cfg.MaxRequests,
		// Approximation: the true window started at the key's first
		// request, but we do not read the TTL back from the store.
		ResetAt: clock.Now().Add(l.cfg.Window),
	}

	result := "allowed"
	if !d.Allowed {
		result = "rejected"
	}
	l.recorder.Add(MetricDecision, 1, map[string]string{"result": result})
	return d, nil
}

func (l *Limiter) currentCount(ctx context.Context, key string) (int64, error) {
	if l.cache != nil {
		if count, ok := l.cache.get(key); ok {
			return count, nil
		}
	}

	count, err := l.breaker.Fire(ctx, key, l.cfg.Window)
	if err != nil {
		if errors.Is(err, ErrCircuitOpen) {
			return 0, err
		}
		if cerr := ctx.Err(); cerr != nil {
			return 0, cerr
		}
		return 0, wrapUnavailable(err)
	}

	if l.cache != nil {
		l.cache.add(key, count, millisecondNow()+l.cfg.CacheTTL.Milliseconds())
	}
	return count, nil
}

// Reset clears the counter for key, for administrative use. It also drops
// any locally cached count so the next request observes the reset
// immediately. Resetting an absent key is a no-op.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	if l.cache != nil {
		l.cache.remove(key)
	}
	if err := l.store.Reset(ctx, key); err != nil {
		return wrapUnavailable(err)
	}
	return nil
}

// BreakerState reports the current state of the breaker guarding the store.
func (l *Limiter) BreakerState() BreakerState {
	return l.breaker.State()
}

// OnBreakerStateChange registers a listener notified on every breaker
// transition. Listeners are invoked off the request path.
func (l *Limiter) OnBreakerStateChange(listener StateChangeListener) {
	l.breaker.OnStateChange(listener)
}
