package limiter

import (
	"context"
	"sync"
	"time"

	"github.com/mailgun/holster/v4/clock"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// BreakerState is the breaker's position in its state machine.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerHalfOpen
	BreakerOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerHalfOpen:
		return "half-open"
	case BreakerOpen:
		return "open"
	}
	return "unknown"
}

// StateChangeListener observes breaker transitions. Listeners run off the
// request path; a slow or failing listener cannot delay request handling.
type StateChangeListener func(from, to BreakerState)

// breaker guards the counter store. While closed, calls pass through and
// their outcomes are accumulated over a rolling window; once the error
// percentage trips the configured threshold the breaker opens and calls
// short-circuit with ErrCircuitOpen, without contacting the store. After
// ResetTimeout a single half-open trial decides whether to close again.
type breaker struct {
	store       CounterStore
	cb          *gobreaker.CircuitBreaker
	callTimeout time.Duration
	log         logrus.FieldLogger
	recorder    MetricsRecorder

	mu        sync.Mutex
	listeners []StateChangeListener
}

func newBreaker(store CounterStore, cfg Config, log logrus.FieldLogger, recorder MetricsRecorder) *breaker {
	b := &breaker{
		store:       store,
		callTimeout: cfg.CallTimeout,
		log:         log,
		recorder:    recorder,
	}

	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "counter-store",
		MaxRequests: 1,
		Interval:    cfg.RollingWindow,
		Timeout:     cfg.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.VolumeThreshold {
				return false
			}
			errPct := float64(counts.TotalFailures) / float64(counts.Requests) * 100
			return errPct >= cfg.ErrorThresholdPercentage
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.transitioned(fromGobreaker(from), fromGobreaker(to))
		},
	})
	return b
}

// Fire delegates to the store's Increment, short-circuiting with
// ErrCircuitOpen while the breaker is open.
func (b *breaker) Fire(ctx context.Context, key string, window time.Duration) (int64, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return b.callStore(ctx, key, window)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return 0, ErrCircuitOpen
		}
		return 0, err
	}
	return res.(int64), nil
}

// callStore runs the increment under the call timeout. A call that exceeds
// it counts as a failure for breaker accounting; if the store responds
// later, its result is discarded.
func (b *breaker) callStore(ctx context.Context, key string, window time.Duration) (interface{}, error) {
	callCtx, cancel := context.WithTimeout(ctx, b.callTimeout)
	defer cancel()

	type result struct {
		count int64
		err   error
	}
	done := make(chan result, 1)

	b.recorder.Add(MetricCall, 1, nil)
	start := clock.Now()

	go func() {
		count, err := b.store.Increment(callCtx, key, window)
		done <- result{count: count, err: err}
	}()

	select {
	case r := <-done:
		b.recorder.Observe(MetricLatency, clock.Now().Sub(start).Seconds(), nil)
		return r.count, r.err
	case <-callCtx.Done():
		return int64(0), callCtx.Err()
	}
}

// State reports the breaker's current state.
func (b *breaker) State() BreakerState {
	return fromGobreaker(b.cb.State())
}

// OnStateChange registers a listener for breaker transitions.
func (b *breaker) OnStateChange(l StateChangeListener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, l)
}

func (b *breaker) transitioned(from, to BreakerState) {
	b.log.WithFields(logrus.Fields{
		"from": from.String(),
		"to":   to.String(),
	}).Info("circuit breaker state changed")
	b.recorder.Add(MetricBreakerTransition, 1, map[string]string{"to": to.String()})

	b.mu.Lock()
	listeners := make([]StateChangeListener, len(b.listeners))
	copy(listeners, b.listeners)
	b.mu.Unlock()

	for _, l := range listeners {
		go l(from, to)
	}
}

func fromGobreaker(s gobreaker.State) BreakerState {
	switch s {
	case gobreaker.StateHalfOpen:
		return BreakerHalfOpen
	case gobreaker.StateOpen:
		return BreakerOpen
	}
	return BreakerClosed
}
