package limiter

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names emitted by the limiter.
const (
	MetricCall              = "ratelimit.call"
	MetricLatency           = "ratelimit.latency"
	MetricDecision          = "ratelimit.decision"
	MetricCacheAccess       = "ratelimit.cache"
	MetricBreakerTransition = "ratelimit.breaker_transition"
)

// MetricsRecorder receives measurements from the limiter. Implementations
// must be safe for concurrent use and must never block the request path.
type MetricsRecorder interface {
	// Add increments a counter-style metric.
	Add(name string, value float64, tags map[string]string)

	// Observe records a sample for a distribution-style metric, such as
	// store call latency in seconds.
	Observe(name string, value float64, tags map[string]string)
}

// NoOpMetricsRecorder is a placeholder that does nothing. It ensures we
// never have to check for a nil recorder in the hot path.
type NoOpMetricsRecorder struct{}

func (NoOpMetricsRecorder) Add(name string, value float64, tags map[string]string)     {}
func (NoOpMetricsRecorder) Observe(name string, value float64, tags map[string]string) {}

// PrometheusRecorder exports limiter measurements as prometheus metrics.
type PrometheusRecorder struct {
	calls       prometheus.Counter
	latency     prometheus.Histogram
	decisions   *prometheus.CounterVec
	cacheAccess *prometheus.CounterVec
	transitions *prometheus.CounterVec
}

var _ MetricsRecorder = (*PrometheusRecorder)(nil)

// NewPrometheusRecorder builds a recorder and registers its collectors with
// reg. Pass prometheus.DefaultRegisterer unless you manage your own registry.
func NewPrometheusRecorder(reg prometheus.Registerer) (*PrometheusRecorder, error) {
	r := &PrometheusRecorder{
		calls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ratelimit_store_calls_total",
			Help: "Counter store calls attempted through the breaker.",
		}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ratelimit_store_duration_seconds",
			Help:    "Latency of counter store calls.",
			Buckets: prometheus.DefBuckets,
		}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ratelimit_decisions_total",
			Help: "Rate limit decisions. Label \"result\" = allowed|rejected.",
		}, []string{"result"}),
		cacheAccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ratelimit_cache_access_total",
			Help: "Local count cache accesses. Label \"type\" = hit|miss.",
		}, []string{"type"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ratelimit_breaker_transitions_total",
			Help: "Breaker state transitions. Label \"to\" = closed|half-open|open.",
		}, []string{"to"}),
	}

	for _, c := range []prometheus.Collector{
		r.calls, r.latency, r.decisions, r.cacheAccess, r.transitions,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *PrometheusRecorder) Add(name string, value float64, tags map[string]string) {
	switch name {
	case MetricCall:
		r.calls.Add(value)
	case MetricDecision:
		r.decisions.WithLabelValues(tags["result"]).Add(value)
	case MetricCacheAccess:
		r.cacheAccess.WithLabelValues(tags["type"]).Add(value)
	case MetricBreakerTransition:
		r.transitions.WithLabelValues(tags["to"]).Add(value)
	}
}

func (r *PrometheusRecorder) Observe(name string, value float64, tags map[string]string) {
	if name == MetricLatency {
		r.latency.Observe(value)
	}
}
