package limiter

import (
	"time"

	"github.com/sirupsen/logrus"
)

// StoreOption configures a RedisStore.
type StoreOption func(*RedisStore)

// WithPrefix sets the Redis key prefix (default "ratelimit:").
func WithPrefix(prefix string) StoreOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// WithTimeout sets the timeout applied to each Redis operation (default 5s).
func WithTimeout(timeout time.Duration) StoreOption {
	return func(s *RedisStore) {
		s.timeout = timeout
	}
}

// WithMaxAttempts sets how many times an increment is tried before the error
// surfaces (default 3).
func WithMaxAttempts(n int) StoreOption {
	return func(s *RedisStore) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithLogger injects a logger (default logrus standard logger).
func WithLogger(log logrus.FieldLogger) Option {
	return func(l *Limiter) {
		l.log = log
	}
}

// WithRecorder injects a custom metrics backend (default no-op).
func WithRecorder(recorder MetricsRecorder) Option {
	return func(l *Limiter) {
		l.recorder = recorder
	}
}
