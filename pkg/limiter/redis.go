package limiter

import (
	"context"
	_ "embed"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

//go:embed fixed_window.lua
var fixedWindowScript string

const retryBackoff = 25 * time.Millisecond

// RedisStore is a CounterStore backed by Redis. The increment runs as a Lua
// script so the count and its window expiry are updated atomically, which
// makes it safe to share one budget per key across many application
// instances.
//
// Connection failures and timeouts are retried a small, bounded number of
// times before the error is surfaced to the caller (normally the breaker).
type RedisStore struct {
	client      *redis.Client
	scriptSHA   string
	prefix      string
	timeout     time.Duration
	maxAttempts int
}

var _ CounterStore = (*RedisStore)(nil)

// NewRedisStore verifies connectivity, loads the counter script and returns
// a ready store.
func NewRedisStore(client *redis.Client, opts ...StoreOption) (*RedisStore, error) {
	s := &RedisStore{
		client:      client,
		prefix:      "ratelimit:",
		timeout:     5 * time.Second,
		maxAttempts: 3,
	}
	for _, opt := range opts {
		opt(s)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, "redis ping failed")
	}

	sha, err := client.ScriptLoad(ctx, fixedWindowScript).Result()
	if err != nil {
		return nil, errors.Wrap(err, "loading fixed window script")
	}
	s.scriptSHA = sha

	return s, nil
}

// Increment atomically adds 1 to the counter for key, sets the window expiry
// if the counter is new, and returns the updated count.
func (s *RedisStore) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	var lastErr error

	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(retryBackoff)
		}
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		count, err := s.eval(ctx, key, window)
		if err == nil {
			return count, nil
		}
		lastErr = err
	}

	return 0, errors.Wrap(lastErr, "fixed window increment failed")
}

func (s *RedisStore) eval(ctx context.Context, key string, window time.Duration) (int64, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	k := s.prefix + key
	count, err := s.client.EvalSha(opCtx, s.scriptSHA, []string{k}, window.Milliseconds()).Int64()
	if err != nil && redis.HasErrorPrefix(err, "NOSCRIPT") {
		// Script cache was flushed, likely a Redis restart. Eval reloads it.
		count, err = s.client.Eval(opCtx, fixedWindowScript, []string{k}, window.Milliseconds()).Int64()
	}
	return count, err
}

// Reset deletes the counter for key. Deleting an absent key is a no-op.
func (s *RedisStore) Reset(ctx context.Context, key string) error {
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return s.client.Del(opCtx, s.prefix+key).Err()
}

// Close releases the underlying client connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
