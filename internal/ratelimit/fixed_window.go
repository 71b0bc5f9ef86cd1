package ratelimit

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultPrefix = "casedoc:ratelimit"
	redisTimeout  = 2 * time.Second
)

// FixedWindowLimiter counts calls per key in Redis, so every service replica
// shares one budget. Counters live in keys named after the window slot and
// expire with it.
type FixedWindowLimiter struct {
	client redis.UniversalClient
	prefix string
	limit  int64
	window time.Duration
	now    func() time.Time
}

// NewFixedWindowLimiter builds a limiter on an existing client.
func NewFixedWindowLimiter(client redis.UniversalClient, prefix string, limit int, window time.Duration) (*FixedWindowLimiter, error) {
	if client == nil {
		return nil, errors.New("rate limiter requires a redis client")
	}
	if limit <= 0 || window < time.Millisecond {
		return nil, errors.New("rate limiter requires positive limit and window")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &FixedWindowLimiter{
		client: client,
		prefix: prefix,
		limit:  int64(limit),
		window: window,
		now:    time.Now,
	}, nil
}

// NewRedisFixedWindowLimiter dials addr and builds a limiter on it.
func NewRedisFixedWindowLimiter(addr, password, prefix string, limit int, window time.Duration) (*FixedWindowLimiter, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("rate limiter redis addr is required")
	}
	return NewFixedWindowLimiter(redis.NewClient(&redis.Options{Addr: addr, Password: password}), prefix, limit, window)
}

// Allow reports whether key still has budget in the current window. Redis
// errors deny the call.
func (l *FixedWindowLimiter) Allow(key string) bool {
	if l == nil {
		return false
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "unknown"
	}
	slot := l.now().UnixMilli() / l.window.Milliseconds()
	redisKey := l.prefix + ":" + key + ":" + strconv.FormatInt(slot, 10)

	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		pipe.PExpire(ctx, redisKey, l.window)
		return nil
	})
	if err != nil {
		return false
	}
	return incr.Val() <= l.limit
}

// RetryAfter is the time left until the current window closes.
func (l *FixedWindowLimiter) RetryAfter() time.Duration {
	windowMs := l.window.Milliseconds()
	left := windowMs - l.now().UnixMilli()%windowMs
	return time.Duration(left) * time.Millisecond
}

// Close releases the Redis connection pool.
func (l *FixedWindowLimiter) Close() error {
	return l.client.Close()
}
