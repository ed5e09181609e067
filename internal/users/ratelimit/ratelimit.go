// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package ratelimit caps requests per identifier inside a fixed time window.

The first request of a window creates a counter that expires with the
window; every request increments it and is admitted only if the value
returned by the increment is within the limit. Increment and expiry happen in
one Lua script, so two concurrent requests can never both observe "first in
window" or both slip under the limit.
*/
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taibuivan/otpgate/internal/platform/apperr"
	"github.com/taibuivan/otpgate/internal/platform/constants"
)

const (
	// DefaultLimit is the number of requests admitted per window.
	DefaultLimit = 60

	// DefaultWindow is the fixed window length.
	DefaultWindow = 60 * time.Second
)

// incrementScript returns {count, pttl} after counting one request.
//
// KEYS[1] counter key, ARGV[1] window in milliseconds.
var incrementScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// Decision is the outcome of one rate-limit check.
type Decision struct {
	Allowed   bool
	Limit     int
	Count     int64
	Remaining int
	ResetIn   time.Duration
}

// RetryAfter is ResetIn rounded up to whole seconds, never below one.
func (decision Decision) RetryAfter() int {
	seconds := int(math.Ceil(decision.ResetIn.Seconds()))
	if seconds < 1 {
		return 1
	}
	return seconds
}

// Limiter is a Redis-backed fixed-window limiter.
//
// It is safe for concurrent use and across processes sharing one Redis.
type Limiter struct {
	client  redis.UniversalClient
	limit   int
	window  time.Duration
	timeout time.Duration
}

// NewLimiter creates a Limiter admitting limit requests per window.
// Non-positive values fall back to the defaults.
func NewLimiter(client redis.UniversalClient, limit int, window, timeout time.Duration) *Limiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{client: client, limit: limit, window: window, timeout: timeout}
}

// Limit returns the per-window request allowance.
func (limiter *Limiter) Limit() int { return limiter.limit }

func counterKey(identifier string) string {
	return constants.RedisPrefixRate + identifier
}

// Allow counts one request for identifier and reports whether it is admitted.
// Store failures are returned as DependencyUnavailable.
func (limiter *Limiter) Allow(ctx context.Context, identifier string) (Decision, error) {
	storeCtx, cancel := limiter.storeContext(ctx)
	defer cancel()

	reply, err := incrementScript.Run(storeCtx, limiter.client,
		[]string{counterKey(identifier)}, limiter.window.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Decision{}, apperr.DependencyUnavailable("rate limiter", fmt.Errorf("redis_rate_increment_failed: %w", err))
	}
	if len(reply) != 2 {
		return Decision{}, apperr.Internal(fmt.Errorf("redis_rate_increment_unexpected_reply: %v", reply))
	}

	return limiter.decide(reply[0], time.Duration(reply[1])*time.Millisecond), nil
}

// Status reports the current window for identifier without counting a request.
func (limiter *Limiter) Status(ctx context.Context, identifier string) (Decision, error) {
	storeCtx, cancel := limiter.storeContext(ctx)
	defer cancel()

	key := counterKey(identifier)

	var (
		countCmd *redis.StringCmd
		ttlCmd   *redis.DurationCmd
	)
	_, err := limiter.client.Pipelined(storeCtx, func(pipe redis.Pipeliner) error {
		countCmd = pipe.Get(storeCtx, key)
		ttlCmd = pipe.PTTL(storeCtx, key)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return Decision{}, apperr.DependencyUnavailable("rate limiter", fmt.Errorf("redis_rate_status_failed: %w", err))
	}

	count, err := countCmd.Int64()
	if err != nil {
		// No window open: a full allowance is available
		return Decision{Allowed: true, Limit: limiter.limit, Remaining: limiter.limit}, nil
	}

	resetIn := ttlCmd.Val()
	if resetIn < 0 {
		resetIn = 0
	}

	return limiter.decide(count, resetIn), nil
}

func (limiter *Limiter) decide(count int64, resetIn time.Duration) Decision {
	remaining := limiter.limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return Decision{
		Allowed:   count <= int64(limiter.limit),
		Limit:     limiter.limit,
		Count:     count,
		Remaining: remaining,
		ResetIn:   resetIn,
	}
}

func (limiter *Limiter) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if limiter.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, limiter.timeout)
}
