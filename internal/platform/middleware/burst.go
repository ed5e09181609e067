// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/taibuivan/otpgate/internal/platform/apperr"
	"github.com/taibuivan/otpgate/internal/platform/constants"
	"github.com/taibuivan/otpgate/internal/platform/respond"
)

// # Burst Guard

type burstEntry struct {
	bucket   *rate.Limiter
	lastSeen time.Time
}

// burstGuard keeps one token bucket per client address in memory. It sheds
// floods before they reach Redis and is not shared across replicas.
type burstGuard struct {
	mu      sync.Mutex
	entries map[string]*burstEntry
	rps     rate.Limit
	burst   int
}

func (guard *burstGuard) allow(ip string) bool {
	guard.mu.Lock()
	defer guard.mu.Unlock()

	entry, ok := guard.entries[ip]
	if !ok {
		entry = &burstEntry{bucket: rate.NewLimiter(guard.rps, guard.burst)}
		guard.entries[ip] = entry
	}
	entry.lastSeen = time.Now()
	return entry.bucket.Allow()
}

// evictIdle drops buckets idle for longer than ttl until ctx is done.
func (guard *burstGuard) evictIdle(ctx context.Context, every, ttl time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-ttl)
			guard.mu.Lock()
			for ip, entry := range guard.entries {
				if entry.lastSeen.Before(cutoff) {
					delete(guard.entries, ip)
				}
			}
			guard.mu.Unlock()
		}
	}
}

/*
BurstGuard rejects a client address that exceeds DefaultRateLimitRPS with
429 RATE_LIMITED. Idle buckets are evicted until ctx is cancelled.

Parameters:
  - ctx: context.Context (bounds the eviction goroutine)

Returns:
  - func(http.Handler) http.Handler
*/
func BurstGuard(ctx context.Context) func(http.Handler) http.Handler {
	guard := &burstGuard{
		entries: make(map[string]*burstEntry),
		rps:     rate.Limit(constants.DefaultRateLimitRPS),
		burst:   constants.DefaultRateLimitBurst,
	}
	go guard.evictIdle(ctx, constants.RateLimitCleanupInterval, constants.RateLimitClientTTL)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			if !guard.allow(ClientIP(request)) {
				respond.Error(writer, request, apperr.RateLimited(1))
				return
			}
			next.ServeHTTP(writer, request)
		})
	}
}
