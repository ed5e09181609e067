// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package ratelimit_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/otpgate/internal/platform/apperr"
	"github.com/taibuivan/otpgate/internal/platform/middleware"
	"github.com/taibuivan/otpgate/internal/users/ratelimit"
)

func setup(t *testing.T) (*ratelimit.Limiter, *miniredis.Miniredis) {
	t.Helper()

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	return ratelimit.NewLimiter(client, 60, time.Minute, time.Second), server
}

/*
TestLimiter_SixtyFirstRejected admits 60 requests and rejects the 61st.
*/
func TestLimiter_SixtyFirstRejected(t *testing.T) {
	ctx := context.Background()
	limiter, server := setup(t)

	for i := 1; i <= 60; i++ {
		decision, err := limiter.Allow(ctx, "ip:198.51.100.1")
		require.NoError(t, err)
		require.True(t, decision.Allowed, "request %d", i)
		assert.Equal(t, 60-i, decision.Remaining)
	}

	decision, err := limiter.Allow(ctx, "ip:198.51.100.1")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, int64(61), decision.Count)
	assert.Equal(t, 0, decision.Remaining)
	assert.Greater(t, decision.ResetIn, time.Duration(0))

	// The window is set once, by the first request
	assert.LessOrEqual(t, server.TTL("auth:rate:ip:198.51.100.1"), time.Minute)
}

/*
TestLimiter_NewWindowAfterExpiry resets the counter once the window lapses.
*/
func TestLimiter_NewWindowAfterExpiry(t *testing.T) {
	ctx := context.Background()
	limiter, server := setup(t)

	for i := 0; i < 61; i++ {
		_, err := limiter.Allow(ctx, "acc-1")
		require.NoError(t, err)
	}

	server.FastForward(time.Minute + time.Millisecond)

	decision, err := limiter.Allow(ctx, "acc-1")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, int64(1), decision.Count)
}

/*
TestLimiter_IdentifiersAreIndependent keeps windows per identifier.
*/
func TestLimiter_IdentifiersAreIndependent(t *testing.T) {
	ctx := context.Background()
	limiter, _ := setup(t)

	for i := 0; i < 61; i++ {
		_, err := limiter.Allow(ctx, "noisy")
		require.NoError(t, err)
	}

	decision, err := limiter.Allow(ctx, "quiet")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

/*
TestLimiter_ConcurrentAdmitsExactlyLimit never over-admits under contention.
*/
func TestLimiter_ConcurrentAdmitsExactlyLimit(t *testing.T) {
	ctx := context.Background()
	limiter, _ := setup(t)

	var (
		wg       sync.WaitGroup
		admitted atomic.Int32
		start    = make(chan struct{})
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			decision, err := limiter.Allow(ctx, "shared")
			if err == nil && decision.Allowed {
				admitted.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(60), admitted.Load())
}

/*
TestLimiter_Status reads without counting.
*/
func TestLimiter_Status(t *testing.T) {
	ctx := context.Background()
	limiter, _ := setup(t)

	decision, err := limiter.Status(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, 60, decision.Remaining)

	for i := 0; i < 3; i++ {
		_, err := limiter.Allow(ctx, "acc-1")
		require.NoError(t, err)
	}

	decision, err = limiter.Status(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), decision.Count)
	assert.Equal(t, 57, decision.Remaining)
	assert.Greater(t, decision.ResetIn, time.Duration(0))

	// Status itself did not count
	decision, err = limiter.Status(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), decision.Count)
}

/*
TestLimiter_StoreDown surfaces DependencyUnavailable.
*/
func TestLimiter_StoreDown(t *testing.T) {
	limiter, server := setup(t)
	server.Close()

	_, err := limiter.Allow(context.Background(), "acc-1")
	assert.ErrorIs(t, err, apperr.ErrDependencyUnavailable)
}

/*
TestMiddleware sets headers and rejects with 429.
*/
func TestMiddleware(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	limiter := ratelimit.NewLimiter(client, 2, time.Minute, time.Second)
	handler := ratelimit.Middleware(limiter, ratelimit.ByClientIP)(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
		writer.WriteHeader(http.StatusOK)
	}))

	send := func() *httptest.ResponseRecorder {
		request := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
		request.RemoteAddr = "198.51.100.1:4000"
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, request)
		return recorder
	}

	first := send()
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "2", first.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Remaining"))

	assert.Equal(t, http.StatusOK, send().Code)

	rejected := send()
	assert.Equal(t, http.StatusTooManyRequests, rejected.Code)
	assert.NotEmpty(t, rejected.Header().Get("Retry-After"))
	assert.Contains(t, rejected.Body.String(), "RATE_LIMITED")
}

/*
TestMiddleware_FailsClosed refuses traffic with 503 when Redis is unreachable.
*/
func TestMiddleware_FailsClosed(t *testing.T) {
	limiter, server := setup(t)
	server.Close()

	var reached atomic.Int32
	handler := ratelimit.Middleware(limiter, ratelimit.ByClientIP)(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
		reached.Add(1)
		writer.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 200; i++ {
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil))
		require.Equal(t, http.StatusServiceUnavailable, recorder.Code)
		assert.Contains(t, recorder.Body.String(), apperr.CodeDependencyUnavailable)
	}

	assert.Zero(t, reached.Load())
}

/*
TestMiddleware_IgnoresForwardedHeadersFromUntrustedPeer keys on the socket
address even when every request claims a different X-Real-IP.

Steps:
 1. Chain TrustProxies with no trusted prefixes in front of the limiter.
 2. Send 500 requests from one RemoteAddr, rotating X-Real-IP and X-Forwarded-For.
 3. Only the configured limit is admitted.
*/
func TestMiddleware_IgnoresForwardedHeadersFromUntrustedPeer(t *testing.T) {
	limiter, _ := setup(t)

	// 1. Chain
	var admitted atomic.Int32
	handler := middleware.TrustProxies(nil)(ratelimit.Middleware(limiter, ratelimit.ByClientIP)(
		http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
			admitted.Add(1)
			writer.WriteHeader(http.StatusOK)
		}),
	))

	// 2. Rotate forwarded headers
	for i := 0; i < 500; i++ {
		request := httptest.NewRequest(http.MethodPost, "/api/v1/auth/verify-otp", nil)
		request.RemoteAddr = "203.0.113.50:40000"
		request.Header.Set("X-Real-IP", fmt.Sprintf("198.18.%d.%d", i/250, i%250+1))
		request.Header.Set("X-Forwarded-For", fmt.Sprintf("198.19.%d.%d", i/250, i%250+1))
		handler.ServeHTTP(httptest.NewRecorder(), request)
	}

	// 3. Bounded by the limit
	assert.Equal(t, int32(limiter.Limit()), admitted.Load())
}

/*
TestMiddleware_TrustedProxyForwardsClientAddress keys on the forwarded
address when the peer is a trusted proxy.
*/
func TestMiddleware_TrustedProxyForwardsClientAddress(t *testing.T) {
	limiter, server := setup(t)

	trusted := []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}
	handler := middleware.TrustProxies(trusted)(ratelimit.Middleware(limiter, ratelimit.ByClientIP)(
		http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
			writer.WriteHeader(http.StatusOK)
		}),
	))

	request := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
	request.RemoteAddr = "10.0.0.5:8080"
	request.Header.Set("X-Forwarded-For", "198.51.100.77")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.True(t, server.Exists("auth:rate:ip:198.51.100.77"))
	assert.False(t, server.Exists("auth:rate:ip:10.0.0.5"))
}

/*
TestStatusHandler reports the caller's window without counting.
*/
func TestStatusHandler(t *testing.T) {
	ctx := context.Background()
	limiter, _ := setup(t)

	for i := 0; i < 5; i++ {
		_, err := limiter.Allow(ctx, "ip:198.51.100.1")
		require.NoError(t, err)
	}

	handler := ratelimit.StatusHandler(limiter, ratelimit.ByClientIP)
	send := func() *httptest.ResponseRecorder {
		request := httptest.NewRequest(http.MethodGet, "/api/v1/auth/rate-limit", nil)
		request.RemoteAddr = "198.51.100.1:4000"
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, request)
		return recorder
	}

	first := send()
	require.Equal(t, http.StatusOK, first.Code)

	var body struct {
		Data ratelimit.StatusResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &body))
	assert.Equal(t, 60, body.Data.Limit)
	assert.Equal(t, 55, body.Data.Remaining)
	assert.False(t, body.Data.Limited)
	assert.Positive(t, body.Data.ResetIn)

	require.NoError(t, json.Unmarshal(send().Body.Bytes(), &body))
	assert.Equal(t, 55, body.Data.Remaining)
}
