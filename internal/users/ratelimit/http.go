// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package ratelimit

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/taibuivan/otpgate/internal/platform/apperr"
	"github.com/taibuivan/otpgate/internal/platform/constants"
	"github.com/taibuivan/otpgate/internal/platform/ctxutil"
	"github.com/taibuivan/otpgate/internal/platform/middleware"
	"github.com/taibuivan/otpgate/internal/platform/respond"
)

// KeyFunc derives the limiting identifier from a request.
type KeyFunc func(request *http.Request) string

// ByClientIP limits per source address as settled by middleware.TrustProxies.
// Forwarded headers from untrusted peers never reach this key.
func ByClientIP(request *http.Request) string {
	return "ip:" + middleware.ClientIP(request)
}

func setHeaders(writer http.ResponseWriter, decision Decision) {
	header := writer.Header()
	header.Set(constants.HeaderRateLimitLimit, strconv.Itoa(decision.Limit))
	header.Set(constants.HeaderRateLimitRemaining, strconv.Itoa(decision.Remaining))
	header.Set(constants.HeaderRateLimitResetAfter, strconv.Itoa(decision.RetryAfter()))
}

// Middleware admits requests through limiter, keyed by keyFn.
//
// When the limiter's store is unavailable the request is refused with 503
// DEPENDENCY_UNAVAILABLE. Credential endpoints are never left unthrottled.
func Middleware(limiter *Limiter, keyFn KeyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			decision, err := limiter.Allow(request.Context(), keyFn(request))
			if err != nil {
				ctxutil.GetLogger(request.Context()).WarnContext(request.Context(), "rate_limiter_unavailable",
					slog.Any("error", err),
				)
				respond.Error(writer, request, err)
				return
			}

			setHeaders(writer, decision)

			if !decision.Allowed {
				writer.Header().Set(constants.HeaderRetryAfter, strconv.Itoa(decision.RetryAfter()))
				respond.Error(writer, request, apperr.RateLimited(decision.RetryAfter()))
				return
			}

			next.ServeHTTP(writer, request)
		})
	}
}

// StatusResponse is the body of GET /auth/rate-limit.
type StatusResponse struct {
	Limit     int  `json:"limit"`
	Remaining int  `json:"remaining"`
	ResetIn   int  `json:"reset_in"`
	Limited   bool `json:"limited"`
}

// StatusHandler reports the caller's current window without spending a
// request from it.
func StatusHandler(limiter *Limiter, keyFn KeyFunc) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		decision, err := limiter.Status(request.Context(), keyFn(request))
		if err != nil {
			respond.Error(writer, request, err)
			return
		}

		setHeaders(writer, decision)

		response := StatusResponse{
			Limit:     decision.Limit,
			Remaining: decision.Remaining,
			Limited:   !decision.Allowed,
		}
		if decision.Count > 0 {
			response.ResetIn = decision.RetryAfter()
		}
		respond.OK(writer, response)
	}
}
