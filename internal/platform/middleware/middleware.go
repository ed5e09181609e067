// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package middleware holds the HTTP decorators shared by every route of the
identity API.

Order matters. The server installs them as:

  - TrustProxies: settle the client address before anything reads it.
  - RequestID, StructuredLogger: correlate and log every request.
  - BurstGuard: shed floods per client address in-process.
  - PanicRecovery, CORS: keep the process alive and browsers honest.
  - Authenticate, RequireAuth, RequireRole: per-route access control.

Errors are always rendered through the respond package so clients see one
envelope shape whichever layer rejected them.
*/
package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"slices"
	"strings"
	"time"

	"github.com/taibuivan/otpgate/internal/platform/apperr"
	"github.com/taibuivan/otpgate/internal/platform/constants"
	"github.com/taibuivan/otpgate/internal/platform/ctxutil"
	"github.com/taibuivan/otpgate/internal/platform/respond"
	"github.com/taibuivan/otpgate/pkg/uuid"
)

// # Request Tracing

// RequestID propagates the caller's X-Request-ID or assigns a UUIDv7.
func RequestID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			requestID := request.Header.Get(constants.HeaderXRequestID)
			if requestID == "" {
				requestID = uuid.New()
			}

			writer.Header().Set(constants.HeaderXRequestID, requestID)
			next.ServeHTTP(writer, request.WithContext(ctxutil.WithRequestID(request.Context(), requestID)))
		})
	}
}

// statusWriter remembers the status code written by downstream handlers.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// StructuredLogger stores a request-scoped logger in the context and emits
// one "http_request_finished" line per request. The level follows the
// status: warn for 4xx, error for 5xx.
func StructuredLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			started := time.Now()

			requestLogger := logger.With(
				slog.String("request_id", ctxutil.GetRequestID(request.Context())),
				slog.String("method", request.Method),
				slog.String("path", request.URL.Path),
				slog.String("ip", ClientIP(request)),
			)

			ctx := ctxutil.WithLogger(request.Context(), requestLogger)
			recorder := &statusWriter{ResponseWriter: writer, status: http.StatusOK}
			next.ServeHTTP(recorder, request.WithContext(ctx))

			level := slog.LevelInfo
			switch {
			case recorder.status >= http.StatusInternalServerError:
				level = slog.LevelError
			case recorder.status >= http.StatusBadRequest:
				level = slog.LevelWarn
			}

			requestLogger.Log(ctx, level, "http_request_finished",
				slog.Int("status", recorder.status),
				slog.Int64("latency_ms", time.Since(started).Milliseconds()),
				slog.String("user_agent", request.UserAgent()),
			)
		})
	}
}

// # Safety

// PanicRecovery turns a handler panic into a 500 INTERNAL_ERROR response
// and logs the stack with the request logger.
func PanicRecovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			defer func() {
				recovered := recover()
				if recovered == nil || recovered == http.ErrAbortHandler {
					if recovered != nil {
						panic(recovered)
					}
					return
				}

				requestLogger := ctxutil.GetLogger(request.Context())
				if requestLogger == nil {
					requestLogger = logger
				}
				requestLogger.ErrorContext(request.Context(), "panic_recovered",
					slog.Any("panic", recovered),
					slog.String("stack", string(debug.Stack())),
				)

				respond.Error(writer, request, apperr.Internal(nil))
			}()

			next.ServeHTTP(writer, request)
		})
	}
}

// # Cross-Origin Resource Sharing

// AppConfig is the slice of configuration CORS needs.
type AppConfig interface {
	IsDevelopment() bool
	AllowedOrigins() []string
}

var (
	corsMethods = strings.Join([]string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions}, ", ")

	corsAllowHeaders = strings.Join([]string{
		"Content-Type",
		constants.HeaderAuthorization,
		constants.HeaderAccessToken,
		constants.HeaderXRequestID,
	}, ", ")

	corsExposeHeaders = strings.Join([]string{
		constants.HeaderXRequestID,
		constants.HeaderRetryAfter,
		constants.HeaderRateLimitLimit,
		constants.HeaderRateLimitRemaining,
		constants.HeaderRateLimitResetAfter,
	}, ", ")
)

// CORS answers browser preflights. Any origin is accepted in development;
// elsewhere only the configured ones are.
func CORS(cfg AppConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			origin := request.Header.Get(constants.HeaderOrigin)
			if origin == "" {
				next.ServeHTTP(writer, request)
				return
			}

			if cfg.IsDevelopment() || slices.Contains(cfg.AllowedOrigins(), origin) {
				header := writer.Header()
				header.Set("Access-Control-Allow-Origin", origin)
				header.Set("Access-Control-Allow-Methods", corsMethods)
				header.Set("Access-Control-Allow-Headers", corsAllowHeaders)
				header.Set("Access-Control-Expose-Headers", corsExposeHeaders)
				header.Set("Access-Control-Max-Age", "300")
				header.Add("Vary", constants.HeaderOrigin)
			}

			if request.Method == http.MethodOptions {
				writer.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(writer, request)
		})
	}
}
