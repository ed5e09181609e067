// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package middleware

import (
	"context"
	"net/http"

	"github.com/taibuivan/otpgate/internal/platform/apperr"
	"github.com/taibuivan/otpgate/internal/platform/ctxutil"
	requestutil "github.com/taibuivan/otpgate/internal/platform/request"
	"github.com/taibuivan/otpgate/internal/platform/respond"
	"github.com/taibuivan/otpgate/internal/platform/sec"
)

// Authenticator verifies a raw access token, revocation included.
//
// Defining it here decouples the middleware from the auth service so tests can
// inject a stub.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*sec.TokenClaims, error)
}

// Authenticate extracts and verifies the access token from the request.
//
// # Flow
//  1. Read 'Authorization: Bearer <token>' (or the legacy Access-Token header).
//  2. If no header is present, the request proceeds as anonymous.
//  3. If present, verify it via [Authenticator]; any failure aborts with 401
//     (or 503 when the revocation store cannot answer).
//  4. Inject the claims and the raw token into the request context.
func Authenticate(authenticator Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {

			// ── 1. Anonymous Access ───────────────────────────────────────────
			if request.Header.Get("Authorization") == "" && request.Header.Get("Access-Token") == "" {
				next.ServeHTTP(writer, request)
				return
			}

			// ── 2. Format Validation ──────────────────────────────────────────
			token := requestutil.BearerToken(request)
			if token == "" {
				respond.Error(writer, request, apperr.TokenInvalid(nil))
				return
			}

			// ── 3. Token Verification ─────────────────────────────────────────
			claims, err := authenticator.Authenticate(request.Context(), token)
			if err != nil {
				respond.Error(writer, request, err)
				return
			}

			// ── 4. Context Injection ──────────────────────────────────────────
			ctx := ctxutil.WithAuthUser(request.Context(), claims, token)
			next.ServeHTTP(writer, request.WithContext(ctx))
		})
	}
}

// RequireAuth blocks requests that are not authenticated.
//
// Must be registered in the router AFTER [Authenticate].
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if ctxutil.GetAuthUser(request.Context()) == nil {
			respond.Error(writer, request, apperr.Unauthorized("Authentication required"))
			return
		}
		next.ServeHTTP(writer, request)
	})
}

// RequireRole blocks requests if the authenticated user doesn't have the required role.
//
// It implies [RequireAuth] so you don't need to mount both.
func RequireRole(role sec.UserRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			claims := ctxutil.GetAuthUser(request.Context())

			// ── 1. Authentication Check ───────────────────────────────────────
			if claims == nil {
				respond.Error(writer, request, apperr.Unauthorized("Authentication required"))
				return
			}

			// ── 2. Authorization Check ────────────────────────────────────────
			if !sec.UserRole(claims.Role).AtLeast(role) {
				respond.Error(writer, request, apperr.Forbidden("Insufficient permissions"))
				return
			}

			next.ServeHTTP(writer, request)
		})
	}
}
