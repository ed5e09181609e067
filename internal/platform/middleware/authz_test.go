// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/taibuivan/otpgate/internal/platform/apperr"
	"github.com/taibuivan/otpgate/internal/platform/ctxutil"
	"github.com/taibuivan/otpgate/internal/platform/middleware"
	"github.com/taibuivan/otpgate/internal/platform/sec"
)

// stubAuthenticator accepts exactly one token.
type stubAuthenticator struct {
	valid string
	err   error
}

func (s stubAuthenticator) Authenticate(_ context.Context, token string) (*sec.TokenClaims, error) {
	if s.err != nil {
		return nil, s.err
	}
	if token != s.valid {
		return nil, apperr.TokenInvalid(nil)
	}
	return &sec.TokenClaims{UserID: "acc-1", Role: string(sec.RoleUser), Kind: sec.KindAccess}, nil
}

func echoUser() http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		claims := ctxutil.GetAuthUser(request.Context())
		if claims == nil {
			_, _ = writer.Write([]byte("anonymous"))
			return
		}
		_, _ = writer.Write([]byte(claims.UserID + ":" + ctxutil.GetAccessToken(request.Context())))
	})
}

/*
TestAuthenticate covers anonymous, valid, invalid and revoked-store-down requests.
*/
func TestAuthenticate(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		value      string
		auth       stubAuthenticator
		wantStatus int
		wantBody   string
	}{
		{"anonymous", "", "", stubAuthenticator{valid: "good"}, http.StatusOK, "anonymous"},
		{"valid_bearer", "Authorization", "Bearer good", stubAuthenticator{valid: "good"}, http.StatusOK, "acc-1:good"},
		{"valid_legacy", "Access-Token", "good", stubAuthenticator{valid: "good"}, http.StatusOK, "acc-1:good"},
		{"wrong_scheme", "Authorization", "Token good", stubAuthenticator{valid: "good"}, http.StatusUnauthorized, ""},
		{"invalid", "Authorization", "Bearer bad", stubAuthenticator{valid: "good"}, http.StatusUnauthorized, ""},
		{"revoked", "Authorization", "Bearer good", stubAuthenticator{err: apperr.TokenRevoked()}, http.StatusUnauthorized, ""},
		{"store_down", "Authorization", "Bearer good", stubAuthenticator{err: apperr.DependencyUnavailable("revocation", nil)}, http.StatusServiceUnavailable, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			request := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				request.Header.Set(tt.header, tt.value)
			}
			recorder := httptest.NewRecorder()

			middleware.Authenticate(tt.auth)(echoUser()).ServeHTTP(recorder, request)

			assert.Equal(t, tt.wantStatus, recorder.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, recorder.Body.String())
			}
		})
	}
}

/*
TestRequireAuth rejects anonymous requests.
*/
func TestRequireAuth(t *testing.T) {
	handler := middleware.Authenticate(stubAuthenticator{valid: "good"})(middleware.RequireAuth(echoUser()))

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)

	request := httptest.NewRequest(http.MethodGet, "/me", nil)
	request.Header.Set("Authorization", "Bearer good")
	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	assert.Equal(t, http.StatusOK, recorder.Code)
}

/*
TestRequireRole enforces the role hierarchy.
*/
func TestRequireRole(t *testing.T) {
	handler := middleware.Authenticate(stubAuthenticator{valid: "good"})(middleware.RequireRole(sec.RoleGroupAdmin)(echoUser()))

	request := httptest.NewRequest(http.MethodGet, "/admin", nil)
	request.Header.Set("Authorization", "Bearer good")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	assert.Equal(t, http.StatusForbidden, recorder.Code)
}
