// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package request provides utilities for extracting data from HTTP requests.

It abstracts away the underlying router's parameter extraction and common
body decoding patterns, ensuring consistent error handling and type safety.
*/
package requestutil

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/otpgate/internal/platform/apperr"
	"github.com/taibuivan/otpgate/internal/platform/constants"
	"github.com/taibuivan/otpgate/internal/platform/ctxutil"
	"github.com/taibuivan/otpgate/internal/platform/sec"
	"github.com/taibuivan/otpgate/internal/platform/validate"
)

// maxBodyBytes caps JSON request bodies. Every auth payload is a handful of short strings.
const maxBodyBytes = 64 << 10

/*
DecodeJSON reads the request body and decodes it into the target structure.

Parameters:
  - request: *http.Request
  - target: interface{} (Pointer to the destination struct)

Returns:
  - error: validate.ErrInvalidJSON if decoding fails, otherwise nil
*/
func DecodeJSON(request *http.Request, target interface{}) error {
	decoder := json.NewDecoder(http.MaxBytesReader(nil, request.Body, maxBodyBytes))
	if err := decoder.Decode(target); err != nil {
		return validate.ErrInvalidJSON
	}
	return nil
}

/*
Param retrieves a named URL parameter from the request.
*/
func Param(request *http.Request, name string) string {
	return chi.URLParam(request, name)
}

/*
BearerToken extracts the raw token from the Authorization header.

The scheme comparison is case-insensitive. When the Authorization header is
absent, the legacy Access-Token header is accepted as the raw token.

Returns:
  - string: the token, or "" when none was supplied
*/
func BearerToken(request *http.Request) string {
	header := strings.TrimSpace(request.Header.Get(constants.HeaderAuthorization))
	if header != "" {
		scheme, token, found := strings.Cut(header, " ")
		if !found || !strings.EqualFold(scheme, constants.BearerScheme) {
			return ""
		}
		return strings.TrimSpace(token)
	}

	return strings.TrimSpace(request.Header.Get(constants.HeaderAccessToken))
}

/*
Claims extracts the authenticated token claims from the request context.

Returns nil if the request is not authenticated.
*/
func Claims(request *http.Request) *sec.TokenClaims {
	return ctxutil.GetAuthUser(request.Context())
}

/*
RequiredClaims ensures the request is authenticated and returns the token claims.

Returns:
  - *sec.TokenClaims: The verified claims
  - error: apperr.Unauthorized if the request is not authenticated
*/
func RequiredClaims(request *http.Request) (*sec.TokenClaims, error) {

	// Get user claims
	claims := ctxutil.GetAuthUser(request.Context())

	// If the user is not authenticated, return an error
	if claims == nil {
		return nil, apperr.Unauthorized("Authentication required")
	}

	return claims, nil
}

/*
RequiredUserID returns the account ID of the currently logged-in user.

Returns:
  - string: Account UUID
  - error: apperr.Unauthorized if not authenticated
*/
func RequiredUserID(request *http.Request) (string, error) {

	// Get user claims
	claims, err := RequiredClaims(request)

	// If the user is not authenticated, return an error
	if err != nil {
		return "", err
	}

	return claims.UserID, nil
}
