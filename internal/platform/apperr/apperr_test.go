// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package apperr_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/otpgate/internal/platform/apperr"
)

/*
TestAppError_IsMatchesByCode verifies sentinel matching through wrapped chains.
*/
func TestAppError_IsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("auth_service_verify_failed: %w", apperr.InvalidCredentials())

	assert.True(t, errors.Is(err, apperr.ErrInvalidCredentials))
	assert.False(t, errors.Is(err, apperr.ErrTokenRevoked))
}

/*
TestAppError_DependencyKeepsCause ensures the cause stays reachable for logs.
*/
func TestAppError_DependencyKeepsCause(t *testing.T) {
	cause := errors.New("dial tcp: i/o timeout")
	err := apperr.DependencyUnavailable("redis", cause)

	assert.Equal(t, http.StatusServiceUnavailable, err.HTTPStatus)
	assert.True(t, errors.Is(err, cause))
	assert.True(t, errors.Is(err, apperr.ErrDependencyUnavailable))
	assert.NotContains(t, err.Error(), "i/o timeout")
}

/*
TestAs extracts the AppError from a wrapped chain.
*/
func TestAs(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", apperr.AlreadyRegistered("Email is already registered"))

	ae := apperr.As(wrapped)
	require.NotNil(t, ae)
	assert.Equal(t, apperr.CodeAlreadyRegistered, ae.Code)
	assert.Equal(t, http.StatusConflict, ae.HTTPStatus)

	assert.Nil(t, apperr.As(errors.New("plain")))
}
