// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec_test

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/otpgate/internal/platform/sec"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	current time.Time
}

func (c *fakeClock) Now() time.Time          { return c.current }
func (c *fakeClock) Advance(d time.Duration) { c.current = c.current.Add(d) }

func newTokenService(t *testing.T, clock *fakeClock) *sec.TokenService {
	t.Helper()

	service, err := sec.NewTokenService(sec.TokenConfig{
		AccessSecret:  "access-secret-for-tests",
		RefreshSecret: "refresh-secret-for-tests",
		AccessTTL:     60 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
		Issuer:        "otpgate-test",
	}, sec.WithClock(clock.Now))
	require.NoError(t, err)

	return service
}

/*
TestTokenService_AccessRoundTrip verifies that verifying an issued access token
returns the same identity.
*/
func TestTokenService_AccessRoundTrip(t *testing.T) {
	clock := &fakeClock{current: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	service := newTokenService(t, clock)

	tests := []struct {
		name     string
		identity sec.Identity
	}{
		{"email_only", sec.Identity{AccountID: "acc-1", Email: "user@example.com", Role: "user"}},
		{"phone_only", sec.Identity{AccountID: "acc-2", Phone: "15551234567", Role: "user"}},
		{"id_only", sec.Identity{AccountID: "acc-3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, expiresAt, err := service.IssueAccess(tt.identity)
			require.NoError(t, err)
			assert.Equal(t, clock.Now().Add(60*time.Minute), expiresAt)

			claims, err := service.VerifyAccess(token)
			require.NoError(t, err)
			assert.Equal(t, tt.identity, claims.Identity())
			assert.Equal(t, sec.KindAccess, claims.Kind)
			assert.Equal(t, "otpgate-test", claims.Issuer)
		})
	}
}

/*
TestTokenService_AccessExpires checks the 61-minute clock advance scenario.
*/
func TestTokenService_AccessExpires(t *testing.T) {
	clock := &fakeClock{current: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	service := newTokenService(t, clock)

	token, _, err := service.IssueAccess(sec.Identity{AccountID: "acc-1"})
	require.NoError(t, err)

	clock.Advance(59 * time.Minute)
	_, err = service.VerifyAccess(token)
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	_, err = service.VerifyAccess(token)
	require.Error(t, err)
	assert.ErrorIs(t, err, sec.ErrTokenExpired)
	assert.NotErrorIs(t, err, sec.ErrTokenInvalid)
}

/*
TestTokenService_RefreshRoundTrip verifies refresh tokens against their own secret.
*/
func TestTokenService_RefreshRoundTrip(t *testing.T) {
	clock := &fakeClock{current: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	service := newTokenService(t, clock)

	token, expiresAt, err := service.IssueRefresh(sec.Identity{AccountID: "acc-9"})
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(7*24*time.Hour), expiresAt)

	claims, err := service.VerifyRefresh(token)
	require.NoError(t, err)
	assert.Equal(t, "acc-9", claims.UserID)
	assert.Equal(t, sec.KindRefresh, claims.Kind)

	clock.Advance(7*24*time.Hour + time.Second)
	_, err = service.VerifyRefresh(token)
	assert.ErrorIs(t, err, sec.ErrTokenExpired)
}

/*
TestTokenService_CrossKindRejected ensures neither token kind verifies as the other.
*/
func TestTokenService_CrossKindRejected(t *testing.T) {
	clock := &fakeClock{current: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	service := newTokenService(t, clock)
	identity := sec.Identity{AccountID: "acc-1", Email: "user@example.com"}

	access, _, err := service.IssueAccess(identity)
	require.NoError(t, err)
	refresh, _, err := service.IssueRefresh(identity)
	require.NoError(t, err)

	_, err = service.VerifyRefresh(access)
	assert.ErrorIs(t, err, sec.ErrTokenInvalid)

	_, err = service.VerifyAccess(refresh)
	assert.ErrorIs(t, err, sec.ErrTokenInvalid)
}

/*
TestTokenService_ForgedKindClaim rejects a token signed with the access secret
but claiming to be a refresh token, and vice versa.
*/
func TestTokenService_ForgedKindClaim(t *testing.T) {
	clock := &fakeClock{current: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	service := newTokenService(t, clock)

	claims := sec.TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(clock.Now().Add(time.Hour)),
		},
		UserID: "acc-1",
		Kind:   sec.KindRefresh,
	}
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("access-secret-for-tests"))
	require.NoError(t, err)

	_, err = service.VerifyAccess(forged)
	assert.ErrorIs(t, err, sec.ErrTokenInvalid)
	_, err = service.VerifyRefresh(forged)
	assert.ErrorIs(t, err, sec.ErrTokenInvalid)
}

/*
TestTokenService_Malformed covers shape and signature failures.
*/
func TestTokenService_Malformed(t *testing.T) {
	clock := &fakeClock{current: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	service := newTokenService(t, clock)

	token, _, err := service.IssueAccess(sec.Identity{AccountID: "acc-1"})
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-token"},
		{"tampered_signature", tampered},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.VerifyAccess(tt.token)
			assert.ErrorIs(t, err, sec.ErrTokenInvalid)
		})
	}
}

/*
TestTokenService_ExpiredForgeryIsInvalid ensures an expired token with a bad
signature is reported as invalid, not expired.
*/
func TestTokenService_ExpiredForgeryIsInvalid(t *testing.T) {
	clock := &fakeClock{current: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	service := newTokenService(t, clock)

	claims := sec.TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(clock.Now().Add(-time.Hour)),
		},
		UserID: "acc-1",
		Kind:   sec.KindAccess,
	}
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("someone-else"))
	require.NoError(t, err)

	_, err = service.VerifyAccess(forged)
	assert.ErrorIs(t, err, sec.ErrTokenInvalid)
	assert.NotErrorIs(t, err, sec.ErrTokenExpired)
}

/*
TestNewTokenService_RejectsSharedSecret enforces independent secrets.
*/
func TestNewTokenService_RejectsSharedSecret(t *testing.T) {
	_, err := sec.NewTokenService(sec.TokenConfig{
		AccessSecret:  "same",
		RefreshSecret: "same",
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
	})
	assert.Error(t, err)
}

/*
TestTokenService_UniqueTokens ensures two tokens minted in the same instant differ.
*/
func TestTokenService_UniqueTokens(t *testing.T) {
	clock := &fakeClock{current: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	service := newTokenService(t, clock)

	first, _, err := service.IssueAccess(sec.Identity{AccountID: "acc-1"})
	require.NoError(t, err)
	second, _, err := service.IssueAccess(sec.Identity{AccountID: "acc-1"})
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}
