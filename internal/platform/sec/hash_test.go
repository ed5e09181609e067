// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/otpgate/internal/platform/sec"
)

/*
TestHashPassword_RoundTrip verifies hashing and comparison.
*/
func TestHashPassword_RoundTrip(t *testing.T) {
	hash, err := sec.HashPassword("correct horse battery staple")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$"))

	assert.True(t, sec.CheckPasswordHash("correct horse battery staple", hash))
	assert.False(t, sec.CheckPasswordHash("wrong", hash))
}

/*
TestHashPassword_Salted ensures two hashes of the same password differ.
*/
func TestHashPassword_Salted(t *testing.T) {
	first, err := sec.HashPassword("password123")
	require.NoError(t, err)
	second, err := sec.HashPassword("password123")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

/*
TestCheckPasswordHash_Malformed never matches malformed hashes.
*/
func TestCheckPasswordHash_Malformed(t *testing.T) {
	for _, hash := range []string{"", "plain", "$argon2id$v=19$m=1$x$y", "$bcrypt$v=19$m=1,t=1,p=1$AAAA$AAAA"} {
		assert.False(t, sec.CheckPasswordHash("anything", hash), hash)
	}
}

/*
TestCheckPasswordHash_ZeroParameters rejects stored hashes with zero cost
parameters instead of panicking inside argon2.
*/
func TestCheckPasswordHash_ZeroParameters(t *testing.T) {
	tests := []struct {
		name string
		hash string
	}{
		{"zero_time", "$argon2id$v=19$m=65536,t=0,p=4$c2FsdHNhbHRzYWx0c2FsdA$aGFzaGhhc2hoYXNoaGFzaA"},
		{"zero_threads", "$argon2id$v=19$m=65536,t=1,p=0$c2FsdHNhbHRzYWx0c2FsdA$aGFzaGhhc2hoYXNoaGFzaA"},
		{"zero_memory", "$argon2id$v=19$m=0,t=1,p=4$c2FsdHNhbHRzYWx0c2FsdA$aGFzaGhhc2hoYXNoaGFzaA"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				assert.False(t, sec.CheckPasswordHash("anything", tt.hash))
			})
		})
	}
}

/*
TestHashToken is stable and hex-encoded.
*/
func TestHashToken(t *testing.T) {
	digest := sec.HashToken("token")
	assert.Len(t, digest, 64)
	assert.Equal(t, digest, sec.HashToken("token"))
	assert.NotEqual(t, digest, sec.HashToken("token2"))
}
