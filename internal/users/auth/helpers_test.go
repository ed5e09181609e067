// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/otpgate/internal/platform/apperr"
	"github.com/taibuivan/otpgate/internal/platform/sec"
	"github.com/taibuivan/otpgate/internal/users/account/accounttest"
	"github.com/taibuivan/otpgate/internal/users/auth"
	"github.com/taibuivan/otpgate/internal/users/delivery"
	"github.com/taibuivan/otpgate/internal/users/passcode"
	"github.com/taibuivan/otpgate/internal/users/revocation"
)

type fakeClock struct {
	mu      sync.Mutex
	current time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
}

// recordingChannel keeps every accepted message.
type recordingChannel struct {
	mu       sync.Mutex
	messages []delivery.Message
	refuse   bool
}

func (c *recordingChannel) Send(_ context.Context, message delivery.Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.refuse {
		return false
	}
	c.messages = append(c.messages, message)
	return true
}

func (c *recordingChannel) lastCode(t *testing.T) string {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.messages, "no passcode was sent")
	return c.messages[len(c.messages)-1].Code
}

// memoryRevocations is an in-memory auth.RevocationStore keyed by raw token.
type memoryRevocations struct {
	mu      sync.Mutex
	revoked map[string]revocation.Entry
	down    bool
}

var errRevocationDown = errors.New("revocation store down")

func (m *memoryRevocations) Revoke(_ context.Context, entry revocation.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return apperr.DependencyUnavailable("revocation store", errRevocationDown)
	}
	m.revoked[entry.Token] = entry
	return nil
}

func (m *memoryRevocations) IsRevoked(_ context.Context, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return false, apperr.DependencyUnavailable("revocation store", errRevocationDown)
	}
	_, ok := m.revoked[token]
	return ok, nil
}

func (m *memoryRevocations) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.revoked)
}

// fixture wires a Service against in-memory and miniredis collaborators.
type fixture struct {
	service     *auth.Service
	directory   *accounttest.Directory
	channel     *recordingChannel
	revocations *memoryRevocations
	tokens      *sec.TokenService
	clock       *fakeClock
	redis       *miniredis.Miniredis
}

func newFixture(t *testing.T, options auth.Options) *fixture {
	t.Helper()

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	clock := &fakeClock{current: time.Now().Truncate(time.Second)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tokens, err := sec.NewTokenService(sec.TokenConfig{
		AccessSecret:  "access-secret-for-tests",
		RefreshSecret: "refresh-secret-for-tests",
		AccessTTL:     60 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
		Issuer:        "otpgate-test",
	}, sec.WithClock(clock.Now))
	require.NoError(t, err)

	passcodes := passcode.NewManager(passcode.NewRedisStore(client), 10*time.Minute, time.Second,
		passcode.WithLogger(logger),
	)

	f := &fixture{
		directory:   accounttest.NewDirectory(),
		channel:     &recordingChannel{},
		revocations: &memoryRevocations{revoked: make(map[string]revocation.Entry)},
		tokens:      tokens,
		clock:       clock,
		redis:       server,
	}

	options.Now = clock.Now
	f.service = auth.NewService(f.directory, passcodes, tokens, f.revocations, f.channel, options, logger)

	return f
}

// appCode returns the AppError code carried by err.
func appCode(err error) string {
	if appError := apperr.As(err); appError != nil {
		return appError.Code
	}
	return ""
}
