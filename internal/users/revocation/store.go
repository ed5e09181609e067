// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package revocation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/taibuivan/otpgate/internal/platform/apperr"
	"github.com/taibuivan/otpgate/internal/platform/sec"
)

// Store composes the cache and durable tiers.
//
// It is safe for concurrent use.
type Store struct {
	cache   Tier
	durable DurableTier
	policy  Policy
	timeout time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

// Option customizes a [Store].
type Option func(*Store)

// WithPolicy sets the cache-miss fallback policy. The default is [FallbackAlways].
func WithPolicy(policy Policy) Option {
	return func(store *Store) { store.policy = policy }
}

// WithTimeout bounds each individual tier call.
func WithTimeout(timeout time.Duration) Option {
	return func(store *Store) { store.timeout = timeout }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(store *Store) { store.now = now }
}

// WithLogger sets the logger used for degraded-tier warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(store *Store) { store.logger = logger }
}

// NewStore creates a two-tier revocation store.
func NewStore(cache Tier, durable DurableTier, options ...Option) *Store {
	store := &Store{
		cache:   cache,
		durable: durable,
		policy:  FallbackAlways,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, option := range options {
		option(store)
	}

	return store
}

// Entry describes a token being revoked.
type Entry struct {
	Token     string
	AccountID string
	Kind      sec.TokenKind
	ExpiresAt time.Time
}

// Revoke records the token in the durable tier and then in the cache.
//
// A durable-tier failure fails the call with DependencyUnavailable and
// nothing is cached. A cache failure is logged and the call still succeeds,
// since the durable tier already holds the record.
func (store *Store) Revoke(ctx context.Context, entry Entry) error {
	record := Record{
		TokenDigest: sec.HashToken(entry.Token),
		AccountID:   entry.AccountID,
		Kind:        entry.Kind,
		ExpiresAt:   entry.ExpiresAt,
		RevokedAt:   store.now(),
	}

	if err := store.call(ctx, func(ctx context.Context) error {
		return store.durable.Revoke(ctx, record)
	}); err != nil {
		return apperr.DependencyUnavailable("revocation log", err)
	}

	if err := store.call(ctx, func(ctx context.Context) error {
		return store.cache.Revoke(ctx, record)
	}); err != nil {
		store.logger.WarnContext(ctx, "revocation_cache_write_degraded",
			slog.String("account_id", record.AccountID),
			slog.Any("error", err),
		)
	}

	return nil
}

// IsRevoked reports whether token has been revoked.
func (store *Store) IsRevoked(ctx context.Context, token string) (bool, error) {
	digest := sec.HashToken(token)

	var cached bool
	cacheErr := store.call(ctx, func(ctx context.Context) error {
		var err error
		cached, err = store.cache.IsRevoked(ctx, digest)
		return err
	})

	if cacheErr == nil && cached {
		return true, nil
	}

	if cacheErr == nil && store.policy == FallbackOnError {
		return false, nil
	}

	if cacheErr != nil {
		store.logger.WarnContext(ctx, "revocation_cache_read_degraded", slog.Any("error", cacheErr))
	}

	var record *Record
	durableErr := store.call(ctx, func(ctx context.Context) error {
		var err error
		record, err = store.durable.Lookup(ctx, digest)
		return err
	})

	if durableErr != nil {
		// Neither tier can vouch for the token: fail closed
		return false, apperr.DependencyUnavailable("revocation store", errors.Join(cacheErr, durableErr))
	}

	if record == nil {
		return false, nil
	}

	// Re-warm the cache so the next check stays on the fast path
	if cacheErr == nil {
		if err := store.call(ctx, func(ctx context.Context) error {
			return store.cache.Revoke(ctx, *record)
		}); err != nil {
			store.logger.WarnContext(ctx, "revocation_cache_rewarm_failed", slog.Any("error", err))
		}
	}

	return true, nil
}

// call runs fn under the per-call timeout.
func (store *Store) call(ctx context.Context, fn func(context.Context) error) error {
	if store.timeout <= 0 {
		return fn(ctx)
	}

	callCtx, cancel := context.WithTimeout(ctx, store.timeout)
	defer cancel()

	return fn(callCtx)
}
