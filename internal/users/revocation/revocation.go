// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package revocation records revoked tokens and answers membership queries.

Two tiers back the store:

  - Cache tier (Redis): one key per revoked token, expiring when the token
    itself would have expired. Answers the hot path.
  - Durable tier (PostgreSQL): an append-only log with no expiry, used for
    audit and as the fallback when the cache is cold or unreachable.

Tokens are identified everywhere by the hex SHA-256 digest of the raw token
string, computed by [sec.HashToken] at both revoke and check time.

# Fallback Policy

On a cache miss the durable tier is consulted according to [Policy]:

  - [FallbackAlways]: every miss goes to the durable tier. A cache flush or
    restart never lets a revoked token through; each unrevoked request pays
    one indexed primary-key lookup.
  - [FallbackOnError]: the durable tier is only consulted when the cache
    errors. Misses are trusted, so a flushed cache admits revoked tokens
    until the next revocation check repopulates it.

If both tiers fail, the check fails closed with DependencyUnavailable.
*/
package revocation

import (
	"context"
	"time"

	"github.com/taibuivan/otpgate/internal/platform/sec"
)

// Policy selects when the durable tier backs up a cache miss.
type Policy string

const (
	FallbackAlways  Policy = "always"
	FallbackOnError Policy = "on_error"
)

// Record is one revoked token.
type Record struct {
	TokenDigest string
	AccountID   string
	Kind        sec.TokenKind
	ExpiresAt   time.Time
	RevokedAt   time.Time
}

// Remaining returns how long the token would still be valid at now.
func (r Record) Remaining(now time.Time) time.Duration {
	return r.ExpiresAt.Sub(now)
}

// # Tier Contracts

// Checker answers revocation membership for a token digest.
type Checker interface {
	IsRevoked(context context.Context, digest string) (bool, error)
}

// Writer records a revocation. Writing the same digest twice is harmless.
type Writer interface {
	Revoke(context context.Context, record Record) error
}

// Tier is one storage tier of the store.
type Tier interface {
	Checker
	Writer
}

// DurableTier is the tier of record. Lookup returns nil, nil for an unknown digest.
type DurableTier interface {
	Tier
	Lookup(context context.Context, digest string) (*Record, error)
	DeleteExpired(context context.Context, before time.Time) (int64, error)
}
