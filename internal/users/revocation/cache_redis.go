// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package revocation

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taibuivan/otpgate/internal/platform/constants"
)

// CacheTier implements [Tier] with one expiring Redis key per revoked token.
type CacheTier struct {
	client redis.UniversalClient
	now    func() time.Time
}

// NewCacheTier creates a Redis-backed cache tier.
func NewCacheTier(client redis.UniversalClient) *CacheTier {
	return &CacheTier{client: client, now: time.Now}
}

func revokedKey(digest string) string {
	return constants.RedisPrefixRevoked + digest
}

/*
Revoke stores the digest until the token's own expiry.

Description: The key TTL is the token's remaining lifetime, so entries never
outlive the token they protect. Already-expired tokens are not cached.

Parameters:
  - context: context.Context
  - record: Record

Returns:
  - error: Execution errors
*/
func (repository *CacheTier) Revoke(context context.Context, record Record) error {
	remaining := record.Remaining(repository.now())
	if remaining <= 0 {
		return nil
	}

	// Round up so the key never expires before the token does
	ttl := remaining.Truncate(time.Millisecond) + time.Millisecond

	if err := repository.client.Set(context, revokedKey(record.TokenDigest), record.AccountID, ttl).Err(); err != nil {
		return fmt.Errorf("redis_revocation_set_failed: %w", err)
	}

	return nil
}

/*
IsRevoked checks whether the digest is cached as revoked.

Parameters:
  - context: context.Context
  - digest: string

Returns:
  - bool: true when the key exists
  - error: Execution errors
*/
func (repository *CacheTier) IsRevoked(context context.Context, digest string) (bool, error) {
	count, err := repository.client.Exists(context, revokedKey(digest)).Result()
	if err != nil {
		return false, fmt.Errorf("redis_revocation_exists_failed: %w", err)
	}

	return count > 0, nil
}
