// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package passcode

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taibuivan/otpgate/internal/platform/constants"
)

// Hash fields of a passcode slot.
const (
	fieldDigest    = "digest"
	fieldCreatedAt = "created_at"
	fieldExpiresAt = "expires_at"
	fieldUsed      = "used"
)

// consumeScript compares and deletes in one step. It rejects missing, used,
// expired and mismatched slots; only a match deletes. An expired slot that
// Redis has not evicted yet is removed as well.
//
// KEYS[1] slot key, ARGV[1] digest, ARGV[2] now in unix milliseconds.
var consumeScript = redis.NewScript(`
local slot = redis.call('HMGET', KEYS[1], 'digest', 'used', 'expires_at')
if not slot[1] then
  return 0
end
if slot[2] == '1' then
  return 0
end
if tonumber(slot[3]) <= tonumber(ARGV[2]) then
  redis.call('DEL', KEYS[1])
  return 0
end
if slot[1] ~= ARGV[1] then
  return 0
end
redis.call('DEL', KEYS[1])
return 1
`)

// RedisStore implements [Store] with one Redis hash per account.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore creates a new Redis-backed passcode store.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func slotKey(accountID string) string {
	return constants.RedisPrefixPasscode + accountID
}

/*
Save overwrites the account's slot inside a MULTI/EXEC block.

Parameters:
  - context: context.Context
  - accountID: string
  - record: Record

Returns:
  - error: Execution errors
*/
func (repository *RedisStore) Save(context context.Context, accountID string, record Record) error {
	key := slotKey(accountID)

	// DEL first so no stale field of a previous slot survives the overwrite
	_, err := repository.client.TxPipelined(context, func(pipe redis.Pipeliner) error {
		pipe.Del(context, key)
		pipe.HSet(context, key,
			fieldDigest, record.Digest,
			fieldCreatedAt, record.CreatedAt.Unix(),
			fieldExpiresAt, record.ExpiresAt().UnixMilli(),
			fieldUsed, "0",
		)
		pipe.PExpire(context, key, record.TTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis_passcode_save_failed: %w", err)
	}

	return nil
}

/*
Consume runs the compare-and-delete script against the account's slot.

Parameters:
  - context: context.Context
  - accountID: string
  - digest: string
  - now: time.Time

Returns:
  - bool: true if this call consumed the slot
  - error: Execution errors
*/
func (repository *RedisStore) Consume(context context.Context, accountID, digest string, now time.Time) (bool, error) {
	result, err := consumeScript.Run(context, repository.client, []string{slotKey(accountID)}, digest, now.UnixMilli()).Int()
	if err != nil {
		return false, fmt.Errorf("redis_passcode_consume_failed: %w", err)
	}

	return result == 1, nil
}
