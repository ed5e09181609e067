// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package passcode

import (
	"context"
	"time"
)

// Record is what the store keeps for an account's passcode slot.
type Record struct {
	Digest    string
	CreatedAt time.Time
	TTL       time.Duration
}

// ExpiresAt is the absolute instant the record stops validating.
func (r Record) ExpiresAt() time.Time {
	return r.CreatedAt.Add(r.TTL)
}

// # Passcode Data Access

// Store defines the storage contract for passcode slots.
type Store interface {

	/*
		Save replaces the account's slot with record. The slot must disappear
		on its own once record.TTL elapses.

		Parameters:
		  - context: context.Context
		  - accountID: string
		  - record: Record

		Returns:
		  - error: Storage failures
	*/
	Save(context context.Context, accountID string, record Record) error

	/*
		Consume atomically checks the slot and deletes it when the digest
		matches, the slot is unused and now is before its expiry.

		Parameters:
		  - context: context.Context
		  - accountID: string
		  - digest: string
		  - now: time.Time

		Returns:
		  - bool: true only for the single caller that consumed the slot
		  - error: Storage failures
	*/
	Consume(context context.Context, accountID, digest string, now time.Time) (bool, error)
}
