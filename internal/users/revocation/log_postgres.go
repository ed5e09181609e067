// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package revocation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taibuivan/otpgate/internal/platform/database/schema"
	"github.com/taibuivan/otpgate/internal/platform/sec"
)

// LogTier implements [DurableTier] on the users.revoked_token table.
type LogTier struct {
	pool *pgxpool.Pool
}

// NewLogTier creates a PostgreSQL-backed durable tier.
func NewLogTier(pool *pgxpool.Pool) *LogTier {
	return &LogTier{pool: pool}
}

/*
Revoke appends the record. A digest that is already present is left as is.

Parameters:
  - context: context.Context
  - record: Record

Returns:
  - error: Database execution failures
*/
func (repository *LogTier) Revoke(context context.Context, record Record) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (%s, %s, %s, %s, %s)
		VALUES ($1, NULLIF($2, '')::uuid, $3, $4, $5)
		ON CONFLICT (%s) DO NOTHING`,
		schema.UserRevokedToken.Table,
		schema.UserRevokedToken.TokenDigest, schema.UserRevokedToken.AccountID,
		schema.UserRevokedToken.TokenKind, schema.UserRevokedToken.ExpiresAt,
		schema.UserRevokedToken.RevokedAt,
		schema.UserRevokedToken.TokenDigest,
	)

	_, err := repository.pool.Exec(context, query,
		record.TokenDigest,
		record.AccountID,
		string(record.Kind),
		record.ExpiresAt,
		record.RevokedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres_revocation_insert_failed: %w", err)
	}

	return nil
}

/*
IsRevoked reports whether the digest is in the log.

Parameters:
  - context: context.Context
  - digest: string

Returns:
  - bool: true when a row exists
  - error: Database execution failures
*/
func (repository *LogTier) IsRevoked(context context.Context, digest string) (bool, error) {
	record, err := repository.Lookup(context, digest)
	if err != nil {
		return false, err
	}
	return record != nil, nil
}

/*
Lookup loads the log row for a digest.

Parameters:
  - context: context.Context
  - digest: string

Returns:
  - *Record: the row, or nil when the digest was never revoked
  - error: Database execution failures
*/
func (repository *LogTier) Lookup(context context.Context, digest string) (*Record, error) {
	query := fmt.Sprintf(`
		SELECT %s, COALESCE(%s::text, ''), %s, %s, %s
		FROM %s
		WHERE %s = $1`,
		schema.UserRevokedToken.TokenDigest, schema.UserRevokedToken.AccountID,
		schema.UserRevokedToken.TokenKind, schema.UserRevokedToken.ExpiresAt,
		schema.UserRevokedToken.RevokedAt,
		schema.UserRevokedToken.Table,
		schema.UserRevokedToken.TokenDigest,
	)

	var (
		record Record
		kind   string
	)
	err := repository.pool.QueryRow(context, query, digest).Scan(
		&record.TokenDigest,
		&record.AccountID,
		&kind,
		&record.ExpiresAt,
		&record.RevokedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres_revocation_lookup_failed: %w", err)
	}
	record.Kind = sec.TokenKind(kind)

	return &record, nil
}

/*
DeleteExpired purges rows for tokens that expired before the given instant.
Such tokens fail verification on their own, so their rows no longer protect anything.

Parameters:
  - context: context.Context
  - before: time.Time

Returns:
  - int64: rows deleted
  - error: Database execution failures
*/
func (repository *LogTier) DeleteExpired(context context.Context, before time.Time) (int64, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE %s < $1`,
		schema.UserRevokedToken.Table, schema.UserRevokedToken.ExpiresAt)

	tag, err := repository.pool.Exec(context, query, before)
	if err != nil {
		return 0, fmt.Errorf("postgres_revocation_delete_expired_failed: %w", err)
	}

	return tag.RowsAffected(), nil
}
