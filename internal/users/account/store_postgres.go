// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taibuivan/otpgate/internal/platform/apperr"
	"github.com/taibuivan/otpgate/internal/platform/database/schema"
	"github.com/taibuivan/otpgate/internal/platform/dberr"
	"github.com/taibuivan/otpgate/internal/platform/sec"
	"github.com/taibuivan/otpgate/internal/users/identifier"
	"github.com/taibuivan/otpgate/pkg/pointer"
	"github.com/taibuivan/otpgate/pkg/uuid"
)

// # Repository Implementations

// PostgresDirectory implements [Directory] on the users.account table.
type PostgresDirectory struct {
	pool *pgxpool.Pool
}

// NewPostgresDirectory creates a new Postgres account directory.
func NewPostgresDirectory(pool *pgxpool.Pool) *PostgresDirectory {
	return &PostgresDirectory{pool: pool}
}

// selectColumns lists the columns scanned by [scanAccount], in order.
var selectColumns = strings.Join([]string{
	schema.UserAccount.ID,
	schema.UserAccount.Email,
	schema.UserAccount.Phone,
	schema.UserAccount.Password,
	schema.UserAccount.DisplayName,
	schema.UserAccount.Role,
	schema.UserAccount.State,
	schema.UserAccount.LastLoginAt,
	schema.UserAccount.CreatedAt,
	schema.UserAccount.UpdatedAt,
}, ", ")

func scanAccount(row pgx.Row) (*Account, error) {
	var (
		account      Account
		passwordHash *string
		displayName  *string
		role         string
		state        string
	)

	err := row.Scan(
		&account.ID,
		&account.Email,
		&account.Phone,
		&passwordHash,
		&displayName,
		&role,
		&state,
		&account.LastLoginAt,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	account.PasswordHash = pointer.Val(passwordHash)
	account.Name = pointer.Val(displayName)
	account.Role = sec.UserRole(role)
	account.State = State(state)

	return &account, nil
}

func mapLookupError(err error, operation string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.AccountNotFound("Account not found")
	}
	return dberr.Wrap(fmt.Errorf("postgres_account_%s_failed: %w", operation, err), operation)
}

/*
FindByIdentifier retrieves an account by email or phone.

Description: Phone lookups match every stored form returned by
identifier.PhoneLookupForms and prefer the normalized row.

Parameters:
  - context: context.Context
  - id: identifier.Identifier

Returns:
  - *Account: Hydrated account entity
  - error: apperr.AccountNotFound or database errors
*/
func (repository *PostgresDirectory) FindByIdentifier(context context.Context, id identifier.Identifier) (*Account, error) {
	var row pgx.Row

	if id.IsEmail() {
		query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1`,
			selectColumns, schema.UserAccount.Table, schema.UserAccount.Email)
		row = repository.pool.QueryRow(context, query, id.Value)
	} else {
		forms := identifier.PhoneLookupForms(id.Value)
		query := fmt.Sprintf(`
			SELECT %s FROM %s
			WHERE %s = ANY($1)
			ORDER BY (%s = $2) DESC
			LIMIT 1`,
			selectColumns, schema.UserAccount.Table,
			schema.UserAccount.Phone, schema.UserAccount.Phone)
		row = repository.pool.QueryRow(context, query, forms, identifier.NormalizePhone(id.Value))
	}

	account, err := scanAccount(row)
	if err != nil {
		return nil, mapLookupError(err, "find_by_identifier")
	}

	return account, nil
}

/*
FindByID retrieves an account by its primary key.

Parameters:
  - context: context.Context
  - id: string (UUID)

Returns:
  - *Account: Hydrated account entity
  - error: apperr.AccountNotFound or database errors
*/
func (repository *PostgresDirectory) FindByID(context context.Context, id string) (*Account, error) {

	// A malformed id would fail the uuid cast inside Postgres
	if !uuid.Valid(id) {
		return nil, apperr.AccountNotFound("Account not found")
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1`,
		selectColumns, schema.UserAccount.Table, schema.UserAccount.ID)

	account, err := scanAccount(repository.pool.QueryRow(context, query, id))
	if err != nil {
		return nil, mapLookupError(err, "find_by_id")
	}

	return account, nil
}

/*
CreatePending inserts a pending account unless one already exists.

Description: INSERT ... ON CONFLICT DO NOTHING followed by a re-read, so
two racing OTP requests for a new identifier end up with the same account.

Parameters:
  - context: context.Context
  - id: identifier.Identifier

Returns:
  - *Account: The existing or new account
  - error: Database errors
*/
func (repository *PostgresDirectory) CreatePending(context context.Context, id identifier.Identifier) (*Account, error) {
	existing, err := repository.FindByIdentifier(context, id)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, apperr.ErrAccountNotFound) {
		return nil, err
	}

	column := schema.UserAccount.Phone
	if id.IsEmail() {
		column = schema.UserAccount.Email
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (%s, %s, %s, %s, %s, %s)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT DO NOTHING`,
		schema.UserAccount.Table,
		schema.UserAccount.ID, column, schema.UserAccount.Role, schema.UserAccount.State,
		schema.UserAccount.CreatedAt, schema.UserAccount.UpdatedAt,
	)

	if _, err := repository.pool.Exec(context, query,
		uuid.New(), id.Value, string(sec.RoleUser), string(StatePending), time.Now(),
	); err != nil {
		return nil, dberr.Wrap(fmt.Errorf("postgres_account_create_pending_failed: %w", err), "create_pending")
	}

	return repository.FindByIdentifier(context, id)
}

/*
CompleteName sets the display name and moves the account to complete.

Parameters:
  - context: context.Context
  - accountID: string
  - name: string

Returns:
  - error: apperr.AccountNotFound or database errors
*/
func (repository *PostgresDirectory) CompleteName(context context.Context, accountID, name string) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET %s = $2, %s = $3, %s = $4
		WHERE %s = $1`,
		schema.UserAccount.Table,
		schema.UserAccount.DisplayName, schema.UserAccount.State, schema.UserAccount.UpdatedAt,
		schema.UserAccount.ID,
	)

	tag, err := repository.pool.Exec(context, query, accountID, name, string(StateComplete), time.Now())
	if err != nil {
		return dberr.Wrap(fmt.Errorf("postgres_account_complete_name_failed: %w", err), "complete_name")
	}
	if tag.RowsAffected() == 0 {
		return apperr.AccountNotFound("Account not found")
	}

	return nil
}

/*
UpdateProfile writes the non-nil profile fields in one statement.

Parameters:
  - context: context.Context
  - accountID: string
  - changes: ProfileChanges

Returns:
  - error: apperr.AccountNotFound, apperr.Conflict on unique violation, or database errors
*/
func (repository *PostgresDirectory) UpdateProfile(context context.Context, accountID string, changes ProfileChanges) error {
	if changes.IsEmpty() {
		return nil
	}

	args := []any{accountID}
	assignments := make([]string, 0, 5)
	set := func(column string, value any) {
		args = append(args, value)
		assignments = append(assignments, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if changes.Name != nil {
		set(schema.UserAccount.DisplayName, *changes.Name)
		set(schema.UserAccount.State, string(StateComplete))
	}
	if changes.Email != nil {
		set(schema.UserAccount.Email, *changes.Email)
	}
	if changes.Phone != nil {
		set(schema.UserAccount.Phone, *changes.Phone)
	}
	set(schema.UserAccount.UpdatedAt, time.Now())

	query := fmt.Sprintf(`UPDATE %s SET %s WHERE %s = $1`,
		schema.UserAccount.Table, strings.Join(assignments, ", "), schema.UserAccount.ID)

	tag, err := repository.pool.Exec(context, query, args...)
	if err != nil {
		if dberr.IsUniqueViolation(err) {
			return apperr.Conflict("Email or phone number already registered")
		}
		return dberr.Wrap(fmt.Errorf("postgres_account_update_profile_failed: %w", err), "update_profile")
	}
	if tag.RowsAffected() == 0 {
		return apperr.AccountNotFound("Account not found")
	}

	return nil
}

/*
Create persists a complete, password-protected account.

Parameters:
  - context: context.Context
  - account: *Account

Returns:
  - error: apperr.AlreadyRegistered on unique violation, or database errors
*/
func (repository *PostgresDirectory) Create(context context.Context, account *Account) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (%s, %s, %s, %s, %s, %s, %s, %s, %s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		schema.UserAccount.Table,
		schema.UserAccount.ID, schema.UserAccount.Email, schema.UserAccount.Phone,
		schema.UserAccount.Password, schema.UserAccount.DisplayName, schema.UserAccount.Role,
		schema.UserAccount.State, schema.UserAccount.CreatedAt, schema.UserAccount.UpdatedAt,
	)

	now := time.Now()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now

	_, err := repository.pool.Exec(context, query,
		account.ID,
		account.Email,
		account.Phone,
		pointer.NilIfZero(account.PasswordHash),
		pointer.NilIfZero(account.Name),
		string(account.Role),
		string(account.State),
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		if dberr.IsUniqueViolation(err) {
			return apperr.AlreadyRegistered("An account with this identifier already exists")
		}
		return dberr.Wrap(fmt.Errorf("postgres_account_create_failed: %w", err), "create")
	}

	return nil
}

/*
TouchLogin updates the last sign-in timestamp.

Parameters:
  - context: context.Context
  - accountID: string
  - at: time.Time

Returns:
  - error: Database errors
*/
func (repository *PostgresDirectory) TouchLogin(context context.Context, accountID string, at time.Time) error {
	query := fmt.Sprintf(`UPDATE %s SET %s = $2 WHERE %s = $1`,
		schema.UserAccount.Table, schema.UserAccount.LastLoginAt, schema.UserAccount.ID)

	if _, err := repository.pool.Exec(context, query, accountID, at); err != nil {
		return dberr.Wrap(fmt.Errorf("postgres_account_touch_login_failed: %w", err), "touch_login")
	}

	return nil
}
