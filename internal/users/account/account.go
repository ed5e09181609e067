// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package account owns the account directory: lookup by identifier, creation
of pending accounts for the OTP flow, completion of their display name, and
the authenticated profile endpoints including profile updates.

# Account States

An account is either pending or complete. A pending account exists only to
anchor a passcode sent to an email or phone nobody has signed up with yet; it
has no display name. The first successful verification supplies the name and
moves it to complete. State is explicit so an empty name is never mistaken
for "not chosen yet".
*/
package account

import (
	"context"
	"time"

	"github.com/taibuivan/otpgate/internal/platform/sec"
	"github.com/taibuivan/otpgate/internal/users/identifier"
)

// # Domain Entities

// State is the lifecycle stage of an account.
type State string

const (
	StatePending  State = "pending"
	StateComplete State = "complete"
)

// Account is a user identity.
type Account struct {
	ID           string       `json:"id"`
	Email        *string      `json:"email,omitempty"`
	Phone        *string      `json:"phone,omitempty"`
	Name         string       `json:"name,omitempty"`
	Role         sec.UserRole `json:"role"`
	State        State        `json:"state"`
	PasswordHash string       `json:"-"`
	LastLoginAt  *time.Time   `json:"last_login_at,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// IsPending reports whether the account still needs a display name.
func (a *Account) IsPending() bool {
	return a.State == StatePending
}

// HasPassword reports whether password login is possible for the account.
func (a *Account) HasPassword() bool {
	return a.PasswordHash != ""
}

// Identity returns the claims to sign into tokens for this account.
func (a *Account) Identity() sec.Identity {
	identity := sec.Identity{AccountID: a.ID, Role: string(a.Role)}
	if a.Email != nil {
		identity.Email = *a.Email
	}
	if a.Phone != nil {
		identity.Phone = *a.Phone
	}
	return identity
}

// ProfileChanges lists the columns a profile update writes. Nil fields are
// left untouched. Setting Name also marks the account complete.
type ProfileChanges struct {
	Name  *string
	Email *string
	Phone *string
}

// IsEmpty reports whether nothing would be written.
func (c ProfileChanges) IsEmpty() bool {
	return c.Name == nil && c.Email == nil && c.Phone == nil
}

// # Repository Contracts

// Directory defines the persistence contract for accounts.
//
// Lookups that find nothing return apperr.AccountNotFound.
type Directory interface {

	/*
		FindByIdentifier resolves an email or phone to its account. Phone
		lookups tolerate legacy rows stored with a leading '+'.

		Parameters:
		  - context: context.Context
		  - id: identifier.Identifier (canonical form)

		Returns:
		  - *Account: Loaded account entity
		  - error: apperr.AccountNotFound or storage failures
	*/
	FindByIdentifier(context context.Context, id identifier.Identifier) (*Account, error)

	/*
		FindByID retrieves an account by its unique ID.

		Parameters:
		  - context: context.Context
		  - id: string (UUID)

		Returns:
		  - *Account: Loaded account entity
		  - error: apperr.AccountNotFound or storage failures
	*/
	FindByID(context context.Context, id string) (*Account, error)

	/*
		CreatePending returns the account for id, creating a pending one if
		none exists. Concurrent calls for the same identifier converge on one row.

		Parameters:
		  - context: context.Context
		  - id: identifier.Identifier

		Returns:
		  - *Account: The existing or newly created account
		  - error: Storage failures
	*/
	CreatePending(context context.Context, id identifier.Identifier) (*Account, error)

	/*
		CompleteName stores the display name and marks the account complete.

		Parameters:
		  - context: context.Context
		  - accountID: string
		  - name: string

		Returns:
		  - error: apperr.AccountNotFound or storage failures
	*/
	CompleteName(context context.Context, accountID, name string) error

	/*
		UpdateProfile writes the given profile changes.

		Parameters:
		  - context: context.Context
		  - accountID: string
		  - changes: ProfileChanges (validated and normalized by the caller)

		Returns:
		  - error: apperr.AccountNotFound, apperr.Conflict on an email or phone
		    taken by another account, or storage failures
	*/
	UpdateProfile(context context.Context, accountID string, changes ProfileChanges) error

	/*
		Create persists a complete account registered with a password.

		Parameters:
		  - context: context.Context
		  - account: *Account

		Returns:
		  - error: apperr.AlreadyRegistered on an email or phone conflict
	*/
	Create(context context.Context, account *Account) error

	/*
		TouchLogin records a successful sign-in.

		Parameters:
		  - context: context.Context
		  - accountID: string
		  - at: time.Time

		Returns:
		  - error: Storage failures
	*/
	TouchLogin(context context.Context, accountID string, at time.Time) error
}
