// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package accounttest provides an in-memory account.Directory for tests.
package accounttest

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/taibuivan/otpgate/internal/platform/apperr"
	"github.com/taibuivan/otpgate/internal/platform/sec"
	"github.com/taibuivan/otpgate/internal/users/account"
	"github.com/taibuivan/otpgate/internal/users/identifier"
	"github.com/taibuivan/otpgate/pkg/uuid"
)

// Directory is a concurrency-safe in-memory account.Directory.
//
// Setting Err makes every call fail with it.
type Directory struct {
	mu       sync.Mutex
	accounts map[string]*account.Account

	Err error
}

// NewDirectory returns an empty Directory.
func NewDirectory() *Directory {
	return &Directory{accounts: make(map[string]*account.Account)}
}

// Add stores a copy of a and returns its id.
func (d *Directory) Add(a account.Account) string {
	d.mu.Lock()
	defer d.mu.Unlock()

	if a.ID == "" {
		a.ID = uuid.New()
	}
	d.accounts[a.ID] = &a
	return a.ID
}

// Len returns the number of stored accounts.
func (d *Directory) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.accounts)
}

func (d *Directory) find(id identifier.Identifier) *account.Account {
	for _, a := range d.accounts {
		if id.IsEmail() && a.Email != nil && *a.Email == id.Value {
			return a
		}
		if !id.IsEmail() && a.Phone != nil && slices.Contains(identifier.PhoneLookupForms(id.Value), *a.Phone) {
			return a
		}
	}
	return nil
}

func (d *Directory) FindByIdentifier(_ context.Context, id identifier.Identifier) (*account.Account, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.Err != nil {
		return nil, d.Err
	}
	a := d.find(id)
	if a == nil {
		return nil, apperr.AccountNotFound("Account not found")
	}
	clone := *a
	return &clone, nil
}

func (d *Directory) FindByID(_ context.Context, id string) (*account.Account, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.Err != nil {
		return nil, d.Err
	}
	a, ok := d.accounts[id]
	if !ok {
		return nil, apperr.AccountNotFound("Account not found")
	}
	clone := *a
	return &clone, nil
}

func (d *Directory) CreatePending(_ context.Context, id identifier.Identifier) (*account.Account, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.Err != nil {
		return nil, d.Err
	}
	if a := d.find(id); a != nil {
		clone := *a
		return &clone, nil
	}

	now := time.Now()
	value := id.Value
	a := &account.Account{
		ID:        uuid.New(),
		Role:      sec.RoleUser,
		State:     account.StatePending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if id.IsEmail() {
		a.Email = &value
	} else {
		a.Phone = &value
	}
	d.accounts[a.ID] = a

	clone := *a
	return &clone, nil
}

func (d *Directory) CompleteName(_ context.Context, accountID, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.Err != nil {
		return d.Err
	}
	a, ok := d.accounts[accountID]
	if !ok {
		return apperr.AccountNotFound("Account not found")
	}
	a.Name = name
	a.State = account.StateComplete
	a.UpdatedAt = time.Now()
	return nil
}

func (d *Directory) UpdateProfile(_ context.Context, accountID string, changes account.ProfileChanges) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.Err != nil {
		return d.Err
	}
	a, ok := d.accounts[accountID]
	if !ok {
		return apperr.AccountNotFound("Account not found")
	}

	if changes.Email != nil {
		if other := d.find(identifier.Identifier{Kind: identifier.KindEmail, Value: *changes.Email}); other != nil && other.ID != accountID {
			return apperr.Conflict("Email or phone number already registered")
		}
	}
	if changes.Phone != nil {
		if other := d.find(identifier.Identifier{Kind: identifier.KindPhone, Value: *changes.Phone}); other != nil && other.ID != accountID {
			return apperr.Conflict("Email or phone number already registered")
		}
	}

	if changes.Name != nil {
		a.Name = *changes.Name
		a.State = account.StateComplete
	}
	if changes.Email != nil {
		email := *changes.Email
		a.Email = &email
	}
	if changes.Phone != nil {
		phone := *changes.Phone
		a.Phone = &phone
	}
	a.UpdatedAt = time.Now()
	return nil
}

func (d *Directory) Create(_ context.Context, a *account.Account) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.Err != nil {
		return d.Err
	}
	if a.Email != nil && d.find(identifier.Identifier{Kind: identifier.KindEmail, Value: *a.Email}) != nil {
		return apperr.AlreadyRegistered("An account with this identifier already exists")
	}
	if a.Phone != nil && d.find(identifier.Identifier{Kind: identifier.KindPhone, Value: *a.Phone}) != nil {
		return apperr.AlreadyRegistered("An account with this identifier already exists")
	}

	clone := *a
	d.accounts[a.ID] = &clone
	return nil
}

func (d *Directory) TouchLogin(_ context.Context, accountID string, at time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.Err != nil {
		return d.Err
	}
	if a, ok := d.accounts[accountID]; ok {
		a.LastLoginAt = &at
	}
	return nil
}

var _ account.Directory = (*Directory)(nil)
