// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package passcode issues and validates one-time numeric codes.

Each account owns a single passcode slot. Issuing a new code overwrites the
slot, so a previously delivered code stops working immediately. A successful
validation removes the slot in the same atomic step that compares the code,
so two concurrent submissions of one correct code cannot both succeed.

Codes are never stored in clear; the store only sees a SHA-256 digest bound
to the account id. Codes are never logged.
*/
package passcode

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/taibuivan/otpgate/internal/platform/apperr"
	"github.com/taibuivan/otpgate/internal/platform/sec"
)

const (
	// CodeLength is the number of digits in every passcode.
	CodeLength = 5

	// DefaultTTL is how long an issued passcode stays valid.
	DefaultTTL = 10 * time.Minute
)

// codeSpace is 10^CodeLength.
var codeSpace = big.NewInt(100000)

// Issued is the result of a successful issuance. Code must only be handed to
// the delivery channel.
type Issued struct {
	Code string
	TTL  time.Duration
}

// Manager owns passcode issuance and validation.
//
// It is safe for concurrent use; all shared state lives in the [Store].
type Manager struct {
	store    Store
	ttl      time.Duration
	timeout  time.Duration
	now      func() time.Time
	generate func() (string, error)
	logger   *slog.Logger
}

// Option customizes a [Manager].
type Option func(*Manager)

// WithClock overrides the time source used for creation and expiry instants.
func WithClock(now func() time.Time) Option {
	return func(manager *Manager) { manager.now = now }
}

// WithGenerator replaces the random code source.
func WithGenerator(generate func() (string, error)) Option {
	return func(manager *Manager) { manager.generate = generate }
}

// WithLogger sets the logger used for store failures.
func WithLogger(logger *slog.Logger) Option {
	return func(manager *Manager) { manager.logger = logger }
}

// NewManager creates a Manager. ttl bounds code validity; timeout bounds every
// store call.
func NewManager(store Store, ttl, timeout time.Duration, options ...Option) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	manager := &Manager{
		store:    store,
		ttl:      ttl,
		timeout:  timeout,
		now:      time.Now,
		generate: RandomCode,
		logger:   slog.Default(),
	}
	for _, option := range options {
		option(manager)
	}

	return manager
}

// TTL returns the validity window of newly issued codes.
func (manager *Manager) TTL() time.Duration { return manager.ttl }

// Issue mints a fresh code for accountID, replacing any earlier one.
func (manager *Manager) Issue(ctx context.Context, accountID string) (Issued, error) {
	code, err := manager.generate()
	if err != nil {
		return Issued{}, apperr.Internal(fmt.Errorf("passcode_generate_failed: %w", err))
	}

	storeCtx, cancel := manager.storeContext(ctx)
	defer cancel()

	record := Record{
		Digest:    digest(accountID, code),
		CreatedAt: manager.now(),
		TTL:       manager.ttl,
	}
	if err := manager.store.Save(storeCtx, accountID, record); err != nil {
		manager.logger.ErrorContext(ctx, "passcode_save_failed",
			slog.String("account_id", accountID),
			slog.Any("error", err),
		)
		return Issued{}, apperr.DependencyUnavailable("passcode store", err)
	}

	return Issued{Code: code, TTL: manager.ttl}, nil
}

// Validate reports whether submitted is the live code for accountID, consuming
// it on success. A wrong code leaves the stored code usable.
//
// Malformed input is rejected without touching the store. The only error
// returned is DependencyUnavailable.
func (manager *Manager) Validate(ctx context.Context, accountID, submitted string) (bool, error) {
	if !WellFormed(submitted) {
		return false, nil
	}

	storeCtx, cancel := manager.storeContext(ctx)
	defer cancel()

	consumed, err := manager.store.Consume(storeCtx, accountID, digest(accountID, submitted), manager.now())
	if err != nil {
		manager.logger.ErrorContext(ctx, "passcode_consume_failed",
			slog.String("account_id", accountID),
			slog.Any("error", err),
		)
		return false, apperr.DependencyUnavailable("passcode store", err)
	}

	return consumed, nil
}

func (manager *Manager) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if manager.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, manager.timeout)
}

// WellFormed reports whether value is exactly CodeLength ASCII digits.
func WellFormed(value string) bool {
	if len(value) != CodeLength {
		return false
	}
	for i := 0; i < len(value); i++ {
		if value[i] < '0' || value[i] > '9' {
			return false
		}
	}
	return true
}

// RandomCode draws a uniformly distributed code from crypto/rand.
func RandomCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", CodeLength, n.Int64()), nil
}

// digest binds the code to its account so equal codes for different accounts
// never share a stored value.
func digest(accountID, code string) string {
	return sec.HashToken(accountID + ":" + code)
}
