// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/taibuivan/otpgate/internal/platform/apperr"
	"github.com/taibuivan/otpgate/internal/platform/validate"
	"github.com/taibuivan/otpgate/internal/users/identifier"
)

// Profile field names used in validation details.
const (
	FieldName  = "name"
	FieldEmail = "email"
	FieldPhone = "phone"
	FieldBody  = "body"

	NameMinLength = 2
	NameMaxLength = 100
)

// namePattern admits letters, combining marks, spaces and the punctuation
// found in real names.
var namePattern = regexp.MustCompile(`^[\p{L}\p{M}][\p{L}\p{M} .'-]*$`)

// # Service Layer

// Service serves the authenticated profile endpoints on top of a [Directory].
type Service struct {
	directory Directory
	logger    *slog.Logger
}

// NewService constructs a new [Service].
func NewService(directory Directory, logger *slog.Logger) *Service {
	return &Service{directory: directory, logger: logger}
}

// # Profile Management

/*
GetProfile retrieves the private profile of an account.

Parameters:
  - context: context.Context
  - accountID: string

Returns:
  - *Account: The hydrated account
  - error: apperr.AccountNotFound or storage failures
*/
func (service *Service) GetProfile(context context.Context, accountID string) (*Account, error) {
	account, err := service.directory.FindByID(context, accountID)
	if err != nil {
		return nil, fmt.Errorf("account_service_get_profile_failed: %w", err)
	}
	return account, nil
}

// ProfileUpdate is a raw profile change request. Blank fields are ignored.
type ProfileUpdate struct {
	Name  string
	Email string
	Phone string
}

/*
UpdateProfile validates and applies a partial profile change.

Description: Blank fields and fields equal to the stored value are skipped.
A new email or phone must not belong to another account. Phones are stored
normalized. Giving a name to a pending account completes it.

Parameters:
  - context: context.Context
  - accountID: string
  - update: ProfileUpdate

Returns:
  - *Account: The account after the update
  - error: Validation, Conflict, AccountNotFound, or storage failures
*/
func (service *Service) UpdateProfile(context context.Context, accountID string, update ProfileUpdate) (*Account, error) {
	name := strings.TrimSpace(update.Name)
	email := strings.TrimSpace(update.Email)
	phone := identifier.NormalizePhone(update.Phone)

	v := &validate.Validator{}
	v.Custom(FieldBody, name == "" && email == "" && phone == "", "At least one field must be provided")
	if name != "" {
		v.MinLen(FieldName, name, NameMinLength).
			MaxLen(FieldName, name, NameMaxLength).
			Custom(FieldName, !namePattern.MatchString(name), "Must contain only letters and spaces")
	}
	if email != "" {
		v.Email(FieldEmail, email).
			Custom(FieldEmail, identifier.Classify(email) != identifier.KindEmail, "Must be a valid email address")
	}
	if phone != "" {
		v.Phone(FieldPhone, phone)
	}
	if err := v.Err(); err != nil {
		return nil, err
	}

	current, err := service.GetProfile(context, accountID)
	if err != nil {
		return nil, err
	}

	var changes ProfileChanges
	if name != "" && (name != current.Name || current.IsPending()) {
		changes.Name = &name
	}
	if email != "" && (current.Email == nil || *current.Email != email) {
		if err := service.ensureUnclaimed(context, accountID, identifier.Identifier{Kind: identifier.KindEmail, Value: email}); err != nil {
			return nil, err
		}
		changes.Email = &email
	}
	if phone != "" && (current.Phone == nil || identifier.NormalizePhone(*current.Phone) != phone) {
		if err := service.ensureUnclaimed(context, accountID, identifier.Identifier{Kind: identifier.KindPhone, Value: phone}); err != nil {
			return nil, err
		}
		changes.Phone = &phone
	}

	if changes.IsEmpty() {
		return current, nil
	}

	if err := service.directory.UpdateProfile(context, accountID, changes); err != nil {
		return nil, fmt.Errorf("account_service_update_profile_failed: %w", err)
	}

	service.logger.InfoContext(context, "profile_updated",
		slog.String("account_id", accountID),
		slog.Bool("name", changes.Name != nil),
		slog.Bool("email", changes.Email != nil),
		slog.Bool("phone", changes.Phone != nil),
	)

	return service.GetProfile(context, accountID)
}

// ensureUnclaimed fails with Conflict when id belongs to another account.
func (service *Service) ensureUnclaimed(context context.Context, accountID string, id identifier.Identifier) error {
	owner, err := service.directory.FindByIdentifier(context, id)
	switch {
	case errors.Is(err, apperr.ErrAccountNotFound):
		return nil
	case err != nil:
		return fmt.Errorf("account_service_uniqueness_check_failed: %w", err)
	case owner.ID == accountID:
		return nil
	case id.IsEmail():
		return apperr.Conflict("Email already registered")
	default:
		return apperr.Conflict("Phone number already registered")
	}
}
