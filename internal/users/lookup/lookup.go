// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package lookup answers "who owns this email or phone?" for other services.

Requests arrive on the user.lookup.request stream and answers are appended to
user.lookup.response, correlated by request id. Administrators can ask the
same question over HTTP. Pending accounts have never finished sign-up and are
reported as not found.
*/
package lookup

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/taibuivan/otpgate/internal/platform/apperr"
	"github.com/taibuivan/otpgate/internal/users/account"
	"github.com/taibuivan/otpgate/internal/users/identifier"
)

// # Messages

// UserData is the public view of an account returned to callers.
type UserData struct {
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	PhoneNumber *string   `json:"phone_number"`
	Email       *string   `json:"email"`
	Role        string    `json:"role"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func newUserData(acct *account.Account) *UserData {
	return &UserData{
		UserID:      acct.ID,
		Name:        acct.Name,
		PhoneNumber: acct.Phone,
		Email:       acct.Email,
		Role:        string(acct.Role),
		CreatedAt:   acct.CreatedAt,
		UpdatedAt:   acct.UpdatedAt,
	}
}

// Request is one lookup asked over the broker.
type Request struct {
	RequestID    string    `json:"request_id"`
	PhoneOrEmail string    `json:"phone_or_email"`
	GroupSlug    string    `json:"group_slug,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Response answers a [Request]. UserData is nil unless Success is set.
type Response struct {
	RequestID    string    `json:"request_id"`
	Success      bool      `json:"success"`
	UserData     *UserData `json:"user_data"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// # Service

// Service resolves identifiers to accounts.
type Service struct {
	directory account.Directory
	logger    *slog.Logger
	now       func() time.Time
}

// NewService constructs a lookup [Service].
func NewService(directory account.Directory, logger *slog.Logger) *Service {
	return &Service{directory: directory, logger: logger, now: time.Now}
}

/*
Lookup finds the complete account owning raw.

Parameters:
  - context: context.Context
  - raw: string (email or phone as typed)

Returns:
  - *UserData: Public account view
  - error: Validation, AccountNotFound, or storage failures
*/
func (service *Service) Lookup(context context.Context, raw string) (*UserData, error) {
	id, err := identifier.Parse(raw)
	if err != nil {
		return nil, err
	}

	acct, err := service.directory.FindByIdentifier(context, id)
	if err != nil {
		return nil, err
	}
	if acct.IsPending() {
		return nil, apperr.AccountNotFound("Account not found")
	}

	return newUserData(acct), nil
}

// Handle answers one broker request. It never fails; failures are carried
// in the response.
func (service *Service) Handle(context context.Context, request Request) Response {
	response := Response{RequestID: request.RequestID, Timestamp: service.now().UTC()}

	data, err := service.Lookup(context, request.PhoneOrEmail)
	switch {
	case err == nil:
		response.Success = true
		response.UserData = data
	case errors.Is(err, apperr.ErrAccountNotFound), errors.Is(err, &apperr.AppError{Code: apperr.CodeValidation}):
		response.ErrorMessage = "User not found: " + request.PhoneOrEmail
	default:
		service.logger.ErrorContext(context, "user_lookup_failed",
			slog.String("request_id", request.RequestID),
			slog.Any("error", err),
		)
		response.ErrorMessage = "Lookup failed, try again later"
	}

	return response
}
