// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package auth orchestrates sign-in: passcode request and verification,
password registration and login, token refresh, logout, and access-token
authentication for the middleware.

# Flow

Identifiers are classified first. The account directory resolves them, the
passcode manager issues and consumes codes, the token service mints pairs,
and the revocation store answers for every token presented back. Each flow
validates everything it can before its first side effect, so a rejected
request leaves no trace in any store.
*/
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/taibuivan/otpgate/internal/platform/apperr"
	"github.com/taibuivan/otpgate/internal/platform/sec"
	"github.com/taibuivan/otpgate/internal/users/account"
	"github.com/taibuivan/otpgate/internal/users/delivery"
	"github.com/taibuivan/otpgate/internal/users/identifier"
	"github.com/taibuivan/otpgate/internal/users/passcode"
	"github.com/taibuivan/otpgate/internal/users/ratelimit"
	"github.com/taibuivan/otpgate/internal/users/revocation"
	"github.com/taibuivan/otpgate/pkg/uuid"
)

// # Contracts & Types

// TokenProvider mints and verifies signed tokens. Implemented by [sec.TokenService].
type TokenProvider interface {
	IssueAccess(identity sec.Identity) (string, time.Time, error)
	IssueRefresh(identity sec.Identity) (string, time.Time, error)
	VerifyAccess(token string) (*sec.TokenClaims, error)
	VerifyRefresh(token string) (*sec.TokenClaims, error)
}

// PasscodeManager issues and consumes one-time codes. Implemented by [passcode.Manager].
type PasscodeManager interface {
	Issue(ctx context.Context, accountID string) (passcode.Issued, error)
	Validate(ctx context.Context, accountID, submitted string) (bool, error)
}

// RevocationStore records and answers for revoked tokens. Implemented by [revocation.Store].
type RevocationStore interface {
	Revoke(ctx context.Context, entry revocation.Entry) error
	IsRevoked(ctx context.Context, token string) (bool, error)
}

// AttemptLimiter counts credential attempts per identifier. Implemented by [ratelimit.Limiter].
type AttemptLimiter interface {
	Allow(ctx context.Context, identifier string) (ratelimit.Decision, error)
}

// Options toggles optional flow behavior.
type Options struct {
	// RotateRefreshTokens makes Refresh revoke the refresh token it was given.
	RotateRefreshTokens bool

	// Attempts caps VerifyOTP and Login per identifier across all source
	// addresses. Nil disables the cap.
	Attempts AttemptLimiter

	// Now overrides the time source. Defaults to time.Now.
	Now func() time.Time
}

// Service implements the authentication use cases.
//
// # Review Process
//
// This service is critical for security. Any changes to verification order,
// revocation, or credential checks must be reviewed by the security team.
type Service struct {
	directory   account.Directory
	passcodes   PasscodeManager
	tokens      TokenProvider
	revocations RevocationStore
	channel     delivery.Channel
	options     Options
	logger      *slog.Logger
	now         func() time.Time
}

// NewService constructs a new auth [Service].
func NewService(
	directory account.Directory,
	passcodes PasscodeManager,
	tokens TokenProvider,
	revocations RevocationStore,
	channel delivery.Channel,
	options Options,
	logger *slog.Logger,
) *Service {
	now := options.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		directory:   directory,
		passcodes:   passcodes,
		tokens:      tokens,
		revocations: revocations,
		channel:     channel,
		options:     options,
		logger:      logger,
		now:         now,
	}
}

// Session is a freshly minted token pair.
type Session struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	IsNewUser        bool
	Account          *account.Account
}

// # Passcode Flow

// OTPDispatch describes a passcode that was handed to the delivery channel.
type OTPDispatch struct {
	Kind identifier.Kind
	TTL  time.Duration
}

/*
RequestOTP sends a fresh passcode to an email or phone.

Description: Unknown identifiers get a pending account so the code has an
anchor. Any earlier code for the account is replaced.

Parameters:
  - context: context.Context
  - raw: string (email or phone as typed)

Returns:
  - OTPDispatch: Channel kind and code lifetime
  - error: Validation, DeliveryFailed, or DependencyUnavailable
*/
func (service *Service) RequestOTP(context context.Context, raw string) (OTPDispatch, error) {
	id, err := identifier.Parse(raw)
	if err != nil {
		return OTPDispatch{}, err
	}

	acct, err := service.directory.CreatePending(context, id)
	if err != nil {
		return OTPDispatch{}, fmt.Errorf("auth_service_resolve_account_failed: %w", err)
	}

	issued, err := service.passcodes.Issue(context, acct.ID)
	if err != nil {
		return OTPDispatch{}, err
	}

	message := delivery.Message{Identifier: id.Value, Kind: id.Kind, Code: issued.Code}
	if !service.channel.Send(context, message) {
		return OTPDispatch{}, apperr.DeliveryFailed(id.Kind.ChannelName())
	}

	service.logger.InfoContext(context, "otp_requested",
		slog.String("account_id", acct.ID),
		slog.String("kind", string(id.Kind)),
	)

	return OTPDispatch{Kind: id.Kind, TTL: issued.TTL}, nil
}

// VerifyInput carries a passcode verification attempt.
type VerifyInput struct {
	Identifier string
	Code       string
	Name       string
}

/*
VerifyOTP consumes a passcode and signs the account in.

Description: A pending account must supply a name. That check runs before
the code is consumed, so a missing name can be corrected and retried with
the same code.

Parameters:
  - context: context.Context
  - input: VerifyInput

Returns:
  - *Session: Token pair, with IsNewUser set for a first sign-in
  - error: AccountNotFound, InvalidCredentials, Validation, RateLimited, or DependencyUnavailable
*/
func (service *Service) VerifyOTP(context context.Context, input VerifyInput) (*Session, error) {
	id, err := identifier.Parse(input.Identifier)
	if err != nil {
		return nil, err
	}

	if err := service.spendAttempt(context, id); err != nil {
		return nil, err
	}

	acct, err := service.directory.FindByIdentifier(context, id)
	if err != nil {
		return nil, fmt.Errorf("auth_service_verify_lookup_failed: %w", err)
	}

	name := strings.TrimSpace(input.Name)
	isNewUser := acct.IsPending()
	if isNewUser && name == "" {
		return nil, apperr.ValidationError("Name is required for new users", apperr.FieldError{
			Field:   FieldName,
			Message: "This field is required",
		})
	}

	valid, err := service.passcodes.Validate(context, acct.ID, input.Code)
	if err != nil {
		return nil, err
	}
	if !valid {
		return nil, apperr.InvalidCredentials()
	}

	if isNewUser {
		if err := service.directory.CompleteName(context, acct.ID, name); err != nil {
			return nil, fmt.Errorf("auth_service_complete_name_failed: %w", err)
		}
		acct.Name = name
		acct.State = account.StateComplete
	}

	session, err := service.signIn(context, acct)
	if err != nil {
		return nil, err
	}
	session.IsNewUser = isNewUser

	return session, nil
}

// # Password Flow

// RegisterInput holds the data required to enroll a password account.
type RegisterInput struct {
	Identifier string
	Name       string
	Password   string
}

/*
Register creates a complete account protected by a password.

Parameters:
  - context: context.Context
  - input: RegisterInput (validated by the caller)

Returns:
  - *account.Account: Created account
  - error: AlreadyRegistered if the identifier has any account, pending included
*/
func (service *Service) Register(context context.Context, input RegisterInput) (*account.Account, error) {
	id, err := identifier.Parse(input.Identifier)
	if err != nil {
		return nil, err
	}

	// Pre-check keeps argon2 off the hot path for duplicates; Create still
	// enforces uniqueness under races.
	_, err = service.directory.FindByIdentifier(context, id)
	if err == nil {
		return nil, apperr.AlreadyRegistered("An account with this " + id.Kind.ChannelName() + " already exists")
	}
	if !errors.Is(err, apperr.ErrAccountNotFound) {
		return nil, fmt.Errorf("auth_service_register_lookup_failed: %w", err)
	}

	hashedPassword, err := sec.HashPassword(input.Password)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("auth_service_hash_failed: %w", err))
	}

	value := id.Value
	acct := &account.Account{
		ID:           uuid.New(),
		Name:         strings.TrimSpace(input.Name),
		Role:         sec.RoleUser,
		State:        account.StateComplete,
		PasswordHash: hashedPassword,
	}
	if id.IsEmail() {
		acct.Email = &value
	} else {
		acct.Phone = &value
	}

	if err := service.directory.Create(context, acct); err != nil {
		return nil, fmt.Errorf("auth_service_register_failed: %w", err)
	}

	service.logger.InfoContext(context, "account_registered",
		slog.String("account_id", acct.ID),
		slog.String("kind", string(id.Kind)),
	)

	return acct, nil
}

// timingHash is compared against when the account does not exist, so an
// unknown identifier costs the same as a wrong password.
var timingHash = sync.OnceValue(func() string {
	hash, _ := sec.HashPassword("otpgate-timing-equalizer")
	return hash
})

/*
Login checks a password and signs the account in.

Description: Unknown accounts, accounts without a password, and wrong
passwords are indistinguishable to the caller.

Parameters:
  - context: context.Context
  - rawIdentifier: string
  - password: string

Returns:
  - *Session: Token pair
  - error: InvalidCredentials, RateLimited, or DependencyUnavailable
*/
func (service *Service) Login(context context.Context, rawIdentifier, password string) (*Session, error) {
	id, err := identifier.Parse(rawIdentifier)
	if err != nil {
		return nil, err
	}

	if err := service.spendAttempt(context, id); err != nil {
		return nil, err
	}

	acct, err := service.directory.FindByIdentifier(context, id)
	if err != nil {
		if errors.Is(err, apperr.ErrAccountNotFound) {
			sec.CheckPasswordHash(password, timingHash())
			return nil, apperr.InvalidCredentials()
		}
		return nil, fmt.Errorf("auth_service_login_lookup_failed: %w", err)
	}

	if !acct.HasPassword() {
		sec.CheckPasswordHash(password, timingHash())
		return nil, apperr.InvalidCredentials()
	}

	if !sec.CheckPasswordHash(password, acct.PasswordHash) {
		service.logger.InfoContext(context, "login_rejected", slog.String("account_id", acct.ID))
		return nil, apperr.InvalidCredentials()
	}

	return service.signIn(context, acct)
}

// spendAttempt counts one credential attempt against the identifier. A store
// failure refuses the attempt.
func (service *Service) spendAttempt(context context.Context, id identifier.Identifier) error {
	if service.options.Attempts == nil {
		return nil
	}

	decision, err := service.options.Attempts.Allow(context, "attempt:"+id.Value)
	if err != nil {
		return err
	}
	if !decision.Allowed {
		service.logger.WarnContext(context, "credential_attempts_exhausted",
			slog.String("kind", string(id.Kind)),
			slog.Int64("count", decision.Count),
		)
		return apperr.RateLimited(decision.RetryAfter())
	}
	return nil
}

// # Token Lifecycle

/*
Refresh exchanges a refresh token for a new token pair.

Description: The refresh token must be unrevoked and valid, and its account
must still exist. A new pair is always minted. With rotation enabled the
presented refresh token is also revoked, so it works exactly once.

Parameters:
  - context: context.Context
  - refreshToken: string

Returns:
  - *Session: New access and refresh tokens
  - error: TokenRevoked, TokenExpired, TokenInvalid, or DependencyUnavailable
*/
func (service *Service) Refresh(context context.Context, refreshToken string) (*Session, error) {
	claims, err := service.checkToken(context, refreshToken, service.tokens.VerifyRefresh)
	if err != nil {
		return nil, err
	}

	acct, err := service.directory.FindByID(context, claims.UserID)
	if err != nil {
		if errors.Is(err, apperr.ErrAccountNotFound) {
			return nil, apperr.TokenInvalid(err)
		}
		return nil, fmt.Errorf("auth_service_refresh_lookup_failed: %w", err)
	}

	session, err := service.mint(acct)
	if err != nil {
		return nil, err
	}

	// The replacement exists before the old token is revoked
	if service.options.RotateRefreshTokens {
		if err := service.revocations.Revoke(context, revocation.Entry{
			Token:     refreshToken,
			AccountID: claims.UserID,
			Kind:      sec.KindRefresh,
			ExpiresAt: claims.ExpiresAtTime(),
		}); err != nil {
			return nil, err
		}
	}

	return session, nil
}

/*
Logout revokes the caller's access token and, when given, its refresh token.

Description: The refresh token is verified and matched to the same account
before anything is revoked. An already expired refresh token is skipped.

Parameters:
  - context: context.Context
  - claims: *sec.TokenClaims (of the authenticated access token)
  - accessToken: string
  - refreshToken: string (optional)

Returns:
  - error: TokenInvalid or DependencyUnavailable
*/
func (service *Service) Logout(context context.Context, claims *sec.TokenClaims, accessToken, refreshToken string) error {
	entries := []revocation.Entry{{
		Token:     accessToken,
		AccountID: claims.UserID,
		Kind:      sec.KindAccess,
		ExpiresAt: claims.ExpiresAtTime(),
	}}

	if refreshToken != "" {
		refreshClaims, err := service.tokens.VerifyRefresh(refreshToken)
		switch {
		case err == nil && refreshClaims.UserID != claims.UserID:
			return apperr.TokenInvalid(errors.New("refresh token belongs to another account"))
		case err == nil:
			entries = append(entries, revocation.Entry{
				Token:     refreshToken,
				AccountID: refreshClaims.UserID,
				Kind:      sec.KindRefresh,
				ExpiresAt: refreshClaims.ExpiresAtTime(),
			})
		case errors.Is(err, sec.ErrTokenExpired):
			// Dead already
		default:
			return apperr.TokenInvalid(err)
		}
	}

	for _, entry := range entries {
		if err := service.revocations.Revoke(context, entry); err != nil {
			return err
		}
	}

	service.logger.InfoContext(context, "user_logged_out",
		slog.String("account_id", claims.UserID),
		slog.Int("revoked", len(entries)),
	)

	return nil
}

/*
ForceRevoke revokes any token issued by this service, access or refresh,
on behalf of an administrator.

Description: The kind is taken from whichever secret verifies the token. An
already expired token is left alone since it can no longer be used.

Parameters:
  - context: context.Context
  - token: string

Returns:
  - error: TokenInvalid or DependencyUnavailable
*/
func (service *Service) ForceRevoke(context context.Context, token string) error {
	if token == "" {
		return apperr.TokenInvalid(nil)
	}

	kind := sec.KindAccess
	claims, err := service.tokens.VerifyAccess(token)
	if err != nil && !errors.Is(err, sec.ErrTokenExpired) {
		kind = sec.KindRefresh
		claims, err = service.tokens.VerifyRefresh(token)
	}
	switch {
	case errors.Is(err, sec.ErrTokenExpired):
		return nil
	case err != nil:
		return apperr.TokenInvalid(err)
	}

	if err := service.revocations.Revoke(context, revocation.Entry{
		Token:     token,
		AccountID: claims.UserID,
		Kind:      kind,
		ExpiresAt: claims.ExpiresAtTime(),
	}); err != nil {
		return err
	}

	service.logger.InfoContext(context, "token_force_revoked",
		slog.String("account_id", claims.UserID),
		slog.String("kind", string(kind)),
	)
	return nil
}

/*
Authenticate resolves an access token into its claims.

Description: Revocation is checked before the signature, so a revoked token
is reported as revoked even after it expires.

Parameters:
  - context: context.Context
  - accessToken: string

Returns:
  - *sec.TokenClaims: Verified claims
  - error: TokenRevoked, TokenExpired, TokenInvalid, or DependencyUnavailable
*/
func (service *Service) Authenticate(context context.Context, accessToken string) (*sec.TokenClaims, error) {
	return service.checkToken(context, accessToken, service.tokens.VerifyAccess)
}

// checkToken runs the revocation check and then verify.
func (service *Service) checkToken(context context.Context, token string, verify func(string) (*sec.TokenClaims, error)) (*sec.TokenClaims, error) {
	if token == "" {
		return nil, apperr.TokenInvalid(nil)
	}

	revoked, err := service.revocations.IsRevoked(context, token)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, apperr.TokenRevoked()
	}

	claims, err := verify(token)
	if err != nil {
		if errors.Is(err, sec.ErrTokenExpired) {
			return nil, apperr.TokenExpired(err)
		}
		return nil, apperr.TokenInvalid(err)
	}

	return claims, nil
}

// signIn mints a pair and records the sign-in.
func (service *Service) signIn(context context.Context, acct *account.Account) (*Session, error) {
	session, err := service.mint(acct)
	if err != nil {
		return nil, err
	}

	if err := service.directory.TouchLogin(context, acct.ID, service.now()); err != nil {
		service.logger.WarnContext(context, "last_login_update_failed",
			slog.String("account_id", acct.ID),
			slog.Any("error", err),
		)
	}

	return session, nil
}

// mint signs a fresh access and refresh token for the account.
func (service *Service) mint(acct *account.Account) (*Session, error) {
	identity := acct.Identity()

	accessToken, accessExpiresAt, err := service.tokens.IssueAccess(identity)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("auth_service_issue_access_failed: %w", err))
	}

	refreshToken, refreshExpiresAt, err := service.tokens.IssueRefresh(identity)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("auth_service_issue_refresh_failed: %w", err))
	}

	return &Session{
		AccessToken:      accessToken,
		AccessExpiresAt:  accessExpiresAt,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: refreshExpiresAt,
		Account:          acct,
	}, nil
}
