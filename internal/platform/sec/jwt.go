// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package sec provides cryptographic primitives and token management.
//
// # Architecture
//
// This package isolates security-sensitive code (Hashing, JWT Signing) from
// the domain logic. It acts as an Infrastructure service injected into the
// Application layer via small interfaces declared by the consumers.
//
// Access and refresh tokens are signed with independent secrets and distinct
// HMAC algorithms (HS256 and HS512) and carry a "typ" claim, so a token of one
// kind never verifies as the other. Verification is stateless; revocation is
// checked separately by the caller.
package sec

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenKind distinguishes the two token families.
type TokenKind string

const (
	KindAccess  TokenKind = "access"
	KindRefresh TokenKind = "refresh"
)

// Verification failures. Callers reject the request on either; the split
// exists for logging and for clients that want to refresh proactively.
var (
	ErrTokenExpired = errors.New("sec: token expired")
	ErrTokenInvalid = errors.New("sec: token invalid")
)

// Identity is the account data signed into a token.
type Identity struct {
	AccountID string
	Email     string
	Phone     string
	Role      string
}

// TokenClaims represents the payload embedded inside an access or refresh token.
//
// Custom application claims are abbreviated to keep the JWT payload small.
type TokenClaims struct {
	jwt.RegisteredClaims

	UserID string    `json:"uid"`
	Email  string    `json:"email,omitempty"`
	Phone  string    `json:"phone,omitempty"`
	Role   string    `json:"rol,omitempty"`
	Kind   TokenKind `json:"typ"`
}

// Identity returns the account data carried by the claims.
func (c *TokenClaims) Identity() Identity {
	return Identity{AccountID: c.UserID, Email: c.Email, Phone: c.Phone, Role: c.Role}
}

// ExpiresAtTime returns the expiry instant or the zero time when absent.
func (c *TokenClaims) ExpiresAtTime() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// signingKey couples a secret with the one algorithm allowed to use it.
type signingKey struct {
	secret []byte
	method *jwt.SigningMethodHMAC
	ttl    time.Duration
}

// TokenService handles generation and verification of access and refresh tokens.
//
// It holds no mutable state after construction and is safe for concurrent use.
type TokenService struct {
	access  signingKey
	refresh signingKey
	issuer  string
	now     func() time.Time
}

// TokenOption customizes a [TokenService].
type TokenOption func(*TokenService)

// WithClock overrides the time source used for issuing and verifying tokens.
func WithClock(now func() time.Time) TokenOption {
	return func(service *TokenService) {
		service.now = now
	}
}

// TokenConfig carries the secrets and lifetimes for both token kinds.
type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
}

// NewTokenService creates a new TokenService.
func NewTokenService(cfg TokenConfig, options ...TokenOption) (*TokenService, error) {
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return nil, errors.New("sec: token secrets must not be empty")
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, errors.New("sec: access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("sec: token lifetimes must be positive")
	}

	service := &TokenService{
		access:  signingKey{secret: []byte(cfg.AccessSecret), method: jwt.SigningMethodHS256, ttl: cfg.AccessTTL},
		refresh: signingKey{secret: []byte(cfg.RefreshSecret), method: jwt.SigningMethodHS512, ttl: cfg.RefreshTTL},
		issuer:  cfg.Issuer,
		now:     time.Now,
	}
	for _, option := range options {
		option(service)
	}

	return service, nil
}

// AccessTTL returns the lifetime of newly issued access tokens.
func (service *TokenService) AccessTTL() time.Duration { return service.access.ttl }

// RefreshTTL returns the lifetime of newly issued refresh tokens.
func (service *TokenService) RefreshTTL() time.Duration { return service.refresh.ttl }

// IssueAccess signs a short-lived access token for the identity.
func (service *TokenService) IssueAccess(identity Identity) (string, time.Time, error) {
	return service.issue(identity, KindAccess, service.access)
}

// IssueRefresh signs a long-lived refresh token for the identity.
func (service *TokenService) IssueRefresh(identity Identity) (string, time.Time, error) {
	return service.issue(identity, KindRefresh, service.refresh)
}

// VerifyAccess checks signature, kind and expiry of an access token.
func (service *TokenService) VerifyAccess(token string) (*TokenClaims, error) {
	return service.verify(token, KindAccess, service.access)
}

// VerifyRefresh checks signature, kind and expiry of a refresh token.
func (service *TokenService) VerifyRefresh(token string) (*TokenClaims, error) {
	return service.verify(token, KindRefresh, service.refresh)
}

func (service *TokenService) issue(identity Identity, kind TokenKind, key signingKey) (string, time.Time, error) {
	if identity.AccountID == "" {
		return "", time.Time{}, errors.New("sec: account id is required")
	}

	currentTime := service.now()
	expiresAt := currentTime.Add(key.ttl)

	claims := TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.AccountID,
			Issuer:    service.issuer,
			IssuedAt:  jwt.NewNumericDate(currentTime),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			// jti keeps two tokens minted in the same second distinct, which
			// matters because revocation is keyed on the token digest.
			ID: uuid.NewString(),
		},
		UserID: identity.AccountID,
		Email:  identity.Email,
		Phone:  identity.Phone,
		Role:   identity.Role,
		Kind:   kind,
	}

	signedToken, err := jwt.NewWithClaims(key.method, claims).SignedString(key.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sec: failed to sign %s token: %w", kind, err)
	}

	// NumericDate truncates to whole seconds; report what was actually signed.
	return signedToken, claims.ExpiresAt.Time, nil
}

func (service *TokenService) verify(tokenString string, kind TokenKind, key signingKey) (*TokenClaims, error) {
	if tokenString == "" {
		return nil, ErrTokenInvalid
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{key.method.Alg()}),
		jwt.WithTimeFunc(service.now),
		jwt.WithExpirationRequired(),
	)

	claims := &TokenClaims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return key.secret, nil
	})

	if err != nil {
		// ErrTokenExpired is only reported once the signature has been verified,
		// so an expired forgery still comes back as invalid.
		if errors.Is(err, jwt.ErrTokenExpired) && !errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return nil, fmt.Errorf("%w: %w", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	if !token.Valid || claims.Kind != kind || claims.UserID == "" {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}
