// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

// # Field Identifiers

// Field names for request validation and response payloads.
const (
	FieldIdentifier   = "identifier"
	FieldOTPCode      = "otp_code"
	FieldName         = "name"
	FieldPassword     = "password"
	FieldRefreshToken = "refresh_token"
	FieldMessage      = "message"
)

// # Input Constraints

const (
	// NameMaxLength bounds display names in runes.
	NameMaxLength = 100

	// PasswordMinLength is the shortest accepted password.
	PasswordMinLength = 8

	// PasswordMaxLength caps the input fed to the password hash.
	PasswordMaxLength = 128

	// TokenType is reported with every token pair.
	TokenType = "bearer"
)
