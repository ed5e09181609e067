// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package identifier classifies and normalizes the strings users sign in with.

An identifier is either an email address or a phone number. Phone numbers
are stored without a leading '+', so "+15551234567" and "15551234567" name
the same account.
*/
package identifier

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/taibuivan/otpgate/internal/platform/apperr"
)

// Kind tells email identifiers apart from phone identifiers.
type Kind string

const (
	KindEmail Kind = "email"
	KindPhone Kind = "phone"
)

// ChannelName returns the word used when talking to the user about this kind.
func (k Kind) ChannelName() string {
	if k == KindEmail {
		return "email"
	}
	return "phone number"
}

var (
	emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	phonePattern = regexp.MustCompile(`^\+?[0-9]{10,15}$`)
)

// Identifier is a classified identifier in its canonical stored form.
type Identifier struct {
	Kind  Kind
	Value string
}

// String returns the canonical value.
func (i Identifier) String() string { return i.Value }

// IsEmail reports whether the identifier is an email address.
func (i Identifier) IsEmail() bool { return i.Kind == KindEmail }

// Classify decides whether raw is an email or a phone number. Anything that is
// not a well-formed email is treated as a phone.
func Classify(raw string) Kind {
	if emailPattern.MatchString(strings.TrimSpace(raw)) {
		return KindEmail
	}
	return KindPhone
}

// NormalizePhone folds compatibility characters (full-width digits and plus
// signs) to ASCII, trims whitespace and strips leading '+' signs.
// NormalizePhone(NormalizePhone(x)) == NormalizePhone(x).
func NormalizePhone(raw string) string {
	folded := norm.NFKC.String(raw)
	return strings.TrimLeft(strings.TrimSpace(folded), "+")
}

// PhoneLookupForms returns every stored form a phone number may have.
//
// TODO: drop the "+"-prefixed form once migration 000003 has run in every
// environment and no unnormalized phone rows remain.
func PhoneLookupForms(raw string) []string {
	normalized := NormalizePhone(raw)
	if normalized == "" {
		return nil
	}
	return []string{normalized, "+" + normalized}
}

// Parse trims, classifies and validates raw, returning its canonical form.
// Emails keep their case; phones are normalized.
func Parse(raw string) (Identifier, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Identifier{}, invalid("This field is required")
	}

	if Classify(trimmed) == KindEmail {
		return Identifier{Kind: KindEmail, Value: trimmed}, nil
	}

	folded := strings.TrimSpace(norm.NFKC.String(trimmed))
	if !phonePattern.MatchString(folded) {
		return Identifier{}, invalid("Must be a valid email address or phone number")
	}

	return Identifier{Kind: KindPhone, Value: NormalizePhone(folded)}, nil
}

func invalid(message string) *apperr.AppError {
	return apperr.ValidationError("Invalid identifier", apperr.FieldError{
		Field:   "identifier",
		Message: message,
	})
}
