// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package identifier_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/otpgate/internal/platform/apperr"
	"github.com/taibuivan/otpgate/internal/users/identifier"
)

/*
TestClassify separates emails from everything else.
*/
func TestClassify(t *testing.T) {
	tests := []struct {
		raw  string
		want identifier.Kind
	}{
		{"user@example.com", identifier.KindEmail},
		{"first.last+tag@mail.example.co", identifier.KindEmail},
		{"  user@example.com  ", identifier.KindEmail},
		{"user@localhost", identifier.KindPhone},
		{"+15551234567", identifier.KindPhone},
		{"15551234567", identifier.KindPhone},
		{"not an identifier", identifier.KindPhone},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, identifier.Classify(tt.raw))
		})
	}
}

/*
TestNormalizePhone strips the plus sign and folds full-width input.
*/
func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"plain", "15551234567", "15551234567"},
		{"plus", "+15551234567", "15551234567"},
		{"double_plus", "++15551234567", "15551234567"},
		{"whitespace", "  +15551234567 ", "15551234567"},
		{"full_width", "＋１５５５１２３４５６７", "15551234567"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			once := identifier.NormalizePhone(tt.raw)
			assert.Equal(t, tt.want, once)

			// 1. Normalizing twice changes nothing
			assert.Equal(t, once, identifier.NormalizePhone(once))
		})
	}
}

/*
TestPhoneLookupForms covers both stored representations.
*/
func TestPhoneLookupForms(t *testing.T) {
	assert.Equal(t, []string{"15551234567", "+15551234567"}, identifier.PhoneLookupForms("+15551234567"))
	assert.Equal(t, []string{"15551234567", "+15551234567"}, identifier.PhoneLookupForms("15551234567"))
	assert.Empty(t, identifier.PhoneLookupForms("+"))
}

/*
TestParse returns canonical values or a validation error.
*/
func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    identifier.Identifier
		wantErr bool
	}{
		{"email", " User@Example.com ", identifier.Identifier{Kind: identifier.KindEmail, Value: "User@Example.com"}, false},
		{"phone_plus", "+15551234567", identifier.Identifier{Kind: identifier.KindPhone, Value: "15551234567"}, false},
		{"phone_plain", "15551234567", identifier.Identifier{Kind: identifier.KindPhone, Value: "15551234567"}, false},
		{"phone_full_width", "＋１５５５１２３４５６７", identifier.Identifier{Kind: identifier.KindPhone, Value: "15551234567"}, false},
		{"empty", "   ", identifier.Identifier{}, true},
		{"short_phone", "12345", identifier.Identifier{}, true},
		{"garbage", "hello world", identifier.Identifier{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := identifier.Parse(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				appError := apperr.As(err)
				require.NotNil(t, appError)
				assert.Equal(t, apperr.CodeValidation, appError.Code)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
