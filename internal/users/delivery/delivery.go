// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package delivery hands one-time passcodes to whatever transports them to the
user. The auth flow only learns whether the hand-off was accepted; actual
email and SMS sending belongs to a downstream worker.
*/
package delivery

import (
	"context"
	"strings"

	"github.com/taibuivan/otpgate/internal/users/identifier"
)

// Message is a passcode addressed to an email or phone.
type Message struct {
	Identifier string          `json:"identifier"`
	Kind       identifier.Kind `json:"kind"`
	Code       string          `json:"code"`
}

// Channel accepts passcode messages for delivery.
//
// Send reports whether the message was accepted. It never returns the
// failure cause; implementations log it.
type Channel interface {
	Send(ctx context.Context, message Message) bool
}

// Mask hides most of an identifier for log output.
//
// "alice@example.com" becomes "a***@example.com" and "15551234567"
// becomes "*******4567".
func Mask(value string) string {
	if at := strings.LastIndexByte(value, '@'); at > 0 {
		return value[:1] + "***" + value[at:]
	}
	if len(value) <= 4 {
		return strings.Repeat("*", len(value))
	}
	return strings.Repeat("*", len(value)-4) + value[len(value)-4:]
}
