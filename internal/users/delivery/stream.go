// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taibuivan/otpgate/internal/users/identifier"
)

// Stream names, one per identifier kind.
const (
	StreamEmail = "otp.email.send"
	StreamSMS   = "otp.sms.send"
)

// StreamName returns the stream a message of the given kind is published to.
func StreamName(kind identifier.Kind) string {
	if kind == identifier.KindEmail {
		return StreamEmail
	}
	return StreamSMS
}

// StreamChannel publishes messages to Redis Streams for a delivery worker.
//
// Entries carry the plaintext code, so each append trims the stream to
// entries younger than retention. Nothing older can still be redeemed.
type StreamChannel struct {
	client    redis.UniversalClient
	retention time.Duration
	timeout   time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewStreamChannel creates a Redis Streams channel. retention should match
// the passcode lifetime.
func NewStreamChannel(client redis.UniversalClient, retention, timeout time.Duration, logger *slog.Logger) *StreamChannel {
	return &StreamChannel{client: client, retention: retention, timeout: timeout, logger: logger, now: time.Now}
}

// Send appends the message to the stream for its kind.
func (channel *StreamChannel) Send(ctx context.Context, message Message) bool {
	payload, err := json.Marshal(message)
	if err != nil {
		channel.logger.ErrorContext(ctx, "otp_message_encode_failed", slog.String("error", err.Error()))
		return false
	}

	if channel.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, channel.timeout)
		defer cancel()
	}

	now := channel.now()
	stream := StreamName(message.Kind)
	id, err := channel.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MinID:  channel.minID(now),
		Values: map[string]any{
			"payload":    payload,
			"created_at": now.Unix(),
		},
	}).Result()
	if err != nil {
		channel.logger.WarnContext(ctx, "otp_message_publish_failed",
			slog.String("stream", stream),
			slog.String("identifier", Mask(message.Identifier)),
			slog.String("error", err.Error()),
		)
		return false
	}

	channel.logger.InfoContext(ctx, "otp_message_published",
		slog.String("stream", stream),
		slog.String("message_id", id),
		slog.String("identifier", Mask(message.Identifier)),
	)
	return true
}

// minID is the oldest stream id kept after an append made at now.
func (channel *StreamChannel) minID(now time.Time) string {
	if channel.retention <= 0 {
		return ""
	}
	return fmt.Sprintf("%d-0", now.Add(-channel.retention).UnixMilli())
}
