// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package delivery

import (
	"context"
	"log/slog"
)

// LogChannel accepts every message and only records that it was sent.
// Use it in development when no delivery worker is running.
type LogChannel struct {
	logger *slog.Logger
}

// NewLogChannel creates a logging channel.
func NewLogChannel(logger *slog.Logger) *LogChannel {
	return &LogChannel{logger: logger}
}

// Send logs the dispatch. The code itself is never written.
func (channel *LogChannel) Send(ctx context.Context, message Message) bool {
	channel.logger.InfoContext(ctx, "otp_message_dispatched",
		slog.String("kind", message.Kind.ChannelName()),
		slog.String("identifier", Mask(message.Identifier)),
	)
	return true
}
