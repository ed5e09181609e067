// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package lookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Stream names and consumer group shared with the services that ask.
const (
	RequestStream  = "user.lookup.request"
	ResponseStream = "user.lookup.response"
	ConsumerGroup  = "otpgate-user-lookup"

	// responseMaxLen caps the response stream; askers read their answer
	// within seconds.
	responseMaxLen = 10000

	readBatch    = 16
	readBlock    = 5 * time.Second
	errorBackoff = time.Second
)

// Responder consumes lookup requests from a Redis Streams consumer group and
// appends the answers to the response stream.
type Responder struct {
	client   redis.UniversalClient
	service  *Service
	consumer string
	logger   *slog.Logger
}

// NewResponder creates a Responder reading as consumer within [ConsumerGroup].
func NewResponder(client redis.UniversalClient, service *Service, consumer string, logger *slog.Logger) *Responder {
	return &Responder{client: client, service: service, consumer: consumer, logger: logger}
}

// Setup creates the request stream and consumer group if they are missing.
func (responder *Responder) Setup(ctx context.Context) error {
	err := responder.client.XGroupCreateMkStream(ctx, RequestStream, ConsumerGroup, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("redis_lookup_group_create_failed: %w", err)
	}
	return nil
}

/*
Run answers requests until ctx is cancelled. Read errors are logged and
retried after a pause.

Parameters:
  - ctx: context.Context

Returns:
  - error: only when the consumer group cannot be created
*/
func (responder *Responder) Run(ctx context.Context) error {
	if err := responder.Setup(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	responder.logger.InfoContext(ctx, "user_lookup_responder_started",
		slog.String("stream", RequestStream),
		slog.String("consumer", responder.consumer),
	)

	for ctx.Err() == nil {
		if _, err := responder.read(ctx, readBlock); err != nil {
			if ctx.Err() != nil {
				break
			}
			responder.logger.WarnContext(ctx, "user_lookup_read_failed", slog.Any("error", err))

			select {
			case <-ctx.Done():
			case <-time.After(errorBackoff):
			}
		}
	}

	responder.logger.InfoContext(ctx, "user_lookup_responder_stopped")
	return nil
}

// Poll answers whatever is already waiting without blocking and returns how
// many requests it handled.
func (responder *Responder) Poll(ctx context.Context) (int, error) {
	return responder.read(ctx, -1)
}

// read fetches one batch for this consumer. A negative block returns at once.
func (responder *Responder) read(ctx context.Context, block time.Duration) (int, error) {
	streams, err := responder.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    ConsumerGroup,
		Consumer: responder.consumer,
		Streams:  []string{RequestStream, ">"},
		Count:    readBatch,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis_lookup_read_failed: %w", err)
	}

	handled := 0
	for _, stream := range streams {
		for _, message := range stream.Messages {
			if err := responder.answer(ctx, message); err != nil {
				return handled, err
			}
			handled++
		}
	}
	return handled, nil
}

// answer publishes the response for message and acknowledges it. Messages
// that cannot be decoded are acknowledged and dropped.
func (responder *Responder) answer(ctx context.Context, message redis.XMessage) error {
	var request Request
	raw, _ := message.Values["payload"].(string)
	if err := json.Unmarshal([]byte(raw), &request); err != nil {
		responder.logger.WarnContext(ctx, "user_lookup_message_dropped",
			slog.String("message_id", message.ID),
			slog.String("error", err.Error()),
		)
		return responder.ack(ctx, message.ID)
	}

	response := responder.service.Handle(ctx, request)
	payload, err := json.Marshal(response)
	if err != nil {
		return fmt.Errorf("lookup_response_encode_failed: %w", err)
	}

	if err := responder.client.XAdd(ctx, &redis.XAddArgs{
		Stream: ResponseStream,
		MaxLen: responseMaxLen,
		Approx: true,
		Values: map[string]any{
			"payload":        payload,
			"correlation_id": request.RequestID,
		},
	}).Err(); err != nil {
		return fmt.Errorf("redis_lookup_respond_failed: %w", err)
	}

	responder.logger.InfoContext(ctx, "user_lookup_answered",
		slog.String("request_id", request.RequestID),
		slog.Bool("success", response.Success),
	)

	return responder.ack(ctx, message.ID)
}

func (responder *Responder) ack(ctx context.Context, id string) error {
	if err := responder.client.XAck(ctx, RequestStream, ConsumerGroup, id).Err(); err != nil {
		return fmt.Errorf("redis_lookup_ack_failed: %w", err)
	}
	return nil
}
