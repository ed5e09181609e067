// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package redis provides a managed client for the fast, volatile tier.

Everything the identity core keeps in Redis expires on its own: pending
passcodes, revocation cache entries, rate-limit windows and the delivery
streams' trimmed backlog.

Core Responsibilities:

  - Volatility: Every key written through this client carries a TTL.
  - Bounded latency: Dial, read and write timeouts are capped so a slow Redis
    surfaces as an error instead of a hung request.
  - Safety: Manages connection pooling and retry logic automatically.
*/
package redis

import (
	stdctx "context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Opiniated defaults for Redis connections.
const (
	dialTimeout  = 3 * time.Second
	pingTimeout  = 2 * time.Second
	poolSize     = 20
	minIdleConns = 4
	maxRetries   = 1
)

// NewClient parses a Redis URL and returns a ready-to-use client.
//
// # Parameters
//   - context: Context for the initial ping.
//   - redisURL: Redis connection URL.
//   - opTimeout: Read and write deadline applied to every command.
//   - logger: Structured logger for connection events.
func NewClient(context stdctx.Context, redisURL string, opTimeout time.Duration, logger *slog.Logger) (*redis.Client, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis: invalid URL: %w", err)
	}

	// Pool configuration tuning
	options.PoolSize = poolSize
	options.MinIdleConns = minIdleConns
	options.MaxRetries = maxRetries

	options.DialTimeout = dialTimeout
	options.ReadTimeout = opTimeout
	options.WriteTimeout = opTimeout

	// Honour per-call context deadlines so store timeouts are enforced by the caller.
	options.ContextTimeoutEnabled = true

	client := redis.NewClient(options)

	// Validate connectivity immediately at startup.
	if err := Ping(context, client); err != nil {
		_ = client.Close()
		return nil, err
	}

	logger.Info("redis_client_connected",
		slog.String("addr", options.Addr),
		slog.Int("db", options.DB),
		slog.Int("pool_size", options.PoolSize),
	)

	return client, nil
}

// Ping verifies that the Redis client is healthy.
func Ping(context stdctx.Context, client redis.UniversalClient) error {
	pingCtx, cancel := stdctx.WithTimeout(context, pingTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("redis: ping failed: %w", err)
	}

	return nil
}
