// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Command api is the entry point for the otpgate identity API server.
//
// # Startup Sequence
//
//  1. Initialize structured logger.
//  2. Load configuration from environment variables.
//  3. Connect to PostgreSQL (pgxpool).
//  4. Connect to Redis.
//  5. Run database migrations (idempotent).
//  6. Build the credential core (tokens, passcodes, revocation, rate limiter).
//  7. Wire HTTP handlers.
//  8. Start HTTP server and background workers (user lookup responder,
//     revocation housekeeper when a retention is configured) with graceful shutdown.
//
// No business logic lives here. All wiring is explicit constructor injection.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/taibuivan/otpgate/internal/api"
	"github.com/taibuivan/otpgate/internal/platform/config"
	"github.com/taibuivan/otpgate/internal/platform/constants"
	"github.com/taibuivan/otpgate/internal/platform/migration"
	pgstore "github.com/taibuivan/otpgate/internal/platform/postgres"
	redisstore "github.com/taibuivan/otpgate/internal/platform/redis"
	"github.com/taibuivan/otpgate/internal/platform/sec"
	"github.com/taibuivan/otpgate/internal/users/account"
	"github.com/taibuivan/otpgate/internal/users/auth"
	"github.com/taibuivan/otpgate/internal/users/delivery"
	"github.com/taibuivan/otpgate/internal/users/lookup"
	"github.com/taibuivan/otpgate/internal/users/passcode"
	"github.com/taibuivan/otpgate/internal/users/ratelimit"
	"github.com/taibuivan/otpgate/internal/users/revocation"
)

func main() {
	// ── 1. Logger ──────────────────────────────────────────────────────────
	// Initialize first so that subsequent startup errors are structured JSON.
	rawLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	// Add global context to all log entries.
	log := rawLog.With(slog.String("app", constants.AppName))
	slog.SetDefault(log)

	log.Info("service_initializing", slog.String("version", constants.AppVersion))

	// ── 2. Configuration ──────────────────────────────────────────────────
	cfg, err := config.Load()
	must(log, err, "load configuration")

	if cfg.Debug {
		debugLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
		log = debugLog.With(slog.String("app", constants.AppName))
		slog.SetDefault(log)
		log.Debug("debug_logging_enabled")
	}

	log.Info("configuration_loaded",
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.ServerPort),
		slog.String("otp_channel", cfg.OTPChannel),
		slog.String("revocation_fallback", cfg.RevocationFallback),
		slog.Bool("rotate_refresh_tokens", cfg.RotateRefreshTokens),
		slog.Int("trusted_proxies", len(cfg.TrustedProxies)),
		slog.Duration("revocation_retention", cfg.RevocationRetention),
	)

	// Root context for startup. Use a 30s deadline so misconfiguration is
	// caught quickly rather than hanging indefinitely.
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	// Lifetime context for background workers.
	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	// ── 3. PostgreSQL ─────────────────────────────────────────────────────
	pool, err := pgstore.NewPool(startupCtx, cfg.DatabaseURL, cfg.StoreTimeout, log)
	must(log, err, "connect to postgres")
	defer func() {
		log.Info("closing postgres pool")
		pool.Close()
	}()

	// ── 4. Redis ──────────────────────────────────────────────────────────
	rdb, err := redisstore.NewClient(startupCtx, cfg.RedisURL, cfg.StoreTimeout, log)
	must(log, err, "connect to redis")
	defer func() {
		log.Info("closing redis client")
		if cerr := rdb.Close(); cerr != nil {
			log.Error("redis close error", slog.Any("error", cerr))
		}
	}()

	// ── 5. Migrations ─────────────────────────────────────────────────────
	must(log, migration.RunUp(cfg.DatabaseURL, cfg.MigrationPath, log), "run migrations")

	// ── 6. Credential Core ────────────────────────────────────────────────
	tokenService, err := sec.NewTokenService(sec.TokenConfig{
		AccessSecret:  cfg.AccessSecret,
		RefreshSecret: cfg.RefreshSecret,
		AccessTTL:     cfg.AccessTokenTTL,
		RefreshTTL:    cfg.RefreshTokenTTL,
		Issuer:        cfg.Issuer,
	})
	must(log, err, "initialize token service")

	passcodes := passcode.NewManager(passcode.NewRedisStore(rdb), cfg.PasscodeTTL, cfg.StoreTimeout,
		passcode.WithLogger(log),
	)

	revocationLog := revocation.NewLogTier(pool)
	revocations := revocation.NewStore(revocation.NewCacheTier(rdb), revocationLog,
		revocation.WithPolicy(revocation.Policy(cfg.RevocationFallback)),
		revocation.WithTimeout(cfg.StoreTimeout),
		revocation.WithLogger(log),
	)

	limiter := ratelimit.NewLimiter(rdb, cfg.RateLimitRequests, cfg.RateLimitWindow, cfg.StoreTimeout)
	attempts := ratelimit.NewLimiter(rdb, cfg.AttemptLimitRequests, cfg.AttemptLimitWindow, cfg.StoreTimeout)

	var channel delivery.Channel = delivery.NewStreamChannel(rdb, cfg.PasscodeTTL, cfg.StoreTimeout, log)
	if cfg.OTPChannel == config.ChannelLog {
		channel = delivery.NewLogChannel(log)
	}

	// ── 7. Health handlers (wired with real dependency checkers) ──────────
	liveness, readiness := api.NewHealthHandlers(api.HealthDependencies{
		CheckDatabase: func(ctx context.Context) error {
			return pgstore.Ping(ctx, pool)
		},
		CheckCache: func(ctx context.Context) error {
			return redisstore.Ping(ctx, rdb)
		},
	}, log)

	// ── 8. Domain Wiring ──────────────────────────────────────────────────
	directory := account.NewPostgresDirectory(pool)

	authService := auth.NewService(directory, passcodes, tokenService, revocations, channel,
		auth.Options{RotateRefreshTokens: cfg.RotateRefreshTokens, Attempts: attempts}, log)

	lookupService := lookup.NewService(directory, log)

	handlers := api.Handlers{
		Liveness:        liveness,
		Readiness:       readiness,
		Auth:            auth.NewHandler(authService),
		Account:         account.NewHandler(account.NewService(directory, log)),
		Lookup:          lookup.NewHandler(lookupService),
		AuthRateLimit:   ratelimit.Middleware(limiter, ratelimit.ByClientIP),
		RateLimitStatus: ratelimit.StatusHandler(limiter, ratelimit.ByClientIP),
	}

	server := api.NewServer(appCtx, cfg, log, authService, handlers)

	// ── 9. Background Workers ─────────────────────────────────────────────
	housekeeper := revocation.NewHousekeeper(revocationLog, revocation.DefaultHousekeepingInterval, cfg.RevocationRetention, log)
	if housekeeper.Enabled() {
		go housekeeper.Run(appCtx)
	}

	if cfg.UserLookupEnabled {
		hostname, _ := os.Hostname()
		responder := lookup.NewResponder(rdb, lookupService, constants.AppName+"-"+hostname, log)
		go func() {
			if err := responder.Run(appCtx); err != nil {
				log.Error("user lookup responder stopped", slog.Any("error", err))
			}
		}()
	}

	// ── 10. Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Block until OS signal or server error.
	select {
	case sig := <-quit:
		log.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-serverErr:
		log.Error("server startup error", slog.Any("error", err))
	}

	appCancel()

	// Give in-flight requests enough time to complete.
	shutdownTimeout := constants.ShutdownTimeout
	log.Info("shutting down server", slog.Duration("timeout", shutdownTimeout))

	if err := server.Shutdown(shutdownTimeout); err != nil {
		log.Error("shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	log.Info("server stopped cleanly")
}

// must logs a structured fatal error and terminates the process if err is non-nil.
//
// It is limited to startup wiring. After startup, all errors are returned
// and handled explicitly.
func must(log *slog.Logger, err error, context string) {
	if err != nil {
		log.Error("startup failure",
			slog.String("context", context),
			slog.Any("error", err),
		)
		os.Exit(1)
	}
}
