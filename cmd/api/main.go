// Copyright (c) 2026 Velora. All rights reserved.
// Author: dev@veloragems.com

// Command api is the entry point for the Velora identity API server.
//
// # Startup Sequence
//
//  1. Initialize structured logger.
//  2. Load configuration from environment variables.
//  3. Connect to PostgreSQL (pgxpool).
//  4. Connect to Redis.
//  5. Run database migrations (idempotent).
//  6. Wire HTTP handlers.
//  7. Start HTTP server with graceful shutdown.
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

	"github.com/veloragems/velora/internal/api"
	"github.com/veloragems/velora/internal/identity"
	"github.com/veloragems/velora/internal/platform/config"
	"github.com/veloragems/velora/internal/platform/constants"
	"github.com/veloragems/velora/internal/platform/mailer"
	"github.com/veloragems/velora/internal/platform/migration"
	pgstore "github.com/veloragems/velora/internal/platform/postgres"
	redisstore "github.com/veloragems/velora/internal/platform/redis"
	"github.com/veloragems/velora/internal/platform/sec"
)

func main() {
	// ── 1. Logger ──────────────────────────────────────────────────────────
	// Initialize first so that subsequent startup errors are structured JSON.
	rawLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	// Add global context to all log entries.
	log := rawLog.With(slog.String("app", "velora"))
	slog.SetDefault(log)

	log.Info("[Velora] service_initializing")

	// ── 2. Configuration ──────────────────────────────────────────────────
	cfg, err := config.Load()
	must(log, err, "load configuration")

	if cfg.Debug {
		debugLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
		log = debugLog.With(slog.String("app", "velora"))
		slog.SetDefault(log)
		log.Debug("debug_logging_enabled")
	}

	log.Info("configuration_loaded",
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.ServerPort),
	)

	// Root context for startup. Use a 30s deadline so misconfiguration is
	// caught quickly rather than hanging indefinitely.
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	// ── 3. PostgreSQL ─────────────────────────────────────────────────────
	pool, err := pgstore.NewPool(startupCtx, cfg.DatabaseURL, log)
	must(log, err, "connect to postgres")
	defer func() {
		log.Info("closing postgres pool")
		pool.Close()
	}()

	// ── 4. Redis ──────────────────────────────────────────────────────────
	rdb, err := redisstore.NewClient(startupCtx, cfg.RedisURL, log)
	must(log, err, "connect to redis")
	defer func() {
		log.Info("closing redis client")
		if cerr := rdb.Close(); cerr != nil {
			log.Error("redis close error", slog.Any("error", cerr))
		}
	}()

	// ── 5. Migrations ─────────────────────────────────────────────────────
	must(log, migration.RunUp(cfg.DatabaseURL, cfg.MigrationPath, log), "run migrations")

	// ── 6. Security Services ──────────────────────────────────────────────
	jwtSvc, err := sec.NewTokenService(cfg.JWTPrivKeyPath, cfg.JWTPubKeyPath, constants.AuthIssuer)
	must(log, err, "initialize jwt service")

	// Federated login is opt-in: without provider configuration the endpoint
	// answers 503 and everything else works normally.
	var claimVerifier identity.ClaimVerifier
	if cfg.FederatedLoginEnabled() {
		verifier, err := sec.NewFederatedVerifier(cfg.FederatedIssuer, cfg.FederatedAudience, cfg.FederatedPubKeyPath)
		must(log, err, "initialize federated verifier")
		claimVerifier = verifier
		log.Info("federated_login_enabled", slog.String("issuer", cfg.FederatedIssuer))
	}

	// ── 7. Health handlers (wired with real dependency checkers) ──────────
	liveness, readiness := api.NewHealthHandlers(api.HealthDependencies{
		CheckDatabase: func() error {
			return pgstore.Ping(context.Background(), pool)
		},
		CheckCache: func() error {
			return redisstore.Ping(context.Background(), rdb)
		},
	}, log)

	// ── 8. Domain Wiring ──────────────────────────────────────────────────
	accountRepository := identity.NewAccountRepository(pool)
	tokenRegistry := identity.NewTokenRegistry(pool)
	loginThrottle := identity.NewRedisLoginThrottle(rdb)
	mail := mailer.NewLogMailer(log)
	identityService := identity.NewService(accountRepository, tokenRegistry, jwtSvc, mail, claimVerifier, loginThrottle)
	identityHandler := identity.NewHandler(identityService)

	// ── 9. Token Janitor ──────────────────────────────────────────────────
	// Periodically purges expired token rows. Validity never depends on the
	// sweep; it only keeps the table from growing without bound.
	janitorCtx, janitorCancel := context.WithCancel(context.Background())
	defer janitorCancel()
	go runTokenJanitor(janitorCtx, tokenRegistry, log)

	// ── 10. HTTP Server ───────────────────────────────────────────────────
	handlers := api.Handlers{
		Liveness:  liveness,
		Readiness: readiness,
		Identity:  identityHandler,
	}

	server := api.NewServer(janitorCtx, cfg, log, jwtSvc, handlers)

	// ── 11. Graceful Shutdown ─────────────────────────────────────────────
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
// It is intentionally limited to startup wiring. After startup, all errors
// must be returned and handled explicitly (never panic).
func must(log *slog.Logger, err error, context string) {
	if err != nil {
		log.Error("startup failure",
			slog.String("context", context),
			slog.Any("error", err),
		)
		os.Exit(1)
	}
}

// runTokenJanitor deletes expired token rows on a fixed interval until the
// context is cancelled.
func runTokenJanitor(ctx context.Context, registry identity.TokenRegistry, log *slog.Logger) {
	ticker := time.NewTicker(identity.TokenSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := registry.DeleteExpired(ctx)
			if err != nil {
				log.Error("token_sweep_failed", slog.Any("error", err))
				continue
			}
			if removed > 0 {
				log.Info("token_sweep_completed", slog.Int64("removed", removed))
			}
		}
	}
}
