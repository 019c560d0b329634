package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/target/portal-access/config"
	"github.com/target/portal-access/internal/bootstrap"
	httpx "github.com/target/portal-access/internal/http"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := bootstrap.InitLogger("info", false)
	if err := run(ctx, logger); err != nil {
		logger.ErrorContext(ctx, "fatal error", "error", err)
		stop()
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}
	logger = bootstrap.InitLogger(cfg.LogLevel, cfg.IsDev)
	logStartupInfo(ctx, logger, &cfg)

	// The policy is validated before any connection is opened so a bad table fails fast.
	resolver, gate, err := bootstrap.BuildAccess(cfg)
	if err != nil {
		return fmt.Errorf("load access policy: %w", err)
	}

	db, redisClient, err := initInfrastructure(ctx, &cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeInfrastructure(db, redisClient); cerr != nil {
			logger.ErrorContext(ctx, "close infrastructure failed", "error", cerr)
		}
	}()

	profiles, err := bootstrap.BuildProfileSource(bootstrap.ProfileDeps{
		Profile:     cfg.Profile,
		Cache:       cfg.Cache,
		DB:          db,
		RedisClient: redisClient,
		Gate:        gate,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	authSvc, err := bootstrap.BuildAuthService(bootstrap.AuthDeps{
		Auth:          cfg.Auth,
		RedisClient:   redisClient,
		SessionPrefix: cfg.Redis.SessionPrefix,
		Profiles:      profiles,
		Gate:          gate,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	recorder, sink, err := bootstrap.BuildRecorder(cfg.Observability, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sink.Close(); cerr != nil {
			logger.WarnContext(ctx, "close statsd client failed", "error", cerr)
		}
	}()

	handler, err := bootstrap.BuildHandler(bootstrap.GatewayDeps{
		Config:    cfg,
		Resolver:  resolver,
		Auth:      authSvc,
		Gate:      gate,
		Recorder:  recorder,
		Readiness: readinessChecks(db, redisClient),
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	srv := bootstrap.NewServer(cfg.HTTP, handler)
	return bootstrap.Serve(ctx, srv, nil, cfg.HTTP.ShutdownTimeout, logger)
}

func logStartupInfo(ctx context.Context, logger *slog.Logger, cfg *config.AppConfig) {
	logger.InfoContext(ctx, "starting portal access gateway",
		"addr", cfg.HTTP.Addr,
		"base_url", cfg.HTTP.BaseURL,
		"auth_mode", cfg.Auth.Mode,
		"profile_source", cfg.Profile.Source,
		"upstream_configured", cfg.HTTP.UpstreamURL != "",
		"deny_unclassified", cfg.Access.DenyUnclassified,
		"dev", cfg.IsDev,
	)
}

// initInfrastructure connects Redis, and Postgres when the profile source needs it.
//
//nolint:ireturn // returning redis.UniversalClient keeps sentinel/cluster support flexible.
func initInfrastructure(
	ctx context.Context,
	cfg *config.AppConfig,
	logger *slog.Logger,
) (*sql.DB, redis.UniversalClient, error) {
	redisClient, err := bootstrap.ConnectRedis(ctx, cfg.Redis, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	if !cfg.NeedsPostgres() {
		return nil, redisClient, nil
	}

	db, err := bootstrap.ConnectDB(ctx, cfg.Postgres, logger)
	if err == nil && cfg.Postgres.RunMigrationsOnStart {
		if err = bootstrap.RunMigrations(ctx, db, logger); err != nil {
			err = errors.Join(err, db.Close())
		}
	} else if err == nil {
		logger.InfoContext(ctx, "skipping database migrations on startup", "reason", "disabled via config")
	}
	if err != nil {
		if cerr := redisClient.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close redis: %w", cerr))
		}
		return nil, nil, fmt.Errorf("connect db: %w", err)
	}
	return db, redisClient, nil
}

func closeInfrastructure(db *sql.DB, redisClient redis.UniversalClient) error {
	var closeErr error
	if db != nil {
		if err := db.Close(); err != nil {
			closeErr = errors.Join(closeErr, fmt.Errorf("close db: %w", err))
		}
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			closeErr = errors.Join(closeErr, fmt.Errorf("close redis: %w", err))
		}
	}
	return closeErr
}

func readinessChecks(db *sql.DB, redisClient redis.UniversalClient) map[string]httpx.ReadinessCheck {
	checks := map[string]httpx.ReadinessCheck{
		"redis": func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
	}
	if db != nil {
		checks["postgres"] = db.PingContext
	}
	return checks
}
