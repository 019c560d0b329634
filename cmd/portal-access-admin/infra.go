package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/target/portal-access/internal/bootstrap"
)

const defaultCommandTimeout = 2 * time.Minute

// commandScope returns a context cancelled on SIGINT/SIGTERM or after timeout.
func (c *commandContext) commandScope(timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(c.Ctx, os.Interrupt, syscall.SIGTERM)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

func (c *commandContext) withDatabase(ctx context.Context, fn func(db *sql.DB) error) error {
	db, err := bootstrap.ConnectDB(ctx, c.Config.Postgres, c.Logger)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	err = fn(db)
	if closeErr := db.Close(); closeErr != nil {
		err = errors.Join(err, fmt.Errorf("close db: %w", closeErr))
	}
	return err
}

func (c *commandContext) withRedis(ctx context.Context, fn func(client redis.UniversalClient) error) error {
	client, err := bootstrap.ConnectRedis(ctx, c.Config.Redis, c.Logger)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	err = fn(client)
	if closeErr := client.Close(); closeErr != nil {
		err = errors.Join(err, fmt.Errorf("close redis: %w", closeErr))
	}
	return err
}
