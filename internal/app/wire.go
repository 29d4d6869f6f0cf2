package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dexpipe/dexpipe/internal/config"
	"github.com/dexpipe/dexpipe/internal/domain"
	"github.com/dexpipe/dexpipe/internal/memory"
	redisimpl "github.com/dexpipe/dexpipe/internal/redis"
	"github.com/dexpipe/dexpipe/internal/store/postgres"
)

// Dependencies bundles the process-wide shared state: the order store, the
// job queue, and the status bus. They are constructed exactly once by Wire
// and injected into every component that needs them; nothing reaches into
// another component's internals.
type Dependencies struct {
	Store domain.OrderStore
	Queue domain.JobQueue
	Bus   domain.StatusBus
}

// Wire constructs the concrete implementations selected by the configured
// drivers and returns them together with a cleanup function that should be
// called on shutdown to release connections.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL order store ---
	switch cfg.Store.Driver {
	case "postgres":
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}
		deps.Store = postgres.NewOrderStore(pgClient.Pool())
	case "memory":
		deps.Store = memory.NewOrderStore()
	}

	// --- Redis (only when a redis driver is selected) ---
	var redisClient *redisimpl.Client
	if cfg.Queue.Driver == "redis" || cfg.Bus.Driver == "redis" {
		c, err := redisimpl.New(ctx, redisimpl.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = c.Close() })
		redisClient = c
	}

	// --- Status bus ---
	switch cfg.Bus.Driver {
	case "redis":
		deps.Bus = redisimpl.NewStatusBus(redisClient, cfg.Bus.Channel, logger)
	case "memory":
		deps.Bus = memory.NewStatusBus()
	}

	// --- Job queue ---
	switch cfg.Queue.Driver {
	case "redis":
		deps.Queue = redisimpl.NewQueue(redisClient, cfg.Queue.Name, cfg.Queue.PollInterval.Duration, logger)
	case "memory":
		deps.Queue = memory.NewQueue(logger)
	}

	return deps, cleanup, nil
}

// retryPolicy converts the queue config section into the policy attached to
// every enqueued job.
func retryPolicy(cfg *config.Config) domain.RetryPolicy {
	return domain.RetryPolicy{
		MaxAttempts:       cfg.Queue.MaxAttempts,
		InitialDelay:      cfg.Queue.InitialDelay.Duration,
		BackoffMultiplier: cfg.Queue.BackoffMultiplier,
	}
}
