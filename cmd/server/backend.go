package main

import (
	"context"
	"fmt"
	"log/slog"

	"optin/internal/platform/config"
	pgplatform "optin/internal/platform/postgres"
	redisplatform "optin/internal/platform/redis"
	"optin/internal/storage"
	"optin/internal/storage/breaker"
	"optin/internal/storage/cookie"
	"optin/internal/storage/memory"
	pgstore "optin/internal/storage/postgres"
	redisstore "optin/internal/storage/redis"
	"optin/internal/storage/sqlite"
)

// storageBackend is the selected substrate plus its lifecycle.
type storageBackend struct {
	factory storage.Factory
	health  storage.HealthChecker
	close   func() error
}

func openBackend(ctx context.Context, cfg config.Server, log *slog.Logger) (*storageBackend, error) {
	noop := func() error { return nil }
	breakerCfg := breaker.Config{MaxFailures: cfg.Breaker.MaxFailures, Timeout: cfg.Breaker.OpenTimeout}

	switch cfg.Storage {
	case config.StorageMemory:
		return &storageBackend{factory: storage.BackendFactory{Backend: memory.New()}, close: noop}, nil

	case config.StorageCookie:
		return &storageBackend{factory: cookie.Factory{Secure: cfg.Visitor.Secure}, close: noop}, nil

	case config.StorageRedis:
		client, err := redisplatform.New(ctx, cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		guarded := breaker.New("redis", redisstore.New(client.Client, redisstore.WithTTL(cfg.Redis.EntryTTL)), breakerCfg, log)
		return &storageBackend{
			factory: storage.BackendFactory{Backend: guarded},
			health:  guarded,
			close:   client.Close,
		}, nil

	case config.StoragePostgres:
		db, err := pgplatform.Open(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		backend := pgstore.New(db)
		if err := backend.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		guarded := breaker.New("postgres", backend, breakerCfg, log)
		return &storageBackend{
			factory: storage.BackendFactory{Backend: guarded},
			health:  guarded,
			close:   db.Close,
		}, nil

	case config.StorageSQLite:
		backend, err := sqlite.Open(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		return &storageBackend{
			factory: storage.BackendFactory{Backend: backend},
			health:  backend,
			close:   backend.Close,
		}, nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage)
}
