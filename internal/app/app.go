// Package app assembles the runtime shared by the server and CLI commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"commandops/internal/cache"
	"commandops/internal/config"
	"commandops/internal/db"
	"commandops/internal/engine"
	"commandops/internal/engine/auth"
	"commandops/internal/migrate"
	"commandops/internal/ratelimit"
	"commandops/internal/repo"
)

// Runtime owns the process-wide connections. Close releases them.
type Runtime struct {
	Config        *config.Config
	DB            *sqlx.DB
	Redis         redis.UniversalClient
	Engine        engine.Engine
	Auth          auth.Service
	Limiter       ratelimit.Limiter
	SchemaVersion int
}

// Open connects to the database, applies migrations and wires the limiter and
// analytics cache. Without a Redis address both fall back to process memory.
func Open(ctx context.Context, workspace string, cfg *config.Config, log *slog.Logger) (*Runtime, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = slog.Default()
	}
	conn, err := db.Open(cfg.Database, workspace)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	version, err := migrate.Migrate(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	rt := &Runtime{Config: cfg, DB: conn, SchemaVersion: version}

	var snapshots cache.Snapshots
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			conn.Close()
			return nil, fmt.Errorf("connect redis %s: %w", cfg.Redis.Addr, err)
		}
		rt.Redis = client
		rt.Limiter = ratelimit.NewRedis(client, cfg.RateLimit)
		snapshots = cache.NewRedis(client, cfg.Analytics.CacheTTL)
		log.Info("using redis for rate limits and analytics cache", "addr", cfg.Redis.Addr)
	} else {
		rt.Limiter = ratelimit.NewMemory(cfg.RateLimit)
		snapshots = cache.NewMemory(cfg.Analytics.CacheTTL)
	}

	rt.Engine = engine.New(conn, snapshots, log)
	rt.Auth = auth.Service{Repo: repo.Repo{DB: conn}, JWTSecret: cfg.Auth.JWTSecret}
	return rt, nil
}

func (r *Runtime) Close() error {
	var errs []error
	if r.Redis != nil {
		errs = append(errs, r.Redis.Close())
	}
	if r.DB != nil {
		errs = append(errs, r.DB.Close())
	}
	return errors.Join(errs...)
}
