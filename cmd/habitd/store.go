package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kab1why1/habit/config"
	"github.com/kab1why1/habit/internal/application/port"
	"github.com/kab1why1/habit/internal/infrastructure/persistence/postgres"
	"github.com/kab1why1/habit/internal/infrastructure/persistence/redis"
	"github.com/kab1why1/habit/pkg/logger"
	"github.com/kab1why1/habit/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// STORE WIRING
// ══════════════════════════════════════════════════════════════════════════════

// migrationRow is one line of "migrate status".
type migrationRow struct {
	Version   int
	Name      string
	Applied   bool
	AppliedAt time.Time
}

// schema abstracts the two drivers' migration support.
type schema interface {
	Up(ctx context.Context) (int, error)
	Down(ctx context.Context) error
	Status(ctx context.Context) ([]migrationRow, error)
}

// openStore connects to the configured driver, retrying while the database boots.
// The returned store does not run migrations for postgres; see schema.
func (a *app) openStore(ctx context.Context) (port.Store, schema, error) {
	db := a.cfg.Database
	policy := retry.StartupPolicy()
	if db.ConnectAttempts > 0 {
		policy.MaxAttempts = db.ConnectAttempts
	}
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		a.log.Warn("database not ready, retrying",
			logger.String("driver", db.Driver),
			logger.Int("attempt", attempt),
			logger.Duration("delay", delay),
			logger.Err(err),
		)
	}

	switch db.Driver {
	case config.DriverSQLite:
		s, err := retry.DoValue(ctx, policy, func(ctx context.Context) (*sqliteStore, error) {
			return openSQLite(ctx, db.SQLitePath)
		})
		if err != nil {
			return nil, nil, err
		}
		return s.Store, s, nil

	case config.DriverPostgres:
		conn, err := retry.DoValue(ctx, policy, func(ctx context.Context) (*postgres.Connection, error) {
			return postgres.Connect(ctx, db.URL, postgres.PoolOptions{
				MaxConns:        int32(db.MaxConns),
				MinConns:        int32(db.MinConns),
				MaxConnLifetime: db.ConnMaxLifetime,
				MaxConnIdleTime: db.ConnMaxIdleTime,
			})
		})
		if err != nil {
			return nil, nil, err
		}
		return postgres.NewStore(conn), postgresSchema{m: postgres.NewMigrator(conn)}, nil
	}
	return nil, nil, fmt.Errorf("unknown database driver %q", db.Driver)
}

type postgresSchema struct {
	m *postgres.Migrator
}

func (p postgresSchema) Up(ctx context.Context) (int, error) { return p.m.Migrate(ctx) }
func (p postgresSchema) Down(ctx context.Context) error      { return p.m.Rollback(ctx) }

func (p postgresSchema) Status(ctx context.Context) ([]migrationRow, error) {
	list, err := p.m.Status(ctx)
	if err != nil {
		return nil, err
	}
	rows := make([]migrationRow, 0, len(list))
	for _, m := range list {
		rows = append(rows, migrationRow{Version: m.Version, Name: m.Name, Applied: m.IsApplied, AppliedAt: m.AppliedAt})
	}
	return rows, nil
}

var errSQLiteRollback = errors.New("rollback is not supported by the sqlite driver; delete the database file instead")

// openRedis connects to Redis when enabled. A nil cache means the feature is off.
func (a *app) openRedis(ctx context.Context) (*redis.Cache, error) {
	rc := a.cfg.Redis
	if !rc.Enabled {
		return nil, nil
	}

	cfg := redis.DefaultConfig()
	cfg.Host = rc.Host
	cfg.Port = rc.Port
	cfg.Password = rc.Password
	cfg.DB = rc.DB
	cfg.PoolSize = rc.PoolSize
	cfg.MinIdleConns = rc.MinIdleConns
	cfg.DialTimeout = rc.DialTimeout
	cfg.ReadTimeout = rc.ReadTimeout
	cfg.WriteTimeout = rc.WriteTimeout

	return redis.NewCache(ctx, cfg)
}
