// Package db opens the gorm connection, applies schema migrations and seeds
// bootstrap data.
package db

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/diewo77/go-policies/internal/config"
)

// retryPolicy bounds how long Open waits for the database to come up.
type retryPolicy struct {
	attempts int
	backoff  time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
}

var startupRetry = retryPolicy{attempts: 10, backoff: 2 * time.Second, sleep: sleep}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Dialector picks the gorm driver for cfg.Driver.
func Dialector(cfg config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "postgres":
		return postgres.Open(cfg.DSN()), nil
	case "sqlite":
		return sqlite.Open(cfg.SQLitePath), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// Open connects to the configured database, retrying while Postgres starts up.
func Open(ctx context.Context, cfg config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	dialector, err := Dialector(cfg)
	if err != nil {
		return nil, err
	}
	logLevel := logger.Silent
	if cfg.Debug {
		logLevel = logger.Info
	}
	gcfg := &gorm.Config{Logger: logger.Default.LogMode(logLevel)}

	open := func() (*gorm.DB, error) { return gorm.Open(dialector, gcfg) }
	return connect(ctx, open, startupRetry, log.With(zap.String("driver", cfg.Driver)))
}

// connect calls open until a connection answers a ping. Every failed attempt
// closes its pool; there is no wait after the last one.
func connect(ctx context.Context, open func() (*gorm.DB, error), rp retryPolicy, log *zap.Logger) (*gorm.DB, error) {
	var err error
	for i := 1; i <= rp.attempts; i++ {
		var conn *gorm.DB
		conn, err = open()
		if err == nil {
			if err = Ping(ctx, conn); err == nil {
				log.Info("database connected", zap.Int("attempt", i))
				return conn, nil
			}
		}
		closePool(conn)
		log.Warn("database not ready", zap.Int("attempt", i), zap.Error(err))
		if i == rp.attempts {
			break
		}
		if serr := rp.sleep(ctx, rp.backoff); serr != nil {
			return nil, serr
		}
	}
	return nil, fmt.Errorf("connect database after %d attempts: %w", rp.attempts, err)
}

func closePool(conn *gorm.DB) {
	if conn == nil {
		return
	}
	if sqlDB, err := conn.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// Ping runs a trivial query; used by /healthz.
func Ping(ctx context.Context, conn *gorm.DB) error {
	return conn.WithContext(ctx).Exec("SELECT 1").Error
}
