package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	mu    sync.Mutex
	pools = map[string]*gorm.DB{}
)

// Open returns the process-wide pool for dsn, creating it on first use.
// Connections are pinged before the handle is handed out.
func Open(ctx context.Context, dsn string, log *slog.Logger) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("open database: empty DSN")
	}
	mu.Lock()
	defer mu.Unlock()
	if d, ok := pools[dsn]; ok {
		return d, nil
	}
	if log == nil {
		log = slog.Default()
	}

	// Slow queries and errors go through slog; statement tracing stays off.
	lg := logger.New(
		slog.NewLogLogger(log.Handler(), slog.LevelWarn),
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	d, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: lg})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := d.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	pools[dsn] = d
	log.Debug("connected to database")
	return d, nil
}

// WithSession runs fn inside a transaction bound to ctx.
// It commits when fn returns nil and rolls back otherwise.
func WithSession(ctx context.Context, d *gorm.DB, fn func(tx *gorm.DB) error) error {
	return d.WithContext(ctx).Transaction(fn, &sql.TxOptions{})
}

// Close releases every pool opened by this process.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	for dsn, d := range pools {
		if sqlDB, err := d.DB(); err == nil {
			_ = sqlDB.Close()
		}
		delete(pools, dsn)
	}
}
