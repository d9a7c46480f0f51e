package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/Ashar20/lifi-rotator/internal/config"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
	// ErrNotFound indicates the requested key has no stored value.
	ErrNotFound = errors.New("storage: not found")
)

// ExecutionStore persists the bounded execution ledger and the cumulative
// realized profit.
type ExecutionStore interface {
	AppendExecution(ctx context.Context, record ExecutionRecord) error
	ListExecutions(ctx context.Context, limit int) ([]ExecutionRecord, error)
	ClearExecutions(ctx context.Context) error
	CumulativeProfit(ctx context.Context) (decimal.Decimal, error)
	AddProfit(ctx context.Context, delta decimal.Decimal) error
}

// ConfigStore persists the monitor's runtime policy across restarts.
type ConfigStore interface {
	SaveMonitorConfig(ctx context.Context, raw json.RawMessage) error
	LoadMonitorConfig(ctx context.Context) (json.RawMessage, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// NewPool configures a PostgreSQL connection pool from runtime settings.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	return pool, nil
}
