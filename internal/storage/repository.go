package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const (
	schemaSQL = `CREATE TABLE IF NOT EXISTS execution_records (
        id              UUID PRIMARY KEY,
        executed_at     TIMESTAMPTZ NOT NULL,
        kind            TEXT NOT NULL,
        token_symbol    TEXT NOT NULL,
        from_chain_id   BIGINT NOT NULL,
        to_chain_id     BIGINT NOT NULL,
        amount_usd      NUMERIC NOT NULL,
        net_benefit_usd NUMERIC NOT NULL,
        success         BOOLEAN NOT NULL,
        status          TEXT NOT NULL,
        tx_hash         TEXT,
        error           TEXT,
        realized_profit NUMERIC,
        plan            JSONB,
        created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
    );
    CREATE TABLE IF NOT EXISTS rotator_kv (
        key        TEXT PRIMARY KEY,
        value      JSONB NOT NULL,
        updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
    );`

	insertExecutionSQL = `INSERT INTO execution_records (
        id, executed_at, kind, token_symbol, from_chain_id, to_chain_id,
        amount_usd, net_benefit_usd, success, status, tx_hash, error,
        realized_profit, plan
    ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14);`

	// trimExecutionsSQL drops everything beyond the newest HistoryLimit
	// rows, oldest first.
	trimExecutionsSQL = `DELETE FROM execution_records
    WHERE id IN (
        SELECT id FROM execution_records
        ORDER BY executed_at DESC, created_at DESC
        OFFSET $1
    );`

	listExecutionsSQL = `SELECT
        id, executed_at, kind, token_symbol, from_chain_id, to_chain_id,
        amount_usd, net_benefit_usd, success, status, tx_hash, error,
        realized_profit, plan, created_at
    FROM execution_records
    ORDER BY executed_at DESC, created_at DESC
    LIMIT $1;`

	clearExecutionsSQL = `DELETE FROM execution_records;`

	upsertKVSQL = `INSERT INTO rotator_kv (key, value, updated_at)
    VALUES ($1, $2, now())
    ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now();`

	selectKVSQL = `SELECT value FROM rotator_kv WHERE key = $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

const (
	kvMonitorConfig    = "monitor_config"
	kvCumulativeProfit = "cumulative_profit"
)

// Store aggregates access to the execution ledger and persisted config.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store and ensures the schema exists.
func NewStore(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return s, nil
}

// Close releases the underlying pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// AppendExecution writes a record and trims the ledger to HistoryLimit.
func (s *Store) AppendExecution(ctx context.Context, record ExecutionRecord) error {
	if s.pool == nil {
		return ErrNotConfigured
	}

	var realized *string
	if record.RealizedProfit != nil {
		v := record.RealizedProfit.String()
		realized = &v
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, insertExecutionSQL,
		record.ID,
		record.ExecutedAt,
		record.Kind,
		record.TokenSymbol,
		record.FromChainID,
		record.ToChainID,
		record.AmountUSD.String(),
		record.NetBenefitUSD.String(),
		record.Success,
		record.Status,
		nullable(record.TxHash),
		nullable(record.Error),
		realized,
		record.Plan,
	)
	if err != nil {
		return fmt.Errorf("insert execution record: %w", err)
	}

	if _, err := tx.Exec(ctx, trimExecutionsSQL, HistoryLimit); err != nil {
		return fmt.Errorf("trim execution records: %w", err)
	}

	return tx.Commit(ctx)
}

// ListExecutions returns up to limit records, newest first.
func (s *Store) ListExecutions(ctx context.Context, limit int) ([]ExecutionRecord, error) {
	if s.pool == nil {
		return nil, ErrNotConfigured
	}
	if limit <= 0 || limit > HistoryLimit {
		limit = HistoryLimit
	}

	rows, err := s.pool.Query(ctx, listExecutionsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("list execution records: %w", err)
	}
	defer rows.Close()

	var out []ExecutionRecord
	for rows.Next() {
		var (
			rec       ExecutionRecord
			amount    string
			net       string
			txHash    *string
			errMsg    *string
			realized  *string
			createdAt time.Time
		)
		if err := rows.Scan(
			&rec.ID, &rec.ExecutedAt, &rec.Kind, &rec.TokenSymbol,
			&rec.FromChainID, &rec.ToChainID, &amount, &net,
			&rec.Success, &rec.Status, &txHash, &errMsg, &realized,
			&rec.Plan, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan execution record: %w", err)
		}
		rec.AmountUSD, _ = decimal.NewFromString(amount)
		rec.NetBenefitUSD, _ = decimal.NewFromString(net)
		if txHash != nil {
			rec.TxHash = *txHash
		}
		if errMsg != nil {
			rec.Error = *errMsg
		}
		if realized != nil {
			if v, err := decimal.NewFromString(*realized); err == nil {
				rec.RealizedProfit = &v
			}
		}
		rec.CreatedAt = createdAt
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ClearExecutions empties the ledger and resets cumulative profit.
func (s *Store) ClearExecutions(ctx context.Context) error {
	if s.pool == nil {
		return ErrNotConfigured
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin clear: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, clearExecutionsSQL); err != nil {
		return fmt.Errorf("clear execution records: %w", err)
	}
	raw, _ := json.Marshal(decimal.Zero.String())
	if _, err := tx.Exec(ctx, upsertKVSQL, kvCumulativeProfit, raw); err != nil {
		return fmt.Errorf("reset cumulative profit: %w", err)
	}
	return tx.Commit(ctx)
}

// CumulativeProfit reads the persisted realized-profit accumulator.
func (s *Store) CumulativeProfit(ctx context.Context) (decimal.Decimal, error) {
	if s.pool == nil {
		return decimal.Zero, ErrNotConfigured
	}
	var raw json.RawMessage
	err := s.pool.QueryRow(ctx, selectKVSQL, kvCumulativeProfit).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("read cumulative profit: %w", err)
	}
	var s2 string
	if err := json.Unmarshal(raw, &s2); err != nil {
		return decimal.Zero, fmt.Errorf("decode cumulative profit: %w", err)
	}
	value, err := decimal.NewFromString(s2)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse cumulative profit: %w", err)
	}
	return value, nil
}

// AddProfit adds delta to the persisted accumulator.
func (s *Store) AddProfit(ctx context.Context, delta decimal.Decimal) error {
	if s.pool == nil {
		return ErrNotConfigured
	}
	current, err := s.CumulativeProfit(ctx)
	if err != nil {
		return err
	}
	raw, _ := json.Marshal(current.Add(delta).String())
	if _, err := s.pool.Exec(ctx, upsertKVSQL, kvCumulativeProfit, raw); err != nil {
		return fmt.Errorf("write cumulative profit: %w", err)
	}
	return nil
}

// SaveMonitorConfig persists the monitor's live policy.
func (s *Store) SaveMonitorConfig(ctx context.Context, raw json.RawMessage) error {
	if s.pool == nil {
		return ErrNotConfigured
	}
	if _, err := s.pool.Exec(ctx, upsertKVSQL, kvMonitorConfig, raw); err != nil {
		return fmt.Errorf("save monitor config: %w", err)
	}
	return nil
}

// LoadMonitorConfig returns the persisted policy, or ErrNotFound.
func (s *Store) LoadMonitorConfig(ctx context.Context) (json.RawMessage, error) {
	if s.pool == nil {
		return nil, ErrNotConfigured
	}
	var raw json.RawMessage
	err := s.pool.QueryRow(ctx, selectKVSQL, kvMonitorConfig).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load monitor config: %w", err)
	}
	return raw, nil
}

// TryAdvisoryLock guards a deployment against two concurrent engines
// sharing one database.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	if s.pool == nil {
		return nil, false, ErrNotConfigured
	}
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		_, _ = conn.Exec(context.Background(), advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func nullable(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

var (
	_ ExecutionStore = (*Store)(nil)
	_ ConfigStore    = (*Store)(nil)
	_ AdvisoryLocker = (*Store)(nil)
)
