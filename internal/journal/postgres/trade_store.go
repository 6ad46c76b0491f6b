// Package postgres implements the trade journal on PostgreSQL.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"solana-momentum-bot/internal/domain"
	"solana-momentum-bot/internal/journal"
)

// Pool wraps pgxpool.Pool for dependency injection.
type Pool struct {
	*pgxpool.Pool
}

// NewPool creates a new Postgres connection pool and verifies connectivity.
func NewPool(ctx context.Context, dsn string) (*Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// Close closes the connection pool.
func (p *Pool) Close() {
	p.Pool.Close()
}

// schema creates the trades table when absent.
const schema = `
CREATE TABLE IF NOT EXISTS trades (
	id           BIGSERIAL PRIMARY KEY,
	mint         TEXT NOT NULL,
	symbol       TEXT NOT NULL DEFAULT '',
	entry_price  DOUBLE PRECISION NOT NULL,
	exit_price   DOUBLE PRECISION NOT NULL,
	entry_time   BIGINT NOT NULL,
	exit_time    BIGINT NOT NULL,
	size_sol     DOUBLE PRECISION NOT NULL,
	pnl_sol      DOUBLE PRECISION NOT NULL,
	reason       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS trades_mint_idx ON trades (mint);
`

// TradeStore implements journal.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *Pool
}

// Compile-time interface check.
var _ journal.TradeStore = (*TradeStore)(nil)

// NewTradeStore creates the store and ensures the schema exists.
func NewTradeStore(ctx context.Context, pool *Pool) (*TradeStore, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("ensure trades schema: %w", err)
	}
	return &TradeStore{pool: pool}, nil
}

// Insert appends a settled trade.
func (s *TradeStore) Insert(ctx context.Context, t *domain.TradeRecord) error {
	if t == nil || t.Mint == "" {
		return journal.ErrInvalidInput
	}

	query := `
		INSERT INTO trades (
			mint, symbol, entry_price, exit_price,
			entry_time, exit_time, size_sol, pnl_sol, reason
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.pool.Exec(ctx, query,
		t.Mint, t.Symbol, t.EntryPrice, t.ExitPrice,
		t.EntryTimeMs, t.ExitTimeMs, t.SizeSol, t.PnLSol, string(t.Reason),
	)
	if err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// GetByMint retrieves all trades for a mint, ordered by exit time ASC.
func (s *TradeStore) GetByMint(ctx context.Context, mint string) ([]*domain.TradeRecord, error) {
	query := `
		SELECT mint, symbol, entry_price, exit_price,
		       entry_time, exit_time, size_sol, pnl_sol, reason
		FROM trades
		WHERE mint = $1
		ORDER BY exit_time ASC
	`
	rows, err := s.pool.Query(ctx, query, mint)
	if err != nil {
		return nil, fmt.Errorf("query trades by mint: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// GetAll retrieves every trade, ordered by exit time ASC.
func (s *TradeStore) GetAll(ctx context.Context) ([]*domain.TradeRecord, error) {
	query := `
		SELECT mint, symbol, entry_price, exit_price,
		       entry_time, exit_time, size_sol, pnl_sol, reason
		FROM trades
		ORDER BY exit_time ASC
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

func scanTrades(rows pgx.Rows) ([]*domain.TradeRecord, error) {
	var out []*domain.TradeRecord
	for rows.Next() {
		var t domain.TradeRecord
		var reason string
		if err := rows.Scan(
			&t.Mint, &t.Symbol, &t.EntryPrice, &t.ExitPrice,
			&t.EntryTimeMs, &t.ExitTimeMs, &t.SizeSol, &t.PnLSol, &reason,
		); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		t.Reason = domain.Reason(reason)
		out = append(out, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trades: %w", err)
	}
	return out, nil
}
