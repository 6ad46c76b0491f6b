// Package journal persists settled trades.
package journal

import (
	"context"
	"errors"

	"solana-momentum-bot/internal/domain"
)

// Sentinel errors returned by stores.
var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("journal: record not found")

	// ErrInvalidInput indicates a malformed record.
	ErrInvalidInput = errors.New("journal: invalid input")
)

// TradeStore records settled positions.
type TradeStore interface {
	// Insert appends a settled trade.
	Insert(ctx context.Context, trade *domain.TradeRecord) error

	// GetByMint retrieves all trades for a mint, ordered by exit time ASC.
	GetByMint(ctx context.Context, mint string) ([]*domain.TradeRecord, error)

	// GetAll retrieves every trade, ordered by exit time ASC.
	GetAll(ctx context.Context) ([]*domain.TradeRecord, error)
}
