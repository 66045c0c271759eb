package storage

import (
	"context"

	"bsc-trade-engine/internal/domain"
)

// TradeRoundStore provides access to trade_rounds storage.
type TradeRoundStore interface {
	// Insert adds a new round. Returns ErrDuplicateKey if round_id exists.
	Insert(ctx context.Context, r *domain.TradeRound) error

	// InsertBulk adds multiple rounds atomically. Fails entire batch on any duplicate.
	InsertBulk(ctx context.Context, rounds []*domain.TradeRound) error

	// GetByID retrieves a round by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, roundID string) (*domain.TradeRound, error)

	// GetByWallet retrieves all rounds for a wallet, ordered by entry_cycle ASC.
	GetByWallet(ctx context.Context, walletID string) ([]*domain.TradeRound, error)

	// GetByCoin retrieves all rounds for a coin, ordered by entry_cycle ASC.
	GetByCoin(ctx context.Context, coinID string) ([]*domain.TradeRound, error)
}

// SnapshotArchiveStore provides access to snapshot_points storage.
type SnapshotArchiveStore interface {
	// InsertBulk adds multiple points. Fails entire batch on duplicate (coin_id, cycle).
	InsertBulk(ctx context.Context, points []*domain.SnapshotPoint) error

	// GetByCoin retrieves all points for a coin, ordered by cycle ASC.
	GetByCoin(ctx context.Context, coinID string) ([]*domain.SnapshotPoint, error)

	// GetByCycleRange retrieves points for a coin within [start, end] (inclusive,
	// cycle names compare lexically).
	GetByCycleRange(ctx context.Context, coinID, start, end string) ([]*domain.SnapshotPoint, error)
}
