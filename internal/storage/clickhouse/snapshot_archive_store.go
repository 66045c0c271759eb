package clickhouse

import (
	"context"
	"fmt"

	"bsc-trade-engine/internal/domain"
	"bsc-trade-engine/internal/storage"
)

// SnapshotArchiveStore implements storage.SnapshotArchiveStore using ClickHouse.
type SnapshotArchiveStore struct {
	conn *Conn
}

// NewSnapshotArchiveStore creates a new SnapshotArchiveStore.
func NewSnapshotArchiveStore(conn *Conn) *SnapshotArchiveStore {
	return &SnapshotArchiveStore{conn: conn}
}

// Compile-time interface check.
var _ storage.SnapshotArchiveStore = (*SnapshotArchiveStore)(nil)

// InsertBulk adds multiple points. Fails entire batch on duplicate (coin_id, cycle).
func (s *SnapshotArchiveStore) InsertBulk(ctx context.Context, points []*domain.SnapshotPoint) error {
	if len(points) == 0 {
		return nil
	}

	// Check for intra-batch duplicates
	type key struct {
		coinID string
		cycle  string
	}
	seen := make(map[key]struct{})
	for _, p := range points {
		if p == nil || p.CoinID == "" || p.Cycle == "" {
			return storage.ErrInvalidInput
		}
		k := key{p.CoinID, p.Cycle}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	// Check for duplicates against existing DB rows. MergeTree does not
	// enforce uniqueness at insert time.
	for _, p := range points {
		exists, err := s.exists(ctx, p.CoinID, p.Cycle)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO snapshot_points (
			coin_id, cycle, timestamp_ms, spot_price_usd, volume_usd, dex_price_usd, market_cap_usd
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, p := range points {
		err = batch.Append(
			p.CoinID, p.Cycle, uint64(p.TimestampMs),
			p.SpotPriceUsd, p.VolumeUsd, p.DexPriceUsd, p.MarketCapUsd,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByCoin retrieves all points for a coin, ordered by cycle ASC.
func (s *SnapshotArchiveStore) GetByCoin(ctx context.Context, coinID string) ([]*domain.SnapshotPoint, error) {
	query := `
		SELECT coin_id, cycle, timestamp_ms, spot_price_usd, volume_usd, dex_price_usd, market_cap_usd
		FROM snapshot_points
		WHERE coin_id = ?
		ORDER BY cycle ASC
	`

	rows, err := s.conn.Query(ctx, query, coinID)
	if err != nil {
		return nil, fmt.Errorf("query by coin id: %w", err)
	}
	defer rows.Close()

	return scanSnapshotPoints(rows)
}

// GetByCycleRange retrieves points for a coin within [start, end] (inclusive).
// Cycles sort lexically because snapshot file names are zero-padded.
func (s *SnapshotArchiveStore) GetByCycleRange(ctx context.Context, coinID, start, end string) ([]*domain.SnapshotPoint, error) {
	query := `
		SELECT coin_id, cycle, timestamp_ms, spot_price_usd, volume_usd, dex_price_usd, market_cap_usd
		FROM snapshot_points
		WHERE coin_id = ? AND cycle >= ? AND cycle <= ?
		ORDER BY cycle ASC
	`

	rows, err := s.conn.Query(ctx, query, coinID, start, end)
	if err != nil {
		return nil, fmt.Errorf("query by cycle range: %w", err)
	}
	defer rows.Close()

	return scanSnapshotPoints(rows)
}

// exists checks if a point with the given key exists.
func (s *SnapshotArchiveStore) exists(ctx context.Context, coinID, cycle string) (bool, error) {
	query := `
		SELECT count(*) FROM snapshot_points
		WHERE coin_id = ? AND cycle = ?
	`

	var count uint64
	err := s.conn.QueryRow(ctx, query, coinID, cycle).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Rows interface for scanning
type chRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

// scanSnapshotPoints scans multiple rows.
func scanSnapshotPoints(rows chRows) ([]*domain.SnapshotPoint, error) {
	var points []*domain.SnapshotPoint

	for rows.Next() {
		var p domain.SnapshotPoint
		var timestampMs uint64

		err := rows.Scan(
			&p.CoinID, &p.Cycle, &timestampMs,
			&p.SpotPriceUsd, &p.VolumeUsd, &p.DexPriceUsd, &p.MarketCapUsd,
		)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot point row: %w", err)
		}

		p.TimestampMs = int64(timestampMs)
		points = append(points, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot point rows: %w", err)
	}

	return points, nil
}
