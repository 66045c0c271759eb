package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"bsc-trade-engine/internal/domain"
	"bsc-trade-engine/internal/storage"
)

// TradeRoundStore implements storage.TradeRoundStore using PostgreSQL.
type TradeRoundStore struct {
	pool *Pool
}

// NewTradeRoundStore creates a new TradeRoundStore.
func NewTradeRoundStore(pool *Pool) *TradeRoundStore {
	return &TradeRoundStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TradeRoundStore = (*TradeRoundStore)(nil)

const tradeRoundColumns = `
	round_id, wallet_id, coin_id, symbol, action,
	entry_cycle, entry_price_usd, exit_cycle, exit_price_usd,
	token_amount, usd_cost, usd_proceeds, pnl_usd,
	tx_hash, simulated
`

const insertTradeRoundQuery = `
	INSERT INTO trade_rounds (
		round_id, wallet_id, coin_id, symbol, action,
		entry_cycle, entry_price_usd, exit_cycle, exit_price_usd,
		token_amount, usd_cost, usd_proceeds, pnl_usd,
		tx_hash, simulated
	) VALUES (
		$1, $2, $3, $4, $5,
		$6, $7, $8, $9,
		$10, $11, $12, $13,
		$14, $15
	)
`

// Insert adds a new round. Returns ErrDuplicateKey if round_id exists.
func (s *TradeRoundStore) Insert(ctx context.Context, r *domain.TradeRound) error {
	if r == nil || r.RoundID == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, insertTradeRoundQuery,
		r.RoundID, r.WalletID, r.CoinID, r.Symbol, string(r.Action),
		r.EntryCycle, r.EntryPriceUsd, r.ExitCycle, r.ExitPriceUsd,
		r.TokenAmount, r.UsdCost, r.UsdProceeds, r.PnlUsd,
		r.TxHash, r.Simulated,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert trade round: %w", err)
	}
	return nil
}

// InsertBulk adds multiple rounds atomically. Fails entire batch on any duplicate.
func (s *TradeRoundStore) InsertBulk(ctx context.Context, rounds []*domain.TradeRound) error {
	if len(rounds) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, r := range rounds {
		if r == nil || r.RoundID == "" {
			return storage.ErrInvalidInput
		}
		_, err := tx.Exec(ctx, insertTradeRoundQuery,
			r.RoundID, r.WalletID, r.CoinID, r.Symbol, string(r.Action),
			r.EntryCycle, r.EntryPriceUsd, r.ExitCycle, r.ExitPriceUsd,
			r.TokenAmount, r.UsdCost, r.UsdProceeds, r.PnlUsd,
			r.TxHash, r.Simulated,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert trade round in bulk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetByID retrieves a round by its ID. Returns ErrNotFound if not exists.
func (s *TradeRoundStore) GetByID(ctx context.Context, roundID string) (*domain.TradeRound, error) {
	query := `SELECT ` + tradeRoundColumns + ` FROM trade_rounds WHERE round_id = $1`

	row := s.pool.QueryRow(ctx, query, roundID)
	r, err := scanTradeRound(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get trade round by id: %w", err)
	}
	return r, nil
}

// GetByWallet retrieves all rounds for a wallet, ordered by entry_cycle ASC.
func (s *TradeRoundStore) GetByWallet(ctx context.Context, walletID string) ([]*domain.TradeRound, error) {
	query := `
		SELECT ` + tradeRoundColumns + `
		FROM trade_rounds
		WHERE wallet_id = $1
		ORDER BY entry_cycle ASC, round_id ASC
	`

	rows, err := s.pool.Query(ctx, query, walletID)
	if err != nil {
		return nil, fmt.Errorf("get trade rounds by wallet: %w", err)
	}
	defer rows.Close()

	return scanTradeRounds(rows)
}

// GetByCoin retrieves all rounds for a coin, ordered by entry_cycle ASC.
func (s *TradeRoundStore) GetByCoin(ctx context.Context, coinID string) ([]*domain.TradeRound, error) {
	query := `
		SELECT ` + tradeRoundColumns + `
		FROM trade_rounds
		WHERE coin_id = $1
		ORDER BY entry_cycle ASC, round_id ASC
	`

	rows, err := s.pool.Query(ctx, query, coinID)
	if err != nil {
		return nil, fmt.Errorf("get trade rounds by coin: %w", err)
	}
	defer rows.Close()

	return scanTradeRounds(rows)
}

// scanTradeRound scans a single row into a TradeRound.
func scanTradeRound(row pgx.Row) (*domain.TradeRound, error) {
	var r domain.TradeRound
	var action string

	err := row.Scan(
		&r.RoundID, &r.WalletID, &r.CoinID, &r.Symbol, &action,
		&r.EntryCycle, &r.EntryPriceUsd, &r.ExitCycle, &r.ExitPriceUsd,
		&r.TokenAmount, &r.UsdCost, &r.UsdProceeds, &r.PnlUsd,
		&r.TxHash, &r.Simulated,
	)
	if err != nil {
		return nil, err
	}

	r.Action = domain.Action(action)
	return &r, nil
}

// scanTradeRounds scans multiple rows into a slice of TradeRound.
func scanTradeRounds(rows pgx.Rows) ([]*domain.TradeRound, error) {
	var rounds []*domain.TradeRound

	for rows.Next() {
		var r domain.TradeRound
		var action string

		err := rows.Scan(
			&r.RoundID, &r.WalletID, &r.CoinID, &r.Symbol, &action,
			&r.EntryCycle, &r.EntryPriceUsd, &r.ExitCycle, &r.ExitPriceUsd,
			&r.TokenAmount, &r.UsdCost, &r.UsdProceeds, &r.PnlUsd,
			&r.TxHash, &r.Simulated,
		)
		if err != nil {
			return nil, fmt.Errorf("scan trade round row: %w", err)
		}

		r.Action = domain.Action(action)
		rounds = append(rounds, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade round rows: %w", err)
	}

	return rounds, nil
}
