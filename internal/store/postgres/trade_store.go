package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/polyscan/internal/domain"
)

// TradeStore persists attributed trades.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

// InsertBatch inserts trades using a pgx Batch. A transaction already stored
// under the same tx_hash is silently skipped, so replaying a block range is
// idempotent.
func (s *TradeStore) InsertBatch(ctx context.Context, trades []domain.TradeRecord) error {
	if len(trades) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO trades (
			tx_hash, block_number, wallet, token_id, side,
			maker_amount, taker_amount
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tx_hash) DO NOTHING`

	for _, t := range trades {
		batch.Queue(query,
			t.TransactionHash, int64(t.BlockNumber), t.Wallet, t.TokenID,
			t.Side.String(), t.MakerAmount.String(), t.TakerAmount.String(),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range trades {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert trade batch item %d: %w", i, err)
		}
	}
	return nil
}

// CountByWallet returns how many stored trades belong to wallet.
func (s *TradeStore) CountByWallet(ctx context.Context, wallet string) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM trades WHERE wallet = $1", wallet).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: count trades by wallet: %w", err)
	}
	return n, nil
}

// LastBlock returns the highest stored block number, or 0 when the table is
// empty.
func (s *TradeStore) LastBlock(ctx context.Context) (uint64, error) {
	var block *int64
	err := s.pool.QueryRow(ctx,
		"SELECT MAX(block_number) FROM trades").Scan(&block)
	if err != nil {
		return 0, fmt.Errorf("postgres: last stored block: %w", err)
	}
	if block == nil {
		return 0, nil
	}
	return uint64(*block), nil
}
