package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"anagolay/pkg/domain"
)

const bestBlockName = "best_block"

// ChainState persists the last finalized block in the chain_state table.
type ChainState struct {
	db *sql.DB
}

func NewChainState(db *sql.DB) *ChainState {
	return &ChainState{db: db}
}

// LoadBestBlock returns the last saved finalized block, zero when none was saved.
func (c *ChainState) LoadBestBlock(ctx context.Context) (domain.BlockNumber, error) {
	var best int64
	err := c.db.QueryRowContext(ctx,
		`SELECT value FROM chain_state WHERE name = $1`, bestBlockName,
	).Scan(&best)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load best block: %w", err)
	}
	return domain.BlockNumber(best), nil
}

// SaveBestBlock records block. The stored value never moves backwards.
func (c *ChainState) SaveBestBlock(ctx context.Context, block domain.BlockNumber) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO chain_state (name, value) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET value = GREATEST(chain_state.value, EXCLUDED.value)`,
		bestBlockName, int64(block),
	)
	if err != nil {
		return fmt.Errorf("save best block: %w", err)
	}
	return nil
}
