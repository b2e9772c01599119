package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openmatch/nftx/internal/domain"
)

// FeeSplitStore implements domain.FeeSplitStore using PostgreSQL. The split
// header and its ordered shares live in two tables; Upsert replaces both in
// one transaction so a failed write never leaves a half-configured split.
type FeeSplitStore struct {
	pool *pgxpool.Pool
}

// NewFeeSplitStore creates a FeeSplitStore backed by the given connection pool.
func NewFeeSplitStore(pool *pgxpool.Pool) *FeeSplitStore {
	return &FeeSplitStore{pool: pool}
}

// Get returns the collection's configured split, domain.ErrNotFound when the
// collection has no override.
func (s *FeeSplitStore) Get(ctx context.Context, collection common.Address) (domain.FeeSplit, error) {
	const headQuery = `SELECT setter FROM fee_splits WHERE collection = $1`

	var setter string
	err := s.pool.QueryRow(ctx, headQuery, addrKey(collection)).Scan(&setter)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.FeeSplit{}, fmt.Errorf("postgres: fee split for %s: %w", collection.Hex(), domain.ErrNotFound)
	}
	if err != nil {
		return domain.FeeSplit{}, fmt.Errorf("postgres: fee split for %s: %w", collection.Hex(), err)
	}

	const sharesQuery = `
		SELECT recipient, bps FROM fee_split_shares
		WHERE collection = $1 ORDER BY idx`

	rows, err := s.pool.Query(ctx, sharesQuery, addrKey(collection))
	if err != nil {
		return domain.FeeSplit{}, fmt.Errorf("postgres: fee split shares for %s: %w", collection.Hex(), err)
	}
	defer rows.Close()

	split := domain.FeeSplit{
		Collection: collection,
		Setter:     common.HexToAddress(setter),
	}
	for rows.Next() {
		var recipient string
		var bps int64
		if err := rows.Scan(&recipient, &bps); err != nil {
			return domain.FeeSplit{}, fmt.Errorf("postgres: scan fee share: %w", err)
		}
		split.Shares = append(split.Shares, domain.FeeShare{
			Recipient: common.HexToAddress(recipient),
			Bps:       uint64(bps),
		})
	}
	if err := rows.Err(); err != nil {
		return domain.FeeSplit{}, fmt.Errorf("postgres: fee split shares for %s: %w", collection.Hex(), err)
	}
	return split, nil
}

// Upsert replaces the collection's split configuration.
func (s *FeeSplitStore) Upsert(ctx context.Context, split domain.FeeSplit) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin fee split upsert: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const headQuery = `
		INSERT INTO fee_splits (collection, setter) VALUES ($1, $2)
		ON CONFLICT (collection) DO UPDATE
		SET setter = EXCLUDED.setter, updated_at = NOW()`
	if _, err := tx.Exec(ctx, headQuery, addrKey(split.Collection), addrKey(split.Setter)); err != nil {
		return fmt.Errorf("postgres: upsert fee split %s: %w", split.Collection.Hex(), err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM fee_split_shares WHERE collection = $1`, addrKey(split.Collection)); err != nil {
		return fmt.Errorf("postgres: clear fee shares %s: %w", split.Collection.Hex(), err)
	}

	const shareQuery = `
		INSERT INTO fee_split_shares (collection, idx, recipient, bps)
		VALUES ($1, $2, $3, $4)`
	for i, share := range split.Shares {
		if _, err := tx.Exec(ctx, shareQuery, addrKey(split.Collection), i, addrKey(share.Recipient), int64(share.Bps)); err != nil {
			return fmt.Errorf("postgres: insert fee share %d for %s: %w", i, split.Collection.Hex(), err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit fee split %s: %w", split.Collection.Hex(), err)
	}
	return nil
}
