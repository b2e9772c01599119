package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NonceStore implements domain.NonceStore using PostgreSQL. Consumed nonces
// live in a dedicated table; the bulk-cancellation floor is one row per
// signer.
type NonceStore struct {
	pool *pgxpool.Pool
}

// NewNonceStore creates a NonceStore backed by the given connection pool.
func NewNonceStore(pool *pgxpool.Pool) *NonceStore {
	return &NonceStore{pool: pool}
}

func addrKey(a common.Address) string {
	return strings.ToLower(a.Hex())
}

// IsActive reports whether the nonce is above the signer's floor and has not
// been consumed.
func (s *NonceStore) IsActive(ctx context.Context, signer common.Address, nonce uint64) (bool, error) {
	const query = `
		SELECT
			$2 >= COALESCE((SELECT min_nonce FROM nonce_floors WHERE signer = $1), 0)
			AND NOT EXISTS (SELECT 1 FROM consumed_nonces WHERE signer = $1 AND nonce = $2)`

	var active bool
	if err := s.pool.QueryRow(ctx, query, addrKey(signer), int64(nonce)).Scan(&active); err != nil {
		return false, fmt.Errorf("postgres: nonce lookup for %s/%d: %w", signer.Hex(), nonce, err)
	}
	return active, nil
}

// Invalidate marks a nonce consumed. Re-inserting an already consumed nonce
// is a no-op.
func (s *NonceStore) Invalidate(ctx context.Context, signer common.Address, nonce uint64) error {
	const query = `
		INSERT INTO consumed_nonces (signer, nonce) VALUES ($1, $2)
		ON CONFLICT (signer, nonce) DO NOTHING`

	if _, err := s.pool.Exec(ctx, query, addrKey(signer), int64(nonce)); err != nil {
		return fmt.Errorf("postgres: invalidate nonce %s/%d: %w", signer.Hex(), nonce, err)
	}
	return nil
}

// CancelAll raises the signer's floor. GREATEST keeps the floor monotonic
// even under concurrent calls.
func (s *NonceStore) CancelAll(ctx context.Context, signer common.Address, minNonce uint64) error {
	const query = `
		INSERT INTO nonce_floors (signer, min_nonce) VALUES ($1, $2)
		ON CONFLICT (signer) DO UPDATE
		SET min_nonce = GREATEST(nonce_floors.min_nonce, EXCLUDED.min_nonce),
		    updated_at = NOW()`

	if _, err := s.pool.Exec(ctx, query, addrKey(signer), int64(minNonce)); err != nil {
		return fmt.Errorf("postgres: raise nonce floor %s/%d: %w", signer.Hex(), minNonce, err)
	}
	return nil
}

// MinNonce returns the signer's current floor, zero if never raised.
func (s *NonceStore) MinNonce(ctx context.Context, signer common.Address) (uint64, error) {
	const query = `SELECT COALESCE((SELECT min_nonce FROM nonce_floors WHERE signer = $1), 0)`

	var floor int64
	if err := s.pool.QueryRow(ctx, query, addrKey(signer)).Scan(&floor); err != nil {
		return 0, fmt.Errorf("postgres: nonce floor for %s: %w", signer.Hex(), err)
	}
	return uint64(floor), nil
}
