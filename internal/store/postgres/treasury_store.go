package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openmatch/nftx/internal/domain"
)

// TreasuryStore implements domain.TreasuryStore using PostgreSQL. Amounts
// are NUMERIC(78,0) so full uint256 balances survive the round trip; they
// cross the wire as decimal strings.
type TreasuryStore struct {
	pool *pgxpool.Pool
}

// NewTreasuryStore creates a TreasuryStore backed by the given connection pool.
func NewTreasuryStore(pool *pgxpool.Pool) *TreasuryStore {
	return &TreasuryStore{pool: pool}
}

// Credit adds amount to the (bucket, recipient, currency) balance.
func (s *TreasuryStore) Credit(ctx context.Context, bucket domain.FeeBucket, recipient, currency common.Address, amount *big.Int) error {
	const query = `
		INSERT INTO fee_balances (bucket, recipient, currency, amount)
		VALUES ($1, $2, $3, $4::numeric)
		ON CONFLICT (bucket, recipient, currency) DO UPDATE
		SET amount = fee_balances.amount + EXCLUDED.amount,
		    updated_at = NOW()`

	if _, err := s.pool.Exec(ctx, query, string(bucket), addrKey(recipient), addrKey(currency), amount.String()); err != nil {
		return fmt.Errorf("postgres: credit %s to %s: %w", amount, recipient.Hex(), err)
	}
	return nil
}

// Debit removes amount from the balance. The amount guard in the WHERE
// clause makes an over-debit a no-op reported as an error instead of a
// negative balance.
func (s *TreasuryStore) Debit(ctx context.Context, bucket domain.FeeBucket, recipient, currency common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}

	const query = `
		UPDATE fee_balances
		SET amount = amount - $4::numeric, updated_at = NOW()
		WHERE bucket = $1 AND recipient = $2 AND currency = $3 AND amount >= $4::numeric`

	tag, err := s.pool.Exec(ctx, query, string(bucket), addrKey(recipient), addrKey(currency), amount.String())
	if err != nil {
		return fmt.Errorf("postgres: debit %s from %s: %w", amount, recipient.Hex(), err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: debit %s from %s exceeds balance", amount, recipient.Hex())
	}
	return nil
}

// Balance reads the accrued balance, zero when no row exists.
func (s *TreasuryStore) Balance(ctx context.Context, bucket domain.FeeBucket, recipient, currency common.Address) (*big.Int, error) {
	const query = `
		SELECT amount::text FROM fee_balances
		WHERE bucket = $1 AND recipient = $2 AND currency = $3`

	var raw string
	err := s.pool.QueryRow(ctx, query, string(bucket), addrKey(recipient), addrKey(currency)).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: balance for %s: %w", recipient.Hex(), err)
	}
	return parseNumeric(raw)
}

// Drain atomically zeroes a positive balance and returns the prior amount.
// The row is locked and its prior amount captured before the update, so two
// concurrent claims cannot both see the funds.
func (s *TreasuryStore) Drain(ctx context.Context, bucket domain.FeeBucket, recipient, currency common.Address) (*big.Int, error) {
	const query = `
		UPDATE fee_balances f
		SET amount = 0, updated_at = NOW()
		FROM (
			SELECT bucket, recipient, currency, amount AS prior
			FROM fee_balances
			WHERE bucket = $1 AND recipient = $2 AND currency = $3 AND amount > 0
			FOR UPDATE
		) p
		WHERE f.bucket = p.bucket AND f.recipient = p.recipient AND f.currency = p.currency
		RETURNING p.prior::text`

	var raw string
	err := s.pool.QueryRow(ctx, query, string(bucket), addrKey(recipient), addrKey(currency)).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("postgres: drain for %s: %w", recipient.Hex(), domain.ErrNoFeesToClaim)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: drain for %s: %w", recipient.Hex(), err)
	}
	return parseNumeric(raw)
}

func parseNumeric(raw string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("postgres: malformed numeric %q", raw)
	}
	return amount, nil
}
