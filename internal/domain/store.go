package domain

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// NonceStore tracks per-signer order nonces. A nonce is active until it is
// individually invalidated (consumed or cancelled) or falls below the
// signer's bulk-cancellation floor.
type NonceStore interface {
	// IsActive reports whether the nonce may still authorize an order.
	IsActive(ctx context.Context, signer common.Address, nonce uint64) (bool, error)
	// Invalidate marks a single nonce as consumed. Idempotent.
	Invalidate(ctx context.Context, signer common.Address, nonce uint64) error
	// CancelAll raises the signer's minimum-nonce floor, bulk-invalidating
	// every order with a nonce below it. The floor never moves down.
	CancelAll(ctx context.Context, signer common.Address, minNonce uint64) error
	// MinNonce returns the signer's current floor (0 if never raised).
	MinNonce(ctx context.Context, signer common.Address) (uint64, error)
}

// TreasuryStore is the escrow ledger keyed by (bucket, recipient, currency).
type TreasuryStore interface {
	// Credit adds amount to a balance. Purely additive, never fails on state.
	Credit(ctx context.Context, bucket FeeBucket, recipient, currency common.Address, amount *big.Int) error
	// Debit removes amount from a balance, failing when the balance is
	// smaller than amount. Used to reverse the credits of an unwound
	// settlement.
	Debit(ctx context.Context, bucket FeeBucket, recipient, currency common.Address, amount *big.Int) error
	// Balance reads the accrued balance; zero (not ErrNotFound) when absent.
	Balance(ctx context.Context, bucket FeeBucket, recipient, currency common.Address) (*big.Int, error)
	// Drain atomically zeroes a balance and returns the prior amount.
	// A zero prior balance yields ErrNoFeesToClaim.
	Drain(ctx context.Context, bucket FeeBucket, recipient, currency common.Address) (*big.Int, error)
}

// FeeSplitStore persists per-collection creator-fee overrides.
type FeeSplitStore interface {
	Get(ctx context.Context, collection common.Address) (FeeSplit, error)
	Upsert(ctx context.Context, split FeeSplit) error
}

// SettlementStore persists executed settlements.
type SettlementStore interface {
	Insert(ctx context.Context, s Settlement) error
	GetByID(ctx context.Context, id string) (Settlement, error)
	ListRecent(ctx context.Context, opts ListOpts) ([]Settlement, error)
	// Delete removes a settlement record, ErrNotFound when absent. Only
	// the batch unwind path deletes; settled trades are otherwise
	// append-only.
	Delete(ctx context.Context, id string) error
}
