// Package treasury is the escrow side of settlement: sale proceeds are
// parked under the exchange's escrow account and fee balances accrue per
// (bucket, recipient, currency) until claimed.
package treasury

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openmatch/nftx/internal/domain"
)

// claimLockTTL bounds how long a crashed claimer can block a recipient.
const claimLockTTL = 30 * time.Second

// Treasury credits fee balances during settlement and pays them out on
// claim. Claims follow checks-effects-interactions: the ledger entry is
// zeroed before the external transfer is attempted, so a re-entrant call
// from inside the transfer sees a zero balance.
type Treasury struct {
	store   domain.TreasuryStore
	assets  domain.AssetTransfer
	locks   domain.LockManager
	escrow  common.Address
	curator common.Address
	logger  *slog.Logger
}

// New creates a Treasury. escrow is the account holding settled funds;
// curator receives the protocol fee bucket. locks may be nil for embedded
// single-process use.
func New(store domain.TreasuryStore, assets domain.AssetTransfer, locks domain.LockManager, escrow, curator common.Address, logger *slog.Logger) *Treasury {
	return &Treasury{
		store:   store,
		assets:  assets,
		locks:   locks,
		escrow:  escrow,
		curator: curator,
		logger:  logger,
	}
}

// Escrow returns the account settled funds are held under.
func (t *Treasury) Escrow() common.Address {
	return t.escrow
}

// CollectFees credits the curator fee and every creator allocation of a
// settlement. Credits are purely additive and cannot fail on ledger state.
func (t *Treasury) CollectFees(ctx context.Context, fb domain.FeeBreakdown, currency common.Address) error {
	if err := t.store.Credit(ctx, domain.FeeBucketCurator, t.curator, currency, fb.CuratorFee); err != nil {
		return fmt.Errorf("treasury: credit curator fee: %w", err)
	}
	for _, alloc := range fb.CreatorFees {
		if err := t.store.Credit(ctx, domain.FeeBucketCreator, alloc.Recipient, currency, alloc.Amount); err != nil {
			return fmt.Errorf("treasury: credit creator fee to %s: %w", alloc.Recipient.Hex(), err)
		}
	}
	return nil
}

// ReverseFees debits the balances credited by CollectFees, undoing the fee
// leg of a settlement that failed after the fees were booked.
func (t *Treasury) ReverseFees(ctx context.Context, fb domain.FeeBreakdown, currency common.Address) error {
	if err := t.store.Debit(ctx, domain.FeeBucketCurator, t.curator, currency, fb.CuratorFee); err != nil {
		return fmt.Errorf("treasury: reverse curator fee: %w", err)
	}
	for _, alloc := range fb.CreatorFees {
		if err := t.store.Debit(ctx, domain.FeeBucketCreator, alloc.Recipient, currency, alloc.Amount); err != nil {
			return fmt.Errorf("treasury: reverse creator fee to %s: %w", alloc.Recipient.Hex(), err)
		}
	}
	return nil
}

// Balance reads an accrued fee balance.
func (t *Treasury) Balance(ctx context.Context, bucket domain.FeeBucket, recipient, currency common.Address) (*big.Int, error) {
	return t.store.Balance(ctx, bucket, recipient, currency)
}

// Claim pays out a recipient's full accrued balance in one currency and
// returns the amount. A zero balance yields ErrNoFeesToClaim. If the
// outbound transfer fails the drained amount is re-credited, after the
// external call has already returned, and ErrTransferFailed is reported.
func (t *Treasury) Claim(ctx context.Context, bucket domain.FeeBucket, recipient, currency common.Address) (*big.Int, error) {
	if t.locks != nil {
		key := fmt.Sprintf("claim:%s:%s:%s", bucket, recipient.Hex(), currency.Hex())
		unlock, err := t.locks.Acquire(ctx, key, claimLockTTL)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				return nil, fmt.Errorf("treasury: concurrent claim for %s: %w", recipient.Hex(), err)
			}
			return nil, fmt.Errorf("treasury: claim lock: %w", err)
		}
		defer unlock()
	}

	amount, err := t.store.Drain(ctx, bucket, recipient, currency)
	if err != nil {
		return nil, err
	}

	if err := t.assets.TransferFungible(ctx, currency, t.escrow, recipient, amount); err != nil {
		if creditErr := t.store.Credit(ctx, bucket, recipient, currency, amount); creditErr != nil {
			t.logger.Error("failed to restore balance after transfer failure",
				slog.String("recipient", recipient.Hex()),
				slog.String("amount", amount.String()),
				slog.String("error", creditErr.Error()),
			)
		}
		return nil, fmt.Errorf("treasury: payout to %s: %v: %w", recipient.Hex(), err, domain.ErrTransferFailed)
	}

	t.logger.Info("fees claimed",
		slog.String("bucket", string(bucket)),
		slog.String("recipient", recipient.Hex()),
		slog.String("currency", currency.Hex()),
		slog.String("amount", amount.String()),
	)
	return amount, nil
}
