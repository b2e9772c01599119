// Package exchange is the settlement orchestrator. It is the only component
// with transaction-level authority: it validates orders, matches them,
// computes fees, moves funds through escrow and retires nonces, in a fixed
// step order. A failing step compensates everything applied before it, so a
// failed settlement leaves no partial state behind.
package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openmatch/nftx/internal/crypto"
	"github.com/openmatch/nftx/internal/domain"
	"github.com/openmatch/nftx/internal/fees"
	"github.com/openmatch/nftx/internal/match"
	"github.com/openmatch/nftx/internal/treasury"
	"github.com/openmatch/nftx/internal/validate"
)

// Notifier receives settlement notifications (webhooks etc). Optional.
type Notifier interface {
	NotifySettlement(ctx context.Context, s domain.Settlement)
}

// Deps bundles everything the orchestrator needs.
type Deps struct {
	Codec       *crypto.OrderCodec
	Verifier    *crypto.Verifier
	Validator   *validate.Validator
	Matcher     *match.Engine
	Fees        *fees.Engine
	Treasury    *treasury.Treasury
	Assets      domain.AssetTransfer
	Nonces      domain.NonceStore
	Splits      domain.FeeSplitStore
	Settlements domain.SettlementStore
	Admins      domain.CollectionAdminResolver
	Bus         domain.SignalBus // optional
	Notifier    Notifier         // optional
	Curator     common.Address   // the only account allowed to claim curator fees
	Logger      *slog.Logger
}

// Exchange drives the take and match settlement flows.
type Exchange struct {
	deps Deps
	now  func() time.Time
}

// New creates an Exchange.
func New(deps Deps) *Exchange {
	return &Exchange{deps: deps, now: time.Now}
}

// WithClock overrides the time source, for tests.
func (e *Exchange) WithClock(now func() time.Time) *Exchange {
	e.now = now
	return e
}

// Opts tunes a batch settlement call.
type Opts struct {
	// FeesInCurrency deducts fees from the sale proceeds in the settlement
	// currency (the seller nets price minus fees). When false the buyer pays
	// the fees on top and the seller nets the full clearing price.
	FeesInCurrency bool
	// UseStakeDiscount applies the seller's current stake tier to the
	// curator fee.
	UseStakeDiscount bool
	// BestEffort processes each pair independently, collecting failures
	// instead of aborting the batch on the first bad pair.
	BestEffort bool
}

// VerifyOrderSignature reports whether the order's signature matches its
// claimed signer under this deployment's signing domain.
func (e *Exchange) VerifyOrderSignature(o domain.Order) bool {
	return e.deps.Verifier.VerifyOrder(o)
}

// IsNonceValid reports whether a (signer, nonce) pair may still authorize an
// order.
func (e *Exchange) IsNonceValid(ctx context.Context, signer common.Address, nonce uint64) (bool, error) {
	return e.deps.Nonces.IsActive(ctx, signer, nonce)
}

// CancelAllOrders bulk-invalidates every order of the signer with a nonce
// below minNonce. Immediate and irrevocable.
func (e *Exchange) CancelAllOrders(ctx context.Context, signer common.Address, minNonce uint64) error {
	if err := e.deps.Nonces.CancelAll(ctx, signer, minNonce); err != nil {
		return fmt.Errorf("exchange: cancel all for %s: %w", signer.Hex(), err)
	}
	e.deps.Logger.Info("orders cancelled below floor",
		slog.String("signer", signer.Hex()),
		slog.Uint64("min_nonce", minNonce),
	)
	e.publishEvent(ctx, "cancellations", map[string]any{
		"signer":    signer.Hex(),
		"min_nonce": minNonce,
	})
	return nil
}

// CancelOrders invalidates individual nonces for the signer.
func (e *Exchange) CancelOrders(ctx context.Context, signer common.Address, nonces []uint64) error {
	for _, n := range nonces {
		if err := e.deps.Nonces.Invalidate(ctx, signer, n); err != nil {
			return fmt.Errorf("exchange: cancel nonce %d for %s: %w", n, signer.Hex(), err)
		}
	}
	return nil
}

// SetupCollectionFeeSplit creates or replaces a collection's creator-fee
// override. Restricted to the collection's admin; a failing call leaves any
// prior configuration untouched.
func (e *Exchange) SetupCollectionFeeSplit(ctx context.Context, caller, collection common.Address, shares []domain.FeeShare) error {
	admin, err := e.deps.Admins.IsCollectionAdmin(ctx, collection, caller)
	if err != nil {
		return fmt.Errorf("exchange: admin check for %s: %w", collection.Hex(), err)
	}
	if !admin {
		return fmt.Errorf("exchange: %s is not admin of %s: %w", caller.Hex(), collection.Hex(), domain.ErrUnauthorized)
	}

	split := domain.FeeSplit{Collection: collection, Setter: caller, Shares: shares}
	if split.TotalBps() > domain.MaxCreatorBps {
		return fmt.Errorf("exchange: fee split %d bps on %s: %w", split.TotalBps(), collection.Hex(), domain.ErrBpsTooHigh)
	}

	if err := e.deps.Splits.Upsert(ctx, split); err != nil {
		return fmt.Errorf("exchange: store fee split for %s: %w", collection.Hex(), err)
	}
	e.deps.Logger.Info("collection fee split configured",
		slog.String("collection", collection.Hex()),
		slog.String("setter", caller.Hex()),
		slog.Uint64("total_bps", split.TotalBps()),
	)
	return nil
}

// ClaimCreatorFees pays out the caller's accrued creator royalties in one
// currency.
func (e *Exchange) ClaimCreatorFees(ctx context.Context, caller, currency common.Address) (*big.Int, error) {
	return e.deps.Treasury.Claim(ctx, domain.FeeBucketCreator, caller, currency)
}

// ClaimCuratorFees pays out the protocol fee balance. Only the configured
// curator account may call it.
func (e *Exchange) ClaimCuratorFees(ctx context.Context, caller, currency common.Address) (*big.Int, error) {
	if caller != e.deps.Curator {
		return nil, fmt.Errorf("exchange: %s may not claim curator fees: %w", caller.Hex(), domain.ErrUnauthorized)
	}
	return e.deps.Treasury.Claim(ctx, domain.FeeBucketCurator, e.deps.Curator, currency)
}
