package fees

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openmatch/nftx/internal/domain"
)

// Engine computes the full fee breakdown of a settlement. The curator fee
// and effective-bps discount table are governance-mutable at runtime; the
// creator fee is resolved per collection through the ordered source list,
// short-circuiting on the first source with an opinion.
type Engine struct {
	sources []domain.RoyaltySource
	stake   domain.StakeTierProvider
	logger  *slog.Logger

	mu           sync.RWMutex
	curatorBps   uint64
	effectiveBps map[domain.StakeLevel]uint64
}

// NewEngine creates a fee engine with the default curator fee and the
// default per-tier discount table. Governance mutates both at runtime.
func NewEngine(stake domain.StakeTierProvider, sources []domain.RoyaltySource, logger *slog.Logger) *Engine {
	return &Engine{
		sources:      sources,
		stake:        stake,
		logger:       logger,
		curatorBps:   domain.DefaultCuratorFeeBps,
		effectiveBps: domain.DefaultEffectiveFeeBps(),
	}
}

// UpdateCuratorFeeBps replaces the base protocol fee.
func (e *Engine) UpdateCuratorFeeBps(bps uint64) error {
	if bps > domain.BpsPrecision {
		return fmt.Errorf("fees: curator fee %d: %w", bps, domain.ErrBpsTooHigh)
	}
	e.mu.Lock()
	e.curatorBps = bps
	e.mu.Unlock()
	return nil
}

// UpdateEffectiveFeeBps sets the fee multiplier for one stake tier. 10000
// means no discount; lower values scale the curator fee down.
func (e *Engine) UpdateEffectiveFeeBps(level domain.StakeLevel, bps uint64) error {
	if bps > domain.BpsPrecision {
		return fmt.Errorf("fees: effective bps %d for tier %d: %w", bps, level, domain.ErrBpsTooHigh)
	}
	e.mu.Lock()
	e.effectiveBps[level] = bps
	e.mu.Unlock()
	return nil
}

// CuratorFeeBps returns the current base protocol fee.
func (e *Engine) CuratorFeeBps() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.curatorBps
}

// Compute produces the fee breakdown for a sale of items at salePrice.
// discountFor is the party whose stake tier reduces the curator fee (read at
// settlement time, never cached from signing time); useStakeDiscount false
// skips the tier lookup entirely.
func (e *Engine) Compute(ctx context.Context, items []domain.OrderItem, salePrice *big.Int, discountFor common.Address, useStakeDiscount bool) (domain.FeeBreakdown, error) {
	curator := mulBps(salePrice, e.CuratorFeeBps())

	if useStakeDiscount {
		level, err := e.stake.GetUserStakeLevel(ctx, discountFor)
		if err != nil {
			return domain.FeeBreakdown{}, fmt.Errorf("fees: stake level of %s: %w", discountFor.Hex(), err)
		}
		e.mu.RLock()
		eff, ok := e.effectiveBps[level]
		e.mu.RUnlock()
		if ok {
			curator = mulBps(curator, eff)
		}
	}

	creator, err := e.creatorFees(ctx, items, salePrice)
	if err != nil {
		return domain.FeeBreakdown{}, err
	}

	totalCreator := new(big.Int)
	for _, a := range creator {
		totalCreator.Add(totalCreator, a.Amount)
	}

	net := new(big.Int).Sub(salePrice, curator)
	net.Sub(net, totalCreator)
	if net.Sign() < 0 {
		return domain.FeeBreakdown{}, fmt.Errorf("fees: fees %s exceed sale price %s: %w",
			new(big.Int).Add(curator, totalCreator), salePrice, domain.ErrSlippageExceeded)
	}

	return domain.FeeBreakdown{
		SalePrice:   new(big.Int).Set(salePrice),
		CuratorFee:  curator,
		CreatorFees: creator,
		NetToSeller: net,
	}, nil
}

// creatorFees resolves royalties per collection on its pro-rata share of the
// sale. The floor-division remainder of salePrice/numCollections is added to
// the last collection's share, so the shares always reconcile to salePrice.
func (e *Engine) creatorFees(ctx context.Context, items []domain.OrderItem, salePrice *big.Int) ([]domain.FeeAllocation, error) {
	if len(items) == 0 {
		return nil, nil
	}

	n := big.NewInt(int64(len(items)))
	share := new(big.Int).Div(salePrice, n)
	rem := new(big.Int).Mod(salePrice, n)

	var allocs []domain.FeeAllocation
	for i, it := range items {
		collShare := share
		if i == len(items)-1 && rem.Sign() > 0 {
			collShare = new(big.Int).Add(share, rem)
		}

		// The representative token id for royalty probes (ERC-2981 takes a
		// single id; in practice royalties are collection-wide).
		var tokenID *big.Int
		if len(it.Tokens) > 0 {
			tokenID = it.Tokens[0].TokenID
		} else {
			tokenID = new(big.Int)
		}

		collAllocs, err := e.resolveCollection(ctx, it.Collection, tokenID, collShare)
		if err != nil {
			return nil, err
		}
		allocs = append(allocs, collAllocs...)
	}
	return allocs, nil
}

// resolveCollection walks the source list in priority order and returns the
// first non-empty result. A source whose total exceeds the collection's
// share of the sale is skipped: a misbehaving external engine must not be
// able to drain the proceeds.
func (e *Engine) resolveCollection(ctx context.Context, collection common.Address, tokenID, share *big.Int) ([]domain.FeeAllocation, error) {
	for _, src := range e.sources {
		allocs, err := src.Resolve(ctx, collection, tokenID, share)
		if err != nil {
			e.logger.Warn("royalty source failed, trying next",
				slog.String("source", src.Name()),
				slog.String("collection", collection.Hex()),
				slog.String("error", err.Error()),
			)
			continue
		}
		if len(allocs) == 0 {
			continue
		}

		total := new(big.Int)
		for _, a := range allocs {
			if a.Amount == nil || a.Amount.Sign() < 0 {
				total = nil
				break
			}
			total.Add(total, a.Amount)
		}
		if total == nil || total.Cmp(share) > 0 {
			e.logger.Warn("royalty source over-charged, skipping",
				slog.String("source", src.Name()),
				slog.String("collection", collection.Hex()),
			)
			continue
		}

		for i := range allocs {
			allocs[i].Collection = collection
		}
		return allocs, nil
	}
	// No source had an opinion: zero creator fee, not an error.
	return nil, nil
}
