package chain

import (
	"context"
	"errors"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openmatch/nftx/internal/domain"
)

// ERC2981Source resolves creator fees by probing the collection itself for
// the ERC-2981 royaltyInfo view. Collections that do not implement it revert,
// which the fee engine treats as "no opinion".
type ERC2981Source struct {
	caller *Caller
}

// NewERC2981Source creates the on-collection royalty probe.
func NewERC2981Source(caller *Caller) *ERC2981Source {
	return &ERC2981Source{caller: caller}
}

// Name identifies the source in fee-engine logs.
func (s *ERC2981Source) Name() string { return "erc2981" }

// Resolve asks the collection for its royalty at salePrice. A revert or a
// zero receiver yields no allocations.
func (s *ERC2981Source) Resolve(ctx context.Context, collection common.Address, tokenID, salePrice *big.Int) ([]domain.FeeAllocation, error) {
	values, err := s.caller.call(ctx, collection, erc2981ABI, "royaltyInfo", tokenID, salePrice)
	if err != nil {
		// Non-2981 collections revert here; that is not a failure.
		return nil, nil
	}
	receiver, ok1 := values[0].(common.Address)
	amount, ok2 := values[1].(*big.Int)
	if !ok1 || !ok2 || receiver == (common.Address{}) || amount.Sign() <= 0 {
		return nil, nil
	}
	return []domain.FeeAllocation{{
		Recipient:  receiver,
		Collection: collection,
		Amount:     amount,
	}}, nil
}

// EngineSource resolves creator fees through an external royalty-engine
// contract that aggregates the common registry standards. Resolutions are
// cached per (collection, token) when a cache is configured.
type EngineSource struct {
	caller *Caller
	engine common.Address
	cache  domain.RoyaltyCache
	logger *slog.Logger
}

// NewEngineSource creates the royalty-engine source. cache may be nil.
func NewEngineSource(caller *Caller, engine common.Address, cache domain.RoyaltyCache, logger *slog.Logger) *EngineSource {
	return &EngineSource{caller: caller, engine: engine, cache: cache, logger: logger}
}

// Name identifies the source in fee-engine logs.
func (s *EngineSource) Name() string { return "royalty-engine" }

// Resolve calls getRoyaltyView, pairing recipients with amounts. Cached
// entries are returned as-is; amounts were resolved at this sale price's
// lookup so the cache key includes the token, not the price, and short TTLs
// bound the drift.
func (s *EngineSource) Resolve(ctx context.Context, collection common.Address, tokenID, salePrice *big.Int) ([]domain.FeeAllocation, error) {
	if s.cache != nil {
		allocs, err := s.cache.Get(ctx, collection, tokenID.String())
		if err == nil {
			return allocs, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("royalty cache read failed",
				slog.String("collection", collection.Hex()),
				slog.String("error", err.Error()),
			)
		}
	}

	values, err := s.caller.call(ctx, s.engine, royaltyEngineABI, "getRoyaltyView", collection, tokenID, salePrice)
	if err != nil {
		return nil, err
	}
	recipients, ok1 := values[0].([]common.Address)
	amounts, ok2 := values[1].([]*big.Int)
	if !ok1 || !ok2 || len(recipients) != len(amounts) {
		return nil, nil
	}

	allocs := make([]domain.FeeAllocation, 0, len(recipients))
	for i, r := range recipients {
		if amounts[i] == nil || amounts[i].Sign() <= 0 {
			continue
		}
		allocs = append(allocs, domain.FeeAllocation{
			Recipient:  r,
			Collection: collection,
			Amount:     amounts[i],
		})
	}

	if s.cache != nil && len(allocs) > 0 {
		if err := s.cache.Set(ctx, collection, tokenID.String(), allocs); err != nil {
			s.logger.Warn("royalty cache write failed",
				slog.String("collection", collection.Hex()),
				slog.String("error", err.Error()),
			)
		}
	}
	return allocs, nil
}

var (
	_ domain.RoyaltySource = (*ERC2981Source)(nil)
	_ domain.RoyaltySource = (*EngineSource)(nil)
)
