// Package fees computes the curator (protocol) fee with stake-based
// discounts and resolves creator royalties through an ordered list of
// sources.
package fees

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openmatch/nftx/internal/domain"
)

// FeeSplitSource resolves creator fees from the admin-configured per-
// collection override table. It is the highest-priority royalty source.
type FeeSplitSource struct {
	splits domain.FeeSplitStore
}

// NewFeeSplitSource creates a FeeSplitSource over the given store.
func NewFeeSplitSource(splits domain.FeeSplitStore) *FeeSplitSource {
	return &FeeSplitSource{splits: splits}
}

// Name identifies the source in logs.
func (s *FeeSplitSource) Name() string { return "fee_split" }

// Resolve returns the configured recipients' shares of salePrice. The total
// fee is salePrice * sum(bps) / 10000; each recipient receives their floor-
// divided slice and the rounding remainder goes to the last recipient so the
// slices always sum to the total.
func (s *FeeSplitSource) Resolve(ctx context.Context, collection common.Address, _ *big.Int, salePrice *big.Int) ([]domain.FeeAllocation, error) {
	split, err := s.splits.Get(ctx, collection)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("fees: fee split lookup %s: %w", collection.Hex(), err)
	}
	if len(split.Shares) == 0 {
		return nil, nil
	}

	totalBps := split.TotalBps()
	total := mulBps(salePrice, totalBps)

	allocs := make([]domain.FeeAllocation, 0, len(split.Shares))
	distributed := new(big.Int)
	for _, share := range split.Shares {
		amount := new(big.Int).Mul(total, new(big.Int).SetUint64(share.Bps))
		amount.Div(amount, new(big.Int).SetUint64(totalBps))
		distributed.Add(distributed, amount)
		allocs = append(allocs, domain.FeeAllocation{
			Recipient:  share.Recipient,
			Collection: collection,
			Amount:     amount,
		})
	}

	// Floor-division remainder goes to the last recipient.
	if rem := new(big.Int).Sub(total, distributed); rem.Sign() > 0 {
		last := &allocs[len(allocs)-1]
		last.Amount = new(big.Int).Add(last.Amount, rem)
	}
	return allocs, nil
}

// mulBps returns amount * bps / 10000, floor-divided.
func mulBps(amount *big.Int, bps uint64) *big.Int {
	out := new(big.Int).Mul(amount, new(big.Int).SetUint64(bps))
	return out.Div(out, big.NewInt(domain.BpsPrecision))
}
