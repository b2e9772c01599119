package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openmatch/nftx/internal/domain"
)

// Staker implements domain.StakeTierProvider against the staking contract's
// getUserStakeLevel view.
type Staker struct {
	caller   *Caller
	contract common.Address
}

// NewStaker creates the on-chain stake-tier provider.
func NewStaker(caller *Caller, contract common.Address) *Staker {
	return &Staker{caller: caller, contract: contract}
}

// GetUserStakeLevel returns the user's current tier.
func (s *Staker) GetUserStakeLevel(ctx context.Context, user common.Address) (domain.StakeLevel, error) {
	values, err := s.caller.call(ctx, s.contract, stakerABI, "getUserStakeLevel", user)
	if err != nil {
		return 0, err
	}
	level, ok := values[0].(uint8)
	if !ok {
		// abi.Unpack widens some integer outputs.
		if bigLevel, isBig := values[0].(*big.Int); isBig {
			return domain.StakeLevel(bigLevel.Uint64()), nil
		}
		return 0, fmt.Errorf("chain: unexpected stake level result %T", values[0])
	}
	return domain.StakeLevel(level), nil
}

var _ domain.StakeTierProvider = (*Staker)(nil)
