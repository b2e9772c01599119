package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// MaxCreatorBps caps the total creator fee share a collection admin may
// configure.
const MaxCreatorBps = 10000

// DefaultCuratorFeeBps is the protocol fee charged on every sale before any
// stake discount is applied.
const DefaultCuratorFeeBps = 250

// StakeLevel is a discount tier exposed by the external staking system.
// Higher levels earn larger curator-fee discounts.
type StakeLevel int

const (
	StakeLevelNone     StakeLevel = 0
	StakeLevelBronze   StakeLevel = 1
	StakeLevelSilver   StakeLevel = 2
	StakeLevelGold     StakeLevel = 3
	StakeLevelPlatinum StakeLevel = 4
)

// FeeShare is one recipient's slice of a collection's creator fee.
type FeeShare struct {
	Recipient common.Address
	Bps       uint64
}

// FeeSplit is the admin-configured creator-fee override for a collection.
// An empty Shares list means "no override": the fee engine falls through to
// the next royalty source.
type FeeSplit struct {
	Collection common.Address
	Setter     common.Address
	Shares     []FeeShare
}

// TotalBps returns the summed share of all recipients.
func (fs FeeSplit) TotalBps() uint64 {
	var total uint64
	for _, s := range fs.Shares {
		total += s.Bps
	}
	return total
}

// DefaultEffectiveFeeBps returns the curator-fee multiplier table applied
// per stake tier until governance overrides it. Unlisted tiers pay the
// full fee.
func DefaultEffectiveFeeBps() map[StakeLevel]uint64 {
	return map[StakeLevel]uint64{
		StakeLevelBronze:   9000,
		StakeLevelSilver:   8000,
		StakeLevelGold:     7000,
		StakeLevelPlatinum: 6000,
	}
}

// FeeAllocation is one concrete creator-fee payout produced for a settlement.
type FeeAllocation struct {
	Recipient  common.Address
	Collection common.Address
	Amount     *big.Int
}

// FeeBreakdown is the full fee computation result for one settlement.
// CuratorFee + sum(CreatorFees) + NetToSeller equals the sale price exactly.
type FeeBreakdown struct {
	SalePrice   *big.Int
	CuratorFee  *big.Int
	CreatorFees []FeeAllocation
	NetToSeller *big.Int
}

// TotalCreatorFee sums the creator allocations.
func (fb FeeBreakdown) TotalCreatorFee() *big.Int {
	total := new(big.Int)
	for _, a := range fb.CreatorFees {
		total.Add(total, a.Amount)
	}
	return total
}

// FeeBucket distinguishes the two treasury escrow pools.
type FeeBucket string

const (
	FeeBucketCurator FeeBucket = "curator"
	FeeBucketCreator FeeBucket = "creator"
)
