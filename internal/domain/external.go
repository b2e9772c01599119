package domain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// AssetTransfer moves fungible currency and non-fungible tokens between
// accounts. All movement semantics (balances, approvals, ownership) live
// behind this interface; failures surface as settlement aborts.
type AssetTransfer interface {
	TransferFungible(ctx context.Context, currency, from, to common.Address, amount *big.Int) error
	TransferNonFungible(ctx context.Context, collection common.Address, tokenID *big.Int, from, to common.Address) error
	IsApprovedForAll(ctx context.Context, collection, owner, operator common.Address) (bool, error)
	OwnerOf(ctx context.Context, collection common.Address, tokenID *big.Int) (common.Address, error)
}

// AllowListRegistry gates which currencies and complications orders may use.
type AllowListRegistry interface {
	IsCurrencyAllowed(ctx context.Context, currency common.Address) (bool, error)
	IsComplicationAllowed(ctx context.Context, complication common.Address) (bool, error)
}

// StakeTierProvider exposes a user's staking discount tier. Read at
// settlement time, never at order-signing time.
type StakeTierProvider interface {
	GetUserStakeLevel(ctx context.Context, user common.Address) (StakeLevel, error)
}

// CollectionAdminResolver answers whether an account may configure a
// collection's fee split (typically the collection owner/admin).
type CollectionAdminResolver interface {
	IsCollectionAdmin(ctx context.Context, collection, account common.Address) (bool, error)
}

// RoyaltySource resolves creator-fee allocations for a sale. Sources are
// consulted in a fixed priority order; an empty result (with nil error)
// means "no opinion, try the next source". Resolution failures are treated
// the same as empty results so a broken external engine cannot block
// settlement.
type RoyaltySource interface {
	Name() string
	Resolve(ctx context.Context, collection common.Address, tokenID *big.Int, salePrice *big.Int) ([]FeeAllocation, error)
}
