package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openmatch/nftx/internal/domain"
)

// Assets implements domain.AssetTransfer by sending ERC-20 and ERC-721
// transferFrom calls from the relayer key. Holders grant the relayer an
// operator approval; a missing approval simply surfaces as a reverted
// transfer.
type Assets struct {
	caller *Caller
}

// NewAssets creates the on-chain asset mover.
func NewAssets(caller *Caller) *Assets {
	return &Assets{caller: caller}
}

// TransferFungible moves amount of an ERC-20 from one account to another.
func (a *Assets) TransferFungible(ctx context.Context, currency, from, to common.Address, amount *big.Int) error {
	if err := a.caller.transact(ctx, currency, erc20ABI, "transferFrom", from, to, amount); err != nil {
		return fmt.Errorf("chain: erc20 transfer %s %s->%s: %w", amount, from.Hex(), to.Hex(), err)
	}
	return nil
}

// TransferNonFungible moves one ERC-721 token between accounts.
func (a *Assets) TransferNonFungible(ctx context.Context, collection common.Address, tokenID *big.Int, from, to common.Address) error {
	if err := a.caller.transact(ctx, collection, erc721ABI, "transferFrom", from, to, tokenID); err != nil {
		return fmt.Errorf("chain: erc721 transfer %s/%s %s->%s: %w", collection.Hex(), tokenID, from.Hex(), to.Hex(), err)
	}
	return nil
}

// IsApprovedForAll reports whether operator may move owner's tokens in the
// collection.
func (a *Assets) IsApprovedForAll(ctx context.Context, collection, owner, operator common.Address) (bool, error) {
	values, err := a.caller.call(ctx, collection, erc721ABI, "isApprovedForAll", owner, operator)
	if err != nil {
		return false, err
	}
	approved, ok := values[0].(bool)
	if !ok {
		return false, fmt.Errorf("chain: unexpected isApprovedForAll result %T", values[0])
	}
	return approved, nil
}

// OwnerOf returns the current owner of a token.
func (a *Assets) OwnerOf(ctx context.Context, collection common.Address, tokenID *big.Int) (common.Address, error) {
	values, err := a.caller.call(ctx, collection, erc721ABI, "ownerOf", tokenID)
	if err != nil {
		return common.Address{}, err
	}
	owner, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("chain: unexpected ownerOf result %T", values[0])
	}
	return owner, nil
}

var _ domain.AssetTransfer = (*Assets)(nil)
