package chain

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openmatch/nftx/internal/domain"
)

// OwnerAdminResolver implements domain.CollectionAdminResolver by reading the
// collection's Ownable owner() view: the contract owner is the only account
// allowed to configure fee splits.
type OwnerAdminResolver struct {
	caller *Caller
}

// NewOwnerAdminResolver creates the owner-based admin resolver.
func NewOwnerAdminResolver(caller *Caller) *OwnerAdminResolver {
	return &OwnerAdminResolver{caller: caller}
}

// IsCollectionAdmin reports whether user is the collection's owner.
// Collections without an owner() view have no admin.
func (r *OwnerAdminResolver) IsCollectionAdmin(ctx context.Context, collection, user common.Address) (bool, error) {
	values, err := r.caller.call(ctx, collection, erc721ABI, "owner")
	if err != nil {
		return false, nil
	}
	owner, ok := values[0].(common.Address)
	if !ok {
		return false, nil
	}
	return owner == user, nil
}

var _ domain.CollectionAdminResolver = (*OwnerAdminResolver)(nil)
