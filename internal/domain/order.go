// Package domain defines the core order, fee and settlement types shared by
// every layer of the exchange, plus the store/cache/collaborator interfaces
// they are persisted and resolved through.
package domain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// BpsPrecision is the basis-point denominator used by every fee and price
// computation in the engine. 10000 bps = 100%.
const BpsPrecision = 10000

// TokenInfo identifies a quantity of a single token within a collection.
type TokenInfo struct {
	TokenID   *big.Int
	NumTokens *big.Int
}

// OrderItem groups the tokens an order references within one collection.
// An empty Tokens slice is a wildcard: any token(s) from the collection,
// resolved at settlement time against the counter-order.
type OrderItem struct {
	Collection common.Address
	Tokens     []TokenInfo
}

// NumTokens returns the total token units this item covers. A wildcard item
// reports zero; the constructed order supplies the concrete count.
func (it OrderItem) NumTokens() uint64 {
	var n uint64
	for _, t := range it.Tokens {
		n += t.NumTokens.Uint64()
	}
	return n
}

// ExecParams selects the matching-rule variant and settlement currency of an
// order. Both addresses must be allow-listed for the order to validate.
type ExecParams struct {
	Complication common.Address
	Currency     common.Address
}

// ExtraParams carries optional order semantics. A non-zero Buyer makes the
// order private: only that address may take it.
type ExtraParams struct {
	Buyer common.Address
}

// Order is a signed, immutable orderbook order. The signature covers every
// field except Sig itself; any mutation invalidates it.
type Order struct {
	ID             string
	ChainID        uint64
	IsSellOrder    bool
	Signer         common.Address
	NumItems       uint64
	StartPrice     *big.Int
	EndPrice       *big.Int
	StartTime      uint64
	EndTime        uint64
	MinBpsToSeller uint64
	Nonce          uint64
	NFTs           []OrderItem
	ExecParams     ExecParams
	ExtraParams    ExtraParams
	Sig            []byte // abi-encoded (r, s, v)
}

// Constraints returns the packed numeric tuple that is hashed into the order
// digest: [numItems, startPrice, endPrice, startTime, endTime, minBpsToSeller,
// nonce]. Ordering is part of the signing contract and must not change.
func (o Order) Constraints() []*big.Int {
	return []*big.Int{
		new(big.Int).SetUint64(o.NumItems),
		o.StartPrice,
		o.EndPrice,
		new(big.Int).SetUint64(o.StartTime),
		new(big.Int).SetUint64(o.EndTime),
		new(big.Int).SetUint64(o.MinBpsToSeller),
		new(big.Int).SetUint64(o.Nonce),
	}
}

// NumTokensListed returns the total explicit token units across all items.
// Wildcard items contribute nothing.
func (o Order) NumTokensListed() uint64 {
	var n uint64
	for _, it := range o.NFTs {
		n += it.NumTokens()
	}
	return n
}

// HasWildcard reports whether any item of the order leaves its token set
// unspecified.
func (o Order) HasWildcard() bool {
	if len(o.NFTs) == 0 {
		return true
	}
	for _, it := range o.NFTs {
		if len(it.Tokens) == 0 {
			return true
		}
	}
	return false
}

// IsPrivate reports whether the order is restricted to a designated taker.
func (o Order) IsPrivate() bool {
	return o.ExtraParams.Buyer != (common.Address{})
}

// DeriveOrderID builds the informational order identifier from the signer,
// nonce and chain id. It is not security-critical and never hashed.
func DeriveOrderID(signer common.Address, nonce, chainID uint64) string {
	return fmt.Sprintf("%s:%d:%d", signer.Hex(), nonce, chainID)
}
