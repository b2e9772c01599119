package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// SettlementKind distinguishes the two settlement flows.
type SettlementKind string

const (
	SettlementKindTake  SettlementKind = "take"  // taker accepts a resting maker order
	SettlementKindMatch SettlementKind = "match" // relayer pairs two opposite orders
)

// Settlement is the durable record of one executed trade.
type Settlement struct {
	ID          string
	Kind        SettlementKind
	SellOrderID string
	BuyOrderID  string
	Seller      common.Address
	Buyer       common.Address
	Items       []OrderItem
	Price       *big.Int
	Currency    common.Address
	CuratorFee  *big.Int
	CreatorFees []FeeAllocation
	NetToSeller *big.Int
	ExecutedAt  time.Time
}

// MatchResult is the finalized tuple the matching engine hands to settlement:
// the concrete item set, the clearing price and the settlement currency.
type MatchResult struct {
	Items    []OrderItem
	Price    *big.Int
	Currency common.Address
}

// NumTokens returns the total token units across the matched item set.
func (m MatchResult) NumTokens() uint64 {
	var n uint64
	for _, it := range m.Items {
		n += it.NumTokens()
	}
	return n
}

// BatchFailure reports one failed pair from a best-effort batch call.
type BatchFailure struct {
	Index int
	Err   error
}
