package handler

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openmatch/nftx/internal/domain"
)

// The wire shapes mirror the canonical order encoding: addresses as hex
// strings, uint256 values as decimal strings.

type tokenWire struct {
	TokenID   string `json:"token_id"`
	NumTokens string `json:"num_tokens"`
}

type itemWire struct {
	Collection string      `json:"collection"`
	Tokens     []tokenWire `json:"tokens,omitempty"`
}

type orderWire struct {
	ID             string     `json:"id,omitempty"`
	ChainID        uint64     `json:"chain_id"`
	IsSellOrder    bool       `json:"is_sell_order"`
	Signer         string     `json:"signer"`
	NumItems       uint64     `json:"num_items"`
	StartPrice     string     `json:"start_price"`
	EndPrice       string     `json:"end_price"`
	StartTime      uint64     `json:"start_time"`
	EndTime        uint64     `json:"end_time"`
	MinBpsToSeller uint64     `json:"min_bps_to_seller"`
	Nonce          uint64     `json:"nonce"`
	NFTs           []itemWire `json:"nfts,omitempty"`
	Complication   string     `json:"complication"`
	Currency       string     `json:"currency"`
	Buyer          string     `json:"buyer,omitempty"`
	Sig            string     `json:"sig,omitempty"`
}

type settlementWire struct {
	ID          string      `json:"id"`
	Kind        string      `json:"kind"`
	SellOrderID string      `json:"sell_order_id"`
	BuyOrderID  string      `json:"buy_order_id"`
	Seller      string      `json:"seller"`
	Buyer       string      `json:"buyer"`
	Items       []itemWire  `json:"items"`
	Price       string      `json:"price"`
	Currency    string      `json:"currency"`
	CuratorFee  string      `json:"curator_fee"`
	CreatorFees []allocWire `json:"creator_fees"`
	NetToSeller string      `json:"net_to_seller"`
	ExecutedAt  time.Time   `json:"executed_at"`
}

type allocWire struct {
	Recipient  string `json:"recipient"`
	Collection string `json:"collection"`
	Amount     string `json:"amount"`
}

func parseBig(field, v string) (*big.Int, error) {
	if v == "" {
		return new(big.Int), nil
	}
	n, ok := new(big.Int).SetString(v, 10)
	if !ok || n.Sign() < 0 {
		return nil, fmt.Errorf("%s: invalid amount %q", field, v)
	}
	return n, nil
}

func itemsFromWire(rows []itemWire) ([]domain.OrderItem, error) {
	items := make([]domain.OrderItem, 0, len(rows))
	for _, r := range rows {
		it := domain.OrderItem{Collection: common.HexToAddress(r.Collection)}
		for _, tok := range r.Tokens {
			id, err := parseBig("token_id", tok.TokenID)
			if err != nil {
				return nil, err
			}
			num, err := parseBig("num_tokens", tok.NumTokens)
			if err != nil {
				return nil, err
			}
			it.Tokens = append(it.Tokens, domain.TokenInfo{TokenID: id, NumTokens: num})
		}
		items = append(items, it)
	}
	return items, nil
}

func itemsToWire(items []domain.OrderItem) []itemWire {
	rows := make([]itemWire, 0, len(items))
	for _, it := range items {
		r := itemWire{Collection: it.Collection.Hex()}
		for _, tok := range it.Tokens {
			r.Tokens = append(r.Tokens, tokenWire{
				TokenID:   tok.TokenID.String(),
				NumTokens: tok.NumTokens.String(),
			})
		}
		rows = append(rows, r)
	}
	return rows
}

func orderFromWire(o orderWire) (domain.Order, error) {
	startPrice, err := parseBig("start_price", o.StartPrice)
	if err != nil {
		return domain.Order{}, err
	}
	endPrice, err := parseBig("end_price", o.EndPrice)
	if err != nil {
		return domain.Order{}, err
	}
	items, err := itemsFromWire(o.NFTs)
	if err != nil {
		return domain.Order{}, err
	}

	var sig []byte
	if o.Sig != "" {
		sig, err = hex.DecodeString(strings.TrimPrefix(o.Sig, "0x"))
		if err != nil {
			return domain.Order{}, fmt.Errorf("sig: %w", err)
		}
	}

	order := domain.Order{
		ChainID:        o.ChainID,
		IsSellOrder:    o.IsSellOrder,
		Signer:         common.HexToAddress(o.Signer),
		NumItems:       o.NumItems,
		StartPrice:     startPrice,
		EndPrice:       endPrice,
		StartTime:      o.StartTime,
		EndTime:        o.EndTime,
		MinBpsToSeller: o.MinBpsToSeller,
		Nonce:          o.Nonce,
		NFTs:           items,
		ExecParams: domain.ExecParams{
			Complication: common.HexToAddress(o.Complication),
			Currency:     common.HexToAddress(o.Currency),
		},
		Sig: sig,
	}
	if o.Buyer != "" {
		order.ExtraParams.Buyer = common.HexToAddress(o.Buyer)
	}
	order.ID = domain.DeriveOrderID(order.Signer, order.Nonce, order.ChainID)
	return order, nil
}

func ordersFromWire(rows []orderWire) ([]domain.Order, error) {
	orders := make([]domain.Order, 0, len(rows))
	for i, r := range rows {
		o, err := orderFromWire(r)
		if err != nil {
			return nil, fmt.Errorf("order %d: %w", i, err)
		}
		orders = append(orders, o)
	}
	return orders, nil
}

func settlementToWire(s domain.Settlement) settlementWire {
	allocs := make([]allocWire, 0, len(s.CreatorFees))
	for _, a := range s.CreatorFees {
		allocs = append(allocs, allocWire{
			Recipient:  a.Recipient.Hex(),
			Collection: a.Collection.Hex(),
			Amount:     a.Amount.String(),
		})
	}
	return settlementWire{
		ID:          s.ID,
		Kind:        string(s.Kind),
		SellOrderID: s.SellOrderID,
		BuyOrderID:  s.BuyOrderID,
		Seller:      s.Seller.Hex(),
		Buyer:       s.Buyer.Hex(),
		Items:       itemsToWire(s.Items),
		Price:       s.Price.String(),
		Currency:    s.Currency.Hex(),
		CuratorFee:  s.CuratorFee.String(),
		CreatorFees: allocs,
		NetToSeller: s.NetToSeller.String(),
		ExecutedAt:  s.ExecutedAt,
	}
}

func settlementsToWire(list []domain.Settlement) []settlementWire {
	out := make([]settlementWire, 0, len(list))
	for _, s := range list {
		out = append(out, settlementToWire(s))
	}
	return out
}
