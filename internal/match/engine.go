// Package match decides whether two opposite orders describe a mutually
// satisfiable trade and materializes the concrete item set when either side
// used wildcard items.
package match

import (
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openmatch/nftx/internal/domain"
	"github.com/openmatch/nftx/internal/pricing"
)

// Engine is stateless; all inputs arrive per call and no partial effects are
// ever retained on failure.
type Engine struct {
	logger *slog.Logger
}

// NewEngine creates a matching engine.
func NewEngine(logger *slog.Logger) *Engine {
	return &Engine{logger: logger}
}

// Take matches a resting maker order against an explicit taker order. The
// taker fully enumerates the items it wants, so no constructed order is
// involved, and the taker's own current price is the clearing price.
func (e *Engine) Take(maker, taker domain.Order, nowUnix uint64) (domain.MatchResult, error) {
	if maker.IsSellOrder == taker.IsSellOrder {
		return domain.MatchResult{}, fmt.Errorf("match: maker and taker on the same side: %w", domain.ErrInvalidOrder)
	}
	if err := sameExecParams(maker, taker); err != nil {
		return domain.MatchResult{}, err
	}
	if err := checkPrivate(maker, taker.Signer); err != nil {
		return domain.MatchResult{}, err
	}

	makerPrice := pricing.PriceAt(maker, nowUnix)
	takerPrice := pricing.PriceAt(taker, nowUnix)

	sellPrice, buyPrice := makerPrice, takerPrice
	if !maker.IsSellOrder {
		sellPrice, buyPrice = takerPrice, makerPrice
	}
	if buyPrice.Cmp(sellPrice) < 0 {
		return domain.MatchResult{}, fmt.Errorf("match: buy %s below sell %s: %w",
			buyPrice, sellPrice, domain.ErrPriceNoOverlap)
	}

	items := taker.NFTs
	if err := requireExplicit(items); err != nil {
		return domain.MatchResult{}, err
	}
	if err := checkItemsAgainst(maker, items); err != nil {
		return domain.MatchResult{}, err
	}

	units := countUnits(items)
	if err := checkCount(maker, units); err != nil {
		return domain.MatchResult{}, err
	}
	if err := checkCount(taker, units); err != nil {
		return domain.MatchResult{}, err
	}

	// Take flow clears at the taker's explicit order price.
	return domain.MatchResult{
		Items:    items,
		Price:    takerPrice,
		Currency: maker.ExecParams.Currency,
	}, nil
}

// Match pairs a sell order with a buy order, using the relayer-supplied
// constructed order to pin down concrete items wherever either side used
// wildcards. The clearing price is the seller's current (resting ask) price.
func (e *Engine) Match(sell, buy, constructed domain.Order, nowUnix uint64) (domain.MatchResult, error) {
	if !sell.IsSellOrder || buy.IsSellOrder {
		return domain.MatchResult{}, fmt.Errorf("match: orders on wrong sides: %w", domain.ErrInvalidOrder)
	}
	if err := sameExecParams(sell, buy); err != nil {
		return domain.MatchResult{}, err
	}
	if err := sameExecParams(sell, constructed); err != nil {
		return domain.MatchResult{}, err
	}
	if err := checkPrivate(sell, buy.Signer); err != nil {
		return domain.MatchResult{}, err
	}
	if err := checkPrivate(buy, sell.Signer); err != nil {
		return domain.MatchResult{}, err
	}

	sellPrice := pricing.PriceAt(sell, nowUnix)
	buyPrice := pricing.PriceAt(buy, nowUnix)
	if buyPrice.Cmp(sellPrice) < 0 {
		return domain.MatchResult{}, fmt.Errorf("match: buy %s below sell %s: %w",
			buyPrice, sellPrice, domain.ErrPriceNoOverlap)
	}

	items := constructed.NFTs
	if err := requireExplicit(items); err != nil {
		return domain.MatchResult{}, err
	}
	if err := checkItemsAgainst(sell, items); err != nil {
		return domain.MatchResult{}, err
	}
	if err := checkItemsAgainst(buy, items); err != nil {
		return domain.MatchResult{}, err
	}

	units := countUnits(items)
	if err := checkCount(sell, units); err != nil {
		return domain.MatchResult{}, err
	}
	if err := checkCount(buy, units); err != nil {
		return domain.MatchResult{}, err
	}

	e.logger.Debug("orders matched",
		slog.String("sell", sell.ID),
		slog.String("buy", buy.ID),
		slog.String("price", sellPrice.String()),
		slog.Uint64("units", units),
	)

	return domain.MatchResult{
		Items:    items,
		Price:    sellPrice,
		Currency: sell.ExecParams.Currency,
	}, nil
}

// SlippageOK reports whether the net amount reaching the seller clears the
// order's minBpsToSeller guard: net >= price * minBps / 10000.
func SlippageOK(net, price *big.Int, minBps uint64) bool {
	if minBps == 0 {
		return true
	}
	floor := new(big.Int).Mul(price, new(big.Int).SetUint64(minBps))
	floor.Div(floor, big.NewInt(domain.BpsPrecision))
	return net.Cmp(floor) >= 0
}

func sameExecParams(a, b domain.Order) error {
	if a.ExecParams != b.ExecParams {
		return fmt.Errorf("match: exec params differ (%s/%s vs %s/%s): %w",
			a.ExecParams.Complication.Hex(), a.ExecParams.Currency.Hex(),
			b.ExecParams.Complication.Hex(), b.ExecParams.Currency.Hex(),
			domain.ErrInvalidOrder)
	}
	return nil
}

// checkPrivate enforces a designated-counterparty restriction when present.
func checkPrivate(o domain.Order, counterparty common.Address) error {
	if o.IsPrivate() && o.ExtraParams.Buyer != counterparty {
		return fmt.Errorf("match: order %s reserved for %s: %w",
			o.ID, o.ExtraParams.Buyer.Hex(), domain.ErrUnauthorized)
	}
	return nil
}

// requireExplicit rejects concrete item sets that still contain wildcards.
func requireExplicit(items []domain.OrderItem) error {
	if len(items) == 0 {
		return fmt.Errorf("match: empty item set: %w", domain.ErrItemConstraintViolated)
	}
	for _, it := range items {
		if len(it.Tokens) == 0 {
			return fmt.Errorf("match: wildcard item for %s in constructed set: %w",
				it.Collection.Hex(), domain.ErrItemConstraintViolated)
		}
		for _, tok := range it.Tokens {
			if tok.NumTokens == nil || tok.NumTokens.Sign() <= 0 {
				return fmt.Errorf("match: non-positive token quantity in %s: %w",
					it.Collection.Hex(), domain.ErrItemConstraintViolated)
			}
		}
	}
	return nil
}

// checkItemsAgainst validates a concrete item set against one order's
// collection constraints. A fully wildcard order (no items listed) accepts
// anything; otherwise the concrete set must cover exactly the order's
// collections, and token ids pinned by the order must be honored exactly.
func checkItemsAgainst(o domain.Order, items []domain.OrderItem) error {
	if len(o.NFTs) == 0 {
		return nil
	}

	listed := make(map[common.Address]domain.OrderItem, len(o.NFTs))
	for _, it := range o.NFTs {
		listed[it.Collection] = it
	}

	seen := make(map[common.Address]bool, len(items))
	for _, it := range items {
		spec, ok := listed[it.Collection]
		if !ok {
			return fmt.Errorf("match: collection %s not listed by order %s: %w",
				it.Collection.Hex(), o.ID, domain.ErrItemConstraintViolated)
		}
		seen[it.Collection] = true

		// Collection-level wildcard: any tokens from this collection.
		if len(spec.Tokens) == 0 {
			continue
		}

		pinned := make(map[string]*big.Int, len(spec.Tokens))
		for _, tok := range spec.Tokens {
			pinned[tok.TokenID.String()] = tok.NumTokens
		}
		for _, tok := range it.Tokens {
			want, ok := pinned[tok.TokenID.String()]
			if !ok {
				return fmt.Errorf("match: token %s/%s not pinned by order %s: %w",
					it.Collection.Hex(), tok.TokenID, o.ID, domain.ErrItemConstraintViolated)
			}
			if tok.NumTokens.Cmp(want) > 0 {
				return fmt.Errorf("match: token %s/%s quantity %s exceeds pinned %s: %w",
					it.Collection.Hex(), tok.TokenID, tok.NumTokens, want, domain.ErrItemConstraintViolated)
			}
		}
	}

	for coll := range listed {
		if !seen[coll] {
			return fmt.Errorf("match: collection %s required by order %s missing from constructed set: %w",
				coll.Hex(), o.ID, domain.ErrItemConstraintViolated)
		}
	}
	return nil
}

// checkCount applies an order's numItems constraint to the aggregate unit
// count: exact for sell orders, minimum for buy orders.
func checkCount(o domain.Order, units uint64) error {
	if o.IsSellOrder {
		if units != o.NumItems {
			return fmt.Errorf("match: %d units vs sell-side exact count %d: %w",
				units, o.NumItems, domain.ErrItemConstraintViolated)
		}
		return nil
	}
	if units < o.NumItems {
		return fmt.Errorf("match: %d units below buy-side minimum %d: %w",
			units, o.NumItems, domain.ErrItemConstraintViolated)
	}
	return nil
}

func countUnits(items []domain.OrderItem) uint64 {
	var n uint64
	for _, it := range items {
		n += it.NumTokens()
	}
	return n
}
