// Package pricing computes the instantaneous clearing price of a
// time-decaying order. Every party (maker, taker, relayer) derives the same
// price for the same timestamp; the math is pure integer arithmetic.
package pricing

import (
	"math/big"

	"github.com/openmatch/nftx/internal/domain"
)

// precision is the fixed-point denominator for the elapsed-time portion.
var precision = big.NewInt(domain.BpsPrecision)

// CurrentPrice returns PriceAt evaluated at now (seconds).
func CurrentPrice(o domain.Order, nowUnix uint64) *big.Int {
	return PriceAt(o, nowUnix)
}

// PriceAt linearly interpolates the order price at ts:
//
//	portion = clamp(ts - startTime, 0, duration) * 10000 / duration
//	price   = startPrice ± |endPrice - startPrice| * portion / 10000
//
// A flat curve (startPrice == endPrice) or a degenerate window
// (startTime == endTime) pins the price to startPrice; ts past endTime pins
// it to endPrice.
func PriceAt(o domain.Order, ts uint64) *big.Int {
	startPrice := o.StartPrice
	endPrice := o.EndPrice

	diff := new(big.Int).Sub(startPrice, endPrice)
	descending := diff.Sign() > 0
	diff.Abs(diff)

	duration := o.EndTime - o.StartTime
	if diff.Sign() == 0 || o.EndTime <= o.StartTime {
		return new(big.Int).Set(startPrice)
	}

	var elapsed uint64
	if ts > o.StartTime {
		elapsed = ts - o.StartTime
	}
	portion := new(big.Int)
	if elapsed >= duration {
		portion.Set(precision)
	} else {
		portion.SetUint64(elapsed)
		portion.Mul(portion, precision)
		portion.Div(portion, new(big.Int).SetUint64(duration))
	}

	diff.Mul(diff, portion)
	diff.Div(diff, precision)

	if descending {
		return new(big.Int).Sub(startPrice, diff)
	}
	return new(big.Int).Add(startPrice, diff)
}
