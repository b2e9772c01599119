package pricing

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openmatch/nftx/internal/domain"
)

func curveOrder(startPrice, endPrice int64, startTime, endTime uint64) domain.Order {
	return domain.Order{
		StartPrice: big.NewInt(startPrice),
		EndPrice:   big.NewInt(endPrice),
		StartTime:  startTime,
		EndTime:    endTime,
	}
}

func TestPriceAtEndpoints(t *testing.T) {
	o := curveOrder(1_000_000, 400_000, 1000, 2000)

	require.Equal(t, big.NewInt(1_000_000), PriceAt(o, 1000))
	require.Equal(t, big.NewInt(400_000), PriceAt(o, 2000))
	// Before the window the price holds at start, after it pins at end.
	require.Equal(t, big.NewInt(1_000_000), PriceAt(o, 0))
	require.Equal(t, big.NewInt(400_000), PriceAt(o, 50_000))
}

func TestPriceAtMidpoint(t *testing.T) {
	o := curveOrder(1_000_000, 400_000, 1000, 2000)
	require.Equal(t, big.NewInt(700_000), PriceAt(o, 1500))

	asc := curveOrder(400_000, 1_000_000, 1000, 2000)
	require.Equal(t, big.NewInt(700_000), PriceAt(asc, 1500))
}

func TestPriceFlatAndDegenerate(t *testing.T) {
	flat := curveOrder(500, 500, 1000, 2000)
	require.Equal(t, big.NewInt(500), PriceAt(flat, 1750))

	pinned := curveOrder(900, 100, 1500, 1500)
	require.Equal(t, big.NewInt(900), PriceAt(pinned, 1500))
	require.Equal(t, big.NewInt(900), PriceAt(pinned, 9999))
}

func TestPriceTruncatesTowardStart(t *testing.T) {
	// 1/3 elapsed with PRECISION 10000: portion = 3333, diff = 299*3333/10000.
	o := curveOrder(1000, 701, 0, 3)
	got := PriceAt(o, 1)
	want := big.NewInt(1000 - 299*3333/10000)
	require.Equal(t, want, got)
}

func TestPriceMonotonicity(t *testing.T) {
	desc := curveOrder(987_654_321, 123_456_789, 10_000, 99_999)
	asc := curveOrder(123_456_789, 987_654_321, 10_000, 99_999)

	prevDesc := PriceAt(desc, 10_000)
	prevAsc := PriceAt(asc, 10_000)
	for ts := uint64(10_001); ts <= 100_500; ts += 499 {
		d := PriceAt(desc, ts)
		a := PriceAt(asc, ts)
		require.LessOrEqual(t, d.Cmp(prevDesc), 0, "descending curve rose at ts=%d", ts)
		require.GreaterOrEqual(t, a.Cmp(prevAsc), 0, "ascending curve fell at ts=%d", ts)
		prevDesc, prevAsc = d, a
	}
}

func TestPriceDoesNotMutateOrder(t *testing.T) {
	o := curveOrder(1_000_000, 400_000, 1000, 2000)
	_ = PriceAt(o, 1500)
	require.Equal(t, big.NewInt(1_000_000), o.StartPrice)
	require.Equal(t, big.NewInt(400_000), o.EndPrice)
}
