package fees

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/openmatch/nftx/internal/domain"
	"github.com/openmatch/nftx/internal/ledger"
)

var (
	collA   = common.HexToAddress("0xaaaa000000000000000000000000000000000001")
	collB   = common.HexToAddress("0xbbbb000000000000000000000000000000000002")
	creator = common.HexToAddress("0xc4ea000000000000000000000000000000000003")
	dest2   = common.HexToAddress("0xc4ea000000000000000000000000000000000004")
	seller  = common.HexToAddress("0x5e11e20000000000000000000000000000000005")
)

// stubSource returns a fixed bps of whatever price it is asked about.
type stubSource struct {
	name      string
	bps       uint64
	recipient common.Address
	err       error
	calls     int
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Resolve(_ context.Context, _ common.Address, _ *big.Int, salePrice *big.Int) ([]domain.FeeAllocation, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if s.bps == 0 {
		return nil, nil
	}
	return []domain.FeeAllocation{{
		Recipient: s.recipient,
		Amount:    mulBps(salePrice, s.bps),
	}}, nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func oneItem(coll common.Address, id int64) []domain.OrderItem {
	return []domain.OrderItem{{
		Collection: coll,
		Tokens:     []domain.TokenInfo{{TokenID: big.NewInt(id), NumTokens: big.NewInt(1)}},
	}}
}

func TestCuratorFeeNoDiscount(t *testing.T) {
	stake := NewStaticTierProvider(nil)
	eng := NewEngine(stake, nil, discard())

	fb, err := eng.Compute(context.Background(), oneItem(collA, 1), big.NewInt(1_000_000), seller, false)
	require.NoError(t, err)

	// 250 bps of 1e6.
	require.Equal(t, big.NewInt(25_000), fb.CuratorFee)
	require.Empty(t, fb.CreatorFees)
	require.Equal(t, big.NewInt(975_000), fb.NetToSeller)
}

func TestCuratorFeeStakeDiscount(t *testing.T) {
	stake := NewStaticTierProvider(map[common.Address]domain.StakeLevel{seller: 2})
	eng := NewEngine(stake, nil, discard())
	require.NoError(t, eng.UpdateEffectiveFeeBps(2, 7000))

	price := big.NewInt(1_000_000)
	fb, err := eng.Compute(context.Background(), oneItem(collA, 1), price, seller, true)
	require.NoError(t, err)

	// P * 250/10000 * 7000/10000.
	want := new(big.Int).Mul(price, big.NewInt(250))
	want.Div(want, big.NewInt(10000))
	want.Mul(want, big.NewInt(7000))
	want.Div(want, big.NewInt(10000))
	require.Equal(t, want, fb.CuratorFee)

	// Discount flag off: full fee even for a staked seller.
	fb, err = eng.Compute(context.Background(), oneItem(collA, 1), price, seller, false)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(25_000), fb.CuratorFee)
}

func TestCuratorFeeDefaultDiscountTable(t *testing.T) {
	// A freshly constructed engine already discounts per the default tier
	// table; no governance call is needed before the first settlement.
	stake := NewStaticTierProvider(map[common.Address]domain.StakeLevel{seller: domain.StakeLevelSilver})
	eng := NewEngine(stake, nil, discard())

	fb, err := eng.Compute(context.Background(), oneItem(collA, 1), big.NewInt(1_000_000), seller, true)
	require.NoError(t, err)

	// 250 bps scaled by the silver multiplier 8000/10000.
	require.Equal(t, big.NewInt(20_000), fb.CuratorFee)

	// Tier none is absent from the table and pays the full fee.
	fb, err = eng.Compute(context.Background(), oneItem(collA, 1), big.NewInt(1_000_000), creator, true)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(25_000), fb.CuratorFee)
}

func TestCreatorFeeSourcePriority(t *testing.T) {
	first := &stubSource{name: "first", bps: 0}
	second := &stubSource{name: "second", bps: 300, recipient: creator}
	third := &stubSource{name: "third", bps: 500, recipient: dest2}
	eng := NewEngine(NewStaticTierProvider(nil), []domain.RoyaltySource{first, second, third}, discard())

	fb, err := eng.Compute(context.Background(), oneItem(collA, 1), big.NewInt(1_000_000), seller, false)
	require.NoError(t, err)

	// Second source wins; third never consulted.
	require.Len(t, fb.CreatorFees, 1)
	require.Equal(t, creator, fb.CreatorFees[0].Recipient)
	require.Equal(t, collA, fb.CreatorFees[0].Collection)
	require.Equal(t, big.NewInt(30_000), fb.CreatorFees[0].Amount)
	require.Equal(t, 1, first.calls)
	require.Equal(t, 1, second.calls)
	require.Equal(t, 0, third.calls)
}

func TestCreatorFeeSourceFailureFallsThrough(t *testing.T) {
	broken := &stubSource{name: "broken", err: errors.New("rpc timeout")}
	backup := &stubSource{name: "backup", bps: 200, recipient: creator}
	eng := NewEngine(NewStaticTierProvider(nil), []domain.RoyaltySource{broken, backup}, discard())

	fb, err := eng.Compute(context.Background(), oneItem(collA, 1), big.NewInt(500_000), seller, false)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(10_000), fb.TotalCreatorFee())
}

func TestCreatorFeeOverchargingSourceSkipped(t *testing.T) {
	greedy := &stubSource{name: "greedy", bps: 10001, recipient: creator}
	eng := NewEngine(NewStaticTierProvider(nil), []domain.RoyaltySource{greedy}, discard())

	fb, err := eng.Compute(context.Background(), oneItem(collA, 1), big.NewInt(10_000), seller, false)
	require.NoError(t, err)
	require.Empty(t, fb.CreatorFees)
}

func TestFeeSplitSourceProportionalSplit(t *testing.T) {
	splits := ledger.NewFeeSplitTable()
	require.NoError(t, splits.Upsert(context.Background(), domain.FeeSplit{
		Collection: collA,
		Setter:     creator,
		Shares: []domain.FeeShare{
			{Recipient: creator, Bps: 200},
			{Recipient: dest2, Bps: 200},
		},
	}))

	src := NewFeeSplitSource(splits)
	allocs, err := src.Resolve(context.Background(), collA, big.NewInt(1), big.NewInt(1_000_000))
	require.NoError(t, err)
	require.Len(t, allocs, 2)
	require.Equal(t, big.NewInt(20_000), allocs[0].Amount)
	require.Equal(t, big.NewInt(20_000), allocs[1].Amount)

	// Unconfigured collection: no opinion, nil result.
	allocs, err = src.Resolve(context.Background(), collB, big.NewInt(1), big.NewInt(1_000_000))
	require.NoError(t, err)
	require.Nil(t, allocs)
}

func TestFeeSplitSourceRemainderToLastRecipient(t *testing.T) {
	splits := ledger.NewFeeSplitTable()
	require.NoError(t, splits.Upsert(context.Background(), domain.FeeSplit{
		Collection: collA,
		Setter:     creator,
		Shares: []domain.FeeShare{
			{Recipient: creator, Bps: 100},
			{Recipient: dest2, Bps: 200},
		},
	}))

	src := NewFeeSplitSource(splits)
	// 300 bps of 1001 = 30 (floor). 100/300 of 30 = 10, 200/300 = 20.
	allocs, err := src.Resolve(context.Background(), collA, big.NewInt(1), big.NewInt(1001))
	require.NoError(t, err)

	total := new(big.Int)
	for _, a := range allocs {
		total.Add(total, a.Amount)
	}
	require.Equal(t, big.NewInt(30), total)
}

func TestFeesConservedMultiCollection(t *testing.T) {
	// Three collections, indivisible price: remainder lands on the last
	// collection's share and the books still balance exactly.
	src := &stubSource{name: "fixed", bps: 400, recipient: creator}
	eng := NewEngine(NewStaticTierProvider(nil), []domain.RoyaltySource{src}, discard())

	items := []domain.OrderItem{
		oneItem(collA, 1)[0],
		oneItem(collB, 2)[0],
		{Collection: common.HexToAddress("0x0c"), Tokens: []domain.TokenInfo{{TokenID: big.NewInt(3), NumTokens: big.NewInt(1)}}},
	}
	price := big.NewInt(1_000_000_007)

	fb, err := eng.Compute(context.Background(), items, price, seller, false)
	require.NoError(t, err)

	sum := new(big.Int).Set(fb.CuratorFee)
	sum.Add(sum, fb.TotalCreatorFee())
	sum.Add(sum, fb.NetToSeller)
	require.Zero(t, sum.Cmp(price), "curator + creator + net must equal sale price exactly")
	require.Len(t, fb.CreatorFees, 3)
}

func TestCachedTierProvider(t *testing.T) {
	inner := NewStaticTierProvider(map[common.Address]domain.StakeLevel{seller: 3})
	cache := &memStakeCache{levels: map[common.Address]domain.StakeLevel{}}
	p := NewCachedTierProvider(inner, cache, discard())

	level, err := p.GetUserStakeLevel(context.Background(), seller)
	require.NoError(t, err)
	require.Equal(t, domain.StakeLevel(3), level)

	// Second read is served from the cache even if the inner table changes.
	inner.SetLevel(seller, 1)
	level, err = p.GetUserStakeLevel(context.Background(), seller)
	require.NoError(t, err)
	require.Equal(t, domain.StakeLevel(3), level)
}

type memStakeCache struct {
	levels map[common.Address]domain.StakeLevel
}

func (c *memStakeCache) Set(_ context.Context, user common.Address, level domain.StakeLevel) error {
	c.levels[user] = level
	return nil
}

func (c *memStakeCache) Get(_ context.Context, user common.Address) (domain.StakeLevel, error) {
	level, ok := c.levels[user]
	if !ok {
		return 0, domain.ErrNotFound
	}
	return level, nil
}
