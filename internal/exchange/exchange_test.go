package exchange

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/openmatch/nftx/internal/crypto"
	"github.com/openmatch/nftx/internal/domain"
	"github.com/openmatch/nftx/internal/fees"
	"github.com/openmatch/nftx/internal/ledger"
	"github.com/openmatch/nftx/internal/match"
	"github.com/openmatch/nftx/internal/treasury"
	"github.com/openmatch/nftx/internal/validate"
)

const (
	sellerKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	buyerKeyHex  = "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
	t0           = uint64(1_700_000_000)
)

var (
	exchangeAddr     = common.HexToAddress("0xeeee000000000000000000000000000000000001")
	complicationAddr = common.HexToAddress("0xcccc000000000000000000000000000000000002")
	wethAddr         = common.HexToAddress("0xc0ffee0000000000000000000000000000000003")
	collAddr         = common.HexToAddress("0xaaaa000000000000000000000000000000000004")
	creatorAddr      = common.HexToAddress("0xc4ea000000000000000000000000000000000005")
	curatorAddr      = common.HexToAddress("0xc02a000000000000000000000000000000000006")
	escrowAddr       = common.HexToAddress("0xe5c2000000000000000000000000000000000007")
)

type allowAll struct{}

func (allowAll) IsCurrencyAllowed(context.Context, common.Address) (bool, error)     { return true, nil }
func (allowAll) IsComplicationAllowed(context.Context, common.Address) (bool, error) { return true, nil }

type fungibleXfer struct {
	currency, from, to common.Address
	amount             *big.Int
}

type nftXfer struct {
	collection common.Address
	tokenID    *big.Int
	from, to   common.Address
}

// recAssets records every transfer so tests can assert exact money movement.
// failNFTAt makes the nth non-fungible transfer fail (1-based, 0 disables).
type recAssets struct {
	fungible  []fungibleXfer
	nfts      []nftXfer
	failNFTAt int
	nftCalls  int
}

func (a *recAssets) TransferFungible(_ context.Context, currency, from, to common.Address, amount *big.Int) error {
	a.fungible = append(a.fungible, fungibleXfer{currency, from, to, new(big.Int).Set(amount)})
	return nil
}

func (a *recAssets) TransferNonFungible(_ context.Context, collection common.Address, tokenID *big.Int, from, to common.Address) error {
	a.nftCalls++
	if a.failNFTAt != 0 && a.nftCalls == a.failNFTAt {
		return errors.New("token transfer reverted")
	}
	a.nfts = append(a.nfts, nftXfer{collection, new(big.Int).Set(tokenID), from, to})
	return nil
}

func (a *recAssets) IsApprovedForAll(context.Context, common.Address, common.Address, common.Address) (bool, error) {
	return true, nil
}

func (a *recAssets) OwnerOf(context.Context, common.Address, *big.Int) (common.Address, error) {
	return common.Address{}, nil
}

type adminTable map[common.Address]common.Address

func (t adminTable) IsCollectionAdmin(_ context.Context, collection, user common.Address) (bool, error) {
	return t[collection] == user, nil
}

type fixture struct {
	ex          *Exchange
	codec       *crypto.OrderCodec
	seller      *crypto.Signer
	buyer       *crypto.Signer
	assets      *recAssets
	nonces      *ledger.NonceLedger
	splits      *ledger.FeeSplitTable
	balances    *ledger.TreasuryLedger
	settlements *ledger.SettlementLog
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	codec := crypto.NewOrderCodec(1, exchangeAddr)
	verifier := crypto.NewVerifier(codec)

	seller, err := crypto.NewSigner(sellerKeyHex, codec)
	require.NoError(t, err)
	buyer, err := crypto.NewSigner(buyerKeyHex, codec)
	require.NoError(t, err)

	nonces := ledger.NewNonceLedger()
	splits := ledger.NewFeeSplitTable()
	balances := ledger.NewTreasuryLedger()
	settlements := ledger.NewSettlementLog()
	assets := &recAssets{}

	feeEngine := fees.NewEngine(
		fees.NewStaticTierProvider(nil),
		[]domain.RoyaltySource{fees.NewFeeSplitSource(splits)},
		logger,
	)

	ex := New(Deps{
		Codec:       codec,
		Verifier:    verifier,
		Validator:   validate.New(verifier, nonces, allowAll{}, logger),
		Matcher:     match.NewEngine(logger),
		Fees:        feeEngine,
		Treasury:    treasury.New(balances, assets, nil, escrowAddr, curatorAddr, logger),
		Assets:      assets,
		Nonces:      nonces,
		Splits:      splits,
		Settlements: settlements,
		Admins:      adminTable{collAddr: creatorAddr},
		Curator:     curatorAddr,
		Logger:      logger,
	}).WithClock(func() time.Time { return time.Unix(int64(t0), 0) })

	return &fixture{
		ex: ex, codec: codec, seller: seller, buyer: buyer,
		assets: assets, nonces: nonces, splits: splits,
		balances: balances, settlements: settlements,
	}
}

func oneToken(id int64) []domain.OrderItem {
	return []domain.OrderItem{{
		Collection: collAddr,
		Tokens:     []domain.TokenInfo{{TokenID: big.NewInt(id), NumTokens: big.NewInt(1)}},
	}}
}

func (f *fixture) order(t *testing.T, signer *crypto.Signer, isSell bool, nonce uint64, price int64, items []domain.OrderItem) domain.Order {
	t.Helper()
	o := domain.Order{
		ChainID:     1,
		IsSellOrder: isSell,
		Signer:      signer.Address(),
		NumItems:    1,
		StartPrice:  big.NewInt(price),
		EndPrice:    big.NewInt(price),
		StartTime:   t0 - 100,
		EndTime:     t0 + 1000,
		Nonce:       nonce,
		NFTs:        items,
		ExecParams:  domain.ExecParams{Complication: complicationAddr, Currency: wethAddr},
	}
	o.ID = domain.DeriveOrderID(o.Signer, o.Nonce, o.ChainID)
	sig, err := signer.SignOrder(o)
	require.NoError(t, err)
	o.Sig = sig
	return o
}

func (f *fixture) configureSplit(t *testing.T, bps uint64) {
	t.Helper()
	require.NoError(t, f.ex.SetupCollectionFeeSplit(context.Background(), creatorAddr, collAddr,
		[]domain.FeeShare{{Recipient: creatorAddr, Bps: bps}}))
}

func TestTakeOrdersSettlesAndConservesFunds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.configureSplit(t, 500)

	sell := f.order(t, f.seller, true, 1, 1_000_000, oneToken(7))
	buy := f.order(t, f.buyer, false, 1, 1_000_000, oneToken(7))

	settled, failures, err := f.ex.TakeOrders(ctx, []domain.Order{sell}, []domain.Order{buy}, Opts{FeesInCurrency: true})
	require.NoError(t, err)
	require.Empty(t, failures)
	require.Len(t, settled, 1)

	s := settled[0]
	require.Equal(t, domain.SettlementKindTake, s.Kind)
	require.Equal(t, big.NewInt(1_000_000), s.Price)
	require.Equal(t, big.NewInt(25_000), s.CuratorFee)
	require.Len(t, s.CreatorFees, 1)
	require.Equal(t, big.NewInt(50_000), s.CreatorFees[0].Amount)
	require.Equal(t, big.NewInt(925_000), s.NetToSeller)

	// Conservation: curator + creator + net == price.
	sum := new(big.Int).Set(s.CuratorFee)
	for _, a := range s.CreatorFees {
		sum.Add(sum, a.Amount)
	}
	sum.Add(sum, s.NetToSeller)
	require.Zero(t, sum.Cmp(big.NewInt(1_000_000)))

	// Money movement: buyer -> escrow full price, escrow -> seller net.
	require.Len(t, f.assets.fungible, 2)
	require.Equal(t, f.buyer.Address(), f.assets.fungible[0].from)
	require.Equal(t, escrowAddr, f.assets.fungible[0].to)
	require.Equal(t, big.NewInt(1_000_000), f.assets.fungible[0].amount)
	require.Equal(t, escrowAddr, f.assets.fungible[1].from)
	require.Equal(t, f.seller.Address(), f.assets.fungible[1].to)
	require.Equal(t, big.NewInt(925_000), f.assets.fungible[1].amount)

	// The token moved seller -> buyer.
	require.Len(t, f.assets.nfts, 1)
	require.Equal(t, big.NewInt(7), f.assets.nfts[0].tokenID)
	require.Equal(t, f.seller.Address(), f.assets.nfts[0].from)
	require.Equal(t, f.buyer.Address(), f.assets.nfts[0].to)

	// Fee balances accrued and the record is durable.
	bal, err := f.balances.Balance(ctx, domain.FeeBucketCurator, curatorAddr, wethAddr)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(25_000), bal)
	got, err := f.settlements.GetByID(ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, s.ID, got.ID)
}

func TestNonceSingleUse(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	sell := f.order(t, f.seller, true, 1, 1000, oneToken(1))
	buy := f.order(t, f.buyer, false, 1, 1000, oneToken(1))

	_, _, err := f.ex.TakeOrders(ctx, []domain.Order{sell}, []domain.Order{buy}, Opts{FeesInCurrency: true})
	require.NoError(t, err)

	// Replaying the identical signed pair must fail on the retired nonce.
	_, _, err = f.ex.TakeOrders(ctx, []domain.Order{sell}, []domain.Order{buy}, Opts{FeesInCurrency: true})
	require.ErrorIs(t, err, domain.ErrNonceInactive)
}

func TestCancelAllOrdersBlocksOlderNonces(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	sell := f.order(t, f.seller, true, 3, 1000, oneToken(1))
	buy := f.order(t, f.buyer, false, 1, 1000, oneToken(1))

	require.NoError(t, f.ex.CancelAllOrders(ctx, f.seller.Address(), 10))

	_, _, err := f.ex.TakeOrders(ctx, []domain.Order{sell}, []domain.Order{buy}, Opts{FeesInCurrency: true})
	require.ErrorIs(t, err, domain.ErrNonceInactive)

	ok, err := f.ex.IsNonceValid(ctx, f.seller.Address(), 10)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestMatchOrdersClearsAtSellPrice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	sell := f.order(t, f.seller, true, 1, 900, oneToken(5))
	// Wildcard bid on the collection, higher limit price.
	buy := f.order(t, f.buyer, false, 1, 1200, []domain.OrderItem{{Collection: collAddr}})
	constructed := domain.Order{
		IsSellOrder: true,
		NumItems:    1,
		NFTs:        oneToken(5),
		ExecParams:  sell.ExecParams,
	}

	settled, failures, err := f.ex.MatchOrders(ctx, []domain.Order{sell}, []domain.Order{buy}, []domain.Order{constructed}, Opts{FeesInCurrency: true})
	require.NoError(t, err)
	require.Empty(t, failures)
	require.Len(t, settled, 1)
	require.Equal(t, domain.SettlementKindMatch, settled[0].Kind)
	require.Equal(t, big.NewInt(900), settled[0].Price)
}

func TestFeesOnTop(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	sell := f.order(t, f.seller, true, 1, 1_000_000, oneToken(2))
	buy := f.order(t, f.buyer, false, 1, 1_000_000, oneToken(2))

	settled, _, err := f.ex.TakeOrders(ctx, []domain.Order{sell}, []domain.Order{buy}, Opts{FeesInCurrency: false})
	require.NoError(t, err)
	require.Len(t, settled, 1)

	// Buyer pays price plus curator fee; seller nets the full price.
	require.Equal(t, big.NewInt(1_025_000), f.assets.fungible[0].amount)
	require.Equal(t, big.NewInt(1_000_000), f.assets.fungible[1].amount)
	require.Equal(t, big.NewInt(1_000_000), settled[0].NetToSeller)
}

func TestAtomicBatchAbortsBeforeEffects(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	good := f.order(t, f.seller, true, 1, 1000, oneToken(1))
	goodBuy := f.order(t, f.buyer, false, 1, 1000, oneToken(1))
	bad := f.order(t, f.seller, true, 2, 1000, oneToken(2))
	bad.Sig[10] ^= 0xff
	badBuy := f.order(t, f.buyer, false, 2, 1000, oneToken(2))

	_, _, err := f.ex.TakeOrders(ctx,
		[]domain.Order{good, bad},
		[]domain.Order{goodBuy, badBuy},
		Opts{FeesInCurrency: true})
	require.ErrorIs(t, err, domain.ErrInvalidSignature)

	// Planning caught the bad pair before anything moved.
	require.Empty(t, f.assets.fungible)
	require.Empty(t, f.assets.nfts)
	ok, err := f.nonces.IsActive(ctx, f.seller.Address(), 1)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestFailedTransferUnwindsSettlement(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.configureSplit(t, 500)
	f.assets.failNFTAt = 1

	sell := f.order(t, f.seller, true, 1, 1_000_000, oneToken(7))
	buy := f.order(t, f.buyer, false, 1, 1_000_000, oneToken(7))

	settled, _, err := f.ex.TakeOrders(ctx, []domain.Order{sell}, []domain.Order{buy}, Opts{FeesInCurrency: true})
	require.ErrorIs(t, err, domain.ErrTransferFailed)
	require.Empty(t, settled)

	// The escrowed funds went back to the buyer in full.
	require.Len(t, f.assets.fungible, 2)
	require.Equal(t, f.buyer.Address(), f.assets.fungible[0].from)
	require.Equal(t, escrowAddr, f.assets.fungible[0].to)
	require.Equal(t, escrowAddr, f.assets.fungible[1].from)
	require.Equal(t, f.buyer.Address(), f.assets.fungible[1].to)
	require.Equal(t, f.assets.fungible[0].amount, f.assets.fungible[1].amount)

	// Fee credits were reversed.
	bal, err := f.balances.Balance(ctx, domain.FeeBucketCurator, curatorAddr, wethAddr)
	require.NoError(t, err)
	require.Zero(t, bal.Sign())
	bal, err = f.balances.Balance(ctx, domain.FeeBucketCreator, creatorAddr, wethAddr)
	require.NoError(t, err)
	require.Zero(t, bal.Sign())

	// Nothing recorded, both nonces still live.
	recent, err := f.settlements.ListRecent(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Empty(t, recent)
	for _, signer := range []common.Address{f.seller.Address(), f.buyer.Address()} {
		ok, err := f.nonces.IsActive(ctx, signer, 1)
		require.NoError(t, err)
		require.True(t, ok)
	}
}

func TestAtomicBatchUnwindsCompletedPairs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	// The first pair's token moves fine; the second pair's token reverts.
	f.assets.failNFTAt = 2

	sellA := f.order(t, f.seller, true, 1, 1000, oneToken(1))
	buyA := f.order(t, f.buyer, false, 1, 1000, oneToken(1))
	sellB := f.order(t, f.seller, true, 2, 1000, oneToken(2))
	buyB := f.order(t, f.buyer, false, 2, 1000, oneToken(2))

	settled, _, err := f.ex.TakeOrders(ctx,
		[]domain.Order{sellA, sellB},
		[]domain.Order{buyA, buyB},
		Opts{FeesInCurrency: true})
	require.ErrorIs(t, err, domain.ErrTransferFailed)
	require.Empty(t, settled)

	// The first pair settled its asset legs before the second broke, and
	// was compensated along with it: no records, no fee balances, all
	// nonces live.
	recent, err := f.settlements.ListRecent(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Empty(t, recent)
	bal, err := f.balances.Balance(ctx, domain.FeeBucketCurator, curatorAddr, wethAddr)
	require.NoError(t, err)
	require.Zero(t, bal.Sign())
	for _, nonce := range []uint64{1, 2} {
		ok, err := f.nonces.IsActive(ctx, f.seller.Address(), nonce)
		require.NoError(t, err)
		require.True(t, ok)
	}

	// The first pair's token went out and came back.
	require.Len(t, f.assets.nfts, 2)
	require.Equal(t, big.NewInt(1), f.assets.nfts[0].tokenID)
	require.Equal(t, f.seller.Address(), f.assets.nfts[0].from)
	require.Equal(t, big.NewInt(1), f.assets.nfts[1].tokenID)
	require.Equal(t, f.seller.Address(), f.assets.nfts[1].to)
}

func TestBestEffortBatchCollectsFailures(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	good := f.order(t, f.seller, true, 1, 1000, oneToken(1))
	goodBuy := f.order(t, f.buyer, false, 1, 1000, oneToken(1))
	bad := f.order(t, f.seller, true, 2, 1000, oneToken(2))
	bad.Sig[10] ^= 0xff
	badBuy := f.order(t, f.buyer, false, 2, 1000, oneToken(2))

	settled, failures, err := f.ex.TakeOrders(ctx,
		[]domain.Order{bad, good},
		[]domain.Order{badBuy, goodBuy},
		Opts{FeesInCurrency: true, BestEffort: true})
	require.NoError(t, err)
	require.Len(t, settled, 1)
	require.Len(t, failures, 1)
	require.Equal(t, 0, failures[0].Index)
	require.ErrorIs(t, failures[0].Err, domain.ErrInvalidSignature)
}

func TestPrivateOrderReservedForBuyer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	other := common.HexToAddress("0x1234000000000000000000000000000000000009")
	sell := domain.Order{
		ChainID:     1,
		IsSellOrder: true,
		Signer:      f.seller.Address(),
		NumItems:    1,
		StartPrice:  big.NewInt(1000),
		EndPrice:    big.NewInt(1000),
		StartTime:   t0 - 100,
		EndTime:     t0 + 1000,
		Nonce:       1,
		NFTs:        oneToken(1),
		ExecParams:  domain.ExecParams{Complication: complicationAddr, Currency: wethAddr},
		ExtraParams: domain.ExtraParams{Buyer: other},
	}
	sell.ID = domain.DeriveOrderID(sell.Signer, sell.Nonce, sell.ChainID)
	sig, err := f.seller.SignOrder(sell)
	require.NoError(t, err)
	sell.Sig = sig

	buy := f.order(t, f.buyer, false, 1, 1000, oneToken(1))

	_, _, err = f.ex.TakeOrders(ctx, []domain.Order{sell}, []domain.Order{buy}, Opts{FeesInCurrency: true})
	require.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestSlippageGuard(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.configureSplit(t, 500)

	sell := f.order(t, f.seller, true, 1, 1_000_000, oneToken(1))
	sell.MinBpsToSeller = 9800 // net is 9250 bps after 250 curator + 500 creator
	sell.ID = domain.DeriveOrderID(sell.Signer, sell.Nonce, sell.ChainID)
	sig, err := f.seller.SignOrder(sell)
	require.NoError(t, err)
	sell.Sig = sig

	buy := f.order(t, f.buyer, false, 1, 1_000_000, oneToken(1))

	_, _, err = f.ex.TakeOrders(ctx, []domain.Order{sell}, []domain.Order{buy}, Opts{FeesInCurrency: true})
	require.ErrorIs(t, err, domain.ErrSlippageExceeded)
}

func TestSetupCollectionFeeSplitGuards(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// Non-admin rejected.
	err := f.ex.SetupCollectionFeeSplit(ctx, f.buyer.Address(), collAddr,
		[]domain.FeeShare{{Recipient: creatorAddr, Bps: 100}})
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	// Valid config sticks.
	f.configureSplit(t, 400)

	// Over-limit total leaves the prior config untouched.
	err = f.ex.SetupCollectionFeeSplit(ctx, creatorAddr, collAddr, []domain.FeeShare{
		{Recipient: creatorAddr, Bps: 6000},
		{Recipient: creatorAddr, Bps: 6000},
	})
	require.ErrorIs(t, err, domain.ErrBpsTooHigh)

	split, err := f.splits.Get(ctx, collAddr)
	require.NoError(t, err)
	require.Equal(t, uint64(400), split.TotalBps())
}

func TestClaims(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.configureSplit(t, 500)

	sell := f.order(t, f.seller, true, 1, 1_000_000, oneToken(1))
	buy := f.order(t, f.buyer, false, 1, 1_000_000, oneToken(1))
	_, _, err := f.ex.TakeOrders(ctx, []domain.Order{sell}, []domain.Order{buy}, Opts{FeesInCurrency: true})
	require.NoError(t, err)

	// Only the curator account may sweep the protocol bucket.
	_, err = f.ex.ClaimCuratorFees(ctx, f.buyer.Address(), wethAddr)
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	got, err := f.ex.ClaimCuratorFees(ctx, curatorAddr, wethAddr)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(25_000), got)

	got, err = f.ex.ClaimCreatorFees(ctx, creatorAddr, wethAddr)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(50_000), got)

	// Nothing left.
	_, err = f.ex.ClaimCreatorFees(ctx, creatorAddr, wethAddr)
	require.ErrorIs(t, err, domain.ErrNoFeesToClaim)
}
