package treasury

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
	escrow  = common.HexToAddress("0xe5c2000000000000000000000000000000000001")
	curator = common.HexToAddress("0xc02a000000000000000000000000000000000002")
	creator = common.HexToAddress("0xc4ea000000000000000000000000000000000003")
	weth    = common.HexToAddress("0xc0ffee0000000000000000000000000000000004")
)

// fakeAssets records fungible transfers and can be told to fail.
type fakeAssets struct {
	fail      bool
	transfers []string
}

func (f *fakeAssets) TransferFungible(_ context.Context, _ common.Address, from, to common.Address, amount *big.Int) error {
	if f.fail {
		return errors.New("insufficient allowance")
	}
	f.transfers = append(f.transfers, from.Hex()+"->"+to.Hex()+":"+amount.String())
	return nil
}

func (f *fakeAssets) TransferNonFungible(context.Context, common.Address, *big.Int, common.Address, common.Address) error {
	return nil
}

func (f *fakeAssets) IsApprovedForAll(context.Context, common.Address, common.Address, common.Address) (bool, error) {
	return true, nil
}

func (f *fakeAssets) OwnerOf(context.Context, common.Address, *big.Int) (common.Address, error) {
	return common.Address{}, nil
}

func newTreasury(assets domain.AssetTransfer) (*Treasury, *ledger.TreasuryLedger) {
	store := ledger.NewTreasuryLedger()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(store, assets, nil, escrow, curator, logger), store
}

func breakdown(curatorFee, creatorFee int64) domain.FeeBreakdown {
	return domain.FeeBreakdown{
		SalePrice:   big.NewInt(curatorFee + creatorFee + 1000),
		CuratorFee:  big.NewInt(curatorFee),
		CreatorFees: []domain.FeeAllocation{{Recipient: creator, Amount: big.NewInt(creatorFee)}},
		NetToSeller: big.NewInt(1000),
	}
}

func TestCollectAndClaim(t *testing.T) {
	ctx := context.Background()
	assets := &fakeAssets{}
	tr, _ := newTreasury(assets)

	require.NoError(t, tr.CollectFees(ctx, breakdown(250, 400), weth))
	require.NoError(t, tr.CollectFees(ctx, breakdown(250, 400), weth))

	got, err := tr.Claim(ctx, domain.FeeBucketCreator, creator, weth)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(800), got)
	require.Len(t, assets.transfers, 1)

	got, err = tr.Claim(ctx, domain.FeeBucketCurator, curator, weth)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(500), got)
}

func TestReverseFeesUndoesCollect(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTreasury(&fakeAssets{})

	fb := breakdown(250, 400)
	require.NoError(t, tr.CollectFees(ctx, fb, weth))
	require.NoError(t, tr.ReverseFees(ctx, fb, weth))

	for _, entry := range []struct {
		bucket    domain.FeeBucket
		recipient common.Address
	}{
		{domain.FeeBucketCurator, curator},
		{domain.FeeBucketCreator, creator},
	} {
		bal, err := tr.Balance(ctx, entry.bucket, entry.recipient, weth)
		require.NoError(t, err)
		require.Zero(t, bal.Sign())
	}

	// Reversing without a matching collect must not go negative.
	require.Error(t, tr.ReverseFees(ctx, fb, weth))
}

func TestDoubleClaimRejected(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTreasury(&fakeAssets{})

	require.NoError(t, tr.CollectFees(ctx, breakdown(100, 50), weth))

	_, err := tr.Claim(ctx, domain.FeeBucketCreator, creator, weth)
	require.NoError(t, err)

	// Immediately claiming again hits an exactly-zero ledger entry.
	_, err = tr.Claim(ctx, domain.FeeBucketCreator, creator, weth)
	require.ErrorIs(t, err, domain.ErrNoFeesToClaim)

	bal, err := tr.Balance(ctx, domain.FeeBucketCreator, creator, weth)
	require.NoError(t, err)
	require.Zero(t, bal.Sign())
}

func TestClaimWithNothingAccrued(t *testing.T) {
	tr, _ := newTreasury(&fakeAssets{})
	_, err := tr.Claim(context.Background(), domain.FeeBucketCreator, creator, weth)
	require.ErrorIs(t, err, domain.ErrNoFeesToClaim)
}

func TestClaimTransferFailureRestoresBalance(t *testing.T) {
	ctx := context.Background()
	assets := &fakeAssets{fail: true}
	tr, _ := newTreasury(assets)

	require.NoError(t, tr.CollectFees(ctx, breakdown(100, 50), weth))

	_, err := tr.Claim(ctx, domain.FeeBucketCreator, creator, weth)
	require.ErrorIs(t, err, domain.ErrTransferFailed)

	// Balance restored; a later claim succeeds once transfers work again.
	assets.fail = false
	got, err := tr.Claim(ctx, domain.FeeBucketCreator, creator, weth)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(50), got)
}
