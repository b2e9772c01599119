package validate

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/openmatch/nftx/internal/crypto"
	"github.com/openmatch/nftx/internal/domain"
	"github.com/openmatch/nftx/internal/ledger"
)

const (
	testKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	now        = uint64(1_700_000_000)
)

var (
	exchangeAddr = common.HexToAddress("0xeeee000000000000000000000000000000000001")
	goodCurrency = common.HexToAddress("0xc0ffee0000000000000000000000000000000002")
	goodComplic  = common.HexToAddress("0xcccc000000000000000000000000000000000003")
	collection   = common.HexToAddress("0xaaaa000000000000000000000000000000000004")
)

// allowList only accepts the configured pair.
type allowList struct{}

func (allowList) IsCurrencyAllowed(_ context.Context, c common.Address) (bool, error) {
	return c == goodCurrency, nil
}

func (allowList) IsComplicationAllowed(_ context.Context, c common.Address) (bool, error) {
	return c == goodComplic, nil
}

type fixture struct {
	v      *Validator
	signer *crypto.Signer
	nonces *ledger.NonceLedger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	codec := crypto.NewOrderCodec(1, exchangeAddr)
	signer, err := crypto.NewSigner(testKeyHex, codec)
	require.NoError(t, err)
	nonces := ledger.NewNonceLedger()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &fixture{
		v:      New(crypto.NewVerifier(codec), nonces, allowList{}, logger),
		signer: signer,
		nonces: nonces,
	}
}

func (f *fixture) signedOrder(t *testing.T, mutate func(*domain.Order)) domain.Order {
	t.Helper()
	o := domain.Order{
		ChainID:     1,
		IsSellOrder: true,
		Signer:      f.signer.Address(),
		NumItems:    1,
		StartPrice:  big.NewInt(1000),
		EndPrice:    big.NewInt(1000),
		StartTime:   now - 100,
		EndTime:     now + 100,
		Nonce:       1,
		NFTs: []domain.OrderItem{{
			Collection: collection,
			Tokens:     []domain.TokenInfo{{TokenID: big.NewInt(1), NumTokens: big.NewInt(1)}},
		}},
		ExecParams: domain.ExecParams{Complication: goodComplic, Currency: goodCurrency},
	}
	if mutate != nil {
		mutate(&o)
	}
	o.ID = domain.DeriveOrderID(o.Signer, o.Nonce, o.ChainID)
	sig, err := f.signer.SignOrder(o)
	require.NoError(t, err)
	o.Sig = sig
	return o
}

func TestValidOrderPasses(t *testing.T) {
	f := newFixture(t)
	o := f.signedOrder(t, nil)
	require.NoError(t, f.v.Validate(context.Background(), o, now))
}

func TestExpiredOrder(t *testing.T) {
	f := newFixture(t)
	o := f.signedOrder(t, func(o *domain.Order) { o.EndTime = now - 1 })
	require.ErrorIs(t, f.v.Validate(context.Background(), o, now), domain.ErrExpired)
}

func TestInvertedTimeWindow(t *testing.T) {
	f := newFixture(t)
	o := f.signedOrder(t, func(o *domain.Order) {
		o.StartTime = now + 200
		o.EndTime = now + 100
	})
	require.ErrorIs(t, f.v.Validate(context.Background(), o, now), domain.ErrInvalidOrder)
}

func TestZeroNumItems(t *testing.T) {
	f := newFixture(t)
	o := f.signedOrder(t, func(o *domain.Order) { o.NumItems = 0 })
	require.ErrorIs(t, f.v.Validate(context.Background(), o, now), domain.ErrInvalidOrder)
}

func TestMissingPriceBounds(t *testing.T) {
	f := newFixture(t)
	o := f.signedOrder(t, func(o *domain.Order) { o.StartPrice = nil })
	require.ErrorIs(t, f.v.Validate(context.Background(), o, now), domain.ErrInvalidOrder)
}

func TestDisallowedCurrency(t *testing.T) {
	f := newFixture(t)
	o := f.signedOrder(t, func(o *domain.Order) {
		o.ExecParams.Currency = common.HexToAddress("0xbad0000000000000000000000000000000000bad")
	})
	require.ErrorIs(t, f.v.Validate(context.Background(), o, now), domain.ErrUnsupportedExecParams)
}

func TestDisallowedComplication(t *testing.T) {
	f := newFixture(t)
	o := f.signedOrder(t, func(o *domain.Order) {
		o.ExecParams.Complication = common.HexToAddress("0xbad0000000000000000000000000000000000bad")
	})
	require.ErrorIs(t, f.v.Validate(context.Background(), o, now), domain.ErrUnsupportedExecParams)
}

func TestConsumedNonce(t *testing.T) {
	f := newFixture(t)
	o := f.signedOrder(t, nil)
	require.NoError(t, f.nonces.Invalidate(context.Background(), o.Signer, o.Nonce))
	require.ErrorIs(t, f.v.Validate(context.Background(), o, now), domain.ErrNonceInactive)
}

func TestNonceBelowCancelFloor(t *testing.T) {
	f := newFixture(t)
	o := f.signedOrder(t, func(o *domain.Order) { o.Nonce = 5 })
	require.NoError(t, f.nonces.CancelAll(context.Background(), o.Signer, 10))
	require.ErrorIs(t, f.v.Validate(context.Background(), o, now), domain.ErrNonceInactive)
}

func TestTamperedOrderRejected(t *testing.T) {
	f := newFixture(t)
	o := f.signedOrder(t, nil)
	o.StartPrice = big.NewInt(1) // changed after signing
	require.ErrorIs(t, f.v.Validate(context.Background(), o, now), domain.ErrInvalidSignature)
}

func TestForeignSignatureRejected(t *testing.T) {
	f := newFixture(t)
	o := f.signedOrder(t, nil)
	o.Signer = common.HexToAddress("0x1111000000000000000000000000000000000011")
	o.ID = domain.DeriveOrderID(o.Signer, o.Nonce, o.ChainID)
	require.ErrorIs(t, f.v.Validate(context.Background(), o, now), domain.ErrInvalidSignature)
}
