package crypto

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/openmatch/nftx/internal/domain"
)

const testSignerKeyHex = "4c0883a69102937d6231471b5dbb6204fe51296170827936ea5cce4b76994b0f"

func testOrder() domain.Order {
	return domain.Order{
		ChainID:        1,
		IsSellOrder:    true,
		NumItems:       2,
		StartPrice:     big.NewInt(1_000_000),
		EndPrice:       big.NewInt(500_000),
		StartTime:      1_700_000_000,
		EndTime:        1_700_086_400,
		MinBpsToSeller: 9000,
		Nonce:          7,
		NFTs: []domain.OrderItem{
			{
				Collection: common.HexToAddress("0x1111111111111111111111111111111111111111"),
				Tokens: []domain.TokenInfo{
					{TokenID: big.NewInt(42), NumTokens: big.NewInt(1)},
					{TokenID: big.NewInt(43), NumTokens: big.NewInt(1)},
				},
			},
		},
		ExecParams: domain.ExecParams{
			Complication: common.HexToAddress("0x2222222222222222222222222222222222222222"),
			Currency:     common.HexToAddress("0x3333333333333333333333333333333333333333"),
		},
	}
}

func TestSignAndVerifyRoundTrip(t *testing.T) {
	codec := NewOrderCodec(1, common.HexToAddress("0xabc0000000000000000000000000000000000abc"))
	signer, err := NewSigner(testSignerKeyHex, codec)
	require.NoError(t, err)

	order := testOrder()
	order.Signer = signer.Address()

	sig, err := signer.SignOrder(order)
	require.NoError(t, err)
	require.Len(t, sig, 65)
	order.Sig = sig

	v := NewVerifier(codec)
	require.True(t, v.VerifyOrder(order))
}

func TestVerifyRejectsMutatedFields(t *testing.T) {
	codec := NewOrderCodec(1, common.HexToAddress("0xabc0000000000000000000000000000000000abc"))
	signer, err := NewSigner(testSignerKeyHex, codec)
	require.NoError(t, err)

	base := testOrder()
	base.Signer = signer.Address()
	sig, err := signer.SignOrder(base)
	require.NoError(t, err)
	base.Sig = sig

	v := NewVerifier(codec)

	mutations := map[string]func(o *domain.Order){
		"flip side":        func(o *domain.Order) { o.IsSellOrder = false },
		"num items":        func(o *domain.Order) { o.NumItems = 3 },
		"start price":      func(o *domain.Order) { o.StartPrice = big.NewInt(999) },
		"end price":        func(o *domain.Order) { o.EndPrice = big.NewInt(1) },
		"start time":       func(o *domain.Order) { o.StartTime++ },
		"end time":         func(o *domain.Order) { o.EndTime++ },
		"min bps":          func(o *domain.Order) { o.MinBpsToSeller = 1 },
		"nonce":            func(o *domain.Order) { o.Nonce++ },
		"currency":         func(o *domain.Order) { o.ExecParams.Currency = common.HexToAddress("0x04") },
		"complication":     func(o *domain.Order) { o.ExecParams.Complication = common.HexToAddress("0x05") },
		"private buyer":    func(o *domain.Order) { o.ExtraParams.Buyer = common.HexToAddress("0x06") },
		"token id":         func(o *domain.Order) { o.NFTs[0].Tokens[0].TokenID = big.NewInt(99) },
		"token quantity":   func(o *domain.Order) { o.NFTs[0].Tokens[0].NumTokens = big.NewInt(5) },
		"collection":       func(o *domain.Order) { o.NFTs[0].Collection = common.HexToAddress("0x07") },
		"reordered tokens": func(o *domain.Order) { o.NFTs[0].Tokens[0], o.NFTs[0].Tokens[1] = o.NFTs[0].Tokens[1], o.NFTs[0].Tokens[0] },
	}

	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			o := base
			// Deep-copy the nested slices so mutations stay local.
			o.NFTs = make([]domain.OrderItem, len(base.NFTs))
			for i, it := range base.NFTs {
				tokens := make([]domain.TokenInfo, len(it.Tokens))
				for j, tok := range it.Tokens {
					tokens[j] = domain.TokenInfo{
						TokenID:   new(big.Int).Set(tok.TokenID),
						NumTokens: new(big.Int).Set(tok.NumTokens),
					}
				}
				o.NFTs[i] = domain.OrderItem{Collection: it.Collection, Tokens: tokens}
			}
			mutate(&o)
			require.False(t, v.VerifyOrder(o))
		})
	}
}

func TestVerifyRejectsMalformedSignatures(t *testing.T) {
	codec := NewOrderCodec(1, common.HexToAddress("0xabc0000000000000000000000000000000000abc"))
	v := NewVerifier(codec)

	order := testOrder()
	order.Signer = common.HexToAddress("0x08")

	for _, sig := range [][]byte{nil, {}, make([]byte, 64), make([]byte, 65), make([]byte, 66)} {
		order.Sig = sig
		require.False(t, v.VerifyOrder(order))
	}

	// Garbage v byte.
	bad := make([]byte, 65)
	bad[64] = 5
	order.Sig = bad
	require.False(t, v.VerifyOrder(order))
}

func TestDomainSeparationAcrossDeployments(t *testing.T) {
	codecA := NewOrderCodec(1, common.HexToAddress("0x0a"))
	codecB := NewOrderCodec(1, common.HexToAddress("0x0b"))
	codecC := NewOrderCodec(137, common.HexToAddress("0x0a"))

	signer, err := NewSigner(testSignerKeyHex, codecA)
	require.NoError(t, err)

	order := testOrder()
	order.Signer = signer.Address()
	sig, err := signer.SignOrder(order)
	require.NoError(t, err)
	order.Sig = sig

	require.True(t, NewVerifier(codecA).VerifyOrder(order))
	// Same order replayed against another contract or chain must not verify.
	require.False(t, NewVerifier(codecB).VerifyOrder(order))
	require.False(t, NewVerifier(codecC).VerifyOrder(order))
}

func TestDigestIsDeterministic(t *testing.T) {
	codec := NewOrderCodec(1, common.HexToAddress("0xabc0000000000000000000000000000000000abc"))
	order := testOrder()
	require.Equal(t, codec.Digest(order), codec.Digest(order))
}
