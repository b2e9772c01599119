package handler

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openmatch/nftx/internal/domain"
)

func TestOrderFromWireDerivesIDAndDecodesSig(t *testing.T) {
	wire := orderWire{
		ChainID:     1,
		IsSellOrder: true,
		Signer:      "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266",
		NumItems:    1,
		StartPrice:  "1000000",
		EndPrice:    "900000",
		StartTime:   100,
		EndTime:     200,
		Nonce:       7,
		NFTs: []itemWire{{
			Collection: "0x5FbDB2315678afecb367f032d93F642f64180aa3",
			Tokens:     []tokenWire{{TokenID: "42", NumTokens: "1"}},
		}},
		Complication: "0x0000000000000000000000000000000000000001",
		Currency:     "0x0000000000000000000000000000000000000002",
		Sig:          "0xabcd",
	}

	o, err := orderFromWire(wire)
	require.NoError(t, err)
	require.Equal(t, domain.DeriveOrderID(o.Signer, 7, 1), o.ID)
	require.Equal(t, []byte{0xab, 0xcd}, o.Sig)
	require.Equal(t, "1000000", o.StartPrice.String())
	require.Len(t, o.NFTs, 1)
	require.Equal(t, "42", o.NFTs[0].Tokens[0].TokenID.String())
}

func TestOrderFromWireRejectsBadAmounts(t *testing.T) {
	_, err := orderFromWire(orderWire{StartPrice: "not-a-number"})
	require.Error(t, err)

	_, err = orderFromWire(orderWire{StartPrice: "-5"})
	require.Error(t, err)
}

func TestOrderFromWireRejectsBadSigHex(t *testing.T) {
	_, err := orderFromWire(orderWire{StartPrice: "1", EndPrice: "1", Sig: "0xzz"})
	require.Error(t, err)
}

func TestItemsRoundTrip(t *testing.T) {
	items, err := itemsFromWire([]itemWire{
		{Collection: "0x5FbDB2315678afecb367f032d93F642f64180aa3", Tokens: []tokenWire{{TokenID: "1", NumTokens: "1"}, {TokenID: "2", NumTokens: "1"}}},
		{Collection: "0x0000000000000000000000000000000000000009"},
	})
	require.NoError(t, err)

	back := itemsToWire(items)
	require.Len(t, back, 2)
	require.Len(t, back[0].Tokens, 2)
	require.Equal(t, "2", back[0].Tokens[1].TokenID)
	require.Empty(t, back[1].Tokens)
}

func TestParseListOptsDefaultsAndClamps(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/settlements", nil)
	opts := parseListOpts(r)
	require.Equal(t, 50, opts.Limit)
	require.Zero(t, opts.Offset)
	require.Nil(t, opts.Since)

	r = httptest.NewRequest("GET", "/api/settlements?limit=9999&offset=20&since=2026-01-01T00:00:00Z", nil)
	opts = parseListOpts(r)
	require.Equal(t, 500, opts.Limit)
	require.Equal(t, 20, opts.Offset)
	require.NotNil(t, opts.Since)
	require.Equal(t, 2026, opts.Since.Year())
}
