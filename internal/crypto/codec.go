// Package crypto provides the canonical EIP-712 order encoding, signature
// creation/verification, and encrypted key storage for the exchange.
package crypto

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/openmatch/nftx/internal/domain"
)

// Domain-separation constants. Changing either invalidates every signed
// order in the wild.
const (
	DomainName    = "OpenMatchExchange"
	DomainVersion = "1"
)

// --------------------------------------------------------------------------
// EIP-712 type hashes (pre-computed keccak256 of the canonical type strings).
// --------------------------------------------------------------------------

var (
	// EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)
	eip712DomainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"),
	)

	// Order(...) with its nested types appended in alphabetical order, per EIP-712.
	orderTypeHash = ethcrypto.Keccak256(
		[]byte("Order(bool isSellOrder,address signer,uint256[] constraints,OrderItem[] nfts,address[] execParams,bytes extraParams)OrderItem(address collection,TokenInfo[] tokens)TokenInfo(uint256 tokenId,uint256 numTokens)"),
	)

	orderItemTypeHash = ethcrypto.Keccak256(
		[]byte("OrderItem(address collection,TokenInfo[] tokens)TokenInfo(uint256 tokenId,uint256 numTokens)"),
	)

	tokenInfoTypeHash = ethcrypto.Keccak256(
		[]byte("TokenInfo(uint256 tokenId,uint256 numTokens)"),
	)
)

// OrderCodec produces the domain-separated digest an order is signed over.
// The digest is a deterministic function of every order field except the
// signature; list ordering is canonical and never normalized here, so two
// orders with reordered items hash differently.
type OrderCodec struct {
	chainID   uint64
	exchange  common.Address
	domainSep []byte // cached, domain is fixed per deployment
}

// NewOrderCodec creates a codec bound to one chain and one deployed exchange
// identity. Orders signed for another chain or deployment never verify.
func NewOrderCodec(chainID uint64, exchange common.Address) *OrderCodec {
	c := &OrderCodec{chainID: chainID, exchange: exchange}
	c.domainSep = ethcrypto.Keccak256(
		concatBytes(
			eip712DomainTypeHash,
			ethcrypto.Keccak256([]byte(DomainName)),
			ethcrypto.Keccak256([]byte(DomainVersion)),
			bigIntTo32Bytes(new(big.Int).SetUint64(chainID)),
			common.LeftPadBytes(exchange.Bytes(), 32),
		),
	)
	return c
}

// ChainID returns the chain the codec is bound to.
func (c *OrderCodec) ChainID() uint64 {
	return c.chainID
}

// DomainSeparator returns the cached EIP-712 domain separator.
func (c *OrderCodec) DomainSeparator() []byte {
	return c.domainSep
}

// Digest computes the 32-byte signing digest of an order:
//
//	keccak256("\x19\x01" || domainSeparator || structHash(order))
func (c *OrderCodec) Digest(o domain.Order) []byte {
	return ethcrypto.Keccak256(
		concatBytes(
			[]byte{0x19, 0x01},
			c.domainSep,
			c.structHash(o),
		),
	)
}

// structHash encodes and hashes an order per EIP-712. Both the maker-order
// shape and the constructed counter-order shape carry the same logical
// fields, so one encoding serves both.
func (c *OrderCodec) structHash(o domain.Order) []byte {
	isSell := big.NewInt(0)
	if o.IsSellOrder {
		isSell = big.NewInt(1)
	}

	return ethcrypto.Keccak256(
		concatBytes(
			orderTypeHash,
			bigIntTo32Bytes(isSell),
			common.LeftPadBytes(o.Signer.Bytes(), 32),
			constraintsHash(o.Constraints()),
			nftsHash(o.NFTs),
			execParamsHash(o.ExecParams),
			ethcrypto.Keccak256(encodeExtraParams(o.ExtraParams)),
		),
	)
}

// constraintsHash hashes the packed numeric tuple. EIP-712 encodes a
// uint256[] as keccak256 of the concatenated 32-byte words.
func constraintsHash(constraints []*big.Int) []byte {
	words := make([][]byte, 0, len(constraints))
	for _, c := range constraints {
		words = append(words, bigIntTo32Bytes(c))
	}
	return ethcrypto.Keccak256(concatBytes(words...))
}

// nftsHash hashes the ordered item list: per-item struct hashes concatenated
// and hashed again, per the EIP-712 array rule.
func nftsHash(items []domain.OrderItem) []byte {
	hashes := make([][]byte, 0, len(items))
	for _, it := range items {
		hashes = append(hashes, ethcrypto.Keccak256(
			concatBytes(
				orderItemTypeHash,
				common.LeftPadBytes(it.Collection.Bytes(), 32),
				tokensHash(it.Tokens),
			),
		))
	}
	return ethcrypto.Keccak256(concatBytes(hashes...))
}

func tokensHash(tokens []domain.TokenInfo) []byte {
	hashes := make([][]byte, 0, len(tokens))
	for _, t := range tokens {
		hashes = append(hashes, ethcrypto.Keccak256(
			concatBytes(
				tokenInfoTypeHash,
				bigIntTo32Bytes(t.TokenID),
				bigIntTo32Bytes(t.NumTokens),
			),
		))
	}
	return ethcrypto.Keccak256(concatBytes(hashes...))
}

func execParamsHash(p domain.ExecParams) []byte {
	return ethcrypto.Keccak256(
		concatBytes(
			common.LeftPadBytes(p.Complication.Bytes(), 32),
			common.LeftPadBytes(p.Currency.Bytes(), 32),
		),
	)
}

// encodeExtraParams abi-encodes the designated-buyer address (zero address
// for public orders), matching the bytes field signed by clients.
func encodeExtraParams(p domain.ExtraParams) []byte {
	return common.LeftPadBytes(p.Buyer.Bytes(), 32)
}

// bigIntTo32Bytes returns a 32-byte big-endian representation of n.
// A nil value encodes as zero so partially-built orders still hash.
func bigIntTo32Bytes(n *big.Int) []byte {
	if n == nil {
		return make([]byte, 32)
	}
	b := n.Bytes()
	if len(b) >= 32 {
		return b[:32]
	}
	padded := make([]byte, 32)
	copy(padded[32-len(b):], b)
	return padded
}

// concatBytes concatenates multiple byte slices into one.
func concatBytes(slices ...[]byte) []byte {
	total := 0
	for _, s := range slices {
		total += len(s)
	}
	buf := make([]byte, 0, total)
	for _, s := range slices {
		buf = append(buf, s...)
	}
	return buf
}
