package crypto

import (
	"bytes"
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/openmatch/nftx/internal/domain"
)

// Signer signs order digests with a secp256k1 key. Used by the relayer and
// by client/test code building orders; the engine itself only verifies.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	codec      *OrderCodec
}

// NewSigner creates a Signer from a hex-encoded secp256k1 private key, bound
// to the given codec's domain.
func NewSigner(privateKeyHex string, codec *OrderCodec) (*Signer, error) {
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid private key: %w", err)
	}
	return &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
		codec:      codec,
	}, nil
}

// Address returns the Ethereum address derived from the signer's key.
func (s *Signer) Address() common.Address {
	return s.address
}

// SignOrder computes the order digest and returns the 65-byte r||s||v
// signature with v in {27,28}.
func (s *Signer) SignOrder(o domain.Order) ([]byte, error) {
	digest := s.codec.Digest(o)

	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("crypto: signing order %s: %w", o.ID, err)
	}

	// go-ethereum returns v in {0,1}; signed orders carry v in {27,28}.
	if sig[64] < 27 {
		sig[64] += 27
	}
	return sig, nil
}

// Verifier validates order signatures by public-key recovery over the codec
// digest.
type Verifier struct {
	codec *OrderCodec
}

// NewVerifier creates a Verifier bound to the given codec's domain.
func NewVerifier(codec *OrderCodec) *Verifier {
	return &Verifier{codec: codec}
}

// VerifyOrder reports whether the order's embedded signature was produced by
// its claimed signer. Malformed signatures return false, never an error:
// callers treat false as "order invalid".
func (v *Verifier) VerifyOrder(o domain.Order) bool {
	return v.Verify(o.Signer, v.codec.Digest(o), o.Sig)
}

// Verify recovers the public key from sig over digest and compares the
// derived address against signer.
func (v *Verifier) Verify(signer common.Address, digest, sig []byte) bool {
	if len(digest) != 32 || len(sig) != 65 {
		return false
	}

	// Normalise v back to {0,1} for recovery.
	rsv := make([]byte, 65)
	copy(rsv, sig)
	if rsv[64] >= 27 {
		rsv[64] -= 27
	}
	if rsv[64] > 1 {
		return false
	}

	pub, err := ethcrypto.SigToPub(digest, rsv)
	if err != nil {
		return false
	}
	recovered := ethcrypto.PubkeyToAddress(*pub)
	return bytes.Equal(recovered.Bytes(), signer.Bytes())
}
