// Package ledger provides in-memory implementations of the engine's
// persistent stores. They back tests and library embedders that do not run a
// database; the postgres package provides the durable equivalents.
package ledger

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

type nonceKey struct {
	signer common.Address
	nonce  uint64
}

// NonceLedger implements domain.NonceStore with a consumed-set plus a
// per-signer minimum-nonce floor.
type NonceLedger struct {
	mu       sync.RWMutex
	consumed map[nonceKey]struct{}
	minNonce map[common.Address]uint64
}

// NewNonceLedger creates an empty NonceLedger.
func NewNonceLedger() *NonceLedger {
	return &NonceLedger{
		consumed: make(map[nonceKey]struct{}),
		minNonce: make(map[common.Address]uint64),
	}
}

// IsActive reports whether the nonce may still authorize an order.
func (l *NonceLedger) IsActive(_ context.Context, signer common.Address, nonce uint64) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if nonce < l.minNonce[signer] {
		return false, nil
	}
	_, used := l.consumed[nonceKey{signer, nonce}]
	return !used, nil
}

// Invalidate marks a single nonce as consumed. Re-invalidating is a no-op.
func (l *NonceLedger) Invalidate(_ context.Context, signer common.Address, nonce uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.consumed[nonceKey{signer, nonce}] = struct{}{}
	return nil
}

// CancelAll raises the signer's floor. The floor never moves down.
func (l *NonceLedger) CancelAll(_ context.Context, signer common.Address, minNonce uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if minNonce > l.minNonce[signer] {
		l.minNonce[signer] = minNonce
	}
	return nil
}

// MinNonce returns the signer's current floor.
func (l *NonceLedger) MinNonce(_ context.Context, signer common.Address) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.minNonce[signer], nil
}
