package ledger

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openmatch/nftx/internal/domain"
)

type balanceKey struct {
	bucket    domain.FeeBucket
	recipient common.Address
	currency  common.Address
}

// TreasuryLedger implements domain.TreasuryStore with an in-memory balance
// map.
type TreasuryLedger struct {
	mu       sync.Mutex
	balances map[balanceKey]*big.Int
}

// NewTreasuryLedger creates an empty TreasuryLedger.
func NewTreasuryLedger() *TreasuryLedger {
	return &TreasuryLedger{balances: make(map[balanceKey]*big.Int)}
}

// Credit adds amount to the (bucket, recipient, currency) balance.
func (l *TreasuryLedger) Credit(_ context.Context, bucket domain.FeeBucket, recipient, currency common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := balanceKey{bucket, recipient, currency}
	bal, ok := l.balances[key]
	if !ok {
		bal = new(big.Int)
		l.balances[key] = bal
	}
	bal.Add(bal, amount)
	return nil
}

// Debit removes amount from the balance, failing when it would go negative.
func (l *TreasuryLedger) Debit(_ context.Context, bucket domain.FeeBucket, recipient, currency common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	bal, ok := l.balances[balanceKey{bucket, recipient, currency}]
	if !ok || bal.Cmp(amount) < 0 {
		return fmt.Errorf("ledger: debit %s from %s exceeds balance", amount, recipient.Hex())
	}
	bal.Sub(bal, amount)
	return nil
}

// Balance reads the accrued balance; absent entries read as zero.
func (l *TreasuryLedger) Balance(_ context.Context, bucket domain.FeeBucket, recipient, currency common.Address) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if bal, ok := l.balances[balanceKey{bucket, recipient, currency}]; ok {
		return new(big.Int).Set(bal), nil
	}
	return new(big.Int), nil
}

// Drain zeroes the balance and returns the prior amount, or ErrNoFeesToClaim
// when there is nothing to withdraw.
func (l *TreasuryLedger) Drain(_ context.Context, bucket domain.FeeBucket, recipient, currency common.Address) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := balanceKey{bucket, recipient, currency}
	bal, ok := l.balances[key]
	if !ok || bal.Sign() == 0 {
		return nil, domain.ErrNoFeesToClaim
	}

	out := new(big.Int).Set(bal)
	bal.SetInt64(0)
	return out, nil
}
