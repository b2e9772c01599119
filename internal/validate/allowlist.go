package validate

import (
	"context"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openmatch/nftx/internal/domain"
)

// AllowList is the config-driven registry of settlement currencies and
// matching policies orders may reference. Governance edits go through Allow
// and Revoke at runtime.
type AllowList struct {
	mu            sync.RWMutex
	currencies    map[common.Address]bool
	complications map[common.Address]bool
}

// NewAllowList builds the registry from hex address lists, typically straight
// from configuration.
func NewAllowList(currencies, complications []string) *AllowList {
	al := &AllowList{
		currencies:    make(map[common.Address]bool, len(currencies)),
		complications: make(map[common.Address]bool, len(complications)),
	}
	for _, c := range currencies {
		al.currencies[common.HexToAddress(strings.TrimSpace(c))] = true
	}
	for _, c := range complications {
		al.complications[common.HexToAddress(strings.TrimSpace(c))] = true
	}
	return al
}

// IsCurrencyAllowed reports whether orders may settle in this currency.
func (al *AllowList) IsCurrencyAllowed(_ context.Context, currency common.Address) (bool, error) {
	al.mu.RLock()
	defer al.mu.RUnlock()
	return al.currencies[currency], nil
}

// IsComplicationAllowed reports whether this matching policy is supported.
func (al *AllowList) IsComplicationAllowed(_ context.Context, complication common.Address) (bool, error) {
	al.mu.RLock()
	defer al.mu.RUnlock()
	return al.complications[complication], nil
}

// AllowCurrency adds a settlement currency.
func (al *AllowList) AllowCurrency(currency common.Address) {
	al.mu.Lock()
	al.currencies[currency] = true
	al.mu.Unlock()
}

// RevokeCurrency removes a settlement currency. Resting orders naming it
// fail validation from that point on.
func (al *AllowList) RevokeCurrency(currency common.Address) {
	al.mu.Lock()
	delete(al.currencies, currency)
	al.mu.Unlock()
}

// AllowComplication adds a matching policy.
func (al *AllowList) AllowComplication(complication common.Address) {
	al.mu.Lock()
	al.complications[complication] = true
	al.mu.Unlock()
}

// RevokeComplication removes a matching policy.
func (al *AllowList) RevokeComplication(complication common.Address) {
	al.mu.Lock()
	delete(al.complications, complication)
	al.mu.Unlock()
}

var _ domain.AllowListRegistry = (*AllowList)(nil)
