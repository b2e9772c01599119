package ledger

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openmatch/nftx/internal/domain"
)

// FeeSplitTable implements domain.FeeSplitStore in memory.
type FeeSplitTable struct {
	mu     sync.RWMutex
	splits map[common.Address]domain.FeeSplit
}

// NewFeeSplitTable creates an empty FeeSplitTable.
func NewFeeSplitTable() *FeeSplitTable {
	return &FeeSplitTable{splits: make(map[common.Address]domain.FeeSplit)}
}

// Get returns the configured split for a collection, or ErrNotFound.
func (t *FeeSplitTable) Get(_ context.Context, collection common.Address) (domain.FeeSplit, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	split, ok := t.splits[collection]
	if !ok {
		return domain.FeeSplit{}, domain.ErrNotFound
	}
	return split, nil
}

// Upsert creates or replaces a collection's split.
func (t *FeeSplitTable) Upsert(_ context.Context, split domain.FeeSplit) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.splits[split.Collection] = split
	return nil
}
