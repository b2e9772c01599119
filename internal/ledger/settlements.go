package ledger

import (
	"context"
	"sync"

	"github.com/openmatch/nftx/internal/domain"
)

// SettlementLog implements domain.SettlementStore in memory, newest first.
type SettlementLog struct {
	mu      sync.RWMutex
	entries []domain.Settlement
	byID    map[string]int
}

// NewSettlementLog creates an empty SettlementLog.
func NewSettlementLog() *SettlementLog {
	return &SettlementLog{byID: make(map[string]int)}
}

// Insert appends a settlement record.
func (l *SettlementLog) Insert(_ context.Context, s domain.Settlement) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.byID[s.ID] = len(l.entries)
	l.entries = append(l.entries, s)
	return nil
}

// Delete removes a settlement record, or ErrNotFound.
func (l *SettlementLog) Delete(_ context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx, ok := l.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	l.entries = append(l.entries[:idx], l.entries[idx+1:]...)
	delete(l.byID, id)
	for i := idx; i < len(l.entries); i++ {
		l.byID[l.entries[i].ID] = i
	}
	return nil
}

// GetByID returns a settlement by id, or ErrNotFound.
func (l *SettlementLog) GetByID(_ context.Context, id string) (domain.Settlement, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	idx, ok := l.byID[id]
	if !ok {
		return domain.Settlement{}, domain.ErrNotFound
	}
	return l.entries[idx], nil
}

// ListRecent returns up to opts.Limit settlements, most recent first.
func (l *SettlementLog) ListRecent(_ context.Context, opts domain.ListOpts) ([]domain.Settlement, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	limit := opts.Limit
	if limit <= 0 || limit > len(l.entries) {
		limit = len(l.entries)
	}

	out := make([]domain.Settlement, 0, limit)
	for i := len(l.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, l.entries[i])
	}
	return out, nil
}
