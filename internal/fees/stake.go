package fees

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openmatch/nftx/internal/domain"
)

// StaticTierProvider is a fixed stake-tier table, used when no on-chain
// staking source is configured and in tests.
type StaticTierProvider struct {
	mu     sync.RWMutex
	levels map[common.Address]domain.StakeLevel
}

// NewStaticTierProvider creates a provider over a copy of the given table.
// Unknown addresses report tier 0.
func NewStaticTierProvider(levels map[common.Address]domain.StakeLevel) *StaticTierProvider {
	copied := make(map[common.Address]domain.StakeLevel, len(levels))
	for k, v := range levels {
		copied[k] = v
	}
	return &StaticTierProvider{levels: copied}
}

// GetUserStakeLevel returns the configured tier for user.
func (p *StaticTierProvider) GetUserStakeLevel(_ context.Context, user common.Address) (domain.StakeLevel, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.levels[user], nil
}

// SetLevel updates one address's tier.
func (p *StaticTierProvider) SetLevel(user common.Address, level domain.StakeLevel) {
	p.mu.Lock()
	p.levels[user] = level
	p.mu.Unlock()
}

// CachedTierProvider fronts a StakeTierProvider with a short-TTL cache so a
// batch settlement does not hammer the staking source, while stale entries
// age out fast enough that the discount still tracks current stake.
type CachedTierProvider struct {
	inner  domain.StakeTierProvider
	cache  domain.StakeLevelCache
	logger *slog.Logger
}

// NewCachedTierProvider wraps inner with cache.
func NewCachedTierProvider(inner domain.StakeTierProvider, cache domain.StakeLevelCache, logger *slog.Logger) *CachedTierProvider {
	return &CachedTierProvider{inner: inner, cache: cache, logger: logger}
}

// GetUserStakeLevel reads through the cache. Cache failures are logged and
// fall through to the inner provider; the lookup itself stays authoritative.
func (p *CachedTierProvider) GetUserStakeLevel(ctx context.Context, user common.Address) (domain.StakeLevel, error) {
	level, err := p.cache.Get(ctx, user)
	if err == nil {
		return level, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		p.logger.Warn("stake cache read failed", slog.String("user", user.Hex()), slog.String("error", err.Error()))
	}

	level, err = p.inner.GetUserStakeLevel(ctx, user)
	if err != nil {
		return 0, err
	}
	if cacheErr := p.cache.Set(ctx, user, level); cacheErr != nil {
		p.logger.Warn("stake cache write failed", slog.String("user", user.Hex()), slog.String("error", cacheErr.Error()))
	}
	return level, nil
}
