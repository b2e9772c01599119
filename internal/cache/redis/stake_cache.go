package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/openmatch/nftx/internal/domain"
)

// stakeTTL keeps tier entries short-lived so the curator-fee discount tracks
// current stake rather than stake at order-signing time.
const stakeTTL = 2 * time.Minute

// StakeLevelCache implements domain.StakeLevelCache. One string key per user
// at "stake:{address}" holding the numeric tier, expiring after stakeTTL.
type StakeLevelCache struct {
	rdb *redis.Client
}

// NewStakeLevelCache creates a StakeLevelCache backed by the given Client.
func NewStakeLevelCache(c *Client) *StakeLevelCache {
	return &StakeLevelCache{rdb: c.Underlying()}
}

func stakeKey(user common.Address) string {
	return "stake:" + strings.ToLower(user.Hex())
}

// Set stores a user's stake tier.
func (sc *StakeLevelCache) Set(ctx context.Context, user common.Address, level domain.StakeLevel) error {
	if err := sc.rdb.Set(ctx, stakeKey(user), int(level), stakeTTL).Err(); err != nil {
		return fmt.Errorf("redis: set stake level %s: %w", user.Hex(), err)
	}
	return nil
}

// Get returns a user's cached tier, domain.ErrNotFound when absent or expired.
func (sc *StakeLevelCache) Get(ctx context.Context, user common.Address) (domain.StakeLevel, error) {
	raw, err := sc.rdb.Get(ctx, stakeKey(user)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, domain.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("redis: get stake level %s: %w", user.Hex(), err)
	}

	level, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("redis: parse stake level %q: %w", raw, err)
	}
	return domain.StakeLevel(level), nil
}

var _ domain.StakeLevelCache = (*StakeLevelCache)(nil)
