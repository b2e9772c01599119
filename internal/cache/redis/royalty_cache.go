package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/openmatch/nftx/internal/domain"
)

// royaltyTTL bounds staleness of cached royalty resolutions. Creators change
// their on-chain royalty config rarely, so an hour is acceptable drift.
const royaltyTTL = time.Hour

// RoyaltyCache implements domain.RoyaltyCache. Resolutions live at
// "royalty:{collection}:{tokenID}" as JSON; a per-collection index set makes
// Invalidate cheap without a keyspace scan.
type RoyaltyCache struct {
	rdb *redis.Client
}

// NewRoyaltyCache creates a RoyaltyCache backed by the given Client.
func NewRoyaltyCache(c *Client) *RoyaltyCache {
	return &RoyaltyCache{rdb: c.Underlying()}
}

func royaltyKey(collection common.Address, tokenID string) string {
	return "royalty:" + strings.ToLower(collection.Hex()) + ":" + tokenID
}

func royaltyIndexKey(collection common.Address) string {
	return "royalty:idx:" + strings.ToLower(collection.Hex())
}

type royaltyEntry struct {
	Recipient  string `json:"recipient"`
	Collection string `json:"collection"`
	Amount     string `json:"amount"`
}

// Set stores a resolution and records the key in the collection index.
func (rc *RoyaltyCache) Set(ctx context.Context, collection common.Address, tokenID string, allocs []domain.FeeAllocation) error {
	entries := make([]royaltyEntry, 0, len(allocs))
	for _, a := range allocs {
		entries = append(entries, royaltyEntry{
			Recipient:  strings.ToLower(a.Recipient.Hex()),
			Collection: strings.ToLower(a.Collection.Hex()),
			Amount:     a.Amount.String(),
		})
	}
	payload, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("redis: encode royalty entry: %w", err)
	}

	key := royaltyKey(collection, tokenID)
	pipe := rc.rdb.Pipeline()
	pipe.Set(ctx, key, payload, royaltyTTL)
	pipe.SAdd(ctx, royaltyIndexKey(collection), key)
	pipe.Expire(ctx, royaltyIndexKey(collection), royaltyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set royalty %s/%s: %w", collection.Hex(), tokenID, err)
	}
	return nil
}

// Get returns a cached resolution, domain.ErrNotFound when absent.
func (rc *RoyaltyCache) Get(ctx context.Context, collection common.Address, tokenID string) ([]domain.FeeAllocation, error) {
	raw, err := rc.rdb.Get(ctx, royaltyKey(collection, tokenID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get royalty %s/%s: %w", collection.Hex(), tokenID, err)
	}

	var entries []royaltyEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, fmt.Errorf("redis: decode royalty %s/%s: %w", collection.Hex(), tokenID, err)
	}

	allocs := make([]domain.FeeAllocation, 0, len(entries))
	for _, e := range entries {
		amount, ok := new(big.Int).SetString(e.Amount, 10)
		if !ok {
			return nil, fmt.Errorf("redis: malformed royalty amount %q", e.Amount)
		}
		allocs = append(allocs, domain.FeeAllocation{
			Recipient:  common.HexToAddress(e.Recipient),
			Collection: common.HexToAddress(e.Collection),
			Amount:     amount,
		})
	}
	return allocs, nil
}

// Invalidate drops every cached resolution for a collection, used when its
// fee split or on-chain royalty config changes.
func (rc *RoyaltyCache) Invalidate(ctx context.Context, collection common.Address) error {
	idx := royaltyIndexKey(collection)
	keys, err := rc.rdb.SMembers(ctx, idx).Result()
	if err != nil {
		return fmt.Errorf("redis: royalty index %s: %w", collection.Hex(), err)
	}
	if len(keys) == 0 {
		return nil
	}

	pipe := rc.rdb.Pipeline()
	pipe.Del(ctx, keys...)
	pipe.Del(ctx, idx)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: invalidate royalties %s: %w", collection.Hex(), err)
	}
	return nil
}

var _ domain.RoyaltyCache = (*RoyaltyCache)(nil)
