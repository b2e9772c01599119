package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// StakeLevelCache caches staking-tier lookups. Entries expire quickly so the
// discount tracks current stake, not stake at order-signing time.
type StakeLevelCache interface {
	Set(ctx context.Context, user common.Address, level StakeLevel) error
	Get(ctx context.Context, user common.Address) (StakeLevel, error)
}

// RoyaltyCache caches external royalty-engine resolutions per
// (collection, tokenId) at a reference price.
type RoyaltyCache interface {
	Set(ctx context.Context, collection common.Address, tokenID string, allocs []FeeAllocation) error
	Get(ctx context.Context, collection common.Address, tokenID string) ([]FeeAllocation, error)
	Invalidate(ctx context.Context, collection common.Address) error
}

// LockManager provides distributed locking, used to serialize claims per
// recipient across daemon replicas.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// RateLimiter bounds request rates per key, used by the HTTP API middleware.
type RateLimiter interface {
	// Allow reports whether a request for key is permitted under the limit
	// and counts it when it is.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// StreamMessage is a single entry read back from a durable event stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus publishes settlement and cancellation events, both ephemerally
// (pub/sub) and durably (stream).
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
