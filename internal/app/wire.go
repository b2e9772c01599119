package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	s3blob "github.com/openmatch/nftx/internal/blob/s3"
	"github.com/openmatch/nftx/internal/cache/redis"
	"github.com/openmatch/nftx/internal/chain"
	"github.com/openmatch/nftx/internal/config"
	"github.com/openmatch/nftx/internal/crypto"
	"github.com/openmatch/nftx/internal/domain"
	"github.com/openmatch/nftx/internal/store/postgres"
)

// Dependencies bundles the infrastructure the settlement daemon runs on.
// It is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Stores
	NonceStore      domain.NonceStore
	TreasuryStore   domain.TreasuryStore
	FeeSplitStore   domain.FeeSplitStore
	SettlementStore domain.SettlementStore

	// Caches
	StakeCache   domain.StakeLevelCache
	RoyaltyCache domain.RoyaltyCache
	LockManager  domain.LockManager
	RateLimiter  domain.RateLimiter
	SignalBus    domain.SignalBus

	// Chain access
	Caller *chain.Caller
	Assets domain.AssetTransfer
	Admins domain.CollectionAdminResolver

	// Signing
	Codec    *crypto.OrderCodec
	Signer   *crypto.Signer
	Verifier *crypto.Verifier

	// Blob storage, nil unless S3 is enabled
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
}

// Wire constructs all concrete infrastructure implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.NonceStore = postgres.NewNonceStore(pool)
	deps.TreasuryStore = postgres.NewTreasuryStore(pool)
	deps.FeeSplitStore = postgres.NewFeeSplitStore(pool)
	deps.SettlementStore = postgres.NewSettlementStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.StakeCache = redis.NewStakeLevelCache(redisClient)
	deps.RoyaltyCache = redis.NewRoyaltyCache(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)

	// --- Wallet and signing domain ---
	keyHex, err := crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey:    cfg.Wallet.PrivateKey,
		EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      cfg.Wallet.KeyPassword,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: wallet key: %w", err)
	}

	deps.Codec = crypto.NewOrderCodec(cfg.Chain.ChainID, common.HexToAddress(cfg.Exchange.ContractAddress))
	deps.Signer, err = crypto.NewSigner(keyHex, deps.Codec)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: signer: %w", err)
	}
	deps.Verifier = crypto.NewVerifier(deps.Codec)

	// --- Chain access ---
	caller, err := chain.NewCaller(chain.CallerConfig{
		RPCURL:        cfg.Chain.RPCURL,
		PrivateKeyHex: keyHex,
		ChainID:       cfg.Chain.ChainID,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: chain caller: %w", err)
	}
	closers = append(closers, caller.Close)

	deps.Caller = caller
	deps.Assets = chain.NewAssets(caller)
	deps.Admins = chain.NewOwnerAdminResolver(caller)

	// --- S3 blob storage ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
	}

	slog.Default().Debug("dependencies wired",
		slog.Bool("s3_enabled", cfg.S3.Enabled),
		slog.Uint64("chain_id", cfg.Chain.ChainID),
	)
	return deps, cleanup, nil
}
