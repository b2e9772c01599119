package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies NFTX_* environment variable overrides, and
// returns the final Config. The caller should invoke Config.Validate after
// Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env if present; a missing file is fine.
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// applyEnvOverrides reads well-known NFTX_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Wallet.PrivateKey, "NFTX_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "NFTX_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "NFTX_WALLET_KEY_PASSWORD")

	setStr(&cfg.Chain.RPCURL, "NFTX_CHAIN_RPC_URL")
	setUint64(&cfg.Chain.ChainID, "NFTX_CHAIN_ID")

	setStr(&cfg.Exchange.ContractAddress, "NFTX_EXCHANGE_CONTRACT_ADDRESS")
	setStr(&cfg.Exchange.EscrowAddress, "NFTX_EXCHANGE_ESCROW_ADDRESS")
	setStr(&cfg.Exchange.CuratorAddress, "NFTX_EXCHANGE_CURATOR_ADDRESS")

	setUint64(&cfg.Fees.CuratorFeeBps, "NFTX_FEES_CURATOR_FEE_BPS")
	setStr(&cfg.Fees.RoyaltyEngineAddr, "NFTX_FEES_ROYALTY_ENGINE_ADDR")
	setStr(&cfg.Fees.StakerAddr, "NFTX_FEES_STAKER_ADDR")

	setStringSlice(&cfg.AllowList.Currencies, "NFTX_ALLOWLIST_CURRENCIES")
	setStringSlice(&cfg.AllowList.Complications, "NFTX_ALLOWLIST_COMPLICATIONS")

	setStr(&cfg.Postgres.DSN, "NFTX_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "NFTX_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "NFTX_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "NFTX_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "NFTX_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "NFTX_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "NFTX_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "NFTX_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "NFTX_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "NFTX_POSTGRES_RUN_MIGRATIONS")

	setStr(&cfg.Redis.Addr, "NFTX_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "NFTX_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "NFTX_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "NFTX_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "NFTX_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "NFTX_REDIS_TLS_ENABLED")

	setBool(&cfg.S3.Enabled, "NFTX_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "NFTX_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "NFTX_S3_REGION")
	setStr(&cfg.S3.Bucket, "NFTX_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "NFTX_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "NFTX_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "NFTX_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "NFTX_S3_FORCE_PATH_STYLE")

	setBool(&cfg.Server.Enabled, "NFTX_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "NFTX_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "NFTX_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "NFTX_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimitPerMin, "NFTX_SERVER_RATE_LIMIT_PER_MIN")

	setStr(&cfg.Notify.WebhookURL, "NFTX_NOTIFY_WEBHOOK_URL")
	setStr(&cfg.Notify.MinPriceWei, "NFTX_NOTIFY_MIN_PRICE_WEI")
	setInt(&cfg.Notify.TimeoutSecond, "NFTX_NOTIFY_TIMEOUT_SECONDS")

	setStr(&cfg.LogLevel, "NFTX_LOG_LEVEL")
}

// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
