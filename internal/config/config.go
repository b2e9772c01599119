// Package config defines the top-level configuration for the settlement
// daemon and provides validation helpers.
package config

import (
	"fmt"
	"strings"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by NFTX_* environment variables.
type Config struct {
	Wallet    WalletConfig    `toml:"wallet"`
	Chain     ChainConfig     `toml:"chain"`
	Exchange  ExchangeConfig  `toml:"exchange"`
	Fees      FeesConfig      `toml:"fees"`
	AllowList AllowListConfig `toml:"allowlist"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	LogLevel  string          `toml:"log_level"`
}

// WalletConfig holds the relayer's signing key material.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// ChainConfig holds RPC and chain parameters.
type ChainConfig struct {
	RPCURL  string `toml:"rpc_url"`
	ChainID uint64 `toml:"chain_id"`
}

// ExchangeConfig identifies this deployment's signing domain and accounts.
type ExchangeConfig struct {
	ContractAddress string `toml:"contract_address"`
	EscrowAddress   string `toml:"escrow_address"`
	CuratorAddress  string `toml:"curator_address"`
}

// FeesConfig tunes the fee engine.
type FeesConfig struct {
	CuratorFeeBps     uint64            `toml:"curator_fee_bps"`
	StakeDiscountBps  map[string]uint64 `toml:"stake_discount_bps"`
	RoyaltyEngineAddr string            `toml:"royalty_engine_addr"`
	StakerAddr        string            `toml:"staker_addr"`
}

// AllowListConfig enumerates permitted settlement currencies and matching
// policies.
type AllowListConfig struct {
	Currencies    []string `toml:"currencies"`
	Complications []string `toml:"complications"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the settlement
// archiver.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds HTTP API parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`

	// RateLimitPerMin caps requests per client IP per minute; zero disables.
	RateLimitPerMin int `toml:"rate_limit_per_min"`
}

// NotifyConfig holds webhook notification parameters.
type NotifyConfig struct {
	WebhookURL    string `toml:"webhook_url"`
	MinPriceWei   string `toml:"min_price_wei"`
	TimeoutSecond int    `toml:"timeout_seconds"`
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			RPCURL:  "http://localhost:8545",
			ChainID: 1,
		},
		Fees: FeesConfig{
			CuratorFeeBps: 250,
			StakeDiscountBps: map[string]uint64{
				"bronze":   9000,
				"silver":   8000,
				"gold":     7000,
				"platinum": 6000,
			},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "nftx",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "nftx-settlements",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled: true,
			Port:    8080,
		},
		Notify: NotifyConfig{
			TimeoutSecond: 10,
		},
		LogLevel: "info",
	}
}

// Validate checks the configuration for inconsistencies that would only
// surface later as runtime failures.
func (c *Config) Validate() error {
	if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
		return fmt.Errorf("config: wallet requires private_key or encrypted_key_path")
	}
	if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
		return fmt.Errorf("config: encrypted_key_path set without key_password")
	}
	if c.Chain.RPCURL == "" {
		return fmt.Errorf("config: chain.rpc_url is required")
	}
	if c.Chain.ChainID == 0 {
		return fmt.Errorf("config: chain.chain_id is required")
	}
	if !isHexAddress(c.Exchange.ContractAddress) {
		return fmt.Errorf("config: exchange.contract_address %q is not a valid address", c.Exchange.ContractAddress)
	}
	if !isHexAddress(c.Exchange.EscrowAddress) {
		return fmt.Errorf("config: exchange.escrow_address %q is not a valid address", c.Exchange.EscrowAddress)
	}
	if !isHexAddress(c.Exchange.CuratorAddress) {
		return fmt.Errorf("config: exchange.curator_address %q is not a valid address", c.Exchange.CuratorAddress)
	}
	if c.Fees.CuratorFeeBps > 10000 {
		return fmt.Errorf("config: fees.curator_fee_bps %d exceeds 10000", c.Fees.CuratorFeeBps)
	}
	for tier, bps := range c.Fees.StakeDiscountBps {
		if bps > 10000 {
			return fmt.Errorf("config: fees.stake_discount_bps.%s %d exceeds 10000", tier, bps)
		}
	}
	if len(c.AllowList.Currencies) == 0 {
		return fmt.Errorf("config: allowlist.currencies must not be empty")
	}
	if len(c.AllowList.Complications) == 0 {
		return fmt.Errorf("config: allowlist.complications must not be empty")
	}
	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		return fmt.Errorf("config: server.port %d out of range", c.Server.Port)
	}
	return nil
}

func isHexAddress(s string) bool {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if len(s) != 40 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
