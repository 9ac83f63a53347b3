// Package config defines the single enumerated configuration struct for the
// sniper core (§6 of the core spec, design note in §9: "replace loose option
// bags with a single enumerated configuration struct"). It is loaded once in
// main via Load and passed down to every service constructor — there is no
// package-level lookup.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config is the root configuration object. Every field here corresponds to
// a row of the §6 effect table.
type Config struct {
	Environment string `mapstructure:"environment" validate:"required,oneof=development staging production"`

	Log      LogConfig      `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Solana   SolanaConfig   `mapstructure:"solana"`
	Vault    VaultConfig    `mapstructure:"vault"`
	Trading  TradingConfig  `mapstructure:"trading"`
	Sniper   SniperConfig   `mapstructure:"sniper"`
	Meteora  MeteoraConfig  `mapstructure:"meteora"`
	Position PositionConfig `mapstructure:"position"`
	Breaker  BreakerConfig  `mapstructure:"circuit_breaker"`
	Price    PriceFeedConfig `mapstructure:"price_feed"`
}

// PriceFeedConfig governs the Price Feed's caches, rate limiter, and
// upstream sources (§4.6).
type PriceFeedConfig struct {
	Tier1Size          int           `mapstructure:"tier1_size" validate:"min=1"`
	Tier1TTL           time.Duration `mapstructure:"tier1_ttl"`
	Tier2TTL           time.Duration `mapstructure:"tier2_ttl"`
	RateLimitPerMinute float64       `mapstructure:"rate_limit_per_minute" validate:"min=1"`
	RateBurst          int           `mapstructure:"rate_burst" validate:"min=1"`
	RetryAttempts      int           `mapstructure:"retry_attempts" validate:"min=0"`
	BaseRetryDelay     time.Duration `mapstructure:"base_retry_delay"`
	DexscreenerBaseURL string        `mapstructure:"dexscreener_base_url" validate:"required,url"`
}

// LogConfig controls the zap logger built in internal/logging.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error fatal"`
	Format string `mapstructure:"format" validate:"required,oneof=json text"`
}

// DatabaseConfig addresses the persistent relational store (out of scope
// collaborator; only connection shape lives here).
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn" validate:"required"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"min=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"min=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig addresses the shared K/V store (out of scope collaborator).
type RedisConfig struct {
	Addr     string `mapstructure:"addr" validate:"required"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"min=0,max=15"`
}

// SolanaConfig controls RPC/Jito connectivity used by the router adapter.
type SolanaConfig struct {
	RPCEndpoint       string `mapstructure:"rpc_endpoint" validate:"required,url"`
	JitoEndpoint      string `mapstructure:"jito_endpoint"`
	JitoEnabled       bool   `mapstructure:"jito_enabled"`
	JitoTipLamports   uint64 `mapstructure:"jito_tip_lamports" validate:"min=0"`
	RequestsPerSecond int    `mapstructure:"requests_per_second" validate:"min=1"`
	GeyserEndpoint    string `mapstructure:"geyser_endpoint"`
	WSEndpoints       []string `mapstructure:"ws_endpoints"`
}

// VaultConfig governs Credential Vault behavior (§4.1).
type VaultConfig struct {
	ArgonMemoryKiB       uint32        `mapstructure:"argon_memory_kib" validate:"min=65536"`
	ArgonIterations      uint32        `mapstructure:"argon_iterations" validate:"min=3"`
	ArgonParallelism     uint8         `mapstructure:"argon_parallelism" validate:"min=4"`
	StrictSessionTTL     time.Duration `mapstructure:"strict_session_ttl"`
	ReuseSessionTTL      time.Duration `mapstructure:"reuse_session_ttl"`
	PasswordReuseTTLSec  int           `mapstructure:"password_reuse_ttl_seconds" validate:"min=1"`
}

// TradingConfig governs the Trade Executor (§4.7).
type TradingConfig struct {
	CommissionBps     int     `mapstructure:"commission_bps" validate:"min=0"`
	PlatformFeeBps    int     `mapstructure:"platform_fee_bps" validate:"min=0"`
	FeeAccount        string  `mapstructure:"fee_account"`
	MinCommissionUSD  float64 `mapstructure:"min_commission_usd" validate:"min=0"`
	SlippageBpsDefault int    `mapstructure:"slippage_bps_default" validate:"min=0"`
	// SOLUSDPrice is a coarse, operator-supplied SOL/USD reference rate used
	// only to express commission_usd in dollar terms. The core has no USD
	// price oracle (Price Feed and the router capability are both
	// SOL-denominated, per §4.6/§9) so this is not refreshed automatically;
	// operators update it out of band.
	SOLUSDPrice float64 `mapstructure:"sol_usd_price" validate:"min=0"`
}

// PlatformFeeEnabled reports whether both platform-fee inputs are present,
// matching §4.7's "if either is absent platform fee is disabled".
func (t TradingConfig) PlatformFeeEnabled() bool {
	return t.PlatformFeeBps > 0 && t.FeeAccount != ""
}

// SniperConfig governs the Source Manager / pool-ingestion pipeline (§4.4).
type SniperConfig struct {
	EnabledDEXs         []string      `mapstructure:"enabled_dexs" validate:"required,min=1"`
	DuplicateWindow     time.Duration `mapstructure:"duplicate_window"`
	LatencyWarn         time.Duration `mapstructure:"latency_warn"`
	ReconnectBaseDelay  time.Duration `mapstructure:"reconnect_base_delay"`
	ReconnectMaxDelay   time.Duration `mapstructure:"reconnect_max_delay"`
	ReconnectMaxAttempts int          `mapstructure:"reconnect_max_attempts" validate:"min=1"`
}

// MeteoraConfig governs the anti-sniper admission filter (§4.4 step 3).
type MeteoraConfig struct {
	MaxTotalFeeBps     uint64  `mapstructure:"max_total_fee_bps" validate:"min=0"`
	MaxWaitTimeSec     int64   `mapstructure:"max_wait_time_sec" validate:"min=0"`
	SkipFeeScheduler   bool    `mapstructure:"skip_fee_scheduler"`
	SkipRateLimiter    bool    `mapstructure:"skip_rate_limiter"`
	SkipAlphaVault     bool    `mapstructure:"skip_alpha_vault"`
	AllowUnknownConfig bool    `mapstructure:"allow_unknown_config"`
	FilterUnsafe       bool    `mapstructure:"filter_unsafe_meteora"`
	TypicalSnipeAmount float64 `mapstructure:"typical_snipe_amount_sol" validate:"min=0"`
}

// PositionConfig governs the Position Monitor and Exit Executor (§4.8, §4.9).
type PositionConfig struct {
	CheckInterval      time.Duration `mapstructure:"check_interval"`
	MaxConcurrentChecks int          `mapstructure:"max_concurrent_checks" validate:"min=1"`
	MaxExitAttempts    int           `mapstructure:"max_exit_attempts" validate:"min=1"`
	ExitSlippageBps    int           `mapstructure:"exit_slippage_bps" validate:"min=0"`
	ExitPriorityFee    string        `mapstructure:"exit_priority_fee" validate:"oneof=LOW MEDIUM HIGH TURBO"`
	UseJitoExits       bool          `mapstructure:"use_jito_exits"`
	JitoTipLamports    uint64        `mapstructure:"jito_tip_lamports" validate:"min=0"`
}

// BreakerConfig governs circuit breakers shared by the Price Feed and Exit
// Executor (§5, §6).
type BreakerConfig struct {
	FailureThreshold uint32        `mapstructure:"failure_threshold" validate:"min=1"`
	Timeout          time.Duration `mapstructure:"timeout"`
	SuccessThreshold uint32        `mapstructure:"success_threshold" validate:"min=1"`
}

// Load reads configuration from the given path (if non-empty), environment
// variables prefixed SNIPER_, and finally the defaults below, then
// validates the result. Unknown keys in the file fail the unmarshal.
func Load(path string) (*Config, error) {
	v := viper.New()
	applyDefaults(v)

	v.SetEnvPrefix("SNIPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.UnmarshalExact(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", time.Hour)

	v.SetDefault("redis.db", 0)

	v.SetDefault("solana.requests_per_second", 20)
	v.SetDefault("solana.jito_tip_lamports", 100_000)

	v.SetDefault("vault.argon_memory_kib", 65536)
	v.SetDefault("vault.argon_iterations", 3)
	v.SetDefault("vault.argon_parallelism", 4)
	v.SetDefault("vault.strict_session_ttl", 2*time.Minute)
	v.SetDefault("vault.reuse_session_ttl", 15*time.Minute)
	v.SetDefault("vault.password_reuse_ttl_seconds", 900)

	v.SetDefault("trading.commission_bps", 50)
	v.SetDefault("trading.min_commission_usd", 0.05)
	v.SetDefault("trading.slippage_bps_default", 100)
	v.SetDefault("trading.sol_usd_price", 150.0)

	v.SetDefault("sniper.enabled_dexs", []string{"raydium_v4", "raydium_clmm", "orca_whirlpool", "meteora", "pump_fun", "pumpswap"})
	v.SetDefault("sniper.duplicate_window", 5*time.Second)
	v.SetDefault("sniper.latency_warn", 500*time.Millisecond)
	v.SetDefault("sniper.reconnect_base_delay", 5*time.Second)
	v.SetDefault("sniper.reconnect_max_delay", 60*time.Second)
	v.SetDefault("sniper.reconnect_max_attempts", 5)

	v.SetDefault("meteora.max_total_fee_bps", 500)
	v.SetDefault("meteora.max_wait_time_sec", 300)
	v.SetDefault("meteora.filter_unsafe_meteora", true)
	v.SetDefault("meteora.typical_snipe_amount_sol", 0.5)

	v.SetDefault("position.check_interval", 5*time.Second)
	v.SetDefault("position.max_concurrent_checks", 10)
	v.SetDefault("position.max_exit_attempts", 3)
	v.SetDefault("position.exit_slippage_bps", 300)
	v.SetDefault("position.exit_priority_fee", "MEDIUM")
	v.SetDefault("position.jito_tip_lamports", 100_000)

	v.SetDefault("circuit_breaker.failure_threshold", 5)
	v.SetDefault("circuit_breaker.timeout", 60*time.Second)
	v.SetDefault("circuit_breaker.success_threshold", 2)

	v.SetDefault("price_feed.tier1_size", 1000)
	v.SetDefault("price_feed.tier1_ttl", time.Second)
	v.SetDefault("price_feed.tier2_ttl", 60*time.Second)
	v.SetDefault("price_feed.rate_limit_per_minute", 300.0)
	v.SetDefault("price_feed.rate_burst", 300)
	v.SetDefault("price_feed.retry_attempts", 2)
	v.SetDefault("price_feed.base_retry_delay", 200*time.Millisecond)
	v.SetDefault("price_feed.dexscreener_base_url", "https://api.dexscreener.com/latest/dex/tokens")
}
