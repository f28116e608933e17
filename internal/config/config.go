// Package config defines all configuration for the quoting engine.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// every field overridable via POLY_* environment variables, so the headless
// deployment can run from env alone.
package config

import (
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file
// structure; the same keys are accepted as run_cycle request parameters.
type Config struct {
	Paper     bool            `mapstructure:"paper"`
	DryRun    bool            `mapstructure:"dry_run"`
	Wallet    WalletConfig    `mapstructure:"wallet"`
	API       APIConfig       `mapstructure:"api"`
	Quoting   QuotingConfig   `mapstructure:"quoting"`
	Selection SelectionConfig `mapstructure:"selection"`
	Risk      RiskConfig      `mapstructure:"risk"`
	Store     StoreConfig     `mapstructure:"store"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
}

// WalletConfig holds the Ethereum wallet used for signing orders.
// PrivateKey signs L1 (EIP-712) auth and derives L2 API keys.
// FunderAddress is the on-chain address that funds orders (may differ from
// signer if using a proxy).
type WalletConfig struct {
	PrivateKey    string `mapstructure:"private_key"`
	SignatureType int    `mapstructure:"signature_type"`
	FunderAddress string `mapstructure:"funder_address"`
	ChainID       int    `mapstructure:"chain_id"`
}

// APIConfig holds venue endpoints and optional pre-derived L2 credentials.
// If ApiKey/Secret/Passphrase are empty, the engine derives them via L1 auth
// on first use.
type APIConfig struct {
	CLOBBaseURL    string `mapstructure:"clob_base_url"`
	GammaBaseURL   string `mapstructure:"gamma_base_url"`
	RewardsBaseURL string `mapstructure:"rewards_base_url"` // defaults to CLOB base when empty
	OracleBaseURL  string `mapstructure:"oracle_base_url"`
	ApiKey         string `mapstructure:"api_key"`
	Secret         string `mapstructure:"secret"`
	Passphrase     string `mapstructure:"passphrase"`
}

// QuotingConfig tunes the per-market quote computation.
//
//   - OrderSize:     target size per order in USDC units.
//   - BaseSpreadBps: starting half-spread in basis points before sponsor and
//     volatility adjustments (the final spread is clamped to [5, 60] bp).
//   - IntervalSec:   seconds between trading cycles.
//   - UseExternalOracle: fetch a reference spot price for crypto-keyword
//     titles (advisory, logged next to the book mid).
//   - AggressiveShortTerm: bias selection toward short-dated markets.
type QuotingConfig struct {
	OrderSize           float64 `mapstructure:"order_size"`
	BaseSpreadBps       int     `mapstructure:"base_spread_bps"`
	IntervalSec         int     `mapstructure:"interval_sec"`
	UseExternalOracle   bool    `mapstructure:"use_external_oracle"`
	AggressiveShortTerm bool    `mapstructure:"aggressive_short_term"`
}

// SelectionConfig controls which markets the engine quotes each cycle.
type SelectionConfig struct {
	MaxMarkets        int     `mapstructure:"max_markets"`
	MinSponsorPool    float64 `mapstructure:"min_sponsor_pool"`
	MinLiquidityDepth float64 `mapstructure:"min_liquidity_depth"`
	MinVolume24h      float64 `mapstructure:"min_volume_24h"`
}

// RiskConfig sets the hard capital limits.
//
//   - MaxPosition:  per-market net position cap in USDC units.
//   - TotalCapital: bankroll the circuit breaker and clamps are sized from.
//
// The daily circuit breaker trips when realized PnL falls below
// −3% of TotalCapital and latches for the rest of the UTC date.
type RiskConfig struct {
	MaxPosition  float64 `mapstructure:"max_position"`
	TotalCapital float64 `mapstructure:"total_capital"`
}

// StoreConfig sets where persistent state lives. Path is a SQLite database
// file; ":memory:" keeps state in-process (lost on restart).
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DashboardConfig controls the control-API HTTP server.
type DashboardConfig struct {
	Port        int  `mapstructure:"port"`
	StartPaused bool `mapstructure:"start_paused"`
}

// Fractions of total capital the governor enforces every cycle.
const (
	MaxOrderSizeFraction   = 0.08 // order_size ≤ floor(8% of capital)
	MaxPositionFraction    = 0.48 // max_position ≤ floor(48% of capital)
	CircuitBreakerFraction = 0.03 // daily realized loss limit
	PositionRepairFactor   = 1.5  // stored |position| beyond this × cap is zeroed
)

// Load reads config from a YAML file with env var overrides. The file is
// optional: when it is missing, defaults plus POLY_* env vars apply, which is
// how the headless deployment runs.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("POLY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); !ok {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Override sensitive fields from env
	if key := os.Getenv("POLY_PRIVATE_KEY"); key != "" {
		cfg.Wallet.PrivateKey = key
	}
	if funder := os.Getenv("POLY_FUNDER_ADDRESS"); funder != "" {
		cfg.Wallet.FunderAddress = funder
	}
	if key := os.Getenv("POLY_API_KEY"); key != "" {
		cfg.API.ApiKey = key
	}
	if secret := os.Getenv("POLY_API_SECRET"); secret != "" {
		cfg.API.Secret = secret
	}
	if pass := os.Getenv("POLY_PASSPHRASE"); pass != "" {
		cfg.API.Passphrase = pass
	}
	if os.Getenv("POLY_PAPER") == "true" || os.Getenv("POLY_PAPER") == "1" {
		cfg.Paper = true
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("paper", true)
	v.SetDefault("wallet.chain_id", 137)
	v.SetDefault("wallet.signature_type", 0)
	v.SetDefault("api.clob_base_url", "https://clob.polymarket.com")
	v.SetDefault("api.gamma_base_url", "https://gamma-api.polymarket.com")
	v.SetDefault("api.oracle_base_url", "https://api.binance.com")
	v.SetDefault("quoting.order_size", 5)
	v.SetDefault("quoting.base_spread_bps", 22)
	v.SetDefault("quoting.interval_sec", 60)
	v.SetDefault("selection.max_markets", 10)
	v.SetDefault("selection.min_sponsor_pool", 0)
	v.SetDefault("selection.min_liquidity_depth", 100)
	v.SetDefault("selection.min_volume_24h", 500)
	v.SetDefault("risk.max_position", 30)
	v.SetDefault("risk.total_capital", 65)
	v.SetDefault("store.path", "data/quoter.db")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("dashboard.port", 8080)
}

// Validate checks required fields for the selected mode. Paper mode needs no
// signer; live mode cannot trade without one.
func (c *Config) Validate() error {
	if !c.Paper && c.Wallet.PrivateKey == "" {
		return fmt.Errorf("wallet.private_key is required in live mode (set POLY_PRIVATE_KEY)")
	}
	if c.Wallet.ChainID == 0 {
		return fmt.Errorf("wallet.chain_id is required (137 for mainnet)")
	}
	switch c.Wallet.SignatureType {
	case 0, 1, 2:
	default:
		return fmt.Errorf("wallet.signature_type must be one of: 0 (EOA), 1 (POLY_PROXY), 2 (GNOSIS_SAFE)")
	}
	if c.API.CLOBBaseURL == "" {
		return fmt.Errorf("api.clob_base_url is required")
	}
	if c.Quoting.OrderSize <= 0 {
		return fmt.Errorf("quoting.order_size must be > 0")
	}
	if c.Quoting.IntervalSec <= 0 {
		return fmt.Errorf("quoting.interval_sec must be > 0")
	}
	if c.Selection.MaxMarkets <= 0 {
		return fmt.Errorf("selection.max_markets must be > 0")
	}
	if c.Risk.TotalCapital <= 0 {
		return fmt.Errorf("risk.total_capital must be > 0")
	}
	return nil
}

// Normalize clamps capital-derived limits in place and reports what changed.
// order_size is capped at floor(8% of capital) with a floor of 1; max_position
// is capped at floor(48% of capital).
func (c *Config) Normalize() []string {
	var notes []string

	maxOrder := math.Floor(c.Risk.TotalCapital * MaxOrderSizeFraction)
	if maxOrder < 1 {
		maxOrder = 1
	}
	if c.Quoting.OrderSize > maxOrder {
		notes = append(notes, fmt.Sprintf("order_size clamped %.2f -> %.0f (8%% of capital)", c.Quoting.OrderSize, maxOrder))
		c.Quoting.OrderSize = maxOrder
	}

	maxPos := math.Floor(c.Risk.TotalCapital * MaxPositionFraction)
	if c.Risk.MaxPosition > maxPos {
		notes = append(notes, fmt.Sprintf("max_position clamped %.2f -> %.0f (48%% of capital)", c.Risk.MaxPosition, maxPos))
		c.Risk.MaxPosition = maxPos
	}

	return notes
}

// Interval returns the cycle interval as a duration.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.Quoting.IntervalSec) * time.Second
}
