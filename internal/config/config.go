// Package config defines tradecored's configuration. Config is loaded from a
// YAML file with environment variable overrides, in the style of
// 0xtitan6-polymarket-mm/internal/config/config.go: a typed struct unmarshaled
// via mapstructure tags, sensitive/deployment knobs overridable through env
// vars, and a Validate step run once at startup.
package config

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// MarketConfig is one entry of the markets option (spec §6): the symbol's
// base/quote asset pair, its tick grid, and its size bounds.
type MarketConfig struct {
	Symbol    string `mapstructure:"symbol"`
	Base      string `mapstructure:"base"`
	Quote     string `mapstructure:"quote"`
	PriceTick string `mapstructure:"price_tick"`
	SizeTick  string `mapstructure:"size_tick"`
	MinSize   string `mapstructure:"min_order_size"`
	MaxSize   string `mapstructure:"max_order_size"`
	// Sharded selects internal/orderbook's red-black-tree price tree instead
	// of the HashMap+list default, for markets configured with a fine-grained
	// price_tick (many distinct price levels).
	Sharded    bool  `mapstructure:"sharded"`
	BucketSpan int64 `mapstructure:"bucket_span"`
}

// FeeRate is one market's maker/taker basis-points pair (spec §6 fee_schedule).
type FeeRate struct {
	Market   string `mapstructure:"market"`
	MakerBps int64  `mapstructure:"maker_bps"`
	TakerBps int64  `mapstructure:"taker_bps"`
}

// ConfirmationThreshold is one asset's deposit confirmation requirement
// (spec §6 deposit_confirmation_threshold).
type ConfirmationThreshold struct {
	Asset       string `mapstructure:"asset"`
	Confirmations int  `mapstructure:"confirmations"`
}

// NetworkFee is one asset's withdrawal network fee deduction (spec §6
// withdrawal_network_fee).
type NetworkFee struct {
	Asset string `mapstructure:"asset"`
	Fee   string `mapstructure:"fee"`
}

// FeeAccountConfig designates the AccountID that collects trading fees paid
// in Asset (spec §9(a): "explicitly create a fee account per asset and
// attribute fees there").
type FeeAccountConfig struct {
	Asset     string `mapstructure:"asset"`
	AccountID int64  `mapstructure:"account_id"`
}

// LoggingConfig controls internal/applog's zerolog setup.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "console" or "json"
}

// Config is the top-level configuration, mapping directly onto the YAML file
// structure and spec §6's Configuration table.
type Config struct {
	Markets               []MarketConfig          `mapstructure:"markets"`
	FeeSchedule           []FeeRate               `mapstructure:"fee_schedule"`
	DefaultMakerBps       int64                   `mapstructure:"default_maker_bps"`
	DefaultTakerBps       int64                   `mapstructure:"default_taker_bps"`
	DepositConfirmations  []ConfirmationThreshold `mapstructure:"deposit_confirmation_threshold"`
	WithdrawalNetworkFees []NetworkFee            `mapstructure:"withdrawal_network_fee"`
	FeeAccounts           []FeeAccountConfig      `mapstructure:"fee_accounts"`
	Logging               LoggingConfig           `mapstructure:"logging"`
}

// Load reads config from a YAML file at path, with TRADECORE_-prefixed
// environment variable overrides for keys present in the YAML file (e.g.
// TRADECORE_LOGGING_LEVEL).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("TRADECORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Validate checks required fields and value ranges across every configured
// market, failing closed rather than letting a malformed config reach the
// matching engines (spec §6 exit code 1: configuration error).
func (c *Config) Validate() error {
	if len(c.Markets) == 0 {
		return fmt.Errorf("markets: at least one market must be configured")
	}
	seen := make(map[string]bool, len(c.Markets))
	for _, m := range c.Markets {
		if m.Symbol == "" {
			return fmt.Errorf("markets: symbol is required")
		}
		if seen[m.Symbol] {
			return fmt.Errorf("markets: duplicate symbol %q", m.Symbol)
		}
		seen[m.Symbol] = true
		if m.Base == "" || m.Quote == "" {
			return fmt.Errorf("markets[%s]: base and quote are required", m.Symbol)
		}
		if _, err := decimal.NewFromString(m.PriceTick); err != nil {
			return fmt.Errorf("markets[%s]: invalid price_tick: %w", m.Symbol, err)
		}
		if _, err := decimal.NewFromString(m.SizeTick); err != nil {
			return fmt.Errorf("markets[%s]: invalid size_tick: %w", m.Symbol, err)
		}
		if m.MinSize != "" {
			if _, err := decimal.NewFromString(m.MinSize); err != nil {
				return fmt.Errorf("markets[%s]: invalid min_order_size: %w", m.Symbol, err)
			}
		}
		if m.MaxSize != "" {
			if _, err := decimal.NewFromString(m.MaxSize); err != nil {
				return fmt.Errorf("markets[%s]: invalid max_order_size: %w", m.Symbol, err)
			}
		}
	}

	for _, f := range c.FeeSchedule {
		if f.MakerBps < 0 || f.TakerBps < 0 {
			return fmt.Errorf("fee_schedule[%s]: bps must be non-negative", f.Market)
		}
	}

	for _, d := range c.DepositConfirmations {
		if d.Asset == "" {
			return fmt.Errorf("deposit_confirmation_threshold: asset is required")
		}
		if d.Confirmations < 0 {
			return fmt.Errorf("deposit_confirmation_threshold[%s]: confirmations must be >= 0", d.Asset)
		}
	}

	for _, n := range c.WithdrawalNetworkFees {
		if n.Asset == "" {
			return fmt.Errorf("withdrawal_network_fee: asset is required")
		}
		if _, err := decimal.NewFromString(n.Fee); err != nil {
			return fmt.Errorf("withdrawal_network_fee[%s]: invalid fee: %w", n.Asset, err)
		}
	}

	feeAssets := make(map[string]bool, len(c.FeeAccounts))
	for _, f := range c.FeeAccounts {
		if f.Asset == "" {
			return fmt.Errorf("fee_accounts: asset is required")
		}
		if feeAssets[f.Asset] {
			return fmt.Errorf("fee_accounts[%s]: duplicate asset", f.Asset)
		}
		feeAssets[f.Asset] = true
		if f.AccountID <= 0 {
			return fmt.Errorf("fee_accounts[%s]: account_id must be positive", f.Asset)
		}
	}

	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json")
	}

	return nil
}
