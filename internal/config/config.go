// Package config provides configuration for the wallet core: fee
// bounds, quote refresh timing, and display settings. Defaults cover
// every field; a YAML file overrides them.
package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	qerr "github.com/quillwallet/quill/pkg/errors"
)

// Config is the wallet core configuration.
type Config struct {
	Version  int            `yaml:"version"`
	Display  DisplayConfig  `yaml:"display"`
	Fees     FeesConfig     `yaml:"fees"`
	Quotes   QuotesConfig   `yaml:"quotes"`
	Networks NetworksConfig `yaml:"networks"`
}

// DisplayConfig defines presentation settings.
type DisplayConfig struct {
	FiatCurrency string `yaml:"fiat_currency"`
}

// FeesConfig defines fee computation settings.
type FeesConfig struct {
	// ExtraGasLimitWei is added on top of gasPrice*gasLimit on
	// account-based chains, covering bridge surcharges.
	ExtraGasLimitWei uint64 `yaml:"extra_gas_limit_wei"`

	// FallbackSatsPerByte is used when the fee service reports nothing.
	FallbackSatsPerByte uint64 `yaml:"fallback_sats_per_byte"`

	MaxSatsPerByte uint64 `yaml:"max_sats_per_byte"`
}

// Duration is a time.Duration that unmarshals from YAML strings like
// "10s" or "1m30s".
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return qerr.Wrap(err, "parsing duration")
	}
	*d = Duration(parsed)
	return nil
}

// QuotesConfig defines quote polling timing.
type QuotesConfig struct {
	RefreshThreshold Duration `yaml:"refresh_threshold"`
	MaxRefreshCap    Duration `yaml:"max_refresh_cap"`
	RetryAttempts    int      `yaml:"retry_attempts"`
}

// NetworksConfig defines per-chain settings.
type NetworksConfig struct {
	ETH ETHNetworkConfig `yaml:"eth"`
}

// ETHNetworkConfig defines Ethereum network settings.
type ETHNetworkConfig struct {
	ChainID int64         `yaml:"chain_id"`
	Tokens  []TokenConfig `yaml:"tokens"`
}

// TokenConfig defines an ERC20 token the wallet tracks.
type TokenConfig struct {
	Symbol   string `yaml:"symbol"`
	Address  string `yaml:"address"`
	Decimals int    `yaml:"decimals"`
}

// Defaults returns the default configuration.
func Defaults() *Config {
	return &Config{
		Version: 1,
		Display: DisplayConfig{
			FiatCurrency: "USD",
		},
		Fees: FeesConfig{
			ExtraGasLimitWei:    0,
			FallbackSatsPerByte: 2,
			MaxSatsPerByte:      2000,
		},
		Quotes: QuotesConfig{
			RefreshThreshold: Duration(5 * time.Second),
			MaxRefreshCap:    Duration(31 * time.Second),
			RetryAttempts:    4,
		},
		Networks: NetworksConfig{
			ETH: ETHNetworkConfig{
				ChainID: 1,
				Tokens: []TokenConfig{
					{
						Symbol:   "USDC",
						Address:  "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
						Decimals: 6,
					},
				},
			},
		},
	}
}

// Load reads a YAML file over the defaults. A missing file returns the
// defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path) //nolint:gosec // Caller-chosen config path
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, qerr.Wrap(err, "reading config file")
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, qerr.Wrap(err, "parsing config file")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Fees.MaxSatsPerByte > 0 && c.Fees.FallbackSatsPerByte > c.Fees.MaxSatsPerByte {
		return qerr.WithDetails(qerr.ErrGeneral, map[string]string{
			"reason":   "fallback fee rate exceeds maximum",
			"fallback": strconv.FormatUint(c.Fees.FallbackSatsPerByte, 10),
			"max":      strconv.FormatUint(c.Fees.MaxSatsPerByte, 10),
		})
	}
	if c.Quotes.RefreshThreshold < 0 || c.Quotes.MaxRefreshCap <= 0 {
		return qerr.WithDetails(qerr.ErrGeneral, map[string]string{
			"reason": "quote refresh timing must be positive",
		})
	}
	if c.Quotes.RetryAttempts <= 0 {
		return qerr.WithDetails(qerr.ErrGeneral, map[string]string{
			"reason": "quote retry attempts must be positive",
		})
	}
	return nil
}
