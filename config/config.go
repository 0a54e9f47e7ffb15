package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rustyeddy/papertrade/ledger"
	"github.com/rustyeddy/papertrade/market"
	"github.com/shopspring/decimal"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. PAPERTRADE_DB_PATH.
const EnvPrefix = "PAPERTRADE_"

// Config is the complete papertrade configuration.
type Config struct {
	Ledger LedgerConfig `json:"ledger" yaml:"ledger"`
	Oracle OracleConfig `json:"oracle" yaml:"oracle"`
	Store  StoreConfig  `json:"store" yaml:"store"`
	Server ServerConfig `json:"server" yaml:"server"`
	Log    LogConfig    `json:"log" yaml:"log"`
}

// LedgerConfig holds the trading rules every account shares.
type LedgerConfig struct {
	StartingBalance float64 `json:"starting_balance" yaml:"starting_balance"`
	DustQuantity    float64 `json:"dust_quantity" yaml:"dust_quantity"`
	SellTolerance   float64 `json:"sell_tolerance" yaml:"sell_tolerance"`
	QuoteSuffix     string  `json:"quote_suffix" yaml:"quote_suffix"` // e.g. "-USD"
}

// OracleConfig selects the price source.
type OracleConfig struct {
	Type        string             `json:"type" yaml:"type"` // "yahoo" or "static"
	BaseURL     string             `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Timeout     string             `json:"timeout" yaml:"timeout"` // e.g. "5s"
	Concurrency int                `json:"concurrency,omitempty" yaml:"concurrency,omitempty"`
	Prices      map[string]float64 `json:"prices,omitempty" yaml:"prices,omitempty"`
}

// ParseTimeout converts the timeout string to a time.Duration. Empty means 0.
func (o OracleConfig) ParseTimeout() (time.Duration, error) {
	if o.Timeout == "" {
		return 0, nil
	}
	return time.ParseDuration(o.Timeout)
}

// StaticPrices returns the configured price table for the static oracle.
func (o OracleConfig) StaticPrices() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(o.Prices))
	for sym, p := range o.Prices {
		out[sym] = market.FromFloat(p)
	}
	return out
}

// StoreConfig locates the ledger database.
type StoreConfig struct {
	Type string `json:"type" yaml:"type"` // "sqlite" or "pebble"
	Path string `json:"path" yaml:"path"`
}

type ServerConfig struct {
	Addr           string   `json:"addr" yaml:"addr"`
	AllowedOrigins []string `json:"allowed_origins,omitempty" yaml:"allowed_origins,omitempty"`
	// Tokens maps a bearer token to the account it acts as.
	Tokens map[string]string `json:"tokens,omitempty" yaml:"tokens,omitempty"`
}

type LogConfig struct {
	Level string `json:"level" yaml:"level"`
	File  string `json:"file,omitempty" yaml:"file,omitempty"`
}

// LoadFromFile loads configuration from a YAML or JSON file. Fields the
// file leaves out keep their Default values.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	// Try YAML first, fall back to JSON
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		cfg = Default()
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SaveToFile saves configuration as YAML for .yaml/.yml paths and JSON
// otherwise.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Ledger.StartingBalance <= 0 {
		return fmt.Errorf("ledger.starting_balance must be positive")
	}
	if c.Ledger.DustQuantity <= 0 {
		return fmt.Errorf("ledger.dust_quantity must be positive")
	}
	if c.Ledger.SellTolerance <= 0 || c.Ledger.SellTolerance >= 1 {
		return fmt.Errorf("ledger.sell_tolerance must be between 0 and 1")
	}

	switch c.Oracle.Type {
	case "yahoo":
	case "static":
		if len(c.Oracle.Prices) == 0 {
			return fmt.Errorf("oracle.prices required for static type")
		}
		for sym, p := range c.Oracle.Prices {
			if p <= 0 {
				return fmt.Errorf("oracle.prices[%s] must be positive", sym)
			}
		}
	default:
		return fmt.Errorf("oracle.type must be 'yahoo' or 'static'")
	}
	if d, err := c.Oracle.ParseTimeout(); err != nil || d < 0 {
		return fmt.Errorf("oracle.timeout must be a duration like \"5s\"")
	}
	if c.Oracle.Concurrency < 0 {
		return fmt.Errorf("oracle.concurrency must not be negative")
	}

	if c.Store.Type != "sqlite" && c.Store.Type != "pebble" {
		return fmt.Errorf("store.type must be 'sqlite' or 'pebble'")
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}

	for token, account := range c.Server.Tokens {
		if token == "" || account == "" {
			return fmt.Errorf("server.tokens entries need a token and an account")
		}
	}

	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Ledger: LedgerConfig{
			StartingBalance: 10000,
			DustQuantity:    1e-6,
			SellTolerance:   1e-5,
			QuoteSuffix:     "-USD",
		},
		Oracle: OracleConfig{
			Type:        "yahoo",
			Timeout:     "5s",
			Concurrency: 8,
		},
		Store: StoreConfig{
			Type: "sqlite",
			Path: "./papertrade.db",
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// ApplyEnv loads envFiles (".env" when none are given; missing files are
// skipped) into the process environment and then applies the PAPERTRADE_*
// overrides. Variables already set in the environment win over the files.
func (c *Config) ApplyEnv(envFiles ...string) error {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}

	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			*dst = v
		}
	}
	str("STORE_TYPE", &c.Store.Type)
	str("DB_PATH", &c.Store.Path)
	str("ORACLE_TYPE", &c.Oracle.Type)
	str("ORACLE_URL", &c.Oracle.BaseURL)
	str("ORACLE_TIMEOUT", &c.Oracle.Timeout)
	str("ADDR", &c.Server.Addr)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FILE", &c.Log.File)
	str("QUOTE_SUFFIX", &c.Ledger.QuoteSuffix)

	if v, ok := os.LookupEnv(EnvPrefix + "STARTING_BALANCE"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%sSTARTING_BALANCE: %w", EnvPrefix, err)
		}
		c.Ledger.StartingBalance = f
	}
	if v, ok := os.LookupEnv(EnvPrefix + "ALLOWED_ORIGINS"); ok {
		c.Server.AllowedOrigins = splitList(v)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// LedgerOptions converts the ledger and oracle sections into engine options.
func (c *Config) LedgerOptions() (ledger.Options, error) {
	timeout, err := c.Oracle.ParseTimeout()
	if err != nil {
		return ledger.Options{}, fmt.Errorf("oracle.timeout: %w", err)
	}
	opts := ledger.DefaultOptions()
	opts.StartingBalance = market.FromFloat(c.Ledger.StartingBalance)
	opts.DustQuantity = market.FromFloat(c.Ledger.DustQuantity)
	opts.SellTolerance = market.FromFloat(c.Ledger.SellTolerance)
	opts.QuoteSuffix = c.Ledger.QuoteSuffix
	opts.BareSymbols = c.Ledger.QuoteSuffix == ""
	if timeout > 0 {
		opts.OracleTimeout = timeout
	}
	return opts, nil
}
