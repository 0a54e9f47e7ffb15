package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.NotNil(t, cfg)
	assert.Equal(t, 10000.0, cfg.Ledger.StartingBalance)
	assert.Equal(t, "-USD", cfg.Ledger.QuoteSuffix)
	assert.Equal(t, "yahoo", cfg.Oracle.Type)
	assert.Equal(t, "sqlite", cfg.Store.Type)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "zero starting balance",
			mutate:  func(c *Config) { c.Ledger.StartingBalance = 0 },
			wantErr: true,
			errMsg:  "ledger.starting_balance must be positive",
		},
		{
			name:    "negative dust",
			mutate:  func(c *Config) { c.Ledger.DustQuantity = -1 },
			wantErr: true,
			errMsg:  "ledger.dust_quantity must be positive",
		},
		{
			name:    "zero dust",
			mutate:  func(c *Config) { c.Ledger.DustQuantity = 0 },
			wantErr: true,
			errMsg:  "ledger.dust_quantity must be positive",
		},
		{
			name:    "zero tolerance",
			mutate:  func(c *Config) { c.Ledger.SellTolerance = 0 },
			wantErr: true,
			errMsg:  "ledger.sell_tolerance must be between 0 and 1",
		},
		{
			name:    "tolerance out of range",
			mutate:  func(c *Config) { c.Ledger.SellTolerance = 1 },
			wantErr: true,
			errMsg:  "ledger.sell_tolerance must be between 0 and 1",
		},
		{
			name:    "unknown oracle",
			mutate:  func(c *Config) { c.Oracle.Type = "bloomberg" },
			wantErr: true,
			errMsg:  "oracle.type must be 'yahoo' or 'static'",
		},
		{
			name:    "static without prices",
			mutate:  func(c *Config) { c.Oracle.Type = "static" },
			wantErr: true,
			errMsg:  "oracle.prices required for static type",
		},
		{
			name: "static with bad price",
			mutate: func(c *Config) {
				c.Oracle.Type = "static"
				c.Oracle.Prices = map[string]float64{"BTC-USD": 0}
			},
			wantErr: true,
			errMsg:  "oracle.prices[BTC-USD] must be positive",
		},
		{
			name:    "bad timeout",
			mutate:  func(c *Config) { c.Oracle.Timeout = "soon" },
			wantErr: true,
			errMsg:  "oracle.timeout",
		},
		{
			name:    "unknown store",
			mutate:  func(c *Config) { c.Store.Type = "csv" },
			wantErr: true,
			errMsg:  "store.type must be 'sqlite' or 'pebble'",
		},
		{
			name:    "missing store path",
			mutate:  func(c *Config) { c.Store.Path = "" },
			wantErr: true,
			errMsg:  "store.path is required",
		},
		{
			name:    "token without account",
			mutate:  func(c *Config) { c.Server.Tokens = map[string]string{"secret": ""} },
			wantErr: true,
			errMsg:  "server.tokens",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Log.Level = "loud" },
			wantErr: true,
			errMsg:  "log.level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				if tt.errMsg != "" {
					assert.Contains(t, err.Error(), tt.errMsg)
				}
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name string
		ext  string
	}{
		{"json format", ".json"},
		{"yaml format", ".yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Store.Type = "pebble"
			cfg.Server.Tokens = map[string]string{"tok-1": "alice"}
			path := filepath.Join(tmpDir, "test"+tt.ext)

			require.NoError(t, cfg.SaveToFile(path))

			_, err := os.Stat(path)
			require.NoError(t, err)

			loaded, err := LoadFromFile(path)
			require.NoError(t, err)

			assert.Equal(t, cfg.Ledger, loaded.Ledger)
			assert.Equal(t, cfg.Store, loaded.Store)
			assert.Equal(t, "alice", loaded.Server.Tokens["tok-1"])
		})
	}
}

func TestLoadKeepsDefaultsForMissingFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  type: pebble\n  path: ./data\n"), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "pebble", cfg.Store.Type)
	assert.Equal(t, 10000.0, cfg.Ledger.StartingBalance)
	assert.Equal(t, "5s", cfg.Oracle.Timeout)
}

func TestLoadInvalidFile(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/path.yaml")
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ledger:\n  starting_balance: -5\n"), 0644))
	_, err = LoadFromFile(path)
	assert.ErrorContains(t, err, "invalid config")
}

func TestApplyEnv(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte(
		"PAPERTRADE_DB_PATH=/tmp/from-file.db\nPAPERTRADE_LOG_LEVEL=debug\n"), 0644))

	// the real environment wins over the file
	t.Setenv("PAPERTRADE_LOG_LEVEL", "warn")
	t.Setenv("PAPERTRADE_STARTING_BALANCE", "2500")
	t.Setenv("PAPERTRADE_ALLOWED_ORIGINS", "http://a.test, http://b.test")
	t.Cleanup(func() { os.Unsetenv("PAPERTRADE_DB_PATH") })

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(envFile, filepath.Join(t.TempDir(), "missing.env")))

	assert.Equal(t, "/tmp/from-file.db", cfg.Store.Path)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 2500.0, cfg.Ledger.StartingBalance)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Server.AllowedOrigins)
}

func TestApplyEnvBadBalance(t *testing.T) {
	t.Setenv("PAPERTRADE_STARTING_BALANCE", "lots")
	err := Default().ApplyEnv(filepath.Join(t.TempDir(), "none.env"))
	assert.ErrorContains(t, err, "STARTING_BALANCE")
}

func TestLedgerOptions(t *testing.T) {
	cfg := Default()
	cfg.Ledger.StartingBalance = 500
	cfg.Oracle.Timeout = "250ms"

	opts, err := cfg.LedgerOptions()
	require.NoError(t, err)
	assert.True(t, opts.StartingBalance.Equal(decimal.NewFromInt(500)))
	assert.True(t, opts.SellTolerance.Equal(decimal.New(1, -5)))
	assert.Equal(t, "-USD", opts.QuoteSuffix)
	assert.False(t, opts.BareSymbols)
	assert.Equal(t, 250*time.Millisecond, opts.OracleTimeout)
}

func TestLedgerOptionsBareSymbols(t *testing.T) {
	cfg := Default()
	cfg.Ledger.QuoteSuffix = ""

	opts, err := cfg.LedgerOptions()
	require.NoError(t, err)
	assert.True(t, opts.BareSymbols)
	assert.Empty(t, opts.QuoteSuffix)
}

func TestParseTimeout(t *testing.T) {
	tests := []struct {
		timeout  string
		expected string
		wantErr  bool
	}{
		{"5s", "5s", false},
		{"1m", "1m0s", false},
		{"", "0s", false},
		{"invalid", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.timeout, func(t *testing.T) {
			d, err := OracleConfig{Timeout: tt.timeout}.ParseTimeout()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.expected, d.String())
			}
		})
	}
}
