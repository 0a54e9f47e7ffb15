package cmd

import (
	"fmt"
	"os"

	"github.com/rustyeddy/papertrade/config"
	"github.com/rustyeddy/papertrade/internal/logging"
	"github.com/rustyeddy/papertrade/journal"
	"github.com/rustyeddy/papertrade/ledger"
	"github.com/rustyeddy/papertrade/oracle"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:   "papertrade",
	Short: "A paper-trading ledger for crypto and equities",
	Long: `Papertrade keeps simulated trading accounts priced against live quotes.

It provides tools for:
  - Opening accounts with a virtual cash balance
  - Buying and selling by quantity or by cash amount
  - Copying another account's holdings
  - Valuing portfolios and ranking accounts by net worth
  - Exporting transaction history to CSV
  - Serving the ledger over HTTP and websockets

Complete documentation is available at https://github.com/rustyeddy/papertrade`,
	SilenceUsage: true,
}

var (
	cfgFile   string
	dbPath    string
	storeType string
	accountID string
	logLevel  string
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (yaml or json)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "ledger database path (overrides config)")
	rootCmd.PersistentFlags().StringVar(&storeType, "store", "", "ledger store type: sqlite or pebble (overrides config)")
	rootCmd.PersistentFlags().StringVarP(&accountID, "account", "a", os.Getenv(config.EnvPrefix+"ACCOUNT"), "acting account id")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (overrides config)")
}

// loadConfig reads --config (or the defaults), the environment and the
// global flag overrides.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if cfgFile != "" {
		var err error
		if cfg, err = config.LoadFromFile(cfgFile); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.Store.Path = dbPath
	}
	if storeType != "" {
		cfg.Store.Type = storeType
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// app is the wired ledger a command runs against.
type app struct {
	cfg    *config.Config
	log    *zap.Logger
	store  ledger.Store
	engine *ledger.Engine
}

func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	store, err := journal.Open(cfg.Store.Type, cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	opts, err := cfg.LedgerOptions()
	if err != nil {
		store.Close()
		return nil, err
	}
	opts.Logger = log

	return &app{
		cfg:    cfg,
		log:    log,
		store:  store,
		engine: ledger.NewEngine(store, newOracle(cfg, log), opts),
	}, nil
}

func newOracle(cfg *config.Config, log *zap.Logger) ledger.PriceOracle {
	if cfg.Oracle.Type == "static" {
		return oracle.NewStatic(cfg.Oracle.StaticPrices())
	}

	opts := []oracle.YahooOption{
		oracle.WithLogger(log),
		oracle.WithConcurrency(cfg.Oracle.Concurrency),
	}
	if cfg.Oracle.BaseURL != "" {
		opts = append(opts, oracle.WithBaseURL(cfg.Oracle.BaseURL))
	}
	if d, err := cfg.Oracle.ParseTimeout(); err == nil && d > 0 {
		opts = append(opts, oracle.WithTimeout(d))
	}
	return oracle.NewYahoo(opts...)
}

func (a *app) Close() error {
	_ = a.log.Sync()
	return a.store.Close()
}

func requireAccount() (string, error) {
	if accountID == "" {
		return "", fmt.Errorf("--account is required (or set %sACCOUNT)", config.EnvPrefix)
	}
	return accountID, nil
}
