package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"powershare-ledger/internal/app"
	"powershare-ledger/internal/config"
	"powershare-ledger/internal/ledger"
)

var (
	cfgPath string
	driver  string
	dbPath  string
	verbose bool
	timeout time.Duration

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Operate a PowerShare energy ledger store",
	Long: `ledger inspects and seeds the energy-unit ledger behind the API.

It opens the same store the API server uses (sqlite by default here, so
there is something to inspect) and works on it directly.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = app.NewLogger("development", verbose)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "Path to YAML config")
	rootCmd.PersistentFlags().StringVar(&driver, "store", "", "Storage driver: memory or sqlite (default sqlite)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite path (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Operation timeout")

	rootCmd.AddCommand(seedCmd, gridsCmd, offersCmd, buyCmd, historyCmd, summaryCmd, exportCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig applies the config file, env overrides and CLI flags in
// that order.
func loadConfig() (*config.Config, error) {
	cfg := &config.Config{}
	if cfgPath != "" {
		loaded, err := config.LoadUnchecked(cfgPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	cfg.ApplyEnv(os.Getenv)
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = config.DriverSQLite
	}
	if driver != "" {
		cfg.Storage.Driver = driver
	}
	if dbPath != "" {
		cfg.Storage.Path = dbPath
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// withEngine opens the configured store and hands an engine to fn.
func withEngine(fn func(ctx context.Context, cfg *config.Config, e *ledger.Engine) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, closeDB, err := app.OpenStore(cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeDB(); err != nil {
			logger.Warn("close store", zap.Error(err))
		}
	}()
	e, err := app.NewEngine(cfg, store, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return fn(ctx, cfg, e)
}
