package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"powershare-ledger/internal/app"
	"powershare-ledger/internal/config"
)

func main() {
	cfgPath := flag.String("config", os.Getenv("LEDGER_CONFIG"), "Path to YAML config (optional)")
	verbose := flag.Bool("v", false, "Enable debug logging")
	flag.Parse()

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := app.NewLogger(cfg.Server.Env, *verbose)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to initialize service", zap.Error(err))
	}
	defer func() {
		if err := application.Close(); err != nil {
			log.Error("close failed", zap.Error(err))
		}
	}()

	if err := application.Run(ctx); err != nil {
		log.Error("server stopped with error", zap.Error(err))
		os.Exit(1)
	}
}

// loadConfig reads path when given; otherwise defaults plus env overrides.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	cfg := &config.Config{}
	cfg.ApplyEnv(os.Getenv)
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
