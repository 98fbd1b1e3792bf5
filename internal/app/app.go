// Package app wires configuration, storage, the ledger engine and the HTTP
// server into a runnable service.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"powershare-ledger/internal/api"
	"powershare-ledger/internal/api/middleware"
	"powershare-ledger/internal/config"
	"powershare-ledger/internal/events"
	"powershare-ledger/internal/ledger"
	"powershare-ledger/internal/metrics"
)

// Application is the assembled API service.
type Application struct {
	cfg       *config.Config
	log       *zap.Logger
	engine    *ledger.Engine
	publisher *events.Publisher
	server    *http.Server
	closeDB   func() error
}

// New opens storage, seeds it, and builds the router. The caller owns Close.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Application, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	store, closeDB, err := OpenStore(cfg.Storage, log)
	if err != nil {
		return nil, err
	}
	m := metrics.New()
	publisher, err := events.NewPublisher(events.Config{
		Enabled: cfg.Events.Enabled,
		Brokers: cfg.Events.Brokers,
		Topic:   cfg.Events.Topic,
		Acks:    cfg.Events.Acks,
	}, log, m)
	if err != nil {
		_ = closeDB()
		return nil, fmt.Errorf("events publisher: %w", err)
	}
	engine, err := NewEngine(cfg, store, log, m, publisher)
	if err != nil {
		_ = closeDB()
		return nil, err
	}
	if _, err := Seed(ctx, engine, cfg.Seed, log); err != nil {
		_ = closeDB()
		return nil, err
	}
	authn, err := NewAuthenticator(cfg.Auth, log)
	if err != nil {
		_ = closeDB()
		return nil, err
	}

	router := api.NewRouter(api.Deps{
		Engine:   engine,
		Auth:     authn,
		Metrics:  m,
		Log:      log,
		Currency: cfg.Pricing.Currency,
	})
	return &Application{
		cfg:       cfg,
		log:       log,
		engine:    engine,
		publisher: publisher,
		closeDB:   closeDB,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           middleware.CORS(cfg.Server.CORSOrigins, router),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

func (a *Application) Engine() *ledger.Engine { return a.engine }

// Run serves HTTP until ctx is cancelled or the listener fails, then shuts
// down the server and drains the trade publisher.
func (a *Application) Run(ctx context.Context) error {
	if err := a.publisher.Start(ctx); err != nil {
		return err
	}

	httpCh := make(chan error, 1)
	go func() {
		a.log.Info("starting API server",
			zap.String("addr", a.server.Addr),
			zap.String("store", a.cfg.Storage.Driver),
			zap.String("auth", a.cfg.Auth.Mode))
		httpCh <- a.server.ListenAndServe()
	}()

	var runErr error
	select {
	case err := <-httpCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			runErr = err
			a.log.Error("http server failed", zap.Error(err))
		}
	case <-ctx.Done():
		a.log.Info("shutdown requested")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}
	if err := a.publisher.Stop(shutdownCtx); err != nil {
		a.log.Warn("publisher stop", zap.Error(err))
	}
	return runErr
}

// Close releases storage.
func (a *Application) Close() error {
	return a.closeDB()
}
