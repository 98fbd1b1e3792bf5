package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"powershare-ledger/internal/auth"
	"powershare-ledger/internal/config"
	"powershare-ledger/internal/ledger"
	"powershare-ledger/internal/model"
	"powershare-ledger/internal/storage"
)

// OpenStore opens the configured storage driver. The returned close func
// is never nil.
func OpenStore(cfg config.StorageConfig, log *zap.Logger) (ledger.Store, func() error, error) {
	switch cfg.Driver {
	case config.DriverMemory, "":
		return storage.NewMemory(), func() error { return nil }, nil
	case config.DriverSQLite:
		s, err := storage.OpenSQLite(cfg.Path, log)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite %s: %w", cfg.Path, err)
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// NewEngine builds the ledger engine from config.
func NewEngine(cfg *config.Config, store ledger.Store, log *zap.Logger, observers ...ledger.Observer) (*ledger.Engine, error) {
	price, err := cfg.Price()
	if err != nil {
		return nil, err
	}
	opts := []ledger.Option{
		ledger.WithPrice(price),
		ledger.WithLockTimeout(cfg.Server.LockTimeout),
		ledger.WithOfferCache(cfg.OfferCacheTTL()),
		ledger.WithLogger(log),
	}
	for _, o := range observers {
		opts = append(opts, ledger.WithObserver(o))
	}
	return ledger.New(store, opts...), nil
}

// NewAuthenticator builds the token checker for cfg.Mode.
func NewAuthenticator(cfg config.AuthConfig, log *zap.Logger) (auth.Authenticator, error) {
	switch cfg.Mode {
	case config.AuthRemote:
		return auth.NewRemoteVerifier(cfg.URL, cfg.Timeout, log), nil
	case config.AuthStatic, "":
		tokens := make([]auth.StaticToken, 0, len(cfg.Tokens))
		for _, t := range cfg.Tokens {
			tokens = append(tokens, auth.StaticToken{Token: t.Token, AccountID: t.AccountID, Name: t.Name})
		}
		return auth.NewStaticTokens(tokens)
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.Mode)
	}
}

// Seed creates the configured grids. Owners that already have a grid are
// skipped, so seeding a persistent store twice is harmless.
func Seed(ctx context.Context, e *ledger.Engine, seeds []config.SeedGrid, log *zap.Logger) (int, error) {
	if log == nil {
		log = zap.NewNop()
	}
	created := 0
	for _, s := range seeds {
		name := s.Name
		if name == "" {
			name = s.Owner + " grid"
		}
		owner := model.Account{ID: s.Owner, Name: s.OwnerName}
		_, err := e.CreateGrid(ctx, owner, ledger.NewGrid{
			Name:         name,
			Location:     s.Location(),
			Units:        s.Units,
			Available:    s.Available,
			PricePerUnit: s.Price(),
		})
		if errors.Is(err, ledger.ErrAlreadyExists) {
			log.Debug("seed grid exists", zap.String("owner", s.Owner))
			continue
		}
		if err != nil {
			return created, fmt.Errorf("seed %s: %w", s.Owner, err)
		}
		if s.UnitsForSale > 0 {
			if _, err := e.UpdateOfferedUnits(ctx, s.Owner, s.UnitsForSale); err != nil {
				return created, fmt.Errorf("seed %s offer: %w", s.Owner, err)
			}
		}
		created++
	}
	if created > 0 {
		log.Info("seeded grids", zap.Int("created", created))
	}
	return created, nil
}
