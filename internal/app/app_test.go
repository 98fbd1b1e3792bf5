package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"powershare-ledger/internal/config"
	"powershare-ledger/internal/storage"
)

func TestOpenStore(t *testing.T) {
	s, closeFn, err := OpenStore(config.StorageConfig{Driver: config.DriverMemory}, nil)
	require.NoError(t, err)
	assert.IsType(t, &storage.Memory{}, s)
	assert.NoError(t, closeFn())

	path := filepath.Join(t.TempDir(), "nested", "ledger.db")
	s, closeFn, err = OpenStore(config.StorageConfig{Driver: config.DriverSQLite, Path: path}, nil)
	require.NoError(t, err)
	assert.IsType(t, &storage.SQLite{}, s)
	assert.NoError(t, closeFn())

	_, _, err = OpenStore(config.StorageConfig{Driver: "mongo"}, nil)
	assert.Error(t, err)
}

func TestNewAuthenticator(t *testing.T) {
	a, err := NewAuthenticator(config.AuthConfig{
		Mode:   config.AuthStatic,
		Tokens: []config.TokenConfig{{Token: "t", AccountID: "alice", Name: "Alice"}},
	}, nil)
	require.NoError(t, err)
	acct, err := a.Authenticate(context.Background(), "t")
	require.NoError(t, err)
	assert.Equal(t, "alice", acct.ID)

	_, err = NewAuthenticator(config.AuthConfig{Mode: config.AuthRemote, URL: "http://users"}, nil)
	assert.NoError(t, err)

	_, err = NewAuthenticator(config.AuthConfig{Mode: "kerberos"}, nil)
	assert.Error(t, err)
}

func TestSeedIsIdempotent(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	e, err := NewEngine(cfg, storage.NewMemory(), nil)
	require.NoError(t, err)

	seeds := []config.SeedGrid{
		{Owner: "alice", OwnerName: "Alice", Latitude: 6.9, Longitude: 79.8, Units: 100, UnitsForSale: 25, Available: true},
		{Owner: "bob", Units: 10, PricePerUnit: "0.75"},
	}
	n, err := Seed(ctx, e, seeds, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = Seed(ctx, e, seeds, nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	g, err := e.GetGrid(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(25), g.ForSale)

	b, err := e.GetGrid(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "bob grid", b.Name)
	assert.Equal(t, "0.75", b.PricePerUnit.String())

	offers, err := e.ListOffers(ctx)
	require.NoError(t, err)
	require.Len(t, offers, 1)
	assert.Equal(t, "Alice", offers[0].OwnerName)
}

func TestNewLogger(t *testing.T) {
	for _, env := range []string{"production", "development"} {
		log, err := NewLogger(env, false)
		require.NoError(t, err)
		assert.NotNil(t, log)
	}
}

func TestNewWiresService(t *testing.T) {
	cfg := config.Default()
	cfg.Seed = []config.SeedGrid{{Owner: "alice", Units: 5, UnitsForSale: 5, Available: true}}
	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer a.Close()

	g, err := a.Engine().GetGrid(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(5), g.ForSale)
}
