package ledger_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"powershare-ledger/internal/ledger"
	"powershare-ledger/internal/model"
	"powershare-ledger/internal/storage"
)

var (
	alice = model.Account{ID: "alice", Name: "Alice"}
	bob   = model.Account{ID: "bob", Name: "Bob"}
	carol = model.Account{ID: "carol", Name: "Carol"}
)

// forEachStore runs fn once per storage driver.
func forEachStore(t *testing.T, fn func(t *testing.T, store ledger.Store)) {
	t.Helper()
	t.Run("memory", func(t *testing.T) {
		fn(t, storage.NewMemory())
	})
	t.Run("sqlite", func(t *testing.T) {
		s, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "ledger.db"), nil)
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		fn(t, s)
	})
}

// stepClock returns a clock that advances by step on every call.
func stepClock(start time.Time, step time.Duration) func() time.Time {
	now := start
	return func() time.Time {
		cur := now
		now = now.Add(step)
		return cur
	}
}

// seedSeller creates owner's grid and lists forSale of its units.
func seedSeller(t *testing.T, e *ledger.Engine, owner model.Account, units, forSale int64) model.Grid {
	t.Helper()
	ctx := context.Background()
	_, err := e.CreateGrid(ctx, owner, ledger.NewGrid{
		Name:      owner.Name + " solar",
		Location:  model.Location{Latitude: 6.9, Longitude: 79.86},
		Units:     units,
		Available: true,
	})
	require.NoError(t, err)
	g, err := e.UpdateOfferedUnits(ctx, owner.ID, forSale)
	require.NoError(t, err)
	return g
}

func requireInvariant(t *testing.T, g model.Grid) {
	t.Helper()
	require.GreaterOrEqual(t, g.ForSale, int64(0), "grid %s", g.ID)
	require.LessOrEqual(t, g.ForSale, g.Units, "grid %s", g.ID)
}

func TestCreateGrid(t *testing.T) {
	forEachStore(t, func(t *testing.T, store ledger.Store) {
		ctx := context.Background()
		e := ledger.New(store)

		g, err := e.CreateGrid(ctx, alice, ledger.NewGrid{
			Name:      "Rooftop",
			Location:  model.Location{Latitude: 7.29, Longitude: 80.63},
			Units:     40,
			Available: true,
		})
		require.NoError(t, err)
		require.NotEmpty(t, g.ID)
		require.Equal(t, "alice", g.OwnerID)
		require.Equal(t, int64(40), g.Units)
		require.Zero(t, g.ForSale)

		got, err := e.GetGrid(ctx, "alice")
		require.NoError(t, err)
		require.Equal(t, g.ID, got.ID)
		require.Equal(t, "Rooftop", got.Name)

		_, err = e.CreateGrid(ctx, alice, ledger.NewGrid{Name: "Second", Units: 1})
		require.ErrorIs(t, err, ledger.ErrAlreadyExists)
	})
}

func TestCreateGridRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		req  ledger.NewGrid
		want error
	}{
		{"negative units", ledger.NewGrid{Name: "x", Units: -1}, ledger.ErrInvalidQuantity},
		{"blank name", ledger.NewGrid{Name: "  ", Units: 1}, ledger.ErrInvalidArgument},
		{"bad latitude", ledger.NewGrid{Name: "x", Location: model.Location{Latitude: 91}}, ledger.ErrInvalidArgument},
		{"negative price", ledger.NewGrid{Name: "x", PricePerUnit: decimal.NewFromInt(-1)}, ledger.ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := ledger.New(storage.NewMemory())
			_, err := e.CreateGrid(context.Background(), alice, tt.req)
			require.ErrorIs(t, err, tt.want)

			_, err = e.GetGrid(context.Background(), alice.ID)
			require.ErrorIs(t, err, ledger.ErrNotFound)
		})
	}
}

func TestGetGridNotFound(t *testing.T) {
	forEachStore(t, func(t *testing.T, store ledger.Store) {
		_, err := ledger.New(store).GetGrid(context.Background(), "nobody")
		require.ErrorIs(t, err, ledger.ErrNotFound)
		require.Equal(t, "NOT_FOUND", ledger.Kind(err))
	})
}

func TestUpdateOfferedUnits(t *testing.T) {
	forEachStore(t, func(t *testing.T, store ledger.Store) {
		ctx := context.Background()
		e := ledger.New(store)
		seedSeller(t, e, alice, 10, 0)

		_, err := e.UpdateOfferedUnits(ctx, alice.ID, 5)
		require.NoError(t, err)
		got, err := e.GetGrid(ctx, alice.ID)
		require.NoError(t, err)
		require.Equal(t, int64(5), got.ForSale)

		_, err = e.UpdateOfferedUnits(ctx, alice.ID, 11)
		require.ErrorIs(t, err, ledger.ErrInvalidQuantity)
		_, err = e.UpdateOfferedUnits(ctx, alice.ID, -1)
		require.ErrorIs(t, err, ledger.ErrInvalidQuantity)

		got, err = e.GetGrid(ctx, alice.ID)
		require.NoError(t, err)
		require.Equal(t, int64(5), got.ForSale, "rejected updates must not apply")

		_, err = e.UpdateOfferedUnits(ctx, "nobody", 1)
		require.ErrorIs(t, err, ledger.ErrNotFound)

		h, err := e.TransactionHistory(ctx, alice.ID)
		require.NoError(t, err)
		require.Zero(t, h.TotalCount, "offer updates do not record trades")
	})
}

func TestSetTotalUnitsClampsOffer(t *testing.T) {
	forEachStore(t, func(t *testing.T, store ledger.Store) {
		ctx := context.Background()
		e := ledger.New(store)
		seedSeller(t, e, alice, 10, 8)

		g, err := e.SetTotalUnits(ctx, alice.ID, 3)
		require.NoError(t, err)
		require.Equal(t, int64(3), g.Units)
		require.Equal(t, int64(3), g.ForSale)

		g, err = e.SetTotalUnits(ctx, alice.ID, 20)
		require.NoError(t, err)
		require.Equal(t, int64(20), g.Units)
		require.Equal(t, int64(3), g.ForSale, "raising the total leaves the offer alone")

		_, err = e.SetTotalUnits(ctx, alice.ID, -4)
		require.ErrorIs(t, err, ledger.ErrInvalidQuantity)
	})
}

func TestListOffers(t *testing.T) {
	forEachStore(t, func(t *testing.T, store ledger.Store) {
		ctx := context.Background()
		e := ledger.New(store, ledger.WithPrice(decimal.RequireFromString("0.25")))

		seedSeller(t, e, alice, 100, 20)
		seedSeller(t, e, bob, 50, 0)
		seedSeller(t, e, carol, 30, 10)
		_, err := e.SetAvailability(ctx, carol.ID, false)
		require.NoError(t, err)

		offers, err := e.ListOffers(ctx)
		require.NoError(t, err)
		require.Len(t, offers, 1)
		require.Equal(t, "alice", offers[0].OwnerID)
		require.Equal(t, "Alice", offers[0].OwnerName)
		require.Equal(t, int64(20), offers[0].ForSale)
		require.True(t, decimal.RequireFromString("0.25").Equal(offers[0].Price))

		_, err = e.SetAvailability(ctx, carol.ID, true)
		require.NoError(t, err)
		offers, err = e.ListOffers(ctx)
		require.NoError(t, err)
		require.Len(t, offers, 2)
	})
}

func TestListOffersCacheInvalidatedByWrites(t *testing.T) {
	ctx := context.Background()
	e := ledger.New(storage.NewMemory(), ledger.WithOfferCache(time.Hour))
	seedSeller(t, e, alice, 10, 5)

	offers, err := e.ListOffers(ctx)
	require.NoError(t, err)
	require.Len(t, offers, 1)

	_, err = e.UpdateOfferedUnits(ctx, alice.ID, 0)
	require.NoError(t, err)
	offers, err = e.ListOffers(ctx)
	require.NoError(t, err)
	require.Empty(t, offers)
}

// writeDuringRead runs write once, after the store has been read but before
// the engine has cached what it read.
type writeDuringRead struct {
	ledger.Store
	write func()
}

func (s *writeDuringRead) Grids(ctx context.Context) ([]model.Grid, error) {
	grids, err := s.Store.Grids(ctx)
	if w := s.write; w != nil {
		s.write = nil
		w()
	}
	return grids, err
}

func TestListOffersDoesNotCacheReadOverlappingWrite(t *testing.T) {
	ctx := context.Background()
	store := &writeDuringRead{Store: storage.NewMemory()}
	e := ledger.New(store, ledger.WithOfferCache(time.Hour))
	seedSeller(t, e, alice, 10, 5)

	store.write = func() {
		_, err := e.SetAvailability(ctx, alice.ID, false)
		require.NoError(t, err)
	}
	offers, err := e.ListOffers(ctx)
	require.NoError(t, err)
	require.Len(t, offers, 1, "the read started before the grid closed")

	offers, err = e.ListOffers(ctx)
	require.NoError(t, err)
	assert.Empty(t, offers)
}

func TestCreateGridClaimsProvisionedGrid(t *testing.T) {
	forEachStore(t, func(t *testing.T, store ledger.Store) {
		ctx := context.Background()
		e := ledger.New(store)
		a := seedSeller(t, e, alice, 100, 20)

		_, err := e.Buy(ctx, carol, a.ID, 6)
		require.NoError(t, err)
		placeholder, err := e.GetGrid(ctx, carol.ID)
		require.NoError(t, err)
		require.True(t, placeholder.Provisioned)

		price := decimal.RequireFromString("0.9")
		g, err := e.CreateGrid(ctx, carol, ledger.NewGrid{
			Name:         "Carol hydro",
			Location:     model.Location{Latitude: 7.1, Longitude: 80.2},
			Units:        30,
			Available:    true,
			PricePerUnit: price,
		})
		require.NoError(t, err)
		assert.Equal(t, placeholder.ID, g.ID)
		assert.Equal(t, int64(36), g.Units, "bought units are kept")
		assert.Zero(t, g.ForSale)
		assert.False(t, g.Provisioned)

		got, err := e.GetGrid(ctx, carol.ID)
		require.NoError(t, err)
		assert.Equal(t, "Carol hydro", got.Name)
		assert.Equal(t, model.Location{Latitude: 7.1, Longitude: 80.2}, got.Location)
		assert.Equal(t, int64(36), got.Units)
		assert.True(t, got.Available)
		assert.False(t, got.Provisioned)
		assert.True(t, price.Equal(got.PricePerUnit))

		_, err = e.CreateGrid(ctx, carol, ledger.NewGrid{Name: "Again", Units: 1})
		require.ErrorIs(t, err, ledger.ErrAlreadyExists)

		h, err := e.TransactionHistory(ctx, carol.ID)
		require.NoError(t, err)
		require.Equal(t, 1, h.TotalCount)
		assert.Equal(t, g.ID, h.Entries[0].BuyerGridID)
	})
}

func TestListGrids(t *testing.T) {
	forEachStore(t, func(t *testing.T, store ledger.Store) {
		e := ledger.New(store, ledger.WithClock(stepClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), time.Second)))
		seedSeller(t, e, alice, 1, 0)
		seedSeller(t, e, bob, 1, 0)

		grids, err := e.ListGrids(context.Background())
		require.NoError(t, err)
		require.Len(t, grids, 2)
		require.Equal(t, "alice", grids[0].OwnerID)
		require.Equal(t, "bob", grids[1].OwnerID)
	})
}

func TestUnitStatus(t *testing.T) {
	forEachStore(t, func(t *testing.T, store ledger.Store) {
		ctx := context.Background()
		e := ledger.New(store)
		seedSeller(t, e, alice, 40, 15)

		st, err := e.UnitStatus(ctx, alice.ID)
		require.NoError(t, err)
		require.Equal(t, model.UnitStatus{Units: 40, ForSale: 15}, st)

		_, err = e.UnitStatus(ctx, bob.ID)
		require.ErrorIs(t, err, ledger.ErrNotFound)
	})
}
