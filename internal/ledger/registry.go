package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"powershare-ledger/internal/model"
)

// NewGrid is the owner-supplied part of a grid at creation.
type NewGrid struct {
	Name         string
	Location     model.Location
	Units        int64
	Available    bool
	PricePerUnit decimal.Decimal
}

// CreateGrid registers the owner's grid with nothing offered for sale.
//
// If the owner only has a grid provisioned by an earlier purchase, that grid
// is taken over: it keeps its id and bought units, gains req.Units, and gets
// the requested name, location, availability and price.
func (e *Engine) CreateGrid(ctx context.Context, owner model.Account, req NewGrid) (model.Grid, error) {
	if req.Units < 0 {
		return model.Grid{}, fmt.Errorf("%w: units must be >= 0, got %d", ErrInvalidQuantity, req.Units)
	}
	if req.PricePerUnit.IsNegative() {
		return model.Grid{}, fmt.Errorf("%w: price_per_unit must be >= 0", ErrInvalidArgument)
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return model.Grid{}, fmt.Errorf("%w: grid name is required", ErrInvalidArgument)
	}
	if err := req.Location.Validate(); err != nil {
		return model.Grid{}, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	if err := e.rememberAccount(ctx, owner); err != nil {
		return model.Grid{}, err
	}

	now := e.now().UTC()
	g := model.Grid{
		ID:           e.newID(),
		OwnerID:      owner.ID,
		Name:         name,
		Location:     req.Location,
		Units:        req.Units,
		ForSale:      0,
		Available:    req.Available,
		PricePerUnit: req.PricePerUnit,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err := e.store.CreateGrid(ctx, g)
	if errors.Is(err, ErrAlreadyExists) {
		return e.claimProvisioned(ctx, owner.ID, req, name, err)
	}
	if err != nil {
		return model.Grid{}, err
	}
	e.log.Info("grid created", zap.String("grid", g.ID), zap.String("owner", owner.ID), zap.Int64("units", g.Units))
	e.gridChanged(g)
	return g, nil
}

// claimProvisioned fills in a provisioned grid. Any other existing grid
// returns exists unchanged.
func (e *Engine) claimProvisioned(ctx context.Context, ownerID string, req NewGrid, name string, exists error) (model.Grid, error) {
	cur, err := e.store.GridByOwner(ctx, ownerID)
	if err != nil {
		return model.Grid{}, err
	}
	if !cur.Provisioned {
		return model.Grid{}, exists
	}

	var claimed model.Grid
	err = e.update(ctx, []string{cur.ID}, func(tx Tx) error {
		g, err := tx.Grid(cur.ID)
		if err != nil {
			return err
		}
		if !g.Provisioned {
			return exists
		}
		g.Name = name
		g.Location = req.Location
		g.Units += req.Units
		g.Available = req.Available
		g.PricePerUnit = req.PricePerUnit
		g.Provisioned = false
		g.UpdatedAt = e.now().UTC()
		if err := tx.PutGrid(g); err != nil {
			return err
		}
		claimed = g
		return nil
	})
	if err != nil {
		return model.Grid{}, err
	}
	e.log.Info("provisioned grid claimed", zap.String("grid", claimed.ID), zap.String("owner", ownerID), zap.Int64("units", claimed.Units))
	e.gridChanged(claimed)
	return claimed, nil
}

// GetGrid returns the owner's grid or ErrNotFound.
func (e *Engine) GetGrid(ctx context.Context, ownerID string) (model.Grid, error) {
	return e.store.GridByOwner(ctx, ownerID)
}

// UnitStatus reports the owner's unit count and how many are offered.
func (e *Engine) UnitStatus(ctx context.Context, ownerID string) (model.UnitStatus, error) {
	g, err := e.store.GridByOwner(ctx, ownerID)
	if err != nil {
		return model.UnitStatus{}, err
	}
	return model.UnitStatus{Units: g.Units, ForSale: g.ForSale}, nil
}

// ListGrids returns every grid, listed or not.
func (e *Engine) ListGrids(ctx context.Context) ([]model.Grid, error) {
	grids, err := e.store.Grids(ctx)
	if err != nil {
		return nil, err
	}
	sortGrids(grids)
	return grids, nil
}

// ListOffers returns every available grid with units for sale, annotated
// with the owner's display name. The result may lag the latest write by
// the offer cache TTL.
func (e *Engine) ListOffers(ctx context.Context) ([]model.Offer, error) {
	if cached, ok := e.offers.Get(); ok {
		return cloneOffers(cached), nil
	}
	gen := e.offers.Generation()

	grids, err := e.store.Grids(ctx)
	if err != nil {
		return nil, err
	}
	sortGrids(grids)

	names := map[string]string{}
	offers := make([]model.Offer, 0, len(grids))
	for _, g := range grids {
		if !g.Listed() {
			continue
		}
		name, seen := names[g.OwnerID]
		if !seen {
			name = e.displayName(ctx, g.OwnerID)
			names[g.OwnerID] = name
		}
		offers = append(offers, model.Offer{
			GridID:    g.ID,
			GridName:  g.Name,
			Location:  g.Location,
			ForSale:   g.ForSale,
			OwnerID:   g.OwnerID,
			OwnerName: name,
			Price:     e.priceFor(g),
		})
	}

	e.offers.SetAt(offers, gen)
	return cloneOffers(offers), nil
}

// UpdateOfferedUnits sets how many of the owner's units are listed for sale.
// No transaction is recorded.
func (e *Engine) UpdateOfferedUnits(ctx context.Context, ownerID string, forSale int64) (model.Grid, error) {
	if forSale < 0 {
		return model.Grid{}, fmt.Errorf("%w: units for sale must be >= 0, got %d", ErrInvalidQuantity, forSale)
	}
	return e.mutateOwned(ctx, ownerID, func(g *model.Grid) error {
		if forSale > g.Units {
			return fmt.Errorf("%w: cannot offer %d units, grid holds %d", ErrInvalidQuantity, forSale, g.Units)
		}
		g.ForSale = forSale
		return nil
	})
}

// SetTotalUnits replaces the owner's unit count, clamping the offer down if
// it would exceed the new total.
func (e *Engine) SetTotalUnits(ctx context.Context, ownerID string, units int64) (model.Grid, error) {
	if units < 0 {
		return model.Grid{}, fmt.Errorf("%w: units must be >= 0, got %d", ErrInvalidQuantity, units)
	}
	return e.mutateOwned(ctx, ownerID, func(g *model.Grid) error {
		g.Units = units
		if g.ForSale > units {
			g.ForSale = units
		}
		return nil
	})
}

// SetAvailability opens or closes the owner's grid for purchases.
func (e *Engine) SetAvailability(ctx context.Context, ownerID string, available bool) (model.Grid, error) {
	return e.mutateOwned(ctx, ownerID, func(g *model.Grid) error {
		g.Available = available
		return nil
	})
}

func (e *Engine) mutateOwned(ctx context.Context, ownerID string, mutate func(g *model.Grid) error) (model.Grid, error) {
	owned, err := e.store.GridByOwner(ctx, ownerID)
	if err != nil {
		return model.Grid{}, err
	}

	var out model.Grid
	err = e.update(ctx, []string{owned.ID}, func(tx Tx) error {
		g, err := tx.Grid(owned.ID)
		if err != nil {
			return err
		}
		if err := mutate(&g); err != nil {
			return err
		}
		if err := g.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidQuantity, err)
		}
		g.UpdatedAt = e.now().UTC()
		if err := tx.PutGrid(g); err != nil {
			return err
		}
		out = g
		return nil
	})
	if err != nil {
		return model.Grid{}, err
	}
	e.gridChanged(out)
	return out, nil
}

// rememberAccount keeps the display-name directory current.
func (e *Engine) rememberAccount(ctx context.Context, a model.Account) error {
	if strings.TrimSpace(a.ID) == "" {
		return fmt.Errorf("%w: account id is required", ErrInvalidArgument)
	}
	// Known names are never blanked; unchanged names skip the write.
	known, err := e.store.Account(ctx, a.ID)
	switch {
	case err == nil && (a.Name == "" || a.Name == known.Name):
		return nil
	case err != nil && !errors.Is(err, ErrNotFound):
		return err
	}
	return e.store.PutAccount(ctx, a)
}

// RememberAccount records an authenticated caller's display name.
func (e *Engine) RememberAccount(ctx context.Context, a model.Account) error {
	return e.rememberAccount(ctx, a)
}

func (e *Engine) displayName(ctx context.Context, id string) string {
	a, err := e.store.Account(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			e.log.Warn("account lookup failed", zap.String("account", id), zap.Error(err))
		}
		return ""
	}
	return a.Name
}

func sortGrids(grids []model.Grid) {
	sort.SliceStable(grids, func(i, j int) bool {
		if !grids[i].CreatedAt.Equal(grids[j].CreatedAt) {
			return grids[i].CreatedAt.Before(grids[j].CreatedAt)
		}
		return grids[i].ID < grids[j].ID
	})
}

func cloneOffers(in []model.Offer) []model.Offer {
	out := make([]model.Offer, len(in))
	copy(out, in)
	return out
}
