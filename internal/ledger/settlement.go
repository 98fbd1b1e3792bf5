package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"powershare-ledger/internal/model"
)

// Receipt is the outcome of a successful Buy.
type Receipt struct {
	Transaction   model.Transaction `json:"transaction"`
	BuyerUnits    int64             `json:"buyer_units"`
	SellerForSale int64             `json:"seller_units_for_sell"`
}

// Buy moves units from the seller grid's offer to the buyer's own grid and
// records one completed Transaction. Either all of it happens or none of it.
//
// A buyer without a grid gets one provisioned (closed for trading, zero units)
// in the same atomic step. The owner's later CreateGrid takes it over.
func (e *Engine) Buy(ctx context.Context, buyer model.Account, sellerGridID string, units int64) (Receipt, error) {
	r, err := e.buy(ctx, buyer, sellerGridID, units)
	if err != nil {
		e.rejected(err)
		e.log.Info("buy rejected",
			zap.String("buyer", buyer.ID),
			zap.String("seller_grid", sellerGridID),
			zap.Int64("units", units),
			zap.String("kind", Kind(err)),
			zap.Error(err))
		return Receipt{}, err
	}
	e.log.Debug("buy settled",
		zap.String("tx", r.Transaction.ID),
		zap.String("buyer", buyer.ID),
		zap.String("seller_grid", sellerGridID),
		zap.Int64("units", units),
		zap.String("total", r.Transaction.Total.String()))
	e.settled(r.Transaction)
	return r, nil
}

func (e *Engine) buy(ctx context.Context, buyer model.Account, sellerGridID string, units int64) (Receipt, error) {
	if units < 1 {
		return Receipt{}, fmt.Errorf("%w: must buy at least 1 unit, got %d", ErrInvalidQuantity, units)
	}
	if buyer.ID == "" {
		return Receipt{}, fmt.Errorf("%w: buyer id is required", ErrInvalidArgument)
	}

	// Orders that already fail on a snapshot never take a lock. The same
	// checks are repeated under lock.
	seller, err := e.store.Grid(ctx, sellerGridID)
	if err != nil {
		return Receipt{}, err
	}
	if err := checkOrder(seller, buyer.ID, units); err != nil {
		return Receipt{}, err
	}
	if err := e.rememberAccount(ctx, buyer); err != nil {
		return Receipt{}, err
	}

	r, provisioned, err := e.settle(ctx, buyer, seller.ID, units)
	if provisioned && errors.Is(err, ErrAlreadyExists) {
		// Another request from the same buyer provisioned the grid first.
		r, _, err = e.settle(ctx, buyer, seller.ID, units)
	}
	return r, err
}

// settle runs one buy attempt. If the buyer has no grid, one is created
// inside the same update so a rejected order leaves nothing behind; the
// returned flag reports whether this attempt tried to do so.
func (e *Engine) settle(ctx context.Context, buyer model.Account, sellerID string, units int64) (Receipt, bool, error) {
	ids := []string{sellerID}
	existing, err := e.store.GridByOwner(ctx, buyer.ID)
	switch {
	case err == nil:
		ids = append(ids, existing.ID)
	case errors.Is(err, ErrNotFound):
		existing = model.Grid{}
	default:
		return Receipt{}, false, err
	}
	provision := existing.ID == ""

	var r Receipt
	var touched [2]model.Grid
	err = e.update(ctx, ids, func(tx Tx) error {
		s, err := tx.Grid(sellerID)
		if err != nil {
			return err
		}
		if err := checkOrder(s, buyer.ID, units); err != nil {
			return err
		}

		now := e.now().UTC()
		var b model.Grid
		if provision {
			b = e.provisionedGrid(buyer, now)
		} else if b, err = tx.Grid(existing.ID); err != nil {
			return err
		}

		price := e.priceFor(s)

		s.ForSale -= units
		s.Units -= units
		s.UpdatedAt = now
		b.Units += units
		b.UpdatedAt = now

		t := model.Transaction{
			ID:           e.newID(),
			BuyerID:      buyer.ID,
			BuyerGridID:  b.ID,
			SellerID:     s.OwnerID,
			SellerGridID: s.ID,
			Units:        units,
			PricePerUnit: price,
			Total:        price.Mul(decimal.NewFromInt(units)),
			CreatedAt:    now,
			Status:       model.StatusCompleted,
		}

		if err := tx.PutGrid(s); err != nil {
			return err
		}
		if provision {
			err = tx.CreateGrid(b)
		} else {
			err = tx.PutGrid(b)
		}
		if err != nil {
			return err
		}
		if err := tx.AppendTransaction(t); err != nil {
			return err
		}

		r = Receipt{Transaction: t, BuyerUnits: b.Units, SellerForSale: s.ForSale}
		touched = [2]model.Grid{s, b}
		return nil
	})
	if err != nil {
		return Receipt{}, provision, err
	}
	if provision {
		e.log.Info("buyer grid provisioned", zap.String("grid", touched[1].ID), zap.String("owner", buyer.ID))
	}
	for _, g := range touched {
		e.gridChanged(g)
	}
	return r, provision, nil
}

// checkOrder applies the buy validation steps in order: availability, supply, self trade.
func checkOrder(seller model.Grid, buyerID string, units int64) error {
	if !seller.Available {
		return fmt.Errorf("%w: grid %s is not open for trading", ErrUnavailable, seller.ID)
	}
	if units > seller.ForSale {
		return fmt.Errorf("%w: requested %d units, %d offered", ErrInsufficientSupply, units, seller.ForSale)
	}
	if seller.OwnerID == buyerID {
		return fmt.Errorf("%w: grid %s", ErrSelfTrade, seller.ID)
	}
	return nil
}

// provisionedGrid is the closed, empty placeholder a first-time buyer receives.
func (e *Engine) provisionedGrid(buyer model.Account, now time.Time) model.Grid {
	name := buyer.Name
	if name == "" {
		name = buyer.ID
	}
	return model.Grid{
		ID:          e.newID(),
		OwnerID:     buyer.ID,
		Name:        name + " grid",
		Provisioned: true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
