package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"powershare-ledger/internal/cache"
	"powershare-ledger/internal/model"
)

// Observer is told about committed changes. Calls happen after the store
// commit, outside any grid lock, and must not block.
type Observer interface {
	TradeSettled(t model.Transaction)
	TradeRejected(kind string)
	GridChanged(g model.Grid)
}

// NopObserver implements Observer with no-ops; embed it to pick methods.
type NopObserver struct{}

func (NopObserver) TradeSettled(model.Transaction) {}
func (NopObserver) TradeRejected(string)           {}
func (NopObserver) GridChanged(model.Grid)         {}

// Engine owns grid records, settles trades and answers history queries.
type Engine struct {
	store       Store
	price       decimal.Decimal
	lockTimeout time.Duration
	observers   []Observer
	offers      *cache.Snapshot[[]model.Offer]
	log         *zap.Logger

	now   func() time.Time
	newID func() string
}

type Option func(*Engine)

// WithPrice sets the process-wide price per unit.
func WithPrice(p decimal.Decimal) Option { return func(e *Engine) { e.price = p } }

// WithLockTimeout bounds how long a write waits for grid locks.
func WithLockTimeout(d time.Duration) Option { return func(e *Engine) { e.lockTimeout = d } }

func WithObserver(o Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observers = append(e.observers, o)
		}
	}
}

// WithOfferCache serves ListOffers from a snapshot at most ttl old.
// Any grid change drops the snapshot.
func WithOfferCache(ttl time.Duration) Option {
	return func(e *Engine) {
		if ttl > 0 {
			e.offers = cache.NewSnapshot[[]model.Offer](ttl)
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

func New(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:       store,
		price:       decimal.NewFromInt(1),
		lockTimeout: 2 * time.Second,
		log:         zap.NewNop(),
		now:         time.Now,
		newID:       uuid.NewString,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Price is the process-wide price per unit.
func (e *Engine) Price() decimal.Decimal { return e.price }

func (e *Engine) priceFor(g model.Grid) decimal.Decimal {
	if g.PricePerUnit.IsPositive() {
		return g.PricePerUnit
	}
	return e.price
}

// update runs a store write bounded by the lock timeout.
func (e *Engine) update(ctx context.Context, ids []string, fn func(tx Tx) error) error {
	if e.lockTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.lockTimeout)
		defer cancel()
	}
	return e.store.Update(ctx, ids, fn)
}

func (e *Engine) gridChanged(g model.Grid) {
	e.offers.Invalidate()
	for _, o := range e.observers {
		o.GridChanged(g)
	}
}

func (e *Engine) settled(t model.Transaction) {
	for _, o := range e.observers {
		o.TradeSettled(t)
	}
}

func (e *Engine) rejected(err error) {
	kind := Kind(err)
	for _, o := range e.observers {
		o.TradeRejected(kind)
	}
}
