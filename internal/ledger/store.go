package ledger

import (
	"context"

	"powershare-ledger/internal/model"
)

// Store persists grids, accounts and the append-only transaction log.
//
// Reads may return data that is slightly behind a concurrent Update but never
// a partially applied one.
type Store interface {
	// CreateGrid inserts g. It fails with ErrAlreadyExists if g.OwnerID already owns a grid.
	CreateGrid(ctx context.Context, g model.Grid) error
	Grid(ctx context.Context, id string) (model.Grid, error)
	GridByOwner(ctx context.Context, ownerID string) (model.Grid, error)
	Grids(ctx context.Context) ([]model.Grid, error)

	// Update gives fn exclusive access to the grids named in ids. Everything fn
	// writes through the Tx is committed together when fn returns nil and
	// discarded otherwise. Lock or busy waits that exceed ctx fail with ErrTransient.
	Update(ctx context.Context, ids []string, fn func(tx Tx) error) error

	// Transactions returns every trade where accountID is buyer or seller, oldest first.
	Transactions(ctx context.Context, accountID string) ([]model.Transaction, error)

	PutAccount(ctx context.Context, a model.Account) error
	Account(ctx context.Context, id string) (model.Account, error)
}

// Tx is the write view handed to Store.Update.
type Tx interface {
	Grid(id string) (model.Grid, error)
	PutGrid(g model.Grid) error
	// CreateGrid inserts g as part of the update. The grid becomes visible
	// only on commit; if g.OwnerID already owns a grid the commit fails with
	// ErrAlreadyExists.
	CreateGrid(g model.Grid) error
	AppendTransaction(t model.Transaction) error
}
