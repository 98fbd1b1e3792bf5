// Package storage implements ledger.Store in memory and on SQLite.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"powershare-ledger/internal/ledger"
	"powershare-ledger/internal/model"
)

// gridSlot holds one grid. Writers serialize on sem; readers load cur
// without waiting for them.
type gridSlot struct {
	sem *semaphore.Weighted
	cur atomic.Pointer[model.Grid]
}

func newSlot(g model.Grid) *gridSlot {
	s := &gridSlot{sem: semaphore.NewWeighted(1)}
	s.cur.Store(&g)
	return s
}

// Memory is an in-process ledger.Store with one exclusive lock per grid.
// Updates lock their grids in ascending id order, so two trades between the
// same pair of grids in opposite directions cannot deadlock.
type Memory struct {
	mu     sync.RWMutex // guards the index maps, not grid contents
	grids  map[string]*gridSlot
	owners map[string]string

	logMu   sync.RWMutex
	txs     []model.Transaction
	txIDs   map[string]struct{}
	byParty map[string][]int

	accMu    sync.RWMutex
	accounts map[string]model.Account
}

func NewMemory() *Memory {
	return &Memory{
		grids:    make(map[string]*gridSlot),
		owners:   make(map[string]string),
		txIDs:    make(map[string]struct{}),
		byParty:  make(map[string][]int),
		accounts: make(map[string]model.Account),
	}
}

func (m *Memory) CreateGrid(ctx context.Context, g model.Grid) error {
	if err := g.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ledger.ErrInvalidQuantity, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.owners[g.OwnerID]; ok {
		return fmt.Errorf("%w: owner %s already has grid %s", ledger.ErrAlreadyExists, g.OwnerID, id)
	}
	if _, ok := m.grids[g.ID]; ok {
		return fmt.Errorf("%w: grid %s", ledger.ErrAlreadyExists, g.ID)
	}
	m.grids[g.ID] = newSlot(g)
	m.owners[g.OwnerID] = g.ID
	return nil
}

func (m *Memory) slot(id string) (*gridSlot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.grids[id]
	return s, ok
}

func (m *Memory) Grid(ctx context.Context, id string) (model.Grid, error) {
	s, ok := m.slot(id)
	if !ok {
		return model.Grid{}, fmt.Errorf("%w: grid %s", ledger.ErrNotFound, id)
	}
	return *s.cur.Load(), nil
}

func (m *Memory) GridByOwner(ctx context.Context, ownerID string) (model.Grid, error) {
	m.mu.RLock()
	id, ok := m.owners[ownerID]
	m.mu.RUnlock()
	if !ok {
		return model.Grid{}, fmt.Errorf("%w: no grid for owner %s", ledger.ErrNotFound, ownerID)
	}
	return m.Grid(ctx, id)
}

func (m *Memory) Grids(ctx context.Context) ([]model.Grid, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.Grid, 0, len(m.grids))
	for _, s := range m.grids {
		out = append(out, *s.cur.Load())
	}
	return out, nil
}

func (m *Memory) Update(ctx context.Context, ids []string, fn func(tx ledger.Tx) error) error {
	ids = sortedUnique(ids)

	slots := make([]*gridSlot, len(ids))
	for i, id := range ids {
		s, ok := m.slot(id)
		if !ok {
			return fmt.Errorf("%w: grid %s", ledger.ErrNotFound, id)
		}
		slots[i] = s
	}

	locked := 0
	defer func() {
		for i := locked - 1; i >= 0; i-- {
			slots[i].sem.Release(1)
		}
	}()
	for i, s := range slots {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			return fmt.Errorf("%w: waiting for grid %s: %v", ledger.ErrTransient, ids[i], err)
		}
		locked++
	}

	tx := &memTx{
		slots:   make(map[string]*gridSlot, len(ids)),
		staged:  map[string]model.Grid{},
		created: map[string]model.Grid{},
	}
	for i, id := range ids {
		tx.slots[id] = slots[i]
	}
	if err := fn(tx); err != nil {
		return err
	}
	return m.commit(tx)
}

// commit publishes staged writes. Called with every staged grid locked.
func (m *Memory) commit(tx *memTx) error {
	for _, g := range tx.staged {
		if err := g.Validate(); err != nil {
			return fmt.Errorf("%w: grid %s: %v", ledger.ErrInvalidQuantity, g.ID, err)
		}
	}
	for _, g := range tx.created {
		if err := g.Validate(); err != nil {
			return fmt.Errorf("%w: grid %s: %v", ledger.ErrInvalidQuantity, g.ID, err)
		}
	}

	// New grids take the index lock for the whole publish, so readers never
	// see a created grid without the trade that created it.
	if len(tx.created) > 0 {
		m.mu.Lock()
		defer m.mu.Unlock()
		for _, g := range tx.created {
			if id, ok := m.owners[g.OwnerID]; ok {
				return fmt.Errorf("%w: owner %s already has grid %s", ledger.ErrAlreadyExists, g.OwnerID, id)
			}
			if _, ok := m.grids[g.ID]; ok {
				return fmt.Errorf("%w: grid %s", ledger.ErrAlreadyExists, g.ID)
			}
		}
	}

	m.logMu.Lock()
	defer m.logMu.Unlock()

	for _, t := range tx.txs {
		if _, dup := m.txIDs[t.ID]; dup {
			return fmt.Errorf("%w: transaction %s", ledger.ErrAlreadyExists, t.ID)
		}
	}
	for id, g := range tx.staged {
		tx.slots[id].cur.Store(&g)
	}
	for _, g := range tx.created {
		m.grids[g.ID] = newSlot(g)
		m.owners[g.OwnerID] = g.ID
	}
	for _, t := range tx.txs {
		idx := len(m.txs)
		m.txs = append(m.txs, t)
		m.txIDs[t.ID] = struct{}{}
		m.byParty[t.BuyerID] = append(m.byParty[t.BuyerID], idx)
		m.byParty[t.SellerID] = append(m.byParty[t.SellerID], idx)
	}
	return nil
}

func (m *Memory) Transactions(ctx context.Context, accountID string) ([]model.Transaction, error) {
	m.logMu.RLock()
	defer m.logMu.RUnlock()

	idxs := m.byParty[accountID]
	out := make([]model.Transaction, 0, len(idxs))
	for _, i := range idxs {
		out = append(out, m.txs[i])
	}
	return out, nil
}

func (m *Memory) PutAccount(ctx context.Context, a model.Account) error {
	m.accMu.Lock()
	defer m.accMu.Unlock()
	m.accounts[a.ID] = a
	return nil
}

func (m *Memory) Account(ctx context.Context, id string) (model.Account, error) {
	m.accMu.RLock()
	defer m.accMu.RUnlock()
	a, ok := m.accounts[id]
	if !ok {
		return model.Account{}, fmt.Errorf("%w: account %s", ledger.ErrNotFound, id)
	}
	return a, nil
}

// memTx stages writes against locked slots until commit.
type memTx struct {
	slots   map[string]*gridSlot
	staged  map[string]model.Grid
	created map[string]model.Grid
	txs     []model.Transaction
}

func (t *memTx) Grid(id string) (model.Grid, error) {
	if g, ok := t.staged[id]; ok {
		return g, nil
	}
	if g, ok := t.created[id]; ok {
		return g, nil
	}
	s, ok := t.slots[id]
	if !ok {
		return model.Grid{}, fmt.Errorf("grid %s is not locked by this update", id)
	}
	return *s.cur.Load(), nil
}

func (t *memTx) PutGrid(g model.Grid) error {
	if cur, ok := t.created[g.ID]; ok {
		if cur.OwnerID != g.OwnerID {
			return fmt.Errorf("%w: grid owner cannot change", ledger.ErrInvalidArgument)
		}
		t.created[g.ID] = g
		return nil
	}
	s, ok := t.slots[g.ID]
	if !ok {
		return fmt.Errorf("grid %s is not locked by this update", g.ID)
	}
	if cur := s.cur.Load(); cur.OwnerID != g.OwnerID {
		return fmt.Errorf("%w: grid owner cannot change", ledger.ErrInvalidArgument)
	}
	t.staged[g.ID] = g
	return nil
}

func (t *memTx) CreateGrid(g model.Grid) error {
	if err := g.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ledger.ErrInvalidQuantity, err)
	}
	if _, ok := t.slots[g.ID]; ok {
		return fmt.Errorf("%w: grid %s", ledger.ErrAlreadyExists, g.ID)
	}
	for _, c := range t.created {
		if c.ID == g.ID || c.OwnerID == g.OwnerID {
			return fmt.Errorf("%w: owner %s already has a grid", ledger.ErrAlreadyExists, g.OwnerID)
		}
	}
	t.created[g.ID] = g
	return nil
}

func (t *memTx) AppendTransaction(tr model.Transaction) error {
	if tr.Units < 1 {
		return fmt.Errorf("%w: transaction units must be positive", ledger.ErrInvalidQuantity)
	}
	t.txs = append(t.txs, tr)
	return nil
}

func sortedUnique(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
