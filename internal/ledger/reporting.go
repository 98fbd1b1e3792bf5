package ledger

import (
	"context"
	"errors"
	"sort"

	"go.uber.org/zap"

	"powershare-ledger/internal/model"
)

// TransactionHistory lists every trade the account took part in, newest
// first, with running totals. It reads only the transaction log.
func (e *Engine) TransactionHistory(ctx context.Context, accountID string) (model.History, error) {
	txs, err := e.store.Transactions(ctx, accountID)
	if err != nil {
		return model.History{}, err
	}

	names := map[string]string{}
	gridNames := map[string]string{}
	lookupName := func(id string) string {
		if n, ok := names[id]; ok {
			return n
		}
		n := e.displayName(ctx, id)
		names[id] = n
		return n
	}
	lookupGrid := func(id string) string {
		if n, ok := gridNames[id]; ok {
			return n
		}
		g, err := e.store.Grid(ctx, id)
		if err != nil && !errors.Is(err, ErrNotFound) {
			e.log.Warn("grid lookup failed", zap.String("grid", id), zap.Error(err))
		}
		gridNames[id] = g.Name
		return g.Name
	}

	h := model.History{Entries: make([]model.HistoryEntry, 0, len(txs))}
	for i := len(txs) - 1; i >= 0; i-- {
		t := txs[i]
		entry := model.HistoryEntry{Transaction: t, Role: t.RoleFor(accountID)}
		switch entry.Role {
		case model.RoleBought:
			entry.CounterpartyID = t.SellerID
			entry.CounterpartyGridName = lookupGrid(t.SellerGridID)
			h.TotalUnitsBought += t.Units
		case model.RoleSold:
			entry.CounterpartyID = t.BuyerID
			entry.CounterpartyGridName = lookupGrid(t.BuyerGridID)
			h.TotalUnitsSold += t.Units
		default:
			continue
		}
		entry.CounterpartyName = lookupName(entry.CounterpartyID)
		h.Entries = append(h.Entries, entry)
	}
	h.TotalCount = len(h.Entries)
	return h, nil
}

// MonthlyEnergySummary buckets the account's trades by UTC calendar month.
// Months without trades are omitted; the result is in ascending month order.
func (e *Engine) MonthlyEnergySummary(ctx context.Context, accountID string) ([]model.MonthlySummary, error) {
	txs, err := e.store.Transactions(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return summarizeMonthly(txs, accountID), nil
}

func summarizeMonthly(txs []model.Transaction, accountID string) []model.MonthlySummary {
	byMonth := map[string]*model.MonthlySummary{}
	for _, t := range txs {
		role := t.RoleFor(accountID)
		if role == "" {
			continue
		}
		month := t.CreatedAt.UTC().Format("2006-01")
		m, ok := byMonth[month]
		if !ok {
			m = &model.MonthlySummary{Month: month}
			byMonth[month] = m
		}
		switch role {
		case model.RoleBought:
			m.Bought += t.Units
		case model.RoleSold:
			m.Sold += t.Units
		}
	}

	out := make([]model.MonthlySummary, 0, len(byMonth))
	for _, m := range byMonth {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out
}
