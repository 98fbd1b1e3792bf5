package ledger

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"powershare-ledger/internal/model"
)

// WriteHistoryCSV writes one row per history entry to path.
func WriteHistoryCSV(path string, h model.History) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	return EncodeHistoryCSV(f, h)
}

func EncodeHistoryCSV(out io.Writer, h model.History) error {
	w := csv.NewWriter(out)
	defer w.Flush()

	header := []string{
		"id",
		"created_at",
		"role",
		"counterparty_id",
		"counterparty_name",
		"counterparty_grid",
		"units",
		"price_per_unit",
		"total",
		"status",
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for _, e := range h.Entries {
		row := []string{
			e.ID,
			fmtTime(e.CreatedAt),
			string(e.Role),
			e.CounterpartyID,
			e.CounterpartyName,
			e.CounterpartyGridName,
			strconv.FormatInt(e.Units, 10),
			e.PricePerUnit.String(),
			e.Total.String(),
			string(e.Status),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
