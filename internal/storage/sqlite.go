package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"powershare-ledger/internal/ledger"
	"powershare-ledger/internal/model"
)

const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLite is a ledger.Store backed by a SQLite file. Every Update runs in a
// BEGIN IMMEDIATE transaction, so writers are serialized by the database.
type SQLite struct {
	db     *sql.DB
	dbPath string
	log    *zap.Logger
}

// OpenSQLite creates or opens the ledger database at path.
func OpenSQLite(path string, log *zap.Logger) (*SQLite, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &SQLite{db: db, dbPath: path, log: log}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	log.Info("ledger database ready", zap.String("path", path))
	return s, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Path() string {
	return s.dbPath
}

func (s *SQLite) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS grids (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		latitude REAL NOT NULL,
		longitude REAL NOT NULL,
		units INTEGER NOT NULL CHECK (units >= 0),
		units_for_sale INTEGER NOT NULL CHECK (units_for_sale >= 0 AND units_for_sale <= units),
		available INTEGER NOT NULL,
		price_per_unit TEXT NOT NULL DEFAULT '0',
		provisioned INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Append-only; rows are never updated or deleted.
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		buyer_id TEXT NOT NULL,
		buyer_grid_id TEXT NOT NULL,
		seller_id TEXT NOT NULL,
		seller_grid_id TEXT NOT NULL,
		units INTEGER NOT NULL CHECK (units > 0),
		price_per_unit TEXT NOT NULL,
		total TEXT NOT NULL,
		created_at TEXT NOT NULL,
		status TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_transactions_buyer ON transactions(buyer_id);
	CREATE INDEX IF NOT EXISTS idx_transactions_seller ON transactions(seller_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return s.addColumn("grids", "provisioned", "INTEGER NOT NULL DEFAULT 0")
}

// addColumn upgrades databases created before the column existed.
func (s *SQLite) addColumn(table, column, decl string) error {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column).Scan(&n)
	if err != nil || n > 0 {
		return err
	}
	s.log.Info("migrating schema", zap.String("table", table), zap.String("column", column))
	_, err = s.db.Exec(`ALTER TABLE ` + table + ` ADD COLUMN ` + column + ` ` + decl)
	return err
}

const gridColumns = `id, owner_id, name, latitude, longitude, units, units_for_sale, available, price_per_unit, provisioned, created_at, updated_at`
const gridInsert = `INSERT INTO grids (` + gridColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// queryer is satisfied by *sql.DB and *sql.Conn.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLite) CreateGrid(ctx context.Context, g model.Grid) error {
	if err := g.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ledger.ErrInvalidQuantity, err)
	}
	_, err := s.db.ExecContext(ctx, gridInsert, gridArgs(g)...)
	if isConstraint(err) {
		return fmt.Errorf("%w: owner %s already has a grid", ledger.ErrAlreadyExists, g.OwnerID)
	}
	return classify(err)
}

func (s *SQLite) Grid(ctx context.Context, id string) (model.Grid, error) {
	return getGrid(ctx, s.db, `SELECT `+gridColumns+` FROM grids WHERE id = ?`, id)
}

func (s *SQLite) GridByOwner(ctx context.Context, ownerID string) (model.Grid, error) {
	return getGrid(ctx, s.db, `SELECT `+gridColumns+` FROM grids WHERE owner_id = ?`, ownerID)
}

func (s *SQLite) Grids(ctx context.Context) ([]model.Grid, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+gridColumns+` FROM grids`)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []model.Grid
	for rows.Next() {
		g, err := scanGrid(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, classify(rows.Err())
}

func (s *SQLite) Update(ctx context.Context, ids []string, fn func(tx ledger.Tx) error) (err error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ledger.ErrTransient, err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return fmt.Errorf("%w: begin: %v", ledger.ErrTransient, err)
	}
	defer func() {
		if err != nil {
			// Use a fresh context: ctx may be the reason we are rolling back.
			if _, rbErr := conn.ExecContext(context.Background(), "ROLLBACK"); rbErr != nil {
				s.log.Warn("rollback failed", zap.Error(rbErr))
			}
		}
	}()

	for _, id := range ids {
		var one int
		if err := conn.QueryRowContext(ctx, `SELECT 1 FROM grids WHERE id = ?`, id).Scan(&one); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: grid %s", ledger.ErrNotFound, id)
			}
			return classify(err)
		}
	}

	tx := &sqliteTx{ctx: ctx, conn: conn, allowed: map[string]bool{}}
	for _, id := range ids {
		tx.allowed[id] = true
	}
	if err := fn(tx); err != nil {
		return err
	}
	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return classify(err)
	}
	return nil
}

func (s *SQLite) Transactions(ctx context.Context, accountID string) ([]model.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, buyer_id, buyer_grid_id, seller_id, seller_grid_id, units, price_per_unit, total, created_at, status
		FROM transactions
		WHERE buyer_id = ? OR seller_id = ?
		ORDER BY rowid`, accountID, accountID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []model.Transaction
	for rows.Next() {
		var (
			t                   model.Transaction
			price, total, stamp string
			status              string
		)
		if err := rows.Scan(&t.ID, &t.BuyerID, &t.BuyerGridID, &t.SellerID, &t.SellerGridID,
			&t.Units, &price, &total, &stamp, &status); err != nil {
			return nil, err
		}
		if t.PricePerUnit, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("transaction %s price: %w", t.ID, err)
		}
		if t.Total, err = decimal.NewFromString(total); err != nil {
			return nil, fmt.Errorf("transaction %s total: %w", t.ID, err)
		}
		if t.CreatedAt, err = time.Parse(timeLayout, stamp); err != nil {
			return nil, fmt.Errorf("transaction %s created_at: %w", t.ID, err)
		}
		t.Status = model.Status(status)
		out = append(out, t)
	}
	return out, classify(rows.Err())
}

func (s *SQLite) PutAccount(ctx context.Context, a model.Account) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (id, name) VALUES (?, ?) ON CONFLICT(id) DO UPDATE SET name = excluded.name`,
		a.ID, a.Name)
	return classify(err)
}

func (s *SQLite) Account(ctx context.Context, id string) (model.Account, error) {
	a := model.Account{ID: id}
	err := s.db.QueryRowContext(ctx, `SELECT name FROM accounts WHERE id = ?`, id).Scan(&a.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Account{}, fmt.Errorf("%w: account %s", ledger.ErrNotFound, id)
	}
	if err != nil {
		return model.Account{}, classify(err)
	}
	return a, nil
}

type sqliteTx struct {
	ctx     context.Context
	conn    *sql.Conn
	allowed map[string]bool
}

func (t *sqliteTx) Grid(id string) (model.Grid, error) {
	if !t.allowed[id] {
		return model.Grid{}, fmt.Errorf("grid %s is not part of this update", id)
	}
	return getGrid(t.ctx, t.conn, `SELECT `+gridColumns+` FROM grids WHERE id = ?`, id)
}

func (t *sqliteTx) PutGrid(g model.Grid) error {
	if !t.allowed[g.ID] {
		return fmt.Errorf("grid %s is not part of this update", g.ID)
	}
	if err := g.Validate(); err != nil {
		return fmt.Errorf("%w: grid %s: %v", ledger.ErrInvalidQuantity, g.ID, err)
	}
	res, err := t.conn.ExecContext(t.ctx, `
		UPDATE grids SET name = ?, latitude = ?, longitude = ?, units = ?, units_for_sale = ?,
			available = ?, price_per_unit = ?, provisioned = ?, updated_at = ?
		WHERE id = ? AND owner_id = ?`,
		g.Name, g.Location.Latitude, g.Location.Longitude, g.Units, g.ForSale,
		boolInt(g.Available), g.PricePerUnit.String(), boolInt(g.Provisioned),
		g.UpdatedAt.UTC().Format(timeLayout),
		g.ID, g.OwnerID)
	if err != nil {
		return classify(err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return fmt.Errorf("%w: grid owner cannot change", ledger.ErrInvalidArgument)
	}
	return nil
}

// CreateGrid inserts inside the open transaction, so a later failure in the
// same update rolls the grid back too.
func (t *sqliteTx) CreateGrid(g model.Grid) error {
	if err := g.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ledger.ErrInvalidQuantity, err)
	}
	_, err := t.conn.ExecContext(t.ctx, gridInsert, gridArgs(g)...)
	if isConstraint(err) {
		return fmt.Errorf("%w: owner %s already has a grid", ledger.ErrAlreadyExists, g.OwnerID)
	}
	if err != nil {
		return classify(err)
	}
	t.allowed[g.ID] = true
	return nil
}

func (t *sqliteTx) AppendTransaction(tr model.Transaction) error {
	if tr.Units < 1 {
		return fmt.Errorf("%w: transaction units must be positive", ledger.ErrInvalidQuantity)
	}
	_, err := t.conn.ExecContext(t.ctx, `
		INSERT INTO transactions (id, buyer_id, buyer_grid_id, seller_id, seller_grid_id, units, price_per_unit, total, created_at, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tr.ID, tr.BuyerID, tr.BuyerGridID, tr.SellerID, tr.SellerGridID, tr.Units,
		tr.PricePerUnit.String(), tr.Total.String(), tr.CreatedAt.UTC().Format(timeLayout), string(tr.Status))
	if isConstraint(err) {
		return fmt.Errorf("%w: transaction %s", ledger.ErrAlreadyExists, tr.ID)
	}
	return classify(err)
}

type scanner interface {
	Scan(dest ...any) error
}

func getGrid(ctx context.Context, q queryer, query string, arg string) (model.Grid, error) {
	g, err := scanGrid(q.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Grid{}, fmt.Errorf("%w: grid %s", ledger.ErrNotFound, arg)
	}
	return g, err
}

func scanGrid(row scanner) (model.Grid, error) {
	var (
		g                model.Grid
		available, prov  int
		price            string
		created, updated string
	)
	err := row.Scan(&g.ID, &g.OwnerID, &g.Name, &g.Location.Latitude, &g.Location.Longitude,
		&g.Units, &g.ForSale, &available, &price, &prov, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Grid{}, err
		}
		return model.Grid{}, classify(err)
	}
	g.Available = available != 0
	g.Provisioned = prov != 0
	if g.PricePerUnit, err = decimal.NewFromString(price); err != nil {
		return model.Grid{}, fmt.Errorf("grid %s price: %w", g.ID, err)
	}
	if g.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return model.Grid{}, fmt.Errorf("grid %s created_at: %w", g.ID, err)
	}
	if g.UpdatedAt, err = time.Parse(timeLayout, updated); err != nil {
		return model.Grid{}, fmt.Errorf("grid %s updated_at: %w", g.ID, err)
	}
	return g, nil
}

func gridArgs(g model.Grid) []any {
	return []any{
		g.ID, g.OwnerID, g.Name, g.Location.Latitude, g.Location.Longitude,
		g.Units, g.ForSale, boolInt(g.Available), g.PricePerUnit.String(), boolInt(g.Provisioned),
		g.CreatedAt.UTC().Format(timeLayout), g.UpdatedAt.UTC().Format(timeLayout),
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isConstraint(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
}

// classify marks busy and cancelled waits as transient.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ledger.ErrTransient, err)
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_INTERRUPT:
			return fmt.Errorf("%w: %v", ledger.ErrTransient, err)
		}
	}
	return err
}
