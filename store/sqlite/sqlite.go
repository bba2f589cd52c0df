/*
Package sqlite provides a SQLite-backed implementation of the ledger stores.

PURPOSE:
  Implements ledger.TxStore and ledger.OptionStore on a single relational
  table of per-year rows plus an options vocabulary table.

KEY TABLES:
  ledger_rows: one row per (instrument_id, year), twelve month columns,
               every descriptive field denormalized
  options:     (type, value) vocabularies for bank and account_type

ROW IDENTITY:
  ledger_rows.id is an AUTOINCREMENT surrogate. It is only used to pick the
  earliest-inserted row per reference for unique-only views.

MONTH COLUMNS:
  Stored as TEXT decimal strings, like every amount in this codebase.
  Values that fail to parse on read are treated as 0.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety: readers share, writers are
  exclusive. ReplaceRows runs delete + insert in one SQL transaction.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) and a busy timeout so
  exports read a consistent snapshot while a writer is active.

USAGE:
  store, err := sqlite.New("./data/ledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"cloud.google.com/go/civil"
	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/instrument-ledger/ledger"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS ledger_rows (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		instrument_id TEXT NOT NULL,
		reference_name TEXT NOT NULL,
		bank TEXT NOT NULL,
		account_type TEXT NOT NULL,
		saving_invested TEXT NOT NULL,
		status TEXT NOT NULL,
		year INTEGER NOT NULL,
		maturity_date TEXT NOT NULL DEFAULT '',
		jan TEXT, feb TEXT, mar TEXT, apr TEXT, may TEXT, jun TEXT,
		jul TEXT, aug TEXT, sep TEXT, oct TEXT, nov TEXT, dec TEXT,
		notepad TEXT NOT NULL DEFAULT '',
		UNIQUE(instrument_id, year)
	);

	CREATE INDEX IF NOT EXISTS idx_ledger_rows_reference
		ON ledger_rows(reference_name, year);
	CREATE INDEX IF NOT EXISTS idx_ledger_rows_maturity
		ON ledger_rows(maturity_date) WHERE maturity_date != '';

	CREATE TABLE IF NOT EXISTS options (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		type TEXT NOT NULL,
		value TEXT NOT NULL,
		UNIQUE(type, value)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

const rowColumns = `id, instrument_id, reference_name, bank, account_type, saving_invested, status,
	year, maturity_date, jan, feb, mar, apr, may, jun, jul, aug, sep, oct, nov, dec, notepad`

// =============================================================================
// LEDGER STORE (ledger.Store interface)
// =============================================================================

// ReplaceRows deletes every row of id and inserts rows atomically.
func (s *Store) ReplaceRows(ctx context.Context, id ledger.InstrumentID, rows []ledger.Row) error {
	return s.WithTx(ctx, func(tx ledger.Store) error {
		return tx.ReplaceRows(ctx, id, rows)
	})
}

func replaceRows(ctx context.Context, q querier, id ledger.InstrumentID, rows []ledger.Row) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM ledger_rows WHERE instrument_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete rows: %w", err)
	}

	query := `
		INSERT INTO ledger_rows (
			instrument_id, reference_name, bank, account_type, saving_invested, status,
			year, maturity_date,
			jan, feb, mar, apr, may, jun, jul, aug, sep, oct, nov, dec,
			notepad
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for _, r := range rows {
		args := []any{
			id, r.Reference, r.Bank, string(r.AccountType), string(r.Classification), string(r.Status),
			r.Year, ledger.FormatDate(r.MaturityDate),
		}
		for _, v := range r.Months {
			args = append(args, v.String())
		}
		args = append(args, r.Note)

		if _, err := q.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to insert row %s/%d: %w", id, r.Year, err)
		}
	}
	return nil
}

// DeleteByReference removes every row with the given reference name.
func (s *Store) DeleteByReference(ctx context.Context, reference string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteByReference(ctx, s.db, reference)
}

func deleteByReference(ctx context.Context, q querier, reference string) (int, error) {
	res, err := q.ExecContext(ctx, "DELETE FROM ledger_rows WHERE reference_name = ?", reference)
	if err != nil {
		return 0, fmt.Errorf("failed to delete reference %q: %w", reference, err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// FindByInstrument returns the rows of one instrument ordered by year.
func (s *Store) FindByInstrument(ctx context.Context, id ledger.InstrumentID) ([]ledger.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findByInstrument(ctx, s.db, id)
}

func findByInstrument(ctx context.Context, q querier, id ledger.InstrumentID) ([]ledger.Row, error) {
	return queryRows(ctx, q,
		"SELECT "+rowColumns+" FROM ledger_rows WHERE instrument_id = ? ORDER BY year, id", id)
}

// Query applies the filter. An empty filter returns no rows.
func (s *Store) Query(ctx context.Context, f ledger.Filter) ([]ledger.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryFiltered(ctx, s.db, f)
}

func queryFiltered(ctx context.Context, q querier, f ledger.Filter) ([]ledger.Row, error) {
	if f.IsEmpty() {
		return nil, nil
	}
	query, args := buildFilter(f)
	return queryRows(ctx, q, query, args...)
}

// buildFilter renders the filter as SQL. LIKE is ASCII case-insensitive
// in SQLite, matching ledger.Filter.Match; % and _ in values match literally.
func buildFilter(f ledger.Filter) (string, []any) {
	var (
		where []string
		args  []any
	)
	like := func(column, value string) {
		if value != "" {
			where = append(where, column+` LIKE ? ESCAPE '\'`)
			args = append(args, "%"+likeEscaper.Replace(value)+"%")
		}
	}
	like("bank", f.Bank)
	like("account_type", f.AccountType)
	like("saving_invested", f.Classification)
	like("status", f.Status)
	like("CAST(year AS TEXT)", f.Year)

	if !f.MaturityFrom.IsZero() {
		where = append(where, "maturity_date != '' AND maturity_date >= ?")
		args = append(args, f.MaturityFrom.String())
	}
	if !f.MaturityTo.IsZero() {
		where = append(where, "maturity_date != '' AND maturity_date <= ?")
		args = append(args, f.MaturityTo.String())
	}
	if f.UniqueOnly {
		where = append(where, "id IN (SELECT MIN(id) FROM ledger_rows GROUP BY reference_name)")
	}

	query := "SELECT " + rowColumns + " FROM ledger_rows"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	return query + " ORDER BY reference_name, year, id", args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Scan returns every row ordered by reference and year.
func (s *Store) Scan(ctx context.Context) ([]ledger.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return scanAll(ctx, s.db)
}

func scanAll(ctx context.Context, q querier) ([]ledger.Row, error) {
	return queryRows(ctx, q, "SELECT "+rowColumns+" FROM ledger_rows ORDER BY reference_name, year, id")
}

// CloseExpired marks rows past maturity as Closed.
func (s *Store) CloseExpired(ctx context.Context, today civil.Date) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return closeExpired(ctx, s.db, today)
}

func closeExpired(ctx context.Context, q querier, today civil.Date) (int, error) {
	res, err := q.ExecContext(ctx, `
		UPDATE ledger_rows
		SET status = ?
		WHERE maturity_date != ''
		  AND maturity_date < ?
		  AND status != ?
	`, string(ledger.StatusClosed), today.String(), string(ledger.StatusClosed))
	if err != nil {
		return 0, fmt.Errorf("failed to close expired rows: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func queryRows(ctx context.Context, q querier, query string, args ...any) ([]ledger.Row, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rows: %w", err)
	}
	defer rows.Close()

	var out []ledger.Row
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRow(rows *sql.Rows) (ledger.Row, error) {
	var (
		r              ledger.Row
		accountType    string
		classification string
		status         string
		maturity       string
		months         [12]sql.NullString
		note           sql.NullString
	)

	dest := []any{
		&r.Seq, &r.InstrumentID, &r.Reference, &r.Bank, &accountType, &classification, &status,
		&r.Year, &maturity,
	}
	for i := range months {
		dest = append(dest, &months[i])
	}
	dest = append(dest, &note)

	if err := rows.Scan(dest...); err != nil {
		return r, fmt.Errorf("failed to scan row: %w", err)
	}

	r.AccountType = ledger.AccountType(accountType)
	r.Classification = ledger.Classification(classification)
	r.Status = ledger.Status(status)
	if maturity != "" {
		// Written by us in YYYY-MM-DD; a hand-edited bad value reads as open-ended.
		r.MaturityDate, _ = civil.ParseDate(maturity)
	}
	for i, v := range months {
		r.Months[i] = ledger.ParseAmount(v.String)
	}
	r.Note = note.String
	return r, nil
}

// =============================================================================
// TRANSACTIONAL STORE (ledger.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) ReplaceRows(ctx context.Context, id ledger.InstrumentID, rows []ledger.Row) error {
	return replaceRows(ctx, ts.tx, id, rows)
}

func (ts *txStore) DeleteByReference(ctx context.Context, reference string) (int, error) {
	return deleteByReference(ctx, ts.tx, reference)
}

func (ts *txStore) FindByInstrument(ctx context.Context, id ledger.InstrumentID) ([]ledger.Row, error) {
	return findByInstrument(ctx, ts.tx, id)
}

func (ts *txStore) Query(ctx context.Context, f ledger.Filter) ([]ledger.Row, error) {
	return queryFiltered(ctx, ts.tx, f)
}

func (ts *txStore) Scan(ctx context.Context) ([]ledger.Row, error) {
	return scanAll(ctx, ts.tx)
}

func (ts *txStore) CloseExpired(ctx context.Context, today civil.Date) (int, error) {
	return closeExpired(ctx, ts.tx, today)
}

// =============================================================================
// OPTION STORE (ledger.OptionStore interface)
// =============================================================================

// ListOptions returns the values of one kind, sorted.
func (s *Store) ListOptions(ctx context.Context, kind ledger.OptionKind) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT value FROM options WHERE type = ? ORDER BY value", string(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to list options: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// AllOptions returns every option ordered by kind then value.
func (s *Store) AllOptions(ctx context.Context) ([]ledger.Option, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT type, value FROM options ORDER BY type, value")
	if err != nil {
		return nil, fmt.Errorf("failed to list options: %w", err)
	}
	defer rows.Close()

	var out []ledger.Option
	for rows.Next() {
		var kind, value string
		if err := rows.Scan(&kind, &value); err != nil {
			return nil, err
		}
		out = append(out, ledger.Option{Kind: ledger.OptionKind(kind), Value: value})
	}
	return out, rows.Err()
}

// AddOption inserts a value; existing values are ignored.
func (s *Store) AddOption(ctx context.Context, kind ledger.OptionKind, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO options (type, value) VALUES (?, ?)", string(kind), value)
	return err
}

// RemoveOption deletes one value of a kind.
func (s *Store) RemoveOption(ctx context.Context, kind ledger.OptionKind, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM options WHERE type = ? AND value = ?", string(kind), value)
	return err
}
