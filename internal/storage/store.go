// Package storage owns the expenses table: schema lifecycle, record
// persistence, range queries and CSV exchange over a single SQLite file.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"sem/internal/core"

	_ "modernc.org/sqlite"
)

// Error kinds surfaced to callers. Every operation either succeeds or
// fails with one of these (possibly wrapped); there are no silent
// partial successes apart from the documented stale-id delete no-op.
var (
	ErrAlreadyExists = errors.New("database already exists")
	ErrNotFound      = errors.New("database not found")
	ErrSchemaInvalid = errors.New("database schema invalid")
	ErrStoreClosed   = errors.New("store is closed")
	ErrInvalidRecord = errors.New("invalid record")
	ErrEncoding      = errors.New("incorrect character encoding")
)

// BatchError reports the row (1-indexed, file order) and field that
// aborted a batch insert. The whole batch is rolled back when it occurs.
type BatchError struct {
	Row int
	Err *core.FieldError
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// Store is an exclusively-owned handle on one expenses database. All
// methods run synchronously on the caller's goroutine.
type Store struct {
	db   *sql.DB
	path string
}

// Initialize creates a new expenses database at path and returns an
// open handle. It fails with ErrAlreadyExists if anything is already
// present at that location.
func Initialize(path string) (*Store, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, path)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("stat database path: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := applyMigrations(path); err != nil {
		db.Close()
		os.Remove(path)
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	slog.Info("Expenses database created", "path", path)
	return &Store{db: db, path: path}, nil
}

// Open opens an existing expenses database. It fails with ErrNotFound
// when nothing exists at path and with ErrSchemaInvalid when the
// expenses table is missing or its columns do not match the expected
// names, declared types and nullability exactly. The strict comparison
// refuses files produced by incompatible versions even when they look
// superficially similar.
func Open(path string) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("stat database path: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := verifySchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, path: path}, nil
}

// Path returns the location of the backing file.
func (s *Store) Path() string { return s.path }

// Close releases the database handle. Further operations fail with
// ErrStoreClosed.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Store) handle() (*sql.DB, error) {
	if s == nil || s.db == nil {
		return nil, ErrStoreClosed
	}
	return s.db, nil
}

// expectedColumns is the exact shape of the expenses table: name,
// declared type, notnull flag and primary-key flag per column, in
// declaration order.
var expectedColumns = []struct {
	name    string
	ctype   string
	notnull int
	pk      int
}{
	{"id", "INTEGER", 0, 1},
	{"date", "DATE", 1, 0},
	{"type", "CHAR(1)", 1, 0},
	{"amount", "DOUBLE PRECISION", 1, 0},
	{"justification", "VARCHAR(100)", 1, 0},
}

func verifySchema(db *sql.DB) error {
	rows, err := db.Query(`PRAGMA table_info('expenses')`)
	if err != nil {
		return fmt.Errorf("read table info: %w", err)
	}
	defer rows.Close()

	i := 0
	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notnull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return fmt.Errorf("scan table info: %w", err)
		}
		if i >= len(expectedColumns) {
			return fmt.Errorf("%w: unexpected column %q", ErrSchemaInvalid, name)
		}
		want := expectedColumns[i]
		if name != want.name || ctype != want.ctype || notnull != want.notnull || pk != want.pk {
			return fmt.Errorf("%w: column %d is %s %s (notnull=%d pk=%d), want %s %s (notnull=%d pk=%d)",
				ErrSchemaInvalid, i, name, ctype, notnull, pk, want.name, want.ctype, want.notnull, want.pk)
		}
		i++
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate table info: %w", err)
	}
	if i == 0 {
		return fmt.Errorf("%w: expenses table not found", ErrSchemaInvalid)
	}
	if i != len(expectedColumns) {
		return fmt.Errorf("%w: expected %d columns, found %d", ErrSchemaInvalid, len(expectedColumns), i)
	}
	return nil
}

// Insert persists one validated record and returns its store-assigned
// identifier. The record is re-validated defensively; malformed data
// fails with ErrInvalidRecord so that bulk callers going straight to
// Insert cannot smuggle partial records into the table.
func (s *Store) Insert(ctx context.Context, rec core.Record) (int64, error) {
	db, err := s.handle()
	if err != nil {
		return 0, err
	}
	if err := rec.Validate(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}

	res, err := db.ExecContext(ctx,
		`INSERT INTO expenses (date, type, amount, justification) VALUES (?, ?, ?, ?)`,
		rec.Date.String(), rec.Category, rec.Amount.InexactFloat64(), rec.Justification)
	if err != nil {
		return 0, fmt.Errorf("insert record: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}

	slog.InfoContext(ctx, "Record saved",
		"id", id,
		"date", rec.Date.String(),
		"category", rec.Category,
		"amount", core.FormatAmount(rec.Amount))
	return id, nil
}

// InsertBatch validates and inserts candidates in order inside a single
// transaction. The first validation failure aborts the whole batch with
// a *BatchError naming the 1-indexed row and field; no rows from the
// batch survive. On success it returns the number of rows inserted.
func (s *Store) InsertBatch(ctx context.Context, candidates []core.RawFields) (int, error) {
	db, err := s.handle()
	if err != nil {
		return 0, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO expenses (date, type, amount, justification) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare batch insert: %w", err)
	}
	defer stmt.Close()

	for i, raw := range candidates {
		rec, err := core.Validate(raw)
		if err != nil {
			var ferr *core.FieldError
			errors.As(err, &ferr)
			slog.WarnContext(ctx, "Batch aborted on invalid row",
				"row", i+1, "field", ferr.Field, "reason", ferr.Reason)
			return 0, &BatchError{Row: i + 1, Err: ferr}
		}
		if _, err := stmt.ExecContext(ctx,
			rec.Date.String(), rec.Category, rec.Amount.InexactFloat64(), rec.Justification); err != nil {
			return 0, fmt.Errorf("insert row %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit batch: %w", err)
	}

	slog.InfoContext(ctx, "Batch inserted", "rows", len(candidates))
	return len(candidates), nil
}

// Get returns the record with the given identifier, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id int64) (core.Record, error) {
	db, err := s.handle()
	if err != nil {
		return core.Record{}, err
	}
	row := db.QueryRowContext(ctx,
		`SELECT id, date, type, amount, justification FROM expenses WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Record{}, fmt.Errorf("%w: record %d", ErrNotFound, id)
	}
	return rec, err
}

// FetchRange returns every record whose date falls in [start, end],
// ordered by date ascending (ties broken by identifier). An empty
// result is a valid empty slice, not an error.
func (s *Store) FetchRange(ctx context.Context, start, end core.Date) ([]core.Record, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx,
		`SELECT id, date, type, amount, justification
		 FROM expenses
		 WHERE date BETWEEN ? AND ?
		 ORDER BY date, id`,
		start.String(), end.String())
	if err != nil {
		return nil, fmt.Errorf("fetch range: %w", err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

// SumByCategory aggregates amounts by category over [start, end]. It is
// defined as grouping FetchRange's result, so the two operations agree
// on which records are in range by construction. Categories without
// records in range are absent from the map.
func (s *Store) SumByCategory(ctx context.Context, start, end core.Date) (map[string]decimal.Decimal, error) {
	records, err := s.FetchRange(ctx, start, end)
	if err != nil {
		return nil, err
	}
	return core.Summarize(start, end, records).AsMap(), nil
}

// DeleteByIDs removes the records with the given identifiers and
// returns how many rows were actually deleted. Identifiers that no
// longer exist are silent no-ops; a selection that went stale under an
// external change deletes whatever is left of it.
func (s *Store) DeleteByIDs(ctx context.Context, ids []int64) (int64, error) {
	db, err := s.handle()
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	res, err := db.ExecContext(ctx,
		`DELETE FROM expenses WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("delete records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	slog.InfoContext(ctx, "Records deleted", "requested", len(ids), "deleted", n)
	return n, nil
}

// ClearAll removes every record. Irreversible; confirmation is the
// caller's concern.
func (s *Store) ClearAll(ctx context.Context) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM expenses`); err != nil {
		return fmt.Errorf("clear all records: %w", err)
	}
	slog.InfoContext(ctx, "All records cleared", "path", s.path)
	return nil
}

// ExportAll returns every record ordered by date, identifiers attached.
func (s *Store) ExportAll(ctx context.Context) ([]core.Record, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx,
		`SELECT id, date, type, amount, justification FROM expenses ORDER BY date, id`)
	if err != nil {
		return nil, fmt.Errorf("export all: %w", err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

// dateFromColumn converts the driver's value for the date column. The
// column is declared DATE, so the driver hands back time.Time; text
// affinity values still arrive as string or []byte and are accepted too.
func dateFromColumn(v any) (core.Date, error) {
	switch d := v.(type) {
	case time.Time:
		return core.NewDate(d.Year(), int(d.Month()), d.Day()), nil
	case string:
		return core.ParseDate(d)
	case []byte:
		return core.ParseDate(string(d))
	default:
		return core.Date{}, fmt.Errorf("unexpected date column type %T", v)
	}
}

func scanRecord(row rowScanner) (core.Record, error) {
	var (
		rec     core.Record
		rawDate any
		amount  float64
	)
	if err := row.Scan(&rec.ID, &rawDate, &rec.Category, &amount, &rec.Justification); err != nil {
		return core.Record{}, err
	}
	date, err := dateFromColumn(rawDate)
	if err != nil {
		return core.Record{}, fmt.Errorf("stored date %v: %w", rawDate, err)
	}
	rec.Date = date
	// Amounts are written with two decimal places; NewFromFloat recovers
	// the shortest decimal representation, which round-trips that.
	rec.Amount = decimal.NewFromFloat(amount).Round(2)
	return rec, nil
}

func collectRecords(rows *sql.Rows) ([]core.Record, error) {
	records := []core.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}
