package storage

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"sem/internal/core"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Initialize(filepath.Join(t.TempDir(), "expenses.sqlite"))
	if err != nil {
		t.Fatalf("initialize store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mustValidate(t *testing.T, date, category, amount, justification string) core.Record {
	t.Helper()
	rec, err := core.Validate(core.RawFields{
		Date: date, Category: category, Amount: amount, Justification: justification,
	})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	return rec
}

func TestInitializeRefusesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "expenses.sqlite")
	s, err := Initialize(path)
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	s.Close()

	if _, err := Initialize(path); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestOpenMissing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope.sqlite"))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestOpenVerifiesSchema(t *testing.T) {
	t.Run("valid schema reopens", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "expenses.sqlite")
		s, err := Initialize(path)
		if err != nil {
			t.Fatalf("initialize: %v", err)
		}
		s.Close()

		s2, err := Open(path)
		if err != nil {
			t.Fatalf("reopen: %v", err)
		}
		s2.Close()
	})

	t.Run("missing table", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "other.sqlite")
		db, err := sql.Open("sqlite", path)
		if err != nil {
			t.Fatalf("open raw db: %v", err)
		}
		if _, err := db.Exec(`CREATE TABLE unrelated (x INTEGER)`); err != nil {
			t.Fatalf("create table: %v", err)
		}
		db.Close()

		if _, err := Open(path); !errors.Is(err, ErrSchemaInvalid) {
			t.Fatalf("expected ErrSchemaInvalid, got %v", err)
		}
	})

	t.Run("lookalike table", func(t *testing.T) {
		// Same column names, wrong declared types.
		path := filepath.Join(t.TempDir(), "lookalike.sqlite")
		db, err := sql.Open("sqlite", path)
		if err != nil {
			t.Fatalf("open raw db: %v", err)
		}
		_, err = db.Exec(`CREATE TABLE expenses (
			'id' INTEGER PRIMARY KEY AUTOINCREMENT,
			'date' TEXT NOT NULL,
			'type' TEXT NOT NULL,
			'amount' REAL NOT NULL,
			'justification' TEXT NOT NULL
		)`)
		if err != nil {
			t.Fatalf("create table: %v", err)
		}
		db.Close()

		if _, err := Open(path); !errors.Is(err, ErrSchemaInvalid) {
			t.Fatalf("expected ErrSchemaInvalid, got %v", err)
		}
	})

	t.Run("nullable column", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nullable.sqlite")
		db, err := sql.Open("sqlite", path)
		if err != nil {
			t.Fatalf("open raw db: %v", err)
		}
		_, err = db.Exec(`CREATE TABLE expenses (
			'id' INTEGER PRIMARY KEY AUTOINCREMENT,
			'date' DATE NOT NULL,
			'type' CHAR(1) NOT NULL,
			'amount' DOUBLE PRECISION NOT NULL,
			'justification' VARCHAR(100)
		)`)
		if err != nil {
			t.Fatalf("create table: %v", err)
		}
		db.Close()

		if _, err := Open(path); !errors.Is(err, ErrSchemaInvalid) {
			t.Fatalf("expected ErrSchemaInvalid, got %v", err)
		}
	})
}

func TestInsertAndFetchRange(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	coffee := mustValidate(t, "2023-01-05", "E", "12.50", "coffee")
	salary := mustValidate(t, "2023-02-10", "I", "500.00", "salary")

	id1, err := s.Insert(ctx, coffee)
	if err != nil {
		t.Fatalf("insert coffee: %v", err)
	}
	id2, err := s.Insert(ctx, salary)
	if err != nil {
		t.Fatalf("insert salary: %v", err)
	}
	if id1 == id2 {
		t.Fatalf("identifiers must be unique, both %d", id1)
	}

	january, err := s.FetchRange(ctx, core.NewDate(2023, 1, 1), core.NewDate(2023, 1, 31))
	if err != nil {
		t.Fatalf("fetch january: %v", err)
	}
	if len(january) != 1 {
		t.Fatalf("january: expected 1 record, got %d", len(january))
	}
	got := january[0]
	if got.ID != id1 || got.Date.String() != "2023-01-05" || got.Category != "E" ||
		core.FormatAmount(got.Amount) != "12.50" || got.Justification != "coffee" {
		t.Errorf("unexpected record: %+v", got)
	}

	both, err := s.FetchRange(ctx, core.NewDate(2023, 1, 1), core.NewDate(2023, 2, 28))
	if err != nil {
		t.Fatalf("fetch both: %v", err)
	}
	if len(both) != 2 {
		t.Fatalf("expected 2 records, got %d", len(both))
	}
	if both[0].Date.After(both[1].Date.Time) {
		t.Errorf("records not ordered by date: %v, %v", both[0].Date, both[1].Date)
	}

	empty, err := s.FetchRange(ctx, core.NewDate(2020, 1, 1), core.NewDate(2020, 12, 31))
	if err != nil {
		t.Fatalf("fetch empty range: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("expected empty result, got %d records", len(empty))
	}
}

func TestInsertRevalidates(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Insert(context.Background(), core.Record{Category: "EE"})
	if !errors.Is(err, ErrInvalidRecord) {
		t.Fatalf("expected ErrInvalidRecord, got %v", err)
	}
}

func TestSumByCategoryAgreesWithFetchRange(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	rows := []core.RawFields{
		{Date: "2023-01-05", Category: "E", Amount: "12.50", Justification: "coffee"},
		{Date: "2023-02-10", Category: "I", Amount: "500.00", Justification: "salary"},
		{Date: "2023-03-01", Category: "E", Amount: "7.00", Justification: "out of range"},
	}
	if _, err := s.InsertBatch(ctx, rows); err != nil {
		t.Fatalf("insert batch: %v", err)
	}

	start, end := core.NewDate(2023, 1, 1), core.NewDate(2023, 2, 28)
	sums, err := s.SumByCategory(ctx, start, end)
	if err != nil {
		t.Fatalf("sum by category: %v", err)
	}
	if len(sums) != 2 {
		t.Fatalf("expected 2 categories, got %d", len(sums))
	}
	if got := core.FormatAmount(sums["E"]); got != "12.50" {
		t.Errorf("E = %s, want 12.50", got)
	}
	if got := core.FormatAmount(sums["I"]); got != "500.00" {
		t.Errorf("I = %s, want 500.00", got)
	}

	// Same predicate as FetchRange: summing the fetched records must
	// reproduce the aggregate exactly.
	fetched, err := s.FetchRange(ctx, start, end)
	if err != nil {
		t.Fatalf("fetch range: %v", err)
	}
	recomputed := core.Summarize(start, end, fetched).AsMap()
	for cat, want := range sums {
		if got, ok := recomputed[cat]; !ok || !got.Equal(want) {
			t.Errorf("category %s: aggregate %s, recomputed %s", cat, want, got)
		}
	}
}

func TestDeleteByIDsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id1, err := s.Insert(ctx, mustValidate(t, "2023-01-05", "E", "1.00", "a"))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	id2, err := s.Insert(ctx, mustValidate(t, "2023-01-06", "E", "2.00", "b"))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	n, err := s.DeleteByIDs(ctx, []int64{id1, id2})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n != 2 {
		t.Fatalf("first delete: count = %d, want 2", n)
	}

	n, err = s.DeleteByIDs(ctx, []int64{id1, id2})
	if err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if n != 0 {
		t.Fatalf("second delete: count = %d, want 0 (stale ids are no-ops)", n)
	}

	left, err := s.FetchRange(ctx, core.NewDate(2023, 1, 1), core.NewDate(2023, 1, 31))
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(left) != 0 {
		t.Errorf("expected no records after delete, got %d", len(left))
	}
}

func TestIdentifiersNotReused(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id1, err := s.Insert(ctx, mustValidate(t, "2023-01-05", "E", "1.00", "a"))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := s.DeleteByIDs(ctx, []int64{id1}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	id2, err := s.Insert(ctx, mustValidate(t, "2023-01-06", "E", "2.00", "b"))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if id2 <= id1 {
		t.Errorf("id %d reused or regressed after deleting %d", id2, id1)
	}
}

func TestInsertBatchAbortsWhole(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	rows := []core.RawFields{
		{Date: "2023-01-05", Category: "E", Amount: "12.50", Justification: "coffee"},
		{Date: "2023-02-30", Category: "E", Amount: "3.00", Justification: "bad date"},
		{Date: "2023-03-01", Category: "E", Amount: "7.00", Justification: "never reached"},
	}

	n, err := s.InsertBatch(ctx, rows)
	if n != 0 {
		t.Fatalf("count = %d, want 0", n)
	}
	var berr *BatchError
	if !errors.As(err, &berr) {
		t.Fatalf("expected *BatchError, got %v", err)
	}
	if berr.Row != 2 {
		t.Errorf("row = %d, want 2", berr.Row)
	}
	if berr.Err.Field != "date" {
		t.Errorf("field = %q, want date", berr.Err.Field)
	}

	all, err := s.FetchRange(ctx, core.NewDate(2023, 1, 1), core.NewDate(2023, 12, 31))
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("expected zero records after aborted batch, got %d", len(all))
	}
}

func TestClearAll(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, err := s.Insert(ctx, mustValidate(t, "2023-01-05", "E", "1.00", "a")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.ClearAll(ctx); err != nil {
		t.Fatalf("clear all: %v", err)
	}
	all, err := s.ExportAll(ctx)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("expected empty store, got %d records", len(all))
	}
}

func TestClosedStore(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if _, err := s.FetchRange(ctx, core.NewDate(2023, 1, 1), core.NewDate(2023, 1, 31)); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("fetch on closed store: got %v", err)
	}
	if _, err := s.Insert(ctx, mustValidate(t, "2023-01-05", "E", "1.00", "a")); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("insert on closed store: got %v", err)
	}
}

func TestGet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.Insert(ctx, mustValidate(t, "2023-01-05", "E", "12.50", "coffee"))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	rec, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.ID != id || rec.Justification != "coffee" {
		t.Errorf("unexpected record: %+v", rec)
	}

	if _, err := s.Get(ctx, id+1000); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing id, got %v", err)
	}
}

// The driver reports the DATE column as time.Time; older files with
// text affinity come back as string or []byte. All three must decode.
func TestDateFromColumn(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want string
	}{
		{"time value", time.Date(2023, 1, 5, 0, 0, 0, 0, time.UTC), "2023-01-05"},
		{"string value", "2023-01-05", "2023-01-05"},
		{"byte value", []byte("2023-01-05"), "2023-01-05"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d, err := dateFromColumn(tc.in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := d.String(); got != tc.want {
				t.Errorf("date = %s, want %s", got, tc.want)
			}
		})
	}

	if _, err := dateFromColumn(42); err == nil {
		t.Error("expected error for unsupported column type")
	}
}
