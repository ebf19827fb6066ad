package storage

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"unicode/utf8"

	"sem/internal/core"
)

// csvColumns is the export column order. Import accepts these names in
// any order (case-sensitive); extra columns are ignored.
var csvColumns = []string{"date", "type", "amount", "justification"}

// ReadCSV parses a delimited expense file into raw candidate rows. The
// header row must name all four expected columns; each row's fields are
// checked for valid UTF-8 so that files in a legacy single-byte
// encoding fail with ErrEncoding instead of importing mojibake.
func ReadCSV(r io.Reader) ([]core.RawFields, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: empty file", ErrInvalidRecord)
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	if err := checkEncoding(header); err != nil {
		return nil, err
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[name] = i
	}
	for _, name := range csvColumns {
		if _, ok := index[name]; !ok {
			return nil, fmt.Errorf("%w: missing or mislabeled %q column", ErrInvalidRecord, name)
		}
	}

	var out []core.RawFields
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row %d: %w", len(out)+1, err)
		}
		if err := checkEncoding(row); err != nil {
			return nil, err
		}
		out = append(out, core.RawFields{
			Date:          field(row, index["date"]),
			Category:      field(row, index["type"]),
			Amount:        field(row, index["amount"]),
			Justification: field(row, index["justification"]),
		})
	}
	return out, nil
}

func field(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

func checkEncoding(row []string) error {
	for _, v := range row {
		if !utf8.ValidString(v) {
			return fmt.Errorf("%w: field %q is not valid UTF-8", ErrEncoding, v)
		}
	}
	return nil
}

// WriteCSV emits records in the fixed export column order, identifiers
// excluded, amounts with two decimal places. Fields containing the
// delimiter are quoted by the writer.
func WriteCSV(w io.Writer, records []core.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvColumns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, rec := range records {
		row := []string{
			rec.Date.String(),
			rec.Category,
			core.FormatAmount(rec.Amount),
			rec.Justification,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// Import decodes CSV candidate rows from r and feeds them to
// InsertBatch, so an invalid row aborts the whole import with zero rows
// committed.
func (s *Store) Import(ctx context.Context, r io.Reader) (int, error) {
	candidates, err := ReadCSV(r)
	if err != nil {
		return 0, err
	}
	n, err := s.InsertBatch(ctx, candidates)
	if err != nil {
		return 0, err
	}
	slog.InfoContext(ctx, "CSV import committed", "rows", n)
	return n, nil
}

// ImportCSV imports the file at path. A missing file surfaces as
// ErrNotFound rather than a bare I/O error.
func (s *Store) ImportCSV(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return 0, fmt.Errorf("open csv file: %w", err)
	}
	defer f.Close()
	return s.Import(ctx, f)
}

// ExportCSV dumps every record to w and returns how many were written.
func (s *Store) ExportCSV(ctx context.Context, w io.Writer) (int, error) {
	records, err := s.ExportAll(ctx)
	if err != nil {
		return 0, err
	}
	if err := WriteCSV(w, records); err != nil {
		return 0, err
	}
	return len(records), nil
}
