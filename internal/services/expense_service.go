// Package services orchestrates the expense store, the category
// registry and the optional change-event publisher.
package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"sem/internal/amqp"
	"sem/internal/config"
	"sem/internal/core"
	"sem/internal/storage"
)

// ExpenseService is the layer the front-end talks to. It enforces what
// the store deliberately does not: membership of the category letter in
// the currently registered set.
type ExpenseService struct {
	store      *storage.Store
	categories *config.Categories
	events     *amqp.Client
}

// NewExpenseService wires the service. events may be nil; change events
// are then skipped.
func NewExpenseService(store *storage.Store, categories *config.Categories, events *amqp.Client) *ExpenseService {
	return &ExpenseService{
		store:      store,
		categories: categories,
		events:     events,
	}
}

// AddExpense validates raw input, checks the category against the
// registry and persists the record. The returned record carries its
// store-assigned identifier.
func (s *ExpenseService) AddExpense(ctx context.Context, raw core.RawFields) (core.Record, error) {
	rec, err := core.Validate(raw)
	if err != nil {
		return core.Record{}, err
	}

	// Shape is the store's concern; membership is ours. Old rows keep
	// letters that were later unregistered, so this check applies only
	// to new input.
	if !s.categories.Contains(rec.Category) {
		return core.Record{}, &core.FieldError{
			Field:  core.FieldCategory,
			Reason: fmt.Sprintf("category %q is not registered (valid: %s)", rec.Category, s.categories.Letters()),
		}
	}

	id, err := s.store.Insert(ctx, rec)
	if err != nil {
		return core.Record{}, fmt.Errorf("save record: %w", err)
	}
	rec.ID = id

	s.publishAdded(ctx, id)
	return rec, nil
}

// ListRange returns all records dated within [start, end].
func (s *ExpenseService) ListRange(ctx context.Context, start, end core.Date) ([]core.Record, error) {
	return s.store.FetchRange(ctx, start, end)
}

// Summary aggregates the range by category, with a grand total.
func (s *ExpenseService) Summary(ctx context.Context, start, end core.Date) (core.Summary, error) {
	records, err := s.store.FetchRange(ctx, start, end)
	if err != nil {
		return core.Summary{}, err
	}
	return core.Summarize(start, end, records), nil
}

// DeleteRecords removes the given identifiers and reports how many rows
// went away. Stale identifiers are no-ops.
func (s *ExpenseService) DeleteRecords(ctx context.Context, ids []int64) (int64, error) {
	n, err := s.store.DeleteByIDs(ctx, ids)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.publishDeleted(ctx, ids)
	}
	return n, nil
}

// ClearAll removes every record. The caller is expected to have asked
// the user first.
func (s *ExpenseService) ClearAll(ctx context.Context) error {
	return s.store.ClearAll(ctx)
}

// ImportCSV runs an all-or-nothing CSV import from r.
//
// Import deliberately skips the registry check: a CSV produced by an
// older configuration may carry letters that have since been
// unregistered, and refusing the file would strand the user's own data.
func (s *ExpenseService) ImportCSV(ctx context.Context, r io.Reader) (int, error) {
	return s.store.Import(ctx, r)
}

// ExportCSV dumps every record to w.
func (s *ExpenseService) ExportCSV(ctx context.Context, w io.Writer) (int, error) {
	return s.store.ExportCSV(ctx, w)
}

// Categories exposes the registry for the settings surface.
func (s *ExpenseService) Categories() *config.Categories {
	return s.categories
}

func (s *ExpenseService) publishAdded(ctx context.Context, id int64) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishRecordAdded(ctx, id); err != nil {
		// The record is saved locally; the backup catches up later.
		slog.ErrorContext(ctx, "Failed to publish record_added event",
			"id", id, "error", err)
	}
}

func (s *ExpenseService) publishDeleted(ctx context.Context, ids []int64) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishRecordsDeleted(ctx, ids); err != nil {
		slog.ErrorContext(ctx, "Failed to publish records_deleted event",
			"count", len(ids), "error", err)
	}
}

// Close releases the store and the event publisher.
func (s *ExpenseService) Close() error {
	var errs []error

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if s.events != nil {
		if err := s.events.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close expense service: %v", errs)
	}
	return nil
}
