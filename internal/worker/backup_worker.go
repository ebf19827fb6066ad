// Package worker mirrors record changes from the expense store to an
// external backup target, driven by AMQP change events.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"sem/internal/amqp"
	"sem/internal/sheets"
	"sem/internal/storage"
)

// BackupWorker consumes change events and pushes the affected records
// to the backup target. The queue is the source of truth for what still
// needs mirroring: unacked deliveries are redelivered after a crash.
type BackupWorker struct {
	store  *storage.Store
	writer sheets.RecordWriter
	marker sheets.DeletionMarker
}

func NewBackupWorker(store *storage.Store, writer sheets.RecordWriter, marker sheets.DeletionMarker) *BackupWorker {
	return &BackupWorker{
		store:  store,
		writer: writer,
		marker: marker,
	}
}

// HandleRecordAdded fetches the inserted record and appends it to the
// backup target. A record deleted before the event was processed is
// skipped, not failed: there is nothing left to mirror.
func (w *BackupWorker) HandleRecordAdded(ctx context.Context, ev *amqp.RecordAddedEvent) error {
	rec, err := w.store.Get(ctx, ev.ID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			slog.WarnContext(ctx, "Record gone before backup, skipping", "id", ev.ID)
			return nil
		}
		return fmt.Errorf("load record %d: %w", ev.ID, err)
	}

	ref, err := w.writer.Append(ctx, rec)
	if err != nil {
		return fmt.Errorf("append record %d to backup: %w", ev.ID, err)
	}

	slog.InfoContext(ctx, "Record backed up", "id", ev.ID, "ref", ref)
	return nil
}

// HandleRecordsDeleted records tombstones for deleted identifiers.
func (w *BackupWorker) HandleRecordsDeleted(ctx context.Context, ev *amqp.RecordsDeletedEvent) error {
	if w.marker == nil {
		slog.WarnContext(ctx, "No deletion marker configured, skipping", "count", len(ev.IDs))
		return nil
	}
	if err := w.marker.MarkDeleted(ctx, ev.IDs); err != nil {
		return fmt.Errorf("mark %d deletions in backup: %w", len(ev.IDs), err)
	}
	slog.InfoContext(ctx, "Deletions recorded in backup", "count", len(ev.IDs))
	return nil
}
