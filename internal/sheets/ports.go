// Package sheets defines the outbound ports for mirroring expense
// records to an external backup target.
package sheets

import (
	"context"

	"sem/internal/core"
)

type (
	// RecordWriter appends one record to the backup target and returns
	// an opaque row reference.
	RecordWriter interface {
		Append(ctx context.Context, rec core.Record) (rowRef string, err error)
	}

	// DeletionMarker notes that records were removed from the primary
	// store. Targets that cannot delete rows may record a tombstone
	// instead.
	DeletionMarker interface {
		MarkDeleted(ctx context.Context, ids []int64) error
	}
)
