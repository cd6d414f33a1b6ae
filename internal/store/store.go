// Package store persists every enrichment attempt for audit and idempotent
// reprocessing. History is append-only per (recordID, field); replaying a
// run never creates duplicates.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/roastcraft/enrich-cli/internal/model"
)

// ErrNotFound is returned when an enrichment record does not exist.
var ErrNotFound = eris.New("store: enrichment record not found")

// ErrStatusConflict is returned when a compare-and-set status update loses
// to a concurrent writer. First writer wins; the loser gets this, never a
// silent overwrite.
var ErrStatusConflict = eris.New("store: status changed concurrently")

// Store is the persistence interface for enrichment attempts.
type Store interface {
	// Persist stores one enrichment attempt. It is idempotent keyed by
	// (recordID, field, runID): replaying a run leaves the original row
	// in place and fills in rec.ID from it.
	Persist(ctx context.Context, rec *model.EnrichmentRecord) error

	// Get returns the enrichment record by id.
	Get(ctx context.Context, id string) (*model.EnrichmentRecord, error)

	// GetHistory returns all attempts for (recordID, field), oldest first.
	GetHistory(ctx context.Context, recordID, field string) ([]model.EnrichmentRecord, error)

	// UpdateStatus transitions a record from one status to another with a
	// compare-and-set on the current status. Returns ErrStatusConflict if
	// the record is no longer in the from status.
	UpdateStatus(ctx context.Context, id string, from, to model.EnrichmentStatus, reviewerID string) error

	// ListByStatus returns up to limit records in the given status,
	// oldest first.
	ListByStatus(ctx context.Context, status model.EnrichmentStatus, limit int) ([]model.EnrichmentRecord, error)

	// CountByStatus returns the number of records in the given status.
	CountByStatus(ctx context.Context, status model.EnrichmentStatus) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
