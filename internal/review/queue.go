// Package review manages the human review queue for enrichments whose
// confidence never cleared the threshold. Reviewers settle pending
// records; approved values are then applied back to the owning record.
package review

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/roastcraft/enrich-cli/internal/model"
	"github.com/roastcraft/enrich-cli/internal/store"
)

// Applier consumes an approved enrichment value, typically by writing it
// back to the source record system.
type Applier interface {
	Apply(ctx context.Context, rec *model.EnrichmentRecord) error
}

// ApplierFunc adapts a function to the Applier interface.
type ApplierFunc func(ctx context.Context, rec *model.EnrichmentRecord) error

func (f ApplierFunc) Apply(ctx context.Context, rec *model.EnrichmentRecord) error {
	return f(ctx, rec)
}

// Queue is the review queue over the enrichment store.
type Queue struct {
	store    store.Store
	notifier Notifier
	applier  Applier
}

// NewQueue creates a review queue. notifier and applier may be nil.
func NewQueue(st store.Store, notifier Notifier, applier Applier) *Queue {
	return &Queue{store: st, notifier: notifier, applier: applier}
}

// Enqueue persists a pending enrichment and announces it. Notification
// failure is logged, not returned: the row is already durable and a
// reviewer will still find it by listing pending records.
func (q *Queue) Enqueue(ctx context.Context, rec *model.EnrichmentRecord) error {
	rec.Status = model.StatusPending
	if err := q.store.Persist(ctx, rec); err != nil {
		return eris.Wrap(err, "review: enqueue")
	}

	if q.notifier != nil {
		note := Notification{
			EnrichmentID: rec.ID,
			RecordID:     rec.RecordID,
			RunID:        rec.RunID,
			Field:        rec.Field,
			Confidence:   rec.Evaluation.FinalConfidence,
			Warnings:     rec.Result.Warnings,
			Timestamp:    time.Now().UTC(),
		}
		if err := q.notifier.NotifyReviewRequired(ctx, note); err != nil {
			zap.L().Warn("review: notification failed",
				zap.String("enrichment_id", rec.ID),
				zap.String("field", rec.Field),
				zap.Error(err))
		}
	}
	return nil
}

// Approve settles a pending enrichment as accepted, applies the value,
// and marks it applied. A concurrent reviewer decision surfaces as
// store.ErrStatusConflict.
func (q *Queue) Approve(ctx context.Context, id, reviewerID string) error {
	if err := q.store.UpdateStatus(ctx, id, model.StatusPending, model.StatusApproved, reviewerID); err != nil {
		return eris.Wrap(err, "review: approve")
	}

	if q.applier != nil {
		rec, err := q.store.Get(ctx, id)
		if err != nil {
			return eris.Wrap(err, "review: load approved enrichment")
		}
		if err := q.applier.Apply(ctx, rec); err != nil {
			// The approval stands; applying can be retried.
			return eris.Wrap(err, "review: apply approved value")
		}
	}

	if err := q.store.UpdateStatus(ctx, id, model.StatusApproved, model.StatusApplied, reviewerID); err != nil {
		return eris.Wrap(err, "review: mark applied")
	}
	return nil
}

// Reject settles a pending enrichment as refused. The row stays in
// history; the value is never applied.
func (q *Queue) Reject(ctx context.Context, id, reviewerID string) error {
	if err := q.store.UpdateStatus(ctx, id, model.StatusPending, model.StatusRejected, reviewerID); err != nil {
		return eris.Wrap(err, "review: reject")
	}
	return nil
}

// Pending lists up to limit records awaiting review, oldest first.
func (q *Queue) Pending(ctx context.Context, limit int) ([]model.EnrichmentRecord, error) {
	recs, err := q.store.ListByStatus(ctx, model.StatusPending, limit)
	if err != nil {
		return nil, eris.Wrap(err, "review: list pending")
	}
	return recs, nil
}

// Depth returns the number of records awaiting review.
func (q *Queue) Depth(ctx context.Context) (int, error) {
	n, err := q.store.CountByStatus(ctx, model.StatusPending)
	if err != nil {
		return 0, eris.Wrap(err, "review: queue depth")
	}
	return n, nil
}
