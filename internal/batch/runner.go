// Package batch fans the pipeline out over many records with bounded
// parallelism. Records are independent; one failure never aborts its
// siblings.
package batch

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/roastcraft/enrich-cli/internal/model"
	"github.com/roastcraft/enrich-cli/internal/pipeline"
	"github.com/roastcraft/enrich-cli/internal/resilience"
)

// Enricher runs the pipeline over one record.
type Enricher interface {
	Run(ctx context.Context, rec model.Record) (*pipeline.Result, error)
}

// Summary reports a finished batch.
type Summary struct {
	Processed int
	Succeeded int
	Failed    int
	Outputs   []*model.EnrichedRecord
}

// Runner dispatches records to workers.
type Runner struct {
	enricher    Enricher
	concurrency int
	dlq         *resilience.DLQ
}

// NewRunner creates a batch runner. A nil dlq disables dead lettering.
func NewRunner(enricher Enricher, concurrency int, dlq *resilience.DLQ) *Runner {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Runner{enricher: enricher, concurrency: concurrency, dlq: dlq}
}

// Process enriches all records with bounded parallelism. Cancellation
// stops dispatch of new records; in-flight records run to their next
// persistence checkpoint. Individual failures are counted and dead
// lettered, never propagated as a batch error.
func (r *Runner) Process(ctx context.Context, records []model.Record) (*Summary, error) {
	if len(records) == 0 {
		zap.L().Info("batch: no records to process")
		return &Summary{}, nil
	}

	zap.L().Info("batch: processing",
		zap.Int("records", len(records)),
		zap.Int("concurrency", r.concurrency))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	var succeeded, failed atomic.Int64
	var mu sync.Mutex
	outputs := make([]*model.EnrichedRecord, 0, len(records))

	dispatched := 0
	for _, rec := range records {
		if ctx.Err() != nil {
			zap.L().Warn("batch: canceled, stopping dispatch",
				zap.Int("dispatched", dispatched),
				zap.Int("remaining", len(records)-dispatched))
			break
		}
		dispatched++

		g.Go(func() error {
			log := zap.L().With(zap.String("record_id", rec.ID))

			res, err := r.enricher.Run(gctx, rec)
			if err != nil || res.Run.Stage == model.StageFailed {
				failed.Add(1)
				if err != nil {
					log.Error("batch: enrichment failed", zap.Error(err))
					if r.dlq != nil {
						r.dlq.Add(rec, err)
					}
				} else {
					log.Error("batch: run failed",
						zap.String("reason", res.Run.FailureReason))
				}
			} else {
				succeeded.Add(1)
			}

			if res != nil && res.Output != nil {
				mu.Lock()
				outputs = append(outputs, res.Output)
				mu.Unlock()
			}
			// Individual failures never abort the batch.
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	summary := &Summary{
		Processed: dispatched,
		Succeeded: int(succeeded.Load()),
		Failed:    int(failed.Load()),
		Outputs:   outputs,
	}
	zap.L().Info("batch: complete",
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed))
	return summary, nil
}

// RetryDeadLetters reprocesses records still within their retry budget.
func (r *Runner) RetryDeadLetters(ctx context.Context) (*Summary, error) {
	if r.dlq == nil {
		return &Summary{}, nil
	}
	records := r.dlq.Retryable()
	if len(records) == 0 {
		return &Summary{}, nil
	}
	zap.L().Info("batch: retrying dead letters", zap.Int("records", len(records)))
	return r.Process(ctx, records)
}
