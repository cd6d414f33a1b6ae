package metrics

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/roastcraft/enrich-cli/internal/cost"
	"github.com/roastcraft/enrich-cli/internal/model"
	"github.com/roastcraft/enrich-cli/internal/store"
)

// Snapshot holds a point-in-time view of pipeline health.
type Snapshot struct {
	// Run outcomes.
	RunsTotal     int     `json:"runs_total"`
	RunsCompleted int     `json:"runs_completed"`
	RunsFailed    int     `json:"runs_failed"`
	RunFailRate   float64 `json:"run_fail_rate"`

	// Per-stage average wall time in milliseconds.
	AvgStageMillis map[string]float64 `json:"avg_stage_millis"`

	// Decision outcomes and the confidence histogram behind them.
	AutoApplied       int     `json:"auto_applied"`
	NeedsFallback     int     `json:"needs_fallback"`
	NeedsReview       int     `json:"needs_review"`
	AutoApplyRate     float64 `json:"auto_apply_rate"`
	ConfidenceBuckets [10]int `json:"confidence_buckets"`

	// Fallback usage and spend.
	FallbackCalls int     `json:"fallback_calls"`
	CacheHits     int     `json:"cache_hits"`
	CacheHitRate  float64 `json:"cache_hit_rate"`
	CostUSD       float64 `json:"cost_usd"`

	// Review queue state from the store.
	PendingReviews int `json:"pending_reviews"`
	Approved       int `json:"approved"`
	Rejected       int `json:"rejected"`
	Applied        int `json:"applied"`

	CollectedAt time.Time `json:"collected_at"`
}

// DepthReporter reports dead letter queue depth.
type DepthReporter interface {
	Depth() int
}

// Collector assembles a Snapshot from the recorder, the cost ledger,
// and the enrichment store.
type Collector struct {
	recorder *Recorder
	ledger   *cost.Ledger
	store    store.Store
}

// NewCollector creates a collector. ledger and store may be nil when the
// corresponding sections are not wanted.
func NewCollector(recorder *Recorder, ledger *cost.Ledger, st store.Store) *Collector {
	return &Collector{recorder: recorder, ledger: ledger, store: st}
}

// Collect gathers a snapshot.
func (c *Collector) Collect(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{
		AvgStageMillis: make(map[string]float64),
		CollectedAt:    time.Now().UTC(),
	}

	c.recorder.mu.Lock()
	snap.RunsCompleted = c.recorder.runsCompleted
	snap.RunsFailed = c.recorder.runsFailed
	snap.RunsTotal = snap.RunsCompleted + snap.RunsFailed
	for stage, total := range c.recorder.stageMillis {
		if n := c.recorder.stageCount[stage]; n > 0 {
			snap.AvgStageMillis[string(stage)] = total / float64(n)
		}
	}
	snap.AutoApplied = c.recorder.autoApplied
	snap.NeedsFallback = c.recorder.needsFallback
	snap.NeedsReview = c.recorder.needsReview
	snap.ConfidenceBuckets = c.recorder.confidenceBuckets
	snap.FallbackCalls = c.recorder.fallbackCalls
	c.recorder.mu.Unlock()

	if snap.RunsTotal > 0 {
		snap.RunFailRate = float64(snap.RunsFailed) / float64(snap.RunsTotal)
	}
	if decisions := snap.AutoApplied + snap.NeedsFallback + snap.NeedsReview; decisions > 0 {
		snap.AutoApplyRate = float64(snap.AutoApplied) / float64(decisions)
	}

	if c.ledger != nil {
		snap.CacheHits = c.ledger.CacheHits()
		snap.CostUSD = c.ledger.TotalUSD()
		if lookups := c.ledger.Calls() + c.ledger.CacheHits(); lookups > 0 {
			snap.CacheHitRate = float64(snap.CacheHits) / float64(lookups)
		}
	}

	if c.store != nil {
		counts := map[model.EnrichmentStatus]*int{
			model.StatusPending:  &snap.PendingReviews,
			model.StatusApproved: &snap.Approved,
			model.StatusRejected: &snap.Rejected,
			model.StatusApplied:  &snap.Applied,
		}
		for status, dst := range counts {
			n, err := c.store.CountByStatus(ctx, status)
			if err != nil {
				return nil, eris.Wrapf(err, "metrics: count %s", status)
			}
			*dst = n
		}
	}

	return snap, nil
}
