// Package metrics tracks pipeline health: stage timings, confidence
// distribution, fallback usage, and review queue depth.
package metrics

import (
	"sync"
	"time"

	"github.com/roastcraft/enrich-cli/internal/model"
)

// Recorder accumulates in-process counters across pipeline runs. All
// methods are safe for concurrent use by batch workers.
type Recorder struct {
	mu sync.Mutex

	runsCompleted int
	runsFailed    int

	stageCount  map[model.RunStage]int
	stageMillis map[model.RunStage]float64

	// confidenceBuckets[i] counts final confidences in [i/10, (i+1)/10),
	// with 1.0 landing in the last bucket.
	confidenceBuckets [10]int

	autoApplied   int
	needsFallback int
	needsReview   int

	fallbackCalls int
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		stageCount:  make(map[model.RunStage]int),
		stageMillis: make(map[model.RunStage]float64),
	}
}

// ObserveStage records the wall time spent in one pipeline stage.
func (r *Recorder) ObserveStage(stage model.RunStage, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stageCount[stage]++
	r.stageMillis[stage] += float64(d.Milliseconds())
}

// ObserveDecision records a threshold decision and its final confidence.
func (r *Recorder) ObserveDecision(d model.EvaluationDecision) {
	r.mu.Lock()
	defer r.mu.Unlock()

	bucket := int(d.FinalConfidence * 10)
	if bucket > 9 {
		bucket = 9
	}
	if bucket < 0 {
		bucket = 0
	}
	r.confidenceBuckets[bucket]++

	switch d.Action {
	case model.ActionAutoApply:
		r.autoApplied++
	case model.ActionNeedsFallback:
		r.needsFallback++
	case model.ActionNeedsReview:
		r.needsReview++
	}
}

// ObserveFallback records one escalation to the inference service.
func (r *Recorder) ObserveFallback() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallbackCalls++
}

// ObserveRun records a finished pipeline run by its terminal stage.
func (r *Recorder) ObserveRun(terminal model.RunStage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch terminal {
	case model.StageCompleted:
		r.runsCompleted++
	case model.StageFailed:
		r.runsFailed++
	}
}
