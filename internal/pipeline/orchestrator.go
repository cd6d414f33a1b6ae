// Package pipeline orchestrates enrichment runs: ordered deterministic
// extraction, threshold evaluation, fallback escalation, and durable
// persistence of every attempt.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/roastcraft/enrich-cli/internal/config"
	"github.com/roastcraft/enrich-cli/internal/evaluator"
	"github.com/roastcraft/enrich-cli/internal/extractor"
	"github.com/roastcraft/enrich-cli/internal/fallback"
	"github.com/roastcraft/enrich-cli/internal/metrics"
	"github.com/roastcraft/enrich-cli/internal/model"
	"github.com/roastcraft/enrich-cli/internal/review"
	"github.com/roastcraft/enrich-cli/internal/store"
)

// maxExcerptLen bounds the raw text handed to the inference service.
const maxExcerptLen = 2000

// InferenceClient is the fallback capability the orchestrator needs.
type InferenceClient interface {
	Infer(ctx context.Context, req fallback.InferRequest) (model.FieldResult, error)
}

// Result is the outcome of one run: the run itself plus the enriched
// record handed to downstream persistence.
type Result struct {
	Run    *model.PipelineRun
	Output *model.EnrichedRecord
}

// Orchestrator runs the enrichment pipeline over single records.
type Orchestrator struct {
	cfg       config.PipelineConfig
	stages    []extractor.Extractor
	evaluator *evaluator.Evaluator
	fallback  InferenceClient
	store     store.Store
	reviews   *review.Queue
	metrics   *metrics.Recorder
}

// New builds an orchestrator. The stage order is resolved against the
// registry up front; an unknown extractor id is a configuration error
// surfaced before any record is processed. fallbackClient, reviews, and
// recorder may be nil.
func New(
	cfg config.PipelineConfig,
	registry *extractor.Registry,
	eval *evaluator.Evaluator,
	fallbackClient InferenceClient,
	st store.Store,
	reviews *review.Queue,
	recorder *metrics.Recorder,
) (*Orchestrator, error) {
	stages, err := registry.Resolve(cfg.StageOrder)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: resolve stage order")
	}
	return &Orchestrator{
		cfg:       cfg,
		stages:    stages,
		evaluator: eval,
		fallback:  fallbackClient,
		store:     st,
		reviews:   reviews,
		metrics:   recorder,
	}, nil
}

// Run executes the pipeline over one record under a fresh run id.
func (o *Orchestrator) Run(ctx context.Context, rec model.Record) (*Result, error) {
	return o.RunWithID(ctx, rec, uuid.New().String())
}

// RunWithID executes the pipeline under a caller-supplied run id, which
// makes replays idempotent against the store.
func (o *Orchestrator) RunWithID(ctx context.Context, rec model.Record, runID string) (*Result, error) {
	log := zap.L().With(zap.String("record_id", rec.ID), zap.String("run_id", runID))
	log.Info("pipeline: starting run")

	run := model.NewPipelineRun(runID, rec.ID)

	// Later stages see earlier stage outputs overlaid on the raw fields.
	input := extractor.Input{Fields: make(map[string]string, len(rec.RawFields))}
	for k, v := range rec.RawFields {
		input.Fields[k] = v
	}

	producers := make(map[string]extractor.Extractor)
	detConfidence := make(map[string]float64)

	run.Transition(model.StageDeterministic)
	start := time.Now()
	failed := o.deterministicPass(run, input, producers, detConfidence)
	o.observeStage(model.StageDeterministic, time.Since(start))

	if !failed && o.fallback != nil {
		if pending := o.pendingFallback(run, producers); len(pending) > 0 {
			run.Transition(model.StageFallback)
			start = time.Now()
			o.fallbackPass(ctx, run, rec, input, producers, pending)
			o.observeStage(model.StageFallback, time.Since(start))
		}
	}

	// Every evaluated field is written out before the run can complete,
	// the failed case included. The checkpoint write runs detached from
	// the caller's cancellation: a canceled batch must not lose fields
	// that were already evaluated.
	if err := o.persistAll(context.WithoutCancel(ctx), run, producers); err != nil {
		run.Fail(fmt.Sprintf("persistence: %v", err))
		o.observeRun(run)
		return &Result{Run: run, Output: o.assembleOutput(run, rec, detConfidence)}, err
	}

	if !failed {
		run.Transition(model.StageCompleted)
	}
	o.observeRun(run)

	log.Info("pipeline: run finished",
		zap.String("stage", string(run.Stage)),
		zap.Int("fields", len(run.Results)),
		zap.Int("warnings", len(run.Warnings)))

	return &Result{Run: run, Output: o.assembleOutput(run, rec, detConfidence)}, nil
}

// deterministicPass runs every stage in order. It returns true when a
// configured-fatal extraction error stopped the run; fields evaluated
// before the failure stay in the run for persistence.
func (o *Orchestrator) deterministicPass(
	run *model.PipelineRun,
	input extractor.Input,
	producers map[string]extractor.Extractor,
	detConfidence map[string]float64,
) bool {
	for _, ex := range o.stages {
		res, err := ex.Extract(input)
		if err != nil {
			kind := errorKind(err)
			if o.isFatal(kind) {
				run.AddError(model.PipelineError{
					Stage:   string(model.StageDeterministic),
					Field:   ex.ID(),
					Kind:    kind,
					Message: fmt.Sprintf("extractor %s: %v", ex.ID(), err),
					Fatal:   true,
				})
				run.Fail(fmt.Sprintf("extractor %s: %v", ex.ID(), err))
				return true
			}
			res = model.Unknown(ex.ID(), model.SourceDeterministic,
				fmt.Sprintf("extraction failed: %v", err))
			run.AddError(model.PipelineError{
				Stage:   string(model.StageDeterministic),
				Field:   ex.ID(),
				Kind:    kind,
				Message: fmt.Sprintf("extractor %s: %v", ex.ID(), err),
			})
		}

		o.recordDecision(run, res)
		producers[res.Field] = ex
		detConfidence[res.Field] = res.Confidence

		if res.Value != nil {
			input.Fields[res.Field] = renderValue(res.Value)
		}
	}
	return false
}

// pendingFallback lists fields whose decision is needs_fallback, in
// stage order.
func (o *Orchestrator) pendingFallback(run *model.PipelineRun, producers map[string]extractor.Extractor) []string {
	var fields []string
	for _, ex := range o.stages {
		for field, dec := range run.Evaluations {
			if dec.Action != model.ActionNeedsFallback {
				continue
			}
			if p, ok := producers[field]; ok && p.ID() == ex.ID() {
				fields = append(fields, field)
			}
		}
	}
	return fields
}

// fallbackPass escalates each pending field exactly once.
func (o *Orchestrator) fallbackPass(
	ctx context.Context,
	run *model.PipelineRun,
	rec model.Record,
	input extractor.Input,
	producers map[string]extractor.Extractor,
	fields []string,
) {
	for _, field := range fields {
		if ctx.Err() != nil {
			o.forceReview(run, field, "canceled before fallback")
			continue
		}

		req := fallback.InferRequest{
			RecordID: rec.ID,
			SourceID: rec.SourceID,
			Field:    field,
			Excerpt:  excerptFor(input, producers[field]),
		}

		res, err := o.fallback.Infer(ctx, req)
		switch {
		case errors.Is(err, fallback.ErrRateLimited):
			o.forceReview(run, field, "rate_limited")
			run.AddError(model.PipelineError{
				Stage:   string(model.StageFallback),
				Field:   field,
				Kind:    "rate_limited",
				Message: fmt.Sprintf("fallback for %s rate limited", field),
			})
		case err != nil:
			o.observeFallback()
			o.forceReview(run, field, fmt.Sprintf("fallback failed: %v", err))
			run.AddError(model.PipelineError{
				Stage:   string(model.StageFallback),
				Field:   field,
				Kind:    "fallback",
				Message: fmt.Sprintf("fallback for %s: %v", field, err),
			})
		default:
			o.observeFallback()
			o.recordDecision(run, res)
		}
	}
}

// recordDecision evaluates a result and stores both in the run. An
// evaluator failure is contained to the field: the returned decision is
// already forced to needs_review.
func (o *Orchestrator) recordDecision(run *model.PipelineRun, res model.FieldResult) {
	dec, err := o.evaluator.Evaluate(res)
	if err != nil {
		run.AddError(model.PipelineError{
			Stage:   string(run.Stage),
			Field:   res.Field,
			Kind:    "evaluation",
			Message: fmt.Sprintf("evaluate %s: %v", res.Field, err),
		})
	}
	run.Results[res.Field] = res
	run.Evaluations[res.Field] = dec
	if o.metrics != nil {
		o.metrics.ObserveDecision(dec)
	}
}

// forceReview downgrades a field's decision to needs_review, appending
// the reason to the field's warnings.
func (o *Orchestrator) forceReview(run *model.PipelineRun, field, reason string) {
	res := run.Results[field]
	res.Warnings = append(res.Warnings, reason)
	run.Results[field] = res

	dec := run.Evaluations[field]
	dec.Action = model.ActionNeedsReview
	run.Evaluations[field] = dec
}

// persistAll writes every evaluated field to the store before the run
// may be marked completed. Review-bound fields go through the queue so
// collaborators are notified; a persistence failure is fatal to the run.
func (o *Orchestrator) persistAll(ctx context.Context, run *model.PipelineRun, producers map[string]extractor.Extractor) error {
	var firstErr error
	for _, ex := range o.stages {
		for field := range run.Results {
			if p, ok := producers[field]; !ok || p.ID() != ex.ID() {
				continue
			}
			if err := o.persistField(ctx, run, field); err != nil {
				run.AddError(model.PipelineError{
					Stage:   string(run.Stage),
					Field:   field,
					Kind:    "persistence",
					Message: fmt.Sprintf("persist %s: %v", field, err),
					Fatal:   true,
				})
				if firstErr == nil {
					firstErr = err
				}
			}
		}
	}
	return firstErr
}

func (o *Orchestrator) persistField(ctx context.Context, run *model.PipelineRun, field string) error {
	rec := &model.EnrichmentRecord{
		RecordID:   run.RecordID,
		RunID:      run.ID,
		Field:      field,
		Result:     run.Results[field],
		Evaluation: run.Evaluations[field],
	}

	if run.Evaluations[field].Action == model.ActionAutoApply {
		rec.Status = model.StatusApplied
		return o.store.Persist(ctx, rec)
	}

	if o.reviews != nil {
		return o.reviews.Enqueue(ctx, rec)
	}
	rec.Status = model.StatusPending
	return o.store.Persist(ctx, rec)
}

// assembleOutput builds the downstream output contract from a finished run.
func (o *Orchestrator) assembleOutput(
	run *model.PipelineRun,
	rec model.Record,
	detConfidence map[string]float64,
) *model.EnrichedRecord {
	out := &model.EnrichedRecord{
		RecordID:       rec.ID,
		RunID:          run.ID,
		Fields:         make(map[string]model.FieldOutput, len(run.Results)),
		Warnings:       run.Warnings,
		FailureReason:  run.FailureReason,
		SourceMetadata: rec.SourceMetadata,
	}

	for field, res := range run.Results {
		dec := run.Evaluations[field]

		scores := model.ConfidenceScores{
			Overall:       dec.FinalConfidence,
			Deterministic: detConfidence[field],
		}
		if res.Source == model.SourceFallback {
			scores.Fallback = res.Confidence
		}

		fo := model.FieldOutput{
			ConfidenceScores: scores,
			Warnings:         res.Warnings,
		}
		switch dec.Action {
		case model.ActionAutoApply:
			fo.Value = res.Value
			fo.PipelineStage = "complete"
			fo.ProcessingStatus = "complete"
		case model.ActionNeedsReview:
			fo.PipelineStage = "review"
			fo.ProcessingStatus = "review"
		default:
			// Fallback never ran (disabled or the run failed first).
			fo.PipelineStage = sourceStage(res.Source)
			fo.ProcessingStatus = "pending"
		}
		if run.Stage == model.StageFailed && dec.Action != model.ActionAutoApply {
			fo.ProcessingStatus = "failed"
		}
		out.Fields[field] = fo
	}
	return out
}

func (o *Orchestrator) isFatal(kind string) bool {
	return o.cfg.ErrorPolicy[kind] == "fatal"
}

func (o *Orchestrator) observeStage(stage model.RunStage, d time.Duration) {
	if o.metrics != nil {
		o.metrics.ObserveStage(stage, d)
	}
}

func (o *Orchestrator) observeFallback() {
	if o.metrics != nil {
		o.metrics.ObserveFallback()
	}
}

func (o *Orchestrator) observeRun(run *model.PipelineRun) {
	if o.metrics != nil {
		o.metrics.ObserveRun(run.Stage)
	}
}

// errorKind extracts the classification kind from an extraction error.
func errorKind(err error) string {
	var exErr *extractor.Error
	if errors.As(err, &exErr) {
		return exErr.Kind
	}
	return "extraction"
}

// excerptFor gathers the text an extractor read, bounded for prompting.
func excerptFor(input extractor.Input, ex extractor.Extractor) string {
	var parts []string
	if ex != nil {
		for _, name := range ex.Reads() {
			if v := input.Get(name); v != "" {
				parts = append(parts, v)
			}
		}
	}
	if len(parts) == 0 {
		for _, name := range []string{"clean_text", "title", "description"} {
			if v := input.Get(name); v != "" {
				parts = append(parts, v)
			}
		}
	}
	excerpt := strings.Join(parts, "\n")
	if len(excerpt) > maxExcerptLen {
		excerpt = excerpt[:maxExcerptLen]
	}
	return excerpt
}

func renderValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []string:
		return strings.Join(t, ", ")
	default:
		return fmt.Sprintf("%v", t)
	}
}

func sourceStage(src model.ResultSource) string {
	if src == model.SourceFallback {
		return "fallback"
	}
	return "deterministic"
}
