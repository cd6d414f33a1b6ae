package model

import "time"

// RunStage is the state machine value for a pipeline run.
type RunStage string

const (
	StageInitialized   RunStage = "initialized"
	StageDeterministic RunStage = "deterministic_parsing"
	StageFallback      RunStage = "llm_fallback"
	StageCompleted     RunStage = "completed"
	StageFailed        RunStage = "failed"
)

// Terminal reports whether the stage is an end state. A run becomes
// read-only once it reaches a terminal stage.
func (s RunStage) Terminal() bool {
	return s == StageCompleted || s == StageFailed
}

// PipelineError is a single error observed during a run, recoverable or not.
type PipelineError struct {
	Stage   string `json:"stage"`
	Field   string `json:"field,omitempty"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Fatal   bool   `json:"fatal"`
}

// PipelineRun is one execution of the pipeline over one record. It is owned
// exclusively by the orchestrator for its lifetime.
type PipelineRun struct {
	ID          string                        `json:"id"`
	RecordID    string                        `json:"record_id"`
	Stage       RunStage                      `json:"stage"`
	Results     map[string]FieldResult        `json:"results"`
	Evaluations map[string]EvaluationDecision `json:"evaluations"`
	Errors      []PipelineError               `json:"errors,omitempty"`
	Warnings    []string                      `json:"warnings,omitempty"`

	// FailureReason is set when Stage is StageFailed; callers never get a
	// silently-empty result in place of a failure signal.
	FailureReason string `json:"failure_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewPipelineRun creates an initialized run for a record.
func NewPipelineRun(id, recordID string) *PipelineRun {
	now := time.Now().UTC()
	return &PipelineRun{
		ID:          id,
		RecordID:    recordID,
		Stage:       StageInitialized,
		Results:     make(map[string]FieldResult),
		Evaluations: make(map[string]EvaluationDecision),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Transition moves the run to the next stage and bumps UpdatedAt. Moves out
// of a terminal stage are ignored.
func (r *PipelineRun) Transition(to RunStage) {
	if r.Stage.Terminal() {
		return
	}
	r.Stage = to
	r.UpdatedAt = time.Now().UTC()
}

// Fail transitions the run to StageFailed with an explicit reason.
func (r *PipelineRun) Fail(reason string) {
	if r.Stage.Terminal() {
		return
	}
	r.Stage = StageFailed
	r.FailureReason = reason
	r.UpdatedAt = time.Now().UTC()
}

// AddError appends an error and mirrors its message into the run warnings so
// it surfaces in the output's processing_warnings.
func (r *PipelineRun) AddError(e PipelineError) {
	r.Errors = append(r.Errors, e)
	r.Warnings = append(r.Warnings, e.Message)
}
