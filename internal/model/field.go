package model

// ResultSource identifies which kind of engine produced a field result.
type ResultSource string

const (
	// SourceDeterministic marks results produced by a local extractor.
	SourceDeterministic ResultSource = "deterministic"
	// SourceFallback marks results produced by the external inference service.
	SourceFallback ResultSource = "fallback"
)

// FieldResult is the output of a single extractor or fallback call for one
// field. A failed or empty match is represented as confidence 0.0 rather
// than an absent result, so every field has a canonical unknown form.
type FieldResult struct {
	Field      string       `json:"field"`
	Value      any          `json:"value"`
	Confidence float64      `json:"confidence"` // always within [0.0, 1.0]
	Source     ResultSource `json:"source"`
	Warnings   []string     `json:"warnings,omitempty"`
}

// Unknown returns the canonical no-match result for a field.
func Unknown(field string, source ResultSource, warnings ...string) FieldResult {
	return FieldResult{
		Field:      field,
		Value:      nil,
		Confidence: 0.0,
		Source:     source,
		Warnings:   warnings,
	}
}

// ClampConfidence bounds c into [0.0, 1.0].
func ClampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// EvaluationAction is the verdict of the confidence evaluator for a field.
type EvaluationAction string

const (
	ActionAutoApply     EvaluationAction = "auto_apply"
	ActionNeedsFallback EvaluationAction = "needs_fallback"
	ActionNeedsReview   EvaluationAction = "needs_review"
)

// EvaluationDecision records how a field result was judged against its
// resolved threshold, including which adjustment rules fired.
type EvaluationDecision struct {
	Field           string           `json:"field"`
	RawConfidence   float64          `json:"raw_confidence"`
	FinalConfidence float64          `json:"final_confidence"`
	Threshold       float64          `json:"threshold"`
	Action          EvaluationAction `json:"action"`
	RulesApplied    []string         `json:"rules_applied,omitempty"`
}
