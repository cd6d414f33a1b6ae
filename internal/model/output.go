package model

// ConfidenceScores breaks out the confidence of a field by source.
type ConfidenceScores struct {
	Overall       float64 `json:"overall"`
	Deterministic float64 `json:"deterministic"`
	Fallback      float64 `json:"fallback"`
}

// FieldOutput is the per-field annotation handed to the downstream
// persistence collaborator.
type FieldOutput struct {
	// Value is set only when the enrichment was applied.
	Value            any              `json:"value,omitempty"`
	ConfidenceScores ConfidenceScores `json:"confidence_scores"`
	PipelineStage    string           `json:"pipeline_stage"`     // deterministic|fallback|review|complete
	ProcessingStatus string           `json:"processing_status"`  // pending|processing|complete|review|failed
	Warnings         []string         `json:"processing_warnings,omitempty"`
}

// EnrichedRecord is the output contract of a pipeline run: the original
// record identity plus per-field enrichment annotations and the ordered
// warnings collected across all stages.
type EnrichedRecord struct {
	RecordID       string                 `json:"record_id"`
	RunID          string                 `json:"run_id"`
	Fields         map[string]FieldOutput `json:"fields"`
	Warnings       []string               `json:"processing_warnings,omitempty"`
	FailureReason  string                 `json:"failure_reason,omitempty"`
	SourceMetadata map[string]any         `json:"source_metadata,omitempty"`
}
