package fallback

import "context"

// InferRequest asks the inference service for a single field value.
type InferRequest struct {
	RecordID string
	SourceID string
	Field    string

	// Excerpt is the raw text the deterministic extractors could not
	// resolve, trimmed to what the prompt needs.
	Excerpt string
}

// InferResponse carries the service's answer plus token accounting.
type InferResponse struct {
	Value      any
	Confidence float64

	// HasConfidence reports whether the service supplied its own
	// confidence. When false the caller substitutes the configured
	// floor.
	HasConfidence bool

	Model        string
	InputTokens  int64
	OutputTokens int64
}

// Service performs model-backed field inference.
type Service interface {
	Infer(ctx context.Context, req InferRequest) (*InferResponse, error)
}
