package model

import "time"

// EnrichmentStatus is the review lifecycle state of a stored enrichment.
type EnrichmentStatus string

const (
	StatusPending  EnrichmentStatus = "pending"
	StatusApproved EnrichmentStatus = "approved"
	StatusRejected EnrichmentStatus = "rejected"
	StatusApplied  EnrichmentStatus = "applied"
)

// EnrichmentRecord is the durable artifact of one enrichment attempt for one
// field of one record. Records are append-only per (recordID, field):
// reprocessing supersedes with a new row, it never rewrites history.
type EnrichmentRecord struct {
	ID         string             `json:"id"`
	RecordID   string             `json:"record_id"`
	RunID      string             `json:"run_id"`
	Field      string             `json:"field"`
	Result     FieldResult        `json:"result"`
	Evaluation EvaluationDecision `json:"evaluation"`
	Status     EnrichmentStatus   `json:"status"`
	ReviewerID string             `json:"reviewer_id,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// validTransitions holds the allowed status moves. Pending records are
// settled by a reviewer; approved values are applied by the consumer.
var validTransitions = map[EnrichmentStatus][]EnrichmentStatus{
	StatusPending:  {StatusApproved, StatusRejected},
	StatusApproved: {StatusApplied},
}

// CanTransition reports whether moving from to next is a legal lifecycle step.
func CanTransition(from, to EnrichmentStatus) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
