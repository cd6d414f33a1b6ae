package model

// Record is the unit of work: a raw, semi-structured product record as
// delivered by the ingestion layer. It is immutable for the duration of a
// pipeline run and owned by exactly one run at a time.
type Record struct {
	ID string `json:"id"`

	// RawFields maps field name to raw text as scraped or imported.
	// Values are opaque to the engine; individual extractors declare
	// which fields they read.
	RawFields map[string]string `json:"raw_fields"`

	// SourceID identifies the upstream data origin (roaster site,
	// marketplace feed, ...). It scopes fallback rate limiting.
	SourceID string `json:"source_id,omitempty"`

	// SourceMetadata is passed through untouched for downstream
	// consumers; the engine never interprets it.
	SourceMetadata map[string]any `json:"source_metadata,omitempty"`
}

// Field returns the raw value for name, or "" if absent.
func (r Record) Field(name string) string {
	return r.RawFields[name]
}
