package resilience

import (
	"sync"
	"time"

	"github.com/roastcraft/enrich-cli/internal/model"
)

// DLQEntry holds a record whose pipeline run failed, so a later batch pass
// can retry it without re-reading the input feed.
type DLQEntry struct {
	Record       model.Record `json:"record"`
	Error        string       `json:"error"`
	ErrorKind    string       `json:"error_kind"` // "retryable" or "permanent"
	RetryCount   int          `json:"retry_count"`
	MaxRetries   int          `json:"max_retries"`
	FirstFailed  time.Time    `json:"first_failed_at"`
	LastFailed   time.Time    `json:"last_failed_at"`
}

// CanRetry returns true if this entry has retry budget left and the failure
// was not permanent.
func (e *DLQEntry) CanRetry() bool {
	return e.ErrorKind == "retryable" && e.RetryCount < e.MaxRetries
}

// DLQ is an in-process dead letter queue of failed records, shared by the
// batch workers.
type DLQ struct {
	mu         sync.Mutex
	entries    map[string]*DLQEntry // keyed by record id
	maxRetries int
}

// NewDLQ creates a dead letter queue allowing maxRetries attempts per record.
func NewDLQ(maxRetries int) *DLQ {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &DLQ{
		entries:    make(map[string]*DLQEntry),
		maxRetries: maxRetries,
	}
}

// Add records a failed record. Repeated failures for the same record bump
// the retry counter instead of creating duplicates.
func (q *DLQ) Add(rec model.Record, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	// Run-level failures (persistence, extraction, anything unclassified)
	// stay retryable within the retry budget; only an explicit permanent
	// service failure is parked for good.
	kind := "retryable"
	if IsPermanent(err) {
		kind = "permanent"
	}

	now := time.Now().UTC()
	if e, ok := q.entries[rec.ID]; ok {
		e.RetryCount++
		e.Error = err.Error()
		e.ErrorKind = kind
		e.LastFailed = now
		return
	}

	q.entries[rec.ID] = &DLQEntry{
		Record:      rec,
		Error:       err.Error(),
		ErrorKind:   kind,
		MaxRetries:  q.maxRetries,
		FirstFailed: now,
		LastFailed:  now,
	}
}

// Retryable returns the records eligible for another pass.
func (q *DLQ) Retryable() []model.Record {
	q.mu.Lock()
	defer q.mu.Unlock()

	var recs []model.Record
	for _, e := range q.entries {
		if e.CanRetry() {
			recs = append(recs, e.Record)
		}
	}
	return recs
}

// Entries returns a snapshot of all entries.
func (q *DLQ) Entries() []DLQEntry {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]DLQEntry, 0, len(q.entries))
	for _, e := range q.entries {
		out = append(out, *e)
	}
	return out
}

// Depth returns the number of dead-lettered records.
func (q *DLQ) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
