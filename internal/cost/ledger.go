package cost

import (
	"sync"
	"time"
)

// Outcome is the result category of a recorded call.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeFailed   Outcome = "failed"
	OutcomeCacheHit Outcome = "cache_hit"
)

// Entry records one fallback call (or cache hit) for cost accounting.
// Every call is recorded regardless of outcome; cache hits are free.
type Entry struct {
	RecordID     string    `json:"record_id"`
	Field        string    `json:"field"`
	Model        string    `json:"model,omitempty"`
	InputTokens  int64     `json:"input_tokens"`
	OutputTokens int64     `json:"output_tokens"`
	CostUSD      float64   `json:"cost_usd"`
	Outcome      Outcome   `json:"outcome"`
	Attempts     int       `json:"attempts"`
	At           time.Time `json:"at"`
}

// Ledger is a thread-safe append-only record of fallback spend, shared by
// all batch workers.
type Ledger struct {
	mu      sync.Mutex
	calc    *Calculator
	entries []Entry

	totalUSD  float64
	calls     int
	cacheHits int
}

// NewLedger creates a ledger priced by calc.
func NewLedger(calc *Calculator) *Ledger {
	return &Ledger{calc: calc}
}

// RecordCall records a billed call and returns its cost.
func (l *Ledger) RecordCall(recordID, field, model string, inputTokens, outputTokens int64, attempts int, outcome Outcome) float64 {
	cost := l.calc.Call(model, inputTokens, outputTokens)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, Entry{
		RecordID:     recordID,
		Field:        field,
		Model:        model,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		CostUSD:      cost,
		Outcome:      outcome,
		Attempts:     attempts,
		At:           time.Now().UTC(),
	})
	l.totalUSD += cost
	l.calls++
	return cost
}

// RecordCacheHit records a free cache hit.
func (l *Ledger) RecordCacheHit(recordID, field string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, Entry{
		RecordID: recordID,
		Field:    field,
		Outcome:  OutcomeCacheHit,
		At:       time.Now().UTC(),
	})
	l.cacheHits++
}

// TotalUSD returns the accumulated spend.
func (l *Ledger) TotalUSD() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.totalUSD
}

// Calls returns the number of billed calls.
func (l *Ledger) Calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

// CacheHits returns the number of free cache hits.
func (l *Ledger) CacheHits() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cacheHits
}

// Entries returns a snapshot of all recorded entries in order.
func (l *Ledger) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}
