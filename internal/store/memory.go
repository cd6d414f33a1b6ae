package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roastcraft/enrich-cli/internal/model"
)

// MemoryStore is an in-process Store for tests and ad-hoc runs. It mirrors
// the CAS and idempotency semantics of the database backends.
type MemoryStore struct {
	mu      sync.Mutex
	byID    map[string]*model.EnrichmentRecord
	byKey   map[memKey]string // (recordID, field, runID) → id
	ordinal map[string]int    // insertion order for stable history sorting
	next    int
}

type memKey struct {
	recordID string
	field    string
	runID    string
}

// NewMemory creates an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]*model.EnrichmentRecord),
		byKey:   make(map[memKey]string),
		ordinal: make(map[string]int),
	}
}

func (s *MemoryStore) Persist(_ context.Context, rec *model.EnrichmentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := memKey{rec.RecordID, rec.Field, rec.RunID}
	if existingID, ok := s.byKey[key]; ok {
		rec.ID = existingID
		return nil
	}

	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}

	cp := *rec
	s.byID[cp.ID] = &cp
	s.byKey[key] = cp.ID
	s.ordinal[cp.ID] = s.next
	s.next++
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*model.EnrichmentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) GetHistory(_ context.Context, recordID, field string) ([]model.EnrichmentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.EnrichmentRecord
	for _, rec := range s.byID {
		if rec.RecordID == recordID && rec.Field == field {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return s.ordinal[out[i].ID] < s.ordinal[out[j].ID]
	})
	return out, nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, id string, from, to model.EnrichmentStatus, reviewerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	if rec.Status != from {
		return ErrStatusConflict
	}
	rec.Status = to
	if reviewerID != "" {
		rec.ReviewerID = reviewerID
	}
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) ListByStatus(_ context.Context, status model.EnrichmentStatus, limit int) ([]model.EnrichmentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.EnrichmentRecord
	for _, rec := range s.byID {
		if rec.Status == status {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return s.ordinal[out[i].ID] < s.ordinal[out[j].ID]
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) CountByStatus(_ context.Context, status model.EnrichmentStatus) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	for _, rec := range s.byID {
		if rec.Status == status {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Migrate(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
