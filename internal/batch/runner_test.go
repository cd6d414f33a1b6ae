package batch

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roastcraft/enrich-cli/internal/model"
	"github.com/roastcraft/enrich-cli/internal/pipeline"
	"github.com/roastcraft/enrich-cli/internal/resilience"
)

type stubEnricher struct {
	mu       sync.Mutex
	seen     []string
	inFlight atomic.Int64
	maxSeen  atomic.Int64
	delay    time.Duration
	fail     map[string]error
}

func (s *stubEnricher) Run(_ context.Context, rec model.Record) (*pipeline.Result, error) {
	cur := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		peak := s.maxSeen.Load()
		if cur <= peak || s.maxSeen.CompareAndSwap(peak, cur) {
			break
		}
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}

	s.mu.Lock()
	s.seen = append(s.seen, rec.ID)
	s.mu.Unlock()

	if err, ok := s.fail[rec.ID]; ok {
		return nil, err
	}
	run := model.NewPipelineRun("run-"+rec.ID, rec.ID)
	run.Transition(model.StageCompleted)
	return &pipeline.Result{
		Run:    run,
		Output: &model.EnrichedRecord{RecordID: rec.ID, RunID: run.ID},
	}, nil
}

func records(ids ...string) []model.Record {
	recs := make([]model.Record, len(ids))
	for i, id := range ids {
		recs[i] = model.Record{ID: id}
	}
	return recs
}

func TestRunner_ProcessAll(t *testing.T) {
	t.Parallel()

	enricher := &stubEnricher{}
	runner := NewRunner(enricher, 3, nil)

	summary, err := runner.Process(context.Background(), records("a", "b", "c", "d", "e"))
	require.NoError(t, err)

	assert.Equal(t, 5, summary.Processed)
	assert.Equal(t, 5, summary.Succeeded)
	assert.Zero(t, summary.Failed)
	assert.Len(t, summary.Outputs, 5)
}

func TestRunner_BoundedConcurrency(t *testing.T) {
	t.Parallel()

	enricher := &stubEnricher{delay: 20 * time.Millisecond}
	runner := NewRunner(enricher, 2, nil)

	_, err := runner.Process(context.Background(), records("a", "b", "c", "d", "e", "f"))
	require.NoError(t, err)
	assert.LessOrEqual(t, enricher.maxSeen.Load(), int64(2))
}

func TestRunner_FailureDoesNotAbortSiblings(t *testing.T) {
	t.Parallel()

	enricher := &stubEnricher{fail: map[string]error{"b": eris.New("store unreachable")}}
	dlq := resilience.NewDLQ(3)
	runner := NewRunner(enricher, 2, dlq)

	summary, err := runner.Process(context.Background(), records("a", "b", "c"))
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, dlq.Depth())
}

func TestRunner_CancellationStopsDispatch(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	enricher := &stubEnricher{}
	runner := NewRunner(enricher, 2, nil)

	summary, err := runner.Process(ctx, records("a", "b", "c"))
	require.NoError(t, err)
	assert.Zero(t, summary.Processed)
	assert.Empty(t, enricher.seen)
}

func TestRunner_RetryDeadLetters(t *testing.T) {
	t.Parallel()

	enricher := &stubEnricher{fail: map[string]error{"b": eris.New("transient outage")}}
	dlq := resilience.NewDLQ(3)
	runner := NewRunner(enricher, 2, dlq)

	_, err := runner.Process(context.Background(), records("a", "b"))
	require.NoError(t, err)
	require.Equal(t, 1, dlq.Depth())

	// The outage clears; the dead letter succeeds on retry.
	enricher.fail = nil
	summary, err := runner.RetryDeadLetters(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
}

func TestRunner_EmptyBatch(t *testing.T) {
	t.Parallel()

	runner := NewRunner(&stubEnricher{}, 2, nil)
	summary, err := runner.Process(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, summary.Processed)
}
