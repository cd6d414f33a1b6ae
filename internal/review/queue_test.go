package review

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roastcraft/enrich-cli/internal/config"
	"github.com/roastcraft/enrich-cli/internal/model"
	"github.com/roastcraft/enrich-cli/internal/store"
)

func pendingRecord(recordID, field, runID string) *model.EnrichmentRecord {
	return &model.EnrichmentRecord{
		RecordID: recordID,
		RunID:    runID,
		Field:    field,
		Result: model.FieldResult{
			Field:      field,
			Value:      "dark",
			Confidence: 0.45,
			Source:     model.SourceFallback,
		},
		Evaluation: model.EvaluationDecision{
			Field:           field,
			FinalConfidence: 0.45,
			Threshold:       0.7,
			Action:          model.ActionNeedsReview,
		},
	}
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []Notification
	err   error
}

func (n *recordingNotifier) NotifyReviewRequired(_ context.Context, note Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, note)
	return n.err
}

func TestQueue_EnqueueAndList(t *testing.T) {
	t.Parallel()

	st := store.NewMemory()
	notifier := &recordingNotifier{}
	q := NewQueue(st, notifier, nil)

	rec := pendingRecord("rec-1", "roast_level", "run-1")
	require.NoError(t, q.Enqueue(context.Background(), rec))
	require.NotEmpty(t, rec.ID)
	assert.Equal(t, model.StatusPending, rec.Status)

	pending, err := q.Pending(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, rec.ID, pending[0].ID)

	depth, err := q.Depth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, depth)

	require.Len(t, notifier.notes, 1)
	assert.Equal(t, "roast_level", notifier.notes[0].Field)
	assert.Equal(t, 0.45, notifier.notes[0].Confidence)
}

func TestQueue_NotifierFailureDoesNotFailEnqueue(t *testing.T) {
	t.Parallel()

	st := store.NewMemory()
	notifier := &recordingNotifier{err: assert.AnError}
	q := NewQueue(st, notifier, nil)

	rec := pendingRecord("rec-1", "origin", "run-1")
	require.NoError(t, q.Enqueue(context.Background(), rec))

	depth, err := q.Depth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, depth)
}

func TestQueue_ApproveAppliesValue(t *testing.T) {
	t.Parallel()

	st := store.NewMemory()
	var applied []string
	applier := ApplierFunc(func(_ context.Context, rec *model.EnrichmentRecord) error {
		applied = append(applied, rec.Field)
		return nil
	})
	q := NewQueue(st, nil, applier)

	rec := pendingRecord("rec-1", "variety", "run-1")
	require.NoError(t, q.Enqueue(context.Background(), rec))
	require.NoError(t, q.Approve(context.Background(), rec.ID, "reviewer-7"))

	assert.Equal(t, []string{"variety"}, applied)

	got, err := st.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusApplied, got.Status)
	assert.Equal(t, "reviewer-7", got.ReviewerID)
}

func TestQueue_ApplyFailureLeavesApproved(t *testing.T) {
	t.Parallel()

	st := store.NewMemory()
	applier := ApplierFunc(func(_ context.Context, _ *model.EnrichmentRecord) error {
		return assert.AnError
	})
	q := NewQueue(st, nil, applier)

	rec := pendingRecord("rec-1", "weight", "run-1")
	require.NoError(t, q.Enqueue(context.Background(), rec))
	require.Error(t, q.Approve(context.Background(), rec.ID, "reviewer-7"))

	got, err := st.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, got.Status)
}

func TestQueue_Reject(t *testing.T) {
	t.Parallel()

	st := store.NewMemory()
	q := NewQueue(st, nil, nil)

	rec := pendingRecord("rec-1", "process", "run-1")
	require.NoError(t, q.Enqueue(context.Background(), rec))
	require.NoError(t, q.Reject(context.Background(), rec.ID, "reviewer-3"))

	got, err := st.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, got.Status)
}

func TestQueue_ConcurrentDecisionConflicts(t *testing.T) {
	t.Parallel()

	st := store.NewMemory()
	q := NewQueue(st, nil, nil)

	rec := pendingRecord("rec-1", "origin", "run-1")
	require.NoError(t, q.Enqueue(context.Background(), rec))

	require.NoError(t, q.Reject(context.Background(), rec.ID, "reviewer-1"))

	err := q.Approve(context.Background(), rec.ID, "reviewer-2")
	require.ErrorIs(t, err, store.ErrStatusConflict)

	got, getErr := st.Get(context.Background(), rec.ID)
	require.NoError(t, getErr)
	assert.Equal(t, model.StatusRejected, got.Status)
}

func TestWebhookNotifier_PostsJSON(t *testing.T) {
	t.Parallel()

	var got Notification
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(config.NotifyConfig{WebhookURL: srv.URL})
	err := n.NotifyReviewRequired(context.Background(), Notification{
		EnrichmentID: "enr-1",
		RecordID:     "rec-1",
		Field:        "origin",
		Confidence:   0.4,
	})
	require.NoError(t, err)
	assert.Equal(t, "enr-1", got.EnrichmentID)
	assert.Equal(t, "origin", got.Field)
}

func TestWebhookNotifier_ErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(config.NotifyConfig{WebhookURL: srv.URL})
	err := n.NotifyReviewRequired(context.Background(), Notification{EnrichmentID: "enr-1"})
	require.Error(t, err)
}

func TestWebhookNotifier_EmptyURLNoop(t *testing.T) {
	t.Parallel()

	n := NewWebhookNotifier(config.NotifyConfig{})
	require.NoError(t, n.NotifyReviewRequired(context.Background(), Notification{}))
}
