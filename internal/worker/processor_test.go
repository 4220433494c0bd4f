package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainsentry/audit-be/internal/analyzer"
	"github.com/chainsentry/audit-be/internal/worker/domain"
)

// fakeStore is an in-memory Store that mimics the record/job tables
type fakeStore struct {
	mu          sync.Mutex
	records     map[string]*domain.Record
	jobStatus   map[string]string
	completions int

	getErr  error
	saveErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		records:   make(map[string]*domain.Record),
		jobStatus: make(map[string]string),
	}
}

func (f *fakeStore) addJob(jobID string, recordIDs ...string) {
	f.jobStatus[jobID] = domain.JobStatusPending
	for _, id := range recordIDs {
		f.records[id] = &domain.Record{
			RecordID:   id,
			JobID:      jobID,
			Name:       id + ".sol",
			SourceType: "FILE",
			SourceCode: "contract C {}",
			Status:     domain.RecordStatusPending,
		}
	}
}

func (f *fakeStore) GetRecord(_ context.Context, recordID string) (*domain.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	r, ok := f.records[recordID]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}
	copied := *r
	return &copied, nil
}

func (f *fakeStore) SaveRecordResult(_ context.Context, recordID string, result json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	r, ok := f.records[recordID]
	if !ok {
		return domain.ErrRecordNotFound
	}
	r.AuditResult = result
	r.Status = domain.RecordStatusDone
	return nil
}

func (f *fakeStore) CountPendingRecords(_ context.Context, jobID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, r := range f.records {
		if r.JobID == jobID && r.Status != domain.RecordStatusDone {
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) MarkJobCompleted(_ context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.jobStatus[jobID] == domain.JobStatusPending {
		f.jobStatus[jobID] = domain.JobStatusCompleted
		f.completions++
	}
	return nil
}

type fakeAnalyzer struct {
	mu     sync.Mutex
	result json.RawMessage
	err    error
	calls  int
	modes  []string
}

func (f *fakeAnalyzer) Analyze(_ context.Context, mode string, _ string) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.modes = append(f.modes, mode)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func newTestWorker(store Store, anlz Analyzer) *Worker {
	return NewWorker(&Config{
		Logger:   slog.New(slog.DiscardHandler),
		Storage:  store,
		Analyzer: anlz,
	})
}

func msgFor(recordID, jobID, mode string) *domain.AuditMessage {
	return &domain.AuditMessage{RecordID: recordID, JobID: jobID, Mode: mode}
}

func TestProcessRecord_LastRecordCompletesJob(t *testing.T) {
	store := newFakeStore()
	store.addJob("job-1", "rec-a")
	anlz := &fakeAnalyzer{result: json.RawMessage(`{"high":0}`)}
	w := newTestWorker(store, anlz)

	err := w.processRecord(context.Background(), msgFor("rec-a", "job-1", "STATIC"))

	require.NoError(t, err)
	assert.Equal(t, 1, anlz.calls)
	assert.Equal(t, []string{"STATIC"}, anlz.modes)
	assert.Equal(t, domain.RecordStatusDone, store.records["rec-a"].Status)
	assert.JSONEq(t, `{"high":0}`, string(store.records["rec-a"].AuditResult))
	assert.Equal(t, domain.JobStatusCompleted, store.jobStatus["job-1"])
}

func TestProcessRecord_SiblingsStillPendingLeaveJobOpen(t *testing.T) {
	store := newFakeStore()
	store.addJob("job-1", "rec-a", "rec-b", "rec-c")
	anlz := &fakeAnalyzer{result: json.RawMessage(`{}`)}
	w := newTestWorker(store, anlz)

	require.NoError(t, w.processRecord(context.Background(), msgFor("rec-a", "job-1", "AI")))
	require.NoError(t, w.processRecord(context.Background(), msgFor("rec-b", "job-1", "AI")))

	// one permanently failed sibling keeps the job pending indefinitely
	assert.Equal(t, domain.JobStatusPending, store.jobStatus["job-1"])

	pending, err := store.CountPendingRecords(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, 1, pending)
}

func TestProcessRecord_MissingRecordIsFatal(t *testing.T) {
	store := newFakeStore()
	w := newTestWorker(store, &fakeAnalyzer{})

	err := w.processRecord(context.Background(), msgFor("ghost", "job-1", "STATIC"))

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRecordNotFound)
	assert.False(t, shouldRequeue(err))
}

func TestProcessRecord_AnalyzerFailureIsRetryableOnFirstDelivery(t *testing.T) {
	store := newFakeStore()
	store.addJob("job-1", "rec-a")
	anlz := &fakeAnalyzer{err: &analyzer.StatusError{Code: http.StatusBadGateway, Body: "overloaded"}}
	w := newTestWorker(store, anlz)

	err := w.processRecord(context.Background(), msgFor("rec-a", "job-1", "AI"))

	require.Error(t, err)
	assert.True(t, shouldRequeue(err))
	// record untouched: no result, still pending
	assert.Equal(t, domain.RecordStatusPending, store.records["rec-a"].Status)
	assert.Nil(t, store.records["rec-a"].AuditResult)
}

func TestProcessRecord_AnalyzerFailureOnRedeliveryDrops(t *testing.T) {
	store := newFakeStore()
	store.addJob("job-1", "rec-a")
	anlz := &fakeAnalyzer{err: errors.New("connection refused")}
	w := newTestWorker(store, anlz)

	msg := msgFor("rec-a", "job-1", "AI")
	msg.Redelivered = true
	err := w.processRecord(context.Background(), msg)

	require.Error(t, err)
	assert.False(t, shouldRequeue(err))
}

func TestProcessRecord_RedeliveredDoneRecordOnlyRechecksCompletion(t *testing.T) {
	store := newFakeStore()
	store.addJob("job-1", "rec-a")
	store.records["rec-a"].Status = domain.RecordStatusDone
	store.records["rec-a"].AuditResult = json.RawMessage(`{"high":1}`)
	anlz := &fakeAnalyzer{}
	w := newTestWorker(store, anlz)

	msg := msgFor("rec-a", "job-1", "STATIC")
	msg.Redelivered = true
	err := w.processRecord(context.Background(), msg)

	require.NoError(t, err)
	// no second analyzer call, result untouched
	assert.Zero(t, anlz.calls)
	assert.JSONEq(t, `{"high":1}`, string(store.records["rec-a"].AuditResult))
	assert.Equal(t, domain.JobStatusCompleted, store.jobStatus["job-1"])
}

func TestCheckCompletion_ConcurrentFinishersCompleteOnce(t *testing.T) {
	store := newFakeStore()
	store.addJob("job-1", "rec-a", "rec-b", "rec-c", "rec-d", "rec-e")
	anlz := &fakeAnalyzer{result: json.RawMessage(`{}`)}
	w := newTestWorker(store, anlz)

	// first three finish sequentially
	for _, id := range []string{"rec-a", "rec-b", "rec-c"} {
		require.NoError(t, w.processRecord(context.Background(), msgFor(id, "job-1", "STATIC")))
	}

	// last two race
	var wg sync.WaitGroup
	for _, id := range []string{"rec-d", "rec-e"} {
		wg.Add(1)
		go func(recordID string) {
			defer wg.Done()
			assert.NoError(t, w.processRecord(context.Background(), msgFor(recordID, "job-1", "STATIC")))
		}(id)
	}
	wg.Wait()

	assert.Equal(t, domain.JobStatusCompleted, store.jobStatus["job-1"])
	assert.Equal(t, 1, store.completions)

	// redundant completion checks stay no-ops
	require.NoError(t, w.checkCompletion(context.Background(), msgFor("rec-e", "job-1", "STATIC")))
	require.NoError(t, w.checkCompletion(context.Background(), msgFor("rec-e", "job-1", "STATIC")))
	assert.Equal(t, 1, store.completions)
	assert.Equal(t, domain.JobStatusCompleted, store.jobStatus["job-1"])
}

func TestShouldRequeue(t *testing.T) {
	assert.False(t, shouldRequeue(domain.ErrRecordNotFound))
	assert.False(t, shouldRequeue(domain.ErrInvalidMessage))
	assert.False(t, shouldRequeue(errors.New("unknown")))
	assert.True(t, shouldRequeue(domain.NewRetryableError(errors.New("transient"))))
}
