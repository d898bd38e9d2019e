package sweep

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docmill/convertd/internal/storage"
)

type fakeStore struct {
	stuck   map[storage.JobStatus][]*storage.Job
	cutoffs map[storage.JobStatus]time.Time
	limits  map[storage.JobStatus]int
	listErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		stuck:   make(map[storage.JobStatus][]*storage.Job),
		cutoffs: make(map[storage.JobStatus]time.Time),
		limits:  make(map[storage.JobStatus]int),
	}
}

func (s *fakeStore) ListStuck(ctx context.Context, status storage.JobStatus, olderThan time.Time, limit int) ([]*storage.Job, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	s.cutoffs[status] = olderThan
	s.limits[status] = limit
	return s.stuck[status], nil
}

type failCall struct {
	jobID    string
	expected storage.JobStatus
	message  string
}

type fakeLifecycle struct {
	calls   []failCall
	failErr map[string]error
}

func (l *fakeLifecycle) FailJobFrom(ctx context.Context, jobID string, expected storage.JobStatus, message string) error {
	if err := l.failErr[jobID]; err != nil {
		return err
	}
	l.calls = append(l.calls, failCall{jobID: jobID, expected: expected, message: message})
	return nil
}

func testConfig() Config {
	return Config{
		Interval:           time.Minute,
		UploadDeadline:     30 * time.Minute,
		ProcessingDeadline: 15 * time.Minute,
		BatchLimit:         100,
	}
}

func TestSweep_ReclaimsStuckJobs(t *testing.T) {
	store := newFakeStore()
	store.stuck[storage.StatusStarted] = []*storage.Job{
		{JobID: "no-upload", Status: storage.StatusStarted},
	}
	store.stuck[storage.StatusProcessing] = []*storage.Job{
		{JobID: "dead-worker-1", Status: storage.StatusProcessing},
		{JobID: "dead-worker-2", Status: storage.StatusProcessing},
	}
	lc := &fakeLifecycle{}

	s := New(store, lc, testConfig(), zerolog.Nop())
	require.NoError(t, s.Sweep(context.Background()))

	require.Len(t, lc.calls, 3)
	assert.Equal(t, failCall{
		jobID:    "no-upload",
		expected: storage.StatusStarted,
		message:  uploadTimeoutMessage,
	}, lc.calls[0])
	assert.Equal(t, storage.StatusProcessing, lc.calls[1].expected)
	assert.Equal(t, processingTimeoutMessage, lc.calls[1].message)
}

func TestSweep_UsesDeadlinesAsCutoffs(t *testing.T) {
	store := newFakeStore()
	lc := &fakeLifecycle{}

	s := New(store, lc, testConfig(), zerolog.Nop())
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	require.NoError(t, s.Sweep(context.Background()))

	assert.Equal(t, base.Add(-30*time.Minute), store.cutoffs[storage.StatusStarted])
	assert.Equal(t, base.Add(-15*time.Minute), store.cutoffs[storage.StatusProcessing])
	assert.Equal(t, 100, store.limits[storage.StatusStarted])
	assert.Equal(t, 100, store.limits[storage.StatusProcessing])
}

func TestSweep_SkipsFailedReclaims(t *testing.T) {
	store := newFakeStore()
	store.stuck[storage.StatusProcessing] = []*storage.Job{
		{JobID: "broken", Status: storage.StatusProcessing},
		{JobID: "fine", Status: storage.StatusProcessing},
	}
	lc := &fakeLifecycle{
		failErr: map[string]error{"broken": errors.New("store hiccup")},
	}

	s := New(store, lc, testConfig(), zerolog.Nop())
	require.NoError(t, s.Sweep(context.Background()))

	// The failed job is skipped for this pass, the rest still reclaimed.
	require.Len(t, lc.calls, 1)
	assert.Equal(t, "fine", lc.calls[0].jobID)
}

func TestSweep_ListErrorAborts(t *testing.T) {
	store := newFakeStore()
	store.listErr = errors.New("db down")
	lc := &fakeLifecycle{}

	s := New(store, lc, testConfig(), zerolog.Nop())
	assert.Error(t, s.Sweep(context.Background()))
	assert.Empty(t, lc.calls)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	store := newFakeStore()
	lc := &fakeLifecycle{}

	cfg := testConfig()
	cfg.Interval = 5 * time.Millisecond
	s := New(store, lc, cfg, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := s.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
