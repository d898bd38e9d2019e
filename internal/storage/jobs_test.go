package storage

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) (*JobRepository, *sql.DB) {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// A single connection keeps every statement on the same in-memory DB.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, EnsureSchema(context.Background(), db))
	return NewJobRepository(db, zerolog.Nop()), db
}

func newTestJob(id string) *Job {
	return &Job{
		JobID:         id,
		Status:        StatusStarted,
		ContentType:   "application/pdf",
		InputLocation: "s3://convertd/input/" + id + "/report.pdf",
	}
}

func TestJobRepository_CreateAndGet(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	job := newTestJob("job-1")
	require.NoError(t, repo.Create(ctx, job))

	got, err := repo.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, "job-1", got.JobID)
	assert.Equal(t, StatusStarted, got.Status)
	assert.Equal(t, "application/pdf", got.ContentType)
	assert.Equal(t, job.InputLocation, got.InputLocation)
	assert.Empty(t, got.OutputLocations)
	assert.Empty(t, got.Message)
	assert.False(t, got.CreatedAt.IsZero())
	assert.False(t, got.UpdatedAt.IsZero())
}

func TestJobRepository_CreateDuplicate(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newTestJob("job-1")))
	err := repo.Create(ctx, newTestJob("job-1"))
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestJobRepository_GetNotFound(t *testing.T) {
	repo, _ := newTestRepo(t)

	_, err := repo.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestJobRepository_UpdateStatus(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newTestJob("job-1")))

	err := repo.UpdateStatus(ctx, "job-1", StatusStarted, StatusUpdate{Status: StatusProcessing})
	require.NoError(t, err)

	got, err := repo.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, got.Status)
}

func TestJobRepository_UpdateStatusBindsAllColumns(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	job := newTestJob("job-1")
	require.NoError(t, repo.Create(ctx, job))

	// One transition; afterwards every column must hold its own value.
	// Guards against positional argument scrambles in the UPDATE binding.
	require.NoError(t, repo.UpdateStatus(ctx, "job-1", StatusStarted, StatusUpdate{
		Status:  StatusError,
		Message: "upload was not received before the deadline",
	}))

	got, err := repo.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, "job-1", got.JobID)
	assert.Equal(t, StatusError, got.Status)
	assert.Equal(t, "upload was not received before the deadline", got.Message)
	assert.Empty(t, got.OutputLocations)
	assert.Equal(t, "application/pdf", got.ContentType)
	assert.Equal(t, job.InputLocation, got.InputLocation)
	assert.False(t, got.UpdatedAt.Before(got.CreatedAt))
}

func TestJobRepository_UpdateStatusConflict(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newTestJob("job-1")))
	require.NoError(t, repo.UpdateStatus(ctx, "job-1", StatusStarted, StatusUpdate{Status: StatusProcessing}))

	// A second writer still expecting the old status loses.
	err := repo.UpdateStatus(ctx, "job-1", StatusStarted, StatusUpdate{Status: StatusProcessing})
	assert.ErrorIs(t, err, ErrConflict)

	got, err := repo.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, got.Status)
}

func TestJobRepository_UpdateStatusNotFound(t *testing.T) {
	repo, _ := newTestRepo(t)

	err := repo.UpdateStatus(context.Background(), "nope", StatusStarted, StatusUpdate{Status: StatusProcessing})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestJobRepository_UpdateStatusStoresOutputs(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newTestJob("job-1")))
	require.NoError(t, repo.UpdateStatus(ctx, "job-1", StatusStarted, StatusUpdate{Status: StatusProcessing}))

	outputs := Locations{
		"text": "s3://convertd/output/job-1/report.txt",
		"html": "s3://convertd/output/job-1/report.html",
	}
	require.NoError(t, repo.UpdateStatus(ctx, "job-1", StatusProcessing, StatusUpdate{
		Status:          StatusSuccess,
		OutputLocations: outputs,
	}))

	got, err := repo.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, got.Status)
	assert.Equal(t, outputs, got.OutputLocations)
}

func TestJobRepository_UpdateStatusStoresMessage(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newTestJob("job-1")))
	require.NoError(t, repo.UpdateStatus(ctx, "job-1", StatusStarted, StatusUpdate{
		Status:  StatusError,
		Message: "upload was not received before the deadline",
	}))

	got, err := repo.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, StatusError, got.Status)
	assert.Equal(t, "upload was not received before the deadline", got.Message)
}

func TestJobRepository_TerminalIsFinal(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newTestJob("job-1")))
	require.NoError(t, repo.UpdateStatus(ctx, "job-1", StatusStarted, StatusUpdate{Status: StatusProcessing}))
	require.NoError(t, repo.UpdateStatus(ctx, "job-1", StatusProcessing, StatusUpdate{
		Status:  StatusError,
		Message: "boom",
	}))

	// Late success from a slow worker does not overwrite the terminal state.
	err := repo.UpdateStatus(ctx, "job-1", StatusProcessing, StatusUpdate{
		Status:          StatusSuccess,
		OutputLocations: Locations{"text": "s3://convertd/output/job-1/report.txt"},
	})
	assert.ErrorIs(t, err, ErrConflict)

	got, err := repo.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, StatusError, got.Status)
	assert.Equal(t, "boom", got.Message)
}

func TestJobRepository_ListStuck(t *testing.T) {
	repo, db := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newTestJob("old-started")))
	require.NoError(t, repo.Create(ctx, newTestJob("fresh-started")))
	require.NoError(t, repo.Create(ctx, newTestJob("old-processing")))
	require.NoError(t, repo.UpdateStatus(ctx, "old-processing", StatusStarted, StatusUpdate{Status: StatusProcessing}))

	// Age the stuck candidates directly; Create always stamps now.
	aged := time.Now().UTC().Add(-time.Hour)
	for _, id := range []string{"old-started", "old-processing"} {
		_, err := db.ExecContext(ctx, `UPDATE jobs SET updated_at = $1 WHERE job_id = $2`, aged, id)
		require.NoError(t, err)
	}

	cutoff := time.Now().UTC().Add(-30 * time.Minute)

	stuck, err := repo.ListStuck(ctx, StatusStarted, cutoff, 10)
	require.NoError(t, err)
	require.Len(t, stuck, 1)
	assert.Equal(t, "old-started", stuck[0].JobID)

	stuck, err = repo.ListStuck(ctx, StatusProcessing, cutoff, 10)
	require.NoError(t, err)
	require.Len(t, stuck, 1)
	assert.Equal(t, "old-processing", stuck[0].JobID)
}

func TestJobRepository_ListStuckLimit(t *testing.T) {
	repo, db := newTestRepo(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-2 * time.Hour)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, repo.Create(ctx, newTestJob(id)))
		_, err := db.ExecContext(ctx, `UPDATE jobs SET updated_at = $1 WHERE job_id = $2`,
			base.Add(time.Duration(i)*time.Minute), id)
		require.NoError(t, err)
	}

	stuck, err := repo.ListStuck(ctx, StatusStarted, time.Now().UTC(), 2)
	require.NoError(t, err)
	require.Len(t, stuck, 2)
	// Oldest first.
	assert.Equal(t, "a", stuck[0].JobID)
	assert.Equal(t, "b", stuck[1].JobID)
}

func TestJobStatus_CanTransitionTo(t *testing.T) {
	assert.True(t, StatusStarted.CanTransitionTo(StatusProcessing))
	assert.True(t, StatusStarted.CanTransitionTo(StatusError))
	assert.True(t, StatusProcessing.CanTransitionTo(StatusSuccess))
	assert.True(t, StatusProcessing.CanTransitionTo(StatusError))

	assert.False(t, StatusProcessing.CanTransitionTo(StatusStarted))
	assert.False(t, StatusSuccess.CanTransitionTo(StatusError))
	assert.False(t, StatusError.CanTransitionTo(StatusSuccess))
	assert.False(t, StatusStarted.CanTransitionTo("bogus"))
}
