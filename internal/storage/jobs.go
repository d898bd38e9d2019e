package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// Common errors returned by the job record store.
var (
	ErrNotFound      = errors.New("job not found")
	ErrAlreadyExists = errors.New("job already exists")
	ErrConflict      = errors.New("job status conflict")
)

// DB represents a database connection interface.
type DB interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// JobRepository handles job record persistence. All mutations go through
// Create or UpdateStatus; there is no raw overwrite path.
type JobRepository struct {
	db     DB
	logger zerolog.Logger
}

// NewJobRepository creates a new job repository.
func NewJobRepository(db DB, logger zerolog.Logger) *JobRepository {
	return &JobRepository{db: db, logger: logger}
}

const jobFields = `job_id, created_at, updated_at, status, content_type, input_location, output_locations, message`

// Create inserts a new job record. Returns ErrAlreadyExists when the job id
// collides with an existing record.
func (r *JobRepository) Create(ctx context.Context, job *Job) error {
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	if job.Status == "" {
		job.Status = StatusStarted
	}
	if job.OutputLocations == nil {
		job.OutputLocations = Locations{}
	}

	query := `
		INSERT INTO jobs (job_id, created_at, updated_at, status, content_type, input_location, output_locations, message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		job.JobID, job.CreatedAt, job.UpdatedAt, job.Status,
		job.ContentType, job.InputLocation, job.OutputLocations, job.Message,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert job: %w", err)
	}

	r.logger.Info().
		Str("job_id", job.JobID).
		Str("input", job.InputLocation).
		Msg("job record created")
	return nil
}

// Get retrieves a job by id. Returns ErrNotFound when no record exists.
func (r *JobRepository) Get(ctx context.Context, jobID string) (*Job, error) {
	query := `SELECT ` + jobFields + ` FROM jobs WHERE job_id = $1`

	job := &Job{}
	err := r.db.QueryRowContext(ctx, query, jobID).Scan(
		&job.JobID, &job.CreatedAt, &job.UpdatedAt, &job.Status,
		&job.ContentType, &job.InputLocation, &job.OutputLocations, &job.Message,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select job: %w", err)
	}
	return job, nil
}

// UpdateStatus applies a transition only if the stored status still equals
// expected at the time of the write. Zero affected rows are disambiguated
// with a point lookup: ErrNotFound when the job does not exist, ErrConflict
// when another writer advanced the status first. Callers that treat retries
// as no-ops swallow ErrConflict.
func (r *JobRepository) UpdateStatus(ctx context.Context, jobID string, expected JobStatus, update StatusUpdate) error {
	if update.OutputLocations == nil {
		update.OutputLocations = Locations{}
	}

	// Placeholders are numbered in order of appearance: SQLite binds ordinal
	// args by position, so out-of-order $N numbering scrambles the values.
	query := `
		UPDATE jobs
		SET status = $1, output_locations = $2, message = $3, updated_at = $4
		WHERE job_id = $5 AND status = $6
	`
	res, err := r.db.ExecContext(ctx, query,
		update.Status, update.OutputLocations, update.Message, time.Now().UTC(), jobID, expected,
	)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	if rows == 0 {
		if _, err := r.Get(ctx, jobID); errors.Is(err, ErrNotFound) {
			return ErrNotFound
		} else if err != nil {
			return err
		}
		return ErrConflict
	}

	r.logger.Info().
		Str("job_id", jobID).
		Str("from", string(expected)).
		Str("to", string(update.Status)).
		Msg("job status updated")
	return nil
}

// ListStuck returns up to limit jobs in the given status whose updated_at is
// older than olderThan, oldest first. Sweep input; status must be
// non-terminal to be meaningful.
func (r *JobRepository) ListStuck(ctx context.Context, status JobStatus, olderThan time.Time, limit int) ([]*Job, error) {
	query := `
		SELECT ` + jobFields + `
		FROM jobs
		WHERE status = $1 AND updated_at < $2
		ORDER BY updated_at ASC
		LIMIT $3
	`
	rows, err := r.db.QueryContext(ctx, query, status, olderThan.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("select stuck jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job := &Job{}
		if err := rows.Scan(
			&job.JobID, &job.CreatedAt, &job.UpdatedAt, &job.Status,
			&job.ContentType, &job.InputLocation, &job.OutputLocations, &job.Message,
		); err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
