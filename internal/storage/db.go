package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// OpenOptions holds connection pool settings for Open.
type OpenOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open connects to the job record store. driver is "sqlite3" or "postgres";
// the SQL in this package is written to run on both.
func Open(ctx context.Context, driver, dsn string, opts OpenOptions) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return db, nil
}

// EnsureSchema creates the jobs table and its indexes if they do not exist.
// The DDL is portable across Postgres and SQLite; timestamps are stored in
// UTC by the repository.
func EnsureSchema(ctx context.Context, db DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS jobs (
			job_id           TEXT PRIMARY KEY,
			created_at       TIMESTAMP NOT NULL,
			updated_at       TIMESTAMP NOT NULL,
			status           TEXT NOT NULL,
			content_type     TEXT NOT NULL,
			input_location   TEXT NOT NULL,
			output_locations TEXT NOT NULL DEFAULT '{}',
			message          TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_status_updated_at ON jobs (status, updated_at)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs (created_at)`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
