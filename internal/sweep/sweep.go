// Package sweep reclaims jobs that can no longer make progress on their
// own: started jobs whose upload never arrived, and processing jobs whose
// worker died before reporting an outcome. The polling client never sees
// these directly; the sweep forces them to a terminal error so polling can
// stop. If the original conversion result arrives after a reclaim, the
// idempotent completion path discards it.
package sweep

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/docmill/convertd/internal/storage"
)

// Messages recorded on reclaimed jobs.
const (
	uploadTimeoutMessage     = "upload was not received before the deadline"
	processingTimeoutMessage = "conversion did not finish before the deadline"
)

// Store lists candidate stuck jobs.
type Store interface {
	ListStuck(ctx context.Context, status storage.JobStatus, olderThan time.Time, limit int) ([]*storage.Job, error)
}

// Lifecycle applies the reclaim transition.
type Lifecycle interface {
	FailJobFrom(ctx context.Context, jobID string, expected storage.JobStatus, message string) error
}

// Config holds sweep deadlines.
type Config struct {
	Interval           time.Duration
	UploadDeadline     time.Duration
	ProcessingDeadline time.Duration
	BatchLimit         int
}

// Sweeper periodically reclaims stuck jobs.
type Sweeper struct {
	store     Store
	lifecycle Lifecycle
	cfg       Config
	logger    zerolog.Logger
	now       func() time.Time
}

// New creates a sweeper.
func New(store Store, lc Lifecycle, cfg Config, logger zerolog.Logger) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = 100
	}
	return &Sweeper{
		store:     store,
		lifecycle: lc,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// Run sweeps on a ticker until ctx is cancelled. Blocks.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				s.logger.Error().Err(err).Msg("sweep pass failed")
			}
		}
	}
}

// Sweep runs one reclaim pass over both stuck categories. Per-job failures
// are logged and skipped; the next pass retries them.
func (s *Sweeper) Sweep(ctx context.Context) error {
	if err := s.sweepStatus(ctx, storage.StatusStarted, s.cfg.UploadDeadline, uploadTimeoutMessage); err != nil {
		return err
	}
	return s.sweepStatus(ctx, storage.StatusProcessing, s.cfg.ProcessingDeadline, processingTimeoutMessage)
}

func (s *Sweeper) sweepStatus(ctx context.Context, status storage.JobStatus, deadline time.Duration, message string) error {
	olderThan := s.now().Add(-deadline)
	jobs, err := s.store.ListStuck(ctx, status, olderThan, s.cfg.BatchLimit)
	if err != nil {
		return err
	}

	for _, job := range jobs {
		// Racing against a concurrent transition is fine here: the
		// conditional update makes the loser a no-op.
		if err := s.lifecycle.FailJobFrom(ctx, job.JobID, status, message); err != nil {
			s.logger.Error().Err(err).Str("job_id", job.JobID).Msg("could not reclaim stuck job")
			continue
		}
		s.logger.Info().
			Str("job_id", job.JobID).
			Str("was", string(status)).
			Time("updated_at", job.UpdatedAt).
			Msg("reclaimed stuck job")
	}
	return nil
}
