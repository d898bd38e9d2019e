package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/docmill/convertd/internal/blob"
	"github.com/docmill/convertd/internal/convert"
	"github.com/docmill/convertd/internal/queue"
	"github.com/docmill/convertd/internal/storage"
)

// Lifecycle is the slice of the lifecycle manager a worker needs.
type Lifecycle interface {
	BeginProcessing(ctx context.Context, jobID string) error
	CompleteJob(ctx context.Context, jobID string, outputs storage.Locations) error
	FailJob(ctx context.Context, jobID, message string) error
}

// Dequeuer pulls trigger messages off the queue.
type Dequeuer interface {
	Dequeue(ctx context.Context) (*queue.Message, error)
}

// Worker is a pool of goroutines consuming the trigger queue. Each job is
// claimed through BeginProcessing before any conversion work starts, so two
// workers handed the same trigger never both run it.
type Worker struct {
	queue     Dequeuer
	lifecycle Lifecycle
	adapter   *Adapter
	workers   int
	logger    zerolog.Logger
}

// New creates a worker pool with the given concurrency.
func New(q Dequeuer, lc Lifecycle, adapter *Adapter, workers int, logger zerolog.Logger) *Worker {
	if workers < 1 {
		workers = 1
	}
	return &Worker{
		queue:     q,
		lifecycle: lc,
		adapter:   adapter,
		workers:   workers,
		logger:    logger,
	}
}

// Run consumes the queue until ctx is cancelled. Blocks.
func (w *Worker) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < w.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			w.loop(ctx, id)
		}(i)
	}
	wg.Wait()
	return ctx.Err()
}

func (w *Worker) loop(ctx context.Context, id int) {
	logger := w.logger.With().Int("worker", id).Logger()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msg, err := w.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrEmpty) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			logger.Error().Err(err).Msg("dequeue failed")
			continue
		}

		w.process(ctx, logger, msg)
	}
}

// process runs one trigger end to end. Failure policy: a converter failure
// or a missing input blob is terminal and fails the job; a transient
// infrastructure failure leaves the job in processing for the sweep to
// reclaim, because recording success or failure we are not sure of would
// break the exactly-once contract.
func (w *Worker) process(ctx context.Context, logger zerolog.Logger, msg *queue.Message) {
	logger.Info().Str("job_id", msg.JobID).Str("input", msg.InputKey).Msg("received trigger")

	if err := w.lifecycle.BeginProcessing(ctx, msg.JobID); err != nil {
		logger.Error().Err(err).Str("job_id", msg.JobID).Msg("begin processing failed")
		return
	}

	outputs, err := w.adapter.Run(ctx, msg.JobID, msg.InputKey, msg.ContentType)
	if err != nil {
		var convErr *convert.ConversionError
		switch {
		case errors.As(err, &convErr):
			w.fail(ctx, logger, msg.JobID, convErr.Message)
		case errors.Is(err, blob.ErrObjectNotFound):
			w.fail(ctx, logger, msg.JobID, "input file was never uploaded")
		default:
			logger.Error().Err(err).Str("job_id", msg.JobID).
				Msg("conversion attempt aborted, leaving job for the sweep")
		}
		return
	}

	if err := w.lifecycle.CompleteJob(ctx, msg.JobID, outputs); err != nil {
		logger.Error().Err(err).Str("job_id", msg.JobID).Msg("record completion failed")
		return
	}
	logger.Info().Str("job_id", msg.JobID).Int("outputs", len(outputs)).Msg("job completed")
}

func (w *Worker) fail(ctx context.Context, logger zerolog.Logger, jobID, message string) {
	if err := w.lifecycle.FailJob(ctx, jobID, message); err != nil {
		logger.Error().Err(err).Str("job_id", jobID).Msg("record failure failed")
		return
	}
	logger.Info().Str("job_id", jobID).Str("message", message).Msg("job failed")
}
