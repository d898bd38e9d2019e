// Package lifecycle implements the job lifecycle manager: it creates job
// records, hands off between the object store and the conversion workers,
// applies state transitions, and serves status reads.
//
// Every transition goes through a conditional update keyed on the expected
// prior status. A conflicting update is swallowed as a no-op, which makes
// each transition commutative with its own retries: at-least-once trigger
// delivery and at-least-once worker reporting both collapse to exactly-once
// observable effects.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/docmill/convertd/internal/blob"
	"github.com/docmill/convertd/internal/queue"
	"github.com/docmill/convertd/internal/storage"
)

// Errors surfaced to callers of the manager.
var (
	// ErrNotFound mirrors storage.ErrNotFound for status reads.
	ErrNotFound = storage.ErrNotFound
	// ErrUnsupportedType rejects content types outside the pdf/image
	// allow-list at creation time, before any credential is issued.
	ErrUnsupportedType = errors.New("unsupported content type")
	// ErrIDExhausted is returned when repeated id collisions prevent job
	// creation. With UUID ids this indicates a store problem, not bad luck.
	ErrIDExhausted = errors.New("could not allocate a unique job id")
)

// createAttempts bounds id regeneration on collision.
const createAttempts = 3

// JobStore is the slice of the record store the manager needs.
type JobStore interface {
	Create(ctx context.Context, job *storage.Job) error
	Get(ctx context.Context, jobID string) (*storage.Job, error)
	UpdateStatus(ctx context.Context, jobID string, expected storage.JobStatus, update storage.StatusUpdate) error
}

// TriggerQueue publishes conversion trigger messages.
type TriggerQueue interface {
	Enqueue(ctx context.Context, msg queue.Message) error
}

// Manager coordinates the job state machine. Construct one at process start
// and pass it explicitly; it holds no package-level state.
type Manager struct {
	store  JobStore
	blobs  blob.Store
	queue  TriggerQueue
	logger zerolog.Logger
	newID  func() string
}

// NewManager creates a lifecycle manager. queue may be nil on processes that
// never enqueue (the worker uses the manager only for transitions).
func NewManager(store JobStore, blobs blob.Store, queue TriggerQueue, logger zerolog.Logger) *Manager {
	return &Manager{
		store:  store,
		blobs:  blobs,
		queue:  queue,
		logger: logger,
		newID:  uuid.NewString,
	}
}

// CreatedJob is the response to a successful job creation.
type CreatedJob struct {
	JobID     string
	UploadURL string
	ExpiresAt time.Time
}

// CreateJob allocates a job id, issues a write credential for the input
// object, and persists a started record. On an id collision the id is
// regenerated, bounded at createAttempts; this guards the identifier scheme
// rather than retrying business logic.
func (m *Manager) CreateJob(ctx context.Context, filename, contentType string) (*CreatedJob, error) {
	if filename == "" {
		return nil, errors.New("filename must not be empty")
	}
	if !AllowedContentType(contentType) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
	}

	for attempt := 0; attempt < createAttempts; attempt++ {
		jobID := m.newID()
		inputKey := blob.InputKey(jobID, filename)

		cred, err := m.blobs.IssueWriteCredential(ctx, inputKey, contentType)
		if err != nil {
			return nil, fmt.Errorf("issue write credential: %w", err)
		}

		job := &storage.Job{
			JobID:         jobID,
			Status:        storage.StatusStarted,
			ContentType:   contentType,
			InputLocation: m.blobs.Location(inputKey),
		}
		err = m.store.Create(ctx, job)
		if errors.Is(err, storage.ErrAlreadyExists) {
			m.logger.Warn().Str("job_id", jobID).Msg("job id collision, regenerating")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create job record: %w", err)
		}

		m.logger.Info().
			Str("job_id", jobID).
			Str("filename", filename).
			Str("content_type", contentType).
			Msg("job created")
		return &CreatedJob{
			JobID:     jobID,
			UploadURL: cred.URL,
			ExpiresAt: cred.ExpiresAt,
		}, nil
	}
	return nil, ErrIDExhausted
}

// EnqueueProcessing publishes the conversion trigger for a job. Safe to call
// more than once; duplicate triggers are absorbed by BeginProcessing.
func (m *Manager) EnqueueProcessing(ctx context.Context, jobID string) error {
	job, err := m.store.Get(ctx, jobID)
	if err != nil {
		return err
	}

	_, inputKey, err := blob.ParseLocation(job.InputLocation)
	if err != nil {
		return err
	}
	return m.queue.Enqueue(ctx, queue.Message{
		JobID:       job.JobID,
		InputKey:    inputKey,
		ContentType: job.ContentType,
	})
}

// BeginProcessing transitions started -> processing. A trigger that lost the
// race, or one aimed at a job that no longer exists, is a no-op success:
// multiple deliveries must not produce divergent side effects.
func (m *Manager) BeginProcessing(ctx context.Context, jobID string) error {
	err := m.store.UpdateStatus(ctx, jobID, storage.StatusStarted, storage.StatusUpdate{
		Status: storage.StatusProcessing,
	})
	if errors.Is(err, storage.ErrConflict) || errors.Is(err, storage.ErrNotFound) {
		m.logger.Debug().Str("job_id", jobID).Err(err).Msg("begin processing was a no-op")
		return nil
	}
	return err
}

// CompleteJob transitions processing -> success with the output locations.
// A late or duplicate completion against an already-terminal job is
// swallowed, so at-least-once worker reporting has exactly-once effect.
func (m *Manager) CompleteJob(ctx context.Context, jobID string, outputs storage.Locations) error {
	if len(outputs) == 0 {
		return errors.New("completion requires at least one output location")
	}
	err := m.store.UpdateStatus(ctx, jobID, storage.StatusProcessing, storage.StatusUpdate{
		Status:          storage.StatusSuccess,
		OutputLocations: outputs,
	})
	if errors.Is(err, storage.ErrConflict) || errors.Is(err, storage.ErrNotFound) {
		m.logger.Debug().Str("job_id", jobID).Err(err).Msg("duplicate completion discarded")
		return nil
	}
	return err
}

// FailJob transitions processing -> error with the given message, with the
// same idempotency rule as CompleteJob.
func (m *Manager) FailJob(ctx context.Context, jobID, message string) error {
	return m.failFrom(ctx, jobID, storage.StatusProcessing, message)
}

// FailJobFrom transitions expected -> error. The sweep uses it with
// StatusStarted for jobs whose upload never arrived.
func (m *Manager) FailJobFrom(ctx context.Context, jobID string, expected storage.JobStatus, message string) error {
	return m.failFrom(ctx, jobID, expected, message)
}

func (m *Manager) failFrom(ctx context.Context, jobID string, expected storage.JobStatus, message string) error {
	if message == "" {
		message = "conversion failed"
	}
	err := m.store.UpdateStatus(ctx, jobID, expected, storage.StatusUpdate{
		Status:  storage.StatusError,
		Message: message,
	})
	if errors.Is(err, storage.ErrConflict) || errors.Is(err, storage.ErrNotFound) {
		m.logger.Debug().Str("job_id", jobID).Err(err).Msg("duplicate failure discarded")
		return nil
	}
	return err
}

// GetStatus is the pure read path used by polling. It must stay fast and
// independent of the conversion fleet.
func (m *Manager) GetStatus(ctx context.Context, jobID string) (*storage.Job, error) {
	return m.store.Get(ctx, jobID)
}

// StatusView is the client-facing shape of a status read. URLs carries one
// read credential per output kind, minted at read time so they are fresh for
// however long the client kept polling.
type StatusView struct {
	JobID     string
	Status    storage.JobStatus
	CreatedAt time.Time
	URLs      map[string]string
	Message   string
}

// Describe reads a job and, for successful jobs, mints read credentials for
// the uploaded input and every output location.
func (m *Manager) Describe(ctx context.Context, jobID string) (*StatusView, error) {
	job, err := m.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	view := &StatusView{
		JobID:     job.JobID,
		Status:    job.Status,
		CreatedAt: job.CreatedAt,
		Message:   job.Message,
	}

	if job.Status == storage.StatusSuccess {
		view.URLs = make(map[string]string, len(job.OutputLocations)+1)
		// The uploaded original rides along with the artifacts.
		locations := map[string]string{"input": job.InputLocation}
		for kind, location := range job.OutputLocations {
			locations[kind] = location
		}
		for kind, location := range locations {
			_, key, err := blob.ParseLocation(location)
			if err != nil {
				return nil, err
			}
			cred, err := m.blobs.IssueReadCredential(ctx, key)
			if err != nil {
				return nil, fmt.Errorf("issue read credential for %s: %w", kind, err)
			}
			view.URLs[kind] = cred.URL
		}
	}
	return view, nil
}

// AllowedContentType reports whether the declared type is accepted for
// upload: PDFs and images only, matching what the converter can handle.
func AllowedContentType(contentType string) bool {
	return contentType == "application/pdf" || strings.HasPrefix(contentType, "image/")
}
