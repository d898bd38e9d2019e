// Package handlers provides HTTP handlers for the convertd API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/docmill/convertd/internal/blob"
	"github.com/docmill/convertd/internal/lifecycle"
	"github.com/docmill/convertd/internal/storage"
)

// JobService is the slice of the lifecycle manager the handlers need.
type JobService interface {
	CreateJob(ctx context.Context, filename, contentType string) (*lifecycle.CreatedJob, error)
	EnqueueProcessing(ctx context.Context, jobID string) error
	Describe(ctx context.Context, jobID string) (*lifecycle.StatusView, error)
}

// JobsHandler handles job creation, triggering, and status polling.
type JobsHandler struct {
	logger zerolog.Logger
	jobs   JobService
}

// NewJobsHandler creates a jobs handler.
func NewJobsHandler(logger zerolog.Logger, jobs JobService) *JobsHandler {
	return &JobsHandler{logger: logger, jobs: jobs}
}

// CreateJobRequestDTO is the create request body.
type CreateJobRequestDTO struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
}

// CreateJobResponseDTO is the create response body.
type CreateJobResponseDTO struct {
	JobID     string    `json:"job_id"`
	UploadURL string    `json:"presigned_upload_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// StatusResponseDTO is the status response body. URLs and Message are
// mutually exclusive and only present on terminal states.
type StatusResponseDTO struct {
	JobID   string            `json:"job_id"`
	Status  string            `json:"status"`
	URLs    map[string]string `json:"urls,omitempty"`
	Message string            `json:"message,omitempty"`
}

// Create handles POST /api/v1/jobs.
func (h *JobsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Filename == "" || req.ContentType == "" {
		h.writeError(w, http.StatusBadRequest, "filename and content_type are required")
		return
	}

	created, err := h.jobs.CreateJob(r.Context(), req.Filename, req.ContentType)
	if err != nil {
		if errors.Is(err, lifecycle.ErrUnsupportedType) {
			h.writeError(w, http.StatusUnsupportedMediaType, "content_type must be application/pdf or image/*")
			return
		}
		h.logger.Error().Err(err).Str("filename", req.Filename).Msg("create job failed")
		h.writeError(w, http.StatusInternalServerError, "could not create job")
		return
	}

	h.writeJSON(w, http.StatusCreated, CreateJobResponseDTO{
		JobID:     created.JobID,
		UploadURL: created.UploadURL,
		ExpiresAt: created.ExpiresAt,
	})
}

// Begin handles POST /api/v1/jobs/{jobID}/begin. Triggering twice is safe;
// the second trigger is absorbed downstream.
func (h *JobsHandler) Begin(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if jobID == "" {
		h.writeError(w, http.StatusBadRequest, "job id is required")
		return
	}

	if err := h.jobs.EnqueueProcessing(r.Context(), jobID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "job not found")
			return
		}
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("enqueue failed")
		h.writeError(w, http.StatusInternalServerError, "could not trigger conversion")
		return
	}

	h.writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID, "status": "accepted"})
}

// Status handles GET /api/v1/jobs/status?job_id=...
func (h *JobsHandler) Status(w http.ResponseWriter, r *http.Request) {
	jobID := r.URL.Query().Get("job_id")
	if jobID == "" {
		h.writeError(w, http.StatusBadRequest, "job_id query parameter is required")
		return
	}

	view, err := h.jobs.Describe(r.Context(), jobID)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			h.writeError(w, http.StatusNotFound, "job not found")
		case errors.Is(err, blob.ErrUnavailable):
			h.logger.Error().Err(err).Str("job_id", jobID).Msg("blob store unavailable")
			h.writeError(w, http.StatusBadGateway, "object store unavailable, retry")
		default:
			h.logger.Error().Err(err).Str("job_id", jobID).Msg("status read failed")
			h.writeError(w, http.StatusInternalServerError, "could not read job status")
		}
		return
	}

	h.writeJSON(w, http.StatusOK, StatusResponseDTO{
		JobID:   view.JobID,
		Status:  string(view.Status),
		URLs:    view.URLs,
		Message: view.Message,
	})
}

func (h *JobsHandler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error().Err(err).Msg("encode response failed")
	}
}

func (h *JobsHandler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
