// Package client implements the convertd polling protocol: create a job,
// upload the file directly to the object store, trigger the conversion, and
// poll status on a fixed interval until a terminal state or a local ceiling.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

// Defaults for the polling loop.
const (
	DefaultPollInterval = 5 * time.Second
	DefaultPollCeiling  = 5 * time.Minute
)

// Errors returned by the client.
var (
	// ErrPollTimeout means the local polling ceiling elapsed. The job is
	// not cancelled server-side; it may still finish, and a later poll can
	// pick the result up.
	ErrPollTimeout = errors.New("polling ceiling reached, retry later")
	// ErrNotFound means the server does not know the job id.
	ErrNotFound = errors.New("unknown job id")
)

// Client talks to a convertd API server.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	pollInterval time.Duration
	pollCeiling  time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithPollInterval sets the status poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) { c.pollInterval = d }
}

// WithPollCeiling sets the hard local polling ceiling.
func WithPollCeiling(d time.Duration) Option {
	return func(c *Client) { c.pollCeiling = d }
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:      baseURL,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		pollInterval: DefaultPollInterval,
		pollCeiling:  DefaultPollCeiling,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreatedJob is the server's response to job creation.
type CreatedJob struct {
	JobID     string    `json:"job_id"`
	UploadURL string    `json:"presigned_upload_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Status is one status response.
type Status struct {
	JobID   string            `json:"job_id"`
	Status  string            `json:"status"`
	URLs    map[string]string `json:"urls,omitempty"`
	Message string            `json:"message,omitempty"`
}

// Terminal reports whether the status ends polling.
func (s *Status) Terminal() bool {
	return s.Status == "success" || s.Status == "error"
}

type errorResponse struct {
	Error string `json:"error"`
}

// CreateJob registers a new conversion job and returns the upload credential.
func (c *Client) CreateJob(ctx context.Context, filename, contentType string) (*CreatedJob, error) {
	body, err := json.Marshal(map[string]string{
		"filename":     filename,
		"content_type": contentType,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/jobs", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, apiError("create job", resp)
	}

	var created CreatedJob
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, fmt.Errorf("decode create response: %w", err)
	}
	return &created, nil
}

// Upload PUTs the file at path directly to the presigned URL. The
// Content-Type header must match the declared type or the signature check
// rejects the upload.
func (c *Client) Upload(ctx context.Context, uploadURL, path, contentType string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, f)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = info.Size()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("upload rejected with status %d: %s", resp.StatusCode, detail)
	}
	return nil
}

// Begin triggers the conversion for an uploaded job. Idempotent.
func (c *Client) Begin(ctx context.Context, jobID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/jobs/"+jobID+"/begin", nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusAccepted {
		return apiError("begin", resp)
	}
	return nil
}

// GetStatus asks for the job's current state once.
func (c *Client) GetStatus(ctx context.Context, jobID string) (*Status, error) {
	query := url.Values{"job_id": {jobID}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/jobs/status?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apiError("get status", resp)
	}

	var status Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("decode status response: %w", err)
	}
	return &status, nil
}

// Poll polls on a ticker until the job is terminal, ctx is cancelled, or the
// local ceiling elapses (ErrPollTimeout). The first poll happens immediately.
func (c *Client) Poll(ctx context.Context, jobID string) (*Status, error) {
	deadline := time.Now().Add(c.pollCeiling)

	status, err := c.GetStatus(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if status.Terminal() {
		return status, nil
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			if time.Now().After(deadline) {
				return nil, ErrPollTimeout
			}
			status, err := c.GetStatus(ctx, jobID)
			if err != nil {
				return nil, err
			}
			if status.Terminal() {
				return status, nil
			}
		}
	}
}

// Convert is the full protocol in one call: create, upload, begin, poll.
func (c *Client) Convert(ctx context.Context, path, contentType string) (*Status, error) {
	created, err := c.CreateJob(ctx, filepath.Base(path), contentType)
	if err != nil {
		return nil, err
	}
	if err := c.Upload(ctx, created.UploadURL, path, contentType); err != nil {
		return nil, err
	}
	if err := c.Begin(ctx, created.JobID); err != nil {
		return nil, err
	}
	return c.Poll(ctx, created.JobID)
}

func apiError(op string, resp *http.Response) error {
	var apiErr errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
		return fmt.Errorf("%s: server returned %d: %s", op, resp.StatusCode, apiErr.Error)
	}
	return fmt.Errorf("%s: server returned %d", op, resp.StatusCode)
}
