// Package storage provides the durable job record store for convertd.
package storage

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// JobStatus represents the conversion job state machine.
type JobStatus string

const (
	// StatusStarted is the initial state: the record exists and a write
	// credential has been issued, but the upload may not have arrived yet.
	StatusStarted JobStatus = "started"
	// StatusProcessing means a worker holds the job.
	StatusProcessing JobStatus = "processing"
	// StatusSuccess is terminal; output locations are populated.
	StatusSuccess JobStatus = "success"
	// StatusError is terminal; the message is populated.
	StatusError JobStatus = "error"
)

// Valid reports whether s is a known status value.
func (s JobStatus) Valid() bool {
	switch s {
	case StatusStarted, StatusProcessing, StatusSuccess, StatusError:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are permitted from s.
func (s JobStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusError
}

// rank orders statuses for the monotonic-progression invariant.
// Terminal states share the highest rank.
func (s JobStatus) rank() int {
	switch s {
	case StatusStarted:
		return 0
	case StatusProcessing:
		return 1
	case StatusSuccess, StatusError:
		return 2
	}
	return -1
}

// CanTransitionTo reports whether s -> next is a legal forward transition.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	if s.Terminal() || !next.Valid() {
		return false
	}
	return next.rank() > s.rank()
}

// Scan implements sql.Scanner.
func (s *JobStatus) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		*s = JobStatus(v)
	case []byte:
		*s = JobStatus(v)
	default:
		return fmt.Errorf("unsupported job status source: %T", src)
	}
	return nil
}

// Value implements driver.Valuer.
func (s JobStatus) Value() (driver.Value, error) {
	return string(s), nil
}

// Locations maps an output kind (text, html, searchable_pdf) to a blob
// location. Stored as a JSON column.
type Locations map[string]string

// Value implements driver.Valuer.
func (l Locations) Value() (driver.Value, error) {
	if l == nil {
		return "{}", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (l *Locations) Scan(src interface{}) error {
	var b []byte
	switch v := src.(type) {
	case string:
		b = []byte(v)
	case []byte:
		b = v
	case nil:
		*l = Locations{}
		return nil
	default:
		return fmt.Errorf("unsupported locations source: %T", src)
	}
	if len(b) == 0 {
		*l = Locations{}
		return nil
	}
	return json.Unmarshal(b, l)
}

// Job is the central record of one conversion request.
type Job struct {
	JobID           string    `json:"job_id"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	Status          JobStatus `json:"status"`
	ContentType     string    `json:"content_type"`
	InputLocation   string    `json:"input_location"`
	OutputLocations Locations `json:"output_locations,omitempty"`
	Message         string    `json:"message,omitempty"`
}

// StatusUpdate carries the fields a conditional transition may set.
// OutputLocations must be non-empty exactly when Status is success, and
// Message non-empty exactly when Status is error.
type StatusUpdate struct {
	Status          JobStatus
	OutputLocations Locations
	Message         string
}
