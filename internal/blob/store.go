// Package blob provides the object store contract used by convertd: issuing
// time-limited, object-scoped credentials and moving worker artifacts. No
// client file bytes ever pass through this process; uploads and downloads by
// end users go directly to the object store with a presigned URL.
package blob

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"
)

// Errors returned by the blob store client.
var (
	// ErrUnavailable wraps transport failures talking to the object store.
	// Not retried here; callers decide.
	ErrUnavailable = errors.New("blob store unavailable")
	// ErrObjectNotFound indicates a read credential was requested for a key
	// that does not exist.
	ErrObjectNotFound = errors.New("object not found")
)

// Credential is a time-limited capability to read or write one object.
type Credential struct {
	URL       string
	ExpiresAt time.Time
}

// Store is the contract over the object store.
type Store interface {
	// IssueWriteCredential produces a credential allowing exactly one object
	// at key to be written before the expiry. The object need not exist.
	IssueWriteCredential(ctx context.Context, key, contentType string) (*Credential, error)

	// IssueReadCredential produces a credential to read an existing object.
	// Returns ErrObjectNotFound when the key does not exist.
	IssueReadCredential(ctx context.Context, key string) (*Credential, error)

	// Download copies the object at key to localPath. Worker-side only.
	Download(ctx context.Context, key, localPath string) error

	// Upload stores the file at localPath under key. Worker-side only.
	Upload(ctx context.Context, key, localPath, contentType string) error

	// Location renders a stable location string for the given key,
	// e.g. s3://bucket/key. Stored in job records.
	Location(key string) string
}

// InputKey derives the deterministic upload key for a job.
func InputKey(jobID, filename string) string {
	return path.Join("input", jobID, path.Base(filename))
}

// OutputKey derives the object key for one conversion artifact. ext carries
// the leading dot.
func OutputKey(jobID, inputFilename, ext string) string {
	base := strings.TrimSuffix(path.Base(inputFilename), path.Ext(inputFilename))
	return path.Join("output", jobID, base+ext)
}

// ParseLocation splits an s3://bucket/key location string.
func ParseLocation(location string) (bucket, key string, err error) {
	trimmed, ok := strings.CutPrefix(location, "s3://")
	if !ok {
		return "", "", fmt.Errorf("invalid blob location %q", location)
	}
	bucket, key, ok = strings.Cut(trimmed, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("invalid blob location %q", location)
	}
	return bucket, key, nil
}
