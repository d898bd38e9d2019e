// Package worker runs conversions: it consumes trigger messages, moves
// blobs in and out of the object store, and reports outcomes to the
// lifecycle manager.
package worker

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/docmill/convertd/internal/blob"
	"github.com/docmill/convertd/internal/convert"
	"github.com/docmill/convertd/internal/storage"
)

// Adapter invokes the external conversion routine for one job: it downloads
// the input blob, runs the converter, and uploads each produced artifact to
// a fresh object key. It never retries and never touches job state; the
// caller decides what an error means.
type Adapter struct {
	blobs     blob.Store
	converter convert.Converter
	tempDir   string
	logger    zerolog.Logger
}

// NewAdapter creates a conversion adapter.
func NewAdapter(blobs blob.Store, converter convert.Converter, tempDir string, logger zerolog.Logger) *Adapter {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &Adapter{
		blobs:     blobs,
		converter: converter,
		tempDir:   tempDir,
		logger:    logger,
	}
}

// Run converts the input at inputKey for jobID and returns one blob location
// per produced output kind. Converter failures come back as
// *convert.ConversionError; anything else is an infrastructure error.
func (a *Adapter) Run(ctx context.Context, jobID, inputKey, contentType string) (storage.Locations, error) {
	workDir, err := os.MkdirTemp(a.tempDir, "convertd-"+jobID+"-*")
	if err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	inputPath := filepath.Join(workDir, path.Base(inputKey))
	if err := a.blobs.Download(ctx, inputKey, inputPath); err != nil {
		return nil, fmt.Errorf("download input: %w", err)
	}

	artifacts, err := a.converter.Convert(ctx, inputPath, contentType)
	if err != nil {
		return nil, err
	}

	outputs := make(storage.Locations, len(artifacts))
	for kind, localPath := range artifacts {
		key := blob.OutputKey(jobID, inputKey, convert.ExtForKind(kind))
		if err := a.blobs.Upload(ctx, key, localPath, convert.ContentTypeForKind(kind)); err != nil {
			return nil, fmt.Errorf("upload %s artifact: %w", kind, err)
		}
		outputs[kind] = a.blobs.Location(key)
		a.logger.Debug().
			Str("job_id", jobID).
			Str("kind", kind).
			Str("key", key).
			Msg("uploaded artifact")
	}
	return outputs, nil
}
