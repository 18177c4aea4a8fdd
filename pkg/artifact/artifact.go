// Package artifact implements the durable artifact layer: a
// write-to-sibling-then-rename protocol for stage output files, path
// derivation under a run's artifact tree, and content-type inference.
package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	phaseerrors "github.com/harlanreed/phasetracker/internal/errors"
	"github.com/harlanreed/phasetracker/pkg/store"
)

// Writer durably persists stage output files under a base directory,
// one subtree per run/stage/attempt.
type Writer struct {
	base string
}

// New returns a Writer rooted at base. base is created on first write
// if it does not already exist.
func New(base string) *Writer {
	return &Writer{base: base}
}

// AttemptDir returns the directory an attempt's artifacts live under:
// <base>/<runId>/stages/<stage>/attempt-<n>.
func (w *Writer) AttemptDir(runID, stage string, attempt int) string {
	return filepath.Join(w.base, runID, "stages", stage, fmt.Sprintf("attempt-%d", attempt))
}

// Write durably writes data to filename inside the attempt's
// directory using a write-to-sibling-then-rename protocol: the
// content is written to a temp file in the same directory, fsynced,
// then renamed into place, so a crash mid-write never leaves a
// truncated artifact visible under its final name.
func (w *Writer) Write(runID, stage string, attempt int, filename string, data []byte) (*store.Artifact, error) {
	dir := w.AttemptDir(runID, stage, attempt)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &phaseerrors.FileSystemError{Op: "mkdir", Path: dir, Cause: err}
	}

	finalPath := filepath.Join(dir, filename)
	tmp, err := os.CreateTemp(dir, "."+filename+".tmp-*")
	if err != nil {
		return nil, &phaseerrors.FileSystemError{Op: "createTemp", Path: finalPath, Cause: err}
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return nil, &phaseerrors.FileSystemError{Op: "write", Path: tmpPath, Cause: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return nil, &phaseerrors.FileSystemError{Op: "sync", Path: tmpPath, Cause: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, &phaseerrors.FileSystemError{Op: "close", Path: tmpPath, Cause: err}
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return nil, &phaseerrors.FileSystemError{Op: "rename", Path: finalPath, Cause: err}
	}

	return &store.Artifact{
		RunID:       runID,
		Stage:       stage,
		Attempt:     attempt,
		Filename:    filename,
		Path:        finalPath,
		SizeBytes:   int64(len(data)),
		ContentType: ContentType(filename),
	}, nil
}

// Read reads a previously written artifact's contents back from disk.
func (w *Writer) Read(runID, stage string, attempt int, filename string) ([]byte, error) {
	path := filepath.Join(w.AttemptDir(runID, stage, attempt), filename)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &phaseerrors.FileSystemError{Op: "read", Path: path, Cause: err}
	}
	return data, nil
}

// ContentType infers a MIME type from filename's extension. Unknown
// extensions fall back to application/octet-stream.
func ContentType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".json":
		return "application/json"
	case ".md":
		return "text/markdown"
	case ".ndjson":
		return "application/x-ndjson"
	case ".pptx":
		return "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	case ".txt":
		return "text/plain"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}
