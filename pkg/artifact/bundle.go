package artifact

import (
	"encoding/json"
	"sort"
	"time"

	phaseerrors "github.com/harlanreed/phasetracker/internal/errors"
	"github.com/harlanreed/phasetracker/pkg/store"
)

// Bundle is the subset of standard artifacts a single stage attempt
// may produce in one call to WriteStageArtifacts.
type Bundle struct {
	RunID   string
	Stage   string
	Attempt int

	// Output, if non-nil, is marshalled to output.json.
	Output any

	// Markdown, if non-empty, is written to output.md.
	Markdown string

	// Meta, if non-nil, is marshalled to meta.json.
	Meta any

	// Events, if non-empty, is written as newline-delimited JSON to
	// events.ndjson, replacing any earlier file of that name.
	Events []any

	// Binaries holds arbitrary named binary blobs, written verbatim.
	Binaries map[string][]byte
}

// WriteStageArtifacts writes every populated field of b through the
// same atomic write protocol. It does not touch the store; the caller
// records the returned artifacts. It returns the artifacts written, in
// a deterministic order (output.json,
// output.md, meta.json, events.ndjson, then binaries sorted by name).
func (w *Writer) WriteStageArtifacts(b Bundle) ([]*store.Artifact, error) {
	var out []*store.Artifact

	if b.Output != nil {
		data, err := json.MarshalIndent(b.Output, "", "  ")
		if err != nil {
			return nil, &phaseerrors.FileSystemError{Op: "marshal output.json", Path: "output.json", Cause: err}
		}
		a, err := w.Write(b.RunID, b.Stage, b.Attempt, "output.json", data)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}

	if b.Markdown != "" {
		a, err := w.Write(b.RunID, b.Stage, b.Attempt, "output.md", []byte(b.Markdown))
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}

	if b.Meta != nil {
		data, err := json.MarshalIndent(b.Meta, "", "  ")
		if err != nil {
			return nil, &phaseerrors.FileSystemError{Op: "marshal meta.json", Path: "meta.json", Cause: err}
		}
		a, err := w.Write(b.RunID, b.Stage, b.Attempt, "meta.json", data)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}

	if len(b.Events) > 0 {
		var buf []byte
		for _, e := range b.Events {
			line, err := json.Marshal(e)
			if err != nil {
				return nil, &phaseerrors.FileSystemError{Op: "marshal events.ndjson", Path: "events.ndjson", Cause: err}
			}
			buf = append(buf, line...)
			buf = append(buf, '\n')
		}
		a, err := w.Write(b.RunID, b.Stage, b.Attempt, "events.ndjson", buf)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}

	names := make([]string, 0, len(b.Binaries))
	for name := range b.Binaries {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		a, err := w.Write(b.RunID, b.Stage, b.Attempt, name, b.Binaries[name])
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}

	return out, nil
}

// errorPayload is the error.json shape: name/message/stack when
// available (propagated from a typed handler error), code and
// blockingKeys for gate failures, or just message for anything else.
type errorPayload struct {
	Name         string   `json:"name,omitempty"`
	Message      string   `json:"message"`
	Stack        string   `json:"stack,omitempty"`
	Code         string   `json:"code,omitempty"`
	BlockingKeys []string `json:"blockingSlideKeys,omitempty"`
	Details      any      `json:"details,omitempty"`
	OccurredAt   string   `json:"occurredAt"`
}

// WriteStructuredError writes error.json with the full error
// taxonomy's detail: name, message, an optional code, and for gate
// failures the blocking slide keys and per-violation details.
func (w *Writer) WriteStructuredError(runID, stage string, attempt int, name, message, code string, blockingKeys []string, details any) (*store.Artifact, error) {
	payload := errorPayload{
		Name:         name,
		Message:      message,
		Code:         code,
		BlockingKeys: blockingKeys,
		Details:      details,
		OccurredAt:   time.Now().UTC().Format(time.RFC3339Nano),
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, &phaseerrors.FileSystemError{Op: "marshal error.json", Path: "error.json", Cause: err}
	}
	return w.Write(runID, stage, attempt, "error.json", data)
}
