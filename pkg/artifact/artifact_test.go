package artifact_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harlanreed/phasetracker/pkg/artifact"
)

func TestWriteRoundTripsContent(t *testing.T) {
	w := artifact.New(t.TempDir())

	a, err := w.Write("run-1", "2", 1, "output.json", []byte(`{"ok":true}`))
	require.NoError(t, err)
	assert.Equal(t, int64(len(`{"ok":true}`)), a.SizeBytes)
	assert.Equal(t, "application/json", a.ContentType)

	got, err := w.Read("run-1", "2", 1, "output.json")
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(got))
}

func TestWriteLeavesNoStrayTempFiles(t *testing.T) {
	base := t.TempDir()
	w := artifact.New(base)

	_, err := w.Write("run-2", "3", 1, "output.md", []byte("# hi"))
	require.NoError(t, err)

	dir := w.AttemptDir("run-2", "3", 1)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "output.md", entries[0].Name())
}

func TestAttemptDirLayout(t *testing.T) {
	w := artifact.New("/srv/phasetracker")
	got := w.AttemptDir("run-3", "6a", 2)
	assert.Equal(t, filepath.Join("/srv/phasetracker", "run-3", "stages", "6a", "attempt-2"), got)
}

func TestContentTypeInference(t *testing.T) {
	cases := map[string]string{
		"output.json":  "application/json",
		"output.md":    "text/markdown",
		"events.ndjson": "application/x-ndjson",
		"deck.pptx":    "application/vnd.openxmlformats-officedocument.presentationml.presentation",
		"notes.txt":    "text/plain",
		"slide.png":    "image/png",
		"slide.jpg":    "image/jpeg",
		"slide.jpeg":   "image/jpeg",
		"blob.bin":     "application/octet-stream",
	}
	for filename, want := range cases {
		assert.Equal(t, want, artifact.ContentType(filename), filename)
	}
}

func TestWriteStageArtifactsOrderAndContent(t *testing.T) {
	w := artifact.New(t.TempDir())

	written, err := w.WriteStageArtifacts(artifact.Bundle{
		RunID:   "run-4",
		Stage:   "4",
		Attempt: 1,
		Output:  map[string]any{"a": 1},
		Markdown: "# report",
		Meta:    map[string]any{"b": 2},
		Events:  []any{map[string]any{"type": "info"}},
		Binaries: map[string][]byte{
			"z.bin": []byte("zz"),
			"a.bin": []byte("aa"),
		},
	})
	require.NoError(t, err)
	require.Len(t, written, 6)

	names := make([]string, len(written))
	for i, a := range written {
		names[i] = a.Filename
	}
	assert.Equal(t, []string{"output.json", "output.md", "meta.json", "events.ndjson", "a.bin", "z.bin"}, names)
}

func TestWriteStructuredErrorPayload(t *testing.T) {
	w := artifact.New(t.TempDir())

	a, err := w.WriteStructuredError("run-5", "9", 1, "GateFailureError", "template violations", "TEMPLATE_STRICT_FAILURE", []string{"slide-1"}, map[string]string{"rule": "font_match"})
	require.NoError(t, err)

	raw, err := w.Read("run-5", "9", 1, "error.json")
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(raw, &payload))
	assert.Equal(t, "template violations", payload["message"])
	assert.Equal(t, "TEMPLATE_STRICT_FAILURE", payload["code"])
	assert.Contains(t, strings.Join(toStrings(payload["blockingSlideKeys"]), ","), "slide-1")
	assert.Equal(t, "error.json", a.Filename)
}

func toStrings(v any) []string {
	raw, _ := v.([]any)
	out := make([]string, len(raw))
	for i, r := range raw {
		out[i], _ = r.(string)
	}
	return out
}
