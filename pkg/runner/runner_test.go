package runner_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harlanreed/phasetracker/pkg/artifact"
	"github.com/harlanreed/phasetracker/pkg/handler"
	"github.com/harlanreed/phasetracker/pkg/lock"
	"github.com/harlanreed/phasetracker/pkg/runner"
	"github.com/harlanreed/phasetracker/pkg/store"
)

type harness struct {
	store  *store.Store
	writer *artifact.Writer
	locks  *lock.Manager
	runner *runner.Runner
}

func newHarness(t *testing.T, registry *handler.Registry) *harness {
	t.Helper()
	ctx := context.Background()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := store.Open(ctx, dbPath, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	w := artifact.New(t.TempDir())
	locks := lock.New(lock.Config{Store: s, TTL: 30 * time.Second})

	r := runner.New(runner.Config{
		Store:    s,
		Writer:   w,
		Locks:    locks,
		Registry: registry,
	})

	return &harness{store: s, writer: w, locks: locks, runner: r}
}

func okHandler(data map[string]any) handler.Handler {
	return func(ctx context.Context, sc handler.StageContext) (handler.StageResult, error) {
		return handler.StageResult{Data: data}, nil
	}
}

func failingHandler(msg string) handler.Handler {
	return func(ctx context.Context, sc handler.StageContext) (handler.StageResult, error) {
		return handler.StageResult{}, errors.New(msg)
	}
}

// happyPathRegistry wires trivial handlers for stages 2, 2a, 3.
func happyPathRegistry() *handler.Registry {
	reg := handler.NewRegistry()
	reg.Register("2", okHandler(map[string]any{"topic": "widgets"}))
	reg.Register("2a", okHandler(map[string]any{"approved": true}), "2")
	reg.Register("3", okHandler(map[string]any{"brief": "..."}), "2a")
	return reg
}

func TestHappyPathRunsThroughAndCompletes(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, happyPathRegistry())

	result, err := h.runner.Run(ctx, runner.RunRequest{
		RunID: "run-happy", Through: "3", Country: "US", Industry: "retail",
	})
	require.NoError(t, err)
	assert.Equal(t, store.RunPending, result.Status, "stage 3 is not the contract's last stage, so the run stays pending")
	assert.Equal(t, []string{"2", "2a", "3"}, result.StagesExecuted)

	run, err := h.store.GetRun(ctx, "run-happy")
	require.NoError(t, err)
	assert.Equal(t, store.RunPending, run.Status)
}

func TestFailFastStopsAtFirstFailureAndPreservesDiagnosis(t *testing.T) {
	ctx := context.Background()
	reg := handler.NewRegistry()
	reg.Register("2", okHandler(map[string]any{"topic": "widgets"}))
	reg.Register("2a", failingHandler("research did not clear review"), "2")
	reg.Register("3", okHandler(map[string]any{"brief": "unreachable"}), "2a")

	h := newHarness(t, reg)

	result, err := h.runner.Run(ctx, runner.RunRequest{
		RunID: "run-fail", Through: "3", Country: "US", Industry: "retail",
	})
	require.NoError(t, err, "a stage failure is a recorded outcome, not a returned error")
	assert.Equal(t, store.RunFailed, result.Status)
	assert.Equal(t, "2a", result.FailedStage)
	assert.Equal(t, []string{"2", "2a"}, result.StagesExecuted, "stage 3 must never run after 2a fails")

	attempts, err := h.store.GetStageAttempts(ctx, "run-fail", "3")
	require.NoError(t, err)
	assert.Empty(t, attempts)

	errArtifact, err := h.writer.Read("run-fail", "2a", 1, "error.json")
	require.NoError(t, err)
	assert.Contains(t, string(errArtifact), "research did not clear review")
}

func TestRecoveryCreatesNewAttemptAndResumesPastFailure(t *testing.T) {
	ctx := context.Background()

	var fail sync.Once
	firstAttemptFailed := false
	reg := handler.NewRegistry()
	reg.Register("2", okHandler(map[string]any{"topic": "widgets"}))
	reg.Register("2a", func(ctx context.Context, sc handler.StageContext) (handler.StageResult, error) {
		result := handler.StageResult{}
		fail.Do(func() {
			firstAttemptFailed = true
			result = handler.StageResult{}
		})
		if firstAttemptFailed {
			firstAttemptFailed = false
			return handler.StageResult{}, errors.New("transient failure")
		}
		return handler.StageResult{Data: map[string]any{"approved": true}}, nil
	}, "2")
	reg.Register("3", okHandler(map[string]any{"brief": "..."}), "2a")

	h := newHarness(t, reg)

	first, err := h.runner.Run(ctx, runner.RunRequest{RunID: "run-recover", Through: "3", Country: "US", Industry: "retail"})
	require.NoError(t, err)
	assert.Equal(t, store.RunFailed, first.Status)
	assert.Equal(t, "2a", first.FailedStage)

	second, err := h.runner.Run(ctx, runner.RunRequest{RunID: "run-recover", Through: "3"})
	require.NoError(t, err)
	assert.Equal(t, store.RunPending, second.Status, "stage 3 is not the contract's last stage, so the run stays pending")
	assert.Equal(t, []string{"2a", "3"}, second.StagesExecuted, "stage 2 already completed must not re-run")

	attempts, err := h.store.GetStageAttempts(ctx, "run-recover", "2a")
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	assert.Equal(t, 1, attempts[0].Attempt)
	assert.Equal(t, store.AttemptFailed, attempts[0].Status)
	assert.Equal(t, 2, attempts[1].Attempt)
	assert.Equal(t, store.AttemptCompleted, attempts[1].Status)
}

func TestParallelRunsAreIndependent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, happyPathRegistry())

	var wg sync.WaitGroup
	results := make([]*runner.RunResult, 2)
	errs := make([]error, 2)
	ids := []string{"run-par-1", "run-par-2"}

	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			results[i], errs[i] = h.runner.Run(ctx, runner.RunRequest{
				RunID: id, Through: "3", Country: "US", Industry: "retail",
			})
		}(i, id)
	}
	wg.Wait()

	for i := range ids {
		require.NoError(t, errs[i])
		assert.Equal(t, store.RunPending, results[i].Status, "stage 3 is not the contract's last stage, so the run stays pending")
	}
}

func TestLockContentionRejectsConcurrentDriveOfSameRun(t *testing.T) {
	ctx := context.Background()

	release := make(chan struct{})
	entered := make(chan struct{})
	reg := handler.NewRegistry()
	reg.Register("2", func(ctx context.Context, sc handler.StageContext) (handler.StageResult, error) {
		close(entered)
		<-release
		return handler.StageResult{Data: map[string]any{"topic": "widgets"}}, nil
	})
	reg.Register("2a", okHandler(map[string]any{"approved": true}), "2")
	reg.Register("3", okHandler(map[string]any{"brief": "..."}), "2a")

	h := newHarness(t, reg)

	go func() {
		_, _ = h.runner.Run(ctx, runner.RunRequest{RunID: "run-lock", Through: "3", Country: "US", Industry: "retail"})
	}()

	<-entered
	_, err := h.runner.Run(ctx, runner.RunRequest{RunID: "run-lock", Through: "3"})
	require.Error(t, err)

	close(release)
}

func TestStrictTemplateGateFailureBlocksCompletion(t *testing.T) {
	ctx := context.Background()
	reg := handler.NewRegistry()
	reg.Register("2", func(ctx context.Context, sc handler.StageContext) (handler.StageResult, error) {
		return handler.StageResult{
			Data: map[string]any{"deck": "rendered"},
			Inspection: runner.TemplateGateInput{
				Tolerance:       1,
				AllowedPalettes: []string{"brand-blue"},
				AllowedFonts:    []string{"Inter"},
				Slides: []runner.SlideInspection{
					{Key: "slide-1", OffsetX: 50, Palette: "brand-blue", Font: "Inter"},
				},
			},
		}, nil
	})

	h := newHarness(t, reg)

	result, err := h.runner.Run(ctx, runner.RunRequest{
		RunID: "run-gate", Through: "2", Country: "US", Industry: "retail", StrictTemplate: true,
	})
	require.NoError(t, err, "a gate failure is a recorded outcome, not a returned error")
	assert.Equal(t, store.RunFailed, result.Status)
	assert.Equal(t, "2", result.FailedStage)

	errArtifact, err := h.writer.Read("run-gate", "2", 1, "error.json")
	require.NoError(t, err)
	assert.Contains(t, string(errArtifact), "TEMPLATE_STRICT_FAILURE")
}
