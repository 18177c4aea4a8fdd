// Package runner implements the stage orchestration loop: the only
// component that mutates the metadata store for a given run while
// holding its lock. It loads prior context, invokes handlers, writes
// artifacts atomically, updates the store transactionally, and
// advances — stopping fast on the first failure.
package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	phaseerrors "github.com/harlanreed/phasetracker/internal/errors"
	"github.com/harlanreed/phasetracker/internal/log"
	"github.com/harlanreed/phasetracker/internal/metrics"
	"github.com/harlanreed/phasetracker/internal/tracing"
	"github.com/harlanreed/phasetracker/pkg/artifact"
	"github.com/harlanreed/phasetracker/pkg/handler"
	"github.com/harlanreed/phasetracker/pkg/lock"
	"github.com/harlanreed/phasetracker/pkg/stage"
	"github.com/harlanreed/phasetracker/pkg/store"
)

// Runner orchestrates the stages of a single run. One Runner may
// drive many runs, sequentially or concurrently, since per-run
// exclusivity is enforced by the lock manager, not by the Runner
// value itself.
type Runner struct {
	store    *store.Store
	writer   *artifact.Writer
	locks    *lock.Manager
	registry *handler.Registry
	logger   *slog.Logger
	metrics  *metrics.Collector
	tracer   *tracing.Provider
	hooks    *Hooks
}

// Config wires a Runner's collaborators.
type Config struct {
	Store    *store.Store
	Writer   *artifact.Writer
	Locks    *lock.Manager
	Registry *handler.Registry
	Logger   *slog.Logger
	Metrics  *metrics.Collector
	Tracer   *tracing.Provider
	Hooks    *Hooks
}

// New constructs a Runner. A nil Tracer defaults to a no-op provider,
// so callers that don't care about tracing don't need to wire one up.
func New(cfg Config) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer, _ = tracing.NewStdout(false)
	}
	return &Runner{
		store:    cfg.Store,
		writer:   cfg.Writer,
		locks:    cfg.Locks,
		registry: cfg.Registry,
		logger:   log.WithComponent(logger, "runner"),
		metrics:  cfg.Metrics,
		tracer:   tracer,
		hooks:    cfg.Hooks,
	}
}

// RunRequest is the input to Run: either a brand-new run (Country and
// Industry set) or a resume of an existing one (RunID referencing a
// prior row).
type RunRequest struct {
	RunID          string
	Through        string
	Country        string
	Industry       string
	ClientContext  string
	StrictTemplate bool
}

// RunResult summarizes what Run actually did.
type RunResult struct {
	RunID          string
	Status         store.RunStatus
	StagesExecuted []string
	FailedStage    string
	Error          string
}

// Run validates the request, acquires the run's lock, computes the
// stage range to execute, and drives each stage in order, stopping on
// the first failure. It always releases the lock on the way out,
// success or failure.
//
// A stage failure is a recorded outcome, not a raised error: Run
// returns a nil error and a result with Status == store.RunFailed and
// FailedStage set. The returned error is reserved for failures before
// or outside stage execution — validation, lock contention, or store
// errors — that a caller (e.g. the CLI's exit code) must still react
// to differently than a completed-with-failure result.
func (r *Runner) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	if !stage.IsValid(req.Through) {
		return nil, &phaseerrors.ValidationError{Field: "through", Message: fmt.Sprintf("unknown stage %q", req.Through)}
	}

	run, err := r.loadOrCreateRun(ctx, req)
	if err != nil {
		return nil, err
	}

	ctx, runSpan := r.tracer.StartRun(ctx, run.ID, req.Through)

	held, err := r.locks.Acquire(ctx, run.ID)
	if err != nil {
		if r.metrics != nil {
			r.metrics.RecordLockContention()
		}
		tracing.EndError(runSpan, err)
		return nil, err
	}
	runLogger := log.WithRun(r.logger, run.ID)
	defer func() {
		if relErr := held.Release(context.Background()); relErr != nil {
			runLogger.Warn("failed to release run lock", "error", relErr)
		}
	}()

	result, err := r.drive(ctx, run, req)
	if err != nil {
		tracing.EndError(runSpan, err)
		return result, err
	}
	tracing.EndOK(runSpan)
	return result, nil
}

func (r *Runner) loadOrCreateRun(ctx context.Context, req RunRequest) (*store.Run, error) {
	if req.RunID == "" {
		return nil, &phaseerrors.ValidationError{Field: "runId", Message: "required"}
	}

	existing, err := r.store.GetRun(ctx, req.RunID)
	if err == nil {
		if req.Through != "" && req.Through != existing.TargetStage {
			// The original implementation updates target_stage on
			// resume to the new through value; behaviour preserved.
			if uerr := r.store.UpdateTargetStage(ctx, existing.ID, req.Through); uerr != nil {
				return nil, uerr
			}
			existing.TargetStage = req.Through
		}
		return existing, nil
	}
	if _, ok := err.(*phaseerrors.NotFoundError); !ok {
		return nil, err
	}

	if req.Country == "" || req.Industry == "" {
		return nil, &phaseerrors.ValidationError{Field: "country/industry", Message: "required for a new run"}
	}

	now := time.Now().UTC()
	run := &store.Run{
		ID:            req.RunID,
		Country:       req.Country,
		Industry:      req.Industry,
		ClientContext: req.ClientContext,
		TargetStage:   req.Through,
		Status:        store.RunPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := r.store.CreateRun(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

// drive computes and executes the stage range, per §4.6 of the stage
// contract: completed = stages with any completed attempt; next =
// first stage not in completed; nothing to do if next is past through.
func (r *Runner) drive(ctx context.Context, run *store.Run, req RunRequest) (*RunResult, error) {
	completed, err := r.completedStages(ctx, run.ID)
	if err != nil {
		return nil, err
	}

	next := firstIncomplete(completed)
	result := &RunResult{RunID: run.ID, Status: run.Status}

	if next == "" {
		return r.finishIfComplete(ctx, run, result)
	}
	if stage.Index(next) > stage.Index(req.Through) {
		return result, nil
	}

	toRun := stage.SliceFrom(next, req.Through)
	if err := r.store.UpdateRunStatus(ctx, run.ID, store.RunRunning, ""); err != nil {
		return nil, err
	}
	result.Status = store.RunRunning

	runLogger := log.WithRun(r.logger, run.ID)
	for _, s := range toRun {
		if err := r.locks.CleanExpired(ctx); err != nil {
			runLogger.Warn("clean expired locks failed", "error", err)
		}

		att, execErr := r.executeStage(ctx, run, req, s)
		result.StagesExecuted = append(result.StagesExecuted, s)

		if execErr != nil && att == nil {
			// No attempt outcome was recorded (store or recording-phase
			// failure), so this is raised rather than recorded.
			return result, execErr
		}
		if execErr != nil {
			result.FailedStage = s
			result.Error = execErr.Error()
			if err := r.store.UpdateRunStatus(ctx, run.ID, store.RunFailed, execErr.Error()); err != nil {
				return result, err
			}
			result.Status = store.RunFailed
			if r.metrics != nil {
				r.metrics.RecordRunFailed()
			}
			return result, nil
		}
	}

	return r.finishIfComplete(ctx, run, result)
}

// finishIfComplete marks the run completed once every stage in the
// contract has a completed attempt. Otherwise it reverts the run to
// pending: a run that made it through --through without error but
// hasn't finished the full 13-stage contract yet is not "running"
// between invocations, it's waiting on the next one.
func (r *Runner) finishIfComplete(ctx context.Context, run *store.Run, result *RunResult) (*RunResult, error) {
	completed, err := r.completedStages(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	if allStagesCompleted(completed) {
		if err := r.store.UpdateRunStatus(ctx, run.ID, store.RunCompleted, ""); err != nil {
			return nil, err
		}
		result.Status = store.RunCompleted
		if r.metrics != nil {
			r.metrics.RecordRunCompleted()
		}
		return result, nil
	}

	if err := r.store.UpdateRunStatus(ctx, run.ID, store.RunPending, ""); err != nil {
		return nil, err
	}
	result.Status = store.RunPending
	return result, nil
}

func (r *Runner) completedStages(ctx context.Context, runID string) (map[string]bool, error) {
	completed := map[string]bool{}
	for _, s := range stage.Order {
		latest, err := r.store.GetLatestAttempt(ctx, runID, s)
		if err != nil {
			if _, ok := err.(*phaseerrors.NotFoundError); ok {
				continue
			}
			return nil, err
		}
		if latest.Status == store.AttemptCompleted {
			completed[s] = true
		}
	}
	return completed, nil
}

func firstIncomplete(completed map[string]bool) string {
	for _, s := range stage.Order {
		if !completed[s] {
			return s
		}
	}
	return ""
}

func allStagesCompleted(completed map[string]bool) bool {
	for _, s := range stage.Order {
		if !completed[s] {
			return false
		}
	}
	return true
}

// executeStage runs exactly one stage attempt end to end: start, load
// context, invoke the handler, write outputs, finish or fail.
func (r *Runner) executeStage(ctx context.Context, run *store.Run, req RunRequest, stageID string) (*store.StageAttempt, error) {
	attempt, err := r.store.StartStageAttempt(ctx, run.ID, stageID)
	if err != nil {
		return nil, err
	}

	ctx, span := r.tracer.StartStageAttempt(ctx, stageID, attempt.Attempt)
	defer span.End()

	stageLogger := log.WithStage(r.logger, run.ID, stageID, attempt.Attempt)

	ev := StageEvent{RunID: run.ID, Stage: stageID, Attempt: attempt.Attempt}
	r.hooks.fireStart(stageLogger, ev)

	sc, err := r.buildContext(ctx, run, req, stageID)
	if err != nil {
		return r.failAttemptWithDetail(ctx, stageLogger, run, attempt, err)
	}

	h, ok := r.registry.Handler(stageID)
	if !ok {
		return r.failAttemptWithDetail(ctx, stageLogger, run, attempt, &phaseerrors.HandlerError{Stage: stageID, Message: "no handler registered"})
	}

	res, err := h(ctx, sc)
	if err != nil {
		return r.failAttemptWithDetail(ctx, stageLogger, run, attempt, &phaseerrors.HandlerError{Stage: stageID, Message: err.Error(), Cause: err})
	}

	if verdictErr := r.evaluateGate(req, stageID, res); verdictErr != nil {
		return r.failAttemptWithDetail(ctx, stageLogger, run, attempt, verdictErr)
	}

	return r.completeAttempt(ctx, stageLogger, run, attempt, res)
}

func (r *Runner) evaluateGate(req RunRequest, stageID string, res handler.StageResult) error {
	if !req.StrictTemplate || res.Inspection == nil {
		return nil
	}
	input, ok := res.Inspection.(TemplateGateInput)
	if !ok {
		return nil
	}
	verdict, err := EvaluateTemplateGate(input)
	if err != nil {
		return &phaseerrors.HandlerError{Stage: stageID, Message: err.Error(), Cause: err}
	}
	if !verdict.Pass {
		return &phaseerrors.GateFailureError{
			Stage:        stageID,
			Code:         TemplateGateCode,
			BlockingKeys: verdict.BlockingKeys,
			Message:      "template strictness gate rejected the rendered deck",
		}
	}
	return nil
}

func (r *Runner) buildContext(ctx context.Context, run *store.Run, req RunRequest, stageID string) (handler.StageContext, error) {
	sc := handler.StageContext{
		RunID:          run.ID,
		Stage:          stageID,
		Country:        run.Country,
		Industry:       run.Industry,
		ClientContext:  run.ClientContext,
		StrictTemplate: req.StrictTemplate,
		Outputs:        map[string]any{},
		Binaries:       map[string][]byte{},
	}

	for _, needed := range r.registry.Needs(stageID) {
		latest, err := r.store.GetLatestAttempt(ctx, run.ID, needed)
		if err != nil {
			if _, ok := err.(*phaseerrors.NotFoundError); ok {
				continue
			}
			return sc, err
		}
		if latest.Status != store.AttemptCompleted {
			continue
		}

		data, err := r.writer.Read(run.ID, needed, latest.Attempt, "output.json")
		if err != nil {
			return sc, &phaseerrors.SchemaError{Stage: needed, Message: "missing output.json", Cause: err}
		}
		var parsed any
		if err := json.Unmarshal(data, &parsed); err != nil {
			return sc, &phaseerrors.SchemaError{Stage: needed, Message: "output.json is not valid JSON", Cause: err}
		}
		sc.Outputs[needed] = parsed

		if bin, err := r.writer.Read(run.ID, needed, latest.Attempt, "deck.pptx"); err == nil {
			sc.Binaries[needed+"/deck.pptx"] = bin
		}
	}

	return sc, nil
}

func (r *Runner) completeAttempt(ctx context.Context, logger *slog.Logger, run *store.Run, attempt *store.StageAttempt, res handler.StageResult) (*store.StageAttempt, error) {
	scrubbedData := scrub(res.Data)

	meta := map[string]any{
		"stage":       attempt.Stage,
		"completedAt": time.Now().UTC().Format(time.RFC3339Nano),
	}
	if res.GateResults != nil {
		meta["gateResults"] = res.GateResults
		if res.GateResults.Skipped {
			meta["skipped"] = true
		}
	}
	if res.Metrics != nil {
		meta["metrics"] = res.Metrics
	}

	bundle := artifact.Bundle{
		RunID:    run.ID,
		Stage:    attempt.Stage,
		Attempt:  attempt.Attempt,
		Output:   scrubbedData,
		Markdown: res.Markdown,
		Meta:     meta,
		Binaries: res.Binaries,
	}
	artifacts, err := r.writer.WriteStageArtifacts(bundle)
	if err != nil {
		// Recording-phase I/O failure on an otherwise successful stage
		// re-raises, since the stage cannot be safely marked completed.
		return nil, &phaseerrors.StoreError{Op: "write stage artifacts", Cause: err}
	}
	for _, a := range artifacts {
		if recErr := r.store.RecordArtifact(ctx, a); recErr != nil {
			return nil, recErr
		}
	}

	// A review stage's handler may report gateResults.skipped=true to
	// mean "no action was needed"; the runner still marks the attempt
	// completed and lets the skipped signal live in meta.json/events.
	if err := r.store.FinishStageAttempt(ctx, attempt.ID, store.AttemptCompleted); err != nil {
		return nil, err
	}

	finished, err := r.store.GetLatestAttempt(ctx, run.ID, attempt.Stage)
	if err != nil {
		return nil, err
	}

	duration := time.Duration(0)
	if finished.DurationMs != nil {
		duration = time.Duration(*finished.DurationMs) * time.Millisecond
	}
	if r.metrics != nil {
		r.metrics.RecordStageOutcome(attempt.Stage, "completed", duration)
	}

	eventPayload := map[string]any{"durationMs": finished.DurationMs, "gateResults": res.GateResults}
	if res.GateResults != nil && res.GateResults.Skipped {
		eventPayload["skipped"] = true
	}
	eventData, _ := json.Marshal(eventPayload)
	if err := r.store.AppendEvent(ctx, &store.Event{
		RunID:   run.ID,
		Stage:   attempt.Stage,
		Attempt: attempt.Attempt,
		Type:    store.EventInfo,
		Message: "stage completed",
		Data:    string(eventData),
	}); err != nil {
		logger.Warn("failed to append completion event", "error", err)
	}

	if len(res.Metrics) > 0 {
		metricData, _ := json.Marshal(res.Metrics)
		if err := r.store.AppendEvent(ctx, &store.Event{
			RunID:   run.ID,
			Stage:   attempt.Stage,
			Attempt: attempt.Attempt,
			Type:    store.EventMetric,
			Message: "stage metrics",
			Data:    string(metricData),
		}); err != nil {
			logger.Warn("failed to append metric event", "error", err)
		}
	}

	r.hooks.fireComplete(logger, StageEvent{
		RunID: run.ID, Stage: attempt.Stage, Attempt: attempt.Attempt,
		DurationMs: derefInt64(finished.DurationMs), Data: scrubbedData,
	})

	return finished, nil
}

func (r *Runner) failAttemptWithDetail(ctx context.Context, logger *slog.Logger, run *store.Run, attempt *store.StageAttempt, cause error) (*store.StageAttempt, error) {
	name, message, code, blockingKeys := classifyFailure(cause)

	if _, werr := r.writer.WriteStructuredError(run.ID, attempt.Stage, attempt.Attempt, name, message, code, blockingKeys, nil); werr != nil {
		logger.Warn("failed to write error.json", "error", werr)
	}
	if err := r.store.FailStageAttempt(ctx, attempt.ID, message); err != nil {
		return nil, err
	}

	finished, err := r.store.GetLatestAttempt(ctx, run.ID, attempt.Stage)
	if err != nil {
		return nil, err
	}

	duration := time.Duration(0)
	if finished.DurationMs != nil {
		duration = time.Duration(*finished.DurationMs) * time.Millisecond
	}
	if r.metrics != nil {
		r.metrics.RecordStageOutcome(attempt.Stage, "failed", duration)
	}

	eventData, _ := json.Marshal(map[string]any{"message": message, "code": code})
	if err := r.store.AppendEvent(ctx, &store.Event{
		RunID:   run.ID,
		Stage:   attempt.Stage,
		Attempt: attempt.Attempt,
		Type:    store.EventError,
		Message: message,
		Data:    string(eventData),
	}); err != nil {
		logger.Warn("failed to append error event", "error", err)
	}

	r.hooks.fireFail(logger, StageEvent{
		RunID: run.ID, Stage: attempt.Stage, Attempt: attempt.Attempt, Error: message,
	})

	return finished, cause
}

func classifyFailure(err error) (name, message, code string, blockingKeys []string) {
	switch e := err.(type) {
	case *phaseerrors.GateFailureError:
		return "PostStageGateFailure", e.Message, e.Code, e.BlockingKeys
	case *phaseerrors.HandlerError:
		return "HandlerError", e.Message, "", nil
	case *phaseerrors.SchemaError:
		return "SchemaError", e.Message, "", nil
	default:
		return "", err.Error(), "", nil
	}
}

func derefInt64(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}
