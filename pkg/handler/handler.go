// Package handler defines the pluggable stage-handler contract: the
// sole surface through which domain logic (research, synthesis, deck
// generation, quality checks) enters the orchestrator core. The
// package defines shapes only; it ships no stage bodies.
package handler

import "context"

// StageContext is the immutable view a handler receives: the run's
// scope, the accumulated outputs of every previously completed stage,
// and runtime options. Handlers must be pure with respect to the
// store and file system — they read StageContext and return a
// StageResult; they never write artifacts or touch the database
// themselves, which keeps stages replayable and testable in
// isolation.
type StageContext struct {
	RunID         string
	Stage         string
	Country       string
	Industry      string
	ClientContext string

	// Outputs holds the parsed output.json of every prior completed
	// stage this handler declared it needs, keyed by stage id.
	Outputs map[string]any

	// Binaries holds prior binary artifacts (e.g. deck.pptx) this
	// handler declared it needs, keyed by "<stage>/<filename>".
	Binaries map[string][]byte

	// StrictTemplate enables the post-stage template gate for stages
	// that declare one (see GateResult).
	StrictTemplate bool
}

// GateResult carries a handler's self-reported pass/score/failure
// assessment, or the runner's own post-stage gate verdict.
type GateResult struct {
	Pass     bool
	Score    float64
	Failures []string

	// Skipped marks a review stage that determined no action was
	// needed; the runner still records the attempt as completed.
	Skipped bool
}

// StageResult is what a handler returns on success.
type StageResult struct {
	// Data is serialised to output.json after secret scrubbing.
	Data any

	// GateResults is the handler's own quality assessment, if any.
	GateResults *GateResult

	// Metrics is recorded into meta.json and emitted as a metric event.
	Metrics map[string]float64

	// Binaries holds named binary blobs (e.g. "deck.pptx") written
	// alongside output.json, never serialised as JSON.
	Binaries map[string][]byte

	// Inspection is an optional payload a downstream, runner-owned
	// gate evaluates post-hoc (e.g. the deck-generation stage's
	// layout/palette inspection for the template-strictness gate).
	Inspection any

	// Markdown, if non-empty, is written as output.md alongside
	// output.json.
	Markdown string
}

// Handler performs the domain work of one stage. It must return
// promptly on ctx cancellation where practical, but the orchestrator
// does not forcibly cancel a running handler.
type Handler func(ctx context.Context, sc StageContext) (StageResult, error)

// Registry is the pluggable stageId -> Handler table, wired at
// program start.
type Registry struct {
	handlers map[string]Handler
	needs    map[string][]string
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: map[string]Handler{}, needs: map[string][]string{}}
}

// Register wires stage's handler and the list of prior stage ids
// whose output.json it needs hydrated into StageContext.Outputs.
func (r *Registry) Register(stage string, h Handler, needs ...string) {
	r.handlers[stage] = h
	r.needs[stage] = needs
}

// Handler returns the handler wired for stage, or false if none was
// registered.
func (r *Registry) Handler(stage string) (Handler, bool) {
	h, ok := r.handlers[stage]
	return h, ok
}

// Needs returns the prior stage ids whose output stage's handler
// declared it consumes.
func (r *Registry) Needs(stage string) []string {
	return r.needs[stage]
}
