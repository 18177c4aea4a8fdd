package runner

import "log/slog"

// StageEvent is the pre-scrubbed payload passed to a Hooks callback.
type StageEvent struct {
	RunID      string
	Stage      string
	Attempt    int
	DurationMs int64
	Data       any
	Error      string
}

// Hooks lets a caller observe stage lifecycle events without the
// runner depending on any specific notification mechanism. Hook
// errors are logged and swallowed; they must never fail a stage.
type Hooks struct {
	OnStageStart    func(StageEvent)
	OnStageComplete func(StageEvent)
	OnStageFail     func(StageEvent)
}

func (h *Hooks) fireStart(logger *slog.Logger, ev StageEvent) {
	h.fire(logger, "onStageStart", h.OnStageStart, ev)
}

func (h *Hooks) fireComplete(logger *slog.Logger, ev StageEvent) {
	h.fire(logger, "onStageComplete", h.OnStageComplete, ev)
}

func (h *Hooks) fireFail(logger *slog.Logger, ev StageEvent) {
	h.fire(logger, "onStageFail", h.OnStageFail, ev)
}

func (h *Hooks) fire(logger *slog.Logger, name string, cb func(StageEvent), ev StageEvent) {
	if h == nil || cb == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("hook panicked", "hook", name, "run_id", ev.RunID, "stage", ev.Stage, "panic", r)
		}
	}()
	ev.Data = scrub(ev.Data)
	cb(ev)
}
