// Package metrics collects Prometheus-compatible counters and
// histograms for stage execution. There is no HTTP exporter wired in,
// and no CLI command prints the values; Gather returns a snapshot.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds the process's stage-execution metrics.
type Collector struct {
	registry *prometheus.Registry

	stageAttemptsTotal   *prometheus.CounterVec
	stageDurationSeconds *prometheus.HistogramVec
	lockContentionsTotal prometheus.Counter
	runsCompletedTotal   prometheus.Counter
	runsFailedTotal      prometheus.Counter
}

// New constructs a Collector registered against a fresh registry.
func New() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		registry: reg,
		stageAttemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "phasetracker_stage_attempts_total",
			Help: "Total stage attempts, by stage and outcome.",
		}, []string{"stage", "outcome"}),
		stageDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "phasetracker_stage_duration_seconds",
			Help:    "Stage attempt duration in seconds, by stage.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		lockContentionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "phasetracker_lock_contentions_total",
			Help: "Total run-lock acquisition attempts that found the lock already held.",
		}),
		runsCompletedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "phasetracker_runs_completed_total",
			Help: "Total runs that reached status=completed.",
		}),
		runsFailedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "phasetracker_runs_failed_total",
			Help: "Total runs that reached status=failed.",
		}),
	}

	reg.MustRegister(
		c.stageAttemptsTotal,
		c.stageDurationSeconds,
		c.lockContentionsTotal,
		c.runsCompletedTotal,
		c.runsFailedTotal,
	)

	return c
}

// RecordStageOutcome records one stage attempt's outcome and duration.
func (c *Collector) RecordStageOutcome(stage, outcome string, duration time.Duration) {
	c.stageAttemptsTotal.WithLabelValues(stage, outcome).Inc()
	c.stageDurationSeconds.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordLockContention records a failed lock-acquisition attempt.
func (c *Collector) RecordLockContention() {
	c.lockContentionsTotal.Inc()
}

// RecordRunCompleted records a run reaching status=completed.
func (c *Collector) RecordRunCompleted() {
	c.runsCompletedTotal.Inc()
}

// RecordRunFailed records a run reaching status=failed.
func (c *Collector) RecordRunFailed() {
	c.runsFailedTotal.Inc()
}

// Snapshot is a point-in-time rendering of gatherable counters, as
// returned by Gather.
type Snapshot struct {
	StageAttempts   map[string]map[string]float64 `json:"stageAttempts"`
	LockContentions float64                        `json:"lockContentions"`
	RunsCompleted   float64                         `json:"runsCompleted"`
	RunsFailed      float64                         `json:"runsFailed"`
}

// Gather renders the current metric values via the Prometheus text
// model, rather than reaching into internal counter state directly.
func (c *Collector) Gather() (Snapshot, error) {
	families, err := c.registry.Gather()
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{StageAttempts: map[string]map[string]float64{}}
	for _, mf := range families {
		switch mf.GetName() {
		case "phasetracker_stage_attempts_total":
			for _, m := range mf.GetMetric() {
				var stage, outcome string
				for _, lbl := range m.GetLabel() {
					switch lbl.GetName() {
					case "stage":
						stage = lbl.GetValue()
					case "outcome":
						outcome = lbl.GetValue()
					}
				}
				if snap.StageAttempts[stage] == nil {
					snap.StageAttempts[stage] = map[string]float64{}
				}
				snap.StageAttempts[stage][outcome] = m.GetCounter().GetValue()
			}
		case "phasetracker_lock_contentions_total":
			for _, m := range mf.GetMetric() {
				snap.LockContentions = m.GetCounter().GetValue()
			}
		case "phasetracker_runs_completed_total":
			for _, m := range mf.GetMetric() {
				snap.RunsCompleted = m.GetCounter().GetValue()
			}
		case "phasetracker_runs_failed_total":
			for _, m := range mf.GetMetric() {
				snap.RunsFailed = m.GetCounter().GetValue()
			}
		}
	}
	return snap, nil
}
