package prometheus

import (
	"time"

	"github.com/turtacn/DockPipe/internal/infrastructure/toolexec"
)

// Result label values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// DockingMetrics holds every metric DockPipe records for a run.
type DockingMetrics struct {
	// Tool layer
	ToolInvocationsTotal   CounterVec
	ToolInvocationDuration HistogramVec

	// Pipeline layer
	RunsTotal          CounterVec
	RunDuration        HistogramVec
	StageFailuresTotal CounterVec
	PosesTotal         CounterVec
	BestAffinity       GaugeVec
	SkippedScoreLines  CounterVec

	// Export layer
	EventsPublishedTotal CounterVec
	ArtifactsUploaded    CounterVec
}

// Default Buckets
var (
	// DefaultToolDurationBuckets spans a sub-second conversion up to an
	// hour-long exhaustive docking search.
	DefaultToolDurationBuckets = []float64{.1, .5, 1, 5, 10, 30, 60, 300, 900, 1800, 3600}
	DefaultRunDurationBuckets  = []float64{1, 10, 30, 60, 300, 600, 1800, 3600, 7200}
)

// NewDockingMetrics registers all metrics and returns the DockingMetrics struct.
func NewDockingMetrics(collector MetricsCollector) *DockingMetrics {
	m := &DockingMetrics{}

	m.ToolInvocationsTotal = collector.RegisterCounter("tool_invocations_total", "External tool invocations", "tool", "result")
	m.ToolInvocationDuration = collector.RegisterHistogram("tool_invocation_duration_seconds", "External tool wall-clock time", DefaultToolDurationBuckets, "tool")

	m.RunsTotal = collector.RegisterCounter("runs_total", "Docking runs", "result")
	m.RunDuration = collector.RegisterHistogram("run_duration_seconds", "Docking run wall-clock time", DefaultRunDurationBuckets)
	m.StageFailuresTotal = collector.RegisterCounter("stage_failures_total", "Runs that failed, by failing step", "stage")
	m.PosesTotal = collector.RegisterCounter("poses_total", "Ranked poses produced")
	m.BestAffinity = collector.RegisterGauge("best_affinity_kcal_mol", "Best affinity of the last successful run")
	m.SkippedScoreLines = collector.RegisterCounter("skipped_score_lines_total", "Malformed score lines dropped under the skip policy")

	m.EventsPublishedTotal = collector.RegisterCounter("events_published_total", "Stage and run events published", "topic", "result")
	m.ArtifactsUploaded = collector.RegisterCounter("artifacts_uploaded_total", "Artifacts exported to object storage", "result")

	return m
}

// ObserveInvocation implements toolexec.Observer.  A reason other than
// ReasonNone counts as a failed invocation.
func (m *DockingMetrics) ObserveInvocation(tool string, reason toolexec.FailureReason, d time.Duration) {
	result := ResultSuccess
	if reason != toolexec.ReasonNone {
		result = string(reason)
	}
	m.ToolInvocationsTotal.WithLabelValues(tool, result).Inc()
	m.ToolInvocationDuration.WithLabelValues(tool).Observe(d.Seconds())
}

// Helpers

// RecordRunSuccess counts a finished run together with its pose count and
// best affinity.
func RecordRunSuccess(metrics *DockingMetrics, poses int, best float64, skipped int, duration time.Duration) {
	metrics.RunsTotal.WithLabelValues(ResultSuccess).Inc()
	metrics.RunDuration.WithLabelValues().Observe(duration.Seconds())
	metrics.PosesTotal.WithLabelValues().Add(float64(poses))
	metrics.SkippedScoreLines.WithLabelValues().Add(float64(skipped))
	if poses > 0 {
		metrics.BestAffinity.WithLabelValues().Set(best)
	}
}

// RecordRunFailure counts a failed run against the step that failed.
func RecordRunFailure(metrics *DockingMetrics, stage string, duration time.Duration) {
	metrics.RunsTotal.WithLabelValues(ResultFailure).Inc()
	metrics.RunDuration.WithLabelValues().Observe(duration.Seconds())
	metrics.StageFailuresTotal.WithLabelValues(stage).Inc()
}

func RecordEventPublish(metrics *DockingMetrics, topic string, err error) {
	result := ResultSuccess
	if err != nil {
		result = ResultFailure
	}
	metrics.EventsPublishedTotal.WithLabelValues(topic, result).Inc()
}

func RecordArtifactUpload(metrics *DockingMetrics, err error) {
	result := ResultSuccess
	if err != nil {
		result = ResultFailure
	}
	metrics.ArtifactsUploaded.WithLabelValues(result).Inc()
}
