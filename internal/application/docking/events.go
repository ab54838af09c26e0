package docking

import (
	"context"
	"time"

	domainDock "github.com/turtacn/DockPipe/internal/domain/docking"
	"github.com/turtacn/DockPipe/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/DockPipe/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/DockPipe/internal/infrastructure/monitoring/prometheus"
)

// StageEvent reports one state-machine transition of a run.
type StageEvent struct {
	RunID    string
	From     domainDock.Stage
	To       domainDock.Stage
	Step     domainDock.Step
	Tool     string
	Duration time.Duration
	Err      error
	At       time.Time
}

// EventSink receives stage events and the terminal report of every run.
// Errors are logged by the orchestrator and never fail a run.
type EventSink interface {
	Publish(ctx context.Context, ev StageEvent) error
	PublishReport(ctx context.Context, report *RunReport) error
}

// ─────────────────────────────────────────────────────────────────────────────
// LogSink
// ─────────────────────────────────────────────────────────────────────────────

// LogSink writes events to the structured log.
type LogSink struct {
	logger logging.Logger
}

func NewLogSink(logger logging.Logger) *LogSink {
	return &LogSink{logger: logger.Named("events")}
}

func (s *LogSink) Publish(_ context.Context, ev StageEvent) error {
	fields := []logging.Field{
		logging.RunID(ev.RunID),
		logging.Stage(string(ev.To)),
		logging.String("from", string(ev.From)),
		logging.Duration("elapsed", ev.Duration),
	}
	if ev.Tool != "" {
		fields = append(fields, logging.Tool(ev.Tool))
	}
	if ev.To == domainDock.StageFailed {
		fields = append(fields, logging.String("step", string(ev.Step)), logging.Err(ev.Err))
		s.logger.Error("stage failed", fields...)
		return nil
	}
	s.logger.Info("stage completed", fields...)
	return nil
}

func (s *LogSink) PublishReport(_ context.Context, r *RunReport) error {
	fields := []logging.Field{
		logging.RunID(r.RunID),
		logging.Stage(string(r.Stage)),
		logging.Duration("elapsed", r.Elapsed),
		logging.Int("poses", len(r.Poses)),
	}
	if best, ok := r.Scores.Best(); ok {
		fields = append(fields, logging.Float64("best_affinity", best.Affinity))
	}
	if r.FailedStep != "" {
		fields = append(fields, logging.String("failed_step", string(r.FailedStep)), logging.String("error", r.Error))
		s.logger.Error("run failed", fields...)
		return nil
	}
	s.logger.Info("run finished", fields...)
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// KafkaSink
// ─────────────────────────────────────────────────────────────────────────────

// Publisher is the slice of *kafka.Producer the sink needs.
type Publisher interface {
	Publish(ctx context.Context, msg *kafka.Message) error
}

// KafkaSink publishes JSON envelopes: stage events to the stage topic and
// reports to the run topic.
type KafkaSink struct {
	producer   Publisher
	stageTopic string
	runTopic   string
	metrics    *prometheus.DockingMetrics
}

func NewKafkaSink(producer Publisher, stageTopic, runTopic string, metrics *prometheus.DockingMetrics) *KafkaSink {
	return &KafkaSink{producer: producer, stageTopic: stageTopic, runTopic: runTopic, metrics: metrics}
}

func (s *KafkaSink) Publish(ctx context.Context, ev StageEvent) error {
	eventType := kafka.EventStageCompleted
	payload := kafka.StagePayload{
		RunID:      ev.RunID,
		From:       string(ev.From),
		To:         string(ev.To),
		Step:       string(ev.Step),
		Tool:       ev.Tool,
		DurationMs: ev.Duration.Milliseconds(),
		At:         ev.At,
	}
	if ev.To == domainDock.StageFailed {
		eventType = kafka.EventStageFailed
		if ev.Err != nil {
			payload.Error = ev.Err.Error()
		}
	}
	return s.send(ctx, s.stageTopic, eventType, ev.RunID, payload)
}

func (s *KafkaSink) PublishReport(ctx context.Context, r *RunReport) error {
	eventType := kafka.EventRunSucceeded
	if r.FailedStep != "" {
		eventType = kafka.EventRunFailed
	}
	return s.send(ctx, s.runTopic, eventType, r.RunID, r.payload())
}

func (s *KafkaSink) send(ctx context.Context, topic, eventType, runID string, payload interface{}) error {
	env, err := kafka.NewEventEnvelope(eventType, runID, payload)
	if err != nil {
		return err
	}
	msg, err := env.ToMessage(topic)
	if err != nil {
		return err
	}
	err = s.producer.Publish(ctx, msg)
	if s.metrics != nil {
		prometheus.RecordEventPublish(s.metrics, topic, err)
	}
	return err
}

// ─────────────────────────────────────────────────────────────────────────────
// MultiSink
// ─────────────────────────────────────────────────────────────────────────────

// MultiSink fans out to every sink and returns the first error.
type MultiSink []EventSink

func (m MultiSink) Publish(ctx context.Context, ev StageEvent) error {
	var first error
	for _, s := range m {
		if err := s.Publish(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m MultiSink) PublishReport(ctx context.Context, r *RunReport) error {
	var first error
	for _, s := range m {
		if err := s.PublishReport(ctx, r); err != nil && first == nil {
			first = err
		}
	}
	return first
}
