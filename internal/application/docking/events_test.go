package docking

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainDock "github.com/turtacn/DockPipe/internal/domain/docking"
	"github.com/turtacn/DockPipe/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/DockPipe/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/DockPipe/internal/testutil"
	"github.com/turtacn/DockPipe/pkg/errors"
)

type fakePublisher struct {
	messages []*kafka.Message
	err      error
}

func (p *fakePublisher) Publish(_ context.Context, msg *kafka.Message) error {
	p.messages = append(p.messages, msg)
	return p.err
}

func TestLogSink(t *testing.T) {
	logger := testutil.NewMockLogger()
	sink := NewLogSink(logger)
	ctx := context.Background()

	require.NoError(t, sink.Publish(ctx, StageEvent{RunID: "r1", From: domainDock.StageIdle, To: domainDock.StageLigandConverted, Tool: "converter"}))
	require.NoError(t, sink.Publish(ctx, StageEvent{
		RunID: "r1", From: domainDock.StageLigandConverted, To: domainDock.StageFailed,
		Step: domainDock.StepReceptorPrep, Err: errors.New(errors.ErrCodeToolFailure, "prep failed"),
	}))
	require.NoError(t, sink.PublishReport(ctx, &RunReport{RunID: "r1", Stage: domainDock.StageFailed, FailedStep: domainDock.StepReceptorPrep, Error: "prep failed"}))

	msg, ok := logger.Find("info", "stage completed")
	require.True(t, ok)
	v, _ := msg.Field("tool")
	assert.Equal(t, "converter", v)

	msg, ok = logger.Find("error", "stage failed")
	require.True(t, ok)
	v, _ = msg.Field("step")
	assert.Equal(t, "receptor_prep", v)

	assert.True(t, logger.HasMessage("error", "run failed"))
}

func TestKafkaSink_StageEvents(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewKafkaSink(pub, kafka.TopicStage, kafka.TopicRun, nil)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	require.NoError(t, sink.Publish(context.Background(), StageEvent{
		RunID: "r1", From: domainDock.StageBoxComputed, To: domainDock.StageDocked,
		Step: domainDock.StepDocking, Tool: "engine", Duration: 1500 * time.Millisecond, At: at,
	}))
	require.NoError(t, sink.Publish(context.Background(), StageEvent{
		RunID: "r1", From: domainDock.StageDocked, To: domainDock.StageFailed,
		Step: domainDock.StepSplit, Err: errors.New(errors.ErrCodeNoPoses, "no poses"), At: at,
	}))
	require.Len(t, pub.messages, 2)

	msg := pub.messages[0]
	assert.Equal(t, kafka.TopicStage, msg.Topic)
	assert.Equal(t, "r1", string(msg.Key))

	env, err := kafka.ParseEnvelope(msg.Value)
	require.NoError(t, err)
	assert.Equal(t, kafka.EventStageCompleted, env.EventType)
	var p kafka.StagePayload
	require.NoError(t, env.DecodePayload(&p))
	assert.Equal(t, "docked", p.To)
	assert.Equal(t, "engine", p.Tool)
	assert.Equal(t, int64(1500), p.DurationMs)

	env, err = kafka.ParseEnvelope(pub.messages[1].Value)
	require.NoError(t, err)
	assert.Equal(t, kafka.EventStageFailed, env.EventType)
	require.NoError(t, env.DecodePayload(&p))
	assert.Equal(t, "split", p.Step)
	assert.Contains(t, p.Error, "no poses")
}

func TestKafkaSink_Report(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewKafkaSink(pub, kafka.TopicStage, kafka.TopicRun, nil)

	require.NoError(t, sink.PublishReport(context.Background(), &RunReport{
		RunID: "r2", Stage: domainDock.StageDone, Archive: "/runs/r2/complexes.zip",
	}))
	require.NoError(t, sink.PublishReport(context.Background(), &RunReport{
		RunID: "r3", Stage: domainDock.StageFailed, FailedStep: domainDock.StepDocking,
	}))

	env, err := kafka.ParseEnvelope(pub.messages[0].Value)
	require.NoError(t, err)
	assert.Equal(t, kafka.TopicRun, pub.messages[0].Topic)
	assert.Equal(t, kafka.EventRunSucceeded, env.EventType)
	var p kafka.RunPayload
	require.NoError(t, env.DecodePayload(&p))
	assert.Equal(t, "/runs/r2/complexes.zip", p.Archive)
	assert.Nil(t, p.BestAffinity)

	env, err = kafka.ParseEnvelope(pub.messages[1].Value)
	require.NoError(t, err)
	assert.Equal(t, kafka.EventRunFailed, env.EventType)
}

func TestKafkaSink_RecordsPublishMetrics(t *testing.T) {
	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{Namespace: "test"}, nil)
	require.NoError(t, err)
	metrics := prometheus.NewDockingMetrics(collector)

	pub := &fakePublisher{err: errors.New(errors.ErrCodeExternalService, "broker down")}
	sink := NewKafkaSink(pub, kafka.TopicStage, kafka.TopicRun, metrics)

	err = sink.Publish(context.Background(), StageEvent{RunID: "r1", To: domainDock.StageLigandConverted})
	assert.True(t, errors.IsCode(err, errors.ErrCodeExternalService))
}

type failingSink struct{ recordingSink }

func (s *failingSink) Publish(ctx context.Context, ev StageEvent) error {
	_ = s.recordingSink.Publish(ctx, ev)
	return errors.New(errors.ErrCodeExternalService, "down")
}

func TestMultiSink_FansOutAndReturnsFirstError(t *testing.T) {
	bad := &failingSink{}
	good := &recordingSink{}
	multi := MultiSink{bad, good}

	err := multi.Publish(context.Background(), StageEvent{RunID: "r1", To: domainDock.StageLigandConverted})
	assert.Error(t, err)
	assert.Len(t, good.events, 1)
	assert.Len(t, bad.events, 1)

	require.NoError(t, multi.PublishReport(context.Background(), &RunReport{RunID: "r1"}))
	assert.Len(t, good.reports, 1)
}
