package kafka

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/DockPipe/internal/infrastructure/monitoring/logging"
	apperrors "github.com/turtacn/DockPipe/pkg/errors"
)

// mockKafkaWriter
type mockKafkaWriter struct {
	writeFunc func(ctx context.Context, msgs ...kafka.Message) error
	closeFunc func() error
}

func (m *mockKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if m.writeFunc != nil {
		return m.writeFunc(ctx, msgs...)
	}
	return nil
}

func (m *mockKafkaWriter) Close() error {
	if m.closeFunc != nil {
		return m.closeFunc()
	}
	return nil
}

func newTestProducerConfig() ProducerConfig {
	return ProducerConfig{
		Brokers:         []string{"localhost:9092"},
		MaxMessageBytes: 1024,
	}
}

func newTestMessage(topic, key, value string) *Message {
	return &Message{
		Topic:   topic,
		Key:     []byte(key),
		Value:   []byte(value),
		Headers: map[string]string{"event_type": "x"},
	}
}

func newTestProducer(w WriterInterface) *Producer {
	return &Producer{
		writer: w,
		config: newTestProducerConfig(),
		logger: logging.NewNopLogger(),
	}
}

func TestValidateProducerConfig(t *testing.T) {
	assert.NoError(t, ValidateProducerConfig(newTestProducerConfig()))

	cfg := newTestProducerConfig()
	cfg.Brokers = nil
	assert.True(t, apperrors.IsCode(ValidateProducerConfig(cfg), apperrors.ErrCodeConfigInvalid))

	cfg = newTestProducerConfig()
	cfg.MaxRetries = -1
	assert.Error(t, ValidateProducerConfig(cfg))
}

func TestNewProducer_Defaults(t *testing.T) {
	p, err := NewProducer(ProducerConfig{Brokers: []string{"b1:9092", "b2:9092"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, p.config.MaxRetries)
	assert.Equal(t, 1024*1024, p.config.MaxMessageBytes)

	w, ok := p.writer.(*kafka.Writer)
	require.True(t, ok)
	assert.Equal(t, 4, w.MaxAttempts)
	assert.Equal(t, kafka.RequireOne, w.RequiredAcks)
	assert.True(t, w.AllowAutoTopicCreation)
}

func TestNewProducer_SASL(t *testing.T) {
	for _, mech := range []string{"PLAIN", "SCRAM-SHA-256", "SCRAM-SHA-512"} {
		cfg := newTestProducerConfig()
		cfg.SASLMechanism = mech
		cfg.SASLUsername = "dock"
		cfg.SASLPassword = "secret"
		p, err := NewProducer(cfg, nil)
		require.NoError(t, err, mech)
		w := p.writer.(*kafka.Writer)
		assert.NotNil(t, w.Transport.(*kafka.Transport).SASL, mech)
	}

	cfg := newTestProducerConfig()
	cfg.SASLMechanism = "GSSAPI"
	_, err := NewProducer(cfg, nil)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeConfigInvalid))
}

func TestNewProducer_TLSMissingCA(t *testing.T) {
	cfg := newTestProducerConfig()
	cfg.TLSEnabled = true
	cfg.TLSCAPath = "/nonexistent/ca.pem"
	_, err := NewProducer(cfg, nil)
	assert.Error(t, err)
}

func TestRequiredAcksAndCompression(t *testing.T) {
	assert.Equal(t, kafka.RequireNone, requiredAcks("none"))
	assert.Equal(t, kafka.RequireAll, requiredAcks("all"))
	assert.Equal(t, kafka.RequireOne, requiredAcks(""))
	assert.Equal(t, kafka.Gzip, compression("gzip"))
	assert.Equal(t, kafka.Zstd, compression("zstd"))
	assert.Equal(t, kafka.Compression(0), compression(""))
}

func TestPublish_Success(t *testing.T) {
	var captured []kafka.Message
	p := newTestProducer(&mockKafkaWriter{
		writeFunc: func(ctx context.Context, msgs ...kafka.Message) error {
			captured = msgs
			return nil
		},
	})

	require.NoError(t, p.Publish(context.Background(), newTestMessage("docking.stage", "run-1", "{}")))
	require.Len(t, captured, 1)
	assert.Equal(t, "docking.stage", captured[0].Topic)
	assert.Equal(t, "run-1", string(captured[0].Key))
	assert.Equal(t, "{}", string(captured[0].Value))
	assert.False(t, captured[0].Time.IsZero())
	require.Len(t, captured[0].Headers, 1)
	assert.Equal(t, "event_type", captured[0].Headers[0].Key)

	stats := p.Stats()
	assert.Equal(t, int64(1), stats.MessagesSent)
	assert.Equal(t, int64(2), stats.BytesSent)
}

func TestPublish_Failure(t *testing.T) {
	p := newTestProducer(&mockKafkaWriter{
		writeFunc: func(ctx context.Context, msgs ...kafka.Message) error {
			return errors.New("write failed")
		},
	})
	err := p.Publish(context.Background(), newTestMessage("t", "k", "v"))
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeExternalService))
	assert.Equal(t, int64(1), p.Stats().MessagesFailed)
}

func TestPublish_Validation(t *testing.T) {
	p := newTestProducer(&mockKafkaWriter{})
	ctx := context.Background()

	assert.Error(t, p.Publish(ctx, nil))
	assert.Error(t, p.Publish(ctx, newTestMessage("", "k", "v")))
	assert.Error(t, p.Publish(ctx, newTestMessage("t", "k", "")))
	assert.Error(t, p.Publish(ctx, newTestMessage("t", "k", strings.Repeat("x", 2048))))
	assert.Zero(t, p.Stats().MessagesSent)
}

func TestClose_Idempotent(t *testing.T) {
	calls := 0
	p := newTestProducer(&mockKafkaWriter{
		closeFunc: func() error {
			calls++
			return nil
		},
	})
	assert.NoError(t, p.Close())
	assert.NoError(t, p.Close())
	assert.Equal(t, 1, calls)

	err := p.Publish(context.Background(), newTestMessage("t", "k", "v"))
	assert.ErrorIs(t, err, ErrProducerClosed)
}
