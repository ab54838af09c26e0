package kafka

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/turtacn/DockPipe/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/DockPipe/pkg/errors"
)

// Default topic names; both are overridable through events.stage_topic and
// events.run_topic.
const (
	TopicStage = "docking.stage"
	TopicRun   = "docking.run"
)

// Event types carried in EventEnvelope.EventType.
const (
	EventStageCompleted = "docking.stage.completed"
	EventStageFailed    = "docking.stage.failed"
	EventRunSucceeded   = "docking.run.succeeded"
	EventRunFailed      = "docking.run.failed"
)

// SchemaVersion is stamped on every envelope.
const SchemaVersion = "v1"

// SourceName identifies DockPipe as the producer of an event.
const SourceName = "dockpipe"

// EventEnvelope standardizes event messages.
type EventEnvelope struct {
	EventID       string            `json:"event_id"`
	EventType     string            `json:"event_type"`
	Source        string            `json:"source"`
	Timestamp     time.Time         `json:"timestamp"`
	SchemaVersion string            `json:"schema_version"`
	RunID         string            `json:"run_id"`
	Payload       json.RawMessage   `json:"payload"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// Payload structs

// StagePayload describes one state-machine transition of a run.
type StagePayload struct {
	RunID      string    `json:"run_id"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	Step       string    `json:"step,omitempty"`
	Tool       string    `json:"tool,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	At         time.Time `json:"at"`
}

// PosePayload is one ranked pose in a RunPayload.
type PosePayload struct {
	Index    int     `json:"index"`
	Affinity float64 `json:"affinity"`
	Complex  string  `json:"complex,omitempty"`
}

// RunPayload is the terminal report of a run.
type RunPayload struct {
	RunID        string            `json:"run_id"`
	Stage        string            `json:"stage"`
	FailedStep   string            `json:"failed_step,omitempty"`
	Error        string            `json:"error,omitempty"`
	Center       [3]float64        `json:"center"`
	Size         [3]float64        `json:"size"`
	Poses        []PosePayload     `json:"poses,omitempty"`
	BestAffinity *float64          `json:"best_affinity,omitempty"`
	Archive      string            `json:"archive,omitempty"`
	TopPose      string            `json:"top_pose,omitempty"`
	Exports      map[string]string `json:"exports,omitempty"`
	ElapsedMs    int64             `json:"elapsed_ms"`
}

// Helper functions for EventEnvelope

func NewEventEnvelope(eventType, runID string, payload interface{}) (*EventEnvelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal payload")
	}
	return &EventEnvelope{
		EventID:       uuid.New().String(),
		EventType:     eventType,
		Source:        SourceName,
		Timestamp:     time.Now().UTC(),
		SchemaVersion: SchemaVersion,
		RunID:         runID,
		Payload:       data,
	}, nil
}

func (e *EventEnvelope) DecodePayload(target interface{}) error {
	if len(e.Payload) == 0 || string(e.Payload) == "null" {
		return errors.New(errors.ErrCodeSerialization, "envelope has no payload")
	}
	if err := json.Unmarshal(e.Payload, target); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to unmarshal payload")
	}
	return nil
}

// ToMessage serializes the envelope for topic.  The run id is used as the
// record key so every event of a run lands on the same partition in order.
func (e *EventEnvelope) ToMessage(topic string) (*Message, error) {
	val, err := json.Marshal(e)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal envelope")
	}
	return &Message{
		Topic: topic,
		Key:   []byte(e.RunID),
		Value: val,
		Headers: map[string]string{
			"event_type":     e.EventType,
			"source_service": e.Source,
			"schema_version": e.SchemaVersion,
		},
		Timestamp: e.Timestamp,
	}, nil
}

// ParseEnvelope decodes a record value produced by ToMessage.
func ParseEnvelope(value []byte) (*EventEnvelope, error) {
	if len(value) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "empty message value")
	}
	var env EventEnvelope
	if err := json.Unmarshal(value, &env); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to unmarshal envelope")
	}
	return &env, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Topic provisioning
// ─────────────────────────────────────────────────────────────────────────────

// TopicConfig describes a topic to provision.
type TopicConfig struct {
	Name              string
	NumPartitions     int
	ReplicationFactor int
	RetentionMs       int64
}

// ConnInterface abstracts kafka.Conn for testing.
type ConnInterface interface {
	CreateTopics(topics ...kafka.TopicConfig) error
	ReadPartitions(topics ...string) ([]kafka.Partition, error)
	Close() error
}

// TopicManager provisions the DockPipe topics on clusters that disable
// automatic topic creation.
type TopicManager struct {
	conn   ConnInterface
	logger logging.Logger
}

func NewTopicManager(brokers []string, logger logging.Logger) (*TopicManager, error) {
	if len(brokers) == 0 {
		return nil, errors.New(errors.ErrCodeConfigInvalid, "brokers required")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	conn, err := kafka.Dial("tcp", brokers[0])
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeExternalService, "failed to dial kafka")
	}
	return &TopicManager{conn: conn, logger: logger.Named("kafka")}, nil
}

func (m *TopicManager) CreateTopic(ctx context.Context, cfg TopicConfig) error {
	if cfg.Name == "" {
		return errors.New(errors.ErrCodeValidation, "topic name required")
	}
	if cfg.NumPartitions <= 0 {
		return errors.New(errors.ErrCodeValidation, "partitions must be > 0")
	}
	if cfg.ReplicationFactor <= 0 {
		return errors.New(errors.ErrCodeValidation, "replication factor must be > 0")
	}

	exists, err := m.TopicExists(ctx, cfg.Name)
	if err == nil && exists {
		return nil
	}

	kCfg := kafka.TopicConfig{
		Topic:             cfg.Name,
		NumPartitions:     cfg.NumPartitions,
		ReplicationFactor: cfg.ReplicationFactor,
	}
	if cfg.RetentionMs > 0 {
		kCfg.ConfigEntries = append(kCfg.ConfigEntries, kafka.ConfigEntry{
			ConfigName:  "retention.ms",
			ConfigValue: strconv.FormatInt(cfg.RetentionMs, 10),
		})
	}

	if err := m.conn.CreateTopics(kCfg); err != nil {
		if errors.Is(err, kafka.TopicAlreadyExists) {
			return nil
		}
		return errors.Wrap(err, errors.ErrCodeExternalService, "create topic "+cfg.Name)
	}
	m.logger.Info("topic created", logging.String("topic", cfg.Name))
	return nil
}

func (m *TopicManager) TopicExists(ctx context.Context, name string) (bool, error) {
	partitions, err := m.conn.ReadPartitions(name)
	if err != nil {
		if errors.Is(err, kafka.UnknownTopicOrPartition) {
			return false, nil
		}
		return false, err
	}
	return len(partitions) > 0, nil
}

func (m *TopicManager) EnsureTopics(ctx context.Context, topics []TopicConfig) error {
	for _, topic := range topics {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := m.CreateTopic(ctx, topic); err != nil {
			return err
		}
	}
	return nil
}

func (m *TopicManager) Close() error {
	return m.conn.Close()
}

// DockingTopics returns the two topics a DockPipe deployment needs.
func DockingTopics(stageTopic, runTopic string, partitions, replication int) []TopicConfig {
	const week = 7 * 24 * 3600 * 1000
	return []TopicConfig{
		{Name: stageTopic, NumPartitions: partitions, ReplicationFactor: replication, RetentionMs: week},
		{Name: runTopic, NumPartitions: partitions, ReplicationFactor: replication, RetentionMs: 4 * week},
	}
}
