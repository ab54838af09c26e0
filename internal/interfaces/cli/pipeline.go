package cli

import (
	"context"

	appdock "github.com/turtacn/DockPipe/internal/application/docking"
	"github.com/turtacn/DockPipe/internal/config"
	"github.com/turtacn/DockPipe/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/DockPipe/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/DockPipe/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/DockPipe/internal/infrastructure/storage/minio"
	"github.com/turtacn/DockPipe/internal/infrastructure/toolchain"
	"github.com/turtacn/DockPipe/internal/infrastructure/toolexec"
)

// pipeline is the fully wired orchestrator plus the resources it owns.
type pipeline struct {
	orch      *appdock.Orchestrator
	collector prometheus.MetricsCollector
	textfile  string
	closers   []func() error
	logger    logging.Logger
}

// buildPipeline wires toolchain, invoker, metrics, event sinks and the
// artifact exporter from cfg.  Kafka and MinIO are optional; MinIO being
// unreachable only disables export.
func buildPipeline(ctx context.Context, cfg *config.Config, logger logging.Logger) (*pipeline, error) {
	tools, err := toolchain.New(cfg.Tools, logger)
	if err != nil {
		return nil, err
	}
	opts, err := appdock.OptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	p := &pipeline{logger: logger}
	var (
		invokerOpts []toolexec.Option
		orchOpts    []appdock.Option
		metrics     *prometheus.DockingMetrics
	)

	if cfg.Metrics.Enabled {
		collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
			Namespace: cfg.Metrics.Namespace,
		}, logger)
		if err != nil {
			return nil, err
		}
		metrics = prometheus.NewDockingMetrics(collector)
		p.collector = collector
		p.textfile = cfg.Metrics.Textfile
		invokerOpts = append(invokerOpts, toolexec.WithObserver(metrics))
		orchOpts = append(orchOpts, appdock.WithMetrics(metrics))
	}

	sinks := appdock.MultiSink{appdock.NewLogSink(logger)}
	if cfg.Events.Enabled {
		producer, err := newEventProducer(ctx, cfg.Events, logger)
		if err != nil {
			return nil, err
		}
		p.closers = append(p.closers, producer.Close)
		sinks = append(sinks, appdock.NewKafkaSink(producer, cfg.Events.StageTopic, cfg.Events.RunTopic, metrics))
	}
	orchOpts = append(orchOpts, appdock.WithEventSink(sinks))

	if cfg.Storage.Enabled {
		client, err := minio.NewMinIOClient(ctx, &minio.MinIOConfig{
			Endpoint:        cfg.Storage.Endpoint,
			AccessKeyID:     cfg.Storage.AccessKey,
			SecretAccessKey: cfg.Storage.SecretKey,
			UseSSL:          cfg.Storage.UseSSL,
			Region:          cfg.Storage.Region,
			Bucket:          cfg.Storage.Bucket,
			PresignExpiry:   cfg.Storage.PresignExpiry,
			RetentionDays:   cfg.Storage.RetentionDays,
		}, logger)
		if err != nil {
			logger.Warn("artifact export disabled", logging.Err(err))
		} else {
			orchOpts = append(orchOpts, appdock.WithExporter(minio.NewMinIORepository(client, logger)))
		}
	}

	if len(cfg.Tools.Env) > 0 {
		invokerOpts = append(invokerOpts, toolexec.WithEnv(cfg.Tools.Env...))
	}
	invoker := toolexec.NewExecInvoker(logger, invokerOpts...)
	p.orch = appdock.NewOrchestrator(tools, invoker, opts, logger, orchOpts...)
	return p, nil
}

// newEventProducer creates the Kafka producer and, with ensure_topics,
// provisions both topics first.  Provisioning failures are warnings since
// the producer may still auto-create them.
func newEventProducer(ctx context.Context, cfg config.EventsConfig, logger logging.Logger) (*kafka.Producer, error) {
	if cfg.EnsureTopics {
		if tm, err := kafka.NewTopicManager(cfg.Brokers, logger); err != nil {
			logger.Warn("topic provisioning skipped", logging.Err(err))
		} else {
			topics := kafka.DockingTopics(cfg.StageTopic, cfg.RunTopic, cfg.Partitions, cfg.ReplicationFactor)
			if err := tm.EnsureTopics(ctx, topics); err != nil {
				logger.Warn("topic provisioning failed", logging.Err(err))
			}
			_ = tm.Close()
		}
	}
	return kafka.NewProducer(kafka.ProducerConfig{
		Brokers:          cfg.Brokers,
		ClientID:         cfg.ClientID,
		Acks:             cfg.Acks,
		WriteTimeout:     cfg.WriteTimeout,
		CompressionCodec: cfg.Compression,
		SASLMechanism:    cfg.SASLMechanism,
		SASLUsername:     cfg.SASLUsername,
		SASLPassword:     cfg.SASLPassword,
		TLSEnabled:       cfg.TLS,
		TLSCAPath:        cfg.TLSCAPath,
	}, logger)
}

// flushMetrics writes the registry to the textfile when metrics are enabled.
func (p *pipeline) flushMetrics() {
	if p.collector == nil {
		return
	}
	if err := p.collector.WriteTextfile(p.textfile); err != nil {
		p.logger.Warn("metrics textfile not written", logging.Err(err))
	}
}

// Close releases producers and flushes metrics.
func (p *pipeline) Close() {
	p.flushMetrics()
	for _, c := range p.closers {
		if err := c(); err != nil {
			p.logger.Warn("close failed", logging.Err(err))
		}
	}
}
