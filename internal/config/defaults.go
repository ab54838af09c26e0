package config

import "time"

// ─────────────────────────────────────────────────────────────────────────────
// Default value constants
// ─────────────────────────────────────────────────────────────────────────────

const (
	DefaultConverter  = "obabel"
	DefaultPrepRunner = "python2"
	DefaultPrepScript = "utils/prepare_receptor4.py"
	DefaultEngine     = "./vina"
	DefaultSplitter   = "./vina_split"

	DefaultPadding       = 10.0
	DefaultScorePolicy   = "strict"
	DefaultScoreSource   = "log"
	DefaultBoxSource     = "receptor"
	DefaultTopPoseFormat = "pdb"

	DefaultStagingRoot = "runs"

	DefaultStorageBucket = "dockpipe-artifacts"
	DefaultPresignExpiry = 24 * time.Hour
	DefaultStageTopic    = "docking.stage"
	DefaultRunTopic      = "docking.run"
	DefaultKafkaBroker   = "localhost:9092"
	DefaultEventsTimeout = 10 * time.Second
	DefaultEventsAcks    = "one"
	DefaultClientID      = "dockpipe"
	DefaultPartitions    = 3
	DefaultReplication   = 1
	DefaultMetricsPrefix = "dockpipe"
	DefaultMetricsFile   = "dockpipe.prom"
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "console"
	DefaultLogOutput     = "stderr"
	DefaultStagingKeep   = true
)

// ApplyDefaults fills every zero-value field in cfg with the DockPipe default.
// Fields already set by the caller are left unchanged so explicit
// configuration always wins.
//
// Booleans and docking.padding cannot be told apart from "unset" here (a zero
// padding is legal); their defaults are registered on the viper instance
// instead (see registerDefaults) and set by Default.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// ── Tools ─────────────────────────────────────────────────────────────────
	if cfg.Tools.Converter == "" {
		cfg.Tools.Converter = DefaultConverter
	}
	if cfg.Tools.PrepRunner == "" {
		cfg.Tools.PrepRunner = DefaultPrepRunner
	}
	if cfg.Tools.PrepScript == "" {
		cfg.Tools.PrepScript = DefaultPrepScript
	}
	if cfg.Tools.Engine == "" {
		cfg.Tools.Engine = DefaultEngine
	}
	if cfg.Tools.Splitter == "" {
		cfg.Tools.Splitter = DefaultSplitter
	}

	// ── Docking ───────────────────────────────────────────────────────────────
	if cfg.Docking.ScorePolicy == "" {
		cfg.Docking.ScorePolicy = DefaultScorePolicy
	}
	if cfg.Docking.ScoreSource == "" {
		cfg.Docking.ScoreSource = DefaultScoreSource
	}
	if cfg.Docking.BoxSource == "" {
		cfg.Docking.BoxSource = DefaultBoxSource
	}
	if cfg.Docking.TopPoseFormat == "" {
		cfg.Docking.TopPoseFormat = DefaultTopPoseFormat
	}

	// ── Staging ───────────────────────────────────────────────────────────────
	if cfg.Staging.Root == "" {
		cfg.Staging.Root = DefaultStagingRoot
	}

	// ── Storage ───────────────────────────────────────────────────────────────
	if cfg.Storage.Bucket == "" {
		cfg.Storage.Bucket = DefaultStorageBucket
	}
	if cfg.Storage.PresignExpiry == 0 {
		cfg.Storage.PresignExpiry = DefaultPresignExpiry
	}

	// ── Events ────────────────────────────────────────────────────────────────
	if len(cfg.Events.Brokers) == 0 {
		cfg.Events.Brokers = []string{DefaultKafkaBroker}
	}
	if cfg.Events.StageTopic == "" {
		cfg.Events.StageTopic = DefaultStageTopic
	}
	if cfg.Events.RunTopic == "" {
		cfg.Events.RunTopic = DefaultRunTopic
	}
	if cfg.Events.WriteTimeout == 0 {
		cfg.Events.WriteTimeout = DefaultEventsTimeout
	}
	if cfg.Events.Acks == "" {
		cfg.Events.Acks = DefaultEventsAcks
	}
	if cfg.Events.ClientID == "" {
		cfg.Events.ClientID = DefaultClientID
	}
	if cfg.Events.Partitions == 0 {
		cfg.Events.Partitions = DefaultPartitions
	}
	if cfg.Events.ReplicationFactor == 0 {
		cfg.Events.ReplicationFactor = DefaultReplication
	}

	// ── Metrics ───────────────────────────────────────────────────────────────
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsPrefix
	}
	if cfg.Metrics.Textfile == "" {
		cfg.Metrics.Textfile = DefaultMetricsFile
	}

	// ── Log ───────────────────────────────────────────────────────────────────
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = DefaultLogOutput
	}
}

// Default returns a Config populated entirely from defaults.
func Default() *Config {
	cfg := &Config{}
	cfg.Staging.Keep = DefaultStagingKeep
	cfg.Docking.Padding = DefaultPadding
	ApplyDefaults(cfg)
	return cfg
}
