// Package config defines all configuration structures for DockPipe.  No I/O or
// parsing logic lives here, only plain data types and validation.
package config

import (
	"fmt"
	"time"

	"github.com/turtacn/DockPipe/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// Sub-configuration structs
// ─────────────────────────────────────────────────────────────────────────────

// ToolsConfig locates the four external binaries the pipeline drives.
type ToolsConfig struct {
	Converter  string `mapstructure:"converter"`   // format converter, e.g. obabel
	PrepRunner string `mapstructure:"prep_runner"` // interpreter for the receptor script
	PrepScript string `mapstructure:"prep_script"`
	Engine     string `mapstructure:"engine"`
	Splitter   string `mapstructure:"splitter"`

	// Gen3D asks the converter to generate 3D coordinates for 2D ligands.
	Gen3D bool `mapstructure:"gen3d"`

	// Hydrogens is passed to the receptor script as -A when non-empty
	// (e.g. "hydrogens", "checkhydrogens").
	Hydrogens string `mapstructure:"hydrogens"`

	// Env holds extra KEY=VALUE pairs for every tool process.
	Env []string `mapstructure:"env"`
}

// DockingConfig holds the search and scoring parameters of a run.
type DockingConfig struct {
	Padding        float64       `mapstructure:"padding"`
	Timeout        time.Duration `mapstructure:"timeout"` // 0 = no limit
	Exhaustiveness int           `mapstructure:"exhaustiveness"`
	NumModes       int           `mapstructure:"num_modes"`
	CPU            int           `mapstructure:"cpu"`
	Seed           int64         `mapstructure:"seed"`
	ScorePolicy    string        `mapstructure:"score_policy"` // "strict" | "skip"
	ScoreSource    string        `mapstructure:"score_source"` // "log" | "output"
	BoxSource      string        `mapstructure:"box_source"`   // "receptor" | "ligand"
	ParallelPrep   bool          `mapstructure:"parallel_prep"`
	TopPoseFormat  string        `mapstructure:"top_pose_format"`
}

// StagingConfig controls where per-run working directories are created.
type StagingConfig struct {
	Root string `mapstructure:"root"`
	Keep bool   `mapstructure:"keep"`
}

// StorageConfig holds MinIO / S3-compatible artifact export parameters.
type StorageConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Endpoint      string        `mapstructure:"endpoint"`
	AccessKey     string        `mapstructure:"access_key"`
	SecretKey     string        `mapstructure:"secret_key"`
	Bucket        string        `mapstructure:"bucket"`
	Region        string        `mapstructure:"region"`
	UseSSL        bool          `mapstructure:"use_ssl"`
	PresignExpiry time.Duration `mapstructure:"presign_expiry"`
	RetentionDays int           `mapstructure:"retention_days"` // 0 = keep forever
}

// EventsConfig holds Kafka stage-event publishing parameters.
type EventsConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	ClientID     string        `mapstructure:"client_id"`
	StageTopic   string        `mapstructure:"stage_topic"`
	RunTopic     string        `mapstructure:"run_topic"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	Acks         string        `mapstructure:"acks"`        // "none" | "one" | "all"
	Compression  string        `mapstructure:"compression"` // "", gzip, snappy, lz4, zstd

	SASLMechanism string `mapstructure:"sasl_mechanism"` // "", PLAIN, SCRAM-SHA-256, SCRAM-SHA-512
	SASLUsername  string `mapstructure:"sasl_username"`
	SASLPassword  string `mapstructure:"sasl_password"`
	TLS           bool   `mapstructure:"tls"`
	TLSCAPath     string `mapstructure:"tls_ca_path"`

	// EnsureTopics creates both topics at startup for clusters that
	// disable auto-creation.
	EnsureTopics      bool `mapstructure:"ensure_topics"`
	Partitions        int  `mapstructure:"partitions"`
	ReplicationFactor int  `mapstructure:"replication_factor"`
}

// MetricsConfig controls the Prometheus textfile written after each run.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Textfile  string `mapstructure:"textfile"`
	Namespace string `mapstructure:"namespace"`
}

// LogConfig holds structured-logging parameters.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // "debug" | "info" | "warn" | "error"
	Format string `mapstructure:"format"` // "json" | "console"
	Output string `mapstructure:"output"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Root Config
// ─────────────────────────────────────────────────────────────────────────────

// Config is the root configuration structure for DockPipe.
type Config struct {
	Tools   ToolsConfig   `mapstructure:"tools"`
	Docking DockingConfig `mapstructure:"docking"`
	Staging StagingConfig `mapstructure:"staging"`
	Storage StorageConfig `mapstructure:"storage"`
	Events  EventsConfig  `mapstructure:"events"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Log     LogConfig     `mapstructure:"log"`
}

// maxPresignExpiry is the longest validity S3 accepts for a presigned URL.
const maxPresignExpiry = 7 * 24 * time.Hour

// ─────────────────────────────────────────────────────────────────────────────
// Validation
// ─────────────────────────────────────────────────────────────────────────────

// Validate performs semantic validation of the fully-populated Config and
// returns the first problem found as a CFG_002 error.
func (c *Config) Validate() error {
	// Tools
	if c.Tools.Converter == "" {
		return invalid("tools.converter is required")
	}
	if c.Tools.PrepRunner == "" || c.Tools.PrepScript == "" {
		return invalid("tools.prep_runner and tools.prep_script are required")
	}
	if c.Tools.Engine == "" {
		return invalid("tools.engine is required")
	}
	if c.Tools.Splitter == "" {
		return invalid("tools.splitter is required")
	}

	// Docking
	if c.Docking.Padding < 0 {
		return invalid("docking.padding must be ≥ 0, got %g", c.Docking.Padding)
	}
	if c.Docking.Timeout < 0 {
		return invalid("docking.timeout must be ≥ 0, got %s", c.Docking.Timeout)
	}
	if c.Docking.Exhaustiveness < 0 || c.Docking.NumModes < 0 || c.Docking.CPU < 0 {
		return invalid("docking.exhaustiveness, num_modes and cpu must be ≥ 0")
	}
	switch c.Docking.ScorePolicy {
	case "strict", "skip":
	default:
		return invalid("docking.score_policy %q is invalid; expected strict|skip", c.Docking.ScorePolicy)
	}
	switch c.Docking.ScoreSource {
	case "log", "output":
	default:
		return invalid("docking.score_source %q is invalid; expected log|output", c.Docking.ScoreSource)
	}
	switch c.Docking.BoxSource {
	case "receptor", "ligand":
	default:
		return invalid("docking.box_source %q is invalid; expected receptor|ligand", c.Docking.BoxSource)
	}
	if c.Docking.TopPoseFormat == "" {
		return invalid("docking.top_pose_format is required")
	}

	// Staging
	if c.Staging.Root == "" {
		return invalid("staging.root is required")
	}

	// Storage
	if c.Storage.Enabled {
		if c.Storage.Endpoint == "" {
			return invalid("storage.endpoint is required when storage is enabled")
		}
		if c.Storage.Bucket == "" {
			return invalid("storage.bucket is required when storage is enabled")
		}
		if c.Storage.PresignExpiry <= 0 || c.Storage.PresignExpiry > maxPresignExpiry {
			return invalid("storage.presign_expiry %s must be in (0, 168h]", c.Storage.PresignExpiry)
		}
		if c.Storage.RetentionDays < 0 {
			return invalid("storage.retention_days must be ≥ 0, got %d", c.Storage.RetentionDays)
		}
	}

	// Events
	if c.Events.Enabled {
		if len(c.Events.Brokers) == 0 {
			return invalid("events.brokers must contain at least one broker address")
		}
		if c.Events.StageTopic == "" || c.Events.RunTopic == "" {
			return invalid("events.stage_topic and events.run_topic are required")
		}
		switch c.Events.Acks {
		case "none", "one", "all":
		default:
			return invalid("events.acks %q is invalid; expected none|one|all", c.Events.Acks)
		}
		switch c.Events.Compression {
		case "", "gzip", "snappy", "lz4", "zstd":
		default:
			return invalid("events.compression %q is invalid", c.Events.Compression)
		}
		switch c.Events.SASLMechanism {
		case "", "PLAIN", "SCRAM-SHA-256", "SCRAM-SHA-512":
		default:
			return invalid("events.sasl_mechanism %q is invalid", c.Events.SASLMechanism)
		}
		if c.Events.EnsureTopics && (c.Events.Partitions <= 0 || c.Events.ReplicationFactor <= 0) {
			return invalid("events.partitions and events.replication_factor must be > 0 when ensure_topics is set")
		}
	}

	// Metrics
	if c.Metrics.Enabled && c.Metrics.Textfile == "" {
		return invalid("metrics.textfile is required when metrics are enabled")
	}

	// Log
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return invalid("log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return invalid("log.format %q is invalid; expected json|console", c.Log.Format)
	}

	return nil
}

func invalid(format string, args ...interface{}) error {
	return errors.New(errors.ErrCodeConfigInvalid, "config: "+fmt.Sprintf(format, args...))
}
