// Package config provides configuration loading, defaults, and validation for
// DockPipe.
package config

import (
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/turtacn/DockPipe/pkg/errors"
)

// envPrefix is the environment variable prefix used by all DockPipe settings.
const envPrefix = "DOCKPIPE"

// newViper builds a pre-configured Viper instance: YAML file type, DOCKPIPE_
// env prefix, automatic env binding, and a key replacer that maps "." → "_"
// so that nested keys like "docking.timeout" resolve to
// "DOCKPIPE_DOCKING_TIMEOUT".
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	registerDefaults(v)
	return v
}

// registerDefaults records defaults for keys whose zero value is meaningful.
// Registering every key also lets AutomaticEnv resolve them during Unmarshal.
func registerDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("tools.converter", d.Tools.Converter)
	v.SetDefault("tools.prep_runner", d.Tools.PrepRunner)
	v.SetDefault("tools.prep_script", d.Tools.PrepScript)
	v.SetDefault("tools.engine", d.Tools.Engine)
	v.SetDefault("tools.splitter", d.Tools.Splitter)
	v.SetDefault("tools.gen3d", false)
	v.SetDefault("tools.hydrogens", "")
	v.SetDefault("tools.env", []string{})

	v.SetDefault("docking.padding", d.Docking.Padding)
	v.SetDefault("docking.timeout", d.Docking.Timeout)
	v.SetDefault("docking.exhaustiveness", 0)
	v.SetDefault("docking.num_modes", 0)
	v.SetDefault("docking.cpu", 0)
	v.SetDefault("docking.seed", 0)
	v.SetDefault("docking.score_policy", d.Docking.ScorePolicy)
	v.SetDefault("docking.score_source", d.Docking.ScoreSource)
	v.SetDefault("docking.box_source", d.Docking.BoxSource)
	v.SetDefault("docking.parallel_prep", false)
	v.SetDefault("docking.top_pose_format", d.Docking.TopPoseFormat)

	v.SetDefault("staging.root", d.Staging.Root)
	v.SetDefault("staging.keep", d.Staging.Keep)

	v.SetDefault("storage.enabled", false)
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.access_key", "")
	v.SetDefault("storage.secret_key", "")
	v.SetDefault("storage.bucket", d.Storage.Bucket)
	v.SetDefault("storage.region", "")
	v.SetDefault("storage.use_ssl", false)
	v.SetDefault("storage.presign_expiry", d.Storage.PresignExpiry)
	v.SetDefault("storage.retention_days", 0)

	v.SetDefault("events.enabled", false)
	v.SetDefault("events.brokers", d.Events.Brokers)
	v.SetDefault("events.stage_topic", d.Events.StageTopic)
	v.SetDefault("events.run_topic", d.Events.RunTopic)
	v.SetDefault("events.write_timeout", d.Events.WriteTimeout)
	v.SetDefault("events.client_id", d.Events.ClientID)
	v.SetDefault("events.acks", d.Events.Acks)
	v.SetDefault("events.compression", "")
	v.SetDefault("events.sasl_mechanism", "")
	v.SetDefault("events.sasl_username", "")
	v.SetDefault("events.sasl_password", "")
	v.SetDefault("events.tls", false)
	v.SetDefault("events.tls_ca_path", "")
	v.SetDefault("events.ensure_topics", false)
	v.SetDefault("events.partitions", d.Events.Partitions)
	v.SetDefault("events.replication_factor", d.Events.ReplicationFactor)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.textfile", d.Metrics.Textfile)
	v.SetDefault("metrics.namespace", d.Metrics.Namespace)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.output", d.Log.Output)
}

// Load reads the YAML file at configPath, merges any DOCKPIPE_* environment
// overrides, applies defaults for unset fields, and validates the result.
// An empty configPath is equivalent to LoadFromEnv.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		return LoadFromEnv()
	}
	v := newViper()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigRead, "config: failed to read config file "+configPath)
	}

	return unmarshalAndFinalize(v)
}

// LoadFromEnv builds a Config entirely from DOCKPIPE_* environment variables
// and defaults, with no config file required.
//
//	DOCKPIPE_<SECTION>_<FIELD>   e.g.  DOCKPIPE_TOOLS_ENGINE, DOCKPIPE_DOCKING_TIMEOUT
func LoadFromEnv() (*Config, error) {
	return unmarshalAndFinalize(newViper())
}

// unmarshalAndFinalize unmarshals viper state into a Config struct, applies
// defaults, and validates the result.
func unmarshalAndFinalize(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigRead, "config: failed to unmarshal configuration")
	}

	ApplyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Watch monitors configPath and invokes onChange with the newly parsed Config
// whenever the file is modified.  A change that fails to parse or validate is
// reported to onError (when non-nil) and onChange is not called, so callers
// keep running on the last good configuration.
//
// Watch is non-blocking; viper manages the fsnotify goroutine.
func Watch(configPath string, onChange func(*Config), onError func(error)) error {
	v := newViper()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigRead, "config: failed to read config file "+configPath)
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := unmarshalAndFinalize(v)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}
