package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/DockPipe/internal/config"
	"github.com/turtacn/DockPipe/pkg/errors"
)

// validConfig returns a Config that passes Validate().
func validConfig() *config.Config {
	return config.Default()
}

func requireInvalid(t *testing.T, cfg *config.Config, fragment string) {
	t.Helper()
	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeConfigInvalid))
	assert.Contains(t, err.Error(), fragment)
}

func TestConfig_Validate_ValidConfig(t *testing.T) {
	t.Parallel()
	assert.NoError(t, validConfig().Validate())
}

func TestConfig_Validate_MissingTools(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Tools.Converter = ""
	requireInvalid(t, cfg, "tools.converter")

	cfg = validConfig()
	cfg.Tools.PrepScript = ""
	requireInvalid(t, cfg, "tools.prep_script")

	cfg = validConfig()
	cfg.Tools.Engine = ""
	requireInvalid(t, cfg, "tools.engine")

	cfg = validConfig()
	cfg.Tools.Splitter = ""
	requireInvalid(t, cfg, "tools.splitter")
}

func TestConfig_Validate_Docking(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Docking.Padding = -1
	requireInvalid(t, cfg, "docking.padding")

	cfg = validConfig()
	cfg.Docking.Timeout = -time.Second
	requireInvalid(t, cfg, "docking.timeout")

	cfg = validConfig()
	cfg.Docking.NumModes = -3
	requireInvalid(t, cfg, "num_modes")

	cfg = validConfig()
	cfg.Docking.ScorePolicy = "lenient"
	requireInvalid(t, cfg, "docking.score_policy")

	cfg = validConfig()
	cfg.Docking.ScoreSource = "stdout"
	requireInvalid(t, cfg, "docking.score_source")

	cfg = validConfig()
	cfg.Docking.BoxSource = "pocket"
	requireInvalid(t, cfg, "docking.box_source")
}

func TestConfig_Validate_ZeroPaddingAllowed(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Docking.Padding = 0
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate_StorageOnlyCheckedWhenEnabled(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Storage.Endpoint = ""
	assert.NoError(t, cfg.Validate())

	cfg.Storage.Enabled = true
	requireInvalid(t, cfg, "storage.endpoint")

	cfg.Storage.Endpoint = "localhost:9000"
	cfg.Storage.PresignExpiry = 8 * 24 * time.Hour
	requireInvalid(t, cfg, "storage.presign_expiry")

	cfg.Storage.PresignExpiry = time.Hour
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate_EventsOnlyCheckedWhenEnabled(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Events.Brokers = nil
	assert.NoError(t, cfg.Validate())

	cfg.Events.Enabled = true
	requireInvalid(t, cfg, "events.brokers")
}

func TestConfig_Validate_EventsProducerSettings(t *testing.T) {
	t.Parallel()

	enabled := func() *config.Config {
		cfg := validConfig()
		cfg.Events.Enabled = true
		return cfg
	}
	assert.NoError(t, enabled().Validate())

	cfg := enabled()
	cfg.Events.Acks = "two"
	requireInvalid(t, cfg, "events.acks")

	cfg = enabled()
	cfg.Events.Compression = "brotli"
	requireInvalid(t, cfg, "events.compression")

	cfg = enabled()
	cfg.Events.SASLMechanism = "GSSAPI"
	requireInvalid(t, cfg, "events.sasl_mechanism")

	cfg = enabled()
	cfg.Events.EnsureTopics = true
	cfg.Events.ReplicationFactor = 0
	requireInvalid(t, cfg, "events.partitions")
}

func TestConfig_Validate_Metrics(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Metrics.Enabled = true
	cfg.Metrics.Textfile = ""
	requireInvalid(t, cfg, "metrics.textfile")
}

func TestConfig_Validate_Log(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Log.Level = "trace"
	requireInvalid(t, cfg, "log.level")

	cfg = validConfig()
	cfg.Log.Format = "text"
	requireInvalid(t, cfg, "log.format")
}
