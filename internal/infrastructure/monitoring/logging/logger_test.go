package logging

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
)

// newTestLogger returns a debug-level JSON logger writing into a buffer.
func newTestLogger(t *testing.T) (Logger, *zaptest.Buffer) {
	t.Helper()
	buf := &zaptest.Buffer{}
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), buf, zapcore.DebugLevel)
	return NewLoggerFromCore(core), buf
}

func TestNewLogger_Formats(t *testing.T) {
	for _, format := range []string{"json", "console"} {
		l, err := NewLogger(LogConfig{Level: LevelDebug, Format: format})
		require.NoError(t, err, format)
		assert.NotNil(t, l)
	}
}

func TestNewLogger_BadOutputPath(t *testing.T) {
	_, err := NewLogger(LogConfig{OutputPaths: []string{"/nonexistent-dir/sub/dockpipe.log"}})
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, ParseLevel("warn"))
	assert.Equal(t, zapcore.ErrorLevel, ParseLevel(" error "))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("verbose"))
}

func TestZapLogger_WritesTypedFields(t *testing.T) {
	l, buf := newTestLogger(t)

	l.Info("stage completed",
		RunID("run-1"),
		Stage("docking"),
		Tool("vina"),
		Int("poses", 9),
		Float64("best", -7.2),
		Duration("elapsed", 2*time.Second),
		Strings("args", []string{"--receptor", "r.pdbqt"}),
		Bool("ok", true),
	)

	out := buf.String()
	assert.Contains(t, out, `"msg":"stage completed"`)
	assert.Contains(t, out, `"run_id":"run-1"`)
	assert.Contains(t, out, `"stage":"docking"`)
	assert.Contains(t, out, `"tool":"vina"`)
	assert.Contains(t, out, `"poses":9`)
	assert.Contains(t, out, `"best":-7.2`)
	assert.Contains(t, out, `"args":["--receptor","r.pdbqt"]`)
}

func TestZapLogger_Levels(t *testing.T) {
	l, buf := newTestLogger(t)
	l.Debug("d")
	l.Warn("w")
	l.Error("e", Err(errors.New("boom")))

	out := buf.String()
	assert.Contains(t, out, `"level":"debug"`)
	assert.Contains(t, out, `"level":"warn"`)
	assert.Contains(t, out, `"error":"boom"`)
}

func TestZapLogger_WithAndNamed(t *testing.T) {
	l, buf := newTestLogger(t)
	child := l.Named("invoker").With(RunID("abc"))
	child.Info("hello")

	out := buf.String()
	assert.Contains(t, out, `"logger":"invoker"`)
	assert.Contains(t, out, `"run_id":"abc"`)
}

func TestErr_Nil(t *testing.T) {
	assert.Equal(t, "<nil>", Err(nil).Value)
}

func TestNopLogger(t *testing.T) {
	l := NewNopLogger()
	l.Debug("x")
	l.Info("x")
	l.Warn("x")
	l.Error("x")
	assert.Equal(t, l, l.With(String("k", "v")))
	assert.Equal(t, l, l.Named("n"))
	assert.NoError(t, l.Sync())
}

func TestDefault_SetAndGet(t *testing.T) {
	orig := Default()
	t.Cleanup(func() { SetDefault(orig) })

	l, _ := newTestLogger(t)
	SetDefault(l)
	assert.Equal(t, l, Default())

	SetDefault(nil)
	assert.Equal(t, l, Default(), "nil must be ignored")
}
