package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/DockPipe/pkg/errors"
)

func TestBoxCommand(t *testing.T) {
	env := newScriptEnv(t, fakeConverter)

	stdout, _, err := execute(t, "--config", env.config, "box", "--structure", env.receptor, "--padding", "0")
	require.NoError(t, err)
	assert.Contains(t, stdout, "center_x = 1.000")
	assert.Contains(t, stdout, "center_z = 3.000")
	assert.Contains(t, stdout, "size_y = 4.000")
}

func TestBoxCommand_DefaultPaddingFromConfig(t *testing.T) {
	env := newScriptEnv(t, fakeConverter)

	stdout, _, err := execute(t, "--config", env.config, "-o", "json", "box", "--structure", env.receptor)
	require.NoError(t, err)

	var out boxView
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	assert.Equal(t, 10.0, out.Padding)
	assert.Equal(t, 2, out.Atoms)
	assert.InDelta(t, 16.0, out.Box.Size[2], 1e-9)
}

func TestBoxCommand_UnsupportedFormat(t *testing.T) {
	env := newScriptEnv(t, fakeConverter)
	path := writeFile(t, filepath.Join(env.dir, "x.xyz"), "1\n", 0o644)

	_, _, err := execute(t, "--config", env.config, "box", "--structure", path)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeStructureUnsupported))
}

func TestScoresCommand(t *testing.T) {
	env := newScriptEnv(t, fakeConverter)
	log := writeFile(t, filepath.Join(env.dir, "log.txt"), strings.Join([]string{
		"mode |   affinity",
		"REMARK VINA RESULT: -7.2 0.000 0.000",
		"REMARK VINA RESULT: -6.8 1.2 2.3",
		"",
	}, "\n"), 0o644)

	stdout, _, err := execute(t, "--config", env.config, "scores", "--log", log)
	require.NoError(t, err)
	assert.Contains(t, stdout, "1\t-7.2")
	assert.Contains(t, stdout, "2\t-6.8")

	stdout, _, err = execute(t, "--config", env.config, "-o", "json", "scores", "--log", log)
	require.NoError(t, err)
	var parsed struct {
		Poses []struct {
			Index    int     `json:"index"`
			Affinity float64 `json:"affinity_kcal_mol"`
		} `json:"poses"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &parsed))
	require.Len(t, parsed.Poses, 2)
	assert.Equal(t, -6.8, parsed.Poses[1].Affinity)
}

func TestScoresCommand_Policies(t *testing.T) {
	env := newScriptEnv(t, fakeConverter)
	log := writeFile(t, filepath.Join(env.dir, "log.txt"),
		"REMARK VINA RESULT: -7.2 0 0\nREMARK VINA RESULT: n/a 0 0\nREMARK VINA RESULT: -5.0 0 0\n", 0o644)

	_, _, err := execute(t, "--config", env.config, "scores", "--log", log)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeMalformedLog))

	stdout, _, err := execute(t, "--config", env.config, "scores", "--log", log, "--policy", "skip")
	require.NoError(t, err)
	assert.Contains(t, stdout, "3\t-5.0")
	assert.Contains(t, stdout, "1 malformed line(s) skipped")

	_, _, err = execute(t, "--config", env.config, "scores", "--log", log, "--policy", "lenient")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeBadRequest))
}

func TestScoresCommand_MissingFile(t *testing.T) {
	env := newScriptEnv(t, fakeConverter)
	_, _, err := execute(t, "--config", env.config, "scores", "--log", filepath.Join(env.dir, "absent.txt"))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeMalformedLog))
}

func TestToolsCommand_AllPresent(t *testing.T) {
	env := newScriptEnv(t, fakeConverter)

	stdout, _, err := execute(t, "--config", env.config, "tools")
	require.NoError(t, err)
	assert.Contains(t, stdout, "engine")
	assert.NotContains(t, stdout, "not found")
}

func TestToolsCommand_FixPermissions(t *testing.T) {
	env := newScriptEnv(t, fakeConverter)
	engine := filepath.Join(env.dir, "bin", "engine.sh")
	require.NoError(t, os.Chmod(engine, 0o644))

	_, _, err := execute(t, "--config", env.config, "tools")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeToolUnavailable))

	stdout, _, err := execute(t, "--config", env.config, "tools", "--fix-permissions")
	require.NoError(t, err)
	assert.Contains(t, stdout, "made executable: "+engine)

	info, err := os.Stat(engine)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o111), info.Mode()&0o111)
}

func TestToolsCommand_TableOutput(t *testing.T) {
	env := newScriptEnv(t, fakeConverter)

	stdout, _, err := execute(t, "--config", env.config, "-o", "table", "tools")
	require.NoError(t, err)
	assert.Contains(t, stdout, "receptor_prep_script")
}
