package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/DockPipe/pkg/errors"
)

const (
	fakeConverter = `#!/bin/sh
cp "$1" "$3"
`
	fakePrepScript = `cp "$2" "$4"
`
	fakeEngine = `#!/bin/sh
while [ $# -gt 0 ]; do
  case "$1" in
    --out) out="$2"; shift 2 ;;
    --log) log="$2"; shift 2 ;;
    *) shift ;;
  esac
done
printf 'MODEL 1\nENDMDL\nMODEL 2\nENDMDL\n' > "$out"
printf 'REMARK VINA RESULT: -7.2 0.000 0.000\nREMARK VINA RESULT: -6.8 0.000 0.000\n' > "$log"
`
	fakeSplitter = `#!/bin/sh
while [ $# -gt 0 ]; do
  case "$1" in
    --ligand) prefix="$2"; shift 2 ;;
    *) shift ;;
  esac
done
printf 'MODEL 1\nENDMDL\n' > "${prefix}1.pdbqt"
printf 'MODEL 2\nENDMDL\n' > "${prefix}2.pdbqt"
`
	failingConverter = `#!/bin/sh
echo "obabel: cannot read input format of $1" >&2
exit 1
`
)

func pdbAtom(serial int, x, y, z float64) string {
	return fmt.Sprintf("%-6s%5d %-4s %3s %1s%4d    %8.3f%8.3f%8.3f%6.2f%6.2f          %2s",
		"ATOM", serial, "CA", "ALA", "A", 1, x, y, z, 1.0, 0.0, "C")
}

// scriptEnv is a directory of fake tools plus a config pointing at them.
type scriptEnv struct {
	dir      string
	config   string
	ligand   string
	receptor string
	metrics  string
}

func newScriptEnv(t *testing.T, converter string) *scriptEnv {
	t.Helper()
	dir := t.TempDir()
	bin := filepath.Join(dir, "bin")
	env := &scriptEnv{dir: dir, metrics: filepath.Join(dir, "metrics", "dockpipe.prom")}

	conv := writeFile(t, filepath.Join(bin, "convert.sh"), converter, 0o755)
	prep := writeFile(t, filepath.Join(bin, "prepare_receptor.sh"), fakePrepScript, 0o644)
	engine := writeFile(t, filepath.Join(bin, "engine.sh"), fakeEngine, 0o755)
	split := writeFile(t, filepath.Join(bin, "split.sh"), fakeSplitter, 0o755)

	env.ligand = writeFile(t, filepath.Join(dir, "in", "ligand.sdf"), "ligand\n$$$$\n", 0o644)
	env.receptor = writeFile(t, filepath.Join(dir, "in", "receptor.pdb"),
		strings.Join([]string{pdbAtom(1, 0, 0, 0), pdbAtom(2, 2, 4, 6), "END", ""}, "\n"), 0o644)

	env.config = writeConfig(t, dir, fmt.Sprintf(`tools:
  converter: %s
  prep_runner: /bin/sh
  prep_script: %s
  engine: %s
  splitter: %s
staging:
  root: %s
  keep: true
metrics:
  enabled: true
  textfile: %s
  namespace: dockpipe
log:
  level: error
`, conv, prep, engine, split, filepath.Join(dir, "runs"), env.metrics))
	return env
}

func TestRunCommand_EndToEnd(t *testing.T) {
	env := newScriptEnv(t, fakeConverter)

	stdout, _, err := execute(t, "--config", env.config, "-o", "json",
		"run", "--ligand", env.ligand, "--receptor", env.receptor, "--run-id", "e2e")
	require.NoError(t, err)

	var report map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(stdout), &report))
	assert.Equal(t, "done", report["stage"])
	assert.Equal(t, "e2e", report["run_id"])
	assert.Len(t, report["complexes"], 2)

	runDir := filepath.Join(env.dir, "runs", "e2e")
	assert.FileExists(t, filepath.Join(runDir, "complexes.zip"))
	assert.FileExists(t, filepath.Join(runDir, "top_complex.pdb"))

	complex1, err := os.ReadFile(filepath.Join(runDir, "complexes", "complex_1.pdbqt"))
	require.NoError(t, err)
	assert.Contains(t, string(complex1), "ATOM")
	assert.Contains(t, string(complex1), "MODEL 1")

	metrics, err := os.ReadFile(env.metrics)
	require.NoError(t, err)
	assert.Contains(t, string(metrics), `dockpipe_runs_total{result="success"} 1`)
	assert.Contains(t, string(metrics), `dockpipe_tool_invocations_total{result="success",tool="engine"} 1`)
}

func TestRunCommand_TableOutput(t *testing.T) {
	env := newScriptEnv(t, fakeConverter)

	stdout, _, err := execute(t, "--config", env.config, "-o", "table",
		"run", "--ligand", env.ligand, "--receptor", env.receptor)
	require.NoError(t, err)
	assert.Contains(t, stdout, "-7.2")
	assert.Contains(t, stdout, "complex_2.pdbqt")
}

func TestRunCommand_ManualBox(t *testing.T) {
	env := newScriptEnv(t, fakeConverter)

	stdout, _, err := execute(t, "--config", env.config,
		"run", "--ligand", env.ligand, "--receptor", env.receptor,
		"--center", "1,2,3", "--size", "20,20,20")
	require.NoError(t, err)
	assert.Contains(t, stdout, "(manual)")
}

func TestRunCommand_StageFailure(t *testing.T) {
	env := newScriptEnv(t, failingConverter)

	stdout, stderr, err := execute(t, "--config", env.config,
		"run", "--ligand", env.ligand, "--receptor", env.receptor)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeStageFailed))

	assert.Contains(t, stdout, "Failed:   ligand_conversion")
	assert.Contains(t, stderr, "Failed stage: ligand_conversion")
	assert.Contains(t, stderr, "obabel: cannot read input format")

	metrics, readErr := os.ReadFile(env.metrics)
	require.NoError(t, readErr)
	assert.Contains(t, string(metrics), `dockpipe_stage_failures_total{stage="ligand_conversion"} 1`)
}

func TestRunCommand_FlagValidation(t *testing.T) {
	env := newScriptEnv(t, fakeConverter)

	_, _, err := execute(t, "--config", env.config, "run", "--ligand", env.ligand)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "receptor")

	_, _, err = execute(t, "--config", env.config,
		"run", "--ligand", env.ligand, "--receptor", env.receptor, "--center", "1,2,3")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeBadRequest))

	_, _, err = execute(t, "--config", env.config,
		"run", "--ligand", env.ligand, "--receptor", env.receptor, "--center", "1,2", "--size", "1,1,1")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidBox))
}

func TestRunCommand_DiscardedWorkspaceOmitsPaths(t *testing.T) {
	env := newScriptEnv(t, fakeConverter)
	t.Setenv("DOCKPIPE_STAGING_KEEP", "false")

	stdout, _, err := execute(t, "--config", env.config,
		"run", "--ligand", env.ligand, "--receptor", env.receptor, "--run-id", "gone")
	require.NoError(t, err)
	assert.NoDirExists(t, filepath.Join(env.dir, "runs", "gone"))

	assert.Contains(t, stdout, "Best:     pose 1, -7.2 kcal/mol")
	assert.NotContains(t, stdout, "Dir:")
	assert.NotContains(t, stdout, "Archive:")
	assert.NotContains(t, stdout, "Top pose:")
	assert.NotContains(t, stdout, "complex_1.pdbqt")
}
