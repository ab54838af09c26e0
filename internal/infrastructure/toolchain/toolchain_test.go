package toolchain

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/DockPipe/internal/config"
	"github.com/turtacn/DockPipe/internal/domain/docking"
	"github.com/turtacn/DockPipe/pkg/errors"
)

func newToolchain(t *testing.T, mutate func(*config.ToolsConfig)) *Toolchain {
	t.Helper()
	cfg := config.Default().Tools
	if mutate != nil {
		mutate(&cfg)
	}
	tc, err := New(cfg, nil)
	require.NoError(t, err)
	return tc
}

func TestConvert(t *testing.T) {
	tc := newToolchain(t, nil)
	inv := tc.Convert("ligand.sdf", "ligand.pdbqt")

	assert.Equal(t, ToolConverter, inv.Tool)
	assert.Equal(t, "obabel", inv.Path)
	assert.Equal(t, []string{"ligand.sdf", "-O", "ligand.pdbqt"}, inv.Args)
	assert.Equal(t, []string{"ligand.sdf"}, inv.RequiredInputs)
	assert.Equal(t, "ligand.pdbqt", inv.ExpectedOutput)

	tc = newToolchain(t, func(c *config.ToolsConfig) { c.Gen3D = true })
	assert.Equal(t, []string{"ligand.sdf", "-O", "ligand.pdbqt", "--gen3d"}, tc.Convert("ligand.sdf", "ligand.pdbqt").Args)
	assert.NotContains(t, tc.ConvertPlain("c.pdbqt", "c.pdb").Args, "--gen3d")
}

func TestPrepareReceptor(t *testing.T) {
	tc := newToolchain(t, nil)
	inv := tc.PrepareReceptor("receptor.pdb", "receptor.pdbqt")

	script, _ := filepath.Abs(config.DefaultPrepScript)
	assert.Equal(t, "python2", inv.Path)
	assert.Equal(t, []string{script, "-r", "receptor.pdb", "-o", "receptor.pdbqt"}, inv.Args)
	assert.Equal(t, "receptor.pdbqt", inv.ExpectedOutput)

	tc = newToolchain(t, func(c *config.ToolsConfig) { c.Hydrogens = "hydrogens" })
	args := tc.PrepareReceptor("r.pdb", "r.pdbqt").Args
	assert.Equal(t, []string{"-A", "hydrogens"}, args[len(args)-2:])
}

func TestDock(t *testing.T) {
	tc := newToolchain(t, nil)
	box := docking.SearchBox{Center: docking.Vec3{1.5, -2, 0}, Size: docking.Vec3{20, 22.25, 18}}

	inv := tc.Dock(EngineParams{
		Receptor: "receptor.pdbqt",
		Ligand:   "ligand.pdbqt",
		Box:      box,
		Out:      "docked_output.pdbqt",
		Log:      "docking_log.txt",
	})

	engine, _ := filepath.Abs(config.DefaultEngine)
	assert.Equal(t, engine, inv.Path)
	assert.Equal(t, []string{
		"--receptor", "receptor.pdbqt",
		"--ligand", "ligand.pdbqt",
		"--center_x", "1.5", "--center_y", "-2", "--center_z", "0",
		"--size_x", "20", "--size_y", "22.25", "--size_z", "18",
		"--out", "docked_output.pdbqt",
		"--log", "docking_log.txt",
	}, inv.Args)
	assert.Equal(t, []string{"receptor.pdbqt", "ligand.pdbqt"}, inv.RequiredInputs)
	assert.Equal(t, "docked_output.pdbqt", inv.ExpectedOutput)
}

func TestDock_OptionalFlags(t *testing.T) {
	tc := newToolchain(t, nil)
	inv := tc.Dock(EngineParams{Exhaustiveness: 16, NumModes: 9, CPU: 4, Seed: 42})
	assert.Equal(t, []string{
		"--exhaustiveness", "16", "--num_modes", "9", "--cpu", "4", "--seed", "42",
	}, inv.Args[len(inv.Args)-8:])
}

func TestSplit(t *testing.T) {
	tc := newToolchain(t, nil)
	inv := tc.Split("docked_output.pdbqt", "poses/pose_")
	assert.Equal(t, []string{"--input", "docked_output.pdbqt", "--ligand", "poses/pose_"}, inv.Args)
	assert.Empty(t, inv.ExpectedOutput)
}

func TestNew_RejectsEmptyPath(t *testing.T) {
	_, err := New(config.ToolsConfig{PrepScript: "x"}, nil)
	assert.True(t, errors.IsCode(err, errors.ErrCodeConfigInvalid))
}

func writeFile(t *testing.T, path string, mode os.FileMode) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), mode))
	require.NoError(t, os.Chmod(path, mode))
}

func TestCheckAndFixPermissions(t *testing.T) {
	dir := t.TempDir()
	engine := filepath.Join(dir, "vina")
	splitter := filepath.Join(dir, "vina_split")
	script := filepath.Join(dir, "prepare_receptor4.py")
	writeFile(t, engine, 0o644)
	writeFile(t, splitter, 0o755)
	writeFile(t, script, 0o644)

	tc := newToolchain(t, func(c *config.ToolsConfig) {
		c.Converter = "sh"
		c.PrepRunner = "sh"
		c.PrepScript = script
		c.Engine = engine
		c.Splitter = splitter
	})

	byName := func(st []ToolStatus) map[string]ToolStatus {
		m := make(map[string]ToolStatus)
		for _, s := range st {
			m[s.Name] = s
		}
		return m
	}

	before := byName(tc.Check())
	assert.True(t, before[ToolConverter].OK())
	assert.True(t, before[ToolReceptorPrep+"_script"].OK())
	assert.True(t, before[ToolEngine].Found)
	assert.False(t, before[ToolEngine].Executable)
	assert.Equal(t, "not executable", before[ToolEngine].Problem)
	assert.True(t, before[ToolSplitter].OK())

	err := tc.Ready()
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeToolUnavailable))
	assert.Contains(t, err.Error(), ToolEngine)

	fixed, err := tc.FixPermissions()
	require.NoError(t, err)
	assert.Equal(t, []string{engine}, fixed)

	after := byName(tc.Check())
	assert.True(t, after[ToolEngine].OK())
	assert.NoError(t, tc.Ready())
}

func TestCheck_Missing(t *testing.T) {
	dir := t.TempDir()
	tc := newToolchain(t, func(c *config.ToolsConfig) {
		c.Engine = filepath.Join(dir, "vina")
		c.PrepScript = filepath.Join(dir, "missing.py")
	})
	for _, s := range tc.Check() {
		if s.Name == ToolEngine || s.Name == ToolReceptorPrep+"_script" {
			assert.False(t, s.Found, s.Name)
			assert.Equal(t, "not found", s.Problem)
		}
	}

	_, err := tc.FixPermissions()
	assert.True(t, errors.IsCode(err, errors.ErrCodeToolUnavailable))
}
