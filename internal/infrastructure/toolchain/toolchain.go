// Package toolchain builds the command lines of the four external tools the
// docking pipeline drives: the format converter, the receptor preparation
// script, the docking engine and the pose splitter.
package toolchain

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/turtacn/DockPipe/internal/config"
	"github.com/turtacn/DockPipe/internal/domain/docking"
	"github.com/turtacn/DockPipe/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/DockPipe/internal/infrastructure/toolexec"
	"github.com/turtacn/DockPipe/pkg/errors"
)

// Logical tool names used in logs, metrics and Invocation.Tool.
const (
	ToolConverter    = "converter"
	ToolReceptorPrep = "receptor_prep"
	ToolEngine       = "engine"
	ToolSplitter     = "splitter"
)

// Toolchain turns pipeline steps into toolexec.Invocations.  Tool paths that
// contain a directory component are made absolute at construction so that
// invocations can run inside a per-run working directory.
type Toolchain struct {
	converter  string
	prepRunner string
	prepScript string
	engine     string
	splitter   string
	gen3d      bool
	hydrogens  string
	logger     logging.Logger
}

// New resolves the configured tool locations.
func New(cfg config.ToolsConfig, logger logging.Logger) (*Toolchain, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	tc := &Toolchain{
		gen3d:     cfg.Gen3D,
		hydrogens: cfg.Hydrogens,
		logger:    logger.Named("toolchain"),
	}
	var err error
	if tc.converter, err = resolveBinary(cfg.Converter); err != nil {
		return nil, err
	}
	if tc.prepRunner, err = resolveBinary(cfg.PrepRunner); err != nil {
		return nil, err
	}
	if tc.engine, err = resolveBinary(cfg.Engine); err != nil {
		return nil, err
	}
	if tc.splitter, err = resolveBinary(cfg.Splitter); err != nil {
		return nil, err
	}
	if tc.prepScript, err = filepath.Abs(cfg.PrepScript); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "resolve tools.prep_script")
	}
	return tc, nil
}

// resolveBinary leaves bare command names for PATH lookup and makes paths
// with a directory component absolute.
func resolveBinary(p string) (string, error) {
	if p == "" {
		return "", errors.New(errors.ErrCodeConfigInvalid, "empty tool path")
	}
	if !strings.ContainsRune(p, filepath.Separator) {
		return p, nil
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeConfigInvalid, "resolve tool path "+p)
	}
	return abs, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Command builders
// ─────────────────────────────────────────────────────────────────────────────

// Convert builds `<converter> <in> -O <out> [--gen3d]`.
func (t *Toolchain) Convert(in, out string) toolexec.Invocation {
	args := []string{in, "-O", out}
	if t.gen3d {
		args = append(args, "--gen3d")
	}
	return toolexec.Invocation{
		Tool:           ToolConverter,
		Path:           t.converter,
		Args:           args,
		RequiredInputs: []string{in},
		ExpectedOutput: out,
	}
}

// ConvertPlain is Convert without --gen3d, used for already-3D complexes.
func (t *Toolchain) ConvertPlain(in, out string) toolexec.Invocation {
	return toolexec.Invocation{
		Tool:           ToolConverter,
		Path:           t.converter,
		Args:           []string{in, "-O", out},
		RequiredInputs: []string{in},
		ExpectedOutput: out,
	}
}

// PrepareReceptor builds `<runner> <script> -r <in> -o <out> [-A <hydrogens>]`.
func (t *Toolchain) PrepareReceptor(in, out string) toolexec.Invocation {
	args := []string{t.prepScript, "-r", in, "-o", out}
	if t.hydrogens != "" {
		args = append(args, "-A", t.hydrogens)
	}
	return toolexec.Invocation{
		Tool:           ToolReceptorPrep,
		Path:           t.prepRunner,
		Args:           args,
		RequiredInputs: []string{in},
		ExpectedOutput: out,
	}
}

// EngineParams are the inputs of one docking engine call.
type EngineParams struct {
	Receptor string
	Ligand   string
	Box      docking.SearchBox
	Out      string
	Log      string

	// Optional search settings; zero leaves the engine default.
	Exhaustiveness int
	NumModes       int
	CPU            int
	Seed           int64
}

// Dock builds the engine command line.  Only the docked output is declared
// as the expected artifact; the log is checked by the score parser.
func (t *Toolchain) Dock(p EngineParams) toolexec.Invocation {
	args := []string{
		"--receptor", p.Receptor,
		"--ligand", p.Ligand,
		"--center_x", formatFloat(p.Box.Center[0]),
		"--center_y", formatFloat(p.Box.Center[1]),
		"--center_z", formatFloat(p.Box.Center[2]),
		"--size_x", formatFloat(p.Box.Size[0]),
		"--size_y", formatFloat(p.Box.Size[1]),
		"--size_z", formatFloat(p.Box.Size[2]),
		"--out", p.Out,
		"--log", p.Log,
	}
	if p.Exhaustiveness > 0 {
		args = append(args, "--exhaustiveness", strconv.Itoa(p.Exhaustiveness))
	}
	if p.NumModes > 0 {
		args = append(args, "--num_modes", strconv.Itoa(p.NumModes))
	}
	if p.CPU > 0 {
		args = append(args, "--cpu", strconv.Itoa(p.CPU))
	}
	if p.Seed > 0 {
		args = append(args, "--seed", strconv.FormatInt(p.Seed, 10))
	}
	return toolexec.Invocation{
		Tool:           ToolEngine,
		Path:           t.engine,
		Args:           args,
		RequiredInputs: []string{p.Receptor, p.Ligand},
		ExpectedOutput: p.Out,
	}
}

// Split builds `<splitter> --input <docked> --ligand <prefix>`.  The
// splitter writes a variable number of files, so no single output is
// declared; the caller globs <prefix>*.
func (t *Toolchain) Split(docked, prefix string) toolexec.Invocation {
	return toolexec.Invocation{
		Tool:           ToolSplitter,
		Path:           t.splitter,
		Args:           []string{"--input", docked, "--ligand", prefix},
		RequiredInputs: []string{docked},
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// ─────────────────────────────────────────────────────────────────────────────
// Availability
// ─────────────────────────────────────────────────────────────────────────────

// ToolStatus reports whether one tool can be started.
type ToolStatus struct {
	Name       string `json:"name"`
	Path       string `json:"path"`
	Resolved   string `json:"resolved,omitempty"`
	Found      bool   `json:"found"`
	Executable bool   `json:"executable"`
	Problem    string `json:"problem,omitempty"`
}

// OK reports whether the tool is present and runnable.
func (s ToolStatus) OK() bool {
	return s.Found && s.Executable
}

// Check inspects every tool.  The prep script only needs to exist; it is
// run through its interpreter.
func (t *Toolchain) Check() []ToolStatus {
	out := []ToolStatus{
		checkBinary(ToolConverter, t.converter),
		checkBinary(ToolReceptorPrep, t.prepRunner),
		checkScript(ToolReceptorPrep+"_script", t.prepScript),
		checkBinary(ToolEngine, t.engine),
		checkBinary(ToolSplitter, t.splitter),
	}
	for _, s := range out {
		if !s.OK() {
			t.logger.Warn("tool unavailable", logging.Tool(s.Name), logging.String("path", s.Path), logging.String("problem", s.Problem))
		}
	}
	return out
}

// Ready returns ErrCodeToolUnavailable naming every tool that fails Check.
func (t *Toolchain) Ready() error {
	var missing []string
	for _, s := range t.Check() {
		if !s.OK() {
			missing = append(missing, fmt.Sprintf("%s (%s)", s.Name, s.Problem))
		}
	}
	if len(missing) > 0 {
		return errors.New(errors.ErrCodeToolUnavailable, "external tools unavailable").
			WithDetail(strings.Join(missing, ", "))
	}
	return nil
}

func checkBinary(name, p string) ToolStatus {
	st := ToolStatus{Name: name, Path: p}
	resolved, err := exec.LookPath(p)
	if err != nil {
		info, statErr := os.Stat(p)
		switch {
		case statErr != nil:
			st.Problem = "not found"
		case info.IsDir():
			st.Found = true
			st.Problem = "is a directory"
		default:
			st.Found = true
			st.Resolved = p
			st.Problem = "not executable"
		}
		return st
	}
	st.Resolved = resolved
	st.Found = true
	st.Executable = true
	return st
}

func checkScript(name, p string) ToolStatus {
	st := ToolStatus{Name: name, Path: p, Resolved: p}
	info, err := os.Stat(p)
	if err != nil {
		st.Problem = "not found"
		return st
	}
	st.Found = true
	st.Executable = info.Mode().IsRegular()
	if !st.Executable {
		st.Problem = "not a regular file"
	}
	return st
}

// FixPermissions adds the execute bits to the engine and splitter when they
// are local files, as shipped binaries often lose them on upload.  Tools
// found through PATH are left alone.
func (t *Toolchain) FixPermissions() ([]string, error) {
	var fixed []string
	for _, p := range []string{t.engine, t.splitter} {
		if !filepath.IsAbs(p) {
			continue
		}
		info, err := os.Stat(p)
		if err != nil {
			return fixed, errors.Wrap(err, errors.ErrCodeToolUnavailable, "stat "+p)
		}
		if info.Mode()&0o111 == 0o111 {
			continue
		}
		if err := os.Chmod(p, info.Mode()|0o111); err != nil {
			return fixed, errors.Wrap(err, errors.ErrCodeToolUnavailable, "chmod "+p)
		}
		t.logger.Info("made tool executable", logging.String("path", p))
		fixed = append(fixed, p)
	}
	return fixed, nil
}
