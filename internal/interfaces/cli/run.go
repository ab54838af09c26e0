package cli

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	appdock "github.com/turtacn/DockPipe/internal/application/docking"
	domainDock "github.com/turtacn/DockPipe/internal/domain/docking"
	"github.com/turtacn/DockPipe/pkg/errors"
)

type runFlags struct {
	ligand   string
	receptor string
	center   string
	size     string
	runID    string
}

func newRunCmd() *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Dock one ligand against one receptor",
		Long: "Convert the ligand, prepare the receptor, compute (or take) the search box,\n" +
			"dock, split the poses and write ranked receptor+pose complexes.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDocking(cmd, f)
		},
	}
	cmd.Flags().StringVar(&f.ligand, "ligand", "", "ligand file (.sdf, .mol, .pdb, .pdbqt; .mol2 only with a receptor or manual box) [REQUIRED]")
	cmd.Flags().StringVar(&f.receptor, "receptor", "", "receptor file (.pdb, .pdbqt) [REQUIRED]")
	cmd.Flags().StringVar(&f.center, "center", "", "manual box center x,y,z (requires --size)")
	cmd.Flags().StringVar(&f.size, "size", "", "manual box size x,y,z (requires --center)")
	cmd.Flags().StringVar(&f.runID, "run-id", "", "run identifier (default: random UUID)")
	_ = cmd.MarkFlagRequired("ligand")
	_ = cmd.MarkFlagRequired("receptor")
	return cmd
}

// buildRequest validates the flags into a Request.
func (f *runFlags) buildRequest() (appdock.Request, error) {
	req := appdock.Request{RunID: f.runID, Ligand: f.ligand, Receptor: f.receptor}
	if (f.center == "") != (f.size == "") {
		return req, errors.InvalidParam("--center and --size must be given together")
	}
	if f.center != "" {
		c, err := domainDock.ParseVec3(f.center)
		if err != nil {
			return req, err
		}
		s, err := domainDock.ParseVec3(f.size)
		if err != nil {
			return req, err
		}
		req.Center, req.Size = &c, &s
	}
	return req, nil
}

func runDocking(cmd *cobra.Command, f *runFlags) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	req, err := f.buildRequest()
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(cmd, cliCtx)
	defer cancel()

	p, err := buildPipeline(ctx, cliCtx.Config, cliCtx.Logger)
	if err != nil {
		return err
	}
	defer p.Close()

	report, runErr := p.orch.Run(ctx, req)
	if report != nil {
		if err := PrintResult(cmd, reportView{report}); err != nil {
			return err
		}
	}
	return runErr
}

// ─────────────────────────────────────────────────────────────────────────────
// Report rendering
// ─────────────────────────────────────────────────────────────────────────────

// reportView renders a RunReport for text and table output and marshals as
// the report itself.
type reportView struct {
	*appdock.RunReport
}

func (v reportView) String() string {
	r := v.RunReport
	var b strings.Builder
	status := color.GreenString(string(r.Stage))
	if r.Stage == domainDock.StageFailed {
		status = color.RedString(string(r.Stage))
	}
	fmt.Fprintf(&b, "Run:      %s\n", r.RunID)
	fmt.Fprintf(&b, "Status:   %s (%s)\n", status, r.Elapsed.Round(time.Millisecond))
	if r.Dir != "" {
		fmt.Fprintf(&b, "Dir:      %s\n", r.Dir)
	}
	if r.BoxSource != "" {
		fmt.Fprintf(&b, "Box:      center %s size %s (%s)\n", r.Box.Center, r.Box.Size, r.BoxSource)
	}
	if r.FailedStep != "" {
		fmt.Fprintf(&b, "Failed:   %s\n", r.FailedStep)
		return b.String()
	}
	if best, ok := r.Scores.Best(); ok {
		fmt.Fprintf(&b, "Best:     pose %d, %.1f kcal/mol\n", best.Index, best.Affinity)
	}
	for i, p := range r.Poses {
		fmt.Fprintf(&b, "  %2d  %7.1f  %s\n", p.Index, p.Affinity, complexName(r.Complexes, i))
	}
	if r.Archive != "" {
		fmt.Fprintf(&b, "Archive:  %s\n", r.Archive)
	}
	if r.TopPose != "" {
		fmt.Fprintf(&b, "Top pose: %s\n", r.TopPose)
	}
	for name, url := range r.Exports {
		fmt.Fprintf(&b, "Export:   %s %s\n", name, url)
	}
	return b.String()
}

func (v reportView) TableHeaders() []string {
	return []string{"Pose", "Affinity (kcal/mol)", "Complex"}
}

func (v reportView) TableRows() [][]string {
	rows := make([][]string, 0, len(v.Poses))
	for i, p := range v.Poses {
		rows = append(rows, []string{
			fmt.Sprintf("%d", p.Index),
			fmt.Sprintf("%.1f", p.Affinity),
			complexName(v.Complexes, i),
		})
	}
	return rows
}

func complexName(complexes []string, i int) string {
	if i < len(complexes) {
		return filepath.Base(complexes[i])
	}
	return ""
}

// failedStage returns the step named by a *StageError in err's chain.
func failedStage(err error) string {
	var se *appdock.StageError
	if errors.As(err, &se) {
		return string(se.Stage)
	}
	return ""
}

// toolDiagnostic returns the raw stderr of the first tool failure in err's
// chain.
func toolDiagnostic(err error) string {
	for err != nil {
		var ae *errors.AppError
		if !errors.As(err, &ae) {
			return ""
		}
		if ae.Code == errors.ErrCodeToolFailure {
			return ae.Detail
		}
		err = ae.Unwrap()
	}
	return ""
}
