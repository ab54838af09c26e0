package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	domainDock "github.com/turtacn/DockPipe/internal/domain/docking"
	"github.com/turtacn/DockPipe/internal/domain/structure"
	"github.com/turtacn/DockPipe/internal/infrastructure/monitoring/logging"
)

func newBoxCmd() *cobra.Command {
	var (
		path    string
		padding float64
	)
	cmd := &cobra.Command{
		Use:   "box",
		Short: "Estimate the docking search box of a structure",
		Long:  "Center the box on the mean atom position and size it to the atom extent plus padding on every axis.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("padding") {
				padding = cliCtx.Config.Docking.Padding
			}

			s, err := structure.ParseFile(path)
			if err != nil {
				return err
			}
			box, err := domainDock.EstimateBox(s, padding)
			if err != nil {
				return err
			}
			cliCtx.Logger.Debug("box estimated",
				logging.String("structure", path),
				logging.Int("atoms", s.Len()),
				logging.Float64("padding", padding))
			return PrintResult(cmd, boxView{Box: box, Atoms: s.Len(), Padding: padding})
		},
	}
	cmd.Flags().StringVar(&path, "structure", "", "structure file (.pdb, .pdbqt, .sdf, .mol, optionally .gz) [REQUIRED]")
	cmd.Flags().Float64Var(&padding, "padding", domainDock.DefaultPadding, "Ångström added to the extent on every axis (default: docking.padding)")
	_ = cmd.MarkFlagRequired("structure")
	return cmd
}

type boxView struct {
	Box     domainDock.SearchBox `json:"box"`
	Atoms   int                  `json:"atoms"`
	Padding float64              `json:"padding"`
}

// String renders the box in the engine's config-file syntax.
func (v boxView) String() string {
	var b strings.Builder
	for i, axis := range []string{"x", "y", "z"} {
		fmt.Fprintf(&b, "center_%s = %.3f\n", axis, v.Box.Center[i])
	}
	for i, axis := range []string{"x", "y", "z"} {
		fmt.Fprintf(&b, "size_%s = %.3f\n", axis, v.Box.Size[i])
	}
	return b.String()
}

func (v boxView) TableHeaders() []string {
	return []string{"Axis", "Center", "Size"}
}

func (v boxView) TableRows() [][]string {
	rows := make([][]string, 3)
	for i, axis := range []string{"x", "y", "z"} {
		rows[i] = []string{axis, fmt.Sprintf("%.3f", v.Box.Center[i]), fmt.Sprintf("%.3f", v.Box.Size[i])}
	}
	return rows
}
