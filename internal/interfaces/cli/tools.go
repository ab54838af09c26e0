package cli

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/turtacn/DockPipe/internal/infrastructure/toolchain"
)

func newToolsCmd() *cobra.Command {
	var fix bool
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Check that the external tools are installed and runnable",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			tc, err := toolchain.New(cliCtx.Config.Tools, cliCtx.Logger)
			if err != nil {
				return err
			}
			if fix {
				fixed, err := tc.FixPermissions()
				for _, p := range fixed {
					PrintSuccess(cmd, "made executable: "+p)
				}
				if err != nil {
					return err
				}
			}
			if err := PrintResult(cmd, toolsView(tc.Check())); err != nil {
				return err
			}
			return tc.Ready()
		},
	}
	cmd.Flags().BoolVar(&fix, "fix-permissions", false, "add execute bits to local engine and splitter binaries")
	return cmd
}

type toolsView []toolchain.ToolStatus

func (v toolsView) String() string {
	var b strings.Builder
	for _, s := range v {
		status := color.GreenString("ok")
		if !s.OK() {
			status = color.RedString(s.Problem)
		}
		fmt.Fprintf(&b, "%-20s %-10s %s\n", s.Name, status, s.Path)
	}
	return b.String()
}

func (v toolsView) TableHeaders() []string {
	return []string{"Tool", "Path", "Resolved", "Status"}
}

func (v toolsView) TableRows() [][]string {
	rows := make([][]string, 0, len(v))
	for _, s := range v {
		status := "ok"
		if !s.OK() {
			status = s.Problem
		}
		rows = append(rows, []string{s.Name, s.Path, s.Resolved, status})
	}
	return rows
}
