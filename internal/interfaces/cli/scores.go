package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	domainDock "github.com/turtacn/DockPipe/internal/domain/docking"
	"github.com/turtacn/DockPipe/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/DockPipe/pkg/errors"
)

func newScoresCmd() *cobra.Command {
	var (
		logPath string
		policy  string
	)
	cmd := &cobra.Command{
		Use:   "scores",
		Short: "Parse pose affinities from a docking log or docked output",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			if policy == "" {
				policy = cliCtx.Config.Docking.ScorePolicy
			}
			p, err := domainDock.ParsePolicy(policy)
			if err != nil {
				return err
			}

			f, err := os.Open(logPath)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeMalformedLog, "open "+logPath)
			}
			defer f.Close()

			scores, err := domainDock.ParseScores(f, p)
			if err != nil {
				return err
			}
			for _, sk := range scores.Skipped {
				cliCtx.Logger.Warn("score line skipped",
					logging.Int("line", sk.Line),
					logging.String("reason", sk.Reason))
			}
			return PrintResult(cmd, scoresView{scores})
		},
	}
	cmd.Flags().StringVar(&logPath, "log", "", "docking log or docked output file [REQUIRED]")
	cmd.Flags().StringVar(&policy, "policy", "", "malformed line policy: strict|skip (default: docking.score_policy)")
	_ = cmd.MarkFlagRequired("log")
	return cmd
}

type scoresView struct {
	*domainDock.Scores
}

func (v scoresView) String() string {
	var b strings.Builder
	best, ok := v.Best()
	for _, p := range v.Poses {
		line := fmt.Sprintf("%d\t%.1f", p.Index, p.Affinity)
		if ok && p.Index == best.Index {
			line = color.GreenString(line)
		}
		b.WriteString(line + "\n")
	}
	if len(v.Skipped) > 0 {
		fmt.Fprintf(&b, "%s %d malformed line(s) skipped\n", color.YellowString("warning:"), len(v.Skipped))
	}
	return b.String()
}

func (v scoresView) TableHeaders() []string {
	return []string{"Pose", "Affinity (kcal/mol)"}
}

func (v scoresView) TableRows() [][]string {
	rows := make([][]string, 0, len(v.Poses))
	for _, p := range v.Poses {
		rows = append(rows, []string{fmt.Sprintf("%d", p.Index), fmt.Sprintf("%.1f", p.Affinity)})
	}
	return rows
}
