package docking

import (
	"time"

	"github.com/turtacn/DockPipe/internal/config"
	domainDock "github.com/turtacn/DockPipe/internal/domain/docking"
)

// Box sources for automatic estimation.
const (
	BoxSourceReceptor = "receptor"
	BoxSourceLigand   = "ligand"
	boxSourceManual   = "manual"
)

// Score sources.
const (
	ScoreSourceLog    = "log"
	ScoreSourceOutput = "output"
)

// Options are the per-run settings of the orchestrator.  They can be swapped
// between runs (see Orchestrator.Reload).
type Options struct {
	Padding       float64
	BoxSource     string
	ScorePolicy   domainDock.ScorePolicy
	ScoreSource   string
	Timeout       time.Duration
	ParallelPrep  bool
	TopPoseFormat string

	Exhaustiveness int
	NumModes       int
	CPU            int
	Seed           int64

	StagingRoot string
	KeepStaging bool
}

// OptionsFromConfig derives Options from a validated Config.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	policy, err := domainDock.ParsePolicy(cfg.Docking.ScorePolicy)
	if err != nil {
		return Options{}, err
	}
	return Options{
		Padding:        cfg.Docking.Padding,
		BoxSource:      cfg.Docking.BoxSource,
		ScorePolicy:    policy,
		ScoreSource:    cfg.Docking.ScoreSource,
		Timeout:        cfg.Docking.Timeout,
		ParallelPrep:   cfg.Docking.ParallelPrep,
		TopPoseFormat:  cfg.Docking.TopPoseFormat,
		Exhaustiveness: cfg.Docking.Exhaustiveness,
		NumModes:       cfg.Docking.NumModes,
		CPU:            cfg.Docking.CPU,
		Seed:           cfg.Docking.Seed,
		StagingRoot:    cfg.Staging.Root,
		KeepStaging:    cfg.Staging.Keep,
	}, nil
}
