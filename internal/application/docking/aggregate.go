package docking

import (
	"context"
	"os"
	"time"

	domainDock "github.com/turtacn/DockPipe/internal/domain/docking"
	"github.com/turtacn/DockPipe/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/DockPipe/internal/infrastructure/staging"
	"github.com/turtacn/DockPipe/pkg/errors"
)

// aggregate parses the scores, pairs them with the split poses, writes one
// receptor+pose complex per pose, zips them and converts the top complex.
func (o *Orchestrator) aggregate(ctx context.Context, st *runState, poseFiles []string) error {
	start := time.Now()
	fail := func(err error) error {
		return &StageError{Stage: domainDock.StepAggregate, Err: err}
	}

	scores, err := parseScoreFile(o.scoreFile(st), st.opts.ScorePolicy)
	if err != nil {
		return fail(err)
	}
	st.report.Scores = scores
	for _, sk := range scores.Skipped {
		st.logger.Warn("score line skipped",
			logging.Int("line", sk.Line),
			logging.String("reason", sk.Reason),
			logging.String("text", sk.Text))
	}

	poses, err := domainDock.PairPoses(poseFiles, scores)
	if err != nil {
		return fail(err)
	}
	st.report.Poses = poses

	complexes, err := writeComplexes(st.ws, st.receptorUpload, poses)
	if err != nil {
		return fail(err)
	}
	st.report.Complexes = complexes

	if err := staging.Archive(st.ws.ComplexesArchive(), complexes); err != nil {
		return fail(err)
	}
	st.report.Archive = st.ws.ComplexesArchive()

	top := st.ws.TopComplex(st.opts.TopPoseFormat)
	res := o.invoker.Invoke(ctx, st.tools.ConvertPlain(complexes[0], top))
	if !res.OK() {
		return fail(res.Err())
	}
	st.report.TopPose = top

	return o.advance(ctx, st, domainDock.StepAggregate, domainDock.StageDone, "", time.Since(start))
}

func (o *Orchestrator) scoreFile(st *runState) string {
	if st.opts.ScoreSource == ScoreSourceOutput {
		return st.ws.DockedOutput()
	}
	return st.ws.DockingLog()
}

func parseScoreFile(path string, policy domainDock.ScorePolicy) (*domainDock.Scores, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeMalformedLog, "open docking log "+path)
	}
	defer f.Close()
	return domainDock.ParseScores(f, policy)
}

// writeComplexes writes complex_<i> for every pose in order.  The uploaded
// receptor, not the prepared one, is read once as raw text and prepended to
// each pose.
func writeComplexes(ws *staging.Workspace, receptorUpload string, poses []domainDock.RankedPose) ([]string, error) {
	receptor, err := staging.ReadText(receptorUpload)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(poses))
	for i, p := range poses {
		dst := ws.Complex(i + 1)
		if err := staging.WriteComplex(dst, receptor, p.PoseFile); err != nil {
			return nil, err
		}
		out = append(out, dst)
	}
	return out, nil
}
