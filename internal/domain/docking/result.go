package docking

import (
	"fmt"

	"github.com/turtacn/DockPipe/pkg/errors"
)

// PoseScore is the affinity (kcal/mol) reported for one pose.  Index is
// 1-based.
type PoseScore struct {
	Index    int     `json:"index"`
	Affinity float64 `json:"affinity_kcal_mol"`
}

// Scores is the parsed content of a docking log.
type Scores struct {
	Poses   []PoseScore   `json:"poses"`
	Skipped []SkippedLine `json:"skipped,omitempty"`
}

// Len returns the number of parsed poses.
func (s *Scores) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Poses)
}

// Affinities returns the affinity values in file order.
func (s *Scores) Affinities() []float64 {
	if s == nil {
		return nil
	}
	out := make([]float64, len(s.Poses))
	for i, p := range s.Poses {
		out[i] = p.Affinity
	}
	return out
}

// Best returns the lowest (most favourable) affinity.
func (s *Scores) Best() (PoseScore, bool) {
	if s.Len() == 0 {
		return PoseScore{}, false
	}
	best := s.Poses[0]
	for _, p := range s.Poses[1:] {
		if p.Affinity < best.Affinity {
			best = p
		}
	}
	return best, true
}

// RankedPose pairs one split pose file with its score.
type RankedPose struct {
	PoseScore
	PoseFile string `json:"pose_file"`
}

// PairPoses aligns pose files with scores by position.  The counts must
// match exactly; a mismatch is reported as ErrCodePoseCountMismatch instead
// of zipping the shorter list.
func PairPoses(poseFiles []string, scores *Scores) ([]RankedPose, error) {
	if len(poseFiles) != scores.Len() {
		return nil, errors.New(errors.ErrCodePoseCountMismatch, "pose count does not match score count").
			WithDetail(fmt.Sprintf("%d pose files, %d scores", len(poseFiles), scores.Len()))
	}
	out := make([]RankedPose, len(poseFiles))
	for i, f := range poseFiles {
		out[i] = RankedPose{PoseScore: scores.Poses[i], PoseFile: f}
	}
	return out, nil
}
