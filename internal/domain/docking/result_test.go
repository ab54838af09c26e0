package docking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/DockPipe/pkg/errors"
)

func TestPairPoses_Matching(t *testing.T) {
	scores := &Scores{Poses: []PoseScore{{1, -7.2}, {2, -6.8}, {3, -6.0}}}
	files := []string{"poses/pose_1.pdbqt", "poses/pose_2.pdbqt", "poses/pose_3.pdbqt"}

	ranked, err := PairPoses(files, scores)
	require.NoError(t, err)
	require.Len(t, ranked, 3)
	assert.Equal(t, "poses/pose_2.pdbqt", ranked[1].PoseFile)
	assert.Equal(t, -6.8, ranked[1].Affinity)
	assert.Equal(t, 2, ranked[1].Index)
}

func TestPairPoses_Mismatch(t *testing.T) {
	scores := &Scores{Poses: []PoseScore{{1, -7.2}, {2, -6.8}}}
	files := []string{"a", "b", "c"}

	ranked, err := PairPoses(files, scores)
	require.Error(t, err)
	assert.Nil(t, ranked)
	assert.True(t, errors.IsCode(err, errors.ErrCodePoseCountMismatch))
	assert.Contains(t, err.Error(), "3 pose files, 2 scores")
}

func TestPairPoses_NilScores(t *testing.T) {
	_, err := PairPoses([]string{"a"}, nil)
	assert.True(t, errors.IsCode(err, errors.ErrCodePoseCountMismatch))

	ranked, err := PairPoses(nil, nil)
	require.NoError(t, err)
	assert.Empty(t, ranked)
}
