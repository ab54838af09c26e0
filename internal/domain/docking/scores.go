package docking

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/turtacn/DockPipe/pkg/errors"
)

// VinaResultMarker starts every score remark the docking engine writes, both
// in its log and in each MODEL of the docked output.
const VinaResultMarker = "REMARK VINA RESULT:"

// affinityField is the whitespace-delimited position of the affinity value
// on a marker line ("REMARK VINA RESULT: -7.2 0.000 0.000").
const affinityField = 3

// ScorePolicy decides what happens to a marker line whose affinity field is
// not a number.
type ScorePolicy string

const (
	// PolicyStrict fails the parse with ErrCodeMalformedLog.
	PolicyStrict ScorePolicy = "strict"
	// PolicySkip drops the line and reports it in Scores.Skipped.
	PolicySkip ScorePolicy = "skip"
)

// ParsePolicy converts a configuration value into a ScorePolicy.  The empty
// string selects PolicyStrict.
func ParsePolicy(s string) (ScorePolicy, error) {
	switch ScorePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyStrict:
		return PolicyStrict, nil
	case PolicySkip:
		return PolicySkip, nil
	}
	return "", errors.InvalidParam("unknown score policy " + strconv.Quote(s))
}

// SkippedLine describes a marker line dropped under PolicySkip.
type SkippedLine struct {
	Line   int    `json:"line"`
	Text   string `json:"text"`
	Reason string `json:"reason"`
}

// ParseScores scans r for marker lines and returns their affinities in file
// order.  Pose indices are the 1-based ordinal of the marker line, so under
// PolicySkip a dropped line leaves a gap rather than shifting later poses.
//
// The engine is trusted to list poses in the same order the splitter writes
// them; nothing here can verify that.
func ParseScores(r io.Reader, policy ScorePolicy) (*Scores, error) {
	if policy == "" {
		policy = PolicyStrict
	}
	out := &Scores{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo, ordinal := 0, 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if !strings.Contains(line, VinaResultMarker) {
			continue
		}
		ordinal++

		affinity, reason := affinityOf(line)
		if reason != "" {
			if policy == PolicyStrict {
				return nil, errors.Newf(errors.ErrCodeMalformedLog, "line %d: %s", lineNo, reason).
					WithDetail(strings.TrimSpace(line))
			}
			out.Skipped = append(out.Skipped, SkippedLine{Line: lineNo, Text: line, Reason: reason})
			continue
		}
		out.Poses = append(out.Poses, PoseScore{Index: ordinal, Affinity: affinity})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeMalformedLog, "read docking log")
	}
	return out, nil
}

func affinityOf(line string) (float64, string) {
	fields := strings.Fields(line)
	if len(fields) <= affinityField {
		return 0, "missing affinity field"
	}
	v, err := strconv.ParseFloat(fields[affinityField], 64)
	if err != nil || !finite(v) {
		return 0, "affinity " + strconv.Quote(fields[affinityField]) + " is not a number"
	}
	return v, ""
}
