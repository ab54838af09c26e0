package docking

import (
	"sync"
	"time"

	"github.com/turtacn/DockPipe/pkg/errors"
)

// Stage is a state of the docking run machine.
type Stage string

const (
	StageIdle             Stage = "idle"
	StageLigandConverted  Stage = "ligand_converted"
	StageReceptorPrepared Stage = "receptor_prepared"
	StageBoxComputed      Stage = "box_computed"
	StageDocked           Stage = "docked"
	StageSplit            Stage = "split"
	StageDone             Stage = "done"
	StageFailed           Stage = "failed"
)

// IsTerminal reports whether no transition leaves s.
func (s Stage) IsTerminal() bool {
	return s == StageDone || s == StageFailed
}

// Step names the operation that was running when a run failed.
type Step string

const (
	StepLigandConversion Step = "ligand_conversion"
	StepReceptorPrep     Step = "receptor_prep"
	StepBox              Step = "box"
	StepDocking          Step = "docking"
	StepSplit            Step = "split"
	StepAggregate        Step = "aggregate"
)

// Transition records one stage change.
type Transition struct {
	From Stage     `json:"from"`
	To   Stage     `json:"to"`
	At   time.Time `json:"at"`
}

// validTransitions lists the successors of each non-terminal stage.  The
// three preparation stages are independent and may complete in any order;
// Docked additionally requires all three (see prepStages).
var validTransitions = map[Stage][]Stage{
	StageIdle:             {StageLigandConverted, StageReceptorPrepared, StageBoxComputed},
	StageLigandConverted:  {StageReceptorPrepared, StageBoxComputed, StageDocked},
	StageReceptorPrepared: {StageLigandConverted, StageBoxComputed, StageDocked},
	StageBoxComputed:      {StageLigandConverted, StageReceptorPrepared, StageDocked},
	StageDocked:           {StageSplit},
	StageSplit:            {StageDone},
}

var prepStages = []Stage{StageLigandConverted, StageReceptorPrepared, StageBoxComputed}

// Run is the state of one docking run.  It is safe for concurrent use so
// preparation stages may advance it from separate goroutines.
type Run struct {
	mu         sync.Mutex
	id         string
	stage      Stage
	failedStep Step
	failure    error
	completed  map[Stage]bool
	history    []Transition
	startedAt  time.Time
	finishedAt time.Time
	now        func() time.Time
}

// NewRun returns a run in StageIdle.
func NewRun(id string) *Run {
	return &Run{
		id:        id,
		stage:     StageIdle,
		completed: make(map[Stage]bool),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ID returns the run identifier.
func (r *Run) ID() string { return r.id }

// Stage returns the most recent stage reached.
func (r *Run) Stage() Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stage
}

// Completed reports whether s has been reached at some point.
func (r *Run) Completed(s Stage) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.completed[s]
}

// Failure returns the failing step and its error; both are zero unless the
// run is in StageFailed.
func (r *Run) Failure() (Step, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failedStep, r.failure
}

// History returns a copy of all transitions so far.
func (r *Run) History() []Transition {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Transition, len(r.history))
	copy(out, r.history)
	return out
}

// Elapsed returns the time between the first transition and the terminal
// one (or now, for a run still in progress).
func (r *Run) Elapsed() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.startedAt.IsZero() {
		return 0
	}
	end := r.finishedAt
	if end.IsZero() {
		end = r.now()
	}
	return end.Sub(r.startedAt)
}

// Advance moves the run to stage to.  Reaching a stage twice, skipping a
// precondition, or leaving a terminal stage returns ErrCodeInvalidTransition.
func (r *Run) Advance(to Stage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	from := r.stage
	if !isValidTransition(from, to) || r.completed[to] {
		return errors.Newf(errors.ErrCodeInvalidTransition, "invalid transition from %s to %s", from, to)
	}
	if to == StageDocked {
		for _, p := range prepStages {
			if !r.completed[p] {
				return errors.Newf(errors.ErrCodeInvalidTransition, "cannot dock before %s", p)
			}
		}
	}
	r.record(from, to)
	r.completed[to] = true
	return nil
}

// Fail moves the run to StageFailed, recording step and err.
func (r *Run) Fail(step Step, err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stage.IsTerminal() {
		return errors.Newf(errors.ErrCodeInvalidTransition, "invalid transition from %s to %s", r.stage, StageFailed)
	}
	r.failedStep = step
	r.failure = err
	r.record(r.stage, StageFailed)
	return nil
}

func (r *Run) record(from, to Stage) {
	at := r.now()
	if r.startedAt.IsZero() {
		r.startedAt = at
	}
	if to.IsTerminal() {
		r.finishedAt = at
	}
	r.history = append(r.history, Transition{From: from, To: to, At: at})
	r.stage = to
}

func isValidTransition(from, to Stage) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, t := range targets {
		if t == to {
			return true
		}
	}
	return false
}
