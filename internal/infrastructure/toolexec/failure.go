package toolexec

import (
	"fmt"

	"github.com/turtacn/DockPipe/pkg/errors"
)

// FailureReason classifies why an invocation failed.
type FailureReason string

const (
	ReasonNone          FailureReason = ""
	ReasonMissingInput  FailureReason = "missing_input"
	ReasonStartFailed   FailureReason = "start_failed"
	ReasonTimeout       FailureReason = "timeout"
	ReasonCanceled      FailureReason = "canceled"
	ReasonExitStatus    FailureReason = "exit_status"
	ReasonMissingOutput FailureReason = "missing_output"
)

// ToolFailure describes a failed invocation.  Stderr is the tool's raw
// diagnostic text and is shown to the operator unmodified.
type ToolFailure struct {
	Tool     string
	Command  string
	ExitCode int
	Reason   FailureReason
	Stderr   string
	Cause    error
}

func newFailure(inv Invocation, exitCode int, reason FailureReason, stderr string, cause error) *ToolFailure {
	return &ToolFailure{
		Tool:     inv.Tool,
		Command:  inv.CommandLine(),
		ExitCode: exitCode,
		Reason:   reason,
		Stderr:   stderr,
		Cause:    cause,
	}
}

func (f *ToolFailure) Error() string {
	msg := fmt.Sprintf("%s failed (%s, exit %d)", f.Tool, f.Reason, f.ExitCode)
	if f.Cause != nil {
		msg += ": " + f.Cause.Error()
	}
	return msg
}

func (f *ToolFailure) Unwrap() error {
	return f.Cause
}

// AppError converts the failure into the ErrCodeToolFailure application
// error.  The detail is the tool's stderr, or the cause when stderr is empty.
func (f *ToolFailure) AppError() *errors.AppError {
	detail := f.Stderr
	if detail == "" && f.Cause != nil {
		detail = f.Cause.Error()
	}
	return errors.New(errors.ErrCodeToolFailure, fmt.Sprintf("%s failed (%s, exit %d)", f.Tool, f.Reason, f.ExitCode)).
		WithDetail(detail).
		WithCause(f)
}
