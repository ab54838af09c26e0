// Package toolexec runs external command-line tools and classifies the
// outcome.  A tool succeeds only when it exits 0 AND leaves its declared
// output file behind; every other outcome is a *ToolFailure.
package toolexec

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/turtacn/DockPipe/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/DockPipe/pkg/errors"
)

// waitDelay bounds how long Wait blocks on inherited pipes after the
// process has been killed.
const waitDelay = 5 * time.Second

// logTail is the amount of stderr echoed into failure log entries.  The
// Result always carries the full text.
const logTail = 2048

// Invocation describes one external call.
type Invocation struct {
	// Tool is the logical name used in logs and metrics ("converter",
	// "receptor_prep", "engine", "splitter").
	Tool string
	Path string
	Args []string

	// RequiredInputs must exist before the process is started.
	RequiredInputs []string

	// ExpectedOutput, when set, must exist after a zero exit.  A stale copy
	// is removed before the process starts.
	ExpectedOutput string

	// Dir is the working directory; relative paths above resolve against it.
	Dir string

	// Timeout bounds this invocation on top of the caller's context.
	Timeout time.Duration
}

// CommandLine renders the invocation for logs and error messages.
func (i Invocation) CommandLine() string {
	return strings.TrimSpace(i.Path + " " + strings.Join(i.Args, " "))
}

func (i Invocation) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || i.Dir == "" {
		return p
	}
	return filepath.Join(i.Dir, p)
}

// Result is the captured outcome of an invocation.
type Result struct {
	Invocation Invocation
	ExitCode   int
	Stdout     string
	Stderr     string
	Duration   time.Duration

	// Failure is nil on success.
	Failure *ToolFailure
}

// OK reports whether the invocation succeeded.
func (r *Result) OK() bool {
	return r != nil && r.Failure == nil
}

// Err returns nil on success, otherwise the failure as an *errors.AppError
// with code ErrCodeToolFailure and the tool's stderr as detail.
func (r *Result) Err() error {
	if r.OK() {
		return nil
	}
	if r == nil {
		return errors.New(errors.ErrCodeToolFailure, "no result")
	}
	return r.Failure.AppError()
}

// Invoker runs an Invocation synchronously.  Implementations never return a
// Go error; every failure is reported through Result.Failure.
type Invoker interface {
	Invoke(ctx context.Context, inv Invocation) *Result
}

// Observer receives one callback per finished invocation.
type Observer interface {
	ObserveInvocation(tool string, reason FailureReason, d time.Duration)
}

// ─────────────────────────────────────────────────────────────────────────────
// ExecInvoker
// ─────────────────────────────────────────────────────────────────────────────

// ExecInvoker implements Invoker with os/exec.
type ExecInvoker struct {
	logger   logging.Logger
	observer Observer
	env      []string
}

// Option configures an ExecInvoker.
type Option func(*ExecInvoker)

// WithObserver attaches an Observer, typically the metrics collector.
func WithObserver(o Observer) Option {
	return func(e *ExecInvoker) { e.observer = o }
}

// WithEnv appends KEY=VALUE pairs to the inherited environment.
func WithEnv(kv ...string) Option {
	return func(e *ExecInvoker) { e.env = append(e.env, kv...) }
}

// NewExecInvoker creates an ExecInvoker.  A nil logger discards output.
func NewExecInvoker(logger logging.Logger, opts ...Option) *ExecInvoker {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	e := &ExecInvoker{logger: logger.Named("toolexec")}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Invoke runs inv and classifies the outcome.
func (e *ExecInvoker) Invoke(ctx context.Context, inv Invocation) *Result {
	res := &Result{Invocation: inv, ExitCode: -1}
	log := e.logger.With(logging.Tool(inv.Tool))

	defer func() {
		reason := ReasonNone
		if res.Failure != nil {
			reason = res.Failure.Reason
		}
		if e.observer != nil {
			e.observer.ObserveInvocation(inv.Tool, reason, res.Duration)
		}
	}()

	for _, in := range inv.RequiredInputs {
		if _, err := os.Stat(inv.resolve(in)); err != nil {
			res.Failure = newFailure(inv, -1, ReasonMissingInput, "", err)
			log.Warn("required input missing", logging.String("input", in), logging.Err(err))
			return res
		}
	}

	if out := inv.resolve(inv.ExpectedOutput); out != "" {
		if err := os.Remove(out); err != nil && !os.IsNotExist(err) {
			res.Failure = newFailure(inv, -1, ReasonStartFailed, "", err)
			log.Warn("cannot clear stale output", logging.String("output", out), logging.Err(err))
			return res
		}
	}

	if inv.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, inv.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, inv.Path, inv.Args...)
	cmd.Dir = inv.Dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay
	if len(e.env) > 0 {
		cmd.Env = append(os.Environ(), e.env...)
	}

	log.Debug("invoking tool", logging.String("command", inv.CommandLine()), logging.String("dir", inv.Dir))
	start := time.Now()
	runErr := cmd.Run()
	res.Duration = time.Since(start)
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	res.Failure = classify(ctx, inv, res, runErr)
	if res.Failure != nil {
		log.Warn("tool failed",
			logging.String("reason", string(res.Failure.Reason)),
			logging.Int("exit_code", res.ExitCode),
			logging.Duration("elapsed", res.Duration),
			logging.String("stderr", tail(res.Stderr, logTail)),
		)
		return res
	}
	log.Info("tool finished", logging.Duration("elapsed", res.Duration))
	return res
}

func classify(ctx context.Context, inv Invocation, res *Result, runErr error) *ToolFailure {
	if runErr != nil {
		switch ctx.Err() {
		case context.DeadlineExceeded:
			return newFailure(inv, res.ExitCode, ReasonTimeout, res.Stderr, ctx.Err())
		case context.Canceled:
			return newFailure(inv, res.ExitCode, ReasonCanceled, res.Stderr, ctx.Err())
		}
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			return newFailure(inv, res.ExitCode, ReasonExitStatus, res.Stderr, runErr)
		}
		return newFailure(inv, -1, ReasonStartFailed, res.Stderr, runErr)
	}
	if out := inv.resolve(inv.ExpectedOutput); out != "" {
		if _, err := os.Stat(out); err != nil {
			return newFailure(inv, res.ExitCode, ReasonMissingOutput, res.Stderr,
				fmt.Errorf("expected output %s was not produced", inv.ExpectedOutput))
		}
	}
	return nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "…" + s[len(s)-n:]
}
