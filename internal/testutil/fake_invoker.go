package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/turtacn/DockPipe/internal/infrastructure/toolexec"
)

// FakeHandler scripts one tool.  It may write files and returns the exit code
// and stderr the fake process "produced".
type FakeHandler func(inv toolexec.Invocation) (exitCode int, stderr string)

// FakeInvoker implements toolexec.Invoker without starting processes.  It
// records every call and classifies results the way ExecInvoker does:
// missing inputs, nonzero exits and absent expected outputs become failures.
// Tools without a handler succeed and get an empty ExpectedOutput file.
type FakeInvoker struct {
	mu       sync.Mutex
	calls    []toolexec.Invocation
	handlers map[string]FakeHandler
}

// NewFakeInvoker returns a FakeInvoker with no handlers.
func NewFakeInvoker() *FakeInvoker {
	return &FakeInvoker{handlers: make(map[string]FakeHandler)}
}

// On registers h for tool and returns f for chaining.
func (f *FakeInvoker) On(tool string, h FakeHandler) *FakeInvoker {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[tool] = h
	return f
}

// Invoke implements toolexec.Invoker.
func (f *FakeInvoker) Invoke(ctx context.Context, inv toolexec.Invocation) *toolexec.Result {
	f.mu.Lock()
	f.calls = append(f.calls, inv)
	h := f.handlers[inv.Tool]
	f.mu.Unlock()

	res := &toolexec.Result{Invocation: inv, ExitCode: -1}
	fail := func(reason toolexec.FailureReason, stderr string, cause error) *toolexec.Result {
		res.Failure = &toolexec.ToolFailure{
			Tool:     inv.Tool,
			Command:  inv.CommandLine(),
			ExitCode: res.ExitCode,
			Reason:   reason,
			Stderr:   stderr,
			Cause:    cause,
		}
		return res
	}

	for _, in := range inv.RequiredInputs {
		if _, err := os.Stat(in); err != nil {
			return fail(toolexec.ReasonMissingInput, "", err)
		}
	}
	if err := ctx.Err(); err != nil {
		return fail(toolexec.ReasonCanceled, "", err)
	}

	if h == nil {
		h = TouchOutput
	}
	code, stderr := h(inv)
	res.ExitCode = code
	res.Stderr = stderr
	if code != 0 {
		return fail(toolexec.ReasonExitStatus, stderr, fmt.Errorf("exit status %d", code))
	}
	if inv.ExpectedOutput != "" {
		if _, err := os.Stat(inv.ExpectedOutput); err != nil {
			return fail(toolexec.ReasonMissingOutput, stderr,
				fmt.Errorf("expected output %s was not produced", inv.ExpectedOutput))
		}
	}
	return res
}

// Calls returns a copy of every recorded invocation in call order.
func (f *FakeInvoker) Calls() []toolexec.Invocation {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]toolexec.Invocation, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallCount returns how many times tool was invoked.
func (f *FakeInvoker) CallCount(tool string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Tool == tool {
			n++
		}
	}
	return n
}

// ─────────────────────────────────────────────────────────────────────────────
// Handlers
// ─────────────────────────────────────────────────────────────────────────────

// TouchOutput creates an empty ExpectedOutput and exits 0.
func TouchOutput(inv toolexec.Invocation) (int, string) {
	if inv.ExpectedOutput != "" {
		if err := os.WriteFile(inv.ExpectedOutput, nil, 0o644); err != nil {
			return 1, err.Error()
		}
	}
	return 0, ""
}

// WriteOutput returns a handler that writes content to ExpectedOutput.
func WriteOutput(content string) FakeHandler {
	return func(inv toolexec.Invocation) (int, string) {
		if err := os.WriteFile(inv.ExpectedOutput, []byte(content), 0o644); err != nil {
			return 1, err.Error()
		}
		return 0, ""
	}
}

// Exit returns a handler that writes nothing and exits with code and stderr.
func Exit(code int, stderr string) FakeHandler {
	return func(toolexec.Invocation) (int, string) { return code, stderr }
}

// FakeEngine returns a handler that behaves like the docking engine: it
// writes docked to --out and log to --log.
func FakeEngine(docked, log string) FakeHandler {
	return func(inv toolexec.Invocation) (int, string) {
		if err := os.WriteFile(ArgAfter(inv, "--out"), []byte(docked), 0o644); err != nil {
			return 1, err.Error()
		}
		if err := os.WriteFile(ArgAfter(inv, "--log"), []byte(log), 0o644); err != nil {
			return 1, err.Error()
		}
		return 0, ""
	}
}

// FakeSplitter returns a handler that writes n pose files named
// <prefix>1.pdbqt ... <prefix>n.pdbqt.
func FakeSplitter(n int) FakeHandler {
	return func(inv toolexec.Invocation) (int, string) {
		prefix := ArgAfter(inv, "--ligand")
		for i := 1; i <= n; i++ {
			p := fmt.Sprintf("%s%d.pdbqt", prefix, i)
			body := fmt.Sprintf("MODEL %d\nENDMDL\n", i)
			if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
				return 1, err.Error()
			}
			if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
				return 1, err.Error()
			}
		}
		return 0, ""
	}
}

// ArgAfter returns the argument following flag, or "" when absent.
func ArgAfter(inv toolexec.Invocation, flag string) string {
	for i := 0; i+1 < len(inv.Args); i++ {
		if inv.Args[i] == flag {
			return inv.Args[i+1]
		}
	}
	return ""
}

var _ toolexec.Invoker = (*FakeInvoker)(nil)
