package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"
)

// ErrorTag classifies why a command produced no exit code.
type ErrorTag string

const (
	TagTimeout  ErrorTag = "TIMEOUT"
	TagSpawn    ErrorTag = "SPAWN_ERROR"
	TagCanceled ErrorTag = "CANCELED"
	TagExec     ErrorTag = "EXEC_ERROR"
)

// defaultWaitDelay bounds how long Run waits for the output pipes once the
// process is gone, children of the tool may keep them open.
const defaultWaitDelay = 5 * time.Second

// RunError is returned by Runner.Run when the command did not exit on its
// own. The accompanying Result still carries the output captured so far.
type RunError struct {
	Tag ErrorTag
	Err error
}

func (e *RunError) Error() string {
	return string(e.Tag) + ": " + e.Err.Error()
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// StderrFunc receives standard error line by line while the command runs.
type StderrFunc func(ctx context.Context, line string)

type Command struct {
	Path    string
	Args    []string
	Env     []string
	Timeout time.Duration
}

type Result struct {
	Path     string
	Args     []string
	Started  time.Time
	Stopped  time.Time
	ExitCode int
	Stdout   string
	Stderr   string
}

func (r Result) Elapsed() time.Duration {
	return r.Stopped.Sub(r.Started)
}

// Runner is a thin wrapper around os/exec. Arguments are passed as a vector,
// never through a shell.
type Runner struct {
	stderrFunc StderrFunc
	waitDelay  time.Duration
}

func NewRunner() Runner {
	return Runner{waitDelay: defaultWaitDelay}
}

// WithStderr returns a runner forwarding every stderr line to fn.
func (r Runner) WithStderr(fn StderrFunc) Runner {
	r.stderrFunc = fn
	return r
}

// Run starts the command and waits for it. A non zero exit code is not an
// error. Timeouts (the command timeout or a deadline on ctx) kill the process and
// return *RunError tagged TagTimeout, launch failures are tagged TagSpawn.
// Timeout <= 0 disables the command's own timeout.
func (r Runner) Run(ctx context.Context, proto Command) (Result, error) {
	res := Result{
		Path:     proto.Path,
		Args:     append([]string(nil), proto.Args...),
		ExitCode: -1,
	}

	if proto.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, proto.Timeout)
		defer cancel()
	} else {
		slog.DebugContext(ctx, "command has no timeout", "path", proto.Path)
	}

	res.Started = time.Now().UTC()
	if err := ctx.Err(); err != nil {
		res.Stopped = res.Started
		return res, ctxError(err)
	}

	cmd := exec.CommandContext(ctx, proto.Path, proto.Args...)
	if len(proto.Env) > 0 {
		cmd.Env = append(os.Environ(), proto.Env...)
	}
	cmd.WaitDelay = r.waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	var lines *lineWriter
	if r.stderrFunc != nil {
		lines = &lineWriter{ctx: ctx, buf: &stderr, fn: r.stderrFunc}
		cmd.Stderr = lines
	} else {
		cmd.Stderr = &stderr
	}

	if err := cmd.Start(); err != nil {
		res.Stopped = time.Now().UTC()
		return res, &RunError{Tag: TagSpawn, Err: err}
	}

	err := cmd.Wait()
	res.Stopped = time.Now().UTC()
	if lines != nil {
		lines.flush()
	}
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		res.ExitCode = 0
		return res, nil
	case ctx.Err() != nil:
		return res, ctxError(ctx.Err())
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	case errors.Is(err, exec.ErrWaitDelay) && cmd.ProcessState != nil:
		res.ExitCode = cmd.ProcessState.ExitCode()
		return res, nil
	default:
		return res, &RunError{Tag: TagExec, Err: err}
	}
}

func ctxError(err error) *RunError {
	if errors.Is(err, context.DeadlineExceeded) {
		return &RunError{Tag: TagTimeout, Err: fmt.Errorf("command killed: %w", err)}
	}
	return &RunError{Tag: TagCanceled, Err: err}
}

// lineWriter keeps the whole stream in buf and hands complete lines to fn.
// os/exec writes from a single goroutine, so no locking is needed.
type lineWriter struct {
	ctx     context.Context
	buf     *bytes.Buffer
	pending []byte
	fn      StderrFunc
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.buf.Write(p)
	w.pending = append(w.pending, p...)
	for {
		i := bytes.IndexAny(w.pending, "\r\n")
		if i < 0 {
			break
		}
		if i > 0 {
			w.fn(w.ctx, string(w.pending[:i]))
		}
		w.pending = w.pending[i+1:]
	}
	return len(p), nil
}

func (w *lineWriter) flush() {
	if len(w.pending) > 0 {
		w.fn(w.ctx, string(w.pending))
		w.pending = nil
	}
}
