// Package sandbox defines the command-execution contract tools consume and a
// Local implementation for running commands on the host.
//
// Failure modes that a model can reasonably recover from (timeout, output
// ceiling exceeded, undecodable output, missing or unexecutable command) are
// reported as loom.ToolError values, so a dispatcher-invoked tool can return
// them directly and the batch continues.
package sandbox

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/loomkit/loom"
)

// DefaultOutputLimit is the combined stdout+stderr ceiling applied when no
// explicit limit is configured.
const DefaultOutputLimit = 10 << 20 // 10 MiB

// ExecResult is the outcome of one executed command. Success reflects the
// exit status; a non-zero exit is a result, not an error.
type ExecResult struct {
	Success bool   `json:"success"`
	Stdout  string `json:"stdout"`
	Stderr  string `json:"stderr"`
}

// Executor runs commands in some isolated environment. A zero timeout means
// no timeout.
type Executor interface {
	Exec(ctx context.Context, command []string, timeout time.Duration) (*ExecResult, error)
}

// Local runs commands as host subprocesses. It implements Executor and is
// intended for tests and trusted local tooling; real isolation backends live
// elsewhere.
type Local struct {
	dir         string
	env         []string
	outputLimit int
}

// LocalOption configures a Local executor.
type LocalOption func(*Local)

// WithDir sets the working directory for executed commands.
func WithDir(dir string) LocalOption {
	return func(l *Local) { l.dir = dir }
}

// WithEnv sets the environment for executed commands, replacing the host
// environment.
func WithEnv(env []string) LocalOption {
	return func(l *Local) { l.env = env }
}

// WithOutputLimit sets the combined stdout+stderr size ceiling in bytes.
func WithOutputLimit(limit int) LocalOption {
	return func(l *Local) { l.outputLimit = limit }
}

// NewLocal creates a Local executor.
func NewLocal(opts ...LocalOption) *Local {
	l := &Local{outputLimit: DefaultOutputLimit}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Exec runs command, waiting at most timeout (zero means no timeout).
//
// A non-zero exit returns an ExecResult with Success false and a nil error.
// Timeouts, missing commands, permission denials, output over the ceiling,
// and non-UTF-8 output return the matching *loom.ToolError. Anything else is
// returned unchanged and is fatal to the caller.
func (l *Local) Exec(ctx context.Context, command []string, timeout time.Duration) (*ExecResult, error) {
	if len(command) == 0 {
		return nil, loom.NewToolError(loom.ToolErrorParsing, "empty command")
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	cmd.Dir = l.dir
	cmd.Env = l.env
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	if ctx.Err() == context.DeadlineExceeded {
		return nil, loom.NewToolError(loom.ToolErrorTimeout,
			"command %q exceeded %s timeout", strings.Join(command, " "), timeout)
	}
	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.As(err, &exitErr):
			// Fall through to the result below.
		case errors.Is(err, exec.ErrNotFound), errors.Is(err, os.ErrNotExist):
			return nil, loom.NewToolError(loom.ToolErrorFileNotFound, "%v", err)
		case errors.Is(err, os.ErrPermission):
			return nil, loom.NewToolError(loom.ToolErrorPermission, "%v", err)
		default:
			return nil, err
		}
	}

	if stdout.Len()+stderr.Len() > l.outputLimit {
		return nil, loom.NewToolError(loom.ToolErrorOutputLimit,
			"command output exceeded %d byte limit", l.outputLimit)
	}
	if !utf8.Valid(stdout.Bytes()) || !utf8.Valid(stderr.Bytes()) {
		return nil, loom.NewToolError(loom.ToolErrorUnicodeDecode,
			"command produced output that is not valid UTF-8")
	}

	return &ExecResult{
		Success: err == nil,
		Stdout:  stdout.String(),
		Stderr:  stderr.String(),
	}, nil
}
