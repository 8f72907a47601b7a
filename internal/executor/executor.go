package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"symfetch/internal/logging"
)

// Executor runs commands.
type Executor interface {
	// Execute runs cmd. A returned error means the command was invalid;
	// launch and runtime failures are reported on the result.
	Execute(ctx context.Context, cmd Command) (*ExecutionResult, error)
}

// DirectExecutor executes commands on the host using os/exec.
type DirectExecutor struct {
	config Config
}

// NewDirectExecutor creates an executor with cfg. Zero fields take the
// defaults.
func NewDirectExecutor(cfg Config) *DirectExecutor {
	def := DefaultConfig()
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = def.DefaultTimeout
	}
	if cfg.WaitDelay <= 0 {
		cfg.WaitDelay = def.WaitDelay
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = def.MaxOutputBytes
	}
	if cfg.AllowedEnvironment == nil {
		cfg.AllowedEnvironment = def.AllowedEnvironment
	}
	logging.Get(logging.CategoryExec).Debug("Creating DirectExecutor: timeout=%s, maxOutput=%d bytes",
		cfg.DefaultTimeout, cfg.MaxOutputBytes)
	return &DirectExecutor{config: cfg}
}

// Execute runs cmd under its deadline. When the deadline passes or ctx is
// cancelled the process is killed.
func (e *DirectExecutor) Execute(ctx context.Context, cmd Command) (*ExecutionResult, error) {
	if cmd.Binary == "" {
		return nil, fmt.Errorf("binary is required")
	}
	log := logging.Get(logging.CategoryExec)

	timeout := e.config.DefaultTimeout
	if cmd.Timeout > 0 {
		timeout = cmd.Timeout
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	execCmd := exec.CommandContext(execCtx, cmd.Binary, cmd.Arguments...)
	execCmd.Dir = cmd.WorkingDirectory
	execCmd.Env = e.buildEnvironment(cmd.Environment)
	execCmd.WaitDelay = e.config.WaitDelay

	var stdoutBuf, stderrBuf bytes.Buffer
	stdoutLimited := &limitedWriter{w: &stdoutBuf, max: e.config.MaxOutputBytes}
	stderrLimited := &limitedWriter{w: &stderrBuf, max: e.config.MaxOutputBytes}
	execCmd.Stdout = stdoutLimited
	execCmd.Stderr = stderrLimited

	result := &ExecutionResult{ExitCode: -1}
	log.Debug("Executing: %s (timeout=%s)", cmd.CommandString(), timeout)

	result.StartedAt = time.Now()
	err := execCmd.Run()
	result.FinishedAt = time.Now()
	result.Duration = result.FinishedAt.Sub(result.StartedAt)

	result.Stdout = stdoutBuf.String()
	result.Stderr = stderrBuf.String()
	if stdoutLimited.truncated || stderrLimited.truncated {
		result.Truncated = true
		result.TruncatedBytes = stdoutLimited.discarded + stderrLimited.discarded
	}

	if err == nil {
		result.ExitCode = 0
		log.Debug("Command completed: %s -> exit=0, duration=%s", cmd.Binary, result.Duration)
		return result, nil
	}

	// The caller's context is checked first: its cancellation also shows
	// up as an error on execCtx.
	var exitErr *exec.ExitError
	switch {
	case ctx.Err() != nil:
		result.Canceled = true
		log.Debug("Command canceled: %s", cmd.Binary)
	case errors.Is(execCtx.Err(), context.DeadlineExceeded):
		result.TimedOut = true
		log.Warn("Command killed (timeout): %s after %s", cmd.CommandString(), timeout)
	case errors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitCode()
		if result.ExitCode < 0 {
			// Terminated by a signal
			result.Error = exitErr.Error()
		}
		log.Debug("Command exited non-zero: %s -> %d", cmd.Binary, result.ExitCode)
	default:
		result.Error = err.Error()
		log.Error("Command failed: %s - %v", cmd.Binary, err)
	}
	return result, nil
}

// buildEnvironment passes through the allowed parent variables followed by
// the command's own.
func (e *DirectExecutor) buildEnvironment(cmdEnv []string) []string {
	env := make([]string, 0, len(e.config.AllowedEnvironment)+len(cmdEnv))
	for _, key := range e.config.AllowedEnvironment {
		if val, ok := os.LookupEnv(key); ok {
			env = append(env, key+"="+val)
		}
	}
	return append(env, cmdEnv...)
}

// limitedWriter is an io.Writer that limits total bytes written.
type limitedWriter struct {
	w         io.Writer
	max       int64
	written   int64
	truncated bool
	discarded int64
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)

	if lw.written >= lw.max {
		lw.truncated = true
		lw.discarded += int64(n)
		return n, nil // Pretend we wrote it
	}

	remaining := lw.max - lw.written
	if int64(n) > remaining {
		lw.truncated = true
		lw.discarded += int64(n) - remaining
		written, err := lw.w.Write(p[:remaining])
		lw.written += int64(written)
		return n, err // Original length avoids "short write" errors
	}

	written, err := lw.w.Write(p)
	lw.written += int64(written)
	return written, err
}
