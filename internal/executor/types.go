// Package executor runs external programs as cancellable child tasks with a
// wall-clock budget and bounded output capture.
package executor

import (
	"strings"
	"time"
)

// Command describes one child process invocation.
type Command struct {
	// Binary is the executable to run.
	Binary string `json:"binary"`

	// Arguments are the command-line arguments.
	Arguments []string `json:"arguments"`

	// WorkingDirectory is the directory to execute in. Empty means the
	// current directory.
	WorkingDirectory string `json:"working_directory,omitempty"`

	// Environment variables to set (in KEY=VALUE format), added to the
	// allowed variables inherited from the parent.
	Environment []string `json:"environment,omitempty"`

	// Timeout overrides the executor default when positive.
	Timeout time.Duration `json:"timeout,omitempty"`
}

// CommandString returns the full command as a string (for display/logging).
func (c Command) CommandString() string {
	if len(c.Arguments) == 0 {
		return c.Binary
	}
	return c.Binary + " " + strings.Join(c.Arguments, " ")
}

// ExecutionResult is the outcome of running a Command.
type ExecutionResult struct {
	// ExitCode is the process exit code, -1 if the process never exited
	// normally (killed, never started).
	ExitCode int `json:"exit_code"`

	Stdout string `json:"stdout,omitempty"`
	Stderr string `json:"stderr,omitempty"`

	// Truncated is set when either stream exceeded the output limit.
	Truncated      bool  `json:"truncated,omitempty"`
	TruncatedBytes int64 `json:"truncated_bytes,omitempty"`

	// TimedOut is set when the command's own deadline killed it.
	TimedOut bool `json:"timed_out,omitempty"`

	// Canceled is set when the caller's context ended first.
	Canceled bool `json:"canceled,omitempty"`

	// Error is set when the process could not be started or waited on.
	Error string `json:"error,omitempty"`

	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   time.Duration `json:"duration"`
}

// Exited reports whether the process ran to completion and produced an exit
// code.
func (r *ExecutionResult) Exited() bool {
	return r.Error == "" && !r.TimedOut && !r.Canceled && r.ExitCode >= 0
}

// Output returns stdout followed by stderr.
func (r *ExecutionResult) Output() string {
	if r.Stderr == "" {
		return r.Stdout
	}
	if r.Stdout == "" {
		return r.Stderr
	}
	return r.Stdout + "\n" + r.Stderr
}

// Config holds executor defaults.
type Config struct {
	// DefaultTimeout applies when a Command has no Timeout.
	DefaultTimeout time.Duration

	// WaitDelay bounds how long to wait for I/O after the process is
	// killed, in case grandchildren still hold the output pipes.
	WaitDelay time.Duration

	// MaxOutputBytes caps each captured stream.
	MaxOutputBytes int64

	// AllowedEnvironment lists parent variables passed through to the child.
	AllowedEnvironment []string
}

// DefaultConfig returns the default executor configuration.
func DefaultConfig() Config {
	return Config{
		DefaultTimeout:     30 * time.Second,
		WaitDelay:          2 * time.Second,
		MaxOutputBytes:     64 * 1024,
		AllowedEnvironment: []string{"PATH", "HOME", "TMPDIR", "TEMP", "TMP", "SYSTEMROOT"},
	}
}
