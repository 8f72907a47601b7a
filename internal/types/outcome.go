package types

import (
	"fmt"
	"time"
)

// OutcomeKind tags a FetchOutcome.
type OutcomeKind string

const (
	// OutcomeSuccess means the converter produced the expected symbol file.
	OutcomeSuccess OutcomeKind = "success"

	// OutcomeAlreadyPresent means the symbol was already in the workspace.
	OutcomeAlreadyPresent OutcomeKind = "already_present"

	// OutcomeSkipped means no fetch happened, or the source had nothing and
	// said so non-authoritatively (exit code 0 or 1 without output).
	OutcomeSkipped OutcomeKind = "skipped"

	// OutcomeTransientFailure covers launch errors, abnormal termination and
	// run cancellation. Retried next time the module is seen.
	OutcomeTransientFailure OutcomeKind = "transient_failure"

	// OutcomePermanentFailure is an authoritative "source does not have it"
	// (exit code >= 2). Recorded in the negative cache.
	OutcomePermanentFailure OutcomeKind = "permanent_failure"

	// OutcomeTimedOut means the converter was killed at its deadline.
	// Never recorded in the negative cache.
	OutcomeTimedOut OutcomeKind = "timed_out"
)

// AllOutcomeKinds lists every kind in reporting order.
var AllOutcomeKinds = []OutcomeKind{
	OutcomeSuccess,
	OutcomeAlreadyPresent,
	OutcomeSkipped,
	OutcomeTransientFailure,
	OutcomePermanentFailure,
	OutcomeTimedOut,
}

// FetchOutcome is the classified result of handling one candidate.
type FetchOutcome struct {
	Ref  ModuleRef   `json:"ref"`
	Kind OutcomeKind `json:"kind"`

	// Path is the workspace-relative symbol path for Success and AlreadyPresent.
	Path string `json:"path,omitempty"`

	// Reason explains Skipped and TransientFailure outcomes.
	Reason string `json:"reason,omitempty"`

	// ExitCode is the converter exit code, -1 when it never exited normally
	// or was never run.
	ExitCode int `json:"exit_code"`

	// Attempted is set when the symbol source was invoked.
	Attempted bool `json:"attempted"`

	Duration time.Duration `json:"duration"`
}

// RecordsNegative reports whether this outcome must be written to the
// negative cache.
func (o FetchOutcome) RecordsNegative() bool {
	return o.Kind == OutcomePermanentFailure
}

// ContributesSymbol reports whether this outcome adds a path to the archive
// index.
func (o FetchOutcome) ContributesSymbol() bool {
	return (o.Kind == OutcomeSuccess || o.Kind == OutcomeAlreadyPresent) && o.Path != ""
}

func (o FetchOutcome) String() string {
	switch o.Kind {
	case OutcomeSuccess, OutcomeAlreadyPresent:
		return fmt.Sprintf("%s %s -> %s", o.Kind, o.Ref, o.Path)
	case OutcomePermanentFailure:
		return fmt.Sprintf("%s %s (exit %d)", o.Kind, o.Ref, o.ExitCode)
	case OutcomeSkipped, OutcomeTransientFailure:
		return fmt.Sprintf("%s %s: %s", o.Kind, o.Ref, o.Reason)
	default:
		return fmt.Sprintf("%s %s", o.Kind, o.Ref)
	}
}

// Summary counts outcomes per kind.
type Summary struct {
	Counts    map[OutcomeKind]int `json:"counts"`
	Total     int                 `json:"total"`
	Attempted int                 `json:"attempted"`
}

// Summarize counts the given outcomes.
func Summarize(outcomes []FetchOutcome) Summary {
	s := Summary{Counts: make(map[OutcomeKind]int, len(AllOutcomeKinds))}
	for _, o := range outcomes {
		s.Counts[o.Kind]++
		s.Total++
		if o.Attempted {
			s.Attempted++
		}
	}
	return s
}

// Symbols returns how many outcomes contributed a symbol.
func (s Summary) Symbols() int {
	return s.Counts[OutcomeSuccess] + s.Counts[OutcomeAlreadyPresent]
}

// Failures returns transient plus permanent failures plus timeouts.
func (s Summary) Failures() int {
	return s.Counts[OutcomeTransientFailure] + s.Counts[OutcomePermanentFailure] + s.Counts[OutcomeTimedOut]
}
