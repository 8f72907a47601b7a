package fetch

import (
	"fmt"
	"strings"

	"symfetch/internal/executor"
	"symfetch/internal/negcache"
	"symfetch/internal/types"
)

// Converter exit codes at or above this are an authoritative "not available".
const permanentExitCode = 2

// Classify turns one converter run into an outcome. symbolExists reports
// whether the expected file is at the destination after the run.
func Classify(ref types.ModuleRef, res *executor.ExecutionResult, err error, symbolExists bool) types.FetchOutcome {
	out := types.FetchOutcome{Ref: ref, ExitCode: -1, Attempted: err == nil}
	if res != nil {
		out.Duration = res.Duration
	}

	switch {
	case err != nil:
		out.Kind = types.OutcomeTransientFailure
		out.Reason = err.Error()
	case res.Canceled:
		out.Kind = types.OutcomeTransientFailure
		out.Reason = "run cancelled"
	case res.TimedOut:
		out.Kind = types.OutcomeTimedOut
	case res.Error != "":
		out.Kind = types.OutcomeTransientFailure
		out.Reason = res.Error
	case res.ExitCode >= permanentExitCode:
		out.Kind = types.OutcomePermanentFailure
		out.ExitCode = res.ExitCode
	default:
		out.ExitCode = res.ExitCode
		if symbolExists {
			out.Kind = types.OutcomeSuccess
			out.Path = ref.SymbolPath()
		} else {
			out.Kind = types.OutcomeSkipped
			out.Reason = "source has no symbol"
		}
	}
	return out
}

// FromDecision maps a filter skip to an outcome.
func FromDecision(ref types.ModuleRef, d negcache.Decision) types.FetchOutcome {
	out := types.FetchOutcome{Ref: ref, ExitCode: -1}
	if d.Reason == negcache.ReasonPresentLocal {
		out.Kind = types.OutcomeAlreadyPresent
		out.Path = ref.SymbolPath()
		return out
	}
	out.Kind = types.OutcomeSkipped
	out.Reason = d.Reason
	return out
}

// outputTail returns the last line of converter output for log context.
func outputTail(res *executor.ExecutionResult) string {
	if res == nil {
		return ""
	}
	s := strings.TrimSpace(res.Output())
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	if len(s) > 200 {
		s = s[:200]
	}
	if s == "" {
		return ""
	}
	return fmt.Sprintf(" (%s)", s)
}
