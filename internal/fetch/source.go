// Package fetch drives the symbol source over a set of candidates with a
// bounded worker pool, classifying every attempt into a FetchOutcome and
// recording authoritative failures in the negative cache.
package fetch

import (
	"context"
	"time"

	"symfetch/internal/executor"
	"symfetch/internal/types"
)

// Source asks an external converter for one symbol, writing it under the
// workspace at ref.SymbolPath() on success.
type Source interface {
	Fetch(ctx context.Context, ref types.ModuleRef, workspace string) (*executor.ExecutionResult, error)
}

// ConvertSource runs a symsrv_convert style binary:
//
//	<binary> [extra args] <server_url> <workspace> <debugFile> <debugId>
type ConvertSource struct {
	Exec      executor.Executor
	Binary    string
	ServerURL string
	ExtraArgs []string
	Timeout   time.Duration
}

// Fetch implements Source.
func (s *ConvertSource) Fetch(ctx context.Context, ref types.ModuleRef, workspace string) (*executor.ExecutionResult, error) {
	args := make([]string, 0, len(s.ExtraArgs)+4)
	args = append(args, s.ExtraArgs...)
	args = append(args, s.ServerURL, workspace, ref.DebugFile, ref.DebugID)

	return s.Exec.Execute(ctx, executor.Command{
		Binary:           s.Binary,
		Arguments:        args,
		WorkingDirectory: workspace,
		Timeout:          s.Timeout,
	})
}
