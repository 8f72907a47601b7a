package fetch

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"symfetch/internal/logging"
	"symfetch/internal/negcache"
	"symfetch/internal/types"
)

// DefaultWorkers is the pool size when none is configured.
const DefaultWorkers = 4

// Orchestrator fetches candidates into a workspace.
type Orchestrator struct {
	Source    Source
	Filter    *negcache.Filter
	Negatives *negcache.NegativeCache
	Workspace string

	// Workers bounds concurrent converter processes.
	Workers int

	// Limiter throttles converter launches; nil means unthrottled.
	Limiter *rate.Limiter
}

// Result holds every outcome sorted by debug file, then debug id.
type Result struct {
	Outcomes []types.FetchOutcome
	Summary  types.Summary
}

// Symbols returns the sorted index paths of every symbol obtained.
func (r *Result) Symbols() []string {
	var paths []string
	for _, o := range r.Outcomes {
		if o.ContributesSymbol() {
			paths = append(paths, o.Path)
		}
	}
	sort.Strings(paths)
	return paths
}

// NewLimiter builds a launch throttle. A non-positive rate disables it.
func NewLimiter(requestsPerSecond float64, burst int) *rate.Limiter {
	if requestsPerSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
}

// Run handles every ref and returns once all of them have an outcome.
// Cancelling ctx stops new launches and kills running converters; refs that
// were not attempted come back as transient failures.
func (o *Orchestrator) Run(ctx context.Context, refs []types.ModuleRef) *Result {
	timer := logging.StartTimer(logging.CategoryFetch, "Fetch batch")
	defer timer.StopWithInfo()

	workers := o.Workers
	if workers < 1 {
		workers = DefaultWorkers
	}

	outcomes := make([]types.FetchOutcome, len(refs))
	var g errgroup.Group
	g.SetLimit(workers)

	for i, ref := range refs {
		if ctx.Err() != nil {
			outcomes[i] = cancelled(ref)
			continue
		}
		g.Go(func() error {
			outcomes[i] = o.handle(ctx, ref)
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(outcomes, func(i, j int) bool {
		a, b := outcomes[i].Ref, outcomes[j].Ref
		if a.DebugFile != b.DebugFile {
			return a.DebugFile < b.DebugFile
		}
		return a.DebugID < b.DebugID
	})

	result := &Result{Outcomes: outcomes, Summary: types.Summarize(outcomes)}
	logging.Get(logging.CategoryFetch).Info("Fetched %d of %d candidates: %d failed, %d timed out",
		result.Summary.Counts[types.OutcomeSuccess], len(refs),
		result.Summary.Counts[types.OutcomeTransientFailure]+result.Summary.Counts[types.OutcomePermanentFailure],
		result.Summary.Counts[types.OutcomeTimedOut])
	return result
}

func (o *Orchestrator) handle(ctx context.Context, ref types.ModuleRef) types.FetchOutcome {
	log := logging.Get(logging.CategoryFetch)

	if ctx.Err() != nil {
		return cancelled(ref)
	}
	if o.Filter != nil {
		if d := o.Filter.Decide(ctx, ref); !d.Fetch {
			log.Debug("Not fetching %s: %s", ref, d.Reason)
			return FromDecision(ref, d)
		}
	}

	if o.Limiter != nil {
		// Wait fails only when ctx ends, or would end, before a token.
		if err := o.Limiter.Wait(ctx); err != nil {
			return cancelled(ref)
		}
	}

	start := time.Now()
	res, err := o.Source.Fetch(ctx, ref, o.Workspace)
	out := Classify(ref, res, err, o.symbolExists(ref))
	if out.Duration == 0 {
		out.Duration = time.Since(start)
	}

	switch out.Kind {
	case types.OutcomeSuccess:
		log.Info("Fetched %s in %s", out.Path, out.Duration.Round(time.Millisecond))
	case types.OutcomePermanentFailure:
		log.Info("Source does not have %s (exit %d)%s", ref, out.ExitCode, outputTail(res))
	case types.OutcomeTimedOut:
		log.Warn("Converter timed out for %s after %s", ref, out.Duration.Round(time.Millisecond))
	case types.OutcomeTransientFailure:
		log.Warn("Fetch of %s failed: %s", ref, out.Reason)
	default:
		log.Debug("%s%s", out, outputTail(res))
	}

	if out.RecordsNegative() && o.Negatives != nil {
		o.Negatives.Record(ref)
	}
	return out
}

func (o *Orchestrator) symbolExists(ref types.ModuleRef) bool {
	info, err := os.Stat(filepath.Join(o.Workspace, filepath.FromSlash(ref.SymbolPath())))
	return err == nil && info.Mode().IsRegular()
}

func cancelled(ref types.ModuleRef) types.FetchOutcome {
	return types.FetchOutcome{
		Ref:      ref,
		Kind:     types.OutcomeTransientFailure,
		Reason:   "run cancelled",
		ExitCode: -1,
	}
}
