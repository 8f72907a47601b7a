// Package pipeline wires one symbol acquisition run: acquire candidates,
// filter them, fetch the rest, persist what was learned, and package and
// publish the symbols obtained.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"symfetch/internal/archive"
	"symfetch/internal/config"
	"symfetch/internal/fetch"
	"symfetch/internal/history"
	"symfetch/internal/logging"
	"symfetch/internal/negcache"
	"symfetch/internal/publish"
	"symfetch/internal/symstore"
	"symfetch/internal/types"
)

var (
	// ErrInputSource marks a failure to obtain candidates. Nothing was
	// fetched and no state was modified.
	ErrInputSource = errors.New("input source unavailable")

	// ErrState marks a failure to load the exclusion list or negative cache.
	ErrState = errors.New("state unavailable")
)

// Recorder stores finished runs.
type Recorder interface {
	RecordRun(ctx context.Context, run *history.Run, attempts []history.Attempt) error
}

// Deps are the collaborators of a Pipeline. Feed may be nil when the
// configuration names a module list; Publisher nil means publish.None;
// ReadOnly and History are optional.
type Deps struct {
	Source    fetch.Source
	Feed      Feed
	Publisher publish.Publisher
	ReadOnly  negcache.SymbolLookup
	History   Recorder

	// Now stamps archive names; nil means time.Now.
	Now func() time.Time
}

// Pipeline runs the acquisition pipeline.
type Pipeline struct {
	cfg       *config.Config
	source    fetch.Source
	feed      Feed
	publisher publish.Publisher
	readOnly  negcache.SymbolLookup
	history   Recorder
	now       func() time.Time
}

// New creates a pipeline.
func New(cfg *config.Config, deps Deps) *Pipeline {
	p := &Pipeline{
		cfg:       cfg,
		source:    deps.Source,
		feed:      deps.Feed,
		publisher: deps.Publisher,
		readOnly:  deps.ReadOnly,
		history:   deps.History,
		now:       deps.Now,
	}
	if p.publisher == nil {
		p.publisher = publish.None{}
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// Report summarizes a run.
type Report struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time

	Records        int
	SkippedRecords int
	Candidates     int

	Outcomes []types.FetchOutcome
	Summary  types.Summary

	// Archive is the published archive name, empty when nothing was packaged.
	Archive   string
	Published bool

	// PublishErr holds a packaging or publishing failure. The run still
	// counts as completed.
	PublishErr error

	// NegativeCacheDirty is the cache state before the end-of-run save.
	NegativeCacheDirty bool
	NegativeCacheErr   error

	Watermark    time.Time
	WatermarkErr error

	Cancelled bool
}

// Symbols returns how many symbols the run obtained.
func (r *Report) Symbols() int {
	return r.Summary.Symbols()
}

// Run performs one full pass. The returned error is non-nil only for
// failures before any fetch was attempted (ErrState, ErrInputSource, or a
// workspace that cannot be created); everything after that is recorded on
// the Report.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	log := logging.Get(logging.CategoryPipeline)
	report := &Report{RunID: uuid.NewString(), StartedAt: time.Now()}
	log.Info("Starting run %s", report.RunID)

	// 1. Persistent state
	exclusions, negatives, err := p.loadState()
	if err != nil {
		return report, err
	}

	// 2. Candidates
	acq, err := p.Acquire(ctx)
	if err != nil {
		return report, err
	}
	report.Records = acq.Records
	report.SkippedRecords = acq.SkippedRecords
	report.Candidates = acq.Candidates.Len()

	// 3. Fetch
	if acq.Candidates.Len() > 0 {
		if err := p.fetchAndPackage(ctx, report, acq, exclusions, negatives); err != nil {
			return report, err
		}
	} else {
		log.Info("No new modules to fetch")
	}

	report.Cancelled = ctx.Err() != nil

	// 4. Watermark
	if acq.Tracker != nil {
		if acq.Complete && !report.Cancelled {
			if err := acq.Tracker.Commit(); err != nil {
				report.WatermarkErr = err
				log.Error("Failed to commit watermark: %v", err)
			}
		} else {
			log.Warn("Run incomplete, watermark stays at %s", acq.Tracker.Since().Format(time.RFC3339))
		}
		report.Watermark = acq.Tracker.Since()
	}

	report.FinishedAt = time.Now()
	p.recordHistory(ctx, report)

	log.Info("Run %s finished in %s: %d candidates, %d symbols, %d failures",
		report.RunID, report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond),
		report.Candidates, report.Symbols(), report.Summary.Failures())
	return report, nil
}

func (p *Pipeline) fetchAndPackage(ctx context.Context, report *Report, acq *Acquisition,
	exclusions *negcache.ExclusionSet, negatives *negcache.NegativeCache) error {
	log := logging.Get(logging.CategoryPipeline)

	ws, err := archive.NewWorkspace(p.cfg.Package.WorkDir)
	if err != nil {
		return err
	}
	defer ws.Close()

	// The cache is saved on every path out of here, panics included.
	saved := false
	defer func() {
		if !saved {
			p.saveNegatives(report, negatives)
		}
	}()

	orch := &fetch.Orchestrator{
		Source: p.source,
		Filter: &negcache.Filter{
			Exclusions: exclusions,
			Negatives:  negatives,
			Local:      symstore.NewDir(ws.Dir),
			ReadOnly:   p.readOnly,
		},
		Negatives: negatives,
		Workspace: ws.Dir,
		Workers:   p.cfg.Fetch.Workers,
		Limiter:   fetch.NewLimiter(p.cfg.Fetch.RequestsPerSecond, p.cfg.Fetch.Burst),
	}
	result := orch.Run(ctx, acq.Candidates.Refs())
	report.Outcomes = result.Outcomes
	report.Summary = result.Summary

	p.saveNegatives(report, negatives)
	saved = true

	if ctx.Err() != nil {
		log.Warn("Run cancelled, not packaging")
		return nil
	}
	symbols := result.Symbols()
	if len(symbols) == 0 {
		log.Info("No symbols obtained, nothing to package")
		return nil
	}

	art, err := archive.Package(ws, p.cfg.ArchivePrefix(), p.now(), symbols)
	if err != nil {
		report.PublishErr = fmt.Errorf("package: %w", err)
		log.Error("Packaging failed: %v", err)
		return nil
	}
	report.Archive = art.ArchiveName

	if err := p.publisher.Publish(ctx, art); err != nil {
		report.PublishErr = fmt.Errorf("publish: %w", err)
		log.Error("Publishing %s failed: %v", art.ArchiveName, err)
		return nil
	}
	report.Published = true
	return nil
}

func (p *Pipeline) loadState() (*negcache.ExclusionSet, *negcache.NegativeCache, error) {
	exclusions := negcache.NewExclusionSet()
	if p.cfg.State.ExclusionFile != "" {
		var err error
		if exclusions, err = negcache.LoadExclusions(p.cfg.State.ExclusionFile); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrState, err)
		}
	}
	negatives, err := negcache.LoadNegativeCache(p.cfg.State.NegativeCacheFile)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrState, err)
	}
	return exclusions, negatives, nil
}

func (p *Pipeline) saveNegatives(report *Report, negatives *negcache.NegativeCache) {
	report.NegativeCacheDirty = negatives.Dirty()
	if err := negatives.Save(p.cfg.State.NegativeCacheFile); err != nil {
		report.NegativeCacheErr = err
		logging.Get(logging.CategoryState).Error("Failed to persist negative cache: %v", err)
	}
}

func (p *Pipeline) recordHistory(ctx context.Context, report *Report) {
	if p.history == nil {
		return
	}
	run := &history.Run{
		ID:         report.RunID,
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
		Candidates: report.Candidates,
		Attempted:  report.Summary.Attempted,
		Fetched:    report.Summary.Counts[types.OutcomeSuccess],
		Failed:    report.Summary.Counts[types.OutcomePermanentFailure] + report.Summary.Counts[types.OutcomeTransientFailure],
		TimedOut:  report.Summary.Counts[types.OutcomeTimedOut],
		Archive:   report.Archive,
		Published: report.Published,
	}
	if report.PublishErr != nil {
		run.Error = report.PublishErr.Error()
	}

	// The run context may already be cancelled.
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := p.history.RecordRun(hctx, run, history.AttemptsFrom(run.ID, report.Outcomes)); err != nil {
		logging.Get(logging.CategoryHistory).Warn("Failed to record run %s: %v", run.ID, err)
	}
}
