package pipeline

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"symfetch/internal/crashfeed"
	"symfetch/internal/logging"
	"symfetch/internal/modules"
	"symfetch/internal/types"
	"symfetch/internal/watermark"
)

// Feed lists and decodes crash records.
type Feed interface {
	List(ctx context.Context, since time.Time) ([]crashfeed.Entry, error)
	Read(ctx context.Context, e crashfeed.Entry) (*crashfeed.Record, error)
}

// Acquisition is the candidate set of a run and how it was obtained.
type Acquisition struct {
	Candidates *types.CandidateSet

	// Modules holds one entry per candidate, with the first code file seen,
	// sorted by ref.
	Modules []modules.Module

	// Tracker is nil when candidates came from a module list.
	Tracker *watermark.Tracker

	// Complete is set when every listed record was visited.
	Complete bool

	Records        int
	SkippedRecords int
}

// Acquire builds the candidate set from the module list when one is
// configured, otherwise from crash records newer than the watermark.
// Errors wrap ErrInputSource; no state has been modified when one is
// returned.
func (p *Pipeline) Acquire(ctx context.Context) (*Acquisition, error) {
	if p.cfg.Input.ModulesCSV != "" {
		return p.acquireCSV(p.cfg.Input.ModulesCSV)
	}
	return p.acquireFeed(ctx)
}

func (p *Pipeline) acquireCSV(path string) (*Acquisition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInputSource, err)
	}
	defer f.Close()

	mods, err := modules.ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInputSource, err)
	}

	acq := &Acquisition{Candidates: types.NewCandidateSet(), Complete: true}
	for _, m := range mods {
		acq.add(m)
	}
	acq.sortModules()
	logging.Get(logging.CategoryExtract).Info("Read %d modules (%d distinct) from %s", len(mods), acq.Candidates.Len(), path)
	return acq, nil
}

func (p *Pipeline) acquireFeed(ctx context.Context) (*Acquisition, error) {
	log := logging.Get(logging.CategoryExtract)
	if p.feed == nil {
		return nil, fmt.Errorf("%w: no crash record feed configured", ErrInputSource)
	}

	tracker := watermark.New(p.cfg.State.WatermarkFile)
	since, err := tracker.Load()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInputSource, err)
	}

	entries, err := p.feed.List(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInputSource, err)
	}

	acq := &Acquisition{Candidates: types.NewCandidateSet(), Tracker: tracker, Complete: true}
	for _, e := range entries {
		if ctx.Err() != nil {
			acq.Complete = false
			log.Warn("Extraction interrupted after %d of %d records", acq.Records, len(entries))
			break
		}
		if !tracker.Admits(e.ModTime) {
			continue
		}

		rec, err := p.feed.Read(ctx, e)
		if err != nil {
			acq.SkippedRecords++
			log.Warn("Skipping unreadable crash record %s: %v", e.Path, err)
			continue
		}
		for m := range modules.Scan(rec.Dump) {
			acq.add(m)
		}
		acq.Records++
		tracker.Advance(e.ModTime)
	}
	acq.sortModules()

	log.Info("Extracted %d distinct modules (%d debug files) from %d crash records, %d skipped",
		acq.Candidates.Len(), acq.Candidates.Files(), acq.Records, acq.SkippedRecords)
	return acq, nil
}

func (a *Acquisition) add(m modules.Module) {
	if a.Candidates.Add(m.Ref) {
		a.Modules = append(a.Modules, m)
	}
}

func (a *Acquisition) sortModules() {
	sort.Slice(a.Modules, func(i, j int) bool {
		x, y := a.Modules[i].Ref, a.Modules[j].Ref
		if x.DebugFile != y.DebugFile {
			return x.DebugFile < y.DebugFile
		}
		return x.DebugID < y.DebugID
	})
}
