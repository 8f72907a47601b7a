package pipeline

import (
	"context"

	"symfetch/internal/negcache"
	"symfetch/internal/types"
)

// PlanEntry is the filter decision for one candidate.
type PlanEntry struct {
	Ref      types.ModuleRef
	Decision negcache.Decision
}

// Plan acquires candidates and reports what a run would fetch, without
// invoking the symbol source or modifying any state. Workspace presence is
// not checked since a run always starts with an empty workspace.
func (p *Pipeline) Plan(ctx context.Context) ([]PlanEntry, *Acquisition, error) {
	exclusions, negatives, err := p.loadState()
	if err != nil {
		return nil, nil, err
	}
	acq, err := p.Acquire(ctx)
	if err != nil {
		return nil, nil, err
	}

	filter := &negcache.Filter{Exclusions: exclusions, Negatives: negatives, ReadOnly: p.readOnly}
	refs := acq.Candidates.Refs()
	plan := make([]PlanEntry, 0, len(refs))
	for _, r := range refs {
		if ctx.Err() != nil {
			break
		}
		plan = append(plan, PlanEntry{Ref: r, Decision: filter.Decide(ctx, r)})
	}
	return plan, acq, ctx.Err()
}
