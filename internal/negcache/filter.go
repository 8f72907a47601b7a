package negcache

import (
	"context"

	"symfetch/internal/logging"
	"symfetch/internal/types"
)

// Reasons a Filter can give for not fetching a ref.
const (
	ReasonExcluded        = "excluded"
	ReasonNegativeCached  = "negative-cached"
	ReasonPresentLocal    = "present-local"
	ReasonPresentReadOnly = "present-read-only"
)

// SymbolLookup answers whether a symbol file exists at a store-relative,
// forward-slash path.
type SymbolLookup interface {
	Exists(ctx context.Context, relPath string) (bool, error)
}

// Decision is the outcome of Filter.Decide. Reason is empty when Fetch is true.
type Decision struct {
	Fetch  bool
	Reason string
}

// Filter decides, for each candidate, whether the symbol source should be
// asked for it. Local and ReadOnly may be nil.
type Filter struct {
	Exclusions *ExclusionSet
	Negatives  *NegativeCache
	Local      SymbolLookup
	ReadOnly   SymbolLookup
}

// Decide evaluates the checks in order: exclusion, negative cache, local
// presence, read-only presence. The first that matches wins, so an excluded
// file never consults the negative cache.
func (f *Filter) Decide(ctx context.Context, ref types.ModuleRef) Decision {
	if f.Exclusions.Contains(ref.DebugFile) {
		return Decision{Reason: ReasonExcluded}
	}
	if f.Negatives != nil && f.Negatives.Contains(ref) {
		return Decision{Reason: ReasonNegativeCached}
	}

	rel := ref.SymbolPath()
	if f.present(ctx, f.Local, rel, "local") {
		return Decision{Reason: ReasonPresentLocal}
	}
	if f.present(ctx, f.ReadOnly, rel, "read-only") {
		return Decision{Reason: ReasonPresentReadOnly}
	}
	return Decision{Fetch: true}
}

// ShouldFetch reports whether ref must be fetched.
func (f *Filter) ShouldFetch(ctx context.Context, ref types.ModuleRef) bool {
	return f.Decide(ctx, ref).Fetch
}

func (f *Filter) present(ctx context.Context, store SymbolLookup, rel, name string) bool {
	if store == nil {
		return false
	}
	ok, err := store.Exists(ctx, rel)
	if err != nil {
		// Absent: worst case is a redundant fetch.
		logging.Get(logging.CategoryState).Warn("Lookup of %s in %s store failed: %v", rel, name, err)
		return false
	}
	return ok
}
