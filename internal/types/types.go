// Package types holds the value types shared by every stage of the symbol
// acquisition pipeline: module references, candidate sets and fetch outcomes.
package types

import (
	"path"
	"sort"
	"strings"
)

// =============================================================================
// MODULE REFERENCES
// =============================================================================

// ModuleRef identifies the debug symbols of one compiled module.
// Identity is the (DebugFile, DebugID) pair. DebugFile keeps its original case
// for on-disk paths; comparisons for filtering use NormalizedFile.
type ModuleRef struct {
	DebugFile string `json:"debug_file"`
	DebugID   string `json:"debug_id"`
}

// NormalizedFile returns the lowercased debug file used for exclusion and
// negative cache lookups.
func (r ModuleRef) NormalizedFile() string {
	return strings.ToLower(r.DebugFile)
}

// Valid reports whether both components are usable as path elements.
// Crash records are untrusted input, so anything that could escape the
// workspace directory is rejected.
func (r ModuleRef) Valid() bool {
	return validElement(r.DebugFile) && validElement(r.DebugID)
}

func validElement(s string) bool {
	if s == "" || s == "." || s == ".." {
		return false
	}
	return !strings.ContainsAny(s, "/\\\x00")
}

// SymbolName is the file name of the converted symbol file: the debug file
// with a trailing ".pdb" (any case) replaced by ".sym".
func (r ModuleRef) SymbolName() string {
	base := r.DebugFile
	if len(base) >= 4 && strings.EqualFold(base[len(base)-4:], ".pdb") {
		base = base[:len(base)-4]
	}
	return base + ".sym"
}

// SymbolPath is the forward-slash path of the symbol file relative to a
// symbol store root: {debugFile}/{debugId}/{symbolName}.
func (r ModuleRef) SymbolPath() string {
	return path.Join(r.DebugFile, r.DebugID, r.SymbolName())
}

func (r ModuleRef) String() string {
	return r.DebugFile + "/" + r.DebugID
}

// =============================================================================
// CANDIDATE SET
// =============================================================================

// CandidateSet maps a debug file to the set of debug ids seen for it.
// It never holds a duplicate pair. The zero value is not usable; use
// NewCandidateSet.
type CandidateSet struct {
	files map[string]map[string]struct{}
	size  int
}

// NewCandidateSet creates an empty candidate set.
func NewCandidateSet() *CandidateSet {
	return &CandidateSet{files: make(map[string]map[string]struct{})}
}

// Add inserts ref and reports whether it was new.
func (c *CandidateSet) Add(ref ModuleRef) bool {
	ids, ok := c.files[ref.DebugFile]
	if !ok {
		ids = make(map[string]struct{})
		c.files[ref.DebugFile] = ids
	}
	if _, dup := ids[ref.DebugID]; dup {
		return false
	}
	ids[ref.DebugID] = struct{}{}
	c.size++
	return true
}

// Contains reports whether the exact pair is present.
func (c *CandidateSet) Contains(ref ModuleRef) bool {
	_, ok := c.files[ref.DebugFile][ref.DebugID]
	return ok
}

// Len returns the number of distinct pairs.
func (c *CandidateSet) Len() int {
	return c.size
}

// Files returns the number of distinct debug files.
func (c *CandidateSet) Files() int {
	return len(c.files)
}

// IDs returns the sorted debug ids recorded for debugFile.
func (c *CandidateSet) IDs(debugFile string) []string {
	ids := make([]string, 0, len(c.files[debugFile]))
	for id := range c.files[debugFile] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Refs returns every pair sorted by debug file, then debug id.
func (c *CandidateSet) Refs() []ModuleRef {
	files := make([]string, 0, len(c.files))
	for f := range c.files {
		files = append(files, f)
	}
	sort.Strings(files)

	refs := make([]ModuleRef, 0, c.size)
	for _, f := range files {
		for _, id := range c.IDs(f) {
			refs = append(refs, ModuleRef{DebugFile: f, DebugID: id})
		}
	}
	return refs
}

// Merge adds every pair of other into c.
func (c *CandidateSet) Merge(other *CandidateSet) {
	for f, ids := range other.files {
		for id := range ids {
			c.Add(ModuleRef{DebugFile: f, DebugID: id})
		}
	}
}
