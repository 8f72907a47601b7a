// Package negcache holds the two lists that keep symfetch from asking the
// symbol source for things it should not or need not fetch: the static
// exclusion set of our own debug files, and the persistent negative cache of
// pairs the source has authoritatively said it does not have.
package negcache

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"symfetch/internal/fsutil"
	"symfetch/internal/logging"
	"symfetch/internal/types"
)

// =============================================================================
// EXCLUSION SET
// =============================================================================

// ExclusionSet is the read-only set of lowercased debug files that belong to
// our own builds.
type ExclusionSet struct {
	names map[string]struct{}
}

// NewExclusionSet builds a set from names, lowercasing each.
func NewExclusionSet(names ...string) *ExclusionSet {
	s := &ExclusionSet{names: make(map[string]struct{}, len(names))}
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n != "" {
			s.names[strings.ToLower(n)] = struct{}{}
		}
	}
	return s
}

// LoadExclusions reads a newline-delimited exclusion file. A missing file is
// an empty set.
func LoadExclusions(path string) (*ExclusionSet, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Get(logging.CategoryState).Debug("No exclusion file at %s", path)
			return NewExclusionSet(), nil
		}
		return nil, fmt.Errorf("failed to open exclusion file: %w", err)
	}
	defer f.Close()

	var names []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		names = append(names, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read exclusion file: %w", err)
	}

	set := NewExclusionSet(names...)
	logging.Get(logging.CategoryState).Info("Loaded %d excluded debug files from %s", set.Len(), path)
	return set, nil
}

// Contains reports whether debugFile is excluded, ignoring case.
func (s *ExclusionSet) Contains(debugFile string) bool {
	if s == nil {
		return false
	}
	_, ok := s.names[strings.ToLower(debugFile)]
	return ok
}

// Len returns the number of excluded names.
func (s *ExclusionSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.names)
}

// =============================================================================
// NEGATIVE CACHE
// =============================================================================

// NegativeCache maps a debug id to the lowercased debug file the symbol
// source failed to provide. A pair is previously-failed only when the id maps
// to exactly that file. Safe for concurrent use.
type NegativeCache struct {
	mu      sync.RWMutex
	entries map[string]string
	dirty   bool
}

// NewNegativeCache creates an empty cache.
func NewNegativeCache() *NegativeCache {
	return &NegativeCache{entries: make(map[string]string)}
}

// LoadNegativeCache reads a cache file of "debugId debugFile" lines.
// Blank lines and lines without exactly two tokens are ignored. A missing
// file is an empty cache; any other error is returned, because saving over
// a file we could not read would destroy it.
func LoadNegativeCache(path string) (*NegativeCache, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Get(logging.CategoryState).Debug("No negative cache at %s", path)
			return NewNegativeCache(), nil
		}
		return nil, fmt.Errorf("failed to open negative cache: %w", err)
	}
	defer f.Close()

	c, skipped, err := ReadNegativeCache(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read negative cache %s: %w", path, err)
	}
	if skipped > 0 {
		logging.Get(logging.CategoryState).Warn("Ignored %d malformed negative cache lines in %s", skipped, path)
	}
	logging.Get(logging.CategoryState).Info("Loaded %d negative cache entries from %s", c.Len(), path)
	return c, nil
}

// ReadNegativeCache parses the persisted form from r and returns the number
// of malformed lines it ignored.
func ReadNegativeCache(r io.Reader) (*NegativeCache, int, error) {
	c := NewNegativeCache()
	skipped := 0
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			skipped++
			continue
		}
		c.entries[fields[0]] = strings.ToLower(fields[1])
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, err
	}
	return c, skipped, nil
}

// Contains reports whether ref was recorded as authoritatively absent.
func (c *NegativeCache) Contains(ref types.ModuleRef) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	file, ok := c.entries[ref.DebugID]
	return ok && file == ref.NormalizedFile()
}

// Record stores ref as authoritatively absent. An existing entry for the
// same id is replaced.
func (c *NegativeCache) Record(ref types.ModuleRef) {
	c.mu.Lock()
	defer c.mu.Unlock()
	file := ref.NormalizedFile()
	if prev, ok := c.entries[ref.DebugID]; ok && prev == file {
		return
	}
	c.entries[ref.DebugID] = file
	c.dirty = true
}

// Remove deletes ref and reports whether it was present. This is how a pair
// is re-enabled for fetching.
func (c *NegativeCache) Remove(ref types.ModuleRef) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	file, ok := c.entries[ref.DebugID]
	if !ok || file != ref.NormalizedFile() {
		return false
	}
	delete(c.entries, ref.DebugID)
	c.dirty = true
	return true
}

// Len returns the number of entries.
func (c *NegativeCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Dirty reports whether the cache changed since it was loaded or saved.
func (c *NegativeCache) Dirty() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dirty
}

// Entries returns a sorted snapshot of the cache.
func (c *NegativeCache) Entries() []types.ModuleRef {
	c.mu.RLock()
	defer c.mu.RUnlock()
	refs := make([]types.ModuleRef, 0, len(c.entries))
	for id, file := range c.entries {
		refs = append(refs, types.ModuleRef{DebugFile: file, DebugID: id})
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].DebugID != refs[j].DebugID {
			return refs[i].DebugID < refs[j].DebugID
		}
		return refs[i].DebugFile < refs[j].DebugFile
	})
	return refs
}

// WriteTo writes the persisted form, one "debugId debugFile" line per entry
// sorted by id.
func (c *NegativeCache) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	for _, ref := range c.Entries() {
		buf.WriteString(ref.DebugID)
		buf.WriteByte(' ')
		buf.WriteString(ref.DebugFile)
		buf.WriteByte('\n')
	}
	return buf.WriteTo(w)
}

// Save atomically replaces path with the cache contents and clears the
// dirty flag.
func (c *NegativeCache) Save(path string) error {
	var buf bytes.Buffer
	if _, err := c.WriteTo(&buf); err != nil {
		return err
	}
	if err := fsutil.WriteFileAtomic(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to save negative cache: %w", err)
	}

	c.mu.Lock()
	c.dirty = false
	c.mu.Unlock()

	logging.Get(logging.CategoryState).Info("Saved %d negative cache entries to %s", c.Len(), path)
	return nil
}
