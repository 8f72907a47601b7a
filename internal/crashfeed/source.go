// Package crashfeed lists and decodes processed crash records from a
// directory tree, and watches that tree for new records.
package crashfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar"
	"github.com/klauspost/compress/gzip"

	"symfetch/internal/logging"
)

// MonthToken in a pattern expands to the current YYYYMM.
const MonthToken = "{month}"

// Entry is one crash record file.
type Entry struct {
	Path    string
	ModTime time.Time
}

// Record is the part of a processed crash symfetch reads.
type Record struct {
	// Dump is the pipe-delimited module table.
	Dump string `json:"dump"`
}

// DirSource reads crash records from files under Root matching Pattern.
type DirSource struct {
	Root    string
	Pattern string

	// Now is used to expand MonthToken; nil means time.Now.
	Now func() time.Time
}

// NewDirSource creates a source over root with the given doublestar pattern.
func NewDirSource(root, pattern string) *DirSource {
	return &DirSource{Root: root, Pattern: pattern}
}

// ExpandPattern substitutes MonthToken for the month of now.
func ExpandPattern(pattern string, now time.Time) string {
	return strings.ReplaceAll(pattern, MonthToken, now.Format("200601"))
}

// List returns the records modified strictly after since, oldest first.
// An unreadable root is an error; files that vanish mid-listing are not.
func (s *DirSource) List(ctx context.Context, since time.Time) ([]Entry, error) {
	info, err := os.Stat(s.Root)
	if err != nil {
		return nil, fmt.Errorf("crash directory unavailable: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("crash directory %s is not a directory", s.Root)
	}

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	pattern := filepath.Join(s.Root, ExpandPattern(s.Pattern, now()))

	matches, err := doublestar.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to glob %s: %w", pattern, err)
	}

	entries := make([]Entry, 0, len(matches))
	for _, m := range matches {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fi, err := os.Stat(m)
		if err != nil {
			logging.Get(logging.CategoryFeed).Debug("Skipping %s: %v", m, err)
			continue
		}
		if fi.IsDir() || !fi.ModTime().After(since) {
			continue
		}
		entries = append(entries, Entry{Path: m, ModTime: fi.ModTime()})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].ModTime.Equal(entries[j].ModTime) {
			return entries[i].ModTime.Before(entries[j].ModTime)
		}
		return entries[i].Path < entries[j].Path
	})

	logging.Get(logging.CategoryFeed).Info("Found %d crash records newer than %s (%d matched)",
		len(entries), since.Format(time.RFC3339), len(matches))
	return entries, nil
}

// Read decodes one record. ".jsonz" files are gzip-compressed JSON; anything
// else is read as plain JSON.
func (s *DirSource) Read(ctx context.Context, e Entry) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(e.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open record: %w", err)
	}
	defer f.Close()
	return Decode(f, strings.HasSuffix(e.Path, ".jsonz"))
}

// Decode parses a record from r, gunzipping first when compressed is set.
func Decode(r io.Reader, compressed bool) (*Record, error) {
	if compressed {
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		defer zr.Close()
		r = zr
	}

	var rec Record
	if err := json.NewDecoder(r).Decode(&rec); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	return &rec, nil
}
