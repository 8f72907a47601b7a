// Package watermark tracks the newest crash record modification time that
// has been fully incorporated, so each run only looks at newer records.
//
// The persisted form is the modification time of a marker file.
package watermark

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"symfetch/internal/fsutil"
	"symfetch/internal/logging"
)

// Tracker holds the loaded watermark and the in-memory high-water mark of
// the current run.
type Tracker struct {
	path string

	mu     sync.Mutex
	since  time.Time
	latest time.Time
}

// New creates a tracker persisted at path. Load must be called before use.
func New(path string) *Tracker {
	return &Tracker{path: path}
}

// Load reads the persisted watermark. A missing marker yields the zero
// time, which admits every record.
func (t *Tracker) Load() (time.Time, error) {
	info, err := os.Stat(t.path)
	var since time.Time
	switch {
	case err == nil:
		since = info.ModTime()
	case errors.Is(err, os.ErrNotExist):
		logging.Get(logging.CategoryState).Info("No watermark at %s, starting from the beginning", t.path)
	default:
		return time.Time{}, fmt.Errorf("failed to stat watermark: %w", err)
	}

	t.mu.Lock()
	t.since = since
	t.latest = since
	t.mu.Unlock()
	return since, nil
}

// Admits reports whether a record modified at mtime is past the loaded
// watermark. Equal times are excluded.
func (t *Tracker) Admits(mtime time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return mtime.After(t.since)
}

// Advance raises the in-memory mark to mtime if it is newer. Call it only
// after the record was fully extracted.
func (t *Tracker) Advance(mtime time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if mtime.After(t.latest) {
		t.latest = mtime
	}
}

// Since returns the watermark loaded at the start of the run.
func (t *Tracker) Since() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.since
}

// Latest returns the in-memory mark.
func (t *Tracker) Latest() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.latest
}

// Commit persists the in-memory mark. Nothing is written when it never
// moved past the loaded value.
func (t *Tracker) Commit() error {
	t.mu.Lock()
	latest, since := t.latest, t.since
	t.mu.Unlock()

	if !latest.After(since) {
		logging.Get(logging.CategoryState).Debug("Watermark unchanged at %s", since.Format(time.RFC3339))
		return nil
	}

	if err := fsutil.WriteFileAtomic(t.path, []byte(latest.UTC().Format(time.RFC3339Nano)+"\n"), 0644); err != nil {
		return fmt.Errorf("failed to write watermark: %w", err)
	}
	if err := os.Chtimes(t.path, latest, latest); err != nil {
		return fmt.Errorf("failed to set watermark time: %w", err)
	}

	t.mu.Lock()
	t.since = latest
	t.mu.Unlock()

	logging.Get(logging.CategoryState).Info("Watermark committed at %s", latest.Format(time.RFC3339))
	return nil
}
