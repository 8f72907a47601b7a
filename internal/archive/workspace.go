// Package archive owns the per-run workspace and turns the symbols fetched
// into it into a dated index file and zip archive.
package archive

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"symfetch/internal/logging"
)

// Workspace is a private temporary directory that the symbol source writes
// into. Close removes it together with any archive built from it.
type Workspace struct {
	Dir string

	outDir   string
	archives []string
	closed   bool
}

// NewWorkspace creates a fresh workspace under parent (os.TempDir() when
// empty). Archives are written next to the workspace, never inside it.
func NewWorkspace(parent string) (*Workspace, error) {
	if parent == "" {
		parent = os.TempDir()
	}
	if err := os.MkdirAll(parent, 0755); err != nil {
		return nil, fmt.Errorf("failed to create work directory: %w", err)
	}
	dir, err := os.MkdirTemp(parent, "symfetch-")
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	logging.Get(logging.CategoryArchive).Debug("Created workspace %s", dir)
	return &Workspace{Dir: dir, outDir: dir + ".out"}, nil
}

// trackArchive returns the path for an archive named name and arranges for
// Close to remove it.
func (w *Workspace) trackArchive(name string) (string, error) {
	if err := os.MkdirAll(w.outDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}
	path := filepath.Join(w.outDir, name)
	w.archives = append(w.archives, path)
	return path, nil
}

// Close removes the workspace and every archive built from it. It is safe
// to call more than once.
func (w *Workspace) Close() error {
	if w == nil || w.closed {
		return nil
	}
	w.closed = true

	var errs []error
	if err := os.RemoveAll(w.Dir); err != nil {
		errs = append(errs, fmt.Errorf("remove workspace: %w", err))
	}
	for _, a := range w.archives {
		if err := os.Remove(a); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove archive: %w", err))
		}
	}
	if err := os.RemoveAll(w.outDir); err != nil {
		errs = append(errs, fmt.Errorf("remove archive directory: %w", err))
	}

	err := errors.Join(errs...)
	if err != nil {
		logging.Get(logging.CategoryArchive).Error("Workspace cleanup incomplete: %v", err)
	} else {
		logging.Get(logging.CategoryArchive).Debug("Removed workspace %s", w.Dir)
	}
	return err
}
