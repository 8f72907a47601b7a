package archive

import (
	"bufio"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"

	"symfetch/internal/logging"
)

// TimestampLayout is the timestamp embedded in artifact names.
const TimestampLayout = "20060102150405"

// Artifact is a packaged archive ready for publishing.
type Artifact struct {
	// ArchivePath is the local zip file. It is removed with the workspace.
	ArchivePath string

	IndexName   string
	ArchiveName string

	// Index lists the forward-slash symbol paths, sorted.
	Index []string
}

// BaseName returns "<prefix>-<YYYYMMDDHHMMSS>-symbols".
func BaseName(prefix string, ts time.Time) string {
	return fmt.Sprintf("%s-%s-symbols", prefix, ts.Format(TimestampLayout))
}

// Names returns the index and archive file names for prefix at ts.
func Names(prefix string, ts time.Time) (index, archive string) {
	base := BaseName(prefix, ts)
	return base + ".txt", base + ".zip"
}

// Package writes the index for paths into the workspace, then zips the whole
// workspace tree. paths must be non-empty.
func Package(ws *Workspace, prefix string, ts time.Time, paths []string) (*Artifact, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("nothing to package")
	}
	timer := logging.StartTimer(logging.CategoryArchive, "Package symbols")
	defer timer.Stop()

	index := append([]string(nil), paths...)
	sort.Strings(index)

	indexName, archiveName := Names(prefix, ts)
	if err := writeIndex(filepath.Join(ws.Dir, indexName), index); err != nil {
		return nil, err
	}

	archivePath, err := ws.trackArchive(archiveName)
	if err != nil {
		return nil, err
	}
	files, err := ZipDir(ws.Dir, archivePath)
	if err != nil {
		return nil, err
	}

	logging.Get(logging.CategoryArchive).Info("Packaged %d symbols (%d files) into %s", len(index), files, archiveName)
	return &Artifact{
		ArchivePath: archivePath,
		IndexName:   indexName,
		ArchiveName: archiveName,
		Index:       index,
	}, nil
}

func writeIndex(path string, index []string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	w := bufio.NewWriter(f)
	for _, p := range index {
		w.WriteString(p)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("failed to write index: %w", err)
	}
	return f.Close()
}

// ZipDir writes every regular file under root into a new zip at dst, with
// forward-slash names relative to root. It returns the number of files.
func ZipDir(root, dst string) (int, error) {
	out, err := os.Create(dst)
	if err != nil {
		return 0, fmt.Errorf("failed to create archive: %w", err)
	}

	zw := zip.NewWriter(out)
	count := 0
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if err := addFile(zw, path, filepath.ToSlash(rel)); err != nil {
			return err
		}
		count++
		return nil
	})

	if err := zw.Close(); err != nil && walkErr == nil {
		walkErr = err
	}
	if err := out.Close(); err != nil && walkErr == nil {
		walkErr = err
	}
	if walkErr != nil {
		os.Remove(dst)
		return 0, fmt.Errorf("failed to zip %s: %w", root, walkErr)
	}
	return count, nil
}

func addFile(zw *zip.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = strings.TrimPrefix(name, "/")
	hdr.Method = zip.Deflate

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, f)
	return err
}
