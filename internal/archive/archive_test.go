package archive

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ts = time.Date(2010, 6, 15, 8, 30, 5, 0, time.UTC)

func writeSymbol(t *testing.T, ws *Workspace, rel string) {
	t.Helper()
	path := filepath.Join(ws.Dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("MODULE windows x86 "+rel+"\n"), 0644))
}

func TestNames(t *testing.T) {
	index, archive := Names("firefox-3.6-WINNT", ts)
	assert.Equal(t, "firefox-3.6-WINNT-20100615083005-symbols.txt", index)
	assert.Equal(t, "firefox-3.6-WINNT-20100615083005-symbols.zip", archive)
}

func TestPackage(t *testing.T) {
	ws, err := NewWorkspace(t.TempDir())
	require.NoError(t, err)
	defer ws.Close()

	paths := []string{"foo.pdb/ABC/foo.sym", "bar.pdb/DEF/bar.sym"}
	for _, p := range paths {
		writeSymbol(t, ws, p)
	}

	art, err := Package(ws, "firefox-3.6-WINNT", ts, paths)
	require.NoError(t, err)

	assert.Equal(t, []string{"bar.pdb/DEF/bar.sym", "foo.pdb/ABC/foo.sym"}, art.Index)
	assert.NotContains(t, art.ArchivePath, ws.Dir+string(filepath.Separator), "archive lives outside the workspace")

	index, err := os.ReadFile(filepath.Join(ws.Dir, art.IndexName))
	require.NoError(t, err)
	assert.Equal(t, "bar.pdb/DEF/bar.sym\nfoo.pdb/ABC/foo.sym\n", string(index))

	zr, err := zip.OpenReader(art.ArchivePath)
	require.NoError(t, err)
	defer zr.Close()

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	want := []string{"bar.pdb/DEF/bar.sym", "firefox-3.6-WINNT-20100615083005-symbols.txt", "foo.pdb/ABC/foo.sym"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("zip entries mismatch (-want +got):\n%s", diff)
	}

	for _, f := range zr.File {
		if f.Name != "foo.pdb/ABC/foo.sym" {
			continue
		}
		rc, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)
		assert.Equal(t, "MODULE windows x86 foo.pdb/ABC/foo.sym\n", string(data))
	}
}

func TestPackage_Empty(t *testing.T) {
	ws, err := NewWorkspace(t.TempDir())
	require.NoError(t, err)
	defer ws.Close()

	_, err = Package(ws, "firefox-3.6-WINNT", ts, nil)
	assert.Error(t, err)
}

func TestWorkspace_CloseRemovesEverything(t *testing.T) {
	parent := t.TempDir()
	ws, err := NewWorkspace(parent)
	require.NoError(t, err)

	writeSymbol(t, ws, "foo.pdb/ABC/foo.sym")
	art, err := Package(ws, "p", ts, []string{"foo.pdb/ABC/foo.sym"})
	require.NoError(t, err)

	require.NoError(t, ws.Close())
	require.NoError(t, ws.Close(), "second close is a no-op")

	_, err = os.Stat(ws.Dir)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(art.ArchivePath)
	assert.True(t, os.IsNotExist(err))

	entries, err := os.ReadDir(parent)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWorkspace_CloseAfterPanic(t *testing.T) {
	parent := t.TempDir()
	var dir string

	func() {
		defer func() { recover() }()
		ws, err := NewWorkspace(parent)
		require.NoError(t, err)
		defer ws.Close()
		dir = ws.Dir
		panic("packaging blew up")
	}()

	_, err := os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}
