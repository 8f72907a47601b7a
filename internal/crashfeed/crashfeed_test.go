package crashfeed

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var june2010 = time.Date(2010, 6, 15, 0, 0, 0, 0, time.UTC)

func writeRecord(t *testing.T, path, dump string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(`{"dump": ` + quote(dump) + `, "signature": "x"}`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, "\n", `\n`) + `"`
}

func TestExpandPattern(t *testing.T) {
	assert.Equal(t, "201006*/name/*/*/*.jsonz", ExpandPattern("{month}*/name/*/*/*.jsonz", june2010))
	assert.Equal(t, "**/*.json", ExpandPattern("**/*.json", june2010))
}

func TestList_FiltersAndSorts(t *testing.T) {
	root := t.TempDir()
	base := time.Date(2010, 6, 10, 0, 0, 0, 0, time.UTC)

	newer := filepath.Join(root, "20100610", "name", "ab", "cd", "newer.jsonz")
	older := filepath.Join(root, "20100611", "name", "ab", "cd", "older.jsonz")
	atMark := filepath.Join(root, "20100612", "name", "ab", "cd", "at-mark.jsonz")
	lastMonth := filepath.Join(root, "20100530", "name", "ab", "cd", "may.jsonz")
	wrongDepth := filepath.Join(root, "20100610", "name", "shallow.jsonz")

	writeRecord(t, newer, "", base.Add(2*time.Hour))
	writeRecord(t, older, "", base.Add(time.Hour))
	writeRecord(t, atMark, "", base)
	writeRecord(t, lastMonth, "", base.Add(3*time.Hour))
	writeRecord(t, wrongDepth, "", base.Add(3*time.Hour))

	src := NewDirSource(root, "{month}*/name/*/*/*.jsonz")
	src.Now = func() time.Time { return june2010 }

	entries, err := src.List(context.Background(), base)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, older, entries[0].Path)
	assert.Equal(t, newer, entries[1].Path)
}

func TestList_MissingRootIsFatal(t *testing.T) {
	src := NewDirSource(filepath.Join(t.TempDir(), "gone"), "**/*.jsonz")
	_, err := src.List(context.Background(), time.Time{})
	assert.Error(t, err)
}

func TestRead(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.jsonz")
	writeRecord(t, path, "Module|foo.dll|1.0|foo.pdb|ABC123\nModule|bar.dll|1.0|bar.pdb|DEF456", june2010)

	src := NewDirSource(root, "*.jsonz")
	rec, err := src.Read(context.Background(), Entry{Path: path})
	require.NoError(t, err)
	assert.Equal(t, "Module|foo.dll|1.0|foo.pdb|ABC123\nModule|bar.dll|1.0|bar.pdb|DEF456", rec.Dump)

	plain := filepath.Join(root, "b.json")
	require.NoError(t, os.WriteFile(plain, []byte(`{"dump":"Module|a|b|c.pdb|D"}`), 0644))
	rec, err = src.Read(context.Background(), Entry{Path: plain})
	require.NoError(t, err)
	assert.Equal(t, "Module|a|b|c.pdb|D", rec.Dump)
}

func TestRead_Corrupt(t *testing.T) {
	root := t.TempDir()
	src := NewDirSource(root, "*")

	notGzip := filepath.Join(root, "bad.jsonz")
	require.NoError(t, os.WriteFile(notGzip, []byte("plain text"), 0644))
	_, err := src.Read(context.Background(), Entry{Path: notGzip})
	assert.Error(t, err)

	notJSON := filepath.Join(root, "bad.json")
	require.NoError(t, os.WriteFile(notJSON, []byte("{"), 0644))
	_, err = src.Read(context.Background(), Entry{Path: notJSON})
	assert.Error(t, err)
}

func TestWatcher_TriggersOnNewRecord(t *testing.T) {
	root := t.TempDir()
	w, err := NewWatcher(root, 50*time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	dir := filepath.Join(root, "20100615")
	require.NoError(t, os.MkdirAll(dir, 0755))
	// Give the loop a moment to add the new directory.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "r.jsonz"), []byte("x"), 0644))

	select {
	case <-w.Triggers():
	case <-time.After(5 * time.Second):
		t.Fatal("watcher never triggered")
	}
}

func TestWatcher_StopWithoutStart(t *testing.T) {
	w, err := NewWatcher(t.TempDir(), time.Second)
	require.NoError(t, err)
	w.Stop()
}
