package publish

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"symfetch/internal/archive"
	"symfetch/internal/objectstore"
)

func packaged(t *testing.T) *archive.Artifact {
	t.Helper()
	ws, err := archive.NewWorkspace(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })

	rel := filepath.Join("foo.pdb", "ABC", "foo.sym")
	require.NoError(t, os.MkdirAll(filepath.Join(ws.Dir, "foo.pdb", "ABC"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(ws.Dir, rel), []byte("MODULE"), 0644))

	art, err := archive.Package(ws, "firefox-3.6-WINNT", time.Date(2010, 6, 15, 0, 0, 0, 0, time.UTC),
		[]string{"foo.pdb/ABC/foo.sym"})
	require.NoError(t, err)
	return art
}

func TestDir_Publish(t *testing.T) {
	art := packaged(t)
	out := filepath.Join(t.TempDir(), "published")

	require.NoError(t, NewDir(out).Publish(context.Background(), art))

	_, err := os.Stat(filepath.Join(out, art.ArchiveName))
	assert.NoError(t, err)
	index, err := os.ReadFile(filepath.Join(out, art.IndexName))
	require.NoError(t, err)
	assert.Equal(t, "foo.pdb/ABC/foo.sym\n", string(index))
}

func TestS3_Publish(t *testing.T) {
	art := packaged(t)
	mem := objectstore.NewMemory()

	pub, err := NewS3(mem, "symbols", "uploads", "us-east-1")
	require.NoError(t, err)
	require.NoError(t, pub.Publish(context.Background(), art))

	assert.Equal(t, []string{
		"uploads/firefox-3.6-WINNT-20100615000000-symbols.txt",
		"uploads/firefox-3.6-WINNT-20100615000000-symbols.zip",
	}, mem.Keys("symbols"))

	index, ok := mem.Object("symbols", "uploads/"+art.IndexName)
	require.True(t, ok)
	assert.Equal(t, "foo.pdb/ABC/foo.sym\n", string(index))

	entries, err := os.ReadDir(filepath.Dir(art.ArchivePath))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "staged index is removed")
}

func TestNewS3_Validation(t *testing.T) {
	_, err := NewS3(nil, "b", "", "")
	assert.Error(t, err)
	_, err = NewS3(objectstore.NewMemory(), " ", "", "")
	assert.Error(t, err)
}

func TestNone_Publish(t *testing.T) {
	assert.NoError(t, None{}.Publish(context.Background(), &archive.Artifact{ArchiveName: "x.zip"}))
}
