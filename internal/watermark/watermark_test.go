package watermark

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingIsZero(t *testing.T) {
	tr := New(filepath.Join(t.TempDir(), "timestamp"))
	since, err := tr.Load()
	require.NoError(t, err)
	assert.True(t, since.IsZero())
	assert.True(t, tr.Admits(time.Unix(1, 0)))
}

func TestBoundary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "timestamp")
	mark := time.Date(2010, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, os.WriteFile(path, nil, 0644))
	require.NoError(t, os.Chtimes(path, mark, mark))

	tr := New(path)
	since, err := tr.Load()
	require.NoError(t, err)
	assert.True(t, since.Equal(mark))

	assert.False(t, tr.Admits(mark), "equal to the watermark is excluded")
	assert.False(t, tr.Admits(mark.Add(-time.Second)))
	assert.True(t, tr.Admits(mark.Add(time.Second)))
}

func TestAdvance_Monotonic(t *testing.T) {
	tr := New(filepath.Join(t.TempDir(), "timestamp"))
	_, err := tr.Load()
	require.NoError(t, err)

	t1 := time.Date(2010, 6, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)
	tr.Advance(t2)
	tr.Advance(t1)
	assert.True(t, tr.Latest().Equal(t2))
	assert.True(t, tr.Since().IsZero(), "advance does not move the loaded watermark")
}

func TestCommit_PersistsThroughMtime(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "timestamp")
	tr := New(path)
	_, err := tr.Load()
	require.NoError(t, err)

	mark := time.Date(2011, 1, 2, 3, 4, 5, 0, time.UTC)
	tr.Advance(mark)
	require.NoError(t, tr.Commit())

	reloaded := New(path)
	since, err := reloaded.Load()
	require.NoError(t, err)
	assert.True(t, since.Equal(mark), "got %s", since)
	assert.False(t, reloaded.Admits(mark))
}

func TestCommit_NoAdvanceWritesNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "timestamp")
	tr := New(path)
	_, err := tr.Load()
	require.NoError(t, err)

	require.NoError(t, tr.Commit())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
