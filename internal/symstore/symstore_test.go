package symstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"symfetch/internal/objectstore"
)

func TestDir_Exists(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "foo.pdb", "ABC"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "foo.pdb", "ABC", "foo.sym"), []byte("MODULE"), 0644))

	d := NewDir(root)
	ctx := context.Background()

	ok, err := d.Exists(ctx, "foo.pdb/ABC/foo.sym")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = d.Exists(ctx, "foo.pdb/ABC")
	require.NoError(t, err)
	assert.False(t, ok, "directories are not symbols")

	ok, err = d.Exists(ctx, "bar.pdb/ABC/bar.sym")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBucket_ExistsMemoized(t *testing.T) {
	mem := objectstore.NewMemory("symbols")
	mem.Put("symbols", "published/foo.pdb/ABC/foo.sym", []byte("MODULE"))

	b, err := NewBucket(mem, "symbols", "published", 0)
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := b.Exists(ctx, "foo.pdb/ABC/foo.sym")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = b.Exists(ctx, "bar.pdb/DEF/bar.sym")
		require.NoError(t, err)
		assert.False(t, ok)
	}
	assert.Equal(t, 2, mem.StatCalls)
}

func TestNewBucket_Validation(t *testing.T) {
	_, err := NewBucket(nil, "b", "", 0)
	assert.Error(t, err)
	_, err = NewBucket(objectstore.NewMemory(), "", "", 0)
	assert.Error(t, err)
}

type errLookup struct{}

func (errLookup) Exists(context.Context, string) (bool, error) {
	return false, errors.New("unavailable")
}

func TestChain(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.sym"), nil, 0644))
	ctx := context.Background()

	ok, err := Chain{errLookup{}, NewDir(root)}.Exists(ctx, "a.sym")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = Chain{NewDir(root), errLookup{}}.Exists(ctx, "b.sym")
	assert.Error(t, err)
}
