// Package symstore answers "is this symbol file already stored?" for the
// workspace, a read-only symbol directory, or a bucket of earlier uploads.
// Paths are forward-slash and relative to the store root.
package symstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"

	"symfetch/internal/objectstore"
)

// Lookup reports whether a store holds relPath.
type Lookup interface {
	Exists(ctx context.Context, relPath string) (bool, error)
}

// =============================================================================
// DIRECTORY STORE
// =============================================================================

// Dir is a symbol tree on the local filesystem.
type Dir struct {
	Root string
}

// NewDir creates a lookup rooted at root.
func NewDir(root string) *Dir {
	return &Dir{Root: root}
}

// Exists implements Lookup. Only regular files count.
func (d *Dir) Exists(_ context.Context, relPath string) (bool, error) {
	info, err := os.Stat(filepath.Join(d.Root, filepath.FromSlash(relPath)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

// =============================================================================
// BUCKET STORE
// =============================================================================

// DefaultCacheSize bounds memoized bucket answers.
const DefaultCacheSize = 4096

// Bucket checks keys under Prefix in an S3-compatible bucket. Answers are
// memoized for the lifetime of the Bucket; errors are not.
type Bucket struct {
	client objectstore.API
	bucket string
	prefix string
	cache  *lru.Cache[string, bool]
}

// NewBucket creates a bucket lookup. size <= 0 uses DefaultCacheSize.
func NewBucket(client objectstore.API, bucket, prefix string, size int) (*Bucket, error) {
	if client == nil {
		return nil, fmt.Errorf("object store client is required")
	}
	if bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, bool](size)
	if err != nil {
		return nil, err
	}
	return &Bucket{client: client, bucket: bucket, prefix: prefix, cache: cache}, nil
}

// Exists implements Lookup.
func (b *Bucket) Exists(ctx context.Context, relPath string) (bool, error) {
	key := objectstore.Key(b.prefix, relPath)
	if ok, hit := b.cache.Get(key); hit {
		return ok, nil
	}
	ok, err := objectstore.ObjectExists(ctx, b.client, b.bucket, key)
	if err != nil {
		return false, fmt.Errorf("stat %s/%s: %w", b.bucket, key, err)
	}
	b.cache.Add(key, ok)
	return ok, nil
}

// =============================================================================
// CHAIN
// =============================================================================

// Chain reports a path present when any of its lookups does. The first
// error is returned only if no lookup found the path.
type Chain []Lookup

func (c Chain) Exists(ctx context.Context, relPath string) (bool, error) {
	var firstErr error
	for _, l := range c {
		ok, err := l.Exists(ctx, relPath)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if ok {
			return true, nil
		}
	}
	return false, firstErr
}
