// Package publish hands packaged symbol archives to their destination.
package publish

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"

	"symfetch/internal/archive"
	"symfetch/internal/fsutil"
	"symfetch/internal/logging"
	"symfetch/internal/objectstore"
)

// Publisher delivers an artifact. Implementations must not keep references
// to ArchivePath after returning; the file is removed with the workspace.
type Publisher interface {
	Publish(ctx context.Context, art *archive.Artifact) error
}

// =============================================================================
// NONE
// =============================================================================

// None logs and discards artifacts.
type None struct{}

func (None) Publish(_ context.Context, art *archive.Artifact) error {
	logging.Get(logging.CategoryPublish).Info("Not publishing %s (%d symbols)", art.ArchiveName, len(art.Index))
	return nil
}

// =============================================================================
// DIRECTORY
// =============================================================================

// Dir copies the archive and its index into a directory.
type Dir struct {
	Root string
}

// NewDir creates a directory publisher.
func NewDir(root string) *Dir {
	return &Dir{Root: root}
}

func (d *Dir) Publish(ctx context.Context, art *archive.Artifact) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dst := filepath.Join(d.Root, art.ArchiveName)
	if err := fsutil.CopyFileAtomic(art.ArchivePath, dst, 0644); err != nil {
		return fmt.Errorf("publish archive: %w", err)
	}
	if err := fsutil.WriteFileAtomic(filepath.Join(d.Root, art.IndexName), indexBytes(art), 0644); err != nil {
		return fmt.Errorf("publish index: %w", err)
	}
	logging.Get(logging.CategoryPublish).Info("Published %s to %s", art.ArchiveName, d.Root)
	return nil
}

// =============================================================================
// S3
// =============================================================================

// S3 uploads the archive and its index to a bucket under Prefix. The bucket
// is created on first use when missing.
type S3 struct {
	client objectstore.API
	bucket string
	prefix string
	region string

	once      sync.Once
	bucketErr error
}

// NewS3 creates an S3 publisher.
func NewS3(client objectstore.API, bucket, prefix, region string) (*S3, error) {
	if client == nil {
		return nil, fmt.Errorf("object store client is required")
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	return &S3{client: client, bucket: bucket, prefix: prefix, region: region}, nil
}

func (s *S3) Publish(ctx context.Context, art *archive.Artifact) error {
	if err := s.ensureBucket(ctx); err != nil {
		return err
	}

	archiveKey := objectstore.Key(s.prefix, art.ArchiveName)
	if _, err := s.client.FPutObject(ctx, s.bucket, archiveKey, art.ArchivePath, minio.PutObjectOptions{
		ContentType: "application/zip",
	}); err != nil {
		return fmt.Errorf("upload %s: %w", archiveKey, err)
	}

	// The index is uploaded after the archive so a listed index always has
	// its archive.
	indexPath, cleanup, err := writeTempIndex(art)
	if err != nil {
		return err
	}
	defer cleanup()

	indexKey := objectstore.Key(s.prefix, art.IndexName)
	if _, err := s.client.FPutObject(ctx, s.bucket, indexKey, indexPath, minio.PutObjectOptions{
		ContentType: "text/plain",
	}); err != nil {
		return fmt.Errorf("upload %s: %w", indexKey, err)
	}

	logging.Get(logging.CategoryPublish).Info("Uploaded %s to s3://%s/%s", art.ArchiveName, s.bucket, archiveKey)
	return nil
}

func (s *S3) ensureBucket(ctx context.Context) error {
	s.once.Do(func() {
		s.bucketErr = objectstore.EnsureBucket(ctx, s.client, s.bucket, s.region)
	})
	return s.bucketErr
}

func indexBytes(art *archive.Artifact) []byte {
	if len(art.Index) == 0 {
		return nil
	}
	return []byte(strings.Join(art.Index, "\n") + "\n")
}

func writeTempIndex(art *archive.Artifact) (string, func(), error) {
	f, err := os.CreateTemp(filepath.Dir(art.ArchivePath), ".index-*.txt")
	if err != nil {
		return "", nil, fmt.Errorf("stage index: %w", err)
	}
	path := f.Name()
	cleanup := func() { os.Remove(path) }

	if _, err := f.Write(indexBytes(art)); err != nil {
		f.Close()
		cleanup()
		return "", nil, fmt.Errorf("stage index: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("stage index: %w", err)
	}
	return path, cleanup, nil
}
