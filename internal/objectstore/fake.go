package objectstore

import (
	"context"
	"os"
	"sort"
	"sync"

	"github.com/minio/minio-go/v7"
)

// Memory is an in-process API for tests. Uploaded files are read fully
// into memory.
type Memory struct {
	mu      sync.Mutex
	buckets map[string]map[string][]byte

	// StatCalls counts StatObject calls.
	StatCalls int
}

// NewMemory creates an empty store with the given buckets.
func NewMemory(buckets ...string) *Memory {
	m := &Memory{buckets: make(map[string]map[string][]byte)}
	for _, b := range buckets {
		m.buckets[b] = make(map[string][]byte)
	}
	return m
}

func (m *Memory) BucketExists(_ context.Context, bucket string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.buckets[bucket]
	return ok, nil
}

func (m *Memory) MakeBucket(_ context.Context, bucket string, _ minio.MakeBucketOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.buckets[bucket]; !ok {
		m.buckets[bucket] = make(map[string][]byte)
	}
	return nil
}

func (m *Memory) StatObject(_ context.Context, bucket, key string, _ minio.StatObjectOptions) (minio.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StatCalls++
	objects, ok := m.buckets[bucket]
	if !ok {
		return minio.ObjectInfo{}, minio.ErrorResponse{Code: "NoSuchBucket", BucketName: bucket, StatusCode: 404}
	}
	data, ok := objects[key]
	if !ok {
		return minio.ObjectInfo{}, minio.ErrorResponse{Code: "NoSuchKey", BucketName: bucket, Key: key, StatusCode: 404}
	}
	return minio.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (m *Memory) FPutObject(_ context.Context, bucket, key, path string, _ minio.PutObjectOptions) (minio.UploadInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	objects, ok := m.buckets[bucket]
	if !ok {
		return minio.UploadInfo{}, minio.ErrorResponse{Code: "NoSuchBucket", BucketName: bucket, StatusCode: 404}
	}
	objects[key] = data
	return minio.UploadInfo{Bucket: bucket, Key: key, Size: int64(len(data))}, nil
}

// Put stores data directly.
func (m *Memory) Put(bucket, key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.buckets[bucket]; !ok {
		m.buckets[bucket] = make(map[string][]byte)
	}
	m.buckets[bucket][key] = data
}

// Object returns a stored object.
func (m *Memory) Object(bucket, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.buckets[bucket][key]
	return data, ok
}

// Keys lists the sorted keys of bucket.
func (m *Memory) Keys(bucket string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.buckets[bucket]))
	for k := range m.buckets[bucket] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
