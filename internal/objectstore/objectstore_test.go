package objectstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	valid := Config{
		Endpoint:  "localhost:9000",
		AccessKey: "a",
		SecretKey: "b",
		Region:    "us-east-1",
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() err=%v", err)
	}

	invalid := valid
	invalid.Endpoint = "http://localhost:9000"
	if err := invalid.Validate(); err == nil {
		t.Fatalf("Validate() expected error for scheme in endpoint")
	}

	invalid = valid
	invalid.SecretKey = " "
	if err := invalid.Validate(); err == nil {
		t.Fatalf("Validate() expected error for blank secret")
	}
}

func TestNewMinIOClient(t *testing.T) {
	client, err := NewMinIOClient(Config{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "b"})
	require.NoError(t, err)
	assert.Equal(t, "localhost:9000", client.EndpointURL().Host)

	_, err = NewMinIOClient(Config{})
	assert.Error(t, err)
}

func TestEnsureBucketAndExists(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()

	ok, err := ObjectExists(ctx, mem, "symbols", "a/b")
	require.NoError(t, err, "missing bucket reads as absent")
	assert.False(t, ok)

	require.NoError(t, EnsureBucket(ctx, mem, "symbols", "us-east-1"))
	require.NoError(t, EnsureBucket(ctx, mem, "symbols", "us-east-1"))

	mem.Put("symbols", "a/b", []byte("x"))
	ok, err = ObjectExists(ctx, mem, "symbols", "a/b")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFPutObject(t *testing.T) {
	mem := NewMemory("out")
	path := filepath.Join(t.TempDir(), "a.zip")
	require.NoError(t, os.WriteFile(path, []byte("PK"), 0644))

	_, err := mem.FPutObject(context.Background(), "out", "k/a.zip", path, minio.PutObjectOptions{})
	require.NoError(t, err)
	data, ok := mem.Object("out", "k/a.zip")
	assert.True(t, ok)
	assert.Equal(t, "PK", string(data))
}

func TestIsNotFound(t *testing.T) {
	assert.False(t, IsNotFound(errors.New("dial tcp: connection refused")))
}

func TestKey(t *testing.T) {
	assert.Equal(t, "symbols/a.zip", Key("symbols/", "/a.zip"))
	assert.Equal(t, "a.zip", Key("", "a.zip"))
	assert.Equal(t, "x/y/a.zip", Key("/x/y", "a.zip"))
}
