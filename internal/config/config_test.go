package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 30*time.Second, cfg.GetFetchTimeout())
	assert.Equal(t, "firefox-1.0-WINNT", cfg.ArchivePrefix())
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().State, cfg.State)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "symfetch.yaml")
	data := `
state:
  negative_cache_file: /var/lib/symfetch/skiplist.txt
input:
  crash_dir: /mnt/crashes
symbol_source:
  timeout: 45s
  read_only_symbol_path: /mnt/symbols
fetch:
  workers: 8
package:
  product_tag: thunderbird
  version_tag: "3.1"
publish:
  mode: none
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "/var/lib/symfetch/skiplist.txt", cfg.State.NegativeCacheFile)
	assert.Equal(t, "blacklist.txt", cfg.State.ExclusionFile, "unset keys keep defaults")
	assert.Equal(t, "/mnt/crashes", cfg.Input.CrashDir)
	assert.Equal(t, 45*time.Second, cfg.GetFetchTimeout())
	assert.Equal(t, 8, cfg.Fetch.Workers)
	assert.Equal(t, "thunderbird-3.1-WINNT", cfg.ArchivePrefix())
	assert.Equal(t, PublishModeNone, cfg.Publish.Mode)
}

func TestLoad_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("fetch: [oops"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "symfetch.yaml")
	cfg := DefaultConfig()
	cfg.Fetch.Workers = 2
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Fetch.Workers)
}

func TestGetFetchTimeout_Fallback(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SymbolSource.Timeout = "soon"
	assert.Equal(t, 30*time.Second, cfg.GetFetchTimeout())
	cfg.SymbolSource.Timeout = "-1s"
	assert.Equal(t, 30*time.Second, cfg.GetFetchTimeout())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no workers", func(c *Config) { c.Fetch.Workers = 0 }},
		{"no binary", func(c *Config) { c.SymbolSource.Binary = "" }},
		{"bad timeout", func(c *Config) { c.SymbolSource.Timeout = "never" }},
		{"no crash dir", func(c *Config) { c.Input.CrashDir = "" }},
		{"no negative cache", func(c *Config) { c.State.NegativeCacheFile = "" }},
		{"bad publish mode", func(c *Config) { c.Publish.Mode = "ftp" }},
		{"dir without path", func(c *Config) { c.Publish.Dir = "" }},
		{"s3 without endpoint", func(c *Config) { c.Publish.Mode = PublishModeS3 }},
		{"read-only bucket without credentials", func(c *Config) { c.SymbolSource.ReadOnlyBucket = "symbols" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	t.Run("modules csv without crash dir", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Input.CrashDir = ""
		cfg.Input.ModulesCSV = "modules.csv"
		assert.NoError(t, cfg.Validate())
	})
}

func TestPublishConfig_S3(t *testing.T) {
	p := PublishConfig{Mode: PublishModeS3, S3: S3Config{
		Endpoint:  "localhost:9000",
		AccessKey: "a",
		SecretKey: "b",
		Bucket:    "symbols",
	}}
	require.NoError(t, p.Validate())

	p.S3.Endpoint = "http://localhost:9000"
	assert.Error(t, p.Validate(), "scheme in endpoint")
}
