package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all symfetch configuration.
type Config struct {
	// Persistent state files
	State StateConfig `yaml:"state"`

	// Where module references come from
	Input InputConfig `yaml:"input"`

	// External conversion step
	SymbolSource SymbolSourceConfig `yaml:"symbol_source"`

	// Fetch pool settings
	Fetch FetchConfig `yaml:"fetch"`

	// Archive naming and workspace location
	Package PackageConfig `yaml:"package"`

	// Archive transport
	Publish PublishConfig `yaml:"publish"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`

	// Watch mode
	Watch WatchConfig `yaml:"watch"`
}

// StateConfig locates the files that persist between runs.
type StateConfig struct {
	ExclusionFile     string `yaml:"exclusion_file"`      // blacklist: our own debug files
	NegativeCacheFile string `yaml:"negative_cache_file"` // skiplist: known-absent pairs
	WatermarkFile     string `yaml:"watermark_file"`      // mtime marks the newest processed record
	HistoryDB         string `yaml:"history_db"`          // empty disables the run ledger
}

// InputConfig configures module reference acquisition.
type InputConfig struct {
	// CrashDir is the root of the processed crash store.
	CrashDir string `yaml:"crash_dir"`

	// CrashGlob is a doublestar pattern relative to CrashDir.
	// "{month}" expands to the current YYYYMM.
	CrashGlob string `yaml:"crash_glob"`

	// ModulesCSV, when set, replaces the crash feed with a precomputed
	// dll,pdb,uuid list.
	ModulesCSV string `yaml:"modules_csv"`
}

// SymbolSourceConfig configures the converter process.
type SymbolSourceConfig struct {
	Binary             string   `yaml:"binary"`
	ServerURL          string   `yaml:"server_url"`
	Timeout            string   `yaml:"timeout"`
	ExtraArgs          []string `yaml:"extra_args"`
	AllowedEnvVars     []string `yaml:"allowed_env_vars"`
	MaxOutputBytes     int64    `yaml:"max_output_bytes"`
	ReadOnlySymbolPath string   `yaml:"read_only_symbol_path"`

	// ReadOnlyBucket checks an S3 bucket (using publish.s3 credentials)
	// for symbols that were published by earlier runs.
	ReadOnlyBucket string `yaml:"read_only_bucket"`
	ReadOnlyPrefix string `yaml:"read_only_prefix"`
}

// FetchConfig configures the fetch pool.
type FetchConfig struct {
	Workers           int     `yaml:"workers"`
	RequestsPerSecond float64 `yaml:"requests_per_second"` // 0 = unthrottled
	Burst             int     `yaml:"burst"`
}

// PackageConfig configures archive naming.
type PackageConfig struct {
	ProductTag string `yaml:"product_tag"`
	VersionTag string `yaml:"version_tag"`
	Platform   string `yaml:"platform"`
	WorkDir    string `yaml:"work_dir"` // parent of the per-run workspace; empty = os.TempDir()
}

// WatchConfig configures `symfetch watch`.
type WatchConfig struct {
	Interval string `yaml:"interval"`
	Debounce string `yaml:"debounce"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		State: StateConfig{
			ExclusionFile:     "blacklist.txt",
			NegativeCacheFile: "skiplist.txt",
			WatermarkFile:     "timestamp",
			HistoryDB:         "symfetch.db",
		},

		Input: InputConfig{
			CrashDir:  "processed",
			CrashGlob: "{month}*/name/*/*/*.jsonz",
		},

		SymbolSource: SymbolSourceConfig{
			Binary:         "symsrv_convert.exe",
			ServerURL:      "http://msdl.microsoft.com/download/symbols",
			Timeout:        "30s",
			AllowedEnvVars: []string{"PATH", "HOME", "SYSTEMROOT", "TEMP", "TMP", "_NT_SYMBOL_PROXY"},
			MaxOutputBytes: 64 * 1024,
		},

		Fetch: FetchConfig{
			Workers: 4,
			Burst:   1,
		},

		Package: PackageConfig{
			ProductTag: "firefox",
			VersionTag: "1.0",
			Platform:   "WINNT",
		},

		Publish: PublishConfig{
			Mode: PublishModeDir,
			Dir:  "published",
			S3: S3Config{
				Region: "us-east-1",
				Prefix: "symbols",
			},
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},

		Watch: WatchConfig{
			Interval: "1h",
			Debounce: "30s",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Defaults plus environment when there is no file
			if err := cfg.applyEnvOverrides(); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("SYMFETCH_CRASH_DIR"); v != "" {
		c.Input.CrashDir = v
	}
	if v := os.Getenv("SYMFETCH_MODULES_CSV"); v != "" {
		c.Input.ModulesCSV = v
	}
	if v := os.Getenv("SYMFETCH_SYMBOL_SERVER"); v != "" {
		c.SymbolSource.ServerURL = v
	}
	if v := os.Getenv("SYMFETCH_CONVERTER"); v != "" {
		c.SymbolSource.Binary = v
	}
	if v := os.Getenv("SYMFETCH_READ_ONLY_SYMBOL_PATH"); v != "" {
		c.SymbolSource.ReadOnlySymbolPath = v
	}
	if v := os.Getenv("SYMFETCH_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse SYMFETCH_WORKERS: %w", err)
		}
		c.Fetch.Workers = n
	}
	if v := os.Getenv("SYMFETCH_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}

	// Object store credentials never need to live in the YAML file
	if v := os.Getenv("SYMFETCH_S3_ENDPOINT"); v != "" {
		c.Publish.S3.Endpoint = v
	}
	if v := os.Getenv("SYMFETCH_S3_ACCESS_KEY"); v != "" {
		c.Publish.S3.AccessKey = v
	}
	if v := os.Getenv("SYMFETCH_S3_SECRET_KEY"); v != "" {
		c.Publish.S3.SecretKey = v
	}
	if v := os.Getenv("SYMFETCH_S3_BUCKET"); v != "" {
		c.Publish.S3.Bucket = v
	}
	if v := os.Getenv("SYMFETCH_S3_USE_SSL"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parse SYMFETCH_S3_USE_SSL: %w", err)
		}
		c.Publish.S3.UseSSL = b
	}
	return nil
}

// GetFetchTimeout returns the per-module converter budget.
func (c *Config) GetFetchTimeout() time.Duration {
	d, err := time.ParseDuration(c.SymbolSource.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// GetWatchInterval returns the watch mode run interval.
func (c *Config) GetWatchInterval() time.Duration {
	d, err := time.ParseDuration(c.Watch.Interval)
	if err != nil || d <= 0 {
		return time.Hour
	}
	return d
}

// GetWatchDebounce returns how long the crash directory must be quiet
// before a change triggers a run.
func (c *Config) GetWatchDebounce() time.Duration {
	d, err := time.ParseDuration(c.Watch.Debounce)
	if err != nil || d < 0 {
		return 30 * time.Second
	}
	return d
}

// ArchivePrefix returns "<product>-<version>-<platform>".
func (c *Config) ArchivePrefix() string {
	platform := c.Package.Platform
	if platform == "" {
		platform = "WINNT"
	}
	return strings.Join([]string{c.Package.ProductTag, c.Package.VersionTag, platform}, "-")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []error

	if c.State.NegativeCacheFile == "" {
		errs = append(errs, errors.New("state.negative_cache_file is required"))
	}
	if c.Input.ModulesCSV == "" {
		if c.Input.CrashDir == "" {
			errs = append(errs, errors.New("input.crash_dir is required when input.modules_csv is not set"))
		}
		if c.State.WatermarkFile == "" {
			errs = append(errs, errors.New("state.watermark_file is required when reading crash records"))
		}
	}
	if c.SymbolSource.Binary == "" {
		errs = append(errs, errors.New("symbol_source.binary is required"))
	}
	if c.SymbolSource.Timeout != "" {
		if d, err := time.ParseDuration(c.SymbolSource.Timeout); err != nil || d <= 0 {
			errs = append(errs, fmt.Errorf("symbol_source.timeout must be a positive duration: %q", c.SymbolSource.Timeout))
		}
	}
	if c.Fetch.Workers < 1 {
		errs = append(errs, fmt.Errorf("fetch.workers must be >= 1, got %d", c.Fetch.Workers))
	}
	if c.Fetch.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("fetch.requests_per_second must not be negative"))
	}
	if c.Package.ProductTag == "" || c.Package.VersionTag == "" {
		errs = append(errs, errors.New("package.product_tag and package.version_tag are required"))
	}
	if err := c.Publish.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.SymbolSource.ReadOnlyBucket != "" {
		if err := c.Publish.S3.validateConnection(); err != nil {
			errs = append(errs, fmt.Errorf("symbol_source.read_only_bucket: %w", err))
		}
	}

	return errors.Join(errs...)
}
