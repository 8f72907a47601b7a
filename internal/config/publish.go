package config

import (
	"errors"
	"fmt"
	"strings"
)

// PublishMode selects the archive transport.
type PublishMode string

const (
	PublishModeNone PublishMode = "none" // discard (dry runs)
	PublishModeDir  PublishMode = "dir"  // copy into a directory
	PublishModeS3   PublishMode = "s3"   // upload to an S3-compatible bucket
)

// PublishConfig configures the Remote Publisher.
type PublishConfig struct {
	Mode PublishMode `yaml:"mode"`
	Dir  string      `yaml:"dir"`
	S3   S3Config    `yaml:"s3"`
}

// S3Config configures the S3-compatible object store.
type S3Config struct {
	Endpoint  string `yaml:"endpoint"` // host:port, no scheme
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// Validate checks the settings required by the selected mode.
func (p PublishConfig) Validate() error {
	switch p.Mode {
	case PublishModeNone:
		return nil
	case PublishModeDir:
		if strings.TrimSpace(p.Dir) == "" {
			return errors.New("publish.dir is required for mode dir")
		}
		return nil
	case PublishModeS3:
		if err := p.S3.validateConnection(); err != nil {
			return fmt.Errorf("publish.s3: %w", err)
		}
		if strings.TrimSpace(p.S3.Bucket) == "" {
			return errors.New("publish.s3: bucket is required")
		}
		return nil
	default:
		return fmt.Errorf("invalid publish.mode %q (valid: none, dir, s3)", p.Mode)
	}
}

func (s S3Config) validateConnection() error {
	if strings.TrimSpace(s.Endpoint) == "" {
		return errors.New("endpoint is required")
	}
	if strings.Contains(s.Endpoint, "://") {
		return fmt.Errorf("endpoint must not include scheme: %q", s.Endpoint)
	}
	if strings.TrimSpace(s.AccessKey) == "" || strings.TrimSpace(s.SecretKey) == "" {
		return errors.New("access key and secret key are required")
	}
	return nil
}
