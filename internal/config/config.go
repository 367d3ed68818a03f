// Package config provides configuration loading and management for the backup job.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/gheorghiostapenco/aws-s3-to-ecr-backup/internal/validators"
)

// EnvPrefix is the prefix for job-specific environment variables.
const EnvPrefix = "S3_ECR_BACKUP"

// Environment variable names kept compatible with earlier deployments.
const (
	envBucketName   = "S3_BUCKET_NAME"
	envPrefixFilter = "S3_PREFIX_FILTER"
	envRepository   = "ECR_REPO_NAME"
)

const (
	// DefaultTagLength is the number of leading digest hex characters used
	// as the image tag.
	DefaultTagLength = 12

	// DefaultLayerPartSize is the byte-range size used when transferring a
	// layer in parts.
	DefaultLayerPartSize = 10 * 1024 * 1024

	// MaxLayerPartSize is the largest part the registry accepts in a single
	// upload call.
	MaxLayerPartSize = 20 * 1024 * 1024

	minTagLength     = 6
	maxTagLength     = 64 // full sha256 hex length
	minLayerPartSize = 1024 * 1024
)

// Option defines the interface for configuration loading options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path string
	env  bool
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks to prevent symlink attacks.
		// Note that this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		// Validate the path to prevent path traversal attacks
		if !filepath.IsAbs(realPath) {
			if !filepath.IsLocal(realPath) {
				return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
			}
		}

		cfg.path = realPath
		return nil
	}
}

// WithEnvironment overlays configuration from environment variables.
// Values set in the environment take precedence over file values.
func WithEnvironment() Option {
	return func(cfg *loaderConfig) error {
		cfg.env = true
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	// Bucket is the source S3 bucket name
	Bucket string `yaml:"bucket"`

	// PrefixFilter restricts the backup run to keys under this prefix.
	// Empty means the whole bucket.
	PrefixFilter string `yaml:"prefixFilter,omitempty"`

	// Repository is the target ECR repository name
	Repository string `yaml:"repository"`

	// Region overrides the region resolved by the AWS SDK default chain
	Region string `yaml:"region,omitempty"`

	// TagLength is the number of digest hex characters used as the image tag
	TagLength int `yaml:"tagLength,omitempty"`

	// LayerPartSize is the byte-range size for chunked layer uploads
	LayerPartSize int64 `yaml:"layerPartSize,omitempty"`

	// Retry configures whole-run retries performed by the command layer
	Retry *RetryConfig `yaml:"retry,omitempty"`
}

// RetryConfig defines whole-run retry settings. The pipeline itself never
// retries individual registry calls; a failed run is re-executed from scratch,
// which is safe because tags are content-derived.
type RetryConfig struct {
	// MaxAttempts is the total number of run attempts (1 means no retry)
	MaxAttempts int `yaml:"maxAttempts"`

	// InitialInterval is the starting backoff delay, e.g. "2s"
	InitialInterval string `yaml:"initialInterval,omitempty"`
}

// GetInitialInterval parses the configured backoff interval, defaulting to
// one second when unset.
func (r *RetryConfig) GetInitialInterval() (time.Duration, error) {
	if r == nil || r.InitialInterval == "" {
		return time.Second, nil
	}
	d, err := time.ParseDuration(r.InitialInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid retry interval %q: %w", r.InitialInterval, err)
	}
	return d, nil
}

// LoadConfig loads and validates configuration from the requested sources.
// File values are read first; environment values overlay them.
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	if loaderCfg.path == "" && !loaderCfg.env {
		return nil, fmt.Errorf("at least one configuration source is required")
	}

	var config Config

	if loaderCfg.path != "" {
		data, err := os.ReadFile(loaderCfg.path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}

	if loaderCfg.env {
		overlayEnvironment(&config)
	}

	config.applyDefaults()

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// overlayEnvironment applies environment variables on top of file values.
// The bucket, prefix, and repository names are read from their historical
// unprefixed variables; everything else uses the S3_ECR_BACKUP prefix.
func overlayEnvironment(config *Config) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)

	// Historical variable names, bound without the prefix.
	_ = v.BindEnv("bucket", envBucketName)
	_ = v.BindEnv("prefixFilter", envPrefixFilter)
	_ = v.BindEnv("repository", envRepository)

	_ = v.BindEnv("region")
	_ = v.BindEnv("tagLength", EnvPrefix+"_TAG_LENGTH")
	_ = v.BindEnv("layerPartSize", EnvPrefix+"_LAYER_PART_SIZE")

	if s := v.GetString("bucket"); s != "" {
		config.Bucket = s
	}
	if v.IsSet("prefixFilter") {
		config.PrefixFilter = v.GetString("prefixFilter")
	}
	if s := v.GetString("repository"); s != "" {
		config.Repository = s
	}
	if s := v.GetString("region"); s != "" {
		config.Region = s
	}
	if n := v.GetInt("tagLength"); n != 0 {
		config.TagLength = n
	}
	if n := v.GetInt64("layerPartSize"); n != 0 {
		config.LayerPartSize = n
	}
}

func (c *Config) applyDefaults() {
	if c.TagLength == 0 {
		c.TagLength = DefaultTagLength
	}
	if c.LayerPartSize == 0 {
		c.LayerPartSize = DefaultLayerPartSize
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if c.Bucket == "" {
		return fmt.Errorf("bucket is required")
	}

	if c.Repository == "" {
		return fmt.Errorf("repository is required")
	}
	repo, err := validators.ValidateRepositoryName(c.Repository)
	if err != nil {
		return fmt.Errorf("repository: %w", err)
	}
	c.Repository = repo

	if c.TagLength < minTagLength || c.TagLength > maxTagLength {
		return fmt.Errorf("tagLength must be between %d and %d, got %d", minTagLength, maxTagLength, c.TagLength)
	}

	if c.LayerPartSize < minLayerPartSize || c.LayerPartSize > MaxLayerPartSize {
		return fmt.Errorf("layerPartSize must be between %d and %d bytes, got %d",
			minLayerPartSize, MaxLayerPartSize, c.LayerPartSize)
	}

	if c.Retry != nil {
		if c.Retry.MaxAttempts < 1 {
			return fmt.Errorf("retry.maxAttempts must be at least 1, got %d", c.Retry.MaxAttempts)
		}
		if _, err := c.Retry.GetInitialInterval(); err != nil {
			return fmt.Errorf("retry: %w", err)
		}
	}

	return nil
}
