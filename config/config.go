// Package config loads the exporter settings from an optional YAML file, the
// process environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/lexcodex/attackmetrics/export"
	"github.com/lexcodex/attackmetrics/sonar"
	"github.com/lexcodex/attackmetrics/taxonomy"
)

const (
	DefaultServerURL  = "http://localhost:9000"
	DefaultProjectKey = "attack-generation"
	DefaultOutputDir  = "Analysis-data"
	DefaultTokenEnv   = "API_KEY"
	DefaultConfigFile = "attackmetrics.yaml"
	DefaultEnvFile    = ".env"
	DefaultTimeout    = time.Minute
)

// ErrMissingToken is returned when the credential variable is unset.
var ErrMissingToken = errors.New("API token is not set")

// Config holds everything one export run needs.
type Config struct {
	ServerURL  string        `yaml:"server_url"`
	ProjectKey string        `yaml:"project_key"`
	Metrics    []string      `yaml:"metrics"`
	PageSize   int           `yaml:"page_size"`
	OutputDir  string        `yaml:"output_dir"`
	TokenEnv   string        `yaml:"token_env"`
	Timeout    time.Duration `yaml:"timeout"`
	HistoryDB  string        `yaml:"history_db"`
	Upload     UploadConfig  `yaml:"upload"`
	Debug      bool          `yaml:"debug"`
}

// UploadConfig points at an optional S3-compatible bucket. Keys are read from
// the environment, never from the file.
type UploadConfig struct {
	Endpoint string `yaml:"endpoint"`
	Region   string `yaml:"region"`
	Bucket   string `yaml:"bucket"`
	Prefix   string `yaml:"prefix"`
	UseSSL   bool   `yaml:"use_ssl"`
}

// Enabled reports whether an upload target is configured.
func (u UploadConfig) Enabled() bool {
	return strings.TrimSpace(u.Endpoint) != ""
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		ServerURL:  DefaultServerURL,
		ProjectKey: DefaultProjectKey,
		Metrics:    append([]string(nil), taxonomy.DefaultMetrics...),
		PageSize:   sonar.DefaultPageSize,
		OutputDir:  DefaultOutputDir,
		TokenEnv:   DefaultTokenEnv,
		Timeout:    DefaultTimeout,
		Upload: UploadConfig{
			Region: "us-east-1",
			Bucket: "attackmetrics",
		},
	}
}

// Load reads the YAML file at path over the defaults. A missing file yields
// the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

// Save writes cfg as YAML, creating parent directories.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errors.New("config missing")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (c *Config) applyDefaults() {
	def := Default()
	if c.ServerURL == "" {
		c.ServerURL = def.ServerURL
	}
	if len(c.Metrics) == 0 {
		c.Metrics = def.Metrics
	}
	if c.PageSize == 0 {
		c.PageSize = def.PageSize
	}
	if c.OutputDir == "" {
		c.OutputDir = def.OutputDir
	}
	if c.TokenEnv == "" {
		c.TokenEnv = def.TokenEnv
	}
	if c.Timeout == 0 {
		c.Timeout = def.Timeout
	}
}

// Validate checks the settings needed before any request is made.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ServerURL) == "" {
		return errors.New("server url required")
	}
	if strings.TrimSpace(c.ProjectKey) == "" {
		return errors.New("project key required")
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("page size must be positive, got %d", c.PageSize)
	}
	if strings.TrimSpace(c.OutputDir) == "" {
		return errors.New("output directory required")
	}
	for _, required := range taxonomy.DefaultMetrics {
		if !contains(c.Metrics, required) {
			return fmt.Errorf("metric list must include %s", required)
		}
	}
	return nil
}

// Token returns the bearer credential from the configured variable.
func (c *Config) Token() (string, error) {
	name := c.TokenEnv
	if name == "" {
		name = DefaultTokenEnv
	}
	token := strings.TrimSpace(os.Getenv(name))
	if token == "" {
		return "", fmt.Errorf("%w: %s is not set in the environment or .env file", ErrMissingToken, name)
	}
	return token, nil
}

// S3 resolves the upload target together with keys from the environment.
func (c *Config) S3() export.S3Config {
	return export.S3Config{
		Endpoint:  strings.TrimSpace(c.Upload.Endpoint),
		Region:    c.Upload.Region,
		AccessKey: firstNonEmpty(strings.TrimSpace(os.Getenv("S3_ACCESS_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_USER"))),
		SecretKey: firstNonEmpty(strings.TrimSpace(os.Getenv("S3_SECRET_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_PASSWORD"))),
		Bucket:    c.Upload.Bucket,
		Prefix:    c.Upload.Prefix,
		UseSSL:    c.Upload.UseSSL,
	}
}

// LoadEnv merges .env files into the process environment. Variables that are
// already set win; missing files are skipped.
func LoadEnv(files ...string) error {
	for _, file := range files {
		if file == "" {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", file, err)
		}
	}
	return nil
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
