package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Source    TrackerConfig `yaml:"source"`
	Target    TrackerConfig `yaml:"target"`
	Archive   ArchiveConfig `yaml:"archive"`
	Migration Migration     `yaml:"migration"`
	LogLevel  string        `yaml:"log_level"`
}

// TrackerConfig represents one tracker API endpoint
type TrackerConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIToken string `yaml:"api_token"`
}

// ArchiveConfig represents the optional S3-compatible batch archive
type ArchiveConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Secure    bool   `yaml:"secure"`
}

// Migration represents migration-specific configuration
type Migration struct {
	EntityTypes    []string `yaml:"entity_types"`
	BatchSize      int      `yaml:"batch_size"`
	Concurrency    int      `yaml:"concurrency"`
	Retries        int      `yaml:"retries"`
	RetryBackoffMs int      `yaml:"retry_backoff_ms"`
	StateDir       string   `yaml:"state_dir"`
	Catalog        string   `yaml:"catalog"`
	Resume         bool     `yaml:"resume"`
	DryRun         bool     `yaml:"dry_run"`
	MetricsAddr    string   `yaml:"metrics_addr"`
}

// Load loads configuration from file and command line flags
func Load(configFile string, flags *pflag.FlagSet) (*Config, error) {
	cfg := &Config{
		LogLevel: "info",
		Migration: Migration{
			EntityTypes:    []string{"users", "projects", "issues"},
			BatchSize:      100,
			Concurrency:    4,
			Retries:        5,
			RetryBackoffMs: 500,
			StateDir:       "./state/checkpoints",
			Catalog:        "./state/catalog.db",
			MetricsAddr:    ":8080",
		},
	}

	// Load from YAML file if provided
	if configFile != "" {
		if err := loadFromFile(cfg, configFile); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// Override with command line flags
	if err := loadFromFlags(cfg, flags); err != nil {
		return nil, fmt.Errorf("failed to load flags: %w", err)
	}

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

func loadFromFlags(cfg *Config, flags *pflag.FlagSet) error {
	if flags.Changed("src-endpoint") {
		cfg.Source.Endpoint, _ = flags.GetString("src-endpoint")
	}
	if flags.Changed("src-token") {
		cfg.Source.APIToken, _ = flags.GetString("src-token")
	}

	if flags.Changed("dst-endpoint") {
		cfg.Target.Endpoint, _ = flags.GetString("dst-endpoint")
	}
	if flags.Changed("dst-token") {
		cfg.Target.APIToken, _ = flags.GetString("dst-token")
	}

	if flags.Changed("archive-endpoint") {
		cfg.Archive.Endpoint, _ = flags.GetString("archive-endpoint")
		cfg.Archive.Enabled = cfg.Archive.Endpoint != ""
	}
	if flags.Changed("archive-access-key") {
		cfg.Archive.AccessKey, _ = flags.GetString("archive-access-key")
	}
	if flags.Changed("archive-secret-key") {
		cfg.Archive.SecretKey, _ = flags.GetString("archive-secret-key")
	}
	if flags.Changed("archive-bucket") {
		cfg.Archive.Bucket, _ = flags.GetString("archive-bucket")
	}
	if flags.Changed("archive-secure") {
		cfg.Archive.Secure, _ = flags.GetBool("archive-secure")
	}

	if flags.Changed("entity-types") {
		types, _ := flags.GetString("entity-types")
		cfg.Migration.EntityTypes = splitEntityTypes(types)
	}
	if flags.Changed("batch-size") {
		cfg.Migration.BatchSize, _ = flags.GetInt("batch-size")
	}
	if flags.Changed("concurrency") {
		cfg.Migration.Concurrency, _ = flags.GetInt("concurrency")
	}
	if flags.Changed("retries") {
		cfg.Migration.Retries, _ = flags.GetInt("retries")
	}
	if flags.Changed("retry-backoff-ms") {
		cfg.Migration.RetryBackoffMs, _ = flags.GetInt("retry-backoff-ms")
	}
	if flags.Changed("state-dir") {
		cfg.Migration.StateDir, _ = flags.GetString("state-dir")
	}
	if flags.Changed("catalog") {
		cfg.Migration.Catalog, _ = flags.GetString("catalog")
	}
	if flags.Changed("resume") {
		cfg.Migration.Resume, _ = flags.GetBool("resume")
	}
	if flags.Changed("dry-run") {
		cfg.Migration.DryRun, _ = flags.GetBool("dry-run")
	}
	if flags.Changed("metrics-addr") {
		cfg.Migration.MetricsAddr, _ = flags.GetString("metrics-addr")
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}

	return nil
}

func splitEntityTypes(s string) []string {
	var types []string
	for _, t := range strings.Split(s, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			types = append(types, t)
		}
	}
	return types
}

func (c *Config) validate() error {
	if c.Source.Endpoint == "" {
		return fmt.Errorf("source endpoint is required")
	}
	if c.Target.Endpoint == "" {
		return fmt.Errorf("target endpoint is required")
	}

	if len(c.Migration.EntityTypes) == 0 {
		return fmt.Errorf("at least one entity type is required")
	}

	if c.Migration.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}

	if c.Migration.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive")
	}

	if c.Archive.Enabled {
		if c.Archive.Endpoint == "" {
			return fmt.Errorf("archive endpoint is required when archiving is enabled")
		}
		if c.Archive.Bucket == "" {
			return fmt.Errorf("archive bucket is required when archiving is enabled")
		}
	}

	return nil
}
