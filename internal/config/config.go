package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the full application configuration loaded from env / config file.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Rolling   RollingConfig   `mapstructure:"rolling"`
	Storage   StorageConfig   `mapstructure:"storage"`
	S3        S3Config        `mapstructure:"s3"`
	Upload    UploadConfig    `mapstructure:"upload"`
	Alerts    AlertsConfig    `mapstructure:"alerts"`
	Heartbeat HeartbeatConfig `mapstructure:"heartbeat"`
}

type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"` // development | production
}

// RollingConfig drives the rotation engine and the upload policy wrapped
// around it.
type RollingConfig struct {
	// File is the active (currently written) log file.
	File string `mapstructure:"file"`
	// FileNamePattern names archived segments, e.g.
	// ./logs/archive/app.%d{2006-01-02-15-04}. The archive directory is
	// everything before the last "/".
	FileNamePattern string `mapstructure:"file_name_pattern"`
	PeriodMinutes   int    `mapstructure:"period_minutes"`
	// MaxHistory bounds the number of archived segments kept locally; 0 keeps all.
	MaxHistory   int           `mapstructure:"max_history"`
	RollOnExit   bool          `mapstructure:"roll_on_exit"`
	DrainTimeout time.Duration `mapstructure:"drain_timeout"`
}

type StorageConfig struct {
	Backend string `mapstructure:"backend"` // "s3", "fs"
	FSRoot  string `mapstructure:"fs_root"` // Root directory for filesystem
}

// S3Config holds credentials for an S3-compatible provider.
type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	Folder          string `mapstructure:"folder"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	// ForcePathStyle must be true for Garage / MinIO
	ForcePathStyle bool `mapstructure:"force_path_style"`
	// StorageClass e.g. STANDARD, REDUCED_REDUNDANCY
	StorageClass string `mapstructure:"storage_class"`
	// CheckBucket issues a HeadBucket at startup.
	CheckBucket bool `mapstructure:"check_bucket"`
}

type UploadConfig struct {
	// RateLimit is the maximum number of uploads per second. 0 disables throttling.
	RateLimit float64 `mapstructure:"rate_limit"`
}

type AlertsConfig struct {
	SlackWebhookURL string `mapstructure:"slack_webhook_url"`
}

type HeartbeatConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// Load reads configuration from environment variables and optional config file.
// Environment variable prefix: RAINROLL_
// Example: RAINROLL_ROLLING_PERIOD_MINUTES=5.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// ---------- config file (optional) ----------
	v.SetConfigName("rainroll")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/rainroll")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	return decode(v)
}

// LoadFile reads configuration from an explicit YAML file, still honouring
// RAINROLL_ environment overrides.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}
	return decode(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "rainroll")
	v.SetDefault("app.env", "development")

	v.SetDefault("rolling.file", "./logs/app.log")
	v.SetDefault("rolling.file_name_pattern", "./logs/archive/app.%d{2006-01-02-15-04}")
	v.SetDefault("rolling.period_minutes", 1)
	v.SetDefault("rolling.max_history", 0)
	v.SetDefault("rolling.roll_on_exit", true)
	v.SetDefault("rolling.drain_timeout", "10m")

	v.SetDefault("storage.backend", "s3")
	v.SetDefault("storage.fs_root", "./data/objects")

	v.SetDefault("s3.region", "ap-southeast-1")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.bucket", "")
	v.SetDefault("s3.folder", "")
	v.SetDefault("s3.access_key_id", "")
	v.SetDefault("s3.secret_access_key", "")
	v.SetDefault("s3.force_path_style", false)
	v.SetDefault("s3.storage_class", "")
	v.SetDefault("s3.check_bucket", false)

	v.SetDefault("upload.rate_limit", 0)
	v.SetDefault("alerts.slack_webhook_url", "")
	v.SetDefault("heartbeat.interval", "1s")
}

func decode(v *viper.Viper) (*Config, error) {
	// ---------- env vars ----------
	v.SetEnvPrefix("RAINROLL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}

// Validate reports configuration that cannot start the policy.
func (c *Config) Validate() error {
	if c.Rolling.File == "" {
		return errors.New("config: rolling.file is required")
	}
	if c.Rolling.FileNamePattern == "" {
		return errors.New("config: rolling.file_name_pattern is required")
	}
	switch c.Storage.Backend {
	case "s3":
		if c.S3.Bucket == "" {
			return errors.New("config: s3.bucket is required (RAINROLL_S3_BUCKET)")
		}
	case "fs":
		if c.Storage.FSRoot == "" {
			return errors.New("config: storage.fs_root is required for the fs backend")
		}
	default:
		return fmt.Errorf("config: unknown storage backend: %s", c.Storage.Backend)
	}
	return nil
}
