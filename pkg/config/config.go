package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures service level configuration loaded from config.yaml.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	CORS     CORSConfig     `yaml:"cors"`
	Redis    RedisConfig    `yaml:"redis"`
	Jenkins  JenkinsConfig  `yaml:"jenkins"`
	Poller   PollerConfig   `yaml:"poller"`
	Alerts   AlertsConfig   `yaml:"alerts"`
	Archive  ArchiveConfig  `yaml:"archive"`
}

// ServerConfig defines HTTP server options.
type ServerConfig struct {
	Address string `yaml:"address"`
}

// DatabaseConfig defines the database backend configuration.
type DatabaseConfig struct {
	Driver   string         `yaml:"driver"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	MySQL    MySQLConfig    `yaml:"mysql"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig contains SQLite specific settings.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// MySQLConfig contains MySQL specific connection details.
type MySQLConfig struct {
	DSN string `yaml:"dsn"`
}

// PostgresConfig contains PostgreSQL specific connection details.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// CORSConfig defines CORS middleware settings.
type CORSConfig struct {
	AllowOrigin      string `yaml:"allow_origin"`
	AllowMethods     string `yaml:"allow_methods"`
	AllowHeaders     string `yaml:"allow_headers"`
	AllowCredentials bool   `yaml:"allow_credentials"`
}

// RedisConfig defines Redis connection settings. When enabled, reconcile
// locking is coordinated through Redis so multiple instances can share one
// run store.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// JenkinsConfig defines how to reach the polled Jenkins instance.
// Username and APIToken carry no defaults; leaving them unset disables
// authenticated requests.
type JenkinsConfig struct {
	BaseURL         string `yaml:"base_url"`
	Username        string `yaml:"username"`
	APIToken        string `yaml:"api_token"`
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
	DefaultActor    string `yaml:"default_actor"`
	DisplayTimezone string `yaml:"display_timezone"`
}

// Timeout returns the request timeout as a duration.
func (c JenkinsConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// PollerConfig controls the background Jenkins sync task.
type PollerConfig struct {
	Enabled         bool `yaml:"enabled"`
	IntervalSeconds int  `yaml:"interval_seconds"`
	BuildsPerJob    int  `yaml:"builds_per_job"`
}

// Interval returns the poll interval as a duration.
func (c PollerConfig) Interval() time.Duration {
	if c.IntervalSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.IntervalSeconds) * time.Second
}

// AlertsConfig defines failure notification channels. All credential-shaped
// fields are empty unless supplied; an unconfigured channel is skipped.
type AlertsConfig struct {
	SlackWebhookURL string     `yaml:"slack_webhook_url"`
	SMTP            SMTPConfig `yaml:"smtp"`
}

// SMTPConfig defines the outbound email channel for failure alerts.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	To       string `yaml:"to"`
}

// Configured reports whether the SMTP channel has everything it needs.
func (c SMTPConfig) Configured() bool {
	return c.Host != "" && c.Username != "" && c.Password != "" && c.From != "" && c.To != ""
}

// ArchiveConfig defines where failed build console logs are archived.
type ArchiveConfig struct {
	Enabled bool           `yaml:"enabled"`
	Type    string         `yaml:"type"`
	Local   LocalArchive   `yaml:"local"`
	S3      S3ArchiveCreds `yaml:"s3"`
}

// LocalArchive holds filesystem archive settings.
type LocalArchive struct {
	BasePath string `yaml:"base_path"`
}

// S3ArchiveCreds holds S3-compatible archive settings.
type S3ArchiveCreds struct {
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	PathStyle bool   `yaml:"path_style"`
}

// Load reads a YAML configuration file from the provided path.
// It searches in the current working directory first, then next to the
// binary executable. A missing file yields the defaults.
func Load(name string) (*Config, error) {
	cfg := defaultConfig()

	configPath := findConfigFile(name)
	if configPath == "" {
		log.Printf("Warning: config file %q not found, using defaults", name)
		return cfg, nil
	}

	log.Printf("Loading config from: %s", configPath)
	f, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer func() { _ = f.Close() }()

	var parsed Config
	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)
	if err := decoder.Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	applyDefaults(&parsed)
	return &parsed, nil
}

func defaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8000"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.SQLite.Path == "" {
		cfg.Database.SQLite.Path = "data/dashboard.db"
	}
	if cfg.CORS.AllowOrigin == "" {
		cfg.CORS.AllowOrigin = "*"
	}
	if cfg.CORS.AllowMethods == "" {
		cfg.CORS.AllowMethods = "GET,POST,PUT,DELETE,OPTIONS"
	}
	if cfg.CORS.AllowHeaders == "" {
		cfg.CORS.AllowHeaders = "*"
	}
	if cfg.Jenkins.TimeoutSeconds == 0 {
		cfg.Jenkins.TimeoutSeconds = 30
	}
	if cfg.Jenkins.DefaultActor == "" {
		cfg.Jenkins.DefaultActor = "unknown"
	}
	if cfg.Jenkins.DisplayTimezone == "" {
		cfg.Jenkins.DisplayTimezone = "UTC"
	}
	if cfg.Poller.IntervalSeconds == 0 {
		cfg.Poller.IntervalSeconds = 30
	}
	if cfg.Poller.BuildsPerJob == 0 {
		cfg.Poller.BuildsPerJob = 20
	}
	if cfg.Alerts.SMTP.Port == 0 {
		cfg.Alerts.SMTP.Port = 587
	}
	if cfg.Archive.Type == "" {
		cfg.Archive.Type = "local"
	}
	if cfg.Archive.Local.BasePath == "" {
		cfg.Archive.Local.BasePath = "data/logs"
	}
	if cfg.Archive.S3.Region == "" {
		cfg.Archive.S3.Region = "us-east-1"
	}
}

// findConfigFile searches for a config file in the current directory first,
// then next to the binary executable. Returns the full path or empty string.
func findConfigFile(name string) string {
	if _, err := os.Stat(name); err == nil {
		abs, _ := filepath.Abs(name)
		return abs
	}

	exe, err := os.Executable()
	if err == nil {
		candidate := filepath.Join(filepath.Dir(exe), name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	return ""
}
