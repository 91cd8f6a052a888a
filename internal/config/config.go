// Package config loads and validates awwvision configuration via Viper.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// Storage backends.
const (
	BackendGCS    = "gcs"
	BackendLocal  = "local"
	BackendMemory = "memory"
)

// DefaultFeedURL is the listing the scraper reads.
const DefaultFeedURL = "https://www.reddit.com/r/aww/hot.json"

// DefaultUserAgent identifies the scraper to the feed host.
const DefaultUserAgent = "awwvision/1.0 (+https://github.com/JakeFAU/awwvision)"

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Feed    FeedConfig    `mapstructure:"feed"`
	Storage StorageConfig `mapstructure:"storage"`
	Vision  VisionConfig  `mapstructure:"vision"`
	GCP     GCPConfig     `mapstructure:"gcp"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	DB      DBConfig      `mapstructure:"db"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                   int `mapstructure:"port"`
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds"`
}

// FeedConfig controls the feed request and image downloads.
type FeedConfig struct {
	URL            string `mapstructure:"url"`
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxBodyBytes   int    `mapstructure:"max_body_bytes"`
}

// StorageConfig selects and configures the object store.
type StorageConfig struct {
	Backend       string `mapstructure:"backend"`
	GCSBucket     string `mapstructure:"gcs_bucket"`
	PublicBaseURL string `mapstructure:"public_base_url"`
	LocalDir      string `mapstructure:"local_dir"`
	PageSize      int    `mapstructure:"page_size"`
}

// VisionConfig points the labeler at a non-default endpoint when set.
type VisionConfig struct {
	Endpoint string `mapstructure:"endpoint"`
}

// GCPConfig holds credentials shared by the Google clients.
type GCPConfig struct {
	ProjectID       string `mapstructure:"project_id"`
	ApplicationName string `mapstructure:"application_name"`
	CredentialsJSON string `mapstructure:"credentials_json"`
	DisableAuth     bool   `mapstructure:"disable_auth"`
}

// PubSubConfig holds metadata for stored-image notifications. Empty topic disables them.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// DBConfig controls run history persistence. Empty DSN disables it.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment, then applies any VCAP_SERVICES bindings.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("AWWVISION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	if err := ApplyServiceBindings(v, os.Getenv("VCAP_SERVICES")); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Every key gets a default so AutomaticEnv can override it.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout_seconds", 10)
	v.SetDefault("feed.url", DefaultFeedURL)
	v.SetDefault("feed.user_agent", DefaultUserAgent)
	v.SetDefault("feed.timeout_seconds", 15)
	v.SetDefault("feed.max_body_bytes", 20<<20)
	v.SetDefault("storage.backend", BackendMemory)
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.public_base_url", "")
	v.SetDefault("storage.local_dir", "data/images")
	v.SetDefault("storage.page_size", 1000)
	v.SetDefault("vision.endpoint", "")
	v.SetDefault("gcp.project_id", "")
	v.SetDefault("gcp.application_name", "awwvision")
	v.SetDefault("gcp.credentials_json", "")
	v.SetDefault("gcp.disable_auth", false)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "scrape_runs")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
}

func (c *Config) normalize() {
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.PubSub.ProjectID == "" {
		c.PubSub.ProjectID = c.GCP.ProjectID
	}
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if strings.TrimSpace(c.Feed.URL) == "" {
		return fmt.Errorf("feed.url is required")
	}
	if c.Feed.TimeoutSeconds <= 0 {
		return fmt.Errorf("feed.timeout_seconds must be > 0")
	}
	if c.Feed.MaxBodyBytes <= 0 {
		return fmt.Errorf("feed.max_body_bytes must be > 0")
	}
	switch c.Storage.Backend {
	case BackendGCS:
		if strings.TrimSpace(c.Storage.GCSBucket) == "" {
			return fmt.Errorf("storage.gcs_bucket is required for the gcs backend")
		}
	case BackendLocal:
		if strings.TrimSpace(c.Storage.LocalDir) == "" {
			return fmt.Errorf("storage.local_dir is required for the local backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("storage.backend must be one of gcs, local, memory (got %q)", c.Storage.Backend)
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id (or gcp.project_id) is required when pubsub.topic_name is set")
	}
	if c.Logging.Level != "" {
		if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
			return fmt.Errorf("logging.level: %w", err)
		}
	}
	return nil
}

// FeedTimeout converts the feed timeout into a duration.
func (c Config) FeedTimeout() time.Duration {
	return time.Duration(c.Feed.TimeoutSeconds) * time.Second
}

// ShutdownTimeout bounds graceful HTTP shutdown.
func (c Config) ShutdownTimeout() time.Duration {
	if c.Server.ShutdownTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}
