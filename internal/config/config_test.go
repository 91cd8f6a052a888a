package config

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("VCAP_SERVICES", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("expected port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Feed.URL != DefaultFeedURL || cfg.Feed.UserAgent != DefaultUserAgent {
		t.Fatalf("unexpected feed defaults: %+v", cfg.Feed)
	}
	if cfg.Storage.Backend != BackendMemory {
		t.Fatalf("expected memory backend, got %q", cfg.Storage.Backend)
	}
	if got := cfg.FeedTimeout(); got != 15*time.Second {
		t.Fatalf("expected feed timeout 15s, got %v", got)
	}
	if cfg.DB.Table != "scrape_runs" {
		t.Fatalf("expected default table, got %q", cfg.DB.Table)
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Setenv("VCAP_SERVICES", "")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
  shutdown_timeout_seconds: 3
feed:
  url: https://www.reddit.com/r/eyebleach/hot.json
  user_agent: test-agent/0.1
  timeout_seconds: 45
  max_body_bytes: 1024
storage:
  backend: GCS
  gcs_bucket: aww-bucket
  public_base_url: https://cdn.example.com
vision:
  endpoint: http://localhost:9999/
gcp:
  project_id: aww-project
pubsub:
  topic_name: stored-images
db:
  dsn: postgres://localhost/aww
  table: runs
logging:
  development: false
  level: warn
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 || cfg.ShutdownTimeout() != 3*time.Second {
		t.Fatalf("expected server overrides, got %+v", cfg.Server)
	}
	if cfg.Feed.UserAgent != "test-agent/0.1" || cfg.FeedTimeout() != 45*time.Second || cfg.Feed.MaxBodyBytes != 1024 {
		t.Fatalf("expected feed overrides, got %+v", cfg.Feed)
	}
	if cfg.Storage.Backend != BackendGCS || cfg.Storage.GCSBucket != "aww-bucket" {
		t.Fatalf("expected gcs storage, got %+v", cfg.Storage)
	}
	if cfg.PubSub.ProjectID != "aww-project" {
		t.Fatalf("expected pubsub project to fall back to gcp.project_id, got %q", cfg.PubSub.ProjectID)
	}
	if cfg.DB.DSN != "postgres://localhost/aww" || cfg.DB.Table != "runs" {
		t.Fatalf("expected db overrides, got %+v", cfg.DB)
	}
	if cfg.Logging.Development || cfg.Logging.Level != "warn" {
		t.Fatalf("expected logging overrides, got %+v", cfg.Logging)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("VCAP_SERVICES", "")
	t.Setenv("AWWVISION_FEED_USER_AGENT", "env-agent")
	t.Setenv("AWWVISION_STORAGE_BACKEND", "local")
	t.Setenv("AWWVISION_STORAGE_LOCAL_DIR", "/tmp/aww")
	t.Setenv("AWWVISION_GCP_DISABLE_AUTH", "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Feed.UserAgent != "env-agent" {
		t.Fatalf("expected env user agent, got %q", cfg.Feed.UserAgent)
	}
	if cfg.Storage.Backend != BackendLocal || cfg.Storage.LocalDir != "/tmp/aww" {
		t.Fatalf("expected local storage from env, got %+v", cfg.Storage)
	}
	if !cfg.GCP.DisableAuth {
		t.Fatal("expected disable_auth from env")
	}
}

func TestLoadAppliesServiceBindings(t *testing.T) {
	key := base64.StdEncoding.EncodeToString([]byte(`{"type":"service_account"}`))
	t.Setenv("VCAP_SERVICES", `{"google-storage":[{"name":"aww-storage","label":"google-storage",
		"credentials":{"bucket_name":"vcap-bucket","ProjectId":"vcap-project","PrivateKeyData":"`+key+`"}}]}`)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Storage.Backend != BackendGCS || cfg.Storage.GCSBucket != "vcap-bucket" {
		t.Fatalf("expected bucket from binding, got %+v", cfg.Storage)
	}
	if cfg.GCP.ProjectID != "vcap-project" {
		t.Fatalf("expected project from binding, got %q", cfg.GCP.ProjectID)
	}
	if cfg.GCP.CredentialsJSON != `{"type":"service_account"}` {
		t.Fatalf("expected decoded key, got %q", cfg.GCP.CredentialsJSON)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv("VCAP_SERVICES", "")

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestApplyServiceBindings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		bucket  string
		wantErr string
	}{
		{name: "unset"},
		{name: "empty document", raw: "{}"},
		{name: "other services only", raw: `{"mysql":[{"credentials":{"uri":"mysql://x"}}]}`},
		{name: "empty binding list", raw: `{"google-storage":[]}`},
		{name: "bucket only", raw: `{"google-storage":[{"credentials":{"bucket_name":"b1"}}]}`, bucket: "b1"},
		{
			name:   "first binding wins",
			raw:    `{"google-storage":[{"credentials":{"bucket_name":"first"}},{"credentials":{"bucket_name":"second"}}]}`,
			bucket: "first",
		},
		{name: "malformed json", raw: `{"google-storage":`, wantErr: "VCAP_SERVICES"},
		{
			name:    "bad key encoding",
			raw:     `{"google-storage":[{"credentials":{"PrivateKeyData":"%%%"}}]}`,
			wantErr: "PrivateKeyData",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			v := viper.New()
			err := ApplyServiceBindings(v, tc.raw)
			if tc.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ApplyServiceBindings() error = %v", err)
			}
			if got := v.GetString("storage.gcs_bucket"); got != tc.bucket {
				t.Fatalf("expected bucket %q, got %q", tc.bucket, got)
			}
		})
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:  ServerConfig{Port: 8080},
		Feed:    FeedConfig{URL: DefaultFeedURL, TimeoutSeconds: 10, MaxBodyBytes: 1024},
		Storage: StorageConfig{Backend: BackendMemory},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("expected base config to be valid, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "invalid port", mutate: func(c *Config) { c.Server.Port = 0 }, want: "server.port"},
		{name: "missing feed url", mutate: func(c *Config) { c.Feed.URL = " " }, want: "feed.url"},
		{name: "invalid timeout", mutate: func(c *Config) { c.Feed.TimeoutSeconds = 0 }, want: "feed.timeout_seconds"},
		{name: "invalid body limit", mutate: func(c *Config) { c.Feed.MaxBodyBytes = -1 }, want: "feed.max_body_bytes"},
		{name: "unknown backend", mutate: func(c *Config) { c.Storage.Backend = "s3" }, want: "storage.backend"},
		{name: "gcs without bucket", mutate: func(c *Config) { c.Storage.Backend = BackendGCS }, want: "storage.gcs_bucket"},
		{name: "local without dir", mutate: func(c *Config) { c.Storage.Backend = BackendLocal }, want: "storage.local_dir"},
		{name: "topic without project", mutate: func(c *Config) { c.PubSub.TopicName = "t" }, want: "pubsub.project_id"},
		{name: "bad log level", mutate: func(c *Config) { c.Logging.Level = "loud" }, want: "logging.level"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := base
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}
