package config

import (
	"os"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"go-events-query/internal/models"
)

func createTestConfigFile(t *testing.T, content string) string {
	tmpFile, err := os.CreateTemp("", "events_config_*.yaml")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}

	if _, err := tmpFile.WriteString(content); err != nil {
		t.Fatalf("Failed to write to temp file: %v", err)
	}

	if err := tmpFile.Close(); err != nil {
		t.Fatalf("Failed to close temp file: %v", err)
	}

	return tmpFile.Name()
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("EVENTS_BACKEND_URL", "")
	t.Setenv("EVENTS_LISTEN_ADDR", "")
	logger := zaptest.NewLogger(t)

	validConfig := `
backend:
  base_url: http://events-backend:3000
  timeout: 3s

query:
  gc_time: 1m
  recent_max: 5
  recent_stale_time: 2s
  edit_stale_time: 20s
  update_policy: optimistic

bigcache:
  enabled: true
  size: 200

keydb:
  enabled: true
  connection:
    connect_timeout: 2s
    send_timeout: 2500ms
    read_timeout: 3500ms
  keepalive:
    pool_size: 20
    max_idle_timeout: 20s

server:
  listen_addr: ":9000"
`

	configFile := createTestConfigFile(t, validConfig)
	defer os.Remove(configFile)

	config, err := LoadConfig(configFile, logger)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if config.Backend.BaseURL != "http://events-backend:3000" {
		t.Errorf("LoadConfig() Backend.BaseURL = %v, want http://events-backend:3000", config.Backend.BaseURL)
	}
	if config.Backend.ImageBaseURL != "http://events-backend:3000" {
		t.Errorf("LoadConfig() Backend.ImageBaseURL = %v, want base URL", config.Backend.ImageBaseURL)
	}
	if config.Backend.Timeout != 3*time.Second {
		t.Errorf("LoadConfig() Backend.Timeout = %v, want 3s", config.Backend.Timeout)
	}
	if config.Query.RecentMax != 5 {
		t.Errorf("LoadConfig() Query.RecentMax = %v, want 5", config.Query.RecentMax)
	}
	if config.Query.EditStaleTime != 20*time.Second {
		t.Errorf("LoadConfig() Query.EditStaleTime = %v, want 20s", config.Query.EditStaleTime)
	}
	if config.Query.UpdatePolicy != models.UpdatePolicyOptimistic {
		t.Errorf("LoadConfig() Query.UpdatePolicy = %v, want optimistic", config.Query.UpdatePolicy)
	}
	if !config.BigCache.Enabled || config.BigCache.Size != 200 {
		t.Errorf("LoadConfig() BigCache = %+v, want enabled with size 200", config.BigCache)
	}
	if config.KeyDB.GetSendTimeout() != 2500*time.Millisecond {
		t.Errorf("LoadConfig() KeyDB send timeout = %v, want 2.5s", config.KeyDB.GetSendTimeout())
	}
	if config.KeyDB.GetReadTimeout() != 3500*time.Millisecond {
		t.Errorf("LoadConfig() KeyDB read timeout = %v, want 3.5s", config.KeyDB.GetReadTimeout())
	}
	if config.KeyDB.Keepalive.PoolSize != 20 {
		t.Errorf("LoadConfig() KeyDB.Keepalive.PoolSize = %v, want 20", config.KeyDB.Keepalive.PoolSize)
	}
	if config.Server.ListenAddr != ":9000" {
		t.Errorf("LoadConfig() Server.ListenAddr = %v, want :9000", config.Server.ListenAddr)
	}
}

func TestLoadConfig_WithDefaults(t *testing.T) {
	t.Setenv("EVENTS_BACKEND_URL", "")
	t.Setenv("EVENTS_LISTEN_ADDR", "")
	logger := zaptest.NewLogger(t)

	minimalConfig := `
bigcache:
  enabled: true
`

	configFile := createTestConfigFile(t, minimalConfig)
	defer os.Remove(configFile)

	config, err := LoadConfig(configFile, logger)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if config.Backend.BaseURL != "http://localhost:3000" {
		t.Errorf("LoadConfig() Backend.BaseURL = %v, want http://localhost:3000 (default)", config.Backend.BaseURL)
	}
	if config.Query.GCTime != 5*time.Minute {
		t.Errorf("LoadConfig() Query.GCTime = %v, want 5m (default)", config.Query.GCTime)
	}
	if config.Query.RecentMax != 3 {
		t.Errorf("LoadConfig() Query.RecentMax = %v, want 3 (default)", config.Query.RecentMax)
	}
	if config.Query.RecentStaleTime != 5*time.Second {
		t.Errorf("LoadConfig() Query.RecentStaleTime = %v, want 5s (default)", config.Query.RecentStaleTime)
	}
	if config.Query.EditStaleTime != 10*time.Second {
		t.Errorf("LoadConfig() Query.EditStaleTime = %v, want 10s (default)", config.Query.EditStaleTime)
	}
	if config.Query.DetailStaleTime != 0 {
		t.Errorf("LoadConfig() Query.DetailStaleTime = %v, want 0 (default)", config.Query.DetailStaleTime)
	}
	if config.Query.UpdatePolicy != models.UpdatePolicyInvalidate {
		t.Errorf("LoadConfig() Query.UpdatePolicy = %v, want invalidate (default)", config.Query.UpdatePolicy)
	}
	if config.BigCache.Size != 64 {
		t.Errorf("LoadConfig() BigCache.Size = %v, want 64 (default)", config.BigCache.Size)
	}
	if config.KeyDB.Connection.ConnectTimeout != time.Second {
		t.Errorf("LoadConfig() KeyDB.Connection.ConnectTimeout = %v, want 1s (default)", config.KeyDB.Connection.ConnectTimeout)
	}
	if config.KeyDB.KeyPrefix != "events-query:" {
		t.Errorf("LoadConfig() KeyDB.KeyPrefix = %v, want events-query: (default)", config.KeyDB.KeyPrefix)
	}
	if config.Server.ListenAddr != ":8080" {
		t.Errorf("LoadConfig() Server.ListenAddr = %v, want :8080 (default)", config.Server.ListenAddr)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("EVENTS_BACKEND_URL", "http://override:4000")
	t.Setenv("EVENTS_LISTEN_ADDR", ":7000")
	logger := zaptest.NewLogger(t)

	configFile := createTestConfigFile(t, `
backend:
  base_url: http://from-file:3000
`)
	defer os.Remove(configFile)

	config, err := LoadConfig(configFile, logger)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if config.Backend.BaseURL != "http://override:4000" {
		t.Errorf("LoadConfig() Backend.BaseURL = %v, want env override", config.Backend.BaseURL)
	}
	if config.Server.ListenAddr != ":7000" {
		t.Errorf("LoadConfig() Server.ListenAddr = %v, want env override", config.Server.ListenAddr)
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	logger := zaptest.NewLogger(t)

	_, err := LoadConfig("/nonexistent/file.yaml", logger)
	if err == nil {
		t.Fatal("LoadConfig() should return error for nonexistent file")
	}
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	logger := zaptest.NewLogger(t)

	invalidConfig := `
bigcache:
  enabled: true
  invalid yaml syntax [
`

	configFile := createTestConfigFile(t, invalidConfig)
	defer os.Remove(configFile)

	_, err := LoadConfig(configFile, logger)
	if err == nil {
		t.Fatal("LoadConfig() should return error for invalid YAML")
	}
}

func TestLoadConfig_InvalidUpdatePolicy(t *testing.T) {
	logger := zaptest.NewLogger(t)

	configFile := createTestConfigFile(t, `
query:
  update_policy: eventually
`)
	defer os.Remove(configFile)

	_, err := LoadConfig(configFile, logger)
	if err == nil {
		t.Fatal("LoadConfig() should reject an unknown update policy")
	}
}

func TestLoadConfig_InvalidBackendURL(t *testing.T) {
	t.Setenv("EVENTS_BACKEND_URL", "")
	logger := zaptest.NewLogger(t)

	configFile := createTestConfigFile(t, `
backend:
  base_url: not a url
`)
	defer os.Remove(configFile)

	_, err := LoadConfig(configFile, logger)
	if err == nil {
		t.Fatal("LoadConfig() should reject an invalid backend URL")
	}
}

func TestDefault(t *testing.T) {
	t.Setenv("EVENTS_BACKEND_URL", "")
	t.Setenv("EVENTS_LISTEN_ADDR", "")

	config := Default()
	if err := config.Validate(); err != nil {
		t.Fatalf("Default() should be valid, got %v", err)
	}
	if config.Server.ShutdownTimeout != 30*time.Second {
		t.Errorf("Default() Server.ShutdownTimeout = %v, want 30s", config.Server.ShutdownTimeout)
	}
}
