package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"go-events-query/internal/models"
)

var validate = validator.New()

// Config represents the main configuration structure
type Config struct {
	Backend  BackendConfig  `yaml:"backend"`
	Query    QueryConfig    `yaml:"query"`
	BigCache BigCacheConfig `yaml:"bigcache"`
	KeyDB    KeyDBConfig    `yaml:"keydb"`
	Server   ServerConfig   `yaml:"server"`
}

// BackendConfig describes the events REST backend
type BackendConfig struct {
	BaseURL      string        `yaml:"base_url" validate:"required,url"`
	ImageBaseURL string        `yaml:"image_base_url" validate:"omitempty,url"`
	Timeout      time.Duration `yaml:"timeout" validate:"gte=0"`
}

// QueryConfig holds query cache timings and the query shapes used by the views
type QueryConfig struct {
	DefaultStaleTime time.Duration       `yaml:"default_stale_time" validate:"gte=0"`
	GCTime           time.Duration       `yaml:"gc_time" validate:"gte=0"`
	GCInterval       time.Duration       `yaml:"gc_interval" validate:"gte=0"`
	RecentMax        int                 `yaml:"recent_max" validate:"gte=0"`
	RecentStaleTime  time.Duration       `yaml:"recent_stale_time" validate:"gte=0"`
	DetailStaleTime  time.Duration       `yaml:"detail_stale_time" validate:"gte=0"`
	EditStaleTime    time.Duration       `yaml:"edit_stale_time" validate:"gte=0"`
	UpdatePolicy     models.UpdatePolicy `yaml:"update_policy"`
	PersistTTL       time.Duration       `yaml:"persist_ttl" validate:"gte=0"`
}

// BigCacheConfig configures the in-process L1 snapshot store
type BigCacheConfig struct {
	Enabled bool `yaml:"enabled"`
	Size    int  `yaml:"size" validate:"gte=0"` // MB
}

// ConnectionConfig holds KeyDB connection timeouts
type ConnectionConfig struct {
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	SendTimeout    time.Duration `yaml:"send_timeout"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
}

// KeepaliveConfig holds KeyDB pool settings
type KeepaliveConfig struct {
	PoolSize       int           `yaml:"pool_size" validate:"gte=0"`
	MaxIdleTimeout time.Duration `yaml:"max_idle_timeout"`
}

// KeyDBConfig configures the shared L2 snapshot store
type KeyDBConfig struct {
	Enabled    bool             `yaml:"enabled"`
	KeyPrefix  string           `yaml:"key_prefix"`
	Connection ConnectionConfig `yaml:"connection"`
	Keepalive  KeepaliveConfig  `yaml:"keepalive"`
}

// ServerConfig configures the view server
type ServerConfig struct {
	ListenAddr      string        `yaml:"listen_addr"`
	SocketPath      string        `yaml:"socket_path"` // takes precedence over ListenAddr
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LoadConfig loads configuration from file path
func LoadConfig(configPath string, logger *zap.Logger) (*Config, error) {
	logger.Info("Loading configuration", zap.String("path", configPath))

	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var config Config
	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(&config); err != nil {
		return nil, fmt.Errorf("failed to decode YAML config: %w", err)
	}

	config.applyEnvOverrides()
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Default returns a configuration with every default applied
func Default() *Config {
	var config Config
	config.applyEnvOverrides()
	config.applyDefaults()
	return &config
}

// Validate checks the configuration against its struct constraints
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// applyEnvOverrides lets the environment win over the file
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("EVENTS_BACKEND_URL"); v != "" {
		c.Backend.BaseURL = v
	}
	if v := os.Getenv("EVENTS_LISTEN_ADDR"); v != "" {
		c.Server.ListenAddr = v
	}
}

// applyDefaults sets default values for missing configuration
func (c *Config) applyDefaults() {
	c.Backend.applyDefaults()
	c.Query.applyDefaults()
	c.BigCache.applyDefaults()
	c.KeyDB.applyDefaults()
	c.Server.applyDefaults()
}

func (b *BackendConfig) applyDefaults() {
	if b.BaseURL == "" {
		b.BaseURL = "http://localhost:3000"
	}
	if b.ImageBaseURL == "" {
		b.ImageBaseURL = b.BaseURL
	}
	if b.Timeout == 0 {
		b.Timeout = 10 * time.Second
	}
}

func (q *QueryConfig) applyDefaults() {
	if q.GCTime == 0 {
		q.GCTime = 5 * time.Minute
	}
	if q.GCInterval == 0 {
		q.GCInterval = 30 * time.Second
	}
	if q.RecentMax == 0 {
		q.RecentMax = 3
	}
	if q.RecentStaleTime == 0 {
		q.RecentStaleTime = 5 * time.Second
	}
	if q.EditStaleTime == 0 {
		q.EditStaleTime = 10 * time.Second
	}
	if q.UpdatePolicy == "" {
		q.UpdatePolicy = models.UpdatePolicyInvalidate
	}
	if q.PersistTTL == 0 {
		q.PersistTTL = 24 * time.Hour
	}
}

func (b *BigCacheConfig) applyDefaults() {
	if b.Size == 0 {
		b.Size = 64
	}
}

func (k *KeyDBConfig) applyDefaults() {
	if k.KeyPrefix == "" {
		k.KeyPrefix = "events-query:"
	}
	if k.Connection.ConnectTimeout == 0 {
		k.Connection.ConnectTimeout = time.Second
	}
	if k.Connection.SendTimeout == 0 {
		k.Connection.SendTimeout = time.Second
	}
	if k.Connection.ReadTimeout == 0 {
		k.Connection.ReadTimeout = time.Second
	}
	if k.Keepalive.PoolSize == 0 {
		k.Keepalive.PoolSize = 10
	}
	if k.Keepalive.MaxIdleTimeout == 0 {
		k.Keepalive.MaxIdleTimeout = time.Minute
	}
}

func (s *ServerConfig) applyDefaults() {
	if s.ListenAddr == "" && s.SocketPath == "" {
		s.ListenAddr = ":8080"
	}
	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = 30 * time.Second
	}
}

// GetReadTimeout returns the KeyDB read timeout
func (k *KeyDBConfig) GetReadTimeout() time.Duration {
	return k.Connection.ReadTimeout
}

// GetSendTimeout returns the KeyDB send timeout
func (k *KeyDBConfig) GetSendTimeout() time.Duration {
	return k.Connection.SendTimeout
}
