package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/prometheus/common/model"
	"gopkg.in/yaml.v3"

	"github.com/vjranagit/dashboard/pkg/influx"
	"github.com/vjranagit/dashboard/pkg/tenant"
)

// Config holds the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	Directory DirectoryConfig `yaml:"directory"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	ListenAddr  string        `yaml:"listen_addr"`
	Timeout     time.Duration `yaml:"timeout"`
	AllowOrigin string        `yaml:"allow_origin"`
}

// StoreConfig holds time-series store configuration
type StoreConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
	Gzip    bool          `yaml:"gzip"`
}

// DirectoryConfig holds tenant directory configuration
type DirectoryConfig struct {
	Path      string        `yaml:"path"`
	InMemory  bool          `yaml:"in_memory"`
	SeedFile  string        `yaml:"seed_file"`
	CacheSize int           `yaml:"cache_size"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
}

// DashboardConfig points at the dashboard layout file
type DashboardConfig struct {
	File string `yaml:"file"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:  getEnv("LISTEN_ADDR", ":8080"),
			Timeout:     getEnvDuration("REQUEST_TIMEOUT", 30*time.Second),
			AllowOrigin: getEnv("CORS_ALLOW_ORIGIN", "*"),
		},
		Store: StoreConfig{
			URL:     getEnv("INFLUX_URL", "http://localhost:8086"),
			Timeout: getEnvDuration("STORE_TIMEOUT", 30*time.Second),
			Gzip:    getEnvBool("STORE_GZIP", true),
		},
		Directory: DirectoryConfig{
			Path:      getEnv("DIRECTORY_PATH", "./data"),
			InMemory:  getEnvBool("DIRECTORY_IN_MEMORY", false),
			SeedFile:  getEnv("DIRECTORY_SEED", ""),
			CacheSize: getEnvInt("CREDENTIAL_CACHE_SIZE", 1000),
			CacheTTL:  getEnvDuration("CREDENTIAL_CACHE_TTL", 5*time.Minute),
		},
		Dashboard: DashboardConfig{
			File: getEnv("DASHBOARD_FILE", ""),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}
}

// Load returns the defaults overlaid with the YAML file at path. An empty
// path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// ToStoreConfig converts to influx.Config
func (c *Config) ToStoreConfig() influx.Config {
	return influx.Config{
		URL:     c.Store.URL,
		Timeout: c.Store.Timeout,
		Gzip:    c.Store.Gzip,
	}
}

// ToDirectoryConfig converts to tenant.Config
func (c *Config) ToDirectoryConfig() tenant.Config {
	return tenant.Config{
		Path:     c.Directory.Path,
		InMemory: c.Directory.InMemory,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server listen address is required")
	}

	if c.Server.Timeout <= 0 {
		return fmt.Errorf("server timeout must be positive")
	}

	if c.Store.URL == "" {
		return fmt.Errorf("store url is required")
	}

	if c.Store.Timeout <= 0 {
		return fmt.Errorf("store timeout must be positive")
	}

	if c.Directory.Path == "" && !c.Directory.InMemory {
		return fmt.Errorf("directory path is required")
	}

	if c.Directory.CacheSize < 1 {
		return fmt.Errorf("credential cache size must be at least 1")
	}

	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}

	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("log format must be json or text, got %q", c.Log.Format)
	}

	return nil
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}

// NewLogger builds the process logger writing to w.
func (l LogConfig) NewLogger(w io.Writer, service string) *slog.Logger {
	level, _ := ParseLevel(l.Level)
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if strings.ToLower(l.Format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler).With("service", service)
}

// Helper functions for environment variables
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intVal int
		if _, err := fmt.Sscanf(value, "%d", &intVal); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}

// getEnvDuration accepts Prometheus-style durations, so "7d" works.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := model.ParseDuration(value); err == nil {
			return time.Duration(d)
		}
	}
	return defaultValue
}
