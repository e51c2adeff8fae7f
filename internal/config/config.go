// Package config handles gateway configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level gateway configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Query     QueryConfig     `yaml:"query"`
	Logging   LoggingConfig   `yaml:"logging"`
	Databases []DatabaseEntry `yaml:"databases"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	ReadTimeout  int    `yaml:"read_timeout"`
	WriteTimeout int    `yaml:"write_timeout"`
	// BaseURL is the externally visible URL of this gateway, used in links.
	BaseURL     string `yaml:"base_url"`
	DocsEnabled bool   `yaml:"docs_enabled"`
}

// StorageConfig selects and configures the storage backend.
type StorageConfig struct {
	Type    string        `yaml:"type"`
	MongoDB MongoDBConfig `yaml:"mongodb"`
}

// MongoDBConfig holds MongoDB backend settings.
type MongoDBConfig struct {
	URI                 string `yaml:"uri"`
	Database            string `yaml:"database"`
	DatabasesCollection string `yaml:"databases_collection"`
	GatewaysCollection  string `yaml:"gateways_collection"`
	QueriesCollection   string `yaml:"queries_collection"`
}

// QueryConfig controls federated query execution.
type QueryConfig struct {
	PerDBTimeoutMS         int `yaml:"per_db_timeout_ms"`
	GatewayTimeoutMS       int `yaml:"gateway_timeout_ms"`
	MaxConcurrentUpstreams int `yaml:"max_concurrent_upstreams"`
	PageLimit              int `yaml:"page_limit"`
	// SearchTimeoutS is how long /search waits for a query to finish before
	// redirecting the client to the query record.
	SearchTimeoutS int `yaml:"search_timeout_s"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string        `yaml:"level"`
	Format string        `yaml:"format"`
	File   LogFileConfig `yaml:"file"`
}

// LogFileConfig enables rotating file output in addition to stdout.
type LogFileConfig struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// DatabaseEntry seeds an upstream database registration at startup.
type DatabaseEntry struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	BaseURL string `yaml:"base_url"`
	Version string `yaml:"version"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         5000,
			ReadTimeout:  30,
			WriteTimeout: 300,
			DocsEnabled:  true,
		},
		Storage: StorageConfig{
			Type: "memory",
			MongoDB: MongoDBConfig{
				URI:                 "mongodb://localhost:27017",
				Database:            "optimade_gateway",
				DatabasesCollection: "databases",
				GatewaysCollection:  "gateways",
				QueriesCollection:   "queries",
			},
		},
		Query: QueryConfig{
			PerDBTimeoutMS:         240000,
			MaxConcurrentUpstreams: 10,
			PageLimit:              20,
			SearchTimeoutS:         10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			File: LogFileConfig{
				MaxSizeMB:  100,
				MaxBackups: 3,
				MaxAgeDays: 28,
			},
		},
	}
}

// Load reads configuration from a YAML file, expands ${VAR} references from
// the environment and applies OPTIMADE_GATEWAY_* overrides. An empty path
// yields the defaults plus overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		expanded := os.Expand(string(data), func(key string) string {
			return os.Getenv(key)
		})
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies OPTIMADE_GATEWAY_* environment variables on top
// of the loaded file.
func (c *Config) applyEnvOverrides() {
	setString := func(key string, target *string) {
		if v := os.Getenv(key); v != "" {
			*target = v
		}
	}
	setInt := func(key string, target *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*target = n
			}
		}
	}
	setBool := func(key string, target *bool) {
		if v := os.Getenv(key); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*target = b
			}
		}
	}

	setString("OPTIMADE_GATEWAY_SERVER_HOST", &c.Server.Host)
	setInt("OPTIMADE_GATEWAY_SERVER_PORT", &c.Server.Port)
	setString("OPTIMADE_GATEWAY_SERVER_BASE_URL", &c.Server.BaseURL)
	setBool("OPTIMADE_GATEWAY_DOCS_ENABLED", &c.Server.DocsEnabled)

	setString("OPTIMADE_GATEWAY_STORAGE_TYPE", &c.Storage.Type)
	setString("OPTIMADE_GATEWAY_MONGODB_URI", &c.Storage.MongoDB.URI)
	setString("OPTIMADE_GATEWAY_MONGODB_DATABASE", &c.Storage.MongoDB.Database)

	setInt("OPTIMADE_GATEWAY_PER_DB_TIMEOUT_MS", &c.Query.PerDBTimeoutMS)
	setInt("OPTIMADE_GATEWAY_GATEWAY_TIMEOUT_MS", &c.Query.GatewayTimeoutMS)
	setInt("OPTIMADE_GATEWAY_MAX_CONCURRENT_UPSTREAMS", &c.Query.MaxConcurrentUpstreams)
	setInt("OPTIMADE_GATEWAY_PAGE_LIMIT", &c.Query.PageLimit)

	setString("OPTIMADE_GATEWAY_LOG_LEVEL", &c.Logging.Level)
	setString("OPTIMADE_GATEWAY_LOG_FORMAT", &c.Logging.Format)
	setString("OPTIMADE_GATEWAY_LOG_FILE", &c.Logging.File.Path)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.Storage.Type {
	case "memory":
	case "mongodb":
		if c.Storage.MongoDB.URI == "" {
			return fmt.Errorf("mongodb storage requires a uri")
		}
		if c.Storage.MongoDB.Database == "" {
			return fmt.Errorf("mongodb storage requires a database name")
		}
	default:
		return fmt.Errorf("invalid storage type: %s (must be memory or mongodb)", c.Storage.Type)
	}

	if c.Query.PerDBTimeoutMS <= 0 {
		return fmt.Errorf("per_db_timeout_ms must be positive")
	}
	if c.Query.GatewayTimeoutMS < 0 {
		return fmt.Errorf("gateway_timeout_ms must not be negative")
	}
	if c.Query.GatewayTimeoutMS > 0 && c.Query.GatewayTimeoutMS < c.Query.PerDBTimeoutMS {
		return fmt.Errorf("gateway_timeout_ms must be at least per_db_timeout_ms")
	}
	if c.Query.MaxConcurrentUpstreams < 1 {
		return fmt.Errorf("max_concurrent_upstreams must be at least 1")
	}
	if c.Query.PageLimit < 1 {
		return fmt.Errorf("page_limit must be at least 1")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	for i, db := range c.Databases {
		if db.ID == "" {
			return fmt.Errorf("databases[%d]: id is required", i)
		}
		if db.BaseURL == "" {
			return fmt.Errorf("databases[%d]: base_url is required", i)
		}
	}
	return nil
}

// Address returns the listen address of the server.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// PerDBTimeout returns the per-upstream timeout as a duration.
func (c *QueryConfig) PerDBTimeout() time.Duration {
	return time.Duration(c.PerDBTimeoutMS) * time.Millisecond
}

// GatewayTimeout returns the overall fan-out timeout as a duration. Zero
// means unbounded.
func (c *QueryConfig) GatewayTimeout() time.Duration {
	return time.Duration(c.GatewayTimeoutMS) * time.Millisecond
}

// SearchTimeout returns how long /search waits before redirecting.
func (c *QueryConfig) SearchTimeout() time.Duration {
	return time.Duration(c.SearchTimeoutS) * time.Second
}
