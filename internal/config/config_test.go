package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Server.Port != 5000 {
		t.Errorf("unexpected default port: %d", cfg.Server.Port)
	}
	if cfg.Storage.Type != "memory" {
		t.Errorf("unexpected default storage: %s", cfg.Storage.Type)
	}
	if cfg.Query.PerDBTimeoutMS != 240000 {
		t.Errorf("unexpected default per_db_timeout_ms: %d", cfg.Query.PerDBTimeoutMS)
	}
	if cfg.Query.MaxConcurrentUpstreams != 10 {
		t.Errorf("unexpected default max_concurrent_upstreams: %d", cfg.Query.MaxConcurrentUpstreams)
	}
	if cfg.Query.PerDBTimeout() != 240*time.Second {
		t.Errorf("unexpected duration conversion: %s", cfg.Query.PerDBTimeout())
	}
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfigFile(t, `
server:
  host: 127.0.0.1
  port: 8080
storage:
  type: mongodb
  mongodb:
    uri: mongodb://db:27017
    database: gateway
query:
  per_db_timeout_ms: 5000
  max_concurrent_upstreams: 4
databases:
  - id: mp
    name: Materials Project
    base_url: https://optimade.materialsproject.org
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Server.Port != 8080 || cfg.Server.Host != "127.0.0.1" {
		t.Errorf("server section not loaded: %+v", cfg.Server)
	}
	if cfg.Storage.Type != "mongodb" || cfg.Storage.MongoDB.URI != "mongodb://db:27017" {
		t.Errorf("storage section not loaded: %+v", cfg.Storage)
	}
	if cfg.Query.PerDBTimeoutMS != 5000 || cfg.Query.MaxConcurrentUpstreams != 4 {
		t.Errorf("query section not loaded: %+v", cfg.Query)
	}
	if len(cfg.Databases) != 1 || cfg.Databases[0].ID != "mp" {
		t.Errorf("databases not loaded: %+v", cfg.Databases)
	}
	if cfg.Address() != "127.0.0.1:8080" {
		t.Errorf("unexpected address: %s", cfg.Address())
	}
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("TEST_MONGO_URI", "mongodb://secret:27017")
	path := writeConfigFile(t, `
storage:
  type: mongodb
  mongodb:
    uri: ${TEST_MONGO_URI}
    database: gateway
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Storage.MongoDB.URI != "mongodb://secret:27017" {
		t.Errorf("env var not expanded: %s", cfg.Storage.MongoDB.URI)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("OPTIMADE_GATEWAY_SERVER_PORT", "9999")
	t.Setenv("OPTIMADE_GATEWAY_LOG_LEVEL", "debug")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("port override not applied: %d", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level override not applied: %s", cfg.Logging.Level)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"bad storage type", func(c *Config) { c.Storage.Type = "redis" }},
		{"mongodb without uri", func(c *Config) {
			c.Storage.Type = "mongodb"
			c.Storage.MongoDB.URI = ""
		}},
		{"zero per_db_timeout", func(c *Config) { c.Query.PerDBTimeoutMS = 0 }},
		{"gateway timeout below per-db", func(c *Config) {
			c.Query.GatewayTimeoutMS = 1000
		}},
		{"zero concurrency", func(c *Config) { c.Query.MaxConcurrentUpstreams = 0 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"database without base_url", func(c *Config) {
			c.Databases = []DatabaseEntry{{ID: "mp"}}
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestValidateAcceptsGatewayTimeoutAboveCap(t *testing.T) {
	cfg := Default()
	cfg.Query.GatewayTimeoutMS = cfg.Query.PerDBTimeoutMS
	if err := cfg.Validate(); err != nil {
		t.Errorf("equal gateway timeout should validate: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}
