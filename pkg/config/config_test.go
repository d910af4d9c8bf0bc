package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Search.DefaultLimit != 10 {
		t.Errorf("DefaultLimit = %d, want 10", cfg.Search.DefaultLimit)
	}
	if cfg.Search.StrictQueryKinds {
		t.Error("strict query kinds should be off by default")
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte(`
server:
  port: 9000
index:
  maxDocuments: 50
  stemming: true
  stopWords: [foo, bar]
search:
  defaultField: body
  defaultLimit: 5
  strictQueryKinds: true
  sessionTTL: 2m
redis:
  enabled: true
  cacheTTL: 30s
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9000 || cfg.Index.MaxDocuments != 50 || !cfg.Index.Stemming {
		t.Errorf("unexpected server/index config: %+v %+v", cfg.Server, cfg.Index)
	}
	if len(cfg.Index.StopWords) != 2 || cfg.Index.StopWords[0] != "foo" {
		t.Errorf("StopWords = %v", cfg.Index.StopWords)
	}
	if cfg.Search.DefaultField != "body" || !cfg.Search.StrictQueryKinds || cfg.Search.SessionTTL != 2*time.Minute {
		t.Errorf("unexpected search config: %+v", cfg.Search)
	}
	if !cfg.Redis.Enabled || cfg.Redis.CacheTTL != 30*time.Second {
		t.Errorf("unexpected redis config: %+v", cfg.Redis)
	}
	if cfg.Search.MaxResults != 100 {
		t.Errorf("unset MaxResults lost its default: %d", cfg.Search.MaxResults)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TS_SERVER_PORT", "7070")
	t.Setenv("TS_SEARCH_STRICT_QUERY_KINDS", "true")
	t.Setenv("TS_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("TS_SEARCH_SESSION_TTL", "90s")
	t.Setenv("TS_SEARCH_DEFAULT_LIMIT", "not-a-number")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("Port = %d", cfg.Server.Port)
	}
	if !cfg.Search.StrictQueryKinds {
		t.Error("StrictQueryKinds not overridden")
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Errorf("Brokers = %v", cfg.Kafka.Brokers)
	}
	if cfg.Search.SessionTTL != 90*time.Second {
		t.Errorf("SessionTTL = %v", cfg.Search.SessionTTL)
	}
	if cfg.Search.DefaultLimit != 10 {
		t.Errorf("malformed override should be ignored, DefaultLimit = %d", cfg.Search.DefaultLimit)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"zero limit", func(c *Config) { c.Search.DefaultLimit = 0 }},
		{"max below default", func(c *Config) { c.Search.MaxResults = 1 }},
		{"no default field", func(c *Config) { c.Search.DefaultField = "" }},
		{"kafka without brokers", func(c *Config) { c.Kafka.Enabled = true; c.Kafka.Brokers = nil }},
		{"redis without ttl", func(c *Config) { c.Redis.Enabled = true; c.Redis.CacheTTL = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestDSN(t *testing.T) {
	p := Default().Postgres
	want := "host=localhost port=5432 user=textsearch password=localdev dbname=textsearch sslmode=disable"
	if got := p.DSN(); got != want {
		t.Errorf("DSN = %q", got)
	}
}
