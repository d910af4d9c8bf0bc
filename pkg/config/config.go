// Package config loads and validates the search service configuration from
// YAML files with environment-variable overrides. It provides typed structs
// for every subsystem (Server, Index, Search, Kafka, Redis, Postgres, etc.).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const envPrefix = "TS_"

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Index    IndexConfig    `yaml:"index"`
	Search   SearchConfig   `yaml:"search"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	MaxBodyBytes    int64         `yaml:"maxBodyBytes"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	// RateLimit is the number of requests each session may make per
	// RateLimitWindow. Zero disables limiting.
	RateLimit       int           `yaml:"rateLimit"`
	RateLimitWindow time.Duration `yaml:"rateLimitWindow"`
	CORSOrigins     []string      `yaml:"corsOrigins"`
}

// IndexConfig controls analysis and the in-memory index of every session.
type IndexConfig struct {
	MaxDocuments     int           `yaml:"maxDocuments"`
	CompactThreshold int           `yaml:"compactThreshold"`
	CompactInterval  time.Duration `yaml:"compactInterval"`
	StopWords        []string      `yaml:"stopWords"`
	DisableStopWords bool          `yaml:"disableStopWords"`
	Stemming         bool          `yaml:"stemming"`
}

// SearchConfig controls query execution limits and session lifetime.
type SearchConfig struct {
	DefaultField     string        `yaml:"defaultField"`
	DefaultLimit     int           `yaml:"defaultLimit"`
	MaxResults       int           `yaml:"maxResults"`
	StrictQueryKinds bool          `yaml:"strictQueryKinds"`
	SessionTTL       time.Duration `yaml:"sessionTTL"`
	SweepInterval    time.Duration `yaml:"sweepInterval"`
	MaxSessions      int           `yaml:"maxSessions"`
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled         bool        `yaml:"enabled"`
	Brokers         []string    `yaml:"brokers"`
	ConsumerGroup   string      `yaml:"consumerGroup"`
	Topics          KafkaTopics `yaml:"topics"`
	CollectorBuffer int         `yaml:"collectorBuffer"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	DocumentIngest  string `yaml:"documentIngest"`
	AnalyticsEvents string `yaml:"analyticsEvents"`
}

// RedisConfig holds Redis connection and result-cache parameters.
type RedisConfig struct {
	Enabled             bool          `yaml:"enabled"`
	Addr                string        `yaml:"addr"`
	Password            string        `yaml:"password"`
	DB                  int           `yaml:"db"`
	PoolSize            int           `yaml:"poolSize"`
	CacheTTL            time.Duration `yaml:"cacheTTL"`
	BreakerThreshold    int           `yaml:"breakerThreshold"`
	BreakerResetTimeout time.Duration `yaml:"breakerResetTimeout"`
}

// PostgresConfig holds PostgreSQL connection parameters for analytics
// snapshots.
type PostgresConfig struct {
	Enabled          bool          `yaml:"enabled"`
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	Database         string        `yaml:"database"`
	User             string        `yaml:"user"`
	Password         string        `yaml:"password"`
	SSLMode          string        `yaml:"sslMode"`
	MaxOpenConns     int           `yaml:"maxOpenConns"`
	MaxIdleConns     int           `yaml:"maxIdleConns"`
	ConnMaxLifetime  time.Duration `yaml:"connMaxLifetime"`
	SnapshotInterval time.Duration `yaml:"snapshotInterval"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided), applies environment-variable
// overrides and validates the result. Missing values keep their defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Default returns a Config suitable for local development: everything runs
// in-process and external services are disabled.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			MaxBodyBytes:    8 << 20,
			RequestTimeout:  10 * time.Second,
			RateLimitWindow: time.Minute,
		},
		Index: IndexConfig{
			MaxDocuments:     1_000_000,
			CompactThreshold: 1000,
			CompactInterval:  time.Minute,
		},
		Search: SearchConfig{
			DefaultField:  "text",
			DefaultLimit:  10,
			MaxResults:    100,
			SessionTTL:    30 * time.Minute,
			SweepInterval: time.Minute,
			MaxSessions:   1000,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "textsearch-group",
			Topics: KafkaTopics{
				DocumentIngest:  "document-ingest",
				AnalyticsEvents: "analytics-events",
			},
			CollectorBuffer: 10000,
		},
		Redis: RedisConfig{
			Addr:                "localhost:6379",
			PoolSize:            10,
			CacheTTL:            60 * time.Second,
			BreakerThreshold:    5,
			BreakerResetTimeout: 30 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:             "localhost",
			Port:             5432,
			Database:         "textsearch",
			User:             "textsearch",
			Password:         "localdev",
			SSLMode:          "disable",
			MaxOpenConns:     10,
			MaxIdleConns:     2,
			ConnMaxLifetime:  5 * time.Minute,
			SnapshotInterval: 5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// Validate reports every inconsistent setting at once.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}
	check(c.Server.Port > 0 && c.Server.Port < 65536, "server.port %d out of range", c.Server.Port)
	check(c.Server.RateLimit >= 0, "server.rateLimit must not be negative")
	check(c.Server.RateLimit == 0 || c.Server.RateLimitWindow > 0,
		"server.rateLimitWindow must be positive when rate limiting is enabled")
	check(c.Index.MaxDocuments >= 0, "index.maxDocuments must not be negative")
	check(c.Index.CompactThreshold >= 0, "index.compactThreshold must not be negative")
	check(c.Search.DefaultField != "", "search.defaultField is required")
	check(c.Search.DefaultLimit > 0, "search.defaultLimit must be positive")
	check(c.Search.MaxResults >= c.Search.DefaultLimit,
		"search.maxResults (%d) must be >= search.defaultLimit (%d)", c.Search.MaxResults, c.Search.DefaultLimit)
	check(c.Search.MaxSessions >= 0, "search.maxSessions must not be negative")
	if c.Kafka.Enabled {
		check(len(c.Kafka.Brokers) > 0, "kafka.brokers is required when kafka is enabled")
		check(c.Kafka.Topics.DocumentIngest != "", "kafka.topics.documentIngest is required")
		check(c.Kafka.Topics.AnalyticsEvents != "", "kafka.topics.analyticsEvents is required")
	}
	if c.Redis.Enabled {
		check(c.Redis.Addr != "", "redis.addr is required when redis is enabled")
		check(c.Redis.CacheTTL > 0, "redis.cacheTTL must be positive")
	}
	if c.Postgres.Enabled {
		check(c.Postgres.SnapshotInterval > 0, "postgres.snapshotInterval must be positive")
	}
	if c.Metrics.Enabled {
		check(c.Metrics.Port > 0 && c.Metrics.Port < 65536, "metrics.port %d out of range", c.Metrics.Port)
	}
	return errors.Join(errs...)
}

// applyEnvOverrides reads TS_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	envInt("SERVER_PORT", &cfg.Server.Port)
	envInt("SERVER_RATE_LIMIT", &cfg.Server.RateLimit)
	if v := os.Getenv(envPrefix + "SERVER_CORS_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = strings.Split(v, ",")
	}
	envInt("INDEX_MAX_DOCUMENTS", &cfg.Index.MaxDocuments)
	envBool("INDEX_STEMMING", &cfg.Index.Stemming)
	if v := os.Getenv(envPrefix + "INDEX_STOP_WORDS"); v != "" {
		cfg.Index.StopWords = strings.Split(v, ",")
	}
	envString("SEARCH_DEFAULT_FIELD", &cfg.Search.DefaultField)
	envInt("SEARCH_DEFAULT_LIMIT", &cfg.Search.DefaultLimit)
	envInt("SEARCH_MAX_RESULTS", &cfg.Search.MaxResults)
	envBool("SEARCH_STRICT_QUERY_KINDS", &cfg.Search.StrictQueryKinds)
	envDuration("SEARCH_SESSION_TTL", &cfg.Search.SessionTTL)
	envBool("KAFKA_ENABLED", &cfg.Kafka.Enabled)
	if v := os.Getenv(envPrefix + "KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	envBool("REDIS_ENABLED", &cfg.Redis.Enabled)
	envString("REDIS_ADDR", &cfg.Redis.Addr)
	envString("REDIS_PASSWORD", &cfg.Redis.Password)
	envBool("POSTGRES_ENABLED", &cfg.Postgres.Enabled)
	envString("POSTGRES_HOST", &cfg.Postgres.Host)
	envInt("POSTGRES_PORT", &cfg.Postgres.Port)
	envString("POSTGRES_DATABASE", &cfg.Postgres.Database)
	envString("POSTGRES_USER", &cfg.Postgres.User)
	envString("POSTGRES_PASSWORD", &cfg.Postgres.Password)
	envString("POSTGRES_SSLMODE", &cfg.Postgres.SSLMode)
	envString("LOGGING_LEVEL", &cfg.Logging.Level)
	envString("LOGGING_FORMAT", &cfg.Logging.Format)
	envBool("METRICS_ENABLED", &cfg.Metrics.Enabled)
	envInt("METRICS_PORT", &cfg.Metrics.Port)
}

func envString(name string, dst *string) {
	if v := os.Getenv(envPrefix + name); v != "" {
		*dst = v
	}
}

func envInt(name string, dst *int) {
	if v := os.Getenv(envPrefix + name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(name string, dst *bool) {
	if v := os.Getenv(envPrefix + name); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func envDuration(name string, dst *time.Duration) {
	if v := os.Getenv(envPrefix + name); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
