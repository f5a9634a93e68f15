// Package config manages crawler configuration loaded via Viper from a
// YAML file and environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Default configuration values.
const (
	DefaultMaxDepth              = 3
	DefaultPolitenessDelay       = 1.0
	DefaultMaxConcurrentRequests = 10
	DefaultRequestTimeoutSeconds = 30
	DefaultRetryAttempts         = 3
	DefaultUserAgent             = "PoliteCrawler/1.0"
	DefaultRobotsCacheTTL        = time.Hour
	DefaultDataDirectory         = "./data"
	DefaultRedisHost             = "localhost"
	DefaultRedisPort             = 6379
	DefaultLogLevel              = "info"
	DefaultLogFormat             = "json"
	DefaultPrometheusPort        = 9090
	DefaultCassandraPort         = 9042
	DefaultCassandraReplication  = 1
)

// CrawlerConfig holds the seed list and crawl-time tuning parameters.
type CrawlerConfig struct {
	SeedURLs              []string `yaml:"seed_urls"`
	MaxDepth              int      `yaml:"max_depth"`
	PolitenessDelay       float64  `yaml:"politeness_delay"`
	MaxConcurrentRequests int      `yaml:"max_concurrent_requests"`
	RequestTimeout        int      `yaml:"request_timeout"`
	RetryAttempts         int      `yaml:"retry_attempts"`
	UserAgent             string   `yaml:"user_agent"`
	RespectRobotsTxt      bool     `yaml:"respect_robots_txt"`
	AllowedDomains        []string `yaml:"allowed_domains"`
	BlockedDomains        []string `yaml:"blocked_domains"`
}

// FileBackendConfig configures the file-based content store.
type FileBackendConfig struct {
	DataDirectory string `yaml:"data_directory"`
}

// CassandraBackendConfig configures the wide-column content store backend.
// The implementation substitutes Elasticsearch for Cassandra (see DESIGN.md);
// these fields map onto Elasticsearch's addresses/index naming instead.
type CassandraBackendConfig struct {
	Hosts             []string `yaml:"hosts"`
	Port              int      `yaml:"port"`
	Keyspace          string   `yaml:"keyspace"`
	ReplicationFactor int      `yaml:"replication_factor"`
}

// DatabaseConfig selects and configures the Content Store backend.
type DatabaseConfig struct {
	Type      string                 `yaml:"type"` // "file" | "cassandra"
	File      FileBackendConfig      `yaml:"file"`
	Cassandra CassandraBackendConfig `yaml:"cassandra"`
}

// RedisConfig holds the coordinator store's contact info.
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	DB       int    `yaml:"db"`
	Password string `yaml:"password"`
}

// LoggingConfig configures the zap-backed logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	File   string `yaml:"file"`
	Format string `yaml:"format"`
}

// MonitoringConfig configures the Prometheus metrics endpoint.
type MonitoringConfig struct {
	PrometheusPort int  `yaml:"prometheus_port"`
	MetricsEnabled bool `yaml:"metrics_enabled"`
}

// Config is the root configuration object, matching the YAML schema
// documented alongside the other configuration sections.
type Config struct {
	Crawler    CrawlerConfig    `yaml:"crawler"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Logging    LoggingConfig    `yaml:"logging"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
}

// Load reads configuration from the given file path (if non-empty), layered
// with environment variable overrides and the defaults below. Missing config
// files are not fatal: the defaults, with any environment overrides, still
// apply.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("reading config file %s: %w", configFile, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "yaml"
	}); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("crawler.max_depth", DefaultMaxDepth)
	v.SetDefault("crawler.politeness_delay", DefaultPolitenessDelay)
	v.SetDefault("crawler.max_concurrent_requests", DefaultMaxConcurrentRequests)
	v.SetDefault("crawler.request_timeout", DefaultRequestTimeoutSeconds)
	v.SetDefault("crawler.retry_attempts", DefaultRetryAttempts)
	v.SetDefault("crawler.user_agent", DefaultUserAgent)
	v.SetDefault("crawler.respect_robots_txt", true)

	v.SetDefault("database.type", "file")
	v.SetDefault("database.file.data_directory", DefaultDataDirectory)
	v.SetDefault("database.cassandra.port", DefaultCassandraPort)
	v.SetDefault("database.cassandra.replication_factor", DefaultCassandraReplication)

	v.SetDefault("redis.host", DefaultRedisHost)
	v.SetDefault("redis.port", DefaultRedisPort)
	v.SetDefault("redis.db", 0)

	v.SetDefault("logging.level", DefaultLogLevel)
	v.SetDefault("logging.format", DefaultLogFormat)

	v.SetDefault("monitoring.prometheus_port", DefaultPrometheusPort)
	v.SetDefault("monitoring.metrics_enabled", true)
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Crawler.MaxConcurrentRequests <= 0 {
		return fmt.Errorf("crawler.max_concurrent_requests must be positive")
	}
	if c.Crawler.PolitenessDelay < 0 {
		return fmt.Errorf("crawler.politeness_delay must not be negative")
	}
	switch c.Database.Type {
	case "file":
		if c.Database.File.DataDirectory == "" {
			return fmt.Errorf("database.file.data_directory is required for the file backend")
		}
	case "cassandra":
		if len(c.Database.Cassandra.Hosts) == 0 {
			return fmt.Errorf("database.cassandra.hosts is required for the cassandra backend")
		}
	default:
		return fmt.Errorf("database.type must be %q or %q, got %q", "file", "cassandra", c.Database.Type)
	}
	return nil
}

// RequestTimeoutDuration returns the configured request timeout as a Duration.
func (c *CrawlerConfig) RequestTimeoutDuration() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// PolitenessDelayDuration returns the configured politeness delay as a Duration.
func (c *CrawlerConfig) PolitenessDelayDuration() time.Duration {
	return time.Duration(c.PolitenessDelay * float64(time.Second))
}

// Addr renders host:port for go-redis.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
