package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the service configuration. It is read from an optional YAML
// file and then overridden from the environment.
type Config struct {
	Server     Server      `yaml:"server"`
	Logging    Logging     `yaml:"logging"`
	Timeouts   Timeouts    `yaml:"timeout_config"`
	Enrichment Enrichment  `yaml:"enrichment"`
	Registry   Registry    `yaml:"registry"`
	Holdings   Holdings    `yaml:"holdings"`
	Resolver   Resolver    `yaml:"resolver"`
	Redis      RedisConfig `yaml:"redis"`
	Database   Database    `yaml:"database"`
	Kafka      Kafka       `yaml:"kafka"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr              string        `yaml:"addr"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

// Logging selects the slog handler.
type Logging struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or text
}

// Timeouts are expressed in whole seconds, as in the upstream config.yaml.
type Timeouts struct {
	EnrichmentTimeout int `yaml:"enrichment_timeout"`
	PerFundTimeout    int `yaml:"per_fund_timeout"`
}

// Enrichment tunes the batch pipeline.
type Enrichment struct {
	MaxConcurrent   int           `yaml:"max_concurrent"`
	RetryAttempts   int           `yaml:"retry_attempts"`
	RetryBaseDelay  time.Duration `yaml:"retry_base_delay"`
	RetryMaxDelay   time.Duration `yaml:"retry_max_delay"`
	CacheEnabled    bool          `yaml:"cache_enabled"`
	CacheTTLMinutes int           `yaml:"cache_ttl_minutes"`
}

// Registry points at the scheme registry (AMFI NAVAll.txt format).
type Registry struct {
	URL             string        `yaml:"url"`
	File            string        `yaml:"file"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	RatePerSecond   float64       `yaml:"rate_per_second"`
}

// Holdings points at the holdings/sector-breakdown provider.
type Holdings struct {
	BaseURL        string        `yaml:"base_url"`
	APIKey         string        `yaml:"api_key"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	TopN           int           `yaml:"top_n"`
	RatePerSecond  float64       `yaml:"rate_per_second"`
	Burst          int           `yaml:"burst"`
}

// Resolver overrides the embedded resolution rules.
type Resolver struct {
	RulesFile      string  `yaml:"rules_file"`
	FuzzyThreshold float64 `yaml:"fuzzy_threshold"`
}

// RedisConfig configures the optional enrichment cache backend.
type RedisConfig struct {
	URL          string        `yaml:"url"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// Database configures the optional Postgres registry snapshot store.
type Database struct {
	URL string `yaml:"url"`
}

// Kafka configures the optional enrichment event publisher.
type Kafka struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// DefaultRegistryURL is AMFI's daily NAV file.
const DefaultRegistryURL = "https://www.amfiindia.com/spages/NAVAll.txt"

// Default returns a configuration that runs with no external dependencies
// besides the registry.
func Default() Config {
	return Config{
		Server: Server{
			Addr:              ":8000",
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   10 * time.Second,
		},
		Logging: Logging{Level: "info", Format: "json"},
		Timeouts: Timeouts{
			EnrichmentTimeout: 120,
			PerFundTimeout:    15,
		},
		Enrichment: Enrichment{
			MaxConcurrent:   5,
			RetryAttempts:   3,
			RetryBaseDelay:  500 * time.Millisecond,
			RetryMaxDelay:   5 * time.Second,
			CacheEnabled:    true,
			CacheTTLMinutes: 60,
		},
		Registry: Registry{
			URL:             DefaultRegistryURL,
			RefreshInterval: 24 * time.Hour,
			RequestTimeout:  30 * time.Second,
			RatePerSecond:   1,
		},
		Holdings: Holdings{
			RequestTimeout: 10 * time.Second,
			TopN:           20,
			RatePerSecond:  5,
			Burst:          5,
		},
		Resolver: Resolver{FuzzyThreshold: 0.60},
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: Kafka{Topic: "mfetl.enrichment"},
	}
}

// Load reads path (when it exists) over the defaults and applies
// environment overrides. A missing file is not an error: the service runs
// on defaults, as the upstream ETL service did.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	cfg.applyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FromEnv builds a config from defaults and environment variables so main stays lean.
func FromEnv() (Config, error) {
	return Load(os.Getenv("MFETL_CONFIG"))
}

func (c *Config) applyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&c.Server.Addr, "MFETL_ADDR")
	set(&c.Logging.Level, "MFETL_LOG_LEVEL")
	set(&c.Redis.URL, "MFETL_REDIS_URL")
	set(&c.Database.URL, "MFETL_DATABASE_URL")
	set(&c.Registry.URL, "MFETL_REGISTRY_URL")
	set(&c.Registry.File, "MFETL_REGISTRY_FILE")
	set(&c.Holdings.BaseURL, "MFETL_HOLDINGS_URL")
	set(&c.Holdings.APIKey, "MFETL_HOLDINGS_API_KEY")
	if v := strings.TrimSpace(getenv("MFETL_KAFKA_BROKERS")); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
}

// Validate rejects settings the service cannot run with.
func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if c.Registry.URL == "" && c.Registry.File == "" {
		return errors.New("registry.url or registry.file is required")
	}
	if c.Enrichment.MaxConcurrent < 1 {
		return fmt.Errorf("enrichment.max_concurrent must be positive, got %d", c.Enrichment.MaxConcurrent)
	}
	if c.Timeouts.EnrichmentTimeout < 1 || c.Timeouts.PerFundTimeout < 1 {
		return errors.New("timeout_config values must be positive")
	}
	if c.Resolver.FuzzyThreshold <= 0 || c.Resolver.FuzzyThreshold > 1 {
		return fmt.Errorf("resolver.fuzzy_threshold must be in (0, 1], got %v", c.Resolver.FuzzyThreshold)
	}
	return nil
}

// EnrichmentTimeoutDuration is the overall budget for one enrichment request.
func (t Timeouts) EnrichmentTimeoutDuration() time.Duration {
	return time.Duration(t.EnrichmentTimeout) * time.Second
}

// PerFundTimeoutDuration is the budget for enriching a single fund.
func (t Timeouts) PerFundTimeoutDuration() time.Duration {
	return time.Duration(t.PerFundTimeout) * time.Second
}

// CacheTTL converts the configured minutes.
func (e Enrichment) CacheTTL() time.Duration {
	return time.Duration(e.CacheTTLMinutes) * time.Minute
}
