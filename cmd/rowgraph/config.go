package main

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/23skdu/rowgraph/internal/cost"
	"github.com/23skdu/rowgraph/internal/limiter"
	"github.com/23skdu/rowgraph/internal/resilience"
	"github.com/23skdu/rowgraph/internal/stats"
	"github.com/23skdu/rowgraph/internal/telemetry"
	"github.com/23skdu/rowgraph/internal/traverse"
)

// EnvPrefix prefixes every environment variable read by rowgraph.
const EnvPrefix = "ROWGRAPH"

// Config validation errors
var (
	ErrInvalidListenAddr        = errors.New("listen_addr cannot be empty")
	ErrInvalidMetricsAddr       = errors.New("metrics_addr cannot be empty")
	ErrInvalidLogFormat         = errors.New("log_format must be 'json' or 'console'")
	ErrInvalidLogLevel          = errors.New("log_level must be debug, info, warn, or error")
	ErrInvalidPlanCacheCapacity = errors.New("plan_cache_capacity must be positive")
	ErrInvalidPlanCacheTTL      = errors.New("plan_cache_ttl must be positive")
	ErrInvalidStatsRefresh      = errors.New("stats_refresh_interval cannot be negative")
	ErrInvalidDefaultTimeout    = errors.New("default_timeout cannot be negative")
	ErrInvalidBreakerThreshold  = errors.New("breaker_threshold must be positive")
	ErrInvalidSampleLimits       = errors.New("stats sample limits must be positive")
	ErrInvalidSampleRatio       = errors.New("trace_sample_ratio must be between 0 and 1")
	ErrInvalidParquetTable      = errors.New("parquet_table must be a plain identifier")
	ErrInvalidRetryPolicy       = errors.New("source retry attempts must be at least 1 and delays non-negative")
)

// Config is the process configuration. Component configs carry their own
// envconfig tags and are read under the same prefix.
type Config struct {
	ListenAddr  string `envconfig:"LISTEN_ADDR" default:"0.0.0.0:3000"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:"0.0.0.0:9090"`

	// DuckDBDSN selects the database; empty is an in-memory database.
	DuckDBDSN string `envconfig:"DUCKDB_DSN"`
	// EdgesParquet, when set, loads a Parquet edge file into an in-memory
	// source instead of querying DuckDB.
	EdgesParquet string `envconfig:"EDGES_PARQUET"`
	ParquetTable string `envconfig:"PARQUET_TABLE" default:"edges"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	PlanCacheCapacity    int           `envconfig:"PLAN_CACHE_CAPACITY" default:"1024"`
	PlanCacheTTL         time.Duration `envconfig:"PLAN_CACHE_TTL" default:"10m"`
	StatsRefreshInterval time.Duration `envconfig:"STATS_REFRESH_INTERVAL" default:"5m"`
	StatsCollectTimeout  time.Duration `envconfig:"STATS_COLLECT_TIMEOUT" default:"30s"`
	DefaultTimeout       time.Duration `envconfig:"DEFAULT_TIMEOUT" default:"30s"`

	BreakerThreshold uint32        `envconfig:"BREAKER_THRESHOLD" default:"5"`
	BreakerTimeout   time.Duration `envconfig:"BREAKER_TIMEOUT" default:"30s"`
	HealthTimeout    time.Duration `envconfig:"HEALTH_TIMEOUT" default:"5s"`

	Sample    stats.SampleConfig     `ignored:"true"`
	Traversal traverse.Config        `ignored:"true"`
	Cost      cost.Constants         `ignored:"true"`
	RateLimit limiter.Config         `ignored:"true"`
	Tracing   telemetry.Config       `ignored:"true"`
	Retry     resilience.RetryPolicy `ignored:"true"`
}

// LoadConfig reads an optional dotenv file and then the environment. A
// missing dotenv file is not an error.
func LoadConfig(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	var cfg Config
	for _, spec := range []interface{}{&cfg, &cfg.Sample, &cfg.Traversal, &cfg.Cost, &cfg.RateLimit, &cfg.Tracing, &cfg.Retry} {
		if err := envconfig.Process(EnvPrefix, spec); err != nil {
			return Config{}, fmt.Errorf("failed to process config: %w", err)
		}
	}
	return cfg, nil
}

// ValidateConfig validates the configuration and returns an error if invalid
func ValidateConfig(cfg *Config) error {
	if cfg.ListenAddr == "" {
		return ErrInvalidListenAddr
	}
	if cfg.MetricsAddr == "" {
		return ErrInvalidMetricsAddr
	}
	if cfg.LogFormat != "json" && cfg.LogFormat != "console" {
		return ErrInvalidLogFormat
	}
	if cfg.LogLevel != "debug" && cfg.LogLevel != "info" && cfg.LogLevel != "warn" && cfg.LogLevel != "error" {
		return ErrInvalidLogLevel
	}
	if cfg.PlanCacheCapacity <= 0 {
		return ErrInvalidPlanCacheCapacity
	}
	if cfg.PlanCacheTTL <= 0 {
		return ErrInvalidPlanCacheTTL
	}
	if cfg.StatsRefreshInterval < 0 {
		return ErrInvalidStatsRefresh
	}
	if cfg.DefaultTimeout < 0 {
		return ErrInvalidDefaultTimeout
	}
	if cfg.BreakerThreshold == 0 {
		return ErrInvalidBreakerThreshold
	}
	if cfg.Sample.MaxRoots <= 0 || cfg.Sample.MaxDepth <= 0 || cfg.Sample.MaxNodes <= 0 {
		return ErrInvalidSampleLimits
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
		return ErrInvalidSampleRatio
	}
	if cfg.Retry.MaxAttempts < 1 || cfg.Retry.InitialDelay < 0 || cfg.Retry.MaxDelay < 0 {
		return ErrInvalidRetryPolicy
	}
	if cfg.EdgesParquet != "" {
		if err := parquetRelationship(cfg).Validate(); err != nil {
			return ErrInvalidParquetTable
		}
	}
	return nil
}

// DefaultConfig returns a Config with default values
func DefaultConfig() Config {
	return Config{
		ListenAddr:           "0.0.0.0:3000",
		MetricsAddr:          "0.0.0.0:9090",
		ParquetTable:         "edges",
		LogFormat:            "json",
		LogLevel:             "info",
		PlanCacheCapacity:    1024,
		PlanCacheTTL:         10 * time.Minute,
		StatsRefreshInterval: 5 * time.Minute,
		StatsCollectTimeout:  30 * time.Second,
		DefaultTimeout:       30 * time.Second,
		BreakerThreshold:     5,
		BreakerTimeout:       30 * time.Second,
		HealthTimeout:        5 * time.Second,
		Sample:               stats.DefaultSampleConfig(),
		Cost:                 cost.DefaultConstants(),
		Tracing: telemetry.Config{
			ServiceName:    "rowgraph",
			ServiceVersion: "dev",
			SampleRatio:    1.0,
		},
		Retry: resilience.DefaultRetryPolicy(),
	}
}
