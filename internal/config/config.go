package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the ScholarSource backend. Both the API
// server and the worker load the same config; each uses the sections it needs.
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Cache       CacheConfig
	Pipeline    PipelineConfig
	Fingerprint FingerprintConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MigrationsDir   string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

// CacheConfig sets the TTL, in days, for each cache tier. Course analysis
// (textbook extraction, topics) changes less frequently than the discovered
// resources, so it defaults to a much longer lifetime.
type CacheConfig struct {
	AnalysisTTLDays int
	FullTTLDays     int
}

// AnalysisTTL returns the analysis-tier TTL as a duration.
func (c CacheConfig) AnalysisTTL() time.Duration {
	return time.Duration(c.AnalysisTTLDays) * 24 * time.Hour
}

// FullTTL returns the full-tier TTL as a duration.
func (c CacheConfig) FullTTL() time.Duration {
	return time.Duration(c.FullTTLDays) * 24 * time.Hour
}

type PipelineConfig struct {
	BaseURL string
	Timeout time.Duration
}

// FingerprintConfig points at the versioned pipeline configuration artifacts
// whose content hash drives cache invalidation.
type FingerprintConfig struct {
	ConfigDir string
}

// Load reads configuration from environment variables and returns a validated
// Config. Returns an error with a descriptive message if any required value
// is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("SCHOLARSOURCE_PORT", 8080),
			Env:  envString("SCHOLARSOURCE_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MigrationsDir:   envString("MIGRATIONS_DIR", "migrations"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Cache: CacheConfig{
			AnalysisTTLDays: envInt("COURSE_ANALYSIS_TTL_DAYS", 30),
			FullTTLDays:     envInt("RESOURCE_RESULTS_TTL_DAYS", 7),
		},
		Pipeline: PipelineConfig{
			BaseURL: os.Getenv("PIPELINE_BASE_URL"),
			Timeout: envDuration("PIPELINE_TIMEOUT", 30*time.Minute),
		},
		Fingerprint: FingerprintConfig{
			ConfigDir: envString("PIPELINE_CONFIG_DIR", "config"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Pipeline.BaseURL == "" {
		return fmt.Errorf("PIPELINE_BASE_URL is required")
	}
	if !strings.HasPrefix(c.Pipeline.BaseURL, "http://") && !strings.HasPrefix(c.Pipeline.BaseURL, "https://") {
		return fmt.Errorf("PIPELINE_BASE_URL must start with http:// or https://, got %q", c.Pipeline.BaseURL)
	}

	if c.Cache.AnalysisTTLDays <= 0 {
		return fmt.Errorf("COURSE_ANALYSIS_TTL_DAYS must be positive, got %d", c.Cache.AnalysisTTLDays)
	}
	if c.Cache.FullTTLDays <= 0 {
		return fmt.Errorf("RESOURCE_RESULTS_TTL_DAYS must be positive, got %d", c.Cache.FullTTLDays)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
