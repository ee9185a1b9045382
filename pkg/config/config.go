// Package config loads process configuration from the environment,
// following the teacher's convention of a single Load() entry point
// backed by godotenv for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the root application configuration tree.
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Auth          AuthConfig
	Profiling     ProfilingConfig
	Observability ObservabilityConfig
	Import        ImportConfig
}

// ServerConfig controls the HTTP listener and its edge backpressure.
type ServerConfig struct {
	Host               string
	Port               int
	RateLimitPerSecond int
	RateLimitBurst     int
}

// DatabaseConfig controls the storage backend connection and pool sizing.
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// DSN builds the Postgres connection string from the discrete fields.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

// AuthConfig controls token signing.
type AuthConfig struct {
	JWTSecret string
}

// ProfilingConfig controls the optional pprof debug server.
type ProfilingConfig struct {
	Enabled bool
	Port    int
}

// ObservabilityConfig controls metrics export.
type ObservabilityConfig struct {
	MetricsEnabled bool
}

// ImportConfig controls the import & ledger pipeline's resource limits.
type ImportConfig struct {
	MaxFileSizeBytes              int64
	MaxCommitRows                 int
	PDFExtractTimeoutSeconds      int
	DefaultRequestDeadlineSeconds int
}

const (
	defaultMaxFileSizeBytes  = 12 << 20 // 12 MiB, §6
	defaultMaxCommitRows     = 5000     // §6
	defaultPDFExtractTimeout = 12       // seconds, matches document.extractionTimeout
	defaultRequestDeadline   = 30
	defaultMaxConns          = 25
	defaultMinConns          = 5
	defaultMaxConnLifetime    = 5 * time.Minute
	defaultMaxConnIdleTime    = 10 * time.Minute
	defaultRateLimitPerSecond = 50
	defaultBurst              = 100
)

// Load reads configuration from the environment, loading a .env file first
// when present (local development convenience; absence is not fatal).
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slogWarnMissingEnvFile()
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:               getEnv("SERVER_HOST", "0.0.0.0"),
			Port:               getEnvInt("SERVER_PORT", 8080),
			RateLimitPerSecond: getEnvInt("SERVER_RATE_LIMIT_PER_SECOND", defaultRateLimitPerSecond),
			RateLimitBurst:     getEnvInt("SERVER_RATE_LIMIT_BURST", defaultBurst),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", ""),
			Name:            getEnv("DB_NAME", "finledger"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxConns:        int32(getEnvInt("DB_MAX_CONNS", defaultMaxConns)),
			MinConns:        int32(getEnvInt("DB_MIN_CONNS", defaultMinConns)),
			MaxConnLifetime: getEnvDuration("DB_MAX_CONN_LIFETIME", defaultMaxConnLifetime),
			MaxConnIdleTime: getEnvDuration("DB_MAX_CONN_IDLE_TIME", defaultMaxConnIdleTime),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
		},
		Profiling: ProfilingConfig{
			Enabled: getEnvBool("PROFILING_ENABLED", false),
			Port:    getEnvInt("PROFILING_PORT", 6060),
		},
		Observability: ObservabilityConfig{
			MetricsEnabled: getEnvBool("METRICS_ENABLED", true),
		},
		Import: ImportConfig{
			MaxFileSizeBytes:              getEnvInt64("IMPORT_MAX_FILE_SIZE_BYTES", defaultMaxFileSizeBytes),
			MaxCommitRows:                 getEnvInt("IMPORT_MAX_COMMIT_ROWS", defaultMaxCommitRows),
			PDFExtractTimeoutSeconds:      getEnvInt("IMPORT_PDF_EXTRACT_TIMEOUT_SECONDS", defaultPDFExtractTimeout),
			DefaultRequestDeadlineSeconds: getEnvInt("IMPORT_DEFAULT_REQUEST_DEADLINE_SECONDS", defaultRequestDeadline),
		},
	}

	if cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	return cfg, nil
}

func slogWarnMissingEnvFile() {
	// .env is a local-dev convenience; its absence in production is normal.
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}
