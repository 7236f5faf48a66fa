// Package config reads service settings from the environment and loads the
// optional layer seed file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr    string
	LogLevel    string
	DatabaseURL string

	Neo4jURI      string
	Neo4jUsername string
	Neo4jPassword string
	Neo4jDatabase string

	FetchTimeout    time.Duration
	CatalogRetries  int
	CatalogCacheTTL time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SQLitePath    string

	// UpdateRate is the number of update/refresh requests per second the
	// HTTP API accepts; zero disables throttling.
	UpdateRate  float64
	UpdateBurst int

	// RefreshInterval re-runs every layer's queries in the background; zero
	// disables it.
	RefreshInterval time.Duration
	RefreshWorkers  int

	LayersFile string
}

// Load reads a .env file when present, then the process environment. Values
// already set in the environment win over the file.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function; an empty value means unset.
func FromEnv(getenv func(string) string) (Config, error) {
	r := reader{getenv: getenv}
	cfg := Config{
		HTTPAddr:    r.str("HTTP_ADDR", ":8081"),
		LogLevel:    r.str("LOG_LEVEL", "info"),
		DatabaseURL: r.str("DATABASE_URL", ""),

		Neo4jURI:      r.str("NEO4J_URI", ""),
		Neo4jUsername: r.str("NEO4J_USERNAME", "neo4j"),
		Neo4jPassword: r.str("NEO4J_PASSWORD", ""),
		Neo4jDatabase: r.str("NEO4J_DATABASE", ""),

		FetchTimeout:    r.duration("FETCH_TIMEOUT", 30*time.Second),
		CatalogRetries:  r.integer("CATALOG_RETRIES", 2),
		CatalogCacheTTL: r.duration("CATALOG_CACHE_TTL", 30*time.Second),

		RedisAddr:     r.str("REDIS_ADDR", ""),
		RedisPassword: r.str("REDIS_PASSWORD", ""),
		RedisDB:       r.integer("REDIS_DB", 0),
		SQLitePath:    r.str("SQLITE_PATH", ""),

		UpdateRate:  r.float("UPDATE_RATE", 5),
		UpdateBurst: r.integer("UPDATE_BURST", 10),

		RefreshInterval: r.duration("REFRESH_INTERVAL", 0),
		RefreshWorkers:  r.integer("REFRESH_WORKERS", 4),

		LayersFile: r.str("LAYERS_FILE", ""),
	}
	if err := errors.Join(r.errs...); err != nil {
		return Config{}, err
	}
	if cfg.CatalogRetries < 0 {
		return Config{}, fmt.Errorf("CATALOG_RETRIES must not be negative, got %d", cfg.CatalogRetries)
	}
	if cfg.FetchTimeout <= 0 {
		return Config{}, fmt.Errorf("FETCH_TIMEOUT must be positive, got %s", cfg.FetchTimeout)
	}
	if cfg.RefreshInterval < 0 {
		return Config{}, fmt.Errorf("REFRESH_INTERVAL must not be negative, got %s", cfg.RefreshInterval)
	}
	if cfg.UpdateRate > 0 && cfg.UpdateBurst < 1 {
		return Config{}, fmt.Errorf("UPDATE_BURST must be at least 1 when UPDATE_RATE is set")
	}
	return cfg, nil
}

type reader struct {
	getenv func(string) string
	errs   []error
}

func (r *reader) str(key, fallback string) string {
	v := strings.TrimSpace(r.getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func (r *reader) integer(key string, fallback int) int {
	v := r.str(key, "")
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: invalid integer %q", key, v))
		return fallback
	}
	return n
}

func (r *reader) float(key string, fallback float64) float64 {
	v := r.str(key, "")
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: invalid number %q", key, v))
		return fallback
	}
	return f
}

func (r *reader) duration(key string, fallback time.Duration) time.Duration {
	v := r.str(key, "")
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: invalid duration %q", key, v))
		return fallback
	}
	return d
}
