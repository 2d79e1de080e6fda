// Package config loads runtime configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the runtime settings for the fathom service. Empirical
// bounds (tool iteration limit, sample-row cap, schema cache TTL) are
// defaults here, not constants buried in the packages that use them.
type Config struct {
	// HTTP server
	Host string
	Port int

	// Turn orchestration
	MaxToolIterations int

	// Tool results
	SampleRowLimit int

	// Schema cache
	SchemaCacheTTL time.Duration

	// Transcript persistence. When disabled, runs use an in-memory store.
	PersistenceEnabled bool
	TranscriptDir      string

	// Upstream endpoints
	CatalogBaseURL  string
	WorkflowBaseURL string
}

// Load reads configuration from environment variables, applying defaults
// for everything unset.
func Load() (Config, error) {
	port, err := intEnv("FATHOM_PORT", 8000)
	if err != nil {
		return Config{}, err
	}
	maxIterations, err := intEnv("FATHOM_MAX_TOOL_ITERATIONS", 4)
	if err != nil {
		return Config{}, err
	}
	sampleLimit, err := intEnv("FATHOM_SAMPLE_ROW_LIMIT", 10)
	if err != nil {
		return Config{}, err
	}
	cacheTTL, err := durationEnv("FATHOM_SCHEMA_CACHE_TTL", 10*time.Minute)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Host:               envOrDefault("FATHOM_HOST", "0.0.0.0"),
		Port:               port,
		MaxToolIterations:  maxIterations,
		SampleRowLimit:     sampleLimit,
		SchemaCacheTTL:     cacheTTL,
		PersistenceEnabled: envOrDefault("FATHOM_PERSISTENCE", "true") == "true",
		TranscriptDir:      envOrDefault("FATHOM_TRANSCRIPT_DIR", "data/transcripts"),
		CatalogBaseURL:     os.Getenv("HONEYCOMB_BASE_URL"),
		WorkflowBaseURL:    os.Getenv("WORKFLOW_BASE_URL"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects out-of-range values.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.MaxToolIterations <= 0 {
		return fmt.Errorf("MaxToolIterations must be positive, got %d", c.MaxToolIterations)
	}
	if c.SampleRowLimit <= 0 {
		return fmt.Errorf("SampleRowLimit must be positive, got %d", c.SampleRowLimit)
	}
	if c.SchemaCacheTTL <= 0 {
		return fmt.Errorf("SchemaCacheTTL must be positive, got %s", c.SchemaCacheTTL)
	}
	return nil
}

func envOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func intEnv(key string, defaultVal int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultVal, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return val, nil
}

func durationEnv(key string, defaultVal time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultVal, nil
	}
	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return val, nil
}
