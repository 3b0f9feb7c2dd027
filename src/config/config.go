// Package config provides configuration management for the guardian engine.
// All settings come from environment variables; error-signal patterns may
// additionally be loaded from a YAML file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Defaults for tunable thresholds. The policy thresholds are deliberately
// configuration, not constants: different installations tune them.
const (
	DefaultMaxRetries       = 2
	DefaultAutofixThreshold = 0.75
	DefaultSuggestThreshold = 0.3

	DefaultLeaseTTL      = 5 * time.Minute
	DefaultEventDeadline = 2 * time.Minute
	DefaultFetchTimeout  = 30 * time.Second
	DefaultInferTimeout  = 45 * time.Second

	DefaultLogTailBytes   = 64 * 1024
	DefaultMaxExcerpts    = 5
	DefaultExcerptPre     = 15
	DefaultExcerptPost    = 30
	DefaultWorkers        = 4
	DefaultGitLabBaseURL  = "https://gitlab.com"
	DefaultInferModel     = "gemini-2.0-flash"
)

// Config holds the application configuration.
type Config struct {
	// GitLab platform access.
	GitLabBaseURL string
	GitLabToken   string

	// Text-understanding capability. Empty endpoint disables the remote
	// classifier and the engine falls back to keyword heuristics.
	InferEndpoint string
	InferAPIKey   string
	InferModel    string

	// Decision policy tunables.
	MaxRetries       int
	AutofixThreshold float64
	SuggestThreshold float64

	// Deadlines and lease lifetime.
	LeaseTTL      time.Duration
	EventDeadline time.Duration
	FetchTimeout  time.Duration
	InferTimeout  time.Duration

	// Log normalization bounds.
	LogTailBytes int
	MaxExcerpts  int
	ExcerptPre   int
	ExcerptPost  int

	// Error-signal patterns for excerpt segmentation.
	Signals []Signal

	// Engine concurrency.
	Workers int

	// Optional backends. Empty values select the in-memory implementations.
	DatabaseURL     string
	RedpandaBrokers []string
}

// Load reads configuration from environment variables, applying defaults
// and validating ranges.
func Load() (*Config, error) {
	cfg := &Config{
		GitLabBaseURL:    getEnv("GITLAB_BASE_URL", DefaultGitLabBaseURL),
		GitLabToken:      os.Getenv("GITLAB_ACCESS_TOKEN"),
		InferEndpoint:    os.Getenv("INFER_ENDPOINT"),
		InferAPIKey:      os.Getenv("INFER_API_KEY"),
		InferModel:       getEnv("INFER_MODEL", DefaultInferModel),
		MaxRetries:       DefaultMaxRetries,
		AutofixThreshold: DefaultAutofixThreshold,
		SuggestThreshold: DefaultSuggestThreshold,
		LeaseTTL:         DefaultLeaseTTL,
		EventDeadline:    DefaultEventDeadline,
		FetchTimeout:     DefaultFetchTimeout,
		InferTimeout:     DefaultInferTimeout,
		LogTailBytes:     DefaultLogTailBytes,
		MaxExcerpts:      DefaultMaxExcerpts,
		ExcerptPre:       DefaultExcerptPre,
		ExcerptPost:      DefaultExcerptPost,
		Workers:          DefaultWorkers,
		DatabaseURL:      os.Getenv("DATABASE_URL"),
	}

	var err error
	if cfg.MaxRetries, err = getEnvInt("GUARDIAN_MAX_RETRIES", cfg.MaxRetries); err != nil {
		return nil, err
	}
	if cfg.AutofixThreshold, err = getEnvFloat("GUARDIAN_AUTOFIX_THRESHOLD", cfg.AutofixThreshold); err != nil {
		return nil, err
	}
	if cfg.SuggestThreshold, err = getEnvFloat("GUARDIAN_SUGGEST_THRESHOLD", cfg.SuggestThreshold); err != nil {
		return nil, err
	}
	if cfg.LeaseTTL, err = getEnvDuration("GUARDIAN_LEASE_TTL", cfg.LeaseTTL); err != nil {
		return nil, err
	}
	if cfg.EventDeadline, err = getEnvDuration("GUARDIAN_EVENT_DEADLINE", cfg.EventDeadline); err != nil {
		return nil, err
	}
	if cfg.FetchTimeout, err = getEnvDuration("GUARDIAN_FETCH_TIMEOUT", cfg.FetchTimeout); err != nil {
		return nil, err
	}
	if cfg.InferTimeout, err = getEnvDuration("GUARDIAN_INFER_TIMEOUT", cfg.InferTimeout); err != nil {
		return nil, err
	}
	if cfg.LogTailBytes, err = getEnvInt("GUARDIAN_LOG_TAIL_BYTES", cfg.LogTailBytes); err != nil {
		return nil, err
	}
	if cfg.MaxExcerpts, err = getEnvInt("GUARDIAN_MAX_EXCERPTS", cfg.MaxExcerpts); err != nil {
		return nil, err
	}
	if cfg.Workers, err = getEnvInt("GUARDIAN_WORKERS", cfg.Workers); err != nil {
		return nil, err
	}

	if brokers := os.Getenv("REDPANDA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.RedpandaBrokers = append(cfg.RedpandaBrokers, b)
			}
		}
	}

	// Signal patterns: built-in defaults, replaced by a patterns file when set.
	cfg.Signals = DefaultSignals()
	if path := os.Getenv("GUARDIAN_PATTERNS_FILE"); path != "" {
		signals, err := LoadSignals(path)
		if err != nil {
			return nil, fmt.Errorf("loading patterns file: %w", err)
		}
		cfg.Signals = signals
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.AutofixThreshold < 0 || c.AutofixThreshold > 1 {
		return fmt.Errorf("GUARDIAN_AUTOFIX_THRESHOLD must be within [0,1], got %v", c.AutofixThreshold)
	}
	if c.SuggestThreshold < 0 || c.SuggestThreshold > 1 {
		return fmt.Errorf("GUARDIAN_SUGGEST_THRESHOLD must be within [0,1], got %v", c.SuggestThreshold)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("GUARDIAN_MAX_RETRIES must be >= 0, got %d", c.MaxRetries)
	}
	if c.LogTailBytes <= 0 {
		return fmt.Errorf("GUARDIAN_LOG_TAIL_BYTES must be > 0, got %d", c.LogTailBytes)
	}
	if c.MaxExcerpts <= 0 {
		return fmt.Errorf("GUARDIAN_MAX_EXCERPTS must be > 0, got %d", c.MaxExcerpts)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("GUARDIAN_WORKERS must be > 0, got %d", c.Workers)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number, got %q", key, v)
	}
	return f, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration (e.g. 5m), got %q", key, v)
	}
	return d, nil
}
