package app

import (
	"errors"
	"fmt"

	"github.com/specialistvlad/asegrid/internal/artifact"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	// JobPaths are job files or directories searched for job files.
	JobPaths []string
	// WorkDir is where attempts are staged and run.
	WorkDir string

	LogFormat       string
	LogLevel        string
	HealthcheckPort int
	WorkerCount     int
	// MaxAttempts caps every job's own limit when positive.
	MaxAttempts int

	// Archive, when set, receives a copy of every attempt's retrieved files.
	Archive *artifact.BucketConfig
}

func NewConfig(cfg Config) (*Config, error) {
	if len(cfg.JobPaths) == 0 {
		return nil, errors.New("at least one job path is required")
	}
	if cfg.WorkerCount < 1 {
		return nil, fmt.Errorf("worker count must be positive, got %d", cfg.WorkerCount)
	}
	if cfg.MaxAttempts < 0 {
		return nil, fmt.Errorf("max attempts must not be negative, got %d", cfg.MaxAttempts)
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = "runs"
	}
	if _, err := ParseLevel(cfg.LogLevel); err != nil {
		return nil, err
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return nil, fmt.Errorf("invalid log format %q: must be 'text' or 'json'", cfg.LogFormat)
	}
	return &cfg, nil
}
