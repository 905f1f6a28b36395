package app

import (
	"errors"
	"fmt"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	RoundPath string // hcl round files

	LogFormat       string
	LogLevel        string
	HealthcheckPort int
	WorkerCount     int
	// MaxRounds bounds how often a round that went stale is resubmitted.
	MaxRounds int

	PublishURL       string
	PublishNamespace string
}

// NewConfig validates cfg and returns a copy of it.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.RoundPath == "" {
		return nil, errors.New("RoundPath is a required configuration field and cannot be empty")
	}
	if cfg.WorkerCount < 1 {
		return nil, fmt.Errorf("WorkerCount must be at least 1, got %d", cfg.WorkerCount)
	}
	if cfg.MaxRounds < 1 {
		return nil, fmt.Errorf("MaxRounds must be at least 1, got %d", cfg.MaxRounds)
	}
	if cfg.HealthcheckPort < 0 {
		return nil, fmt.Errorf("HealthcheckPort cannot be negative, got %d", cfg.HealthcheckPort)
	}
	if cfg.PublishNamespace != "" && cfg.PublishURL == "" {
		return nil, errors.New("PublishNamespace requires PublishURL")
	}
	return &cfg, nil
}
