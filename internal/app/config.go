package app

import (
	"errors"

	"github.com/vk/flowloop/internal/config"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	config.Settings

	// WorkflowPath is a .json editor document, an .hcl file or a directory
	// of .hcl files. Empty starts the server with no workflow.
	WorkflowPath string
	// Once runs a single cycle, prints the results and exits.
	Once bool
	// MaxCycles ends a continuous run after that many cycles.
	MaxCycles int64
}

func NewConfig(cfg Config) (*Config, error) {
	var errs []error
	if err := cfg.Validate(); err != nil {
		errs = append(errs, err)
	}
	if cfg.Once && cfg.WorkflowPath == "" {
		errs = append(errs, errors.New("--once requires a workflow path"))
	}
	if cfg.MaxCycles < 0 {
		errs = append(errs, errors.New("cycles cannot be negative"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &cfg, nil
}
