package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vk/flowloop/internal/model"
)

// Loader is the interface for a format-specific loader.
type Loader interface {
	// LoadWorkflow reads a workflow from a file or directory.
	LoadWorkflow(ctx context.Context, path string) (*model.Workflow, error)
	// LoadSettings reads a settings file.
	LoadSettings(ctx context.Context, path string) (*Settings, error)
}

// Settings are the tunables shared by the server and the engine. A zero
// field means "not set" for the purposes of Merge.
type Settings struct {
	Listen         string
	AllowedOrigins []string

	Interval    time.Duration
	NodeTimeout time.Duration
	QueueSize   int

	LogLevel  string
	LogFormat string

	NATSURL      string
	NATSSubject  string
	OTLPEndpoint string
}

// Defaults returns the built-in settings.
func Defaults() Settings {
	return Settings{
		Listen:      ":8000",
		Interval:    model.DefaultInterval,
		NodeTimeout: 5 * time.Second,
		QueueSize:   256,
		LogLevel:    "info",
		LogFormat:   "text",
		NATSSubject: "flowloop",
	}
}

// Merge returns s with every field that is set in o overridden.
func (s Settings) Merge(o Settings) Settings {
	if o.Listen != "" {
		s.Listen = o.Listen
	}
	if len(o.AllowedOrigins) > 0 {
		s.AllowedOrigins = o.AllowedOrigins
	}
	if o.Interval != 0 {
		s.Interval = o.Interval
	}
	if o.NodeTimeout != 0 {
		s.NodeTimeout = o.NodeTimeout
	}
	if o.QueueSize != 0 {
		s.QueueSize = o.QueueSize
	}
	if o.LogLevel != "" {
		s.LogLevel = o.LogLevel
	}
	if o.LogFormat != "" {
		s.LogFormat = o.LogFormat
	}
	if o.NATSURL != "" {
		s.NATSURL = o.NATSURL
	}
	if o.NATSSubject != "" {
		s.NATSSubject = o.NATSSubject
	}
	if o.OTLPEndpoint != "" {
		s.OTLPEndpoint = o.OTLPEndpoint
	}
	return s
}

// Validate reports every invalid field at once.
func (s Settings) Validate() error {
	var errs []error
	if s.Interval <= 0 {
		errs = append(errs, fmt.Errorf("interval must be positive, got %s", s.Interval))
	}
	if s.NodeTimeout <= 0 {
		errs = append(errs, fmt.Errorf("node timeout must be positive, got %s", s.NodeTimeout))
	}
	if s.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("queue size must be positive, got %d", s.QueueSize))
	}
	switch s.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, errors.New("invalid log-level: must be 'debug', 'info', 'warn', or 'error'"))
	}
	switch s.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, errors.New("invalid log-format: must be 'text' or 'json'"))
	}
	return errors.Join(errs...)
}
