package hcl

import (
	"fmt"

	"github.com/vk/flowloop/internal/config"
	"github.com/vk/flowloop/internal/model"
)

// settingsFile is the structure of the settings file. Every block and
// attribute is optional.
type settingsFile struct {
	Server  *serverBlock  `hcl:"server,block"`
	Engine  *engineBlock  `hcl:"engine,block"`
	Log     *logBlock     `hcl:"log,block"`
	NATS    *natsBlock    `hcl:"nats,block"`
	Tracing *tracingBlock `hcl:"tracing,block"`
}

type serverBlock struct {
	Listen         *string  `hcl:"listen,optional"`
	AllowedOrigins []string `hcl:"allowed_origins,optional"`
}

type engineBlock struct {
	Interval    *float64 `hcl:"interval,optional"`
	NodeTimeout *float64 `hcl:"node_timeout,optional"`
	QueueSize   *int     `hcl:"queue_size,optional"`
}

type logBlock struct {
	Level  *string `hcl:"level,optional"`
	Format *string `hcl:"format,optional"`
}

type natsBlock struct {
	URL     *string `hcl:"url,optional"`
	Subject *string `hcl:"subject,optional"`
}

type tracingBlock struct {
	OTLPEndpoint *string `hcl:"otlp_endpoint,optional"`
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// settings translates the decoded file into the format-agnostic model.
func (f *settingsFile) settings() (*config.Settings, error) {
	s := &config.Settings{}
	if f.Server != nil {
		s.Listen = str(f.Server.Listen)
		s.AllowedOrigins = f.Server.AllowedOrigins
	}
	if e := f.Engine; e != nil {
		if e.Interval != nil {
			d, err := model.SecondsToDuration(*e.Interval)
			if err != nil {
				return nil, fmt.Errorf("engine.interval: %w", err)
			}
			s.Interval = d
		}
		if e.NodeTimeout != nil {
			d, err := model.SecondsToDuration(*e.NodeTimeout)
			if err != nil {
				return nil, fmt.Errorf("engine.node_timeout: %w", err)
			}
			s.NodeTimeout = d
		}
		if e.QueueSize != nil {
			if *e.QueueSize <= 0 {
				return nil, fmt.Errorf("engine.queue_size must be positive, got %d", *e.QueueSize)
			}
			s.QueueSize = *e.QueueSize
		}
	}
	if f.Log != nil {
		s.LogLevel = str(f.Log.Level)
		s.LogFormat = str(f.Log.Format)
	}
	if f.NATS != nil {
		s.NATSURL = str(f.NATS.URL)
		s.NATSSubject = str(f.NATS.Subject)
	}
	if f.Tracing != nil {
		s.OTLPEndpoint = str(f.Tracing.OTLPEndpoint)
	}
	return s, nil
}
