package app

import (
	"context"
	"io"
	"log/slog"

	"github.com/vk/flowloop/internal/config"
	"github.com/vk/flowloop/internal/ctxlog"
	"github.com/vk/flowloop/internal/registry"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	config   *Config
	loader   config.Loader
	registry *registry.Registry
}

// NewApp is the constructor for the main application. Results go to outW and
// logs to logW. With no modules the core catalog is registered.
func NewApp(outW, logW io.Writer, cfg *Config, loader config.Loader, modules ...registry.Module) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, logW)
	logger.Debug("Logger configured successfully.")

	reg := registry.New()
	if len(modules) == 0 {
		modules = coreModules
	}
	reg.RegisterModules(modules...)
	for _, def := range reg.Definitions() {
		logger.Debug("Registered node type.", "type", def.Type, "kind", def.Kind, "aliases", def.Aliases)
	}
	logger.Debug("All Go modules registered.", "modules", len(modules), "node_types", reg.Len())

	return &App{
		outW:     outW,
		logger:   logger,
		config:   cfg,
		loader:   loader,
		registry: reg,
	}
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

func (a *App) context(ctx context.Context) context.Context {
	return ctxlog.WithLogger(ctx, a.logger)
}
