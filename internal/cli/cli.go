package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/vk/flowloop/internal/app"
	"github.com/vk/flowloop/internal/config"
	"github.com/vk/flowloop/internal/hcl"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

func usageError(format string, args ...any) *ExitError {
	return &ExitError{Code: 2, Message: fmt.Sprintf(format, args...)}
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
//
// Settings are layered: built-in defaults, then the --config file, then
// FLOWLOOP_* environment variables (optionally read from --env-file), then
// explicitly passed flags.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("flowloop", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
flowloop - runs node workflows once or continuously and streams their state.

Usage:
  flowloop [options] [WORKFLOW]

Arguments:
  WORKFLOW
    A .json editor document, a single .hcl file or a directory of .hcl files.
    Without one the server starts idle and workflows are posted over HTTP.

Options:
`)
		flagSet.PrintDefaults()
	}

	workflowFlag := flagSet.String("workflow", "", "Path to the workflow file or directory.")
	wFlag := flagSet.String("w", "", "Path to the workflow file or directory (shorthand).")
	configFlag := flagSet.String("config", "", "Path to an HCL settings file.")
	envFileFlag := flagSet.String("env-file", ".env", "File of FLOWLOOP_* variables to load if present.")
	onceFlag := flagSet.Bool("once", false, "Run a single cycle, print the results as JSON and exit.")
	cyclesFlag := flagSet.Int64("cycles", 0, "Stop after this many continuous cycles. 0 runs until interrupted.")

	defaults := config.Defaults()
	listenFlag := flagSet.String("listen", defaults.Listen, "HTTP listen address.")
	originsFlag := flagSet.String("allowed-origins", "", "Comma-separated browser origins allowed to connect. Empty allows any.")
	intervalFlag := flagSet.String("interval", defaults.Interval.String(), "Pause between cycles, as a duration or seconds.")
	timeoutFlag := flagSet.String("node-timeout", defaults.NodeTimeout.String(), "Per-node execution timeout, as a duration or seconds.")
	queueFlag := flagSet.Int("queue-size", defaults.QueueSize, "Per-observer event queue size.")
	logLevelFlag := flagSet.String("log-level", defaults.LogLevel, "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	logFormatFlag := flagSet.String("log-format", defaults.LogFormat, "Log output format. Options: 'text' or 'json'.")
	natsURLFlag := flagSet.String("nats-url", "", "NATS server to mirror events to. Empty disables the bridge.")
	natsSubjectFlag := flagSet.String("nats-subject", defaults.NATSSubject, "Subject prefix for the NATS bridge.")
	otlpFlag := flagSet.String("otlp-endpoint", "", "OTLP/HTTP endpoint for traces. Empty disables tracing.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	visited := make(map[string]bool)
	flagSet.Visit(func(f *flag.Flag) { visited[f.Name] = true })

	if err := loadEnvFile(*envFileFlag, visited["env-file"]); err != nil {
		return nil, false, usageError("failed to load env file: %v", err)
	}

	settings := config.Defaults()
	if *configFlag != "" {
		fileSettings, err := hcl.NewLoader().LoadSettings(context.Background(), *configFlag)
		if err != nil {
			return nil, false, usageError("%v", err)
		}
		settings = settings.Merge(*fileSettings)
	}

	envSettings, err := config.FromEnv(os.LookupEnv)
	if err != nil {
		return nil, false, usageError("%v", err)
	}
	settings = settings.Merge(envSettings)

	var flagSettings config.Settings
	var errs []error
	if visited["listen"] {
		flagSettings.Listen = *listenFlag
	}
	if visited["allowed-origins"] {
		for _, origin := range strings.Split(*originsFlag, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				flagSettings.AllowedOrigins = append(flagSettings.AllowedOrigins, origin)
			}
		}
	}
	if visited["interval"] {
		if flagSettings.Interval, err = config.ParseDuration(*intervalFlag); err != nil {
			errs = append(errs, fmt.Errorf("--interval: %w", err))
		} else if flagSettings.Interval <= 0 {
			errs = append(errs, errors.New("--interval must be positive"))
		}
	}
	if visited["node-timeout"] {
		if flagSettings.NodeTimeout, err = config.ParseDuration(*timeoutFlag); err != nil {
			errs = append(errs, fmt.Errorf("--node-timeout: %w", err))
		} else if flagSettings.NodeTimeout <= 0 {
			errs = append(errs, errors.New("--node-timeout must be positive"))
		}
	}
	if visited["queue-size"] {
		if *queueFlag <= 0 {
			errs = append(errs, errors.New("--queue-size must be positive"))
		}
		flagSettings.QueueSize = *queueFlag
	}
	if visited["log-level"] {
		flagSettings.LogLevel = strings.ToLower(*logLevelFlag)
	}
	if visited["log-format"] {
		flagSettings.LogFormat = strings.ToLower(*logFormatFlag)
	}
	if visited["nats-url"] {
		flagSettings.NATSURL = *natsURLFlag
	}
	if visited["nats-subject"] {
		flagSettings.NATSSubject = *natsSubjectFlag
	}
	if visited["otlp-endpoint"] {
		flagSettings.OTLPEndpoint = *otlpFlag
	}
	if err := errors.Join(errs...); err != nil {
		return nil, false, usageError("%v", err)
	}
	settings = settings.Merge(flagSettings)

	path := ""
	if *workflowFlag != "" {
		path = *workflowFlag
	} else if *wFlag != "" {
		path = *wFlag
	} else if flagSet.NArg() > 0 {
		path = flagSet.Arg(0)
	}
	slog.Debug("Workflow path determined.", "path", path)

	cfg, err := app.NewConfig(app.Config{
		Settings:     settings,
		WorkflowPath: path,
		Once:         *onceFlag,
		MaxCycles:    *cyclesFlag,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "config", cfg)
	return cfg, false, nil
}

// loadEnvFile reads path into the process environment without overriding
// variables that are already set. A missing file is only an error when the
// path was given explicitly.
func loadEnvFile(path string, explicit bool) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) && !explicit {
		return nil
	}
	return godotenv.Load(path)
}
