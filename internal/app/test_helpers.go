package app

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vk/flowloop/internal/config"
	"github.com/vk/flowloop/internal/hcl"
	"github.com/vk/flowloop/internal/registry"
	"github.com/vk/flowloop/internal/testutil"
)

// TestConfig returns a valid configuration with debug logging.
func TestConfig(workflowPath string) *Config {
	settings := config.Defaults()
	settings.LogLevel = "debug"
	settings.Listen = "127.0.0.1:0"
	return &Config{Settings: settings, WorkflowPath: workflowPath}
}

// SetupAppTest creates a new app instance for system testing. It returns the
// app and the buffer receiving its results. Logs are printed when
// FLOWLOOP_TEST_LOGS is "true".
func SetupAppTest(t *testing.T, cfg *Config, modules ...registry.Module) (*App, *testutil.SafeBuffer) {
	t.Helper()

	out := &testutil.SafeBuffer{}
	logs := &testutil.SafeBuffer{}
	testApp := NewApp(out, logs, cfg, hcl.NewLoader(), modules...)

	t.Cleanup(func() {
		if os.Getenv("FLOWLOOP_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logs.String())
		}
	})

	return testApp, out
}

// RunOnce runs cfg's workflow for a single cycle and decodes the printed report.
func RunOnce(t *testing.T, cfg *Config, modules ...registry.Module) Report {
	t.Helper()
	cfg.Once = true
	a, out := SetupAppTest(t, cfg, modules...)

	require.NoError(t, a.Run(context.Background()))
	var report Report
	require.NoError(t, json.Unmarshal([]byte(out.String()), &report), "output: %s", out.String())
	return report
}
