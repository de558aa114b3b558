package integration_tests

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/vk/flowloop/internal/app"
	"github.com/vk/flowloop/internal/testutil"
)

// Test for: A node that overruns its timeout fails without failing the cycle.
func TestErrorHandling_NodeTimeout(t *testing.T) {
	path := writeGraph(t, "main.hcl", `
		node "sleeper" "slow" { input = "late" }
		node "output" "sink" { input = node.slow }
		node "input" "independent" { value = "on time" }
	`)
	cfg := app.TestConfig(path)
	cfg.NodeTimeout = 50 * time.Millisecond

	start := time.Now()
	report := app.RunOnce(t, cfg, testutil.NewMockSleeperModule(nil, 5*time.Second), &basicModule)

	assert.Less(t, time.Since(start), 4*time.Second, "the cycle waited for the abandoned node")
	assert.False(t, report.Success)
	assert.Contains(t, report.Errors["slow"], "timed out")
	assert.Equal(t, "on time", report.Results["independent"]["output"])
	assert.Contains(t, report.Results, "sink", "dependents still run")
	assert.Nil(t, report.Results["sink"]["output"])
}
