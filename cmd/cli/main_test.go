package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_ShouldExit(t *testing.T) {
	t.Parallel()

	out := &bytes.Buffer{}
	err := run(context.Background(), out, &bytes.Buffer{}, []string{"-h"})

	require.NoError(t, err, "run() should return a nil error when shouldExit is true")
	require.Contains(t, out.String(), "Usage:", "Expected help text to be printed to the output buffer")
}

func TestRun_ParseError(t *testing.T) {
	t.Parallel()

	err := run(context.Background(), &bytes.Buffer{}, &bytes.Buffer{}, []string{"--this-is-not-a-valid-flag"})

	require.Error(t, err, "run() should return an error when argument parsing fails")
	require.Contains(t, err.Error(), "flag provided but not defined: -this-is-not-a-valid-flag")
}

func TestRun_InvalidHCL(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "main.hcl")
	require.NoError(t, os.WriteFile(path, []byte(`
node "math" "a" {
  // Missing closing brace here
`), 0o600))

	err := run(context.Background(), &bytes.Buffer{}, &bytes.Buffer{}, []string{"--once", "--env-file", "", path})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse HCL file")
}

func TestRun_Once(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "flow.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"nodes": [
			{"id": "in", "type": "input", "data": {"parameters": {"value": "hello world"}}},
			{"id": "up", "type": "text_processor", "data": {"parameters": {"operation": "title"}}}
		],
		"edges": [{"source": "in", "target": "up", "targetHandle": "text"}]
	}`), 0o600))

	out := &bytes.Buffer{}
	err := run(context.Background(), out, &bytes.Buffer{}, []string{"--once", "--env-file", "", "--workflow", path})
	require.NoError(t, err)

	var report struct {
		Success bool                      `json:"success"`
		Results map[string]map[string]any `json:"results"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.True(t, report.Success)
	assert.Equal(t, "Hello World", report.Results["up"]["output"])
}
