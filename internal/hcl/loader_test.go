package hcl

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/flowloop/internal/model"
	"github.com/vk/flowloop/internal/testutil"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadWorkflow(t *testing.T) {
	ctx, _ := testutil.LogContext(t)
	l := &Loader{evalCtx: newEvalContext([]string{"GREETING=hi"})}

	t.Run("references become edges", func(t *testing.T) {
		path := writeFile(t, t.TempDir(), "main.hcl", `
workflow "demo" {
  interval    = 0.25
  description = "chain"
}

node "input" "src" {
  value = upper(env.GREETING)
}

node "text_processor" "upper" {
  operation = "uppercase"
  text      = node.src.output
}

node "output" "sink" {
  input = node.upper
}
`)
		wf, err := l.LoadWorkflow(ctx, path)
		require.NoError(t, err)

		assert.Equal(t, "demo", wf.Name)
		assert.Equal(t, 250*time.Millisecond, wf.Interval)
		assert.Equal(t, "chain", wf.Metadata["description"])
		require.Len(t, wf.Nodes, 3)
		assert.Equal(t, model.NodeSpec{ID: "src", Type: "input", Params: map[string]any{"value": "HI"}}, wf.Nodes[0])
		assert.Equal(t, map[string]any{"operation": "uppercase"}, wf.Nodes[1].Params)
		assert.Equal(t, []model.EdgeSpec{
			{From: "src", FromOutput: "output", To: "upper", ToInput: "text"},
			{From: "upper", FromOutput: "output", To: "sink", ToInput: "input"},
		}, wf.Edges)
	})

	t.Run("directory with edge blocks", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "a.hcl", `
node "math" "m" {
  operation = "add"
  a = 1
  b = [1, 2][1]
}
`)
		writeFile(t, dir, "b.hcl", `
node "output" "out" {}

edge {
  from = "m.output"
  to   = "out"
}
`)
		wf, err := l.LoadWorkflow(ctx, dir)
		require.NoError(t, err)
		require.Len(t, wf.Nodes, 2)
		assert.Equal(t, map[string]any{"operation": "add", "a": 1.0, "b": 2.0}, wf.Nodes[0].Params)
		assert.Equal(t, []model.EdgeSpec{{From: "m", FromOutput: "output", To: "out", ToInput: "input"}}, wf.Edges)
	})

	t.Run("errors", func(t *testing.T) {
		tests := []struct {
			name    string
			content string
			want    string
		}{
			{"syntax", `node "a" {`, "failed to parse"},
			{"no nodes", `workflow "x" {}`, "no nodes"},
			{"bad interval", "workflow \"x\" {\n interval = -1\n}\nnode \"input\" \"a\" {}", "positive"},
			{"computed reference", "node \"input\" \"a\" {}\nnode \"output\" \"b\" {\n input = \"${node.a.output}!\"\n}", "plain node"},
			{"deep reference", "node \"output\" \"b\" {\n input = node.a.x.y\n}", "node.<id>"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				path := writeFile(t, t.TempDir(), "main.hcl", tt.content)
				_, err := l.LoadWorkflow(ctx, path)
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.want)
			})
		}
	})

	t.Run("no files", func(t *testing.T) {
		_, err := l.LoadWorkflow(ctx, t.TempDir())
		assert.ErrorContains(t, err, "no .hcl workflow files")
	})
}

func TestLoadSettings(t *testing.T) {
	ctx, _ := testutil.LogContext(t)
	l := NewLoader()

	path := writeFile(t, t.TempDir(), "flowloop.hcl", `
server {
  listen          = ":9001"
  allowed_origins = ["http://localhost:3000"]
}

engine {
  interval     = 0.5
  node_timeout = 2
  queue_size   = 64
}

log {
  level = "debug"
}

nats {
  url = "nats://127.0.0.1:4222"
}
`)
	s, err := l.LoadSettings(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, ":9001", s.Listen)
	assert.Equal(t, []string{"http://localhost:3000"}, s.AllowedOrigins)
	assert.Equal(t, 500*time.Millisecond, s.Interval)
	assert.Equal(t, 2*time.Second, s.NodeTimeout)
	assert.Equal(t, 64, s.QueueSize)
	assert.Equal(t, "debug", s.LogLevel)
	assert.Empty(t, s.LogFormat)
	assert.Equal(t, "nats://127.0.0.1:4222", s.NATSURL)
	assert.Empty(t, s.OTLPEndpoint)

	bad := writeFile(t, t.TempDir(), "bad.hcl", "engine {\n queue_size = 0\n}\n")
	_, err = l.LoadSettings(ctx, bad)
	assert.ErrorContains(t, err, "queue_size must be positive")
}
