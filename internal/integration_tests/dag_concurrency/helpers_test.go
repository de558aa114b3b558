package integration_tests

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vk/flowloop/internal/model"
	"github.com/vk/flowloop/internal/node"
	"github.com/vk/flowloop/internal/registry"
	"github.com/vk/flowloop/internal/testutil"
)

// gatherModule registers a "gather" node with three inputs that records when
// it started.
type gatherModule struct {
	mu      sync.Mutex
	started time.Time
}

func (m *gatherModule) Register(r *registry.Registry) {
	in := node.Schema{{Name: "a"}, {Name: "b"}, {Name: "c"}}
	r.Register(registry.Definition{
		Type: "gather",
		Kind: registry.KindControl,
		Factory: func(model.NodeSpec) (node.Node, error) {
			return &node.Func{
				In:  in,
				Out: node.Schema{{Name: "output"}},
				Fn: func(_ context.Context, values node.Inputs) (node.Output, error) {
					m.mu.Lock()
					m.started = time.Now()
					m.mu.Unlock()
					return node.Single([]any{values["a"], values["b"], values["c"]}), nil
				},
			}, nil
		},
	})
}

func (m *gatherModule) Started() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}

func writeGraph(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "main.hcl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func latestEnd(t *testing.T, m *testutil.MockSleeperModule, ids ...string) time.Time {
	t.Helper()
	var latest time.Time
	for _, id := range ids {
		records := m.Records(id)
		require.Len(t, records, 1, "node %s", id)
		if records[0].End.After(latest) {
			latest = records[0].End
		}
	}
	return latest
}
