package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/vk/flowloop/internal/model"
	"github.com/vk/flowloop/internal/node"
	"github.com/vk/flowloop/internal/registry"
)

// MockSleeperModule registers a "sleeper" node that sleeps for a fixed
// duration, honouring cancellation, and records when each execution ran.
type MockSleeperModule struct {
	ExecutionTimes map[string][]ExecutionRecord
	mu             sync.Mutex
	sleepDuration  time.Duration
	completionChan chan<- string
}

// NewMockSleeperModule creates a new sleeper module for testing.
func NewMockSleeperModule(completionChan chan<- string, sleep time.Duration) *MockSleeperModule {
	return &MockSleeperModule{
		ExecutionTimes: make(map[string][]ExecutionRecord),
		sleepDuration:  sleep,
		completionChan: completionChan,
	}
}

// Records returns a copy of the recorded executions of one node.
func (m *MockSleeperModule) Records(nodeID string) []ExecutionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ExecutionRecord(nil), m.ExecutionTimes[nodeID]...)
}

// Register registers the "sleeper" node type.
func (m *MockSleeperModule) Register(r *registry.Registry) {
	r.Register(registry.Definition{
		Type: "sleeper",
		Kind: registry.KindControl,
		Factory: func(spec model.NodeSpec) (node.Node, error) {
			return &node.Func{
				In:  node.Schema{{Name: "input"}},
				Out: node.Schema{{Name: "output"}},
				Fn: func(ctx context.Context, in node.Inputs) (node.Output, error) {
					start := time.Now()
					select {
					case <-time.After(m.sleepDuration):
					case <-ctx.Done():
						return node.Output{}, ctx.Err()
					}
					end := time.Now()

					m.mu.Lock()
					m.ExecutionTimes[spec.ID] = append(m.ExecutionTimes[spec.ID], ExecutionRecord{Start: start, End: end})
					m.mu.Unlock()

					if m.completionChan != nil {
						m.completionChan <- spec.ID
					}
					return node.Single(in["input"]), nil
				},
			}, nil
		},
	})
}
