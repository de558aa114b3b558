package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/flowloop/internal/event"
	"github.com/vk/flowloop/internal/node"
)

// CompletedOrder returns the node IDs of completed node_state events of one
// cycle, in arrival order.
func CompletedOrder(states []event.NodeState, cycle int64) []string {
	var ids []string
	for _, s := range states {
		if s.Cycle == cycle && s.Phase == node.PhaseCompleted {
			ids = append(ids, s.NodeID)
		}
	}
	return ids
}

// RequireNodeState finds the node_state event of a node in a cycle with the
// given phase and fails the test if there is none.
func RequireNodeState(t *testing.T, states []event.NodeState, nodeID string, cycle int64, phase node.Phase) event.NodeState {
	t.Helper()
	for _, s := range states {
		if s.NodeID == nodeID && s.Cycle == cycle && s.Phase == phase {
			return s
		}
	}
	require.Failf(t, "node state not found", "no %s event for node '%s' in cycle %d", phase, nodeID, cycle)
	return event.NodeState{}
}
