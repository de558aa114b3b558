package inmemorystore

import (
	"maps"
	"sync"

	"github.com/vk/flowloop/internal/node"
)

// Store holds the latest node.RuntimeState per node ID.
type Store struct {
	states sync.Map // Key: node ID string, Value: node.RuntimeState
}

// New creates a new, empty runtime state store.
func New() *Store {
	return &Store{}
}

// Set records a state, replacing the previous one for the same node.
func (s *Store) Set(state node.RuntimeState) {
	state.LastResult = maps.Clone(state.LastResult)
	s.states.Store(state.NodeID, state)
}

// Get returns the recorded state. A node that has not run yet is reported
// as idle.
func (s *Store) Get(nodeID string) node.RuntimeState {
	v, ok := s.states.Load(nodeID)
	if !ok {
		return node.RuntimeState{NodeID: nodeID, Phase: node.PhaseIdle}
	}
	state := v.(node.RuntimeState)
	state.LastResult = maps.Clone(state.LastResult)
	return state
}

// Snapshot returns the states of the given nodes in the given order.
func (s *Store) Snapshot(nodeIDs []string) []node.RuntimeState {
	out := make([]node.RuntimeState, len(nodeIDs))
	for i, id := range nodeIDs {
		out[i] = s.Get(id)
	}
	return out
}

// Results returns the last successful result of every node that has one,
// and the last error of every node currently in the error phase.
func (s *Store) Results() (results map[string]map[string]any, errs map[string]string) {
	results = make(map[string]map[string]any)
	errs = make(map[string]string)
	s.states.Range(func(key, value any) bool {
		state := value.(node.RuntimeState)
		if state.LastResult != nil {
			results[state.NodeID] = maps.Clone(state.LastResult)
		}
		if state.Phase == node.PhaseError && state.LastError != nil {
			errs[state.NodeID] = state.LastError.Error()
		}
		return true
	})
	return results, errs
}

// Reset forgets every state.
func (s *Store) Reset() {
	s.states.Range(func(key, _ any) bool {
		s.states.Delete(key)
		return true
	})
}
