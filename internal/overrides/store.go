package overrides

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Entry is one stored override.
type Entry struct {
	NodeID     string    `json:"node_id"`
	InputName  string    `json:"input_name"`
	Value      any       `json:"value"`
	ReceivedAt time.Time `json:"received_at"`
}

// OverrideWriteError is returned when an override cannot be stored. The store
// is left unchanged.
type OverrideWriteError struct {
	NodeID    string
	InputName string
	Reason    string
}

func (e *OverrideWriteError) Error() string {
	return fmt.Sprintf("rejected override for '%s.%s': %s", e.NodeID, e.InputName, e.Reason)
}

// View is an immutable snapshot of the whole store.
type View struct {
	entries map[string]map[string]Entry
}

var emptyView = &View{entries: map[string]map[string]Entry{}}

// Lookup returns the override for one input.
func (v *View) Lookup(nodeID, input string) (any, bool) {
	if v == nil {
		return nil, false
	}
	e, ok := v.entries[nodeID][input]
	return e.Value, ok
}

// Snapshot returns a copy of a node's overrides keyed by input name.
func (v *View) Snapshot(nodeID string) map[string]any {
	out := make(map[string]any)
	if v == nil {
		return out
	}
	for name, e := range v.entries[nodeID] {
		out[name] = e.Value
	}
	return out
}

// Each calls fn for each override of a node.
func (v *View) Each(nodeID string, fn func(input string, value any)) {
	if v == nil {
		return
	}
	for name, e := range v.entries[nodeID] {
		fn(name, e.Value)
	}
}

// Len returns the number of stored overrides.
func (v *View) Len() int {
	if v == nil {
		return 0
	}
	n := 0
	for _, inputs := range v.entries {
		n += len(inputs)
	}
	return n
}

// Store is the concurrency-safe override store.
type Store struct {
	mu      sync.Mutex
	current atomic.Pointer[View]
	now     func() time.Time
}

// New creates an empty store.
func New() *Store {
	s := &Store{now: time.Now}
	s.current.Store(emptyView)
	return s
}

// Set stores value for (nodeID, input), replacing any earlier value.
func (s *Store) Set(nodeID, input string, value any) error {
	if strings.TrimSpace(nodeID) == "" {
		return &OverrideWriteError{NodeID: nodeID, InputName: input, Reason: "node id is required"}
	}
	if strings.TrimSpace(input) == "" {
		return &OverrideWriteError{NodeID: nodeID, InputName: input, Reason: "input name is required"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.current.Load()
	next := &View{entries: maps.Clone(old.entries)}
	inputs := maps.Clone(old.entries[nodeID])
	if inputs == nil {
		inputs = make(map[string]Entry, 1)
	}
	inputs[input] = Entry{NodeID: nodeID, InputName: input, Value: value, ReceivedAt: s.now()}
	next.entries[nodeID] = inputs
	s.current.Store(next)
	return nil
}

// View returns the current immutable snapshot. It never blocks.
func (s *Store) View() *View {
	return s.current.Load()
}

// Snapshot returns a copy of a node's current overrides.
func (s *Store) Snapshot(nodeID string) map[string]any {
	return s.View().Snapshot(nodeID)
}

// Clear removes every override of a node.
func (s *Store) Clear(nodeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.current.Load()
	if _, ok := old.entries[nodeID]; !ok {
		return
	}
	next := &View{entries: maps.Clone(old.entries)}
	delete(next.entries, nodeID)
	s.current.Store(next)
}

// Reset removes every override.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current.Store(emptyView)
}

// Entries returns all overrides sorted by node id then input name.
func (s *Store) Entries() []Entry {
	v := s.View()
	out := make([]Entry, 0, v.Len())
	for _, inputs := range v.entries {
		for _, e := range inputs {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, func(a, b Entry) int {
		if c := strings.Compare(a.NodeID, b.NodeID); c != 0 {
			return c
		}
		return strings.Compare(a.InputName, b.InputName)
	})
	return out
}

// Len returns the number of stored overrides.
func (s *Store) Len() int {
	return s.View().Len()
}
