package dag

import (
	"fmt"
	"strings"
)

// CompileErrorKind classifies a compilation failure.
type CompileErrorKind string

const (
	KindEmpty         CompileErrorKind = "empty_workflow"
	KindDuplicateNode CompileErrorKind = "duplicate_node"
	KindUnknownType   CompileErrorKind = "unknown_type"
	KindBadEdge       CompileErrorKind = "bad_edge"
	KindCycle         CompileErrorKind = "cyclic_graph"
	KindInstantiate   CompileErrorKind = "instantiate"
)

// CompileError is returned by Compile for any structural problem. No plan is
// produced when it is returned.
type CompileError struct {
	Kind   CompileErrorKind
	NodeID string
	Msg    string
	Err    error
}

func (e *CompileError) Error() string {
	var b strings.Builder
	b.WriteString("compile workflow: ")
	b.WriteString(string(e.Kind))
	if e.NodeID != "" {
		fmt.Fprintf(&b, ": node '%s'", e.NodeID)
	}
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *CompileError) Unwrap() error {
	return e.Err
}

// CyclicGraphError names the nodes that could not be ordered because of a
// dependency cycle.
type CyclicGraphError struct {
	// Nodes are the unresolved node IDs, sorted.
	Nodes []string
	// Cycle is one concrete cycle path, first element repeated at the end.
	Cycle []string
}

func (e *CyclicGraphError) Error() string {
	if len(e.Cycle) > 0 {
		return fmt.Sprintf("cycle detected: %s", strings.Join(e.Cycle, " -> "))
	}
	return fmt.Sprintf("cycle detected involving nodes: %s", strings.Join(e.Nodes, ", "))
}
