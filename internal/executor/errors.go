package executor

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyRunning is returned when a run is requested while another
	// run owns the executor.
	ErrAlreadyRunning = errors.New("execution loop is already running")
	// ErrNodeTimeout marks a node that did not return within NodeTimeout.
	ErrNodeTimeout = errors.New("node execution timed out")
	// ErrInvalidInterval is returned by SetInterval for non-positive values.
	ErrInvalidInterval = errors.New("loop interval must be positive")
)

// NodeExecutionError is the failure of one node in one cycle. It is logged
// and broadcast; the cycle continues.
type NodeExecutionError struct {
	NodeID string
	Cycle  int64
	Err    error
}

func (e *NodeExecutionError) Error() string {
	return fmt.Sprintf("node '%s' failed in cycle %d: %v", e.NodeID, e.Cycle, e.Err)
}

func (e *NodeExecutionError) Unwrap() error {
	return e.Err
}

// MissingInputError reports a required input that no source provided.
type MissingInputError struct {
	Input string
}

func (e *MissingInputError) Error() string {
	return fmt.Sprintf("required input '%s' has no value", e.Input)
}

// PanicError wraps a value recovered from a panicking node.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("node panicked: %v", e.Value)
}
