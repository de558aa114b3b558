package node

import (
	"context"
	"slices"
)

// Value type names used in port declarations. They are informational; the
// executor does not coerce values.
const (
	TypeAny     = "ANY"
	TypeString  = "STRING"
	TypeInt     = "INT"
	TypeFloat   = "FLOAT"
	TypeBoolean = "BOOLEAN"
	TypeObject  = "OBJECT"
)

// Port declares one named input or output.
type Port struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Default     any    `json:"default,omitempty"`
	Required    bool   `json:"required,omitempty"`
	Description string `json:"description,omitempty"`
}

// Schema is an ordered list of ports.
type Schema []Port

// Lookup returns the port with the given name.
func (s Schema) Lookup(name string) (Port, bool) {
	i := s.Index(name)
	if i < 0 {
		return Port{}, false
	}
	return s[i], true
}

// Index returns the position of the named port, or -1.
func (s Schema) Index(name string) int {
	return slices.IndexFunc(s, func(p Port) bool { return p.Name == name })
}

// Names returns the port names in declaration order.
func (s Schema) Names() []string {
	names := make([]string, len(s))
	for i, p := range s {
		names[i] = p.Name
	}
	return names
}

// Output is the result of one execution. Values are keyed by output port
// name. SideChannel is forwarded to observers without interpretation.
type Output struct {
	Values      map[string]any
	SideChannel any
}

// Single returns an Output with one value on the default "output" port.
func Single(v any) Output {
	return Output{Values: map[string]any{"output": v}}
}

// Node is one executable unit of a compiled plan. Execute is called by the
// execution loop, one call at a time. A call that overran the node timeout is
// abandoned, not waited for, so it may still be running when the next cycle
// starts; implementations must honour ctx to avoid that overlap.
type Node interface {
	Inputs() Schema
	Outputs() Schema
	Execute(ctx context.Context, in Inputs) (Output, error)
}

// Func adapts a function and a pair of schemas to the Node interface.
type Func struct {
	In  Schema
	Out Schema
	Fn  func(ctx context.Context, in Inputs) (Output, error)
}

// Inputs implements Node.
func (f *Func) Inputs() Schema { return f.In }

// Outputs implements Node.
func (f *Func) Outputs() Schema { return f.Out }

// Execute implements Node.
func (f *Func) Execute(ctx context.Context, in Inputs) (Output, error) {
	return f.Fn(ctx, in)
}
