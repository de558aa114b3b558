// Package script provides the script node: a JavaScript snippet run with
// goja on every execution.
//
// The snippet sees an inputs object and its completion value becomes the
// result. With a single declared output the value is used as is; with
// several it must be an object keyed by output name. Assigning to the rt
// global publishes a side-channel payload to observers.
//
//	node "script" "scale" {
//	  code   = "inputs.x * inputs.factor"
//	  inputs = ["x", "factor"]
//	}
package script

import (
	"fmt"

	"github.com/dop251/goja"

	"github.com/vk/flowloop/internal/model"
	"github.com/vk/flowloop/internal/node"
	"github.com/vk/flowloop/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the script node.
func (m *Module) Register(r *registry.Registry) {
	r.Register(registry.Definition{
		Type:        "script",
		Kind:        registry.KindCustom,
		DisplayName: "Script",
		Description: "Runs a JavaScript snippet; ports are declared by the inputs and outputs parameters",
		Inputs:      node.Schema{{Name: model.DefaultInput, Type: node.TypeAny}},
		Outputs:     node.Schema{{Name: model.DefaultOutput, Type: node.TypeAny}},
		Factory:     New,
	})
}

// New compiles the node's code and declares its ports.
func New(spec model.NodeSpec) (node.Node, error) {
	code, _ := spec.Param("code")
	src, ok := code.(string)
	if !ok || src == "" {
		return nil, fmt.Errorf("script node '%s': parameter 'code' must be a non-empty string", spec.ID)
	}
	program, err := goja.Compile(spec.ID, src, false)
	if err != nil {
		return nil, fmt.Errorf("script node '%s': %w", spec.ID, err)
	}

	inputs, err := portNames(spec, "inputs", model.DefaultInput)
	if err != nil {
		return nil, err
	}
	outputs, err := portNames(spec, "outputs", model.DefaultOutput)
	if err != nil {
		return nil, err
	}

	n := &Node{id: spec.ID, program: program}
	for _, name := range inputs {
		n.in = append(n.in, node.Port{Name: name, Type: node.TypeAny})
	}
	for _, name := range outputs {
		n.out = append(n.out, node.Port{Name: name, Type: node.TypeAny})
	}
	return n, nil
}

// portNames reads a list-of-strings parameter.
func portNames(spec model.NodeSpec, param, fallback string) ([]string, error) {
	raw, ok := spec.Param(param)
	if !ok || raw == nil {
		return []string{fallback}, nil
	}
	var names []string
	switch v := raw.(type) {
	case []string:
		names = v
	case []any:
		for _, item := range v {
			s, ok := item.(string)
			if !ok || s == "" {
				return nil, fmt.Errorf("script node '%s': parameter '%s' must list non-empty strings", spec.ID, param)
			}
			names = append(names, s)
		}
	default:
		return nil, fmt.Errorf("script node '%s': parameter '%s' must be a list of names, got %T", spec.ID, param, raw)
	}
	if len(names) == 0 {
		return []string{fallback}, nil
	}
	return names, nil
}
