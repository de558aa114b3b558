// Package env provides the env_var node, which reads process environment
// variables.
package env

import (
	"context"
	"os"
	"strings"

	"github.com/vk/flowloop/internal/model"
	"github.com/vk/flowloop/internal/node"
	"github.com/vk/flowloop/internal/registry"
)

// Module implements the registry.Module interface for this package. Nil
// functions fall back to the os package.
type Module struct {
	LookupEnv func(key string) (string, bool)
	Environ   func() []string
}

var (
	inSchema = node.Schema{
		{Name: "name", Type: node.TypeString, Default: "", Description: "Variable to read"},
		{Name: "default", Type: node.TypeString, Default: "", Description: "Value used when the variable is unset"},
		{Name: "prefix", Type: node.TypeString, Default: "", Description: "When set, every variable with this prefix is returned on 'matching'"},
	}
	outSchema = node.Schema{
		{Name: model.DefaultOutput, Type: node.TypeString},
		{Name: "found", Type: node.TypeBoolean, Default: false},
		{Name: "matching", Type: node.TypeObject},
	}
)

// Register registers the env_var node.
func (m *Module) Register(r *registry.Registry) {
	lookup, environ := m.LookupEnv, m.Environ
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if environ == nil {
		environ = os.Environ
	}

	run := func(_ context.Context, in node.Inputs) (node.Output, error) {
		out := node.Output{Values: map[string]any{}}

		value, found := "", false
		if name := in.String("name"); name != "" {
			value, found = lookup(name)
		}
		if !found {
			value = in.String("default")
		}
		out.Values[model.DefaultOutput] = value
		out.Values["found"] = found

		if prefix := in.String("prefix"); prefix != "" {
			matching := make(map[string]any)
			for _, kv := range environ() {
				if k, v, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(k, prefix) {
					matching[k] = v
				}
			}
			out.Values["matching"] = matching
		}
		return out, nil
	}

	r.Register(registry.Definition{
		Type:        "env_var",
		Kind:        registry.KindInput,
		DisplayName: "Environment Variable",
		Description: "Reads a process environment variable",
		Inputs:      inSchema,
		Outputs:     outSchema,
		Factory: func(model.NodeSpec) (node.Node, error) {
			return &node.Func{In: inSchema, Out: outSchema, Fn: run}, nil
		},
	})
}
