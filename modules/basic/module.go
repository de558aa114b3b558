// Package basic provides the general-purpose nodes: workflow inputs and
// outputs, pass-through, text transformation, delays, random numbers and
// arithmetic.
package basic

import (
	"github.com/vk/flowloop/internal/model"
	"github.com/vk/flowloop/internal/node"
	"github.com/vk/flowloop/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers every basic node type.
func (m *Module) Register(r *registry.Registry) {
	r.Register(registry.Definition{
		Type:        "input",
		Kind:        registry.KindInput,
		DisplayName: "Input",
		Description: "Provides input data to the workflow",
		Inputs:      inputSchema,
		Outputs:     stringOut,
		Aliases:     []string{"InputNode"},
		Factory:     stateless(inputSchema, stringOut, runInput),
	})
	r.Register(registry.Definition{
		Type:        "output",
		Kind:        registry.KindOutput,
		DisplayName: "Output",
		Description: "Displays workflow output",
		Inputs:      outputSchema,
		Outputs:     anyOut,
		Aliases:     []string{"OutputNode"},
		Factory:     stateless(outputSchema, anyOut, runOutput),
	})
	r.Register(registry.Definition{
		Type:        "identity",
		Kind:        registry.KindProcessing,
		DisplayName: "Identity",
		Description: "Passes its input through unchanged",
		Inputs:      identitySchema,
		Outputs:     anyOut,
		Factory:     stateless(identitySchema, anyOut, runIdentity),
	})
	r.Register(registry.Definition{
		Type:        "text_processor",
		Kind:        registry.KindProcessing,
		DisplayName: "Text Processor",
		Description: "Apply text transformations",
		Inputs:      textSchema,
		Outputs:     stringOut,
		Aliases:     []string{"TextProcessorNode"},
		Factory:     stateless(textSchema, stringOut, runTextProcessor),
	})
	r.Register(registry.Definition{
		Type:        "delay",
		Kind:        registry.KindControl,
		DisplayName: "Delay",
		Description: "Add delay to workflow execution",
		Inputs:      delaySchema,
		Outputs:     anyOut,
		Aliases:     []string{"DelayNode"},
		Factory:     stateless(delaySchema, anyOut, runDelay),
	})
	r.Register(registry.Definition{
		Type:        "random_number",
		Kind:        registry.KindProcessing,
		DisplayName: "Random Number",
		Description: "Generate random integer between min and max values",
		Inputs:      randomSchema,
		Outputs:     intOut,
		Aliases:     []string{"RandomNumberNode"},
		Factory:     stateless(randomSchema, intOut, runRandomNumber),
	})
	r.Register(registry.Definition{
		Type:        "math",
		Kind:        registry.KindProcessing,
		DisplayName: "Math",
		Description: "Perform basic mathematical operations",
		Inputs:      mathSchema,
		Outputs:     floatOut,
		Aliases:     []string{"MathNode"},
		Factory:     stateless(mathSchema, floatOut, runMath),
	})
}

var (
	stringOut = node.Schema{{Name: model.DefaultOutput, Type: node.TypeString}}
	anyOut    = node.Schema{{Name: model.DefaultOutput, Type: node.TypeAny}}
	intOut    = node.Schema{{Name: model.DefaultOutput, Type: node.TypeInt}}
	floatOut  = node.Schema{{Name: model.DefaultOutput, Type: node.TypeFloat}}
)

type runFunc = func(ctx nodeContext, in node.Inputs) (any, error)

// stateless builds a factory for nodes whose behaviour depends only on
// their inputs.
func stateless(in, out node.Schema, run runFunc) registry.Factory {
	return func(spec model.NodeSpec) (node.Node, error) {
		return &node.Func{
			In:  in,
			Out: out,
			Fn:  adapt(spec.ID, run),
		}, nil
	}
}
