package registry

import (
	"fmt"
	"slices"
	"strings"

	"github.com/vk/flowloop/internal/model"
	"github.com/vk/flowloop/internal/node"
)

// Module is the interface that all node modules must implement to be registered.
type Module interface {
	Register(r *Registry)
}

// Factory builds one node instance from its spec. It is called exactly once
// per node per compilation.
type Factory func(spec model.NodeSpec) (node.Node, error)

// Definition describes a registered node type.
type Definition struct {
	Type        string      `json:"type"`
	Kind        Kind        `json:"category"`
	DisplayName string      `json:"display_name"`
	Description string      `json:"description,omitempty"`
	Inputs      node.Schema `json:"inputs"`
	Outputs     node.Schema `json:"outputs"`
	// Aliases are alternative type names accepted in documents.
	Aliases []string `json:"aliases,omitempty"`
	Factory Factory  `json:"-"`
}

// NotFoundError is returned when a type name has no registered definition.
type NotFoundError struct {
	Type string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("node type '%s' is not registered", e.Type)
}

// Registry holds every registered node definition for a single application
// instance.
type Registry struct {
	definitions map[string]*Definition
	aliases     map[string]string
}

// New creates and initializes a new Registry instance.
func New() *Registry {
	return &Registry{
		definitions: make(map[string]*Definition),
		aliases:     make(map[string]string),
	}
}

// Register adds a definition. It panics on an empty type, a missing factory
// or a name that is already taken: registration happens at startup from a
// fixed list of modules, so these are programming errors.
func (r *Registry) Register(def Definition) {
	if strings.TrimSpace(def.Type) == "" {
		panic("node definition registered without a type name")
	}
	if def.Factory == nil {
		panic(fmt.Sprintf("node type '%s' registered without a factory", def.Type))
	}
	if r.taken(def.Type) {
		panic(fmt.Sprintf("node type '%s' already registered", def.Type))
	}
	for _, alias := range def.Aliases {
		if r.taken(alias) || alias == def.Type {
			panic(fmt.Sprintf("node type alias '%s' already registered", alias))
		}
	}

	if def.DisplayName == "" {
		def.DisplayName = def.Type
	}
	r.definitions[def.Type] = &def
	for _, alias := range def.Aliases {
		r.aliases[alias] = def.Type
	}
}

// RegisterModules calls Register on each module in order.
func (r *Registry) RegisterModules(modules ...Module) {
	for _, m := range modules {
		m.Register(r)
	}
}

func (r *Registry) taken(name string) bool {
	_, def := r.definitions[name]
	_, alias := r.aliases[name]
	return def || alias
}

// Resolve returns the definition for a type name or alias.
func (r *Registry) Resolve(typeName string) (*Definition, error) {
	if canonical, ok := r.aliases[typeName]; ok {
		typeName = canonical
	}
	def, ok := r.definitions[typeName]
	if !ok {
		return nil, &NotFoundError{Type: typeName}
	}
	return def, nil
}

// Definitions returns all definitions sorted by type name.
func (r *Registry) Definitions() []*Definition {
	defs := make([]*Definition, 0, len(r.definitions))
	for _, d := range r.definitions {
		defs = append(defs, d)
	}
	slices.SortFunc(defs, func(a, b *Definition) int { return strings.Compare(a.Type, b.Type) })
	return defs
}

// Len returns the number of registered definitions.
func (r *Registry) Len() int {
	return len(r.definitions)
}
